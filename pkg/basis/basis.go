// Package basis generates the kernel basis lists and the finite-difference
// regularization matrix used to keep the per-candidate PSF-matching fit
// well-conditioned. Two families are provided: the maximal delta-function
// basis (one impulse per kernel pixel, needs regularization) and the compact
// Alard-Lupton basis (Gaussians modulated by polynomials).
package basis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"diffim/pkg/config"
	"diffim/pkg/kernel"
)

// Delta returns the width*height delta-function basis kernels, one unit
// impulse per pixel position, ordered row-major. This is the most flexible
// and least regularized basis; pair it with Regularization over the same
// grid.
func Delta(width, height int) []*kernel.Fixed {
	list := make([]*kernel.Fixed, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			k := kernel.NewFixed(width, height)
			k.Set(x, y, 1)
			list = append(list, k)
		}
	}
	return list
}

// AlardLupton returns a basis of nGauss 2-D Gaussians of widths sigGauss,
// each modulated by polynomial terms up to its entry in degGauss. The kernel
// footprint is 2*halfWidth+1 on each side. A Gaussian of degree d contributes
// (d+1)(d+2)/2 kernels.
func AlardLupton(halfWidth, nGauss int, sigGauss []float64, degGauss []int) ([]*kernel.Fixed, error) {
	if halfWidth <= 0 {
		return nil, fmt.Errorf("basis: half width must be positive, got %d", halfWidth)
	}
	if nGauss <= 0 || len(sigGauss) != nGauss || len(degGauss) != nGauss {
		return nil, fmt.Errorf("basis: need %d sigmas and degrees, got %d and %d",
			nGauss, len(sigGauss), len(degGauss))
	}
	size := 2*halfWidth + 1
	var list []*kernel.Fixed
	for g := 0; g < nGauss; g++ {
		sig := sigGauss[g]
		if sig <= 0 {
			return nil, fmt.Errorf("basis: gaussian %d has non-positive sigma %g", g, sig)
		}
		if degGauss[g] < 0 {
			return nil, fmt.Errorf("basis: gaussian %d has negative degree %d", g, degGauss[g])
		}
		for deg := 0; deg <= degGauss[g]; deg++ {
			for py := 0; py <= deg; py++ {
				px := deg - py
				k := kernel.NewFixed(size, size)
				for y := 0; y < size; y++ {
					dy := float64(y - halfWidth)
					for x := 0; x < size; x++ {
						dx := float64(x - halfWidth)
						gauss := math.Exp(-(dx*dx + dy*dy) / (2 * sig * sig))
						k.Set(x, y, gauss*intPow(dx, px)*intPow(dy, py))
					}
				}
				list = append(list, k)
			}
		}
	}
	return list, nil
}

func intPow(v float64, p int) float64 {
	r := 1.0
	for i := 0; i < p; i++ {
		r *= v
	}
	return r
}

// Renormalize rebuilds a basis list so the first kernel carries all the flux:
// every kernel with a non-negligible sum is scaled to kSum 1, then the first
// kernel is subtracted from every later one (kSum 0) and each of those is
// scaled to unit self inner-product. Exactly one basis function can then
// shift overall flux, which lets a differencing kernel conserve flux by
// construction.
func Renormalize(in []*kernel.Fixed) []*kernel.Fixed {
	if len(in) == 0 {
		return nil
	}
	out := make([]*kernel.Fixed, len(in))

	first := in[0].Clone()
	if s := first.Sum(); math.Abs(s) > epsilon {
		first.Scale(1 / s)
	}
	out[0] = first

	for i := 1; i < len(in); i++ {
		k := in[i].Clone()
		if s := k.Sum(); math.Abs(s) > epsilon {
			k.Scale(1 / s)
			k.SubScaled(1, first)
		}
		if d := k.Dot(k); d > epsilon {
			k.Scale(1 / math.Sqrt(d))
		}
		out[i] = k
	}
	return out
}

// epsilon is double-precision machine epsilon, the cutoff below which a
// kernel sum counts as zero.
const epsilon = 2.220446049250313e-16

// FromConfig builds the basis list named by the pipeline configuration, plus
// the regularization matrix when the delta basis asks for one. Alard-Lupton
// bases are renormalized and never regularized.
func FromConfig(cfg *config.Config) ([]*kernel.Fixed, *mat.SymDense, error) {
	switch cfg.Kernel.BasisType {
	case config.BasisDelta:
		list := Delta(cfg.Kernel.Size, cfg.Kernel.Size)
		if !cfg.Regularization.Use {
			return list, nil, nil
		}
		bound, err := ParseBoundStyle(cfg.Regularization.BoundaryStyle)
		if err != nil {
			return nil, nil, err
		}
		diff, err := ParseDiffStyle(cfg.Regularization.DifferenceStyle)
		if err != nil {
			return nil, nil, err
		}
		reg, err := Regularization(cfg.Kernel.Size, cfg.Kernel.Size, cfg.Regularization.Order, bound, diff)
		if err != nil {
			return nil, nil, err
		}
		return list, reg, nil
	case config.BasisAlardLupton:
		half := (cfg.Kernel.Size - 1) / 2
		list, err := AlardLupton(half, cfg.Kernel.AlardNGauss, cfg.Kernel.AlardSigGauss, cfg.Kernel.AlardDegGauss)
		if err != nil {
			return nil, nil, err
		}
		return Renormalize(list), nil, nil
	default:
		return nil, nil, fmt.Errorf("basis: unknown basis type %q", cfg.Kernel.BasisType)
	}
}
