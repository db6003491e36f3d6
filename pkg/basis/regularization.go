package basis

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BoundStyle selects how finite-difference stencils treat the edges of the
// basis grid. The grid has no physical periodicity, yet truncating stencils
// at the edge biases the penalty there; tapering is the default compromise.
type BoundStyle int

const (
	// BoundUnwrapped keeps only stencils that fit entirely inside the grid.
	BoundUnwrapped BoundStyle = iota
	// BoundWrapped wraps stencil indices periodically.
	BoundWrapped
	// BoundTapered ramps the stencil order down near the edges, reaching
	// order 0 at the boundary.
	BoundTapered
)

// ParseBoundStyle maps a configuration string to a BoundStyle.
func ParseBoundStyle(s string) (BoundStyle, error) {
	switch s {
	case "unwrapped":
		return BoundUnwrapped, nil
	case "wrapped":
		return BoundWrapped, nil
	case "tapered":
		return BoundTapered, nil
	}
	return 0, fmt.Errorf("basis: unknown boundary style %q", s)
}

// DiffStyle selects the finite-difference stencil family.
type DiffStyle int

const (
	// DiffForward uses one-sided forward-difference stencils.
	DiffForward DiffStyle = iota
	// DiffCentral uses symmetric central-difference stencils.
	DiffCentral
)

// ParseDiffStyle maps a configuration string to a DiffStyle.
func ParseDiffStyle(s string) (DiffStyle, error) {
	switch s {
	case "forward":
		return DiffForward, nil
	case "central":
		return DiffCentral, nil
	}
	return 0, fmt.Errorf("basis: unknown difference style %q", s)
}

// stencil is a 1-D finite-difference operator: coefficient i applies at
// offset offsets[i] from the anchor pixel.
type stencil struct {
	offsets []int
	coeffs  []float64
}

// forwardStencils[o] and centralStencils[o] discretize the derivative of
// order o+1.
var forwardStencils = []stencil{
	{offsets: []int{0, 1}, coeffs: []float64{-1, 1}},
	{offsets: []int{0, 1, 2}, coeffs: []float64{-1, 2, -1}},
	{offsets: []int{0, 1, 2, 3}, coeffs: []float64{-1, 3, -3, 1}},
}

var centralStencils = []stencil{
	{offsets: []int{-1, 0, 1}, coeffs: []float64{-0.5, 0, 0.5}},
	{offsets: []int{-1, 0, 1}, coeffs: []float64{1, -2, 1}},
	{offsets: []int{-2, -1, 0, 1, 2}, coeffs: []float64{-0.5, 1, 0, -1, 0.5}},
}

// Regularization builds the symmetric penalty matrix R = BᵀB for the
// width×height delta-function basis, where the rows of B apply the
// derivative-of-order-(order+1) stencil along the rows and columns of the
// grid. The matrix addresses basis kernels in the same row-major order as
// Delta, and is only meaningful together with that basis.
func Regularization(width, height, order int, bound BoundStyle, diff DiffStyle) (*mat.SymDense, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("basis: invalid regularization grid %dx%d", width, height)
	}
	if order < 0 || order > 2 {
		return nil, fmt.Errorf("basis: regularization order %d out of range [0, 2]", order)
	}

	n := width * height
	var rows [][]float64

	addRow := func(anchorX, anchorY int, st stencil, alongX bool) bool {
		row := make([]float64, n)
		for i, off := range st.offsets {
			x, y := anchorX, anchorY
			if alongX {
				x += off
			} else {
				y += off
			}
			switch bound {
			case BoundWrapped:
				x = mod(x, width)
				y = mod(y, height)
			default:
				if x < 0 || x >= width || y < 0 || y >= height {
					return false
				}
			}
			row[y*width+x] += st.coeffs[i]
		}
		rows = append(rows, row)
		return true
	}

	stencils := forwardStencils
	if diff == DiffCentral {
		stencils = centralStencils
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for _, alongX := range [2]bool{true, false} {
				switch bound {
				case BoundTapered:
					// Step the order down until the stencil fits; the
					// boundary pixels end up with the order-0 stencil or,
					// where even that cannot fit, no penalty row at all.
					for o := order; o >= 0; o-- {
						if addRow(x, y, stencils[o], alongX) {
							break
						}
					}
				default:
					addRow(x, y, stencils[order], alongX)
				}
			}
		}
	}

	if len(rows) == 0 {
		// Grid too small for any stencil; no penalty to apply.
		return mat.NewSymDense(n, nil), nil
	}

	flat := make([]float64, 0, len(rows)*n)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	b := mat.NewDense(len(rows), n, flat)

	var r mat.Dense
	r.Mul(b.T(), b)

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, r.At(i, j))
		}
	}
	return sym, nil
}

func mod(v, m int) int {
	v %= m
	if v < 0 {
		v += m
	}
	return v
}
