package kernel

import (
	"fmt"
	"image"

	"diffim/pkg/imgstack"
)

// LinearCombination is a spatially varying kernel: a fixed basis list whose
// per-basis coefficients are low-order 2-D polynomials in image position.
type LinearCombination struct {
	Basis   []*Fixed
	Spatial []*Poly2D
}

// NewLinearCombination pairs a basis list with its spatial coefficient
// polynomials.
func NewLinearCombination(basis []*Fixed, spatial []*Poly2D) (*LinearCombination, error) {
	if len(basis) == 0 {
		return nil, fmt.Errorf("kernel: empty basis list")
	}
	if len(basis) != len(spatial) {
		return nil, fmt.Errorf("kernel: %d basis kernels but %d spatial polynomials",
			len(basis), len(spatial))
	}
	return &LinearCombination{Basis: basis, Spatial: spatial}, nil
}

// CoefficientsAt evaluates every spatial polynomial at (x, y).
func (lc *LinearCombination) CoefficientsAt(x, y float64) []float64 {
	coeffs := make([]float64, len(lc.Spatial))
	for i, p := range lc.Spatial {
		coeffs[i] = p.Eval(x, y)
	}
	return coeffs
}

// At materializes the local kernel at image position (x, y).
func (lc *LinearCombination) At(x, y float64) *Fixed {
	k := NewFixed(lc.Basis[0].Width, lc.Basis[0].Height)
	for i, b := range lc.Basis {
		c := lc.Spatial[i].Eval(x, y)
		for j, v := range b.Data {
			k.Data[j] += c * v
		}
	}
	return k
}

// SumAt returns the kernel sum at image position (x, y) without
// materializing the kernel image.
func (lc *LinearCombination) SumAt(x, y float64) float64 {
	var sum float64
	for i, b := range lc.Basis {
		sum += lc.Spatial[i].Eval(x, y) * b.Sum()
	}
	return sum
}

// ConvolveAt correlates k with img centered at (x, y) in parent coordinates.
// The full kernel footprint must lie inside the image.
func ConvolveAt(img *imgstack.MaskedImage, k *Fixed, x, y int) float64 {
	var sum float64
	cx, cy := k.CenterX(), k.CenterY()
	for ky := 0; ky < k.Height; ky++ {
		for kx := 0; kx < k.Width; kx++ {
			sum += k.At(kx, ky) * img.Pixel(x+kx-cx, y+ky-cy)
		}
	}
	return sum
}

// Interior returns the sub-box of box on which a w×h kernel can be evaluated
// without running off box. The returned box is empty when box is too small.
func Interior(box image.Rectangle, w, h int) image.Rectangle {
	cx, cy := (w-1)/2, (h-1)/2
	return image.Rect(
		box.Min.X+cx, box.Min.Y+cy,
		box.Max.X-(w-1-cx), box.Max.Y-(h-1-cy),
	)
}

// Convolve applies the spatially varying kernel to every interior pixel of
// img and returns a new image of the same geometry. Border pixels where the
// kernel does not fit keep value 0 and have the given edge bits set in the
// mask.
func Convolve(img *imgstack.MaskedImage, lc *LinearCombination, edgeBits uint16) *imgstack.MaskedImage {
	box := img.BBox()
	out := imgstack.New(box.Dx(), box.Dy())
	interior := Interior(box, lc.Basis[0].Width, lc.Basis[0].Height)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			ox, oy := x-box.Min.X, y-box.Min.Y
			p := image.Point{X: x, Y: y}
			if !p.In(interior) {
				out.SetPixelMask(ox, oy, edgeBits)
				continue
			}
			k := lc.At(float64(x), float64(y))
			out.SetPixel(ox, oy, ConvolveAt(img, k, x, y))
		}
	}
	return out
}
