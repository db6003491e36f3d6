// Package kernel provides the small convolution kernels used to represent a
// PSF-matching kernel: fixed (single-image) kernels, 2-D spatial polynomials,
// and linear combinations whose coefficients vary with image position.
package kernel

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Fixed is a small, non-spatially-varying convolution kernel stored
// row-major. The kernel center is at ((Width-1)/2, (Height-1)/2).
type Fixed struct {
	Width  int
	Height int
	Data   []float64
}

// NewFixed allocates a zeroed kernel.
func NewFixed(width, height int) *Fixed {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("kernel: invalid kernel size %dx%d", width, height))
	}
	return &Fixed{Width: width, Height: height, Data: make([]float64, width*height)}
}

// At returns the kernel value at column x, row y.
func (k *Fixed) At(x, y int) float64 { return k.Data[y*k.Width+x] }

// Set stores the kernel value at column x, row y.
func (k *Fixed) Set(x, y int, v float64) { k.Data[y*k.Width+x] = v }

// CenterX returns the x index of the kernel center pixel.
func (k *Fixed) CenterX() int { return (k.Width - 1) / 2 }

// CenterY returns the y index of the kernel center pixel.
func (k *Fixed) CenterY() int { return (k.Height - 1) / 2 }

// Sum returns the kernel sum (kSum).
func (k *Fixed) Sum() float64 { return floats.Sum(k.Data) }

// Dot returns the inner product with another kernel of the same size.
func (k *Fixed) Dot(o *Fixed) float64 {
	if k.Width != o.Width || k.Height != o.Height {
		panic(fmt.Sprintf("kernel: dot of mismatched kernels %dx%d and %dx%d",
			k.Width, k.Height, o.Width, o.Height))
	}
	return floats.Dot(k.Data, o.Data)
}

// Scale multiplies every kernel value by f.
func (k *Fixed) Scale(f float64) { floats.Scale(f, k.Data) }

// SubScaled subtracts f*o from k in place.
func (k *Fixed) SubScaled(f float64, o *Fixed) {
	floats.AddScaled(k.Data, -f, o.Data)
}

// Clone returns a deep copy.
func (k *Fixed) Clone() *Fixed {
	c := NewFixed(k.Width, k.Height)
	copy(c.Data, k.Data)
	return c
}
