// Package imgstack provides the masked-image container used throughout the
// PSF-matching pipeline. A MaskedImage bundles three parallel planes over the
// same pixel grid: the science/template pixel values, a per-pixel bitfield
// mask, and a per-pixel variance estimate. Images carry an origin offset so
// subimages keep parent coordinates.
package imgstack

import (
	"fmt"
	"image"
)

// MaskedImage is a rectangular pixel grid with parallel mask and variance
// planes. Planes are stored row-major with a stride, so subimages can share
// the parent's storage without copying.
type MaskedImage struct {
	width  int
	height int
	x0, y0 int // origin in parent coordinates
	stride int

	pixels   []float64
	mask     []uint16
	variance []float64
}

// New allocates a zeroed MaskedImage of the given size with origin (0,0).
func New(width, height int) *MaskedImage {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("imgstack: invalid image size %dx%d", width, height))
	}
	return &MaskedImage{
		width:    width,
		height:   height,
		stride:   width,
		pixels:   make([]float64, width*height),
		mask:     make([]uint16, width*height),
		variance: make([]float64, width*height),
	}
}

// Width returns the number of columns.
func (m *MaskedImage) Width() int { return m.width }

// Height returns the number of rows.
func (m *MaskedImage) Height() int { return m.height }

// BBox returns the image bounds in parent coordinates.
// Max is exclusive, following image.Rectangle convention.
func (m *MaskedImage) BBox() image.Rectangle {
	return image.Rect(m.x0, m.y0, m.x0+m.width, m.y0+m.height)
}

func (m *MaskedImage) index(x, y int) int {
	return (y-m.y0)*m.stride + (x - m.x0)
}

func (m *MaskedImage) contains(x, y int) bool {
	return x >= m.x0 && x < m.x0+m.width && y >= m.y0 && y < m.y0+m.height
}

// Pixel returns the image value at (x, y) in parent coordinates.
func (m *MaskedImage) Pixel(x, y int) float64 { return m.pixels[m.index(x, y)] }

// Mask returns the mask bitfield at (x, y).
func (m *MaskedImage) Mask(x, y int) uint16 { return m.mask[m.index(x, y)] }

// Variance returns the variance value at (x, y).
func (m *MaskedImage) Variance(x, y int) float64 { return m.variance[m.index(x, y)] }

// SetPixel stores an image value at (x, y).
func (m *MaskedImage) SetPixel(x, y int, v float64) { m.pixels[m.index(x, y)] = v }

// SetVariance stores a variance value at (x, y).
func (m *MaskedImage) SetVariance(x, y int, v float64) { m.variance[m.index(x, y)] = v }

// SetPixelMask ORs bits into the mask at (x, y).
func (m *MaskedImage) SetPixelMask(x, y int, bits uint16) { m.mask[m.index(x, y)] |= bits }

// SetRectMask ORs bits into the mask over every pixel of box. Pixels outside
// the image are ignored.
func (m *MaskedImage) SetRectMask(box image.Rectangle, bits uint16) {
	box = box.Intersect(m.BBox())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			m.mask[m.index(x, y)] |= bits
		}
	}
}

// Fill sets every pixel value to v.
func (m *MaskedImage) Fill(v float64) {
	for y := m.y0; y < m.y0+m.height; y++ {
		row := (y - m.y0) * m.stride
		for x := 0; x < m.width; x++ {
			m.pixels[row+x] = v
		}
	}
}

// FillVariance sets every variance value to v.
func (m *MaskedImage) FillVariance(v float64) {
	for y := m.y0; y < m.y0+m.height; y++ {
		row := (y - m.y0) * m.stride
		for x := 0; x < m.width; x++ {
			m.variance[row+x] = v
		}
	}
}

// SubImage returns a view of the pixels inside box, sharing storage with the
// parent. The view keeps parent coordinates: its BBox equals box. An error is
// returned when box is empty or not fully contained in the parent.
func (m *MaskedImage) SubImage(box image.Rectangle) (*MaskedImage, error) {
	if box.Empty() {
		return nil, fmt.Errorf("imgstack: empty subimage box %v", box)
	}
	if !box.In(m.BBox()) {
		return nil, fmt.Errorf("imgstack: subimage box %v outside image bounds %v", box, m.BBox())
	}
	off := (box.Min.Y-m.y0)*m.stride + (box.Min.X - m.x0)
	end := off + (box.Dy()-1)*m.stride + box.Dx()
	return &MaskedImage{
		width:    box.Dx(),
		height:   box.Dy(),
		x0:       box.Min.X,
		y0:       box.Min.Y,
		stride:   m.stride,
		pixels:   m.pixels[off:end],
		mask:     m.mask[off:end],
		variance: m.variance[off:end],
	}, nil
}

// OrBits returns the bitwise OR of every mask value inside box. Used to test
// a candidate region for contaminating mask planes in one pass.
func (m *MaskedImage) OrBits(box image.Rectangle) (uint16, error) {
	if !box.In(m.BBox()) {
		return 0, fmt.Errorf("imgstack: box %v outside image bounds %v", box, m.BBox())
	}
	var bits uint16
	for y := box.Min.Y; y < box.Max.Y; y++ {
		row := (y - m.y0) * m.stride
		for x := box.Min.X; x < box.Max.X; x++ {
			bits |= m.mask[row+x-m.x0]
		}
	}
	return bits, nil
}
