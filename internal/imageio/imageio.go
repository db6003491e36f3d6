// Package imageio loads grayscale science frames into masked images and
// writes result frames back out. TIFF (16-bit), PNG and JPEG inputs are
// supported.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	_ "image/jpeg"

	_ "golang.org/x/image/tiff"

	"diffim/pkg/imgstack"
)

// LoadGray decodes the image at path into a MaskedImage. Pixel values are
// 16-bit luminance; the variance plane is a Poisson approximation
// (max(pixel, 1)); edgeWidth border pixels get edgeBits set in the mask.
func LoadGray(path string, edgeWidth int, edgeBits uint16) (*imgstack.MaskedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imageio: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imageio: decoding %s: %w", path, err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	m := imgstack.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.Gray16Model.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			v := float64(g.Y)
			m.SetPixel(x, y, v)
			if v < 1 {
				v = 1
			}
			m.SetVariance(x, y, v)
		}
	}
	if edgeWidth > 0 {
		box := m.BBox()
		m.SetRectMask(image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+edgeWidth), edgeBits)
		m.SetRectMask(image.Rect(box.Min.X, box.Max.Y-edgeWidth, box.Max.X, box.Max.Y), edgeBits)
		m.SetRectMask(image.Rect(box.Min.X, box.Min.Y, box.Min.X+edgeWidth, box.Max.Y), edgeBits)
		m.SetRectMask(image.Rect(box.Max.X-edgeWidth, box.Min.Y, box.Max.X, box.Max.Y), edgeBits)
	}
	return m, nil
}

// WriteGrayPNG writes the pixel plane of m as a 16-bit grayscale PNG,
// linearly rescaled so the full data range maps onto [0, 65535].
func WriteGrayPNG(m *imgstack.MaskedImage, path string) error {
	box := m.BBox()
	lo, hi := m.Pixel(box.Min.X, box.Min.Y), m.Pixel(box.Min.X, box.Min.Y)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			v := m.Pixel(x, y)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	out := image.NewGray16(image.Rect(0, 0, box.Dx(), box.Dy()))
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			out.SetGray16(x-box.Min.X, y-box.Min.Y,
				color.Gray16{Y: uint16((m.Pixel(x, y) - lo) * scale)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imageio: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return fmt.Errorf("imageio: encoding %s: %w", path, err)
	}
	return nil
}
