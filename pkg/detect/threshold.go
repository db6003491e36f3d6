package detect

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"diffim/pkg/imgstack"
)

// ThresholdKind selects how a threshold value is interpreted.
type ThresholdKind string

const (
	// ThresholdValue treats the value as an absolute pixel level.
	ThresholdValue ThresholdKind = "value"
	// ThresholdStdev scales the value by the population standard deviation
	// of the image pixels.
	ThresholdStdev ThresholdKind = "stdev"
	// ThresholdVariance scales the value by the square root of the mean of
	// the image's variance plane.
	ThresholdVariance ThresholdKind = "variance"
)

// Threshold is a detection significance level.
type Threshold struct {
	Value float64
	Kind  ThresholdKind
}

// Resolve converts the threshold into an absolute pixel level for img.
func (t Threshold) Resolve(img *imgstack.MaskedImage) (float64, error) {
	switch t.Kind {
	case ThresholdValue:
		return t.Value, nil
	case ThresholdStdev:
		box := img.BBox()
		vals := make([]float64, 0, box.Dx()*box.Dy())
		for y := box.Min.Y; y < box.Max.Y; y++ {
			for x := box.Min.X; x < box.Max.X; x++ {
				vals = append(vals, img.Pixel(x, y))
			}
		}
		return t.Value * stat.PopStdDev(vals, nil), nil
	case ThresholdVariance:
		box := img.BBox()
		var sum float64
		for y := box.Min.Y; y < box.Max.Y; y++ {
			for x := box.Min.X; x < box.Max.X; x++ {
				sum += img.Variance(x, y)
			}
		}
		n := float64(box.Dx() * box.Dy())
		if n == 0 || sum < 0 {
			return 0, fmt.Errorf("detect: cannot resolve variance threshold on %v", box)
		}
		return t.Value * math.Sqrt(sum/n), nil
	default:
		return 0, fmt.Errorf("detect: unknown threshold kind %q", t.Kind)
	}
}

// FindFootprints detects connected regions of pixels at or above thr in img
// and returns them as footprints ordered by the position of their first span.
// Components are 8-connected. Regions with fewer than npixMin pixels are
// dropped.
func FindFootprints(img *imgstack.MaskedImage, thr Threshold, npixMin int) ([]*Footprint, error) {
	level, err := thr.Resolve(img)
	if err != nil {
		return nil, err
	}

	box := img.BBox()
	w, h := box.Dx(), box.Dy()
	labels := make([]int32, w*h)

	above := func(x, y int) bool { return img.Pixel(x, y) >= level }
	idx := func(x, y int) int { return (y-box.Min.Y)*w + (x - box.Min.X) }

	var footprints []*Footprint
	next := int32(0)
	stack := make([]image.Point, 0, 64)

	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			if labels[idx(x, y)] != 0 || !above(x, y) {
				continue
			}
			// Flood fill one 8-connected component.
			next++
			stack = append(stack[:0], image.Point{X: x, Y: y})
			labels[idx(x, y)] = next
			var spans []Span
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				// Extend p into a full run on its row.
				x0, x1 := p.X, p.X
				for x0 > box.Min.X && labels[idx(x0-1, p.Y)] == 0 && above(x0-1, p.Y) {
					x0--
					labels[idx(x0, p.Y)] = next
				}
				for x1 < box.Max.X-1 && labels[idx(x1+1, p.Y)] == 0 && above(x1+1, p.Y) {
					x1++
					labels[idx(x1, p.Y)] = next
				}
				spans = append(spans, Span{Y: p.Y, X0: x0, X1: x1})
				// Seed the rows above and below, one past each run end for
				// 8-connectivity.
				for _, ny := range [2]int{p.Y - 1, p.Y + 1} {
					if ny < box.Min.Y || ny >= box.Max.Y {
						continue
					}
					for nx := max(x0-1, box.Min.X); nx <= min(x1+1, box.Max.X-1); nx++ {
						if labels[idx(nx, ny)] == 0 && above(nx, ny) {
							labels[idx(nx, ny)] = next
							stack = append(stack, image.Point{X: nx, Y: ny})
						}
					}
				}
			}
			fp := NewFootprint(spans)
			if fp.Area() >= npixMin {
				footprints = append(footprints, fp)
			}
		}
	}
	return footprints, nil
}
