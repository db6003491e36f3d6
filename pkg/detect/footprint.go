// Package detect finds kernel-fitting candidate regions in a pair of
// co-registered images. It provides span-based footprints with Manhattan
// dilation, a threshold/connected-component detector, and the candidate
// grower that validates footprints against image bounds and bad mask planes.
package detect

import (
	"image"
	"sort"
)

// Span is a horizontal run of pixels on row Y covering columns X0..X1
// inclusive.
type Span struct {
	Y, X0, X1 int
}

// Footprint is an irregular region of pixels stored as sorted, disjoint
// horizontal spans. Spans are ordered by (Y, X0) and never touch or overlap
// within a row.
type Footprint struct {
	spans []Span
	bbox  image.Rectangle
	area  int
}

// NewFootprint builds a footprint from arbitrary spans. Overlapping or
// adjacent spans on the same row are merged.
func NewFootprint(spans []Span) *Footprint {
	fp := &Footprint{spans: normalizeSpans(spans)}
	fp.recompute()
	return fp
}

// FromBBox returns a rectangular footprint covering box (Max exclusive).
func FromBBox(box image.Rectangle) *Footprint {
	spans := make([]Span, 0, box.Dy())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		spans = append(spans, Span{Y: y, X0: box.Min.X, X1: box.Max.X - 1})
	}
	return NewFootprint(spans)
}

func normalizeSpans(in []Span) []Span {
	if len(in) == 0 {
		return nil
	}
	spans := make([]Span, len(in))
	copy(spans, in)
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Y != spans[j].Y {
			return spans[i].Y < spans[j].Y
		}
		return spans[i].X0 < spans[j].X0
	})
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Y == last.Y && s.X0 <= last.X1+1 {
			if s.X1 > last.X1 {
				last.X1 = s.X1
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func (fp *Footprint) recompute() {
	fp.area = 0
	if len(fp.spans) == 0 {
		fp.bbox = image.Rectangle{}
		return
	}
	box := image.Rect(fp.spans[0].X0, fp.spans[0].Y, fp.spans[0].X1+1, fp.spans[0].Y+1)
	for _, s := range fp.spans {
		fp.area += s.X1 - s.X0 + 1
		box = box.Union(image.Rect(s.X0, s.Y, s.X1+1, s.Y+1))
	}
	fp.bbox = box
}

// Spans returns the footprint's spans. Callers must not mutate the slice.
func (fp *Footprint) Spans() []Span { return fp.spans }

// Area returns the number of pixels in the footprint.
func (fp *Footprint) Area() int { return fp.area }

// BBox returns the footprint's bounding box (Max exclusive).
func (fp *Footprint) BBox() image.Rectangle { return fp.bbox }

// Contains reports whether pixel (x, y) is inside the footprint.
func (fp *Footprint) Contains(x, y int) bool {
	i := sort.Search(len(fp.spans), func(i int) bool {
		s := fp.spans[i]
		return s.Y > y || (s.Y == y && s.X1 >= x)
	})
	if i == len(fp.spans) {
		return false
	}
	s := fp.spans[i]
	return s.Y == y && s.X0 <= x && x <= s.X1
}

// Centroid returns the integer center of the footprint's bounding box.
func (fp *Footprint) Centroid() image.Point {
	return image.Point{
		X: (fp.bbox.Min.X + fp.bbox.Max.X - 1) / 2,
		Y: (fp.bbox.Min.Y + fp.bbox.Max.Y - 1) / 2,
	}
}

// Dilate returns the footprint grown by r pixels under the L1 (Manhattan)
// metric: the union of diamonds of radius r centered on every member pixel.
// Each existing span contributes, at row offset dy in [-r, r], a copy of
// itself widened horizontally by r-|dy|; the per-row union of those copies is
// the dilated footprint. The result is not rectangular, so a later
// bounding-box extraction may overlap corner pixels of neighboring
// footprints.
func (fp *Footprint) Dilate(r int) *Footprint {
	if r <= 0 {
		return NewFootprint(fp.spans)
	}
	grown := make([]Span, 0, len(fp.spans)*(2*r+1))
	for _, s := range fp.spans {
		for dy := -r; dy <= r; dy++ {
			dx := r - abs(dy)
			grown = append(grown, Span{Y: s.Y + dy, X0: s.X0 - dx, X1: s.X1 + dx})
		}
	}
	return NewFootprint(grown)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
