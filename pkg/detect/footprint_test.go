package detect

import (
	"image"
	"testing"
)

// TestSpanNormalization verifies merging of overlapping and adjacent spans.
func TestSpanNormalization(t *testing.T) {
	fp := NewFootprint([]Span{
		{Y: 2, X0: 5, X1: 7},
		{Y: 2, X0: 7, X1: 9},  // overlaps previous
		{Y: 2, X0: 10, X1: 11}, // adjacent, merges
		{Y: 1, X0: 0, X1: 0},
		{Y: 2, X0: 20, X1: 21}, // disjoint
	})

	spans := fp.Spans()
	want := []Span{
		{Y: 1, X0: 0, X1: 0},
		{Y: 2, X0: 5, X1: 11},
		{Y: 2, X0: 20, X1: 21},
	}
	if len(spans) != len(want) {
		t.Fatalf("Expected %d spans, got %d: %v", len(want), len(spans), spans)
	}
	for i, s := range want {
		if spans[i] != s {
			t.Errorf("Span %d: expected %v, got %v", i, s, spans[i])
		}
	}
	if fp.Area() != 1+7+2 {
		t.Errorf("Expected area 10, got %d", fp.Area())
	}
}

// TestFromBBox verifies the rectangular constructor.
func TestFromBBox(t *testing.T) {
	box := image.Rect(3, 4, 8, 7)
	fp := FromBBox(box)
	if fp.BBox() != box {
		t.Errorf("Expected bbox %v, got %v", box, fp.BBox())
	}
	if fp.Area() != box.Dx()*box.Dy() {
		t.Errorf("Expected area %d, got %d", box.Dx()*box.Dy(), fp.Area())
	}
}

// TestContains verifies membership lookups.
func TestContains(t *testing.T) {
	fp := NewFootprint([]Span{
		{Y: 0, X0: 1, X1: 3},
		{Y: 1, X0: 0, X1: 0},
		{Y: 1, X0: 5, X1: 6},
	})
	in := []image.Point{{1, 0}, {3, 0}, {0, 1}, {5, 1}, {6, 1}}
	out := []image.Point{{0, 0}, {4, 0}, {1, 1}, {4, 1}, {7, 1}, {5, 2}}
	for _, p := range in {
		if !fp.Contains(p.X, p.Y) {
			t.Errorf("Expected footprint to contain (%d,%d)", p.X, p.Y)
		}
	}
	for _, p := range out {
		if fp.Contains(p.X, p.Y) {
			t.Errorf("Expected footprint to exclude (%d,%d)", p.X, p.Y)
		}
	}
}

// TestDilateMonotonic verifies that growth always contains the raw bounding
// box, for a range of margins.
func TestDilateMonotonic(t *testing.T) {
	fp := NewFootprint([]Span{
		{Y: 10, X0: 10, X1: 14},
		{Y: 11, X0: 12, X1: 12},
	})
	for r := 0; r <= 7; r++ {
		grown := fp.Dilate(r)
		if !fp.BBox().In(grown.BBox()) {
			t.Errorf("Margin %d: grown bbox %v does not contain raw bbox %v",
				r, grown.BBox(), fp.BBox())
		}
		if grown.Area() < fp.Area() {
			t.Errorf("Margin %d: grown area %d below raw area %d", r, grown.Area(), fp.Area())
		}
	}
}

// TestDilateDiamond verifies the L1 structuring element: a single pixel
// grows into a diamond, not a square.
func TestDilateDiamond(t *testing.T) {
	fp := FromBBox(image.Rect(10, 10, 11, 11))
	grown := fp.Dilate(2)

	if got := grown.BBox(); got != image.Rect(8, 8, 13, 13) {
		t.Errorf("Expected grown bbox (8,8)-(13,13), got %v", got)
	}
	// |dx| + |dy| <= 2 has 13 pixels.
	if grown.Area() != 13 {
		t.Errorf("Expected diamond area 13, got %d", grown.Area())
	}
	if grown.Contains(8, 8) {
		t.Error("Diamond must not contain the bounding-box corner (8,8)")
	}
	if !grown.Contains(8, 10) || !grown.Contains(10, 8) {
		t.Error("Diamond must contain the axis extremes")
	}
}

// TestCentroid verifies the bounding-box center used for oversize cores.
func TestCentroid(t *testing.T) {
	fp := FromBBox(image.Rect(10, 20, 15, 27))
	c := fp.Centroid()
	if c.X != 12 || c.Y != 23 {
		t.Errorf("Expected centroid (12,23), got (%d,%d)", c.X, c.Y)
	}
}
