package detect

import (
	"image"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"diffim/pkg/imgstack"
)

// TestThresholdResolve verifies the three threshold kinds.
func TestThresholdResolve(t *testing.T) {
	m := imgstack.New(4, 4)
	vals := []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		1, 2, 3, 4,
		5, 6, 7, 8,
	}
	for i, v := range vals {
		m.SetPixel(i%4, i/4, v)
		m.SetVariance(i%4, i/4, 4.0)
	}

	level, err := Threshold{Value: 42, Kind: ThresholdValue}.Resolve(m)
	if err != nil || level != 42 {
		t.Errorf("Expected value threshold 42, got %f (err %v)", level, err)
	}

	level, err = Threshold{Value: 3, Kind: ThresholdStdev}.Resolve(m)
	if err != nil {
		t.Fatalf("Stdev resolve failed: %v", err)
	}
	want := 3 * stat.PopStdDev(vals, nil)
	if math.Abs(level-want) > 1e-12 {
		t.Errorf("Expected stdev threshold %f, got %f", want, level)
	}

	level, err = Threshold{Value: 5, Kind: ThresholdVariance}.Resolve(m)
	if err != nil {
		t.Fatalf("Variance resolve failed: %v", err)
	}
	if math.Abs(level-10.0) > 1e-12 { // 5 * sqrt(mean variance 4)
		t.Errorf("Expected variance threshold 10, got %f", level)
	}

	if _, err := (Threshold{Value: 1, Kind: "bogus"}).Resolve(m); err == nil {
		t.Error("Expected error for unknown threshold kind")
	}
}

// TestFindFootprints verifies component labeling, 8-connectivity and the
// minimum pixel count.
func TestFindFootprints(t *testing.T) {
	m := imgstack.New(16, 16)
	// Two diagonal pixels: 8-connectivity merges them into one footprint.
	m.SetPixel(2, 2, 10)
	m.SetPixel(3, 3, 10)
	// A separate 2x2 block.
	for y := 8; y < 10; y++ {
		for x := 8; x < 10; x++ {
			m.SetPixel(x, y, 10)
		}
	}

	fps, err := FindFootprints(m, Threshold{Value: 5, Kind: ThresholdValue}, 1)
	if err != nil {
		t.Fatalf("FindFootprints failed: %v", err)
	}
	if len(fps) != 2 {
		t.Fatalf("Expected 2 footprints, got %d", len(fps))
	}
	if fps[0].Area() != 2 {
		t.Errorf("Expected diagonal pair area 2, got %d", fps[0].Area())
	}
	if got := fps[0].BBox(); got != image.Rect(2, 2, 4, 4) {
		t.Errorf("Expected diagonal pair bbox (2,2)-(4,4), got %v", got)
	}
	if fps[1].Area() != 4 {
		t.Errorf("Expected block area 4, got %d", fps[1].Area())
	}

	// Raising the minimum pixel count drops the small component.
	fps, err = FindFootprints(m, Threshold{Value: 5, Kind: ThresholdValue}, 3)
	if err != nil {
		t.Fatalf("FindFootprints failed: %v", err)
	}
	if len(fps) != 1 || fps[0].Area() != 4 {
		t.Fatalf("Expected only the 4-pixel block, got %d footprints", len(fps))
	}
}

// TestFindFootprintsIrregular verifies span assembly of a non-rectangular
// component.
func TestFindFootprintsIrregular(t *testing.T) {
	m := imgstack.New(16, 16)
	// A plus shape centered at (5,5).
	for _, p := range []image.Point{{5, 4}, {4, 5}, {5, 5}, {6, 5}, {5, 6}} {
		m.SetPixel(p.X, p.Y, 10)
	}

	fps, err := FindFootprints(m, Threshold{Value: 5, Kind: ThresholdValue}, 1)
	if err != nil {
		t.Fatalf("FindFootprints failed: %v", err)
	}
	if len(fps) != 1 {
		t.Fatalf("Expected 1 footprint, got %d", len(fps))
	}
	if fps[0].Area() != 5 {
		t.Errorf("Expected area 5, got %d", fps[0].Area())
	}
	if got := fps[0].BBox(); got != image.Rect(4, 4, 7, 7) {
		t.Errorf("Expected bbox (4,4)-(7,7), got %v", got)
	}
	if fps[0].Contains(4, 4) || fps[0].Contains(6, 6) {
		t.Error("Plus shape must not contain bbox corners")
	}
}
