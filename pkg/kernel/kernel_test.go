package kernel

import (
	"image"
	"math"
	"testing"

	"diffim/pkg/imgstack"
)

// TestFixedArithmetic verifies the basic kernel operations.
func TestFixedArithmetic(t *testing.T) {
	k := NewFixed(3, 3)
	k.Set(1, 1, 2)
	k.Set(0, 0, 1)

	if k.Sum() != 3 {
		t.Errorf("Expected sum 3, got %f", k.Sum())
	}
	if k.Dot(k) != 5 {
		t.Errorf("Expected self dot 5, got %f", k.Dot(k))
	}

	c := k.Clone()
	c.Scale(2)
	if c.Sum() != 6 {
		t.Errorf("Expected scaled sum 6, got %f", c.Sum())
	}
	if k.Sum() != 3 {
		t.Errorf("Scale of a clone must not touch the original, sum is %f", k.Sum())
	}

	c.SubScaled(2, k)
	if c.Sum() != 0 {
		t.Errorf("Expected zero sum after subtraction, got %f", c.Sum())
	}
}

// TestPoly2DTerms verifies term ordering and counts.
func TestPoly2DTerms(t *testing.T) {
	counts := map[int]int{0: 1, 1: 3, 2: 6, 3: 10}
	for order, want := range counts {
		if got := NTerms(order); got != want {
			t.Errorf("NTerms(%d): expected %d, got %d", order, want, got)
		}
	}

	terms := Terms(2, 2, 3)
	want := []float64{1, 2, 3, 4, 6, 9} // 1, x, y, x², xy, y²
	if len(terms) != len(want) {
		t.Fatalf("Expected %d terms, got %d", len(want), len(terms))
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("Term %d: expected %f, got %f", i, want[i], terms[i])
		}
	}
}

// TestPoly2DEval verifies evaluation against a hand-built polynomial.
func TestPoly2DEval(t *testing.T) {
	// 2 + 3x - y + 0.5x² + xy - 2y²
	p, err := NewPoly2D(2, []float64{2, 3, -1, 0.5, 1, -2})
	if err != nil {
		t.Fatalf("NewPoly2D failed: %v", err)
	}
	got := p.Eval(2, -1)
	want := 2.0 + 6 + 1 + 2 - 2 - 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %f, got %f", want, got)
	}

	if _, err := NewPoly2D(2, []float64{1, 2}); err == nil {
		t.Error("Expected error for wrong coefficient count")
	}
}

// TestConvolveAt verifies correlation against hand-computed values.
func TestConvolveAt(t *testing.T) {
	img := imgstack.New(5, 5)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			img.SetPixel(x, y, float64(y*5+x))
		}
	}

	// An impulse at the kernel center samples the pixel itself.
	id := NewFixed(3, 3)
	id.Set(1, 1, 1)
	if got := ConvolveAt(img, id, 2, 2); got != 12 {
		t.Errorf("Expected identity convolution 12, got %f", got)
	}

	// An impulse left of center samples the left neighbor.
	left := NewFixed(3, 3)
	left.Set(0, 1, 1)
	if got := ConvolveAt(img, left, 2, 2); got != 11 {
		t.Errorf("Expected left-shifted convolution 11, got %f", got)
	}

	// A uniform 3x3 kernel averages times nine.
	box := NewFixed(3, 3)
	for i := range box.Data {
		box.Data[i] = 1
	}
	if got := ConvolveAt(img, box, 2, 2); got != 9*12 {
		t.Errorf("Expected box convolution %d, got %f", 9*12, got)
	}
}

// TestInterior verifies the evaluable sub-box of a kernel over a bbox.
func TestInterior(t *testing.T) {
	box := image.Rect(10, 10, 25, 20)
	in := Interior(box, 5, 3)
	if in != image.Rect(12, 11, 23, 19) {
		t.Errorf("Expected interior (12,11)-(23,19), got %v", in)
	}
	if !Interior(image.Rect(0, 0, 3, 3), 5, 5).Empty() {
		t.Error("Expected empty interior for undersized box")
	}
}

// TestLinearCombination verifies spatially varying evaluation.
func TestLinearCombination(t *testing.T) {
	b0 := NewFixed(3, 3)
	b0.Set(1, 1, 1)
	b1 := NewFixed(3, 3)
	b1.Set(0, 1, 1)

	p0, _ := NewPoly2D(0, []float64{2})
	p1, _ := NewPoly2D(1, []float64{0, 1, 0}) // coefficient = x

	lc, err := NewLinearCombination([]*Fixed{b0, b1}, []*Poly2D{p0, p1})
	if err != nil {
		t.Fatalf("NewLinearCombination failed: %v", err)
	}

	k := lc.At(3, 7)
	if k.At(1, 1) != 2 {
		t.Errorf("Expected center weight 2, got %f", k.At(1, 1))
	}
	if k.At(0, 1) != 3 {
		t.Errorf("Expected left weight 3 at x=3, got %f", k.At(0, 1))
	}
	if math.Abs(lc.SumAt(3, 7)-5) > 1e-12 {
		t.Errorf("Expected kernel sum 5 at (3,7), got %f", lc.SumAt(3, 7))
	}

	coeffs := lc.CoefficientsAt(4, 0)
	if coeffs[0] != 2 || coeffs[1] != 4 {
		t.Errorf("Expected coefficients [2 4], got %v", coeffs)
	}

	if _, err := NewLinearCombination([]*Fixed{b0}, []*Poly2D{p0, p1}); err == nil {
		t.Error("Expected error for mismatched basis and polynomial counts")
	}
}
