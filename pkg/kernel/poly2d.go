package kernel

import "fmt"

// Poly2D is a 2-D polynomial in image position. Terms are ordered by total
// degree then by descending x power: 1, x, y, x², xy, y², ...
type Poly2D struct {
	Order  int
	Coeffs []float64
}

// NTerms returns the number of terms of a 2-D polynomial of the given order.
func NTerms(order int) int { return (order + 1) * (order + 2) / 2 }

// NewPoly2D builds a polynomial of the given order from its coefficients.
func NewPoly2D(order int, coeffs []float64) (*Poly2D, error) {
	if n := NTerms(order); len(coeffs) != n {
		return nil, fmt.Errorf("kernel: order-%d polynomial needs %d coefficients, got %d",
			order, n, len(coeffs))
	}
	c := make([]float64, len(coeffs))
	copy(c, coeffs)
	return &Poly2D{Order: order, Coeffs: c}, nil
}

// Terms returns the monomial values at (x, y) in coefficient order.
func Terms(order int, x, y float64) []float64 {
	terms := make([]float64, 0, NTerms(order))
	for deg := 0; deg <= order; deg++ {
		for py := 0; py <= deg; py++ {
			px := deg - py
			terms = append(terms, pow(x, px)*pow(y, py))
		}
	}
	return terms
}

func pow(v float64, p int) float64 {
	r := 1.0
	for i := 0; i < p; i++ {
		r *= v
	}
	return r
}

// Eval returns the polynomial value at (x, y).
func (p *Poly2D) Eval(x, y float64) float64 {
	terms := Terms(p.Order, x, y)
	var sum float64
	for i, t := range terms {
		sum += p.Coeffs[i] * t
	}
	return sum
}
