// Package spatialfit fits a spatially varying PSF-matching kernel to a set
// of candidate footprints. Each candidate contributes a local linear system
// (basis convolutions of the template against science pixels); the
// contributions accumulate into one global system whose unknowns are, per
// basis function, the coefficients of a low-order 2-D polynomial over image
// position, plus an optional spatially varying background.
package spatialfit

import (
	"errors"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"diffim/pkg/detect"
	"diffim/pkg/imgstack"
	"diffim/pkg/kernel"
)

// ErrSingular is returned by SolveLinearEquation when the accumulated global
// system cannot be solved even after regularization. No kernel model can be
// produced, so this is fatal to the caller.
var ErrSingular = errors.New("spatialfit: accumulated spatial system is singular")

// State tracks the solver's one-directional lifecycle.
type State int

const (
	// StateCollecting accepts candidate contributions.
	StateCollecting State = iota
	// StateSolved holds the global coefficient vector.
	StateSolved
	// StatePackaged has produced the spatial kernel and background.
	StatePackaged
)

// Options configure a Solver.
type Options struct {
	// KernelOrder is the spatial polynomial order of the per-basis
	// coefficients.
	KernelOrder int
	// BackgroundOrder is the spatial polynomial order of the background
	// term.
	BackgroundOrder int
	// FitBackground adds the spatially varying background to the fit.
	FitBackground bool
	// VarianceWeight weights each pixel sample by the inverse science
	// variance.
	VarianceWeight bool
	// Lambda scales the regularization penalty.
	Lambda float64
	// Regularization is the delta-basis penalty matrix, or nil. It is
	// mapped into spatial-coefficient space as kron(R, I) before the solve.
	Regularization *mat.SymDense
	// Verbose enables skip diagnostics.
	Verbose bool
}

// Solver accumulates per-candidate normal-equation contributions and solves
// for the spatial kernel model. The zero-value transitions are explicit:
// ProcessCandidate only in StateCollecting, SolveLinearEquation moves to
// StateSolved, GetSolutionPair moves to StatePackaged and is idempotent.
type Solver struct {
	basis []*kernel.Fixed
	opts  Options

	nkt    int // spatial terms per basis function
	nbt    int // spatial background terms
	nLocal int // local unknowns: len(basis) + background column
	nTotal int // global unknowns

	state       State
	nCandidates int // candidates visited
	nUsed       int // candidates that contributed

	m *mat.Dense
	b *mat.VecDense

	solution   *mat.VecDense
	spatialKrn *kernel.LinearCombination
	background *kernel.Poly2D
}

// New creates a solver over a fixed basis list.
func New(basis []*kernel.Fixed, opts Options) (*Solver, error) {
	if len(basis) == 0 {
		return nil, fmt.Errorf("spatialfit: empty basis list")
	}
	if opts.Regularization != nil {
		if n, _ := opts.Regularization.Dims(); n != len(basis) {
			return nil, fmt.Errorf("spatialfit: regularization is %dx%d but basis has %d kernels",
				n, n, len(basis))
		}
	}
	s := &Solver{
		basis: basis,
		opts:  opts,
		nkt:   kernel.NTerms(opts.KernelOrder),
	}
	s.nLocal = len(basis)
	if opts.FitBackground {
		s.nbt = kernel.NTerms(opts.BackgroundOrder)
		s.nLocal++
	}
	s.nTotal = len(basis)*s.nkt + s.nbt
	s.m = mat.NewDense(s.nTotal, s.nTotal, nil)
	s.b = mat.NewVecDense(s.nTotal, nil)
	return s, nil
}

// State returns the solver's lifecycle state.
func (s *Solver) State() State { return s.state }

// NCandidates returns the number of candidates visited so far.
func (s *Solver) NCandidates() int { return s.nCandidates }

// NUsed returns the number of candidates whose contribution was accumulated.
func (s *Solver) NUsed() int { return s.nUsed }

// ProcessCandidate accumulates one candidate footprint into the global
// system. The local design matrix holds the basis kernels convolved with the
// template over the candidate's interior pixels; the right-hand side holds
// the science pixels, optionally inverse-variance weighted. Degenerate
// candidates (too few pixels, extraction failure, non-finite contributions)
// are skipped with a diagnostic and are not fatal.
func (s *Solver) ProcessCandidate(fp *detect.Footprint, templateImage, scienceImage *imgstack.MaskedImage) error {
	if s.state != StateCollecting {
		return fmt.Errorf("spatialfit: ProcessCandidate called in state %d", s.state)
	}
	s.nCandidates++

	box := fp.BBox()
	kw, kh := s.basis[0].Width, s.basis[0].Height
	interior := kernel.Interior(box, kw, kh)
	npix := interior.Dx() * interior.Dy()
	if interior.Empty() || npix < s.nLocal {
		s.skip(fmt.Sprintf("footprint %v has %d usable pixels for %d unknowns", box, npix, s.nLocal))
		return nil
	}

	tmplSub, err := templateImage.SubImage(box)
	if err != nil {
		s.skip(fmt.Sprintf("cannot extract template %v: %v", box, err))
		return nil
	}
	sciSub, err := scienceImage.SubImage(box)
	if err != nil {
		s.skip(fmt.Sprintf("cannot extract science %v: %v", box, err))
		return nil
	}

	// Local normal equations Q = MᵀWM, w = MᵀWb over the interior pixels.
	q := mat.NewDense(s.nLocal, s.nLocal, nil)
	w := mat.NewVecDense(s.nLocal, nil)
	row := make([]float64, s.nLocal)
	for y := interior.Min.Y; y < interior.Max.Y; y++ {
		for x := interior.Min.X; x < interior.Max.X; x++ {
			for i, bk := range s.basis {
				row[i] = kernel.ConvolveAt(tmplSub, bk, x, y)
			}
			if s.opts.FitBackground {
				row[len(s.basis)] = 1
			}
			weight := 1.0
			if s.opts.VarianceWeight {
				if v := sciSub.Variance(x, y); v > 0 {
					weight = 1 / v
				}
			}
			sci := sciSub.Pixel(x, y)
			for i := 0; i < s.nLocal; i++ {
				wi := weight * row[i]
				w.SetVec(i, w.AtVec(i)+wi*sci)
				for j := 0; j < s.nLocal; j++ {
					q.Set(i, j, q.At(i, j)+wi*row[j])
				}
			}
		}
	}
	if !finiteDense(q) || !finiteVec(w) {
		s.skip(fmt.Sprintf("footprint %v produced non-finite normal equations", box))
		return nil
	}

	// Map the local system into spatial-coefficient space at the candidate
	// center: unknown block a gets the kernel-order terms, the background
	// block gets the background-order terms.
	center := fp.Centroid()
	kTerms := kernel.Terms(s.opts.KernelOrder, float64(center.X), float64(center.Y))
	var bgTerms []float64
	if s.opts.FitBackground {
		bgTerms = kernel.Terms(s.opts.BackgroundOrder, float64(center.X), float64(center.Y))
	}
	offset := func(c int) ([]float64, int) {
		if c < len(s.basis) {
			return kTerms, c * s.nkt
		}
		return bgTerms, len(s.basis) * s.nkt
	}
	for ci := 0; ci < s.nLocal; ci++ {
		ti, oi := offset(ci)
		for cj := 0; cj < s.nLocal; cj++ {
			tj, oj := offset(cj)
			qv := q.At(ci, cj)
			if qv == 0 {
				continue
			}
			for a, ta := range ti {
				for b, tb := range tj {
					s.m.Set(oi+a, oj+b, s.m.At(oi+a, oj+b)+qv*ta*tb)
				}
			}
		}
		wv := w.AtVec(ci)
		for a, ta := range ti {
			s.b.SetVec(oi+a, s.b.AtVec(oi+a)+wv*ta)
		}
	}
	s.nUsed++
	return nil
}

func (s *Solver) skip(msg string) {
	if s.opts.Verbose {
		log.Printf("spatialfit: skipping candidate: %s", msg)
	}
}

// SolveLinearEquation solves the accumulated global system, applying the
// regularization penalty first when configured. It transitions the solver to
// StateSolved; a system that remains singular after regularization returns
// ErrSingular.
func (s *Solver) SolveLinearEquation() error {
	if s.state != StateCollecting {
		return fmt.Errorf("spatialfit: SolveLinearEquation called in state %d", s.state)
	}

	if s.opts.Regularization != nil && s.opts.Lambda > 0 {
		// kron(R, I_nkt): penalize each spatial term of each basis pair.
		for a := 0; a < len(s.basis); a++ {
			for b := 0; b < len(s.basis); b++ {
				r := s.opts.Lambda * s.opts.Regularization.At(a, b)
				if r == 0 {
					continue
				}
				for t := 0; t < s.nkt; t++ {
					i, j := a*s.nkt+t, b*s.nkt+t
					s.m.Set(i, j, s.m.At(i, j)+r)
				}
			}
		}
	}

	sym := mat.NewSymDense(s.nTotal, nil)
	for i := 0; i < s.nTotal; i++ {
		for j := i; j < s.nTotal; j++ {
			sym.SetSym(i, j, 0.5*(s.m.At(i, j)+s.m.At(j, i)))
		}
	}

	x := mat.NewVecDense(s.nTotal, nil)
	var chol mat.Cholesky
	if chol.Factorize(sym) {
		if err := chol.SolveVecTo(x, s.b); err != nil {
			return fmt.Errorf("%w: %v", ErrSingular, err)
		}
	} else {
		// Not positive definite; fall back to least squares.
		if err := x.SolveVec(s.m, s.b); err != nil {
			return fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}
	if !finiteVec(x) {
		return fmt.Errorf("%w: non-finite solution", ErrSingular)
	}

	s.solution = x
	s.state = StateSolved
	return nil
}

// GetSolutionPair packages the solved coefficients as a spatially varying
// kernel and a spatially varying background polynomial. The first call
// transitions the solver to StatePackaged; repeated calls return the same
// values without re-solving.
func (s *Solver) GetSolutionPair() (*kernel.LinearCombination, *kernel.Poly2D, error) {
	switch s.state {
	case StateCollecting:
		return nil, nil, fmt.Errorf("spatialfit: GetSolutionPair called before SolveLinearEquation")
	case StatePackaged:
		return s.spatialKrn, s.background, nil
	}

	spatial := make([]*kernel.Poly2D, len(s.basis))
	for a := range s.basis {
		p, err := kernel.NewPoly2D(s.opts.KernelOrder, s.solution.RawVector().Data[a*s.nkt:(a+1)*s.nkt])
		if err != nil {
			return nil, nil, err
		}
		spatial[a] = p
	}
	lc, err := kernel.NewLinearCombination(s.basis, spatial)
	if err != nil {
		return nil, nil, err
	}

	var bg *kernel.Poly2D
	if s.opts.FitBackground {
		bg, err = kernel.NewPoly2D(s.opts.BackgroundOrder,
			s.solution.RawVector().Data[len(s.basis)*s.nkt:])
		if err != nil {
			return nil, nil, err
		}
	} else {
		bg, _ = kernel.NewPoly2D(0, []float64{0})
	}

	s.spatialKrn = lc
	s.background = bg
	s.state = StatePackaged
	return lc, bg, nil
}

func finiteDense(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) || math.IsInf(m.At(i, j), 0) {
				return false
			}
		}
	}
	return true
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if math.IsNaN(v.AtVec(i)) || math.IsInf(v.AtVec(i), 0) {
			return false
		}
	}
	return true
}
