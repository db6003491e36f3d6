package detect

import (
	"errors"
	"fmt"
	"image"
	"log"

	"diffim/pkg/config"
	"diffim/pkg/imgstack"
)

// ErrNoCandidates is returned by Apply when a full detection pass accepts no
// footprints. There is nothing to fit a matching kernel against, so the pass
// is fatal to the caller.
var ErrNoCandidates = errors.New("detect: no clean footprints found for kernel fitting")

// CandidateDetection finds clean, well-isolated footprints around which
// PSF-matching kernels can be fit. Detection runs on one of the two images
// (configurable); every surviving footprint is grown by a fixed margin and
// checked against the bad-pixel mask of both images, since contamination in
// either disqualifies the region.
//
// The bad-bit mask is folded once at construction and scoped to the instance,
// so pipelines with different mask policies can run side by side.
//
// A footprint rejected because the non-detection image is contaminated could
// in principle be re-detected at lower significance nearby; this
// implementation rejects it outright.
type CandidateDetection struct {
	badBitMask uint16
	npixMin    int
	npixMax    int
	growPix    int
	onTemplate bool
	threshold  Threshold
	verbose    bool

	footprints []*Footprint
}

// NewCandidateDetection builds a detector from the pipeline configuration.
// Unknown bad mask plane names are logged and omitted from the bad-bit mask.
func NewCandidateDetection(cfg *config.Config, planes *imgstack.PlaneRegistry) *CandidateDetection {
	c := &CandidateDetection{
		badBitMask: planes.MaskOf(cfg.Detection.BadMaskPlanes, cfg.Output.Verbose),
		npixMin:    cfg.Detection.FpNpixMin,
		npixMax:    cfg.Detection.FpNpixMax,
		growPix:    cfg.Detection.FpGrowPix,
		onTemplate: cfg.Detection.DetOnTemplate,
		threshold: Threshold{
			Value: cfg.Detection.DetThreshold,
			Kind:  ThresholdKind(cfg.Detection.DetThresholdType),
		},
		verbose: cfg.Output.Verbose,
	}
	if c.verbose {
		log.Printf("detect: using bad bit mask %#04x", c.badBitMask)
	}
	return c
}

// Footprints returns the accepted grown footprints from the last Apply pass.
func (c *CandidateDetection) Footprints() []*Footprint { return c.footprints }

// Apply runs one detection pass over the image pair. Raw footprints above the
// configured threshold are found on the detection target, then each is grown
// and validated by growCandidate. Per-footprint rejection is silent beyond
// diagnostics; accepting zero footprints is fatal and returns
// ErrNoCandidates.
func (c *CandidateDetection) Apply(templateImage, scienceImage *imgstack.MaskedImage) error {
	c.footprints = nil

	target := scienceImage
	name := "science"
	if c.onTemplate {
		target = templateImage
		name = "template"
	}
	raw, err := FindFootprints(target, c.threshold, c.npixMin)
	if err != nil {
		return fmt.Errorf("detect: detection on %s image failed: %w", name, err)
	}
	if c.verbose {
		log.Printf("detect: found %d total footprints in %s image above %.3f %s",
			len(raw), name, c.threshold.Value, c.threshold.Kind)
	}

	for _, fp := range raw {
		c.growCandidate(fp, c.growPix, templateImage, scienceImage)
	}

	if len(c.footprints) == 0 {
		return ErrNoCandidates
	}
	if c.verbose {
		log.Printf("detect: kept %d clean footprints above threshold %.3f",
			len(c.footprints), c.threshold.Value)
	}
	return nil
}

// growCandidate validates one raw footprint and appends the grown footprint
// to the candidate list on success. An oversize footprint is replaced by a
// single pixel at its bounding-box center before growth: large footprints are
// usually extended sources with plenty of signal, and using the core spends
// the pixel budget without discarding the area. The replacement never needs a
// second iteration, but the loop keeps the invariant explicit.
func (c *CandidateDetection) growCandidate(fp *Footprint, growPix int, templateImage, scienceImage *imgstack.MaskedImage) bool {
	for fp.Area() > c.npixMax {
		if c.verbose {
			log.Printf("detect: footprint has too many pixels: %d (max=%d), using core %v",
				fp.Area(), c.npixMax, fp.Centroid())
		}
		center := fp.Centroid()
		fp = FromBBox(image.Rectangle{Min: center, Max: center.Add(image.Point{X: 1, Y: 1})})
	}

	grown := fp.Dilate(growPix)
	box := grown.BBox()

	if !box.In(templateImage.BBox()) {
		if c.verbose {
			log.Printf("detect: footprint %v grown off image %v", box, templateImage.BBox())
		}
		return false
	}

	// Rectangular bounding-box extraction from both images; a masked pixel in
	// either rejects the candidate.
	for _, img := range [2]struct {
		im   *imgstack.MaskedImage
		role string
	}{{templateImage, "image to convolve"}, {scienceImage, "image not to convolve"}} {
		sub, err := img.im.SubImage(box)
		if err != nil {
			if c.verbose {
				log.Printf("detect: cannot extract footprint %v from %s: %v", box, img.role, err)
			}
			return false
		}
		bits, err := sub.OrBits(box)
		if err != nil {
			if c.verbose {
				log.Printf("detect: cannot scan mask of footprint %v in %s: %v", box, img.role, err)
			}
			return false
		}
		if bits&c.badBitMask != 0 {
			if c.verbose {
				log.Printf("detect: footprint %v has masked pixels (bits=%#04x) in %s",
					box, bits, img.role)
			}
			return false
		}
	}

	c.footprints = append(c.footprints, grown)
	return true
}
