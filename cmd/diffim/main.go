package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gonum.org/v1/gonum/stat"

	"diffim/internal/imageio"
	"diffim/pkg/basis"
	"diffim/pkg/config"
	"diffim/pkg/detect"
	"diffim/pkg/imgstack"
	"diffim/pkg/kernel"
	"diffim/pkg/spatialfit"
)

func main() {
	templatePath := flag.String("template", "", "Template image (the image to be convolved)")
	sciencePath := flag.String("science", "", "Science image (the image to match)")
	configPath := flag.String("config", "diffim.yaml", "Pipeline configuration file")
	diffPath := flag.String("diff", "", "Optional output path for the difference image (PNG)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *templatePath == "" || *sciencePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("PSF-MATCHING KERNEL FIT FOR DIFFERENCE IMAGING")
	fmt.Println("================================")

	planes := imgstack.DefaultPlanes()
	edgeBits, err := planes.BitMask("EDGE")
	if err != nil {
		log.Fatalf("Mask plane registry is missing EDGE: %v", err)
	}
	half := (cfg.Kernel.Size - 1) / 2

	fmt.Println("Step 1: Loading images...")
	templateImage, err := imageio.LoadGray(*templatePath, half, edgeBits)
	if err != nil {
		log.Fatalf("Failed to load template image: %v", err)
	}
	scienceImage, err := imageio.LoadGray(*sciencePath, half, edgeBits)
	if err != nil {
		log.Fatalf("Failed to load science image: %v", err)
	}
	if templateImage.BBox() != scienceImage.BBox() {
		log.Fatalf("Image geometry mismatch: template %v vs science %v",
			templateImage.BBox(), scienceImage.BBox())
	}
	fmt.Printf("Loaded %dx%d image pair\n", templateImage.Width(), templateImage.Height())

	fmt.Println("Step 2: Detecting kernel candidates...")
	startTime := time.Now()
	detection := detect.NewCandidateDetection(cfg, planes)
	if err := detection.Apply(templateImage, scienceImage); err != nil {
		log.Fatalf("Candidate detection failed: %v", err)
	}
	candidates := detection.Footprints()
	fmt.Printf("Accepted %d candidate footprints\n", len(candidates))

	fmt.Println("Step 3: Building kernel basis...")
	basisList, reg, err := basis.FromConfig(cfg)
	if err != nil {
		log.Fatalf("Basis construction failed: %v", err)
	}
	fmt.Printf("Built %s basis with %d kernels (regularized: %v)\n",
		cfg.Kernel.BasisType, len(basisList), reg != nil)

	fmt.Println("Step 4: Fitting spatial kernel model...")
	solver, err := spatialfit.New(basisList, spatialfit.Options{
		KernelOrder:     cfg.Kernel.SpatialKernelOrder,
		BackgroundOrder: cfg.Kernel.SpatialBgOrder,
		FitBackground:   cfg.Kernel.FitForBackground,
		VarianceWeight:  cfg.Kernel.VarianceWeight,
		Lambda:          cfg.Regularization.Lambda,
		Regularization:  reg,
		Verbose:         cfg.Output.Verbose,
	})
	if err != nil {
		log.Fatalf("Solver construction failed: %v", err)
	}
	for _, fp := range candidates {
		if err := solver.ProcessCandidate(fp, templateImage, scienceImage); err != nil {
			log.Fatalf("Candidate processing failed: %v", err)
		}
	}
	if err := solver.SolveLinearEquation(); err != nil {
		log.Fatalf("Spatial solve failed: %v", err)
	}
	spatialKernel, background, err := solver.GetSolutionPair()
	if err != nil {
		log.Fatalf("Solution packaging failed: %v", err)
	}
	fitTime := time.Since(startTime)

	cx := float64(templateImage.Width()) / 2
	cy := float64(templateImage.Height()) / 2
	fmt.Printf("\nFit completed in %.2f seconds\n", fitTime.Seconds())
	fmt.Printf("Candidates visited: %d, used: %d\n", solver.NCandidates(), solver.NUsed())
	fmt.Printf("Kernel sum at image center: %.6f\n", spatialKernel.SumAt(cx, cy))
	fmt.Printf("Background at image center: %.6f\n", background.Eval(cx, cy))

	if *diffPath != "" {
		fmt.Println("Step 5: Writing difference image...")
		writeDifference(templateImage, scienceImage, spatialKernel, background, edgeBits, *diffPath)
	}
}

// writeDifference convolves the template with the fitted kernel, subtracts
// the science image and background, writes the result, and prints residual
// statistics over the interior.
func writeDifference(templateImage, scienceImage *imgstack.MaskedImage,
	spatialKernel *kernel.LinearCombination, background *kernel.Poly2D,
	edgeBits uint16, path string) {

	conv := kernel.Convolve(templateImage, spatialKernel, edgeBits)
	box := templateImage.BBox()
	interior := kernel.Interior(box, spatialKernel.Basis[0].Width, spatialKernel.Basis[0].Height)

	diff := imgstack.New(box.Dx(), box.Dy())
	residuals := make([]float64, 0, interior.Dx()*interior.Dy())
	for y := interior.Min.Y; y < interior.Max.Y; y++ {
		for x := interior.Min.X; x < interior.Max.X; x++ {
			d := conv.Pixel(x-box.Min.X, y-box.Min.Y) + background.Eval(float64(x), float64(y)) -
				scienceImage.Pixel(x, y)
			diff.SetPixel(x-box.Min.X, y-box.Min.Y, d)
			residuals = append(residuals, d)
		}
	}

	mean, std := stat.MeanStdDev(residuals, nil)
	fmt.Printf("Residuals: mean %.4f, stddev %.4f over %d pixels\n", mean, std, len(residuals))

	if err := imageio.WriteGrayPNG(diff, path); err != nil {
		log.Fatalf("Failed to write difference image: %v", err)
	}
	fmt.Printf("Difference image saved to: %s\n", path)
}
