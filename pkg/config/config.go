// Package config provides configuration loading and management for the
// difference-imaging pipeline. It handles loading configuration from YAML
// files and provides default values matching the standard reduction policy.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Basis type names accepted by Kernel.BasisType.
const (
	BasisDelta       = "delta"
	BasisAlardLupton = "alard-lupton"
)

// Config represents the pipeline configuration loaded from YAML.
type Config struct {
	// Detection parameters control candidate footprint detection and growth.
	Detection struct {
		// BadMaskPlanes lists the mask planes whose pixels disqualify a
		// candidate footprint. Unknown names are logged and skipped.
		BadMaskPlanes []string `yaml:"badMaskPlanes"`

		// FpNpixMin is the minimum pixel count for a raw detection footprint.
		FpNpixMin int `yaml:"fpNpixMin"`

		// FpNpixMax is the pixel count above which a footprint is replaced by
		// its bounding-box core before growth.
		FpNpixMax int `yaml:"fpNpixMax"`

		// FpGrowPix is the Manhattan growth margin in pixels.
		FpGrowPix int `yaml:"fpGrowPix"`

		// DetOnTemplate selects the detection target: the template image when
		// true, the science image otherwise.
		DetOnTemplate bool `yaml:"detOnTemplate"`

		// DetThreshold is the detection significance threshold.
		DetThreshold float64 `yaml:"detThreshold"`

		// DetThresholdType interprets DetThreshold: "value", "stdev" or
		// "variance".
		DetThresholdType string `yaml:"detThresholdType"`
	} `yaml:"detection"`

	// Kernel parameters select the basis family and the spatial model.
	Kernel struct {
		// BasisType is "delta" or "alard-lupton".
		BasisType string `yaml:"basisType"`

		// Size is the kernel footprint side length; must be odd.
		Size int `yaml:"size"`

		// AlardNGauss is the number of Gaussian components of the
		// Alard-Lupton basis.
		AlardNGauss int `yaml:"alardNGauss"`

		// AlardSigGauss holds the Gaussian widths, one per component.
		AlardSigGauss []float64 `yaml:"alardSigGauss"`

		// AlardDegGauss holds the polynomial degree per component.
		AlardDegGauss []int `yaml:"alardDegGauss"`

		// SpatialKernelOrder is the order of the per-basis spatial
		// polynomial over image position.
		SpatialKernelOrder int `yaml:"spatialKernelOrder"`

		// SpatialBgOrder is the order of the spatially varying background.
		SpatialBgOrder int `yaml:"spatialBgOrder"`

		// FitForBackground enables the background term in the fit.
		FitForBackground bool `yaml:"fitForBackground"`

		// VarianceWeight enables inverse-variance weighting of the
		// per-candidate design matrices.
		VarianceWeight bool `yaml:"varianceWeight"`
	} `yaml:"kernel"`

	// Regularization parameters apply only to the delta basis.
	Regularization struct {
		// Use enables the finite-difference penalty.
		Use bool `yaml:"use"`

		// Lambda scales the penalty added to the normal equations.
		Lambda float64 `yaml:"lambda"`

		// Order is the derivative order minus one to penalize (0..2).
		Order int `yaml:"order"`

		// BoundaryStyle is "unwrapped", "wrapped" or "tapered".
		BoundaryStyle string `yaml:"boundaryStyle"`

		// DifferenceStyle is "forward" or "central".
		DifferenceStyle string `yaml:"differenceStyle"`
	} `yaml:"regularization"`

	// Output parameters.
	Output struct {
		// Verbose enables per-candidate diagnostic logging.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values matching the
// standard PSF-matching policy.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Detection.BadMaskPlanes = []string{"BAD", "SAT", "CR", "EDGE", "NO_DATA"}
	cfg.Detection.FpNpixMin = 5
	cfg.Detection.FpNpixMax = 500
	cfg.Detection.FpGrowPix = 5
	cfg.Detection.DetOnTemplate = true
	cfg.Detection.DetThreshold = 10.0
	cfg.Detection.DetThresholdType = "stdev"

	cfg.Kernel.BasisType = BasisDelta
	cfg.Kernel.Size = 11
	cfg.Kernel.AlardNGauss = 3
	cfg.Kernel.AlardSigGauss = []float64{0.7, 1.5, 3.0}
	cfg.Kernel.AlardDegGauss = []int{4, 2, 2}
	cfg.Kernel.SpatialKernelOrder = 1
	cfg.Kernel.SpatialBgOrder = 1
	cfg.Kernel.FitForBackground = true
	cfg.Kernel.VarianceWeight = true

	cfg.Regularization.Use = true
	cfg.Regularization.Lambda = 1.0
	cfg.Regularization.Order = 1
	cfg.Regularization.BoundaryStyle = "tapered"
	cfg.Regularization.DifferenceStyle = "central"

	cfg.Output.Verbose = false

	return cfg
}

// Validate reports configuration values no pipeline stage can work with.
func (cfg *Config) Validate() error {
	if cfg.Kernel.Size <= 0 || cfg.Kernel.Size%2 == 0 {
		return fmt.Errorf("config: kernel size must be odd and positive, got %d", cfg.Kernel.Size)
	}
	if cfg.Detection.FpNpixMin <= 0 {
		return fmt.Errorf("config: fpNpixMin must be positive, got %d", cfg.Detection.FpNpixMin)
	}
	if cfg.Detection.FpNpixMax < cfg.Detection.FpNpixMin {
		return fmt.Errorf("config: fpNpixMax %d below fpNpixMin %d",
			cfg.Detection.FpNpixMax, cfg.Detection.FpNpixMin)
	}
	if cfg.Detection.FpGrowPix < 0 {
		return fmt.Errorf("config: fpGrowPix must be non-negative, got %d", cfg.Detection.FpGrowPix)
	}
	if cfg.Kernel.SpatialKernelOrder < 0 || cfg.Kernel.SpatialBgOrder < 0 {
		return fmt.Errorf("config: spatial orders must be non-negative")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
