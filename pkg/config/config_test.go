package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestDefaultConfigValid verifies that the shipped defaults pass validation.
func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default configuration failed validation: %v", err)
	}
	if cfg.Kernel.BasisType != BasisDelta {
		t.Errorf("Expected default basis %q, got %q", BasisDelta, cfg.Kernel.BasisType)
	}
	if len(cfg.Kernel.AlardSigGauss) != cfg.Kernel.AlardNGauss {
		t.Errorf("Default Gaussian widths (%d) do not match component count (%d)",
			len(cfg.Kernel.AlardSigGauss), cfg.Kernel.AlardNGauss)
	}
}

// TestSaveLoadRoundTrip verifies that a configuration survives a YAML
// round trip unchanged.
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Detection.FpGrowPix = 7
	cfg.Detection.BadMaskPlanes = []string{"BAD", "SAT"}
	cfg.Kernel.BasisType = BasisAlardLupton
	cfg.Kernel.Size = 15
	cfg.Regularization.Use = false
	cfg.Output.Verbose = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, loaded) {
		t.Errorf("Round-tripped configuration differs:\nsaved:  %+v\nloaded: %+v", cfg, loaded)
	}
}

// TestLoadMissingFile verifies that a missing path yields the defaults.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig on a missing file failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Error("Expected defaults for a missing config file")
	}
}

// TestLoadPartialFile verifies that an incomplete file overrides only the
// keys it names.
func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	body := "detection:\n  fpGrowPix: 3\nkernel:\n  size: 21\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Detection.FpGrowPix != 3 {
		t.Errorf("Expected fpGrowPix 3, got %d", cfg.Detection.FpGrowPix)
	}
	if cfg.Kernel.Size != 21 {
		t.Errorf("Expected kernel size 21, got %d", cfg.Kernel.Size)
	}
	def := DefaultConfig()
	if cfg.Detection.FpNpixMin != def.Detection.FpNpixMin {
		t.Errorf("Expected untouched fpNpixMin %d, got %d",
			def.Detection.FpNpixMin, cfg.Detection.FpNpixMin)
	}
}

// TestLoadInvalidConfig verifies that malformed or unusable files are
// rejected.
func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	garbled := filepath.Join(dir, "garbled.yaml")
	if err := os.WriteFile(garbled, []byte("kernel: [not a mapping"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadConfig(garbled); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	evenKernel := filepath.Join(dir, "even.yaml")
	if err := os.WriteFile(evenKernel, []byte("kernel:\n  size: 10\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadConfig(evenKernel); err == nil {
		t.Error("Expected validation error for even kernel size")
	}
}

// TestValidate verifies the individual validation rules.
func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"even kernel size", func(c *Config) { c.Kernel.Size = 8 }},
		{"zero kernel size", func(c *Config) { c.Kernel.Size = 0 }},
		{"zero npix min", func(c *Config) { c.Detection.FpNpixMin = 0 }},
		{"max below min", func(c *Config) { c.Detection.FpNpixMax = 2 }},
		{"negative grow", func(c *Config) { c.Detection.FpGrowPix = -1 }},
		{"negative spatial order", func(c *Config) { c.Kernel.SpatialKernelOrder = -1 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

// TestCreateDefaultConfigFile verifies the convenience writer.
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Error("Expected file contents to match the defaults")
	}
}
