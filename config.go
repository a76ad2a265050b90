package srcompare

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Config drives a comparison build.
type Config struct {
	// Original is the low-resolution multi-band scene.
	Original string `json:"original"`
	// SRTCI, SRIRP and SRNDVI are the 8-bit true color, false color and NDVI
	// products of the super-resolution model. SRTCI also defines the output grid.
	SRTCI  string `json:"srTCI"`
	SRIRP  string `json:"srIRP"`
	SRNDVI string `json:"srNDVI"`
	// Output is the HTML file to write.
	Output string `json:"output"`

	MaxDim      int        `json:"maxDim"`
	JPEGQuality int        `json:"jpegQuality"`
	LowPct      float64    `json:"lowPct"`
	HighPct     float64    `json:"highPct"`
	Resampling  Resampling `json:"resampling"`

	Title         string `json:"title,omitempty"`
	Location      string `json:"location,omitempty"`
	OriginalLabel string `json:"originalLabel,omitempty"`
	EnhancedLabel string `json:"enhancedLabel,omitempty"`
	OriginalDate  string `json:"originalDate,omitempty"`
	EnhancedDate  string `json:"enhancedDate,omitempty"`
}

// DefaultConfig returns the default settings with no paths set.
func DefaultConfig() Config {
	return Config{
		Output:        "comparison.html",
		MaxDim:        2048,
		JPEGQuality:   88,
		LowPct:        DefaultLowPct,
		HighPct:       DefaultHighPct,
		Resampling:    Nearest,
		Title:         "Super-Resolution Comparison",
		OriginalLabel: "Original",
		EnhancedLabel: "Super-Resolved",
	}
}

// LoadConfig reads a YAML (or JSON) file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every input is set and the numeric settings are in range.
func (c Config) Validate() error {
	for _, p := range []struct{ name, value string }{
		{"original", c.Original},
		{"srTCI", c.SRTCI},
		{"srIRP", c.SRIRP},
		{"srNDVI", c.SRNDVI},
		{"output", c.Output},
	} {
		if p.value == "" {
			return fmt.Errorf("config: %s path is required", p.name)
		}
	}
	if c.MaxDim <= 0 {
		return fmt.Errorf("config: maxDim must be positive, got %d", c.MaxDim)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("config: jpegQuality must be in [1, 100], got %d", c.JPEGQuality)
	}
	if c.LowPct < 0 || c.HighPct > 100 || c.LowPct >= c.HighPct {
		return fmt.Errorf("config: need 0 <= lowPct < highPct <= 100, got %g and %g", c.LowPct, c.HighPct)
	}
	return nil
}
