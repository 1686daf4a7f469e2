package guard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults for the tunable guard heuristics. The block threshold and
// severity buckets were carried over from the original deployment; treat
// them as operating parameters, not invariants.
const (
	DefaultMaxFieldLength = 2000
	DefaultBlockThreshold = 3
	DefaultContextWindow  = 30
	DefaultLowSeverityMax = 2
	DefaultMedSeverityMax = 5
)

// Config carries the tunable constants for the sanitizer and quality gate.
// All heuristic thresholds live here rather than as literals in the
// engines, so deployments can adjust them without a code change.
type Config struct {
	// MaxFieldLength is the default truncation length for sanitized fields
	// when the caller does not pass an explicit limit.
	MaxFieldLength int `yaml:"max_field_length"`

	// BlockThreshold is the number of sentinel tokens above which the whole
	// input is treated as adversarial and rejected outright.
	BlockThreshold int `yaml:"block_threshold"`

	// ContextWindow is how many characters of surrounding text the quality
	// gate includes on each side of a filler match.
	ContextWindow int `yaml:"context_window"`

	// LowSeverityMax and MediumSeverityMax bound the severity buckets:
	// 0 matches -> None, <=Low -> Low, <=Medium -> Medium, else High.
	LowSeverityMax    int `yaml:"low_severity_max"`
	MediumSeverityMax int `yaml:"medium_severity_max"`

	// ExtraInjectionPatterns and ExtraWarningPatterns extend the built-in
	// pattern library with operator-supplied regexes.
	ExtraInjectionPatterns []string `yaml:"extra_injection_patterns"`
	ExtraWarningPatterns   []string `yaml:"extra_warning_patterns"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MaxFieldLength:    DefaultMaxFieldLength,
		BlockThreshold:    DefaultBlockThreshold,
		ContextWindow:     DefaultContextWindow,
		LowSeverityMax:    DefaultLowSeverityMax,
		MediumSeverityMax: DefaultMedSeverityMax,
	}
}

// Validate checks that the thresholds are internally consistent
func (c Config) Validate() error {
	if c.MaxFieldLength <= 0 {
		return fmt.Errorf("max_field_length must be positive, got %d", c.MaxFieldLength)
	}
	if c.BlockThreshold < 1 {
		return fmt.Errorf("block_threshold must be at least 1, got %d", c.BlockThreshold)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("context_window cannot be negative, got %d", c.ContextWindow)
	}
	if c.LowSeverityMax < 1 || c.MediumSeverityMax <= c.LowSeverityMax {
		return fmt.Errorf("severity buckets must satisfy 1 <= low < medium, got low=%d medium=%d",
			c.LowSeverityMax, c.MediumSeverityMax)
	}
	return nil
}

// LoadConfig reads a YAML tuning file and overlays it on the defaults.
// Zero-valued fields in the file keep their defaults. A malformed file or
// inconsistent thresholds is a startup error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read guard config: %w", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("failed to parse guard config: %w", err)
	}

	cfg := DefaultConfig()
	if overlay.MaxFieldLength != 0 {
		cfg.MaxFieldLength = overlay.MaxFieldLength
	}
	if overlay.BlockThreshold != 0 {
		cfg.BlockThreshold = overlay.BlockThreshold
	}
	if overlay.ContextWindow != 0 {
		cfg.ContextWindow = overlay.ContextWindow
	}
	if overlay.LowSeverityMax != 0 {
		cfg.LowSeverityMax = overlay.LowSeverityMax
	}
	if overlay.MediumSeverityMax != 0 {
		cfg.MediumSeverityMax = overlay.MediumSeverityMax
	}
	cfg.ExtraInjectionPatterns = overlay.ExtraInjectionPatterns
	cfg.ExtraWarningPatterns = overlay.ExtraWarningPatterns

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
