// Package config handles Muninn configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. Defaults (Default)
//  2. YAML file (LoadFile)
//  3. Environment variables with the MUNINN_ prefix (ApplyEnv)
//
// Environment Variables:
//
//   - MUNINN_WINDOW_CAPACITY        - sliding window size (default 10)
//   - MUNINN_EMERGENCE_RATIO        - recent/overall rate ratio (default 2.0)
//   - MUNINN_EMERGENCE_CEILING      - overall share ceiling (default 0.20)
//   - MUNINN_CONVERGENCE_MIN        - convergence co-occurrence threshold (default 3)
//   - MUNINN_EMERGENCE_MIN          - emergence disjoint-pair threshold (default 3)
//   - MUNINN_DIVERGENCE_MIN         - divergence prominence floor (default 0: top quartile)
//   - MUNINN_TENSION_SCAN_MODE      - global | windowed | auto (default auto)
//   - MUNINN_TENSION_SCAN_THRESHOLD - auto-mode corpus size cutoff (default 500)
//   - MUNINN_TENSION_WORKERS        - global scan worker bound (default GOMAXPROCS)
//   - MUNINN_ARCHIVE_DIR            - badger directory for the run archive
//
// The antonym and polarity tables are YAML-only: they are lists, which
// don't map cleanly onto environment variables.
//
// Example YAML:
//
//	window:
//	  capacity: 25
//	tension:
//	  scan_mode: global
//	  antonym_pairs:
//	    - [embraces, rejects]
//
// Example Usage:
//
//	cfg := config.Default()
//	if path != "" {
//		if err := cfg.LoadFile(path); err != nil {
//			log.Fatal(err)
//		}
//	}
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/muninn/pkg/cursor"
	"github.com/orneryd/muninn/pkg/synthesis"
	"github.com/orneryd/muninn/pkg/tension"
)

// Config holds all Muninn configuration, organized by component.
type Config struct {
	// Window configures the stream cursor.
	Window WindowConfig `yaml:"window"`

	// Synthesis configures insight thresholds.
	Synthesis SynthesisConfig `yaml:"synthesis"`

	// Tension configures contradiction detection.
	Tension TensionConfig `yaml:"tension"`

	// Archive configures optional report persistence. Empty Dir with
	// InMemory false means no archive: nothing survives the run.
	Archive ArchiveConfig `yaml:"archive"`
}

// WindowConfig mirrors cursor.Config in YAML form.
type WindowConfig struct {
	Capacity         int     `yaml:"capacity"`
	EmergenceRatio   float64 `yaml:"emergence_ratio"`
	EmergenceCeiling float64 `yaml:"emergence_ceiling"`
}

// SynthesisConfig mirrors synthesis.Config in YAML form.
type SynthesisConfig struct {
	ConvergenceMin int `yaml:"convergence_min"`
	EmergenceMin   int `yaml:"emergence_min"`
	DivergenceMin  int `yaml:"divergence_min"`
}

// TensionConfig mirrors tension.Config in YAML form. Empty tables fall
// back to the built-in defaults rather than disabling detection.
type TensionConfig struct {
	ScanMode          string      `yaml:"scan_mode"`
	ScanSizeThreshold int         `yaml:"scan_size_threshold"`
	Workers           int         `yaml:"workers"`
	AntonymPairs      [][2]string `yaml:"antonym_pairs,omitempty"`
	NegationMarkers   []string    `yaml:"negation_markers,omitempty"`
	PositiveTerms     []string    `yaml:"positive_terms,omitempty"`
	NegativeTerms     []string    `yaml:"negative_terms,omitempty"`
}

// ArchiveConfig configures the optional run archive.
type ArchiveConfig struct {
	// Dir is the badger data directory. Empty disables the persistent
	// archive.
	Dir string `yaml:"dir"`
	// InMemory keeps the archive in process memory (mostly for tests).
	InMemory bool `yaml:"in_memory"`
}

// Default returns the standard configuration.
func Default() *Config {
	cur := cursor.DefaultConfig()
	syn := synthesis.DefaultConfig()
	ten := tension.DefaultConfig()
	return &Config{
		Window: WindowConfig{
			Capacity:         cur.WindowCapacity,
			EmergenceRatio:   cur.EmergenceRatio,
			EmergenceCeiling: cur.EmergenceCeiling,
		},
		Synthesis: SynthesisConfig{
			ConvergenceMin: syn.ConvergenceMin,
			EmergenceMin:   syn.EmergenceMin,
			DivergenceMin:  syn.DivergenceMin,
		},
		Tension: TensionConfig{
			ScanMode:          ten.ScanMode,
			ScanSizeThreshold: ten.ScanSizeThreshold,
		},
	}
}

// LoadFile overlays YAML configuration from path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays MUNINN_-prefixed environment variables onto c.
// Unset variables leave the current value untouched. Unparseable values
// are ignored so a stray variable never blocks startup; Validate still
// catches out-of-range results.
func (c *Config) ApplyEnv() {
	envInt("MUNINN_WINDOW_CAPACITY", &c.Window.Capacity)
	envFloat("MUNINN_EMERGENCE_RATIO", &c.Window.EmergenceRatio)
	envFloat("MUNINN_EMERGENCE_CEILING", &c.Window.EmergenceCeiling)
	envInt("MUNINN_CONVERGENCE_MIN", &c.Synthesis.ConvergenceMin)
	envInt("MUNINN_EMERGENCE_MIN", &c.Synthesis.EmergenceMin)
	envInt("MUNINN_DIVERGENCE_MIN", &c.Synthesis.DivergenceMin)
	envString("MUNINN_TENSION_SCAN_MODE", &c.Tension.ScanMode)
	envInt("MUNINN_TENSION_SCAN_THRESHOLD", &c.Tension.ScanSizeThreshold)
	envInt("MUNINN_TENSION_WORKERS", &c.Tension.Workers)
	envString("MUNINN_ARCHIVE_DIR", &c.Archive.Dir)
}

// Validate checks every section, returning the first descriptive error.
// Called at engine construction: an invalid configuration means the run
// never starts.
func (c *Config) Validate() error {
	if err := c.CursorConfig().Validate(); err != nil {
		return err
	}
	if err := c.SynthesisConfig().Validate(); err != nil {
		return err
	}
	if err := c.TensionConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// CursorConfig converts the window section to the cursor package form.
func (c *Config) CursorConfig() *cursor.Config {
	return &cursor.Config{
		WindowCapacity:   c.Window.Capacity,
		EmergenceRatio:   c.Window.EmergenceRatio,
		EmergenceCeiling: c.Window.EmergenceCeiling,
	}
}

// SynthesisConfig converts the synthesis section to the synthesis
// package form.
func (c *Config) SynthesisConfig() *synthesis.Config {
	return &synthesis.Config{
		ConvergenceMin: c.Synthesis.ConvergenceMin,
		EmergenceMin:   c.Synthesis.EmergenceMin,
		DivergenceMin:  c.Synthesis.DivergenceMin,
	}
}

// TensionConfig converts the tension section to the tension package
// form, filling empty tables from the built-in defaults.
func (c *Config) TensionConfig() *tension.Config {
	out := tension.DefaultConfig()
	out.ScanMode = c.Tension.ScanMode
	out.ScanSizeThreshold = c.Tension.ScanSizeThreshold
	out.Workers = c.Tension.Workers
	if len(c.Tension.AntonymPairs) > 0 {
		out.AntonymPairs = c.Tension.AntonymPairs
	}
	if len(c.Tension.NegationMarkers) > 0 {
		out.NegationMarkers = c.Tension.NegationMarkers
	}
	if len(c.Tension.PositiveTerms) > 0 {
		out.PositiveTerms = c.Tension.PositiveTerms
	}
	if len(c.Tension.NegativeTerms) > 0 {
		out.NegativeTerms = c.Tension.NegativeTerms
	}
	return out
}

func envString(name string, target *string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

func envInt(name string, target *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envFloat(name string, target *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}
