package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/tension"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Window.Capacity)
	assert.Equal(t, 2.0, cfg.Window.EmergenceRatio)
	assert.Equal(t, 0.20, cfg.Window.EmergenceCeiling)
	assert.Equal(t, 3, cfg.Synthesis.ConvergenceMin)
	assert.Equal(t, 3, cfg.Synthesis.EmergenceMin)
	assert.Equal(t, 0, cfg.Synthesis.DivergenceMin)
	assert.Equal(t, tension.ScanAuto, cfg.Tension.ScanMode)
	assert.Equal(t, 500, cfg.Tension.ScanSizeThreshold)
	assert.Empty(t, cfg.Archive.Dir)
}

func TestLoadFile(t *testing.T) {
	t.Run("overlays_yaml_values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "muninn.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
window:
  capacity: 25
tension:
  scan_mode: global
  antonym_pairs:
    - [embraces, rejects]
archive:
  dir: /tmp/muninn-data
`), 0o644))

		cfg := Default()
		require.NoError(t, cfg.LoadFile(path))
		require.NoError(t, cfg.Validate())

		assert.Equal(t, 25, cfg.Window.Capacity)
		assert.Equal(t, tension.ScanGlobal, cfg.Tension.ScanMode)
		assert.Equal(t, [][2]string{{"embraces", "rejects"}}, cfg.Tension.AntonymPairs)
		assert.Equal(t, "/tmp/muninn-data", cfg.Archive.Dir)

		// Untouched sections keep their defaults.
		assert.Equal(t, 2.0, cfg.Window.EmergenceRatio)
		assert.Equal(t, 3, cfg.Synthesis.ConvergenceMin)
	})

	t.Run("missing_file_errors", func(t *testing.T) {
		cfg := Default()
		err := cfg.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading")
	})

	t.Run("malformed_yaml_errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("window: ["), 0o644))

		cfg := Default()
		err := cfg.LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing")
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MUNINN_WINDOW_CAPACITY", "42")
	t.Setenv("MUNINN_EMERGENCE_RATIO", "3.5")
	t.Setenv("MUNINN_TENSION_SCAN_MODE", "windowed")
	t.Setenv("MUNINN_ARCHIVE_DIR", "/var/lib/muninn")
	t.Setenv("MUNINN_DIVERGENCE_MIN", "4")
	t.Setenv("MUNINN_CONVERGENCE_MIN", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, 42, cfg.Window.Capacity)
	assert.Equal(t, 3.5, cfg.Window.EmergenceRatio)
	assert.Equal(t, tension.ScanWindowed, cfg.Tension.ScanMode)
	assert.Equal(t, "/var/lib/muninn", cfg.Archive.Dir)
	assert.Equal(t, 4, cfg.Synthesis.DivergenceMin)

	// Unparseable values are skipped, not applied as zero.
	assert.Equal(t, 3, cfg.Synthesis.ConvergenceMin)
}

func TestValidate(t *testing.T) {
	t.Run("reports_window_errors", func(t *testing.T) {
		cfg := Default()
		cfg.Window.Capacity = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "window capacity")
	})

	t.Run("reports_tension_errors", func(t *testing.T) {
		cfg := Default()
		cfg.Tension.ScanMode = "sideways"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scan mode")
	})
}

func TestTensionConfig_TableFallback(t *testing.T) {
	cfg := Default()
	out := cfg.TensionConfig()

	// Empty YAML tables mean the built-in ones, never a disabled
	// detector.
	assert.NotEmpty(t, out.AntonymPairs)
	assert.NotEmpty(t, out.NegationMarkers)
	assert.NotEmpty(t, out.PositiveTerms)
	assert.NotEmpty(t, out.NegativeTerms)
	require.NoError(t, out.Validate())

	cfg.Tension.AntonymPairs = [][2]string{{"embraces", "rejects"}}
	out = cfg.TensionConfig()
	assert.Equal(t, [][2]string{{"embraces", "rejects"}}, out.AntonymPairs)
}
