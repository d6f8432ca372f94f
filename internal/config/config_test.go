package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfiscal/nfscan/internal/backend"
	"github.com/docfiscal/nfscan/internal/preprocess"
)

func freshLoader(t *testing.T) *Loader {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	return NewLoader()
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Preprocess.MinWidth)
	assert.Equal(t, 4000, cfg.Preprocess.MaxWidth)
	assert.Equal(t, string(preprocess.ContrastAdaptive), cfg.Preprocess.ContrastMode)
	assert.InDelta(t, 0.5, cfg.Ensemble.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "por", cfg.Backends.Tesseract.Language)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted width band", func(c *Config) { c.Preprocess.MinWidth = 4000; c.Preprocess.MaxWidth = 1000 }},
		{"unknown contrast mode", func(c *Config) { c.Preprocess.ContrastMode = "maximum" }},
		{"threshold above one", func(c *Config) { c.Ensemble.ConfidenceThreshold = 1.5 }},
		{"negative weight", func(c *Config) { c.Backends.Paddle.Weight = -0.1 }},
		{"unknown backend", func(c *Config) { c.Backends.Enabled = []string{"easyocr"} }},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	l := freshLoader(t)
	t.Chdir(t.TempDir())

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultConfig().Server.MaxUploadMB, cfg.Server.MaxUploadMB)
}

func TestLoadWithFile(t *testing.T) {
	l := freshLoader(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "nfscan.yaml")
	content := `
log_level: debug
preprocess:
  min_width: 800
backends:
  tesseract:
    language: por+eng
server:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := l.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 800, cfg.Preprocess.MinWidth)
	assert.Equal(t, "por+eng", cfg.Backends.Tesseract.Language)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4000, cfg.Preprocess.MaxWidth)
}

func TestLoadWithMissingFile(t *testing.T) {
	l := freshLoader(t)
	_, err := l.LoadWithFile("/nonexistent/nfscan.yaml")
	require.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	l := freshLoader(t)
	t.Chdir(t.TempDir())
	t.Setenv("NFSCAN_SERVER_PORT", "9100")
	t.Setenv("NFSCAN_LOG_LEVEL", "warn")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfscan.yaml")
	require.NoError(t, WriteDefault(path))

	// Refuses to clobber an existing file.
	require.Error(t, WriteDefault(path))

	viper.Reset()
	t.Cleanup(viper.Reset)
	cfg, err := NewLoader().LoadWithFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestBuildRegistrySkipsUnconfiguredBackends(t *testing.T) {
	cfg := DefaultConfig()
	// No paddle models, no remote URL: only tesseract registers, and it
	// stays uninitialized until first use.
	reg := cfg.BuildRegistry()
	require.NotNil(t, reg)

	cfg.Backends.Enabled = []string{backend.NamePaddle}
	reg = cfg.BuildRegistry()
	assert.Empty(t, reg.AvailableNames())
}

func TestToProcessorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preprocess.MinWidth = 640
	cfg.Preprocess.ContrastMode = string(preprocess.ContrastAlways)

	pc := cfg.ToProcessorConfig()
	assert.Equal(t, 640, pc.MinWidth)
	assert.Equal(t, preprocess.ContrastAlways, pc.ContrastMode)
	assert.InDelta(t, 2.0, pc.CLAHEClipLimit, 1e-9)
}
