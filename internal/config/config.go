package config

import (
	"fmt"
	"time"

	"github.com/docfiscal/nfscan/internal/backend"
	"github.com/docfiscal/nfscan/internal/ensemble"
	"github.com/docfiscal/nfscan/internal/extract"
	"github.com/docfiscal/nfscan/internal/preprocess"
)

// DefaultConfig returns the built-in defaults, matching the constants used
// by the processing packages.
func DefaultConfig() Config {
	pp := preprocess.DefaultConfig()
	return Config{
		LogLevel: "info",
		Preprocess: PreprocessConfig{
			MinWidth:        pp.MinWidth,
			MaxWidth:        pp.MaxWidth,
			Denoise:         pp.Denoise,
			DenoiseStrength: pp.DenoiseStrength,
			ContrastMode:    string(pp.ContrastMode),
			CLAHEClipLimit:  pp.CLAHEClipLimit,
			CLAHETileSize:   pp.CLAHETileSize,
			Deskew:          pp.Deskew,
			DeskewMaxAngle:  pp.DeskewMaxAngle,
			AdaptiveEnhance: true,
		},
		Backends: BackendsConfig{
			Tesseract: TesseractConfig{
				Language: "por",
				Weight:   backend.DefaultTesseractWeight,
			},
			Paddle: PaddleConfig{
				Weight: backend.DefaultPaddleWeight,
			},
			Remote: RemoteConfig{
				TimeoutSec: 30,
				Weight:     backend.DefaultRemoteWeight,
			},
		},
		Ensemble: EnsembleConfig{
			ConfidenceThreshold: ensemble.DefaultConfidenceThreshold,
		},
		Extract: ExtractConfig{
			ValidateCNPJ: true,
			ValidateCPF:  true,
		},
		Output: OutputConfig{
			Format: "json",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			CORSOrigin:         "*",
			MaxUploadMB:        20,
			TimeoutSec:         120,
			ShutdownTimeoutSec: 10,
		},
	}
}

// Validate checks option ranges and enumerations.
func (c *Config) Validate() error {
	if c.Preprocess.MinWidth <= 0 || c.Preprocess.MaxWidth < c.Preprocess.MinWidth {
		return fmt.Errorf("preprocess: width band [%d, %d] is invalid",
			c.Preprocess.MinWidth, c.Preprocess.MaxWidth)
	}
	switch preprocess.ContrastMode(c.Preprocess.ContrastMode) {
	case preprocess.ContrastAdaptive, preprocess.ContrastAlways, preprocess.ContrastOff:
	default:
		return fmt.Errorf("preprocess: unknown contrast mode %q", c.Preprocess.ContrastMode)
	}
	if t := c.Ensemble.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("ensemble: confidence threshold %v outside [0, 1]", t)
	}
	for _, w := range []struct {
		name   string
		weight float64
	}{
		{"tesseract", c.Backends.Tesseract.Weight},
		{"paddle", c.Backends.Paddle.Weight},
		{"remote", c.Backends.Remote.Weight},
	} {
		if w.weight < 0 || w.weight > 1 {
			return fmt.Errorf("backends: %s weight %v outside [0, 1]", w.name, w.weight)
		}
	}
	for _, name := range c.Backends.Enabled {
		switch name {
		case backend.NameTesseract, backend.NamePaddle, backend.NameRemote:
		default:
			return fmt.Errorf("backends: unknown backend %q", name)
		}
	}
	switch c.Output.Format {
	case "json", "text":
	default:
		return fmt.Errorf("output: unknown format %q", c.Output.Format)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server: max upload %d MB must be positive", c.Server.MaxUploadMB)
	}
	return nil
}

// ToProcessorConfig maps the preprocessing section onto the processor's
// own configuration type.
func (c *Config) ToProcessorConfig() preprocess.Config {
	return preprocess.Config{
		MinWidth:        c.Preprocess.MinWidth,
		MaxWidth:        c.Preprocess.MaxWidth,
		Denoise:         c.Preprocess.Denoise,
		DenoiseStrength: c.Preprocess.DenoiseStrength,
		ContrastMode:    preprocess.ContrastMode(c.Preprocess.ContrastMode),
		CLAHEClipLimit:  c.Preprocess.CLAHEClipLimit,
		CLAHETileSize:   c.Preprocess.CLAHETileSize,
		Deskew:          c.Preprocess.Deskew,
		DeskewMaxAngle:  c.Preprocess.DeskewMaxAngle,
	}
}

// ToExtractorConfig maps the extraction section.
func (c *Config) ToExtractorConfig() extract.Config {
	return extract.Config{
		ValidateCNPJ: c.Extract.ValidateCNPJ,
		ValidateCPF:  c.Extract.ValidateCPF,
	}
}

// ToTesseractConfig maps the tesseract backend section.
func (c *Config) ToTesseractConfig() backend.TesseractConfig {
	return backend.TesseractConfig{
		Language: c.Backends.Tesseract.Language,
		Weight:   c.Backends.Tesseract.Weight,
	}
}

// ToPaddleConfig maps the paddle backend section.
func (c *Config) ToPaddleConfig() backend.PaddleConfig {
	return backend.PaddleConfig{
		DetModelPath: c.Backends.Paddle.DetModelPath,
		RecModelPath: c.Backends.Paddle.RecModelPath,
		DictPath:     c.Backends.Paddle.DictPath,
		Weight:       c.Backends.Paddle.Weight,
	}
}

// ToRemoteConfig maps the remote backend section.
func (c *Config) ToRemoteConfig() backend.RemoteConfig {
	return backend.RemoteConfig{
		URL:       c.Backends.Remote.URL,
		HealthURL: c.Backends.Remote.HealthURL,
		Timeout:   time.Duration(c.Backends.Remote.TimeoutSec) * time.Second,
		Weight:    c.Backends.Remote.Weight,
	}
}

// BuildRegistry registers the configured backends without initializing
// them; engines load lazily on first use.
func (c *Config) BuildRegistry() *backend.Registry {
	reg := backend.NewRegistry()
	enabled := func(name string) bool {
		if len(c.Backends.Enabled) == 0 {
			return true
		}
		for _, n := range c.Backends.Enabled {
			if n == name {
				return true
			}
		}
		return false
	}

	if enabled(backend.NameTesseract) {
		cfg := c.ToTesseractConfig()
		reg.Register(backend.NameTesseract, cfg.Weight, func() (backend.Backend, error) {
			return backend.NewTesseract(cfg)
		})
	}
	if enabled(backend.NamePaddle) && c.Backends.Paddle.DetModelPath != "" {
		cfg := c.ToPaddleConfig()
		reg.Register(backend.NamePaddle, cfg.Weight, func() (backend.Backend, error) {
			return backend.NewPaddle(cfg)
		})
	}
	if enabled(backend.NameRemote) && c.Backends.Remote.URL != "" {
		cfg := c.ToRemoteConfig()
		reg.Register(backend.NameRemote, cfg.Weight, func() (backend.Backend, error) {
			return backend.NewRemote(cfg)
		})
	}
	return reg
}
