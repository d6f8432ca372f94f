package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name of configuration files, without
	// extension.
	ConfigFileName = "nfscan"

	// EnvPrefix prefixes environment variable overrides,
	// e.g. NFSCAN_SERVER_PORT.
	EnvPrefix = "NFSCAN"
)

// Loader reads configuration from files, environment variables and defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader uses the global viper instance so cobra flag bindings apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load reads configuration from the search paths and environment, falling
// back to defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile reads configuration from an explicit file path. An empty
// path falls back to the search paths.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}
	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configFile, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}
	l.v.AddConfigPath("/etc/nfscan")
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "nfscan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "nfscan"))
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("preprocess.min_width", d.Preprocess.MinWidth)
	l.v.SetDefault("preprocess.max_width", d.Preprocess.MaxWidth)
	l.v.SetDefault("preprocess.denoise", d.Preprocess.Denoise)
	l.v.SetDefault("preprocess.denoise_strength", d.Preprocess.DenoiseStrength)
	l.v.SetDefault("preprocess.contrast_mode", d.Preprocess.ContrastMode)
	l.v.SetDefault("preprocess.clahe_clip_limit", d.Preprocess.CLAHEClipLimit)
	l.v.SetDefault("preprocess.clahe_tile_size", d.Preprocess.CLAHETileSize)
	l.v.SetDefault("preprocess.deskew", d.Preprocess.Deskew)
	l.v.SetDefault("preprocess.deskew_max_angle", d.Preprocess.DeskewMaxAngle)
	l.v.SetDefault("preprocess.adaptive_enhance", d.Preprocess.AdaptiveEnhance)

	l.v.SetDefault("backends.tesseract.language", d.Backends.Tesseract.Language)
	l.v.SetDefault("backends.tesseract.weight", d.Backends.Tesseract.Weight)
	l.v.SetDefault("backends.paddle.weight", d.Backends.Paddle.Weight)
	l.v.SetDefault("backends.remote.timeout_sec", d.Backends.Remote.TimeoutSec)
	l.v.SetDefault("backends.remote.weight", d.Backends.Remote.Weight)

	l.v.SetDefault("ensemble.confidence_threshold", d.Ensemble.ConfidenceThreshold)

	l.v.SetDefault("extract.validate_cnpj", d.Extract.ValidateCNPJ)
	l.v.SetDefault("extract.validate_cpf", d.Extract.ValidateCPF)

	l.v.SetDefault("output.format", d.Output.Format)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownTimeoutSec)
}

// WriteDefault renders the default configuration as YAML at the given path.
// Used by `nfscan config init`.
func WriteDefault(path string) error {
	d := DefaultConfig()
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
