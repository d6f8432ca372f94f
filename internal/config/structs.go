package config

// Config is the complete configuration of the nfscan application, loadable
// from configuration files, environment variables and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Preprocess PreprocessConfig `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Backends   BackendsConfig   `mapstructure:"backends" yaml:"backends" json:"backends"`
	Ensemble   EnsembleConfig   `mapstructure:"ensemble" yaml:"ensemble" json:"ensemble"`
	Extract    ExtractConfig    `mapstructure:"extract" yaml:"extract" json:"extract"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
}

// PreprocessConfig controls image preparation before recognition.
type PreprocessConfig struct {
	MinWidth        int     `mapstructure:"min_width" yaml:"min_width" json:"min_width"`
	MaxWidth        int     `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	Denoise         bool    `mapstructure:"denoise" yaml:"denoise" json:"denoise"`
	DenoiseStrength float64 `mapstructure:"denoise_strength" yaml:"denoise_strength" json:"denoise_strength"`
	ContrastMode    string  `mapstructure:"contrast_mode" yaml:"contrast_mode" json:"contrast_mode"`
	CLAHEClipLimit  float64 `mapstructure:"clahe_clip_limit" yaml:"clahe_clip_limit" json:"clahe_clip_limit"`
	CLAHETileSize   int     `mapstructure:"clahe_tile_size" yaml:"clahe_tile_size" json:"clahe_tile_size"`
	Deskew          bool    `mapstructure:"deskew" yaml:"deskew" json:"deskew"`
	DeskewMaxAngle  float64 `mapstructure:"deskew_max_angle" yaml:"deskew_max_angle" json:"deskew_max_angle"`
	AdaptiveEnhance bool    `mapstructure:"adaptive_enhance" yaml:"adaptive_enhance" json:"adaptive_enhance"`
}

// BackendsConfig selects and tunes the recognition engines.
type BackendsConfig struct {
	// Enabled lists the backends to register. Empty enables all.
	Enabled []string `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	Tesseract TesseractConfig `mapstructure:"tesseract" yaml:"tesseract" json:"tesseract"`
	Paddle    PaddleConfig    `mapstructure:"paddle" yaml:"paddle" json:"paddle"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote" json:"remote"`
}

// TesseractConfig configures the local Tesseract engine.
type TesseractConfig struct {
	Language string  `mapstructure:"language" yaml:"language" json:"language"`
	Weight   float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// PaddleConfig configures the ONNX detection/recognition engine.
type PaddleConfig struct {
	DetModelPath string  `mapstructure:"det_model_path" yaml:"det_model_path" json:"det_model_path"`
	RecModelPath string  `mapstructure:"rec_model_path" yaml:"rec_model_path" json:"rec_model_path"`
	DictPath     string  `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	Weight       float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// RemoteConfig configures the HTTP recognition sidecar.
type RemoteConfig struct {
	URL        string  `mapstructure:"url" yaml:"url" json:"url"`
	HealthURL  string  `mapstructure:"health_url" yaml:"health_url" json:"health_url"`
	TimeoutSec int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Weight     float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// EnsembleConfig tunes the merge of backend detections.
type EnsembleConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
}

// ExtractConfig toggles field validation.
type ExtractConfig struct {
	ValidateCNPJ bool `mapstructure:"validate_cnpj" yaml:"validate_cnpj" json:"validate_cnpj"`
	ValidateCPF  bool `mapstructure:"validate_cpf" yaml:"validate_cpf" json:"validate_cpf"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string `mapstructure:"host" yaml:"host" json:"host"`
	Port               int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin         string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB        int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec         int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
}
