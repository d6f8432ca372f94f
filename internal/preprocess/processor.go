// Package preprocess normalizes document photographs and scans into rasters
// suited to text recognition. The main pipeline is a fixed stage order
// (resize, grayscale, denoise, contrast, deskew); every stage is a total
// function, so a degenerate input passes through unchanged rather than
// failing the pipeline. Binarization and adaptive enhancement are separate
// entry points because some recognition backends prefer grayscale input.
package preprocess

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/docfiscal/nfscan/internal/quality"
)

// ProcessingError wraps a failure in a named preprocessing operation.
type ProcessingError struct {
	Operation string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("preprocess error in %s: %v", e.Operation, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ContrastMode selects when local histogram equalization runs.
type ContrastMode string

const (
	// ContrastAdaptive applies CLAHE only when quality assessment flags
	// low contrast.
	ContrastAdaptive ContrastMode = "adaptive"
	// ContrastAlways applies CLAHE unconditionally.
	ContrastAlways ContrastMode = "always"
	// ContrastOff disables contrast enhancement.
	ContrastOff ContrastMode = "off"
)

// Config holds preprocessing settings.
type Config struct {
	MinWidth        int
	MaxWidth        int
	Denoise         bool
	DenoiseStrength float64 // gaussian sigma scale, 0 disables
	ContrastMode    ContrastMode
	CLAHEClipLimit  float64
	CLAHETileSize   int // tiles per axis
	Deskew          bool
	DeskewMaxAngle  float64 // degrees; detected angles beyond this are ignored
}

// DefaultConfig returns preprocessing defaults tuned for photographed
// fiscal documents.
func DefaultConfig() Config {
	return Config{
		MinWidth:        1000,
		MaxWidth:        4000,
		Denoise:         true,
		DenoiseStrength: 10,
		ContrastMode:    ContrastAdaptive,
		CLAHEClipLimit:  2.0,
		CLAHETileSize:   8,
		Deskew:          true,
		DeskewMaxAngle:  10,
	}
}

// Processor runs the preprocessing pipeline.
type Processor struct {
	cfg Config
}

// NewProcessor creates a Processor with the given configuration. Zero or
// negative size bounds fall back to defaults.
func NewProcessor(cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = def.MinWidth
	}
	if cfg.MaxWidth < cfg.MinWidth {
		cfg.MaxWidth = def.MaxWidth
	}
	if cfg.CLAHETileSize <= 0 {
		cfg.CLAHETileSize = def.CLAHETileSize
	}
	if cfg.CLAHEClipLimit <= 0 {
		cfg.CLAHEClipLimit = def.CLAHEClipLimit
	}
	if cfg.ContrastMode == "" {
		cfg.ContrastMode = ContrastAdaptive
	}
	return &Processor{cfg: cfg}
}

// Config returns a copy of the processor configuration.
func (p *Processor) Config() Config { return p.cfg }

// Process runs the full pipeline and returns the recognition-ready raster.
func (p *Processor) Process(img image.Image) image.Image {
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return img
	}

	img = p.resize(img)
	gray := imaging.Grayscale(img)

	if p.cfg.Denoise && p.cfg.DenoiseStrength > 0 {
		gray = p.denoise(gray)
	}

	switch p.cfg.ContrastMode {
	case ContrastAlways:
		gray = CLAHE(gray, p.cfg.CLAHEClipLimit, p.cfg.CLAHETileSize)
	case ContrastAdaptive:
		if quality.Assess(gray).IsLowContrast {
			slog.Debug("applying CLAHE", "reason", "low contrast")
			gray = CLAHE(gray, p.cfg.CLAHEClipLimit, p.cfg.CLAHETileSize)
		}
	case ContrastOff:
	}

	if p.cfg.Deskew {
		gray = p.deskew(gray)
	}
	return gray
}

// resize scales the image so its width falls in [MinWidth, MaxWidth],
// preserving aspect ratio. Upscaling uses Catmull-Rom, downscaling uses box
// averaging.
func (p *Processor) resize(img image.Image) image.Image {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()

	var scale float64
	switch {
	case width < p.cfg.MinWidth:
		scale = float64(p.cfg.MinWidth) / float64(width)
	case width > p.cfg.MaxWidth:
		scale = float64(p.cfg.MaxWidth) / float64(width)
	default:
		return img
	}

	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newHeight < 1 {
		newHeight = 1
	}

	filter := imaging.CatmullRom
	if scale < 1 {
		filter = imaging.Box
	}
	slog.Debug("resizing image", "from_width", width, "to_width", newWidth)
	return imaging.Resize(img, newWidth, newHeight, filter)
}

// denoise smooths scan noise with a gaussian blur whose sigma is derived
// from the configured strength.
func (p *Processor) denoise(gray *image.NRGBA) *image.NRGBA {
	sigma := p.cfg.DenoiseStrength / 12.0
	if sigma <= 0 {
		return gray
	}
	return imaging.Blur(gray, sigma)
}
