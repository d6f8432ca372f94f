package backend

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig controls the locally installed Tesseract engine.
type TesseractConfig struct {
	// Language is the traineddata language code, e.g. "por" or "por+eng".
	Language string
	// PageSegMode overrides the page segmentation mode. Zero keeps the
	// gosseract default (PSM_AUTO).
	PageSegMode gosseract.PageSegMode
	// Weight overrides the default engine weight when positive.
	Weight float64
}

// Tesseract recognizes text through the system Tesseract installation via
// gosseract. A fresh client is created per Detect call; gosseract clients are
// not safe for concurrent use.
type Tesseract struct {
	cfg       TesseractConfig
	weight    float64
	available bool
}

// NewTesseract probes the local Tesseract installation and reports an error
// when the engine or the requested language data is missing.
func NewTesseract(cfg TesseractConfig) (*Tesseract, error) {
	if cfg.Language == "" {
		cfg.Language = "por"
	}
	w := cfg.Weight
	if w <= 0 {
		w = DefaultTesseractWeight
	}
	t := &Tesseract{cfg: cfg, weight: w}

	c := gosseract.NewClient()
	defer c.Close()
	langs, err := c.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("probe tesseract: %w", err)
	}
	for _, want := range strings.Split(cfg.Language, "+") {
		if !containsString(langs, want) {
			return nil, fmt.Errorf("tesseract language %q not installed", want)
		}
	}
	t.available = true
	return t, nil
}

func (t *Tesseract) Name() string      { return NameTesseract }
func (t *Tesseract) Weight() float64   { return t.weight }
func (t *Tesseract) IsAvailable() bool { return t != nil && t.available }

// Detect runs word-level recognition and returns one Detection per word with
// its bounding box and a confidence in [0,1].
func (t *Tesseract) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := gosseract.NewClient()
	defer c.Close()
	if err := c.SetLanguage(strings.Split(t.cfg.Language, "+")...); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	if t.cfg.PageSegMode != 0 {
		if err := c.SetPageSegMode(t.cfg.PageSegMode); err != nil {
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	dets := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		dets = append(dets, Detection{
			Text:       word,
			Confidence: b.Confidence / 100.0,
			Box:        b.Box,
		})
	}
	return dets, nil
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
