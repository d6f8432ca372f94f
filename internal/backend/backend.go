// Package backend defines the recognition-backend capability and its
// concrete implementations. A backend is an opaque text-detection service:
// image in, detections out. Backends are expensive to initialize, so the
// registry constructs them lazily on first use and shares them across
// requests; after construction they are read-only.
package backend

import (
	"context"
	"errors"
	"image"
)

// ErrNoBackendAvailable indicates that every configured backend failed to
// initialize or was excluded from the request.
var ErrNoBackendAvailable = errors.New("no recognition backend available")

// Detection is a single recognized text fragment. Confidence is in [0,1].
// Box may be the zero rectangle when the engine reports no geometry.
type Detection struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// HasBox reports whether the detection carries usable geometry.
func (d Detection) HasBox() bool {
	return d.Box.Dx() > 0 && d.Box.Dy() > 0
}

// Backend is the recognition capability contract.
type Backend interface {
	// Name identifies the backend in results and logs.
	Name() string
	// Weight is the fixed reliability weight used for merge tie-breaking.
	Weight() float64
	// IsAvailable reports whether the engine initialized successfully.
	IsAvailable() bool
	// Detect runs text recognition on the image.
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Well-known backend names.
const (
	NameTesseract = "tesseract"
	NamePaddle    = "paddle"
	NameRemote    = "remote"
)

// Default reliability weights, matching the relative accuracy of the
// engines on Portuguese fiscal documents. Used for tie-breaking only,
// never for filtering.
const (
	DefaultTesseractWeight = 0.2
	DefaultPaddleWeight    = 0.4
	DefaultRemoteWeight    = 0.4

	// fallbackWeight applies to backends registered without a weight.
	fallbackWeight = 0.3
)
