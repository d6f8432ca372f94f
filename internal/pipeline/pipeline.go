// Package pipeline wires quality assessment, preprocessing, the recognition
// ensemble, text normalization and field extraction into the end-to-end
// invoice scanning flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/docfiscal/nfscan/internal/backend"
	"github.com/docfiscal/nfscan/internal/config"
	"github.com/docfiscal/nfscan/internal/ensemble"
	"github.com/docfiscal/nfscan/internal/extract"
	"github.com/docfiscal/nfscan/internal/pdf"
	"github.com/docfiscal/nfscan/internal/preprocess"
	"github.com/docfiscal/nfscan/internal/quality"
	"github.com/docfiscal/nfscan/internal/textnorm"
)

var (
	// ErrUnsupportedFormat marks inputs whose file type is not a known
	// image or PDF format.
	ErrUnsupportedFormat = errors.New("unsupported input format")
	// ErrCorruptInput marks inputs that declare a supported format but
	// cannot be decoded.
	ErrCorruptInput = errors.New("corrupt input")
)

// Scoring weights of the final document confidence: the OCR term is the mean
// confidence of the filtered detections, the field term the extraction
// completeness ratio.
const (
	ocrTermWeight   = 0.7
	fieldTermWeight = 0.3
)

// Options adjust a single processing call.
type Options struct {
	// Backends restricts recognition to the named backends. Empty uses
	// all available ones.
	Backends []string
	// ConfidenceThreshold overrides the configured detection filter when
	// positive.
	ConfidenceThreshold float64
}

// Result is the full outcome of processing one image or PDF.
type Result struct {
	Document   *extract.Document        `json:"document"`
	Text       string                   `json:"text"`
	Detections []backend.Detection      `json:"detections"`
	Backends   []ensemble.BackendResult `json:"backends"`
	Quality    quality.Metrics          `json:"quality"`
	Pages      int                      `json:"pages"`
	Duration   time.Duration            `json:"duration_ns"`
}

// Pipeline holds the long-lived processing components. It is safe for
// concurrent use; per-request state lives on the stack.
type Pipeline struct {
	processor *preprocess.Processor
	enhancer  *preprocess.Enhancer
	ensemble  *ensemble.Ensemble
	extractor *extract.Extractor

	adaptiveEnhance     bool
	confidenceThreshold float64
}

// New builds a pipeline from the configuration, registering the configured
// backends lazily.
func New(cfg *config.Config) *Pipeline {
	return NewWithRegistry(cfg, cfg.BuildRegistry())
}

// NewWithRegistry builds a pipeline around an existing backend registry.
func NewWithRegistry(cfg *config.Config, reg *backend.Registry) *Pipeline {
	return &Pipeline{
		processor:           preprocess.NewProcessor(cfg.ToProcessorConfig()),
		enhancer:            preprocess.NewEnhancer(),
		ensemble:            ensemble.New(reg),
		extractor:           extract.New(cfg.ToExtractorConfig()),
		adaptiveEnhance:     cfg.Preprocess.AdaptiveEnhance,
		confidenceThreshold: cfg.Ensemble.ConfidenceThreshold,
	}
}

// ProcessImage runs the full flow over a decoded image.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	start := time.Now()
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrCorruptInput)
	}

	page, err := p.processPage(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	normalized := textnorm.Normalize(page.text)
	doc := p.extractor.Extract(normalized)
	doc.ConfidenceScore = Score(page.filtered, doc)

	slog.Info("image processed",
		"detections", len(page.merged),
		"filtered", len(page.filtered),
		"fields", doc.CamposExtraidos,
		"score", doc.ConfidenceScore,
		"duration", time.Since(start))

	return &Result{
		Document:   doc,
		Text:       normalized,
		Detections: page.filtered,
		Backends:   page.results,
		Quality:    page.quality,
		Pages:      1,
		Duration:   time.Since(start),
	}, nil
}

// ProcessImageFile decodes and processes an image file.
func (p *Pipeline) ProcessImageFile(ctx context.Context, path string, opts Options) (*Result, error) {
	img, err := imaging.Open(path)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptInput, path, err)
	}
	return p.ProcessImage(ctx, img, opts)
}

// ProgressFunc reports per-page progress of a multi-page source.
type ProgressFunc func(page, total int)

// ProcessPDF processes every page of a scanned PDF independently,
// concatenates the page texts in order and extracts fields once over the
// whole document.
func (p *Pipeline) ProcessPDF(ctx context.Context, path string, opts Options, progress ProgressFunc) (*Result, error) {
	start := time.Now()

	pages, err := pdf.PageImages(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no page images in %s", ErrCorruptInput, path)
	}

	var (
		texts       []string
		allFiltered []backend.Detection
		allResults  []ensemble.BackendResult
		firstQual   quality.Metrics
	)
	for i, pg := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, img := range pg.Images {
			page, err := p.processPage(ctx, img, opts)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", pg.Number, err)
			}
			texts = append(texts, page.text)
			allFiltered = append(allFiltered, page.filtered...)
			allResults = append(allResults, page.results...)
			if i == 0 {
				firstQual = page.quality
			}
		}
		if progress != nil {
			progress(i+1, len(pages))
		}
	}

	normalized := textnorm.Normalize(joinPages(texts))
	doc := p.extractor.Extract(normalized)
	doc.ConfidenceScore = Score(allFiltered, doc)

	slog.Info("pdf processed",
		"pages", len(pages),
		"detections", len(allFiltered),
		"fields", doc.CamposExtraidos,
		"score", doc.ConfidenceScore,
		"duration", time.Since(start))

	return &Result{
		Document:   doc,
		Text:       normalized,
		Detections: allFiltered,
		Backends:   allResults,
		Quality:    firstQual,
		Pages:      len(pages),
		Duration:   time.Since(start),
	}, nil
}

// pageOutcome carries the per-page intermediate results.
type pageOutcome struct {
	quality  quality.Metrics
	merged   []backend.Detection
	filtered []backend.Detection
	results  []ensemble.BackendResult
	text     string
}

func (p *Pipeline) processPage(ctx context.Context, img image.Image, opts Options) (*pageOutcome, error) {
	q := quality.Assess(img)
	processed := p.processor.Process(img)
	if p.adaptiveEnhance && q.Degraded() {
		processed = p.enhancer.AdaptiveEnhance(processed, q)
	}

	merged, results, err := p.ensemble.Recognize(ctx, processed, opts.Backends)
	if err != nil {
		return nil, err
	}

	threshold := p.confidenceThreshold
	if opts.ConfidenceThreshold > 0 {
		threshold = opts.ConfidenceThreshold
	}

	return &pageOutcome{
		quality:  q,
		merged:   merged,
		filtered: ensemble.FilterByConfidence(merged, threshold),
		results:  results,
		text:     ensemble.CombinedText(results),
	}, nil
}

// Score combines the mean confidence of the surviving detections with the
// field extraction ratio. No surviving detections zero the OCR term.
func Score(filtered []backend.Detection, doc *extract.Document) float64 {
	var ocrTerm float64
	if len(filtered) > 0 {
		var sum float64
		for _, d := range filtered {
			sum += d.Confidence
		}
		ocrTerm = sum / float64(len(filtered))
	}

	var fieldTerm float64
	if doc != nil && doc.CamposTotal > 0 {
		fieldTerm = float64(doc.CamposExtraidos) / float64(doc.CamposTotal)
	}

	score := ocrTermWeight*ocrTerm + fieldTermWeight*fieldTerm
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

func joinPages(texts []string) string {
	return strings.Join(texts, "\n")
}
