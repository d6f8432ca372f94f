package ensemble

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfiscal/nfscan/internal/backend"
)

func det(text string, conf float64, box image.Rectangle) backend.Detection {
	return backend.Detection{Text: text, Confidence: conf, Box: box}
}

func TestMergeConsensusWinsOverSingleHighConfidence(t *testing.T) {
	box := image.Rect(10, 10, 110, 40)
	results := []BackendResult{
		{Backend: "paddle", Weight: 0.4, Detections: []backend.Detection{det("12345", 0.8, box)}},
		{Backend: "remote", Weight: 0.4, Detections: []backend.Detection{det("12345", 0.7, box)}},
		{Backend: "tesseract", Weight: 0.2, Detections: []backend.Detection{det("IZ345", 0.9, box)}},
	}

	merged := Merge(results)
	require.Len(t, merged, 1)
	assert.Equal(t, "12345", merged[0].Text)
	// Two backends agree: representative confidence 0.8 boosted by 1.1.
	assert.InDelta(t, 0.88, merged[0].Confidence, 1e-9)
}

func TestMergeBoostCapsAtOne(t *testing.T) {
	box := image.Rect(0, 0, 50, 20)
	results := []BackendResult{
		{Backend: "a", Weight: 0.4, Detections: []backend.Detection{det("total", 0.95, box)}},
		{Backend: "b", Weight: 0.4, Detections: []backend.Detection{det("total", 0.9, box)}},
	}

	merged := Merge(results)
	require.Len(t, merged, 1)
	assert.InDelta(t, 1.0, merged[0].Confidence, 1e-9)
}

func TestMergeSingleContributorNotBoosted(t *testing.T) {
	results := []BackendResult{
		{Backend: "a", Weight: 0.4, Detections: []backend.Detection{
			det("alone", 0.8, image.Rect(0, 0, 40, 20)),
		}},
	}

	merged := Merge(results)
	require.Len(t, merged, 1)
	assert.InDelta(t, 0.8, merged[0].Confidence, 1e-9)
}

func TestMergeIoUBoundaryIsExclusive(t *testing.T) {
	// Inner box area 30 inside a 100-area box: IoU exactly 0.3, so the
	// detections stay in separate regions and both texts survive.
	a := image.Rect(0, 0, 10, 10)
	exactly := image.Rect(0, 0, 6, 5)
	results := []BackendResult{
		{Backend: "x", Weight: 0.4, Detections: []backend.Detection{det("first", 0.9, a)}},
		{Backend: "y", Weight: 0.4, Detections: []backend.Detection{det("second", 0.8, exactly)}},
	}
	merged := Merge(results)
	assert.Len(t, merged, 2)

	// Area 40 raises IoU to 0.4: the boxes collapse into one region.
	above := image.Rect(0, 0, 8, 5)
	results[1].Detections = []backend.Detection{det("second", 0.8, above)}
	merged = Merge(results)
	assert.Len(t, merged, 1)
}

func TestMergeNoBoxDetections(t *testing.T) {
	results := []BackendResult{
		{Backend: "a", Weight: 0.4, Detections: []backend.Detection{
			{Text: "Nota Fiscal", Confidence: 0.9},
			{Text: "nota  fiscal", Confidence: 0.5},
		}},
		{Backend: "b", Weight: 0.2, Detections: []backend.Detection{
			det("SERIE 1", 0.8, image.Rect(0, 0, 60, 20)),
		}},
	}

	merged := Merge(results)
	require.Len(t, merged, 2)
	// Positioned detections come first, boxless after.
	assert.Equal(t, "SERIE 1", merged[0].Text)
	assert.Equal(t, "Nota Fiscal", merged[1].Text)
}

func TestMergeReadingOrder(t *testing.T) {
	results := []BackendResult{
		{Backend: "a", Weight: 0.4, Detections: []backend.Detection{
			det("bottom", 0.9, image.Rect(0, 100, 50, 120)),
			det("top-right", 0.6, image.Rect(200, 0, 260, 20)),
			det("top-left", 0.5, image.Rect(0, 0, 50, 20)),
		}},
	}

	merged := Merge(results)
	require.Len(t, merged, 3)
	assert.Equal(t, "top-left", merged[0].Text)
	assert.Equal(t, "top-right", merged[1].Text)
	assert.Equal(t, "bottom", merged[2].Text)
}

func TestMergeDeduplicatesByNormalizedText(t *testing.T) {
	results := []BackendResult{
		{Backend: "a", Weight: 0.4, Detections: []backend.Detection{
			det("VALOR TOTAL", 0.9, image.Rect(0, 0, 100, 20)),
		}},
		{Backend: "b", Weight: 0.2, Detections: []backend.Detection{
			det("valor  total", 0.8, image.Rect(0, 500, 100, 520)),
		}},
	}

	merged := Merge(results)
	require.Len(t, merged, 1)
	assert.Equal(t, "VALOR TOTAL", merged[0].Text)
}

func TestMergeSkipsFailedBackends(t *testing.T) {
	results := []BackendResult{
		{Backend: "a", Weight: 0.4, Err: errors.New("engine crashed"), Detections: []backend.Detection{
			det("ghost", 0.9, image.Rect(0, 0, 50, 20)),
		}},
		{Backend: "b", Weight: 0.2, Detections: []backend.Detection{
			det("real", 0.8, image.Rect(0, 0, 50, 20)),
		}},
	}

	merged := Merge(results)
	require.Len(t, merged, 1)
	assert.Equal(t, "real", merged[0].Text)
}

func TestMergeIdempotent(t *testing.T) {
	results := []BackendResult{
		{Backend: "a", Weight: 0.4, Detections: []backend.Detection{
			det("numero 123", 0.8, image.Rect(0, 0, 100, 20)),
			det("serie 1", 0.7, image.Rect(0, 50, 100, 70)),
		}},
		{Backend: "b", Weight: 0.4, Detections: []backend.Detection{
			det("numero 123", 0.9, image.Rect(2, 1, 102, 21)),
			det("total 99", 0.6, image.Rect(0, 200, 100, 220)),
		}},
	}

	first := Merge(results)
	second := Merge([]BackendResult{{Backend: "merged", Weight: 1.0, Detections: first}})
	assert.Equal(t, first, second)
}

func TestMergeDeterministicAcrossResultOrder(t *testing.T) {
	a := BackendResult{Backend: "a", Weight: 0.4, Detections: []backend.Detection{
		det("campo", 0.8, image.Rect(0, 0, 50, 20)),
	}}
	b := BackendResult{Backend: "b", Weight: 0.4, Detections: []backend.Detection{
		det("canpo", 0.8, image.Rect(1, 1, 51, 21)),
	}}

	assert.Equal(t, Merge([]BackendResult{a, b}), Merge([]BackendResult{b, a}))
}

func TestCombinedTextPriorityAndDedup(t *testing.T) {
	results := []BackendResult{
		{Backend: "tesseract", Weight: 0.2, Detections: []backend.Detection{
			det("NOTA", 0.9, image.Rect(0, 0, 40, 20)),
			det("extra", 0.9, image.Rect(0, 30, 40, 50)),
		}},
		{Backend: "paddle", Weight: 0.4, Detections: []backend.Detection{
			det("NOTA", 0.8, image.Rect(0, 0, 40, 20)),
			det("FISCAL", 0.8, image.Rect(50, 0, 100, 20)),
		}},
	}

	// paddle outranks tesseract, so its reading order leads and the
	// duplicate "NOTA" from tesseract is skipped.
	assert.Equal(t, "NOTA FISCAL extra", CombinedText(results))
}

func TestFilterByConfidence(t *testing.T) {
	dets := []backend.Detection{
		{Text: "keep", Confidence: 0.5},
		{Text: "drop", Confidence: 0.49},
		{Text: "high", Confidence: 0.9},
	}
	out := FilterByConfidence(dets, DefaultConfidenceThreshold)
	require.Len(t, out, 2)
	assert.Equal(t, "keep", out[0].Text)
	assert.Equal(t, "high", out[1].Text)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "nota fiscal", NormalizeText("  NOTA\t Fiscal \n"))
	assert.Empty(t, NormalizeText("   "))
}

func TestRecognizeNoBackends(t *testing.T) {
	e := New(backend.NewRegistry())
	_, _, err := e.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)), nil)
	require.ErrorIs(t, err, backend.ErrNoBackendAvailable)
}

func TestRecognizeToleratesBackendFailure(t *testing.T) {
	reg := backend.NewRegistry()
	reg.Register("good", 0.4, func() (backend.Backend, error) {
		return backend.NewStatic("good", 0.4, func(context.Context, image.Image) ([]backend.Detection, error) {
			return []backend.Detection{det("ok", 0.9, image.Rect(0, 0, 30, 10))}, nil
		}), nil
	})
	reg.Register("flaky", 0.4, func() (backend.Backend, error) {
		return backend.NewStatic("flaky", 0.4, func(context.Context, image.Image) ([]backend.Detection, error) {
			return nil, errors.New("timeout")
		}), nil
	})

	e := New(reg)
	merged, results, err := e.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)), nil)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "ok", merged[0].Text)

	require.Len(t, results, 2)
	var flaky *BackendResult
	for i := range results {
		if results[i].Backend == "flaky" {
			flaky = &results[i]
		}
	}
	require.NotNil(t, flaky)
	assert.Error(t, flaky.Err)
	assert.Empty(t, flaky.Detections)
}
