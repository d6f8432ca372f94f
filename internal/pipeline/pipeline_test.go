package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfiscal/nfscan/internal/backend"
	"github.com/docfiscal/nfscan/internal/config"
	"github.com/docfiscal/nfscan/internal/extract"
	"github.com/docfiscal/nfscan/internal/testutil"
)

func staticRegistry(lines map[string]float64) *backend.Registry {
	reg := backend.NewRegistry()
	reg.Register("static", 0.4, func() (backend.Backend, error) {
		return backend.NewStatic("static", 0.4, func(context.Context, image.Image) ([]backend.Detection, error) {
			var dets []backend.Detection
			y := 0
			for text, conf := range lines {
				dets = append(dets, backend.Detection{
					Text:       text,
					Confidence: conf,
					Box:        image.Rect(0, y, 400, y+20),
				})
				y += 30
			}
			return dets, nil
		}), nil
	})
	return reg
}

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 1200, 800))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestProcessImageEndToEnd(t *testing.T) {
	cfg := config.DefaultConfig()
	reg := staticRegistry(map[string]float64{
		"CNPJ: 11.222.333/OOO1-81":    0.9,
		"VALOR TOTAL DA NF: R$ 99,90": 0.8,
		"ruido":                       0.3,
	})
	p := NewWithRegistry(&cfg, reg)

	res, err := p.ProcessImage(context.Background(), testImage(), Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Document)

	// The low-confidence detection is filtered out.
	assert.Len(t, res.Detections, 2)
	assert.Equal(t, 1, res.Pages)

	// The normalizer repaired the letter-for-digit confusions before
	// extraction.
	assert.Equal(t, "11.222.333/0001-81", res.Document.CNPJEmitente)
	assert.InDelta(t, 99.90, res.Document.ValorTotal, 1e-9)
	assert.Positive(t, res.Document.ConfidenceScore)
}

func TestProcessImageNilInput(t *testing.T) {
	cfg := config.DefaultConfig()
	p := NewWithRegistry(&cfg, backend.NewRegistry())

	_, err := p.ProcessImage(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrCorruptInput)
}

func TestProcessImageNoBackends(t *testing.T) {
	cfg := config.DefaultConfig()
	p := NewWithRegistry(&cfg, backend.NewRegistry())

	_, err := p.ProcessImage(context.Background(), testImage(), Options{})
	require.ErrorIs(t, err, backend.ErrNoBackendAvailable)
}

func TestProcessImageFile(t *testing.T) {
	cfg := config.DefaultConfig()
	reg := staticRegistry(map[string]float64{
		"NF-e No 123456 SERIE 1": 0.9,
	})
	p := NewWithRegistry(&cfg, reg)

	path := testutil.WriteInvoicePNG(t, testutil.DefaultInvoiceConfig())
	res, err := p.ProcessImageFile(context.Background(), path, Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Document)
	assert.Equal(t, "123456", res.Document.NumeroNF)
}

func TestProcessImageFileUnsupportedFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	p := NewWithRegistry(&cfg, backend.NewRegistry())

	_, err := p.ProcessImageFile(context.Background(), "/nonexistent/doc.xyz", Options{})
	require.Error(t, err)
}

func TestProcessPDFMissingFile(t *testing.T) {
	cfg := config.DefaultConfig()
	p := NewWithRegistry(&cfg, backend.NewRegistry())

	_, err := p.ProcessPDF(context.Background(), "/nonexistent/doc.pdf", Options{}, nil)
	require.ErrorIs(t, err, ErrCorruptInput)
}

func TestScoreArithmetic(t *testing.T) {
	dets := []backend.Detection{
		{Confidence: 0.7}, {Confidence: 0.8}, {Confidence: 0.9},
	}
	doc := &extract.Document{CamposExtraidos: 7, CamposTotal: 9}

	want := 0.7*0.8 + 0.3*(7.0/9.0)
	assert.InDelta(t, want, Score(dets, doc), 1e-9)
}

func TestScoreNoDetections(t *testing.T) {
	doc := &extract.Document{CamposExtraidos: 9, CamposTotal: 9}
	assert.InDelta(t, 0.3, Score(nil, doc), 1e-9)
	assert.Zero(t, Score(nil, &extract.Document{CamposTotal: 9}))
}

func TestScoreBounds(t *testing.T) {
	dets := []backend.Detection{{Confidence: 1.0}}
	doc := &extract.Document{CamposExtraidos: 9, CamposTotal: 9}
	assert.InDelta(t, 1.0, Score(dets, doc), 1e-9)
	assert.GreaterOrEqual(t, Score(nil, nil), 0.0)
}

func TestOptionsThresholdOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	reg := staticRegistry(map[string]float64{"baixa confianca": 0.4})
	p := NewWithRegistry(&cfg, reg)

	res, err := p.ProcessImage(context.Background(), testImage(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Detections)

	res, err = p.ProcessImage(context.Background(), testImage(), Options{ConfidenceThreshold: 0.3})
	require.NoError(t, err)
	assert.Len(t, res.Detections, 1)
}
