package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docfiscal/nfscan/internal/testutil"
)

func TestDetectSkewAngleOnRotatedText(t *testing.T) {
	cfg := testutil.DefaultInvoiceConfig()
	cfg.Rotation = 3
	img := testutil.RenderInvoice(cfg)

	// A page rendered 3 degrees counterclockwise needs a -3 degree
	// correction, which imaging.Rotate applies directly.
	angle := DetectSkewAngle(img)
	assert.InDelta(t, -3.0, angle, 1.0)
}

func TestDetectSkewAngleOnStraightText(t *testing.T) {
	img := testutil.RenderInvoice(testutil.DefaultInvoiceConfig())
	assert.InDelta(t, 0.0, DetectSkewAngle(img), 0.6)
}

func TestProcessStraightensRotatedText(t *testing.T) {
	cfg := testutil.DefaultInvoiceConfig()
	cfg.Rotation = 3
	img := testutil.RenderInvoice(cfg)

	out := NewProcessor(DefaultConfig()).Process(img)
	assert.InDelta(t, 0.0, DetectSkewAngle(out), 1.0)
}
