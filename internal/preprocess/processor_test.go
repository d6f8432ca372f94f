package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatImage(w, h int, v uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestProcess_NilAndEmptyPassThrough(t *testing.T) {
	p := NewProcessor(DefaultConfig())
	assert.Nil(t, p.Process(nil))

	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	assert.Equal(t, empty, p.Process(empty))
}

func TestProcess_ResizesIntoBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinWidth = 200
	cfg.MaxWidth = 400
	cfg.Deskew = false
	p := NewProcessor(cfg)

	small := p.Process(flatImage(100, 50, 128))
	assert.Equal(t, 200, small.Bounds().Dx())
	assert.Equal(t, 100, small.Bounds().Dy()) // aspect preserved

	big := p.Process(flatImage(800, 400, 128))
	assert.Equal(t, 400, big.Bounds().Dx())
	assert.Equal(t, 200, big.Bounds().Dy())

	inBand := p.Process(flatImage(300, 150, 128))
	assert.Equal(t, 300, inBand.Bounds().Dx())
}

func TestProcess_OutputIsGrayscale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinWidth = 10
	cfg.MaxWidth = 500
	cfg.Deskew = false
	p := NewProcessor(cfg)

	src := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := range 50 {
		for x := range 50 {
			src.SetNRGBA(x, y, color.NRGBA{R: 200, G: 50, B: 90, A: 255})
		}
	}
	out := p.Process(src)
	nrgba, ok := out.(*image.NRGBA)
	require.True(t, ok)
	r, g, b := nrgba.Pix[0], nrgba.Pix[1], nrgba.Pix[2]
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestBinarize_OtsuSeparatesBimodal(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := range 20 {
		for x := range 20 {
			v := uint8(30)
			if x >= 10 {
				v = 220
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	bin := Binarize(img, BinarizeOtsu)
	// Left half black, right half white.
	assert.Equal(t, uint8(0), bin.Pix[0])
	assert.Equal(t, uint8(255), bin.Pix[15*4])
}

func TestBinarize_AllMethodsProduceBinaryOutput(t *testing.T) {
	img := flatImage(30, 30, 128)
	for _, method := range []BinarizationMethod{BinarizeOtsu, BinarizeAdaptive, BinarizeSauvola} {
		bin := Binarize(img, method)
		for i := 0; i < len(bin.Pix); i += 4 {
			v := bin.Pix[i]
			assert.True(t, v == 0 || v == 255, "method %s produced %d", method, v)
		}
	}
}

func TestDetectSkewAngle_StraightLinesYieldZero(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 200))
	for y := range 200 {
		for x := range 400 {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	// Draw several horizontal black bars.
	for _, rowY := range []int{40, 80, 120, 160} {
		for dy := range 3 {
			for x := 20; x < 380; x++ {
				img.SetNRGBA(x, rowY+dy, color.NRGBA{A: 255})
			}
		}
	}
	angle := DetectSkewAngle(img)
	assert.InDelta(t, 0.0, angle, 0.6)
}

func TestDetectSkewAngle_EmptyImage(t *testing.T) {
	assert.Zero(t, DetectSkewAngle(flatImage(2, 2, 255)))
	assert.Zero(t, DetectSkewAngle(flatImage(100, 100, 255)))
}

func TestCLAHE_StretchesLowContrast(t *testing.T) {
	// Narrow band of values around mid-gray.
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			v := uint8(120 + (x+y)%16)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	out := CLAHE(img, 2.0, 8)

	minV, maxV := uint8(255), uint8(0)
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] < minV {
			minV = out.Pix[i]
		}
		if out.Pix[i] > maxV {
			maxV = out.Pix[i]
		}
	}
	assert.Greater(t, int(maxV)-int(minV), 16, "dynamic range should expand")
}
