package backend

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCTCDecodeCollapsesRepeatsAndBlanks(t *testing.T) {
	p := &Paddle{charset: []string{"", "N", "F", "1"}}

	// Steps: N N blank N F -> "NNF" collapses to "NNF"? No: repeats without
	// a separating blank collapse, so the emitted sequence is N, N, F.
	probs := []float32{
		0, 0.9, 0.1, 0, // N
		0, 0.8, 0.2, 0, // N (repeat, dropped)
		0.9, 0.1, 0, 0, // blank
		0, 0.7, 0.3, 0, // N (new emission after blank)
		0, 0.1, 0.8, 0.1, // F
	}
	text, conf := p.ctcDecode(probs, 5, 4)
	assert.Equal(t, "NNF", text)
	assert.InDelta(t, (0.9+0.7+0.8)/3.0, conf, 1e-6)
}

func TestCTCDecodeAllBlank(t *testing.T) {
	p := &Paddle{charset: []string{"", "a"}}
	probs := []float32{0.9, 0.1, 0.8, 0.2}
	text, conf := p.ctcDecode(probs, 2, 2)
	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func TestCTCDecodeIgnoresOutOfRangeClasses(t *testing.T) {
	p := &Paddle{charset: []string{"", "a"}}
	// Class 2 has no charset entry and must be skipped.
	probs := []float32{0, 0.1, 0.9, 0, 0.9, 0.1}
	text, _ := p.ctcDecode(probs, 2, 3)
	assert.Equal(t, "a", text)
}

func TestConnectedRects(t *testing.T) {
	// Two blobs on a 10x6 mask, one below the area floor.
	w, h := 10, 6
	mask := make([]bool, w*h)
	set := func(x, y int) { mask[y*w+x] = true }
	for y := 1; y <= 4; y++ {
		for x := 1; x <= 4; x++ {
			set(x, y)
		}
	}
	set(8, 0)
	set(9, 0)

	rects := connectedRects(mask, w, h)
	require.Len(t, rects, 1)
	assert.Equal(t, image.Rect(1, 1, 5, 5), rects[0])
}

func TestConnectedRectsDoesNotWrapRows(t *testing.T) {
	// Pixels at the end of one row and the start of the next are not
	// 4-connected even though they are adjacent in the flat mask.
	w, h := 8, 4
	mask := make([]bool, w*h)
	for x := 0; x < w; x++ {
		mask[1*w+x] = true
		mask[2*w+x] = true
	}
	mask[0*w+7] = true

	rects := connectedRects(mask, w, h)
	require.Len(t, rects, 1)
	assert.Equal(t, 1, rects[0].Min.Y)
}

func TestNormalizeNCHW(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 127, A: 255})
	img.Set(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})

	half := [3]float32{0.5, 0.5, 0.5}
	data := normalizeNCHW(img, half, half)
	require.Len(t, data, 6)

	// Channel-major layout: R plane, then G, then B.
	assert.InDelta(t, 1.0, data[0], 1e-6)  // R of pixel 0
	assert.InDelta(t, -1.0, data[1], 1e-6) // R of pixel 1
	assert.InDelta(t, -1.0, data[2], 1e-6) // G of pixel 0
	assert.InDelta(t, 1.0, data[3], 1e-6)  // G of pixel 1
	assert.InDelta(t, float32(127)/255*2-1, data[4], 1e-3)
}

func TestRoundUpTo(t *testing.T) {
	assert.Equal(t, 32, roundUpTo(0, 32))
	assert.Equal(t, 32, roundUpTo(32, 32))
	assert.Equal(t, 64, roundUpTo(33, 32))
	assert.Equal(t, 960, roundUpTo(960, 32))
}

func TestNewPaddleMissingModels(t *testing.T) {
	_, err := NewPaddle(PaddleConfig{})
	require.Error(t, err)

	_, err = NewPaddle(PaddleConfig{
		DetModelPath: "/nonexistent/det.onnx",
		RecModelPath: "/nonexistent/rec.onnx",
		DictPath:     "/nonexistent/dict.txt",
	})
	require.Error(t, err)
}
