package quality

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniformImage(w, h int, v uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func checkerboard(w, h, cell int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(255)
			if (x/cell+y/cell)%2 == 0 {
				v = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestAssess_NilAndEmpty(t *testing.T) {
	m := Assess(nil)
	assert.Equal(t, Metrics{}, m)

	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	m = Assess(empty)
	assert.Equal(t, Metrics{}, m)
	assert.False(t, m.Degraded())
}

func TestAssess_UniformGrayIsFlatAndBlurry(t *testing.T) {
	m := Assess(uniformImage(64, 64, 128))

	assert.InDelta(t, 128.0, m.Brightness, 1.0)
	assert.InDelta(t, 0.0, m.Contrast, 0.5)
	assert.InDelta(t, 0.0, m.BlurScore, 0.5)
	assert.True(t, m.IsBlurry)
	assert.True(t, m.IsLowContrast)
	assert.False(t, m.IsDark)
	assert.False(t, m.IsBright)
	assert.True(t, m.Degraded())
}

func TestAssess_DarkAndBrightFlags(t *testing.T) {
	dark := Assess(uniformImage(32, 32, 40))
	assert.True(t, dark.IsDark)
	assert.False(t, dark.IsBright)

	bright := Assess(uniformImage(32, 32, 240))
	assert.True(t, bright.IsBright)
	assert.False(t, bright.IsDark)
}

func TestAssess_CheckerboardIsSharpHighContrast(t *testing.T) {
	m := Assess(checkerboard(64, 64, 4))

	assert.Greater(t, m.BlurScore, BlurThreshold)
	assert.Greater(t, m.Contrast, LowContrastThreshold)
	assert.False(t, m.IsBlurry)
	assert.False(t, m.IsLowContrast)
}

func TestAssess_NoiseEstimateGrowsWithNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	noisy := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			v := uint8(128 + rng.Intn(80) - 40)
			noisy.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	clean := Assess(uniformImage(64, 64, 128))
	dirty := Assess(noisy)
	assert.Greater(t, dirty.NoiseEstimate, clean.NoiseEstimate)
}
