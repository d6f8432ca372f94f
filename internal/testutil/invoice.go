// Package testutil renders synthetic invoice images for tests. The images
// are crude bitmap-font renderings, enough to exercise the preprocessing
// and quality stages without shipping binary fixtures.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// InvoiceConfig controls synthetic invoice rendering.
type InvoiceConfig struct {
	Width      int
	Height     int
	Lines      []string
	Rotation   float64 // degrees, applied after rendering
	NoiseLevel float64 // 0..1 fraction of pixels flipped toward gray
	Seed       int64
}

// DefaultInvoiceConfig renders a plausible DANFE header block.
func DefaultInvoiceConfig() InvoiceConfig {
	return InvoiceConfig{
		Width:  1240,
		Height: 875,
		Lines: []string{
			"DANFE - DOCUMENTO AUXILIAR DA NOTA FISCAL ELETRONICA",
			"NF-e No 123456 SERIE 1",
			"CNPJ: 11.222.333/0001-81",
			"DATA DE EMISSAO: 15/03/2024",
			"VALOR TOTAL DA NOTA: R$ 1.234,56",
		},
	}
}

// RenderInvoice draws the configured lines on a white page.
func RenderInvoice(cfg InvoiceConfig) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: face,
	}
	lineHeight := face.Metrics().Height.Ceil() + 8
	y := 60
	for _, line := range cfg.Lines {
		drawer.Dot = fixed.P(40, y)
		drawer.DrawString(line)
		y += lineHeight
	}

	var out image.Image = img
	if cfg.Rotation != 0 {
		out = imaging.Rotate(out, cfg.Rotation, color.White)
	}
	if cfg.NoiseLevel > 0 {
		out = addNoise(out, cfg.NoiseLevel, cfg.Seed)
	}
	return out
}

func addNoise(src image.Image, level float64, seed int64) image.Image {
	img := imaging.Clone(src)
	rng := rand.New(rand.NewSource(seed))
	b := img.Bounds()
	n := int(float64(b.Dx()*b.Dy()) * level)
	for range n {
		x := b.Min.X + rng.Intn(b.Dx())
		y := b.Min.Y + rng.Intn(b.Dy())
		v := uint8(rng.Intn(256))
		img.Set(x, y, color.RGBA{v, v, v, 255})
	}
	return img
}

// WriteInvoicePNG renders an invoice into a temp file and returns its path.
func WriteInvoicePNG(t *testing.T, cfg InvoiceConfig) string {
	t.Helper()

	path := t.TempDir() + "/invoice.png"
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, RenderInvoice(cfg)))
	return path
}
