package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
)

// grayPlane flattens an image into a row-major uint8 luminance plane.
// Non-grayscale inputs are converted first.
func grayPlane(img image.Image) ([]uint8, int, int) {
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = imaging.Grayscale(img)
	}
	bounds := nrgba.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := make([]uint8, w*h)
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range w {
			plane[y*w+x] = row[x*4]
		}
	}
	return plane, w, h
}

// planeToImage converts a luminance plane back to an NRGBA image.
func planeToImage(plane []uint8, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			v := plane[y*w+x]
			i := x * 4
			row[i] = v
			row[i+1] = v
			row[i+2] = v
			row[i+3] = 255
		}
	}
	return img
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
