package preprocess

import (
	"image"
	"math"
)

// BinarizationMethod selects the thresholding algorithm.
type BinarizationMethod string

const (
	BinarizeOtsu     BinarizationMethod = "otsu"
	BinarizeAdaptive BinarizationMethod = "adaptive"
	BinarizeSauvola  BinarizationMethod = "sauvola"
)

// Binarize converts the image to black and white using the given method.
// Kept separate from the main pipeline since some recognition backends
// prefer grayscale input. Unknown methods fall back to Otsu.
func Binarize(img image.Image, method BinarizationMethod) *image.NRGBA {
	plane, w, h := grayPlane(img)
	if w == 0 || h == 0 {
		return planeToImage(plane, w, h)
	}

	switch method {
	case BinarizeAdaptive:
		return planeToImage(adaptiveThreshold(plane, w, h, 11, 2), w, h)
	case BinarizeSauvola:
		return planeToImage(sauvolaThreshold(plane, w, h, 25, 0.5), w, h)
	default:
		return planeToImage(otsuThreshold(plane), w, h)
	}
}

// otsuThreshold applies Otsu's global threshold, maximizing between-class
// variance over the histogram.
func otsuThreshold(plane []uint8) []uint8 {
	var hist [256]int
	for _, v := range plane {
		hist[v]++
	}
	total := len(plane)

	var totalSum float64
	for i, n := range hist {
		totalSum += float64(i) * float64(n)
	}

	var sumB float64
	wB := 0
	best := 0
	var maxVariance float64
	for t := range 256 {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		meanB := sumB / float64(wB)
		meanF := (totalSum - sumB) / float64(wF)
		variance := float64(wB) * float64(wF) * (meanB - meanF) * (meanB - meanF)
		if variance > maxVariance {
			maxVariance = variance
			best = t
		}
	}

	out := make([]uint8, len(plane))
	for i, v := range plane {
		if int(v) > best {
			out[i] = 255
		}
	}
	return out
}

// adaptiveThreshold thresholds each pixel against the mean of its local
// block minus a constant c, using an integral image for the local means.
func adaptiveThreshold(plane []uint8, w, h, blockSize, c int) []uint8 {
	if blockSize%2 == 0 {
		blockSize++
	}
	integral := integralImage(plane, w, h)
	half := blockSize / 2

	out := make([]uint8, len(plane))
	for y := range h {
		for x := range w {
			x0, y0 := maxInt(x-half, 0), maxInt(y-half, 0)
			x1, y1 := minInt(x+half, w-1), minInt(y+half, h-1)
			area := (x1 - x0 + 1) * (y1 - y0 + 1)
			sum := boxSum(integral, w, x0, y0, x1, y1)
			mean := float64(sum) / float64(area)
			if float64(plane[y*w+x]) > mean-float64(c) {
				out[y*w+x] = 255
			}
		}
	}
	return out
}

// sauvolaThreshold computes the Sauvola document threshold
// t = mean * (1 + k*(std/R - 1)) over a sliding window, with R = 128.
func sauvolaThreshold(plane []uint8, w, h, window int, k float64) []uint8 {
	const r = 128.0
	if window%2 == 0 {
		window++
	}
	integral := integralImage(plane, w, h)
	integralSq := integralSquares(plane, w, h)
	half := window / 2

	out := make([]uint8, len(plane))
	for y := range h {
		for x := range w {
			x0, y0 := maxInt(x-half, 0), maxInt(y-half, 0)
			x1, y1 := minInt(x+half, w-1), minInt(y+half, h-1)
			area := float64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := float64(boxSum(integral, w, x0, y0, x1, y1))
			sumSq := float64(boxSum(integralSq, w, x0, y0, x1, y1))
			mean := sum / area
			variance := sumSq/area - mean*mean
			if variance < 0 {
				variance = 0
			}
			std := math.Sqrt(variance)
			threshold := mean * (1 + k*(std/r-1))
			if float64(plane[y*w+x]) > threshold {
				out[y*w+x] = 255
			}
		}
	}
	return out
}

// integralImage builds a summed-area table with one extra row and column.
func integralImage(plane []uint8, w, h int) []int64 {
	integral := make([]int64, (w+1)*(h+1))
	for y := 1; y <= h; y++ {
		var rowSum int64
		for x := 1; x <= w; x++ {
			rowSum += int64(plane[(y-1)*w+x-1])
			integral[y*(w+1)+x] = integral[(y-1)*(w+1)+x] + rowSum
		}
	}
	return integral
}

func integralSquares(plane []uint8, w, h int) []int64 {
	integral := make([]int64, (w+1)*(h+1))
	for y := 1; y <= h; y++ {
		var rowSum int64
		for x := 1; x <= w; x++ {
			v := int64(plane[(y-1)*w+x-1])
			rowSum += v * v
			integral[y*(w+1)+x] = integral[(y-1)*(w+1)+x] + rowSum
		}
	}
	return integral
}

// boxSum returns the inclusive rectangle sum from a summed-area table.
func boxSum(integral []int64, w, x0, y0, x1, y1 int) int64 {
	s := w + 1
	return integral[(y1+1)*s+x1+1] - integral[y0*s+x1+1] - integral[(y1+1)*s+x0] + integral[y0*s+x0]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
