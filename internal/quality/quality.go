// Package quality computes image quality metrics used to steer adaptive
// preprocessing. All functions are pure; an empty image yields zero metrics
// with every flag false.
package quality

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Thresholds separating acceptable from degraded inputs. The blur threshold
// is the Laplacian-variance cutoff commonly used for document scans.
const (
	BlurThreshold        = 100.0
	LowContrastThreshold = 30.0
	DarkThreshold        = 80.0
	BrightThreshold      = 200.0

	// Sobel gradient magnitude below which a pixel counts as non-edge
	// for the noise estimate.
	edgeMagnitudeThreshold = 96.0
)

// Metrics holds the per-image quality assessment.
type Metrics struct {
	BlurScore     float64 `json:"blur_score"`
	Contrast      float64 `json:"contrast"`
	Brightness    float64 `json:"brightness"`
	NoiseEstimate float64 `json:"noise_estimate"`
	IsBlurry      bool    `json:"is_blurry"`
	IsLowContrast bool    `json:"is_low_contrast"`
	IsDark        bool    `json:"is_dark"`
	IsBright      bool    `json:"is_bright"`
}

// Degraded reports whether any quality flag indicates the image needs
// adaptive enhancement before recognition.
func (m Metrics) Degraded() bool {
	return m.IsBlurry || m.IsLowContrast || m.IsDark || m.IsBright
}

// Assess computes quality metrics from an image. The image is converted to
// grayscale internally; callers may pass color or grayscale input.
func Assess(img image.Image) Metrics {
	if img == nil {
		return Metrics{}
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return Metrics{}
	}

	gray := imaging.Grayscale(img)
	lum := luminancePlane(gray)

	brightness := meanOf(lum)
	contrast := stdDevOf(lum, brightness)
	blur := laplacianVariance(lum, w, h)
	noise := noiseEstimate(lum, w, h)

	return Metrics{
		BlurScore:     blur,
		Contrast:      contrast,
		Brightness:    brightness,
		NoiseEstimate: noise,
		IsBlurry:      blur < BlurThreshold,
		IsLowContrast: contrast < LowContrastThreshold,
		IsDark:        brightness < DarkThreshold,
		IsBright:      brightness > BrightThreshold,
	}
}

// luminancePlane extracts the red channel of an already-grayscale NRGBA
// image as a flat float64 plane.
func luminancePlane(gray *image.NRGBA) []float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lum := make([]float64, w*h)
	for y := range h {
		row := gray.Pix[y*gray.Stride:]
		for x := range w {
			lum[y*w+x] = float64(row[x*4])
		}
	}
	return lum
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stdDevOf(vals []float64, mean float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(vals)))
}

// laplacianVariance convolves the 4-neighbour Laplacian kernel over the
// interior pixels and returns the variance of the responses. Low variance
// means few sharp edges, i.e. a blurry image.
func laplacianVariance(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	responses := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := -4*lum[y*w+x] +
				lum[(y-1)*w+x] + lum[(y+1)*w+x] +
				lum[y*w+x-1] + lum[y*w+x+1]
			responses = append(responses, v)
		}
	}
	mean := meanOf(responses)
	var variance float64
	for _, r := range responses {
		d := r - mean
		variance += d * d
	}
	return variance / float64(len(responses))
}

// noiseEstimate returns the standard deviation of pixels lying outside
// detected edges. Edge pixels are excluded via a Sobel gradient magnitude
// test so that genuine text strokes do not inflate the estimate.
func noiseEstimate(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	flat := make([]float64, 0, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -lum[(y-1)*w+x-1] + lum[(y-1)*w+x+1] +
				-2*lum[y*w+x-1] + 2*lum[y*w+x+1] +
				-lum[(y+1)*w+x-1] + lum[(y+1)*w+x+1]
			gy := -lum[(y-1)*w+x-1] - 2*lum[(y-1)*w+x] - lum[(y-1)*w+x+1] +
				lum[(y+1)*w+x-1] + 2*lum[(y+1)*w+x] + lum[(y+1)*w+x+1]
			if math.Hypot(gx, gy) < edgeMagnitudeThreshold {
				flat = append(flat, lum[y*w+x])
			}
		}
	}
	if len(flat) == 0 {
		return 0
	}
	return stdDevOf(flat, meanOf(flat))
}
