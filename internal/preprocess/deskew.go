package preprocess

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	// minRotationAngle is the smallest detected skew worth correcting;
	// below this the page is treated as already straight.
	minRotationAngle = 0.1

	// deskewAngleWindow limits voting to near-horizontal lines.
	deskewAngleWindow = 45.0

	// deskewAngleStep is the angular resolution of the vote accumulator.
	deskewAngleStep = 0.5

	// edgeThreshold is the Sobel magnitude above which a pixel votes.
	edgeThreshold = 160.0
)

// deskew straightens the page if a dominant near-horizontal line angle is
// detected. Rotation preserves full content: the canvas grows and new area
// is filled with white.
func (p *Processor) deskew(gray *image.NRGBA) *image.NRGBA {
	angle := DetectSkewAngle(gray)
	if math.Abs(angle) <= minRotationAngle || math.Abs(angle) > p.cfg.DeskewMaxAngle {
		return gray
	}
	slog.Debug("deskewing image", "angle_deg", angle)
	return imaging.Rotate(gray, angle, color.White)
}

// DetectSkewAngle estimates the document skew in degrees using Hough-style
// voting: edge pixels vote for (angle, intercept) line cells within ±45° of
// horizontal, and the median angle of all sufficiently supported lines is
// returned. Angles follow image coordinates (y down), so the returned value
// can be passed directly to imaging.Rotate to straighten the page.
func DetectSkewAngle(img image.Image) float64 {
	plane, w, h := grayPlane(img)
	if w < 3 || h < 3 {
		return 0
	}

	edges := sobelEdgePoints(plane, w, h)
	if len(edges) == 0 {
		return 0
	}

	angleBins := int(2*deskewAngleWindow/deskewAngleStep) + 1
	tangents := make([]float64, angleBins)
	for i := range angleBins {
		deg := -deskewAngleWindow + float64(i)*deskewAngleStep
		tangents[i] = math.Tan(deg * math.Pi / 180)
	}

	// votes[angleBin][interceptBin]
	votes := make([]map[int]int, angleBins)
	for i := range votes {
		votes[i] = make(map[int]int)
	}
	for _, pt := range edges {
		for i, t := range tangents {
			b := int(math.Round(float64(pt.Y) - float64(pt.X)*t))
			votes[i][b]++
		}
	}

	// A line needs support proportional to the image width to count.
	minVotes := w / 8
	if minVotes < 20 {
		minVotes = 20
	}

	var angles []float64
	for i, byIntercept := range votes {
		deg := -deskewAngleWindow + float64(i)*deskewAngleStep
		for _, n := range byIntercept {
			if n >= minVotes {
				angles = append(angles, deg)
			}
		}
	}
	if len(angles) == 0 {
		return 0
	}

	sort.Float64s(angles)
	mid := len(angles) / 2
	if len(angles)%2 == 1 {
		return angles[mid]
	}
	return (angles[mid-1] + angles[mid]) / 2
}

// sobelEdgePoints returns the pixels whose gradient magnitude exceeds the
// edge threshold.
func sobelEdgePoints(plane []uint8, w, h int) []image.Point {
	var pts []image.Point
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -int(plane[(y-1)*w+x-1]) + int(plane[(y-1)*w+x+1]) +
				-2*int(plane[y*w+x-1]) + 2*int(plane[y*w+x+1]) +
				-int(plane[(y+1)*w+x-1]) + int(plane[(y+1)*w+x+1])
			gy := -int(plane[(y-1)*w+x-1]) - 2*int(plane[(y-1)*w+x]) - int(plane[(y-1)*w+x+1]) +
				int(plane[(y+1)*w+x-1]) + 2*int(plane[(y+1)*w+x]) + int(plane[(y+1)*w+x+1])
			if math.Hypot(float64(gx), float64(gy)) > edgeThreshold {
				pts = append(pts, image.Pt(x, y))
			}
		}
	}
	return pts
}
