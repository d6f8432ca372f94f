package backend

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// Detection model normalization, per the PP-OCR preprocessing recipe.
var (
	detMean = [3]float32{0.485, 0.456, 0.406}
	detStd  = [3]float32{0.229, 0.224, 0.225}
)

const (
	detStride     = 32
	minRegionArea = 16
	// regionPadding grows detected rects before cropping; the probability
	// map shrinks text slightly at its borders.
	regionPadding = 4
	maxRecWidth   = 1280
)

// detectRegions runs the detection model and returns text regions in original
// image coordinates, clamped to the image bounds.
func (p *Paddle) detectRegions(img image.Image) ([]image.Rectangle, error) {
	bounds := img.Bounds()
	ow, oh := bounds.Dx(), bounds.Dy()
	if ow == 0 || oh == 0 {
		return nil, nil
	}

	// Scale the longer side down to the cap and round both sides up to the
	// detection stride; the model requires dimensions divisible by 32.
	scale := 1.0
	if longer := maxInt2(ow, oh); longer > p.cfg.MaxSideLen {
		scale = float64(p.cfg.MaxSideLen) / float64(longer)
	}
	dw := roundUpTo(int(float64(ow)*scale), detStride)
	dh := roundUpTo(int(float64(oh)*scale), detStride)
	resized := imaging.Resize(img, dw, dh, imaging.Linear)

	data := normalizeNCHW(resized, detMean, detStd)
	out, outShape, err := p.runSession(p.det, []int64{1, 3, int64(dh), int64(dw)}, data)
	if err != nil {
		return nil, err
	}
	if len(outShape) != 4 || outShape[1] != 1 {
		return nil, fmt.Errorf("unexpected detection output shape %v", outShape)
	}
	mh, mw := int(outShape[2]), int(outShape[3])

	mask := make([]bool, mh*mw)
	for i, v := range out {
		mask[i] = v >= p.cfg.DetThreshold
	}
	rects := connectedRects(mask, mw, mh)

	sx := float64(ow) / float64(mw)
	sy := float64(oh) / float64(mh)
	result := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		scaled := image.Rect(
			int(float64(r.Min.X)*sx)-regionPadding,
			int(float64(r.Min.Y)*sy)-regionPadding,
			int(float64(r.Max.X)*sx)+regionPadding,
			int(float64(r.Max.Y)*sy)+regionPadding,
		).Intersect(image.Rect(0, 0, ow, oh))
		if scaled.Empty() {
			continue
		}
		result = append(result, scaled)
	}
	return result, nil
}

// recognizeRegion runs the recognition model on a cropped region and decodes
// the CTC output greedily.
func (p *Paddle) recognizeRegion(crop image.Image) (string, float64, error) {
	bounds := crop.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return "", 0, nil
	}
	h := p.cfg.ImageHeight
	w := bounds.Dx() * h / bounds.Dy()
	if w < 8 {
		w = 8
	}
	if w > maxRecWidth {
		w = maxRecWidth
	}
	resized := imaging.Resize(crop, w, h, imaging.Linear)

	// Recognition normalizes to [-1, 1].
	half := [3]float32{0.5, 0.5, 0.5}
	data := normalizeNCHW(resized, half, half)
	out, outShape, err := p.runSession(p.rec, []int64{1, 3, int64(h), int64(w)}, data)
	if err != nil {
		return "", 0, err
	}
	if len(outShape) != 3 {
		return "", 0, fmt.Errorf("unexpected recognition output shape %v", outShape)
	}
	steps, classes := int(outShape[1]), int(outShape[2])
	text, conf := p.ctcDecode(out, steps, classes)
	return text, conf, nil
}

// runSession executes a session with a single NCHW float32 input and returns
// a copy of the float32 output with its shape.
func (p *Paddle) runSession(s *onnxrt.DynamicAdvancedSession, shape []int64, data []float32) ([]float32, []int64, error) {
	input, err := onnxrt.NewTensor(onnxrt.NewShape(shape...), data)
	if err != nil {
		return nil, nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outputs := []onnxrt.Value{nil}
	if err := s.Run([]onnxrt.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()

	tensor, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	raw := tensor.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)
	return out, tensor.GetShape(), nil
}

// ctcDecode collapses repeated symbols and drops the blank (index 0).
// Confidence is the mean peak probability over emitted steps.
func (p *Paddle) ctcDecode(probs []float32, steps, classes int) (string, float64) {
	var sb strings.Builder
	var confSum float64
	emitted := 0
	prev := 0
	for t := 0; t < steps; t++ {
		row := probs[t*classes : (t+1)*classes]
		best, bestProb := 0, float32(0)
		for c, v := range row {
			if v > bestProb {
				best, bestProb = c, v
			}
		}
		if best != 0 && best != prev {
			if best < len(p.charset) {
				sb.WriteString(p.charset[best])
				confSum += float64(bestProb)
				emitted++
			}
		}
		prev = best
	}
	if emitted == 0 {
		return "", 0
	}
	return strings.TrimSpace(sb.String()), confSum / float64(emitted)
}

// normalizeNCHW converts an image to a packed NCHW float32 plane with
// per-channel mean/std normalization of values scaled to [0, 1].
func normalizeNCHW(img image.Image, mean, std [3]float32) []float32 {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	data := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			for c := 0; c < 3; c++ {
				v := float32(row[x*4+c]) / 255.0
				data[c*plane+i] = (v - mean[c]) / std[c]
			}
		}
	}
	return data
}

// connectedRects labels 4-connected components in a binary mask and returns
// the bounding rectangle of each component above the minimum area.
func connectedRects(mask []bool, w, h int) []image.Rectangle {
	visited := make([]bool, len(mask))
	var rects []image.Rectangle
	queue := make([]int, 0, 256)

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		visited[start] = true
		queue = append(queue[:0], start)
		minX, minY := w, h
		maxX, maxY := 0, 0
		area := 0
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w
			area++
			minX = minInt2(minX, x)
			minY = minInt2(minY, y)
			maxX = maxInt2(maxX, x)
			maxY = maxInt2(maxY, y)
			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				if n < 0 || n >= len(mask) || visited[n] || !mask[n] {
					continue
				}
				// Horizontal neighbours must stay on the same row.
				if (n == i-1 || n == i+1) && n/w != y {
					continue
				}
				visited[n] = true
				queue = append(queue, n)
			}
		}
		if area >= minRegionArea {
			rects = append(rects, image.Rect(minX, minY, maxX+1, maxY+1))
		}
	}
	return rects
}

func roundUpTo(v, multiple int) int {
	if v < multiple {
		return multiple
	}
	if r := v % multiple; r != 0 {
		return v + multiple - r
	}
	return v
}

func minInt2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt2(a, b int) int {
	if a > b {
		return a
	}
	return b
}
