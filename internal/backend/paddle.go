package backend

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// PaddleConfig configures the ONNX-based PP-OCR style engine. Detection and
// recognition use separate models; both must be present on disk.
type PaddleConfig struct {
	DetModelPath string
	RecModelPath string
	DictPath     string
	// ImageHeight is the recognition input height. Zero adopts the model's
	// fixed height when it declares one, otherwise 48.
	ImageHeight int
	// DetThreshold binarizes the detection probability map. Zero means 0.3.
	DetThreshold float32
	// MaxSideLen caps the longer image side before detection. Zero means 960.
	MaxSideLen int
	// Weight overrides the default engine weight when positive.
	Weight float64
}

// Paddle runs text detection and recognition with ONNX Runtime sessions.
// Sessions are created once and guarded by a mutex; ONNX Runtime sessions are
// not safe for concurrent Run calls.
type Paddle struct {
	cfg    PaddleConfig
	weight float64

	det     *onnxrt.DynamicAdvancedSession
	rec     *onnxrt.DynamicAdvancedSession
	charset []string

	mu sync.Mutex
}

var onnxEnvOnce sync.Once

func setupONNXEnvironment() error {
	var err error
	onnxEnvOnce.Do(func() {
		if !onnxrt.IsInitialized() {
			err = onnxrt.InitializeEnvironment()
		}
	})
	if err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// NewPaddle loads both models and the recognition dictionary. A missing model
// file is an error; the registry treats it as the backend being unavailable.
func NewPaddle(cfg PaddleConfig) (*Paddle, error) {
	for _, p := range []string{cfg.DetModelPath, cfg.RecModelPath, cfg.DictPath} {
		if p == "" {
			return nil, fmt.Errorf("paddle backend requires det, rec and dict paths")
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("model file: %w", err)
		}
	}
	if cfg.DetThreshold <= 0 {
		cfg.DetThreshold = 0.3
	}
	if cfg.MaxSideLen <= 0 {
		cfg.MaxSideLen = 960
	}
	w := cfg.Weight
	if w <= 0 {
		w = DefaultPaddleWeight
	}

	if err := setupONNXEnvironment(); err != nil {
		return nil, err
	}

	det, _, err := openSession(cfg.DetModelPath)
	if err != nil {
		return nil, fmt.Errorf("detection model: %w", err)
	}
	rec, recIn, err := openSession(cfg.RecModelPath)
	if err != nil {
		_ = det.Destroy()
		return nil, fmt.Errorf("recognition model: %w", err)
	}
	if cfg.ImageHeight <= 0 {
		if h := recIn.Dimensions[2]; h > 0 {
			cfg.ImageHeight = int(h)
		} else {
			cfg.ImageHeight = 48
		}
	}

	charset, err := loadCharset(cfg.DictPath)
	if err != nil {
		_ = det.Destroy()
		_ = rec.Destroy()
		return nil, err
	}
	slog.Debug("paddle backend ready",
		"det_model", cfg.DetModelPath,
		"rec_model", cfg.RecModelPath,
		"charset_size", len(charset),
		"rec_height", cfg.ImageHeight)

	return &Paddle{cfg: cfg, weight: w, det: det, rec: rec, charset: charset}, nil
}

func openSession(modelPath string) (*onnxrt.DynamicAdvancedSession, onnxrt.InputOutputInfo, error) {
	inputs, outputs, err := onnxrt.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, onnxrt.InputOutputInfo{}, fmt.Errorf("model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, onnxrt.InputOutputInfo{}, fmt.Errorf("expected 1 input and 1 output, got %d/%d", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, onnxrt.InputOutputInfo{}, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	session, err := onnxrt.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, onnxrt.InputOutputInfo{}, fmt.Errorf("create session: %w", err)
	}
	return session, inputs[0], nil
}

func loadCharset(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	// Index 0 is the CTC blank; dictionary entries start at 1.
	charset := []string{""}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		charset = append(charset, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(charset) < 2 {
		return nil, fmt.Errorf("dictionary %s is empty", path)
	}
	return charset, nil
}

func (p *Paddle) Name() string      { return NamePaddle }
func (p *Paddle) Weight() float64   { return p.weight }
func (p *Paddle) IsAvailable() bool { return p != nil && p.det != nil && p.rec != nil }

// Close destroys both sessions. The shared ONNX environment stays up for the
// life of the process.
func (p *Paddle) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.det != nil {
		if err := p.det.Destroy(); err != nil {
			slog.Warn("destroy detection session", "error", err)
		}
		p.det = nil
	}
	if p.rec != nil {
		if err := p.rec.Destroy(); err != nil {
			slog.Warn("destroy recognition session", "error", err)
		}
		p.rec = nil
	}
	return nil
}

// Detect localizes text regions with the detection model and recognizes each
// region with the recognition model.
func (p *Paddle) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.det == nil || p.rec == nil {
		return nil, fmt.Errorf("paddle backend is closed")
	}

	regions, err := p.detectRegions(img)
	if err != nil {
		return nil, fmt.Errorf("detect regions: %w", err)
	}

	dets := make([]Detection, 0, len(regions))
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		crop := imaging.Crop(img, r)
		text, conf, err := p.recognizeRegion(crop)
		if err != nil {
			return nil, fmt.Errorf("recognize region %v: %w", r, err)
		}
		if text == "" {
			continue
		}
		dets = append(dets, Detection{Text: text, Confidence: conf, Box: r})
	}
	return dets, nil
}
