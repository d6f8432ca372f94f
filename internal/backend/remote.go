package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteConfig points at an external recognition service speaking the simple
// JSON protocol below. The EasyOCR sidecar ships with the deployment manifests
// and is the usual peer.
type RemoteConfig struct {
	// URL is the recognition endpoint, e.g. "http://easyocr:8080/recognize".
	URL string
	// HealthURL is probed at construction. Empty derives it from URL by
	// replacing the last path segment with "health".
	HealthURL string
	// Timeout bounds each recognition request. Zero means 30s.
	Timeout time.Duration
	// Weight overrides the default engine weight when positive.
	Weight float64
}

// Remote delegates recognition to an HTTP service. The request body is the
// PNG-encoded image; the response is a JSON array of detections.
type Remote struct {
	cfg    RemoteConfig
	weight float64
	client *http.Client
}

// remoteDetection is the wire form of a single detection. Box is
// [x1, y1, x2, y2] in pixels; a missing or short box means no geometry.
type remoteDetection struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        []int   `json:"box"`
}

// NewRemote probes the service health endpoint and fails when the service is
// unreachable, so a dead sidecar surfaces at startup rather than per request.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote backend requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = deriveHealthURL(cfg.URL)
	}
	w := cfg.Weight
	if w <= 0 {
		w = DefaultRemoteWeight
	}
	r := &Remote{cfg: cfg, weight: w, client: &http.Client{Timeout: cfg.Timeout}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HealthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", cfg.HealthURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe %s: status %d", cfg.HealthURL, resp.StatusCode)
	}
	return r, nil
}

func (r *Remote) Name() string      { return NameRemote }
func (r *Remote) Weight() float64   { return r.weight }
func (r *Remote) IsAvailable() bool { return r != nil && r.client != nil }

// Detect posts the image and maps the service response onto Detections.
func (r *Remote) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote recognition: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wire []remoteDetection
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	dets := make([]Detection, 0, len(wire))
	for _, d := range wire {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		det := Detection{Text: text, Confidence: clampConfidence(d.Confidence)}
		if len(d.Box) >= 4 {
			det.Box = image.Rect(d.Box[0], d.Box[1], d.Box[2], d.Box[3])
		}
		dets = append(dets, det)
	}
	return dets, nil
}

func deriveHealthURL(url string) string {
	if i := strings.LastIndex(url, "/"); i > len("https://") {
		return url[:i] + "/health"
	}
	return url + "/health"
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
