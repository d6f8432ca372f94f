package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/docfiscal/nfscan/internal/backend"
	"github.com/docfiscal/nfscan/internal/pipeline"
)

// ScanResponse wraps a processing result for the HTTP API.
type ScanResponse struct {
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status   string   `json:"status"`
	Time     string   `json:"time"`
	Backends []string `json:"backends,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ocrImageHandler accepts a multipart upload under the "image" field and
// returns the structured scan result.
func (s *Server) ocrImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, _, err := formFile(r, "image", s.maxUploadBytes)
	if err != nil {
		s.writeError(w, "no image file provided", http.StatusBadRequest, "image")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, "failed to read upload", http.StatusBadRequest, "image")
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.writeError(w, "invalid image format", http.StatusBadRequest, "image")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.pipeline.ProcessImage(ctx, img, pipeline.Options{})
	if err != nil {
		s.writeProcessingError(w, err, "image")
		return
	}
	s.observeResult("image", result, time.Since(start))
	writeJSON(w, http.StatusOK, ScanResponse{Success: true, Result: result})
}

// ocrPDFHandler accepts a multipart upload under the "pdf" field. The file
// is spooled to disk for pdfcpu.
func (s *Server) ocrPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, _, err := formFile(r, "pdf", s.maxUploadBytes)
	if err != nil {
		s.writeError(w, "no pdf file provided", http.StatusBadRequest, "pdf")
		return
	}
	defer func() { _ = file.Close() }()

	path, cleanup, err := spoolUpload(file)
	if err != nil {
		s.writeError(w, "failed to store upload", http.StatusInternalServerError, "pdf")
		return
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.pipeline.ProcessPDF(ctx, path, pipeline.Options{}, nil)
	if err != nil {
		s.writeProcessingError(w, err, "pdf")
		return
	}
	s.observeResult("pdf", result, time.Since(start))
	writeJSON(w, http.StatusOK, ScanResponse{Success: true, Result: result})
}

func formFile(r *http.Request, field string, limit int64) (io.ReadCloser, string, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	return file, header.Filename, nil
}

func spoolUpload(file io.Reader) (string, func(), error) {
	tmp, err := os.CreateTemp("", "nfscan-upload-*.pdf")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmp.Name(), cleanup, nil
}

// writeProcessingError maps the pipeline error taxonomy onto status codes.
func (s *Server) writeProcessingError(w http.ResponseWriter, err error, kind string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat), errors.Is(err, pipeline.ErrCorruptInput):
		status = http.StatusBadRequest
	case errors.Is(err, backend.ErrNoBackendAvailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.writeError(w, err.Error(), status, kind)
}

func (s *Server) writeError(w http.ResponseWriter, msg string, status int, kind string) {
	scanRequestsTotal.WithLabelValues(kind, "error").Inc()
	writeJSON(w, status, ScanResponse{Success: false, Error: msg})
}

func (s *Server) observeResult(kind string, result *pipeline.Result, elapsed time.Duration) {
	scanRequestsTotal.WithLabelValues(kind, "success").Inc()
	scanDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if result.Document != nil {
		documentConfidence.Observe(result.Document.ConfidenceScore)
		fieldsExtracted.Observe(float64(result.Document.CamposExtraidos))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
