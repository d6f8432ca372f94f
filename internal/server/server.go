// Package server exposes the scanning pipeline over HTTP: upload endpoints
// for images and PDFs, health and Prometheus metrics, and a WebSocket
// channel streaming per-page PDF progress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docfiscal/nfscan/internal/config"
	"github.com/docfiscal/nfscan/internal/pipeline"
)

// Server serves scan requests over HTTP.
type Server struct {
	pipeline *pipeline.Pipeline

	host            string
	port            int
	corsOrigin      string
	maxUploadBytes  int64
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
}

// New builds a server and its pipeline from the configuration.
func New(cfg *config.Config) *Server {
	return NewWithPipeline(cfg, pipeline.New(cfg))
}

// NewWithPipeline builds a server around an existing pipeline.
func NewWithPipeline(cfg *config.Config, pl *pipeline.Pipeline) *Server {
	return &Server{
		pipeline:        pl,
		host:            cfg.Server.Host,
		port:            cfg.Server.Port,
		corsOrigin:      cfg.Server.CORSOrigin,
		maxUploadBytes:  int64(cfg.Server.MaxUploadMB) * 1024 * 1024,
		requestTimeout:  time.Duration(cfg.Server.TimeoutSec) * time.Second,
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second,
	}
}

// SetupRoutes registers the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/ocr/image", s.corsMiddleware(s.ocrImageHandler))
	mux.HandleFunc("/ocr/pdf", s.corsMiddleware(s.ocrPDFHandler))
	mux.HandleFunc("/ws/pdf", s.pdfWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// ListenAndServe blocks until the context is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// The WebSocket endpoint outlives requestTimeout; per-request
		// deadlines are enforced in the handlers instead.
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		slog.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
