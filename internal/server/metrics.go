package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfscan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nfscan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	scanRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfscan_scan_requests_total",
			Help: "Total number of invoice scan requests",
		},
		[]string{"type", "status"}, // type: image, pdf
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nfscan_scan_duration_seconds",
			Help:    "Invoice processing duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"type"},
	)

	documentConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nfscan_document_confidence",
			Help:    "Final document confidence score",
			Buckets: []float64{0, .1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		},
	)

	fieldsExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nfscan_fields_extracted",
			Help:    "Number of checklist fields extracted per document",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nfscan_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)
)
