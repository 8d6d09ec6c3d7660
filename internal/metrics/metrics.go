package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrubline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrubline_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Ingestion metrics
var (
	IngestStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrubline_ingest_stage_duration_seconds",
			Help:    "Time spent in each ingestion stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	IngestFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubline_ingest_failures_total",
			Help: "Ingestions that failed, by the stage they failed in",
		},
		[]string{"stage"},
	)

	IngestCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubline_ingest_completed_total",
			Help: "Ingestions that produced a record, by whether previews are available",
		},
		[]string{"previews"},
	)

	ThumbnailsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrubline_thumbnails_generated_total",
			Help: "Preview frames rendered and stored",
		},
	)

	ThumbnailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrubline_thumbnail_queue_depth",
			Help: "Thumbnail jobs waiting for a worker",
		},
	)
)

// Streaming metrics
var (
	StreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubline_stream_requests_total",
			Help: "Video stream requests by response status",
		},
		[]string{"status"},
	)

	StreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrubline_stream_bytes_total",
			Help: "Video bytes written to clients",
		},
	)
)
