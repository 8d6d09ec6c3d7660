package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrubline/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Checks: deps.HealthChecks}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Ingestor:       deps.Ingestor,
		Statuses:       deps.Statuses,
		Streamer:       deps.Streamer,
		MaxUploadBytes: deps.MaxUploadBytes,
	}

	upload := middleware.RateLimit(deps.UploadLimiter, "upload", deps.UploadRetryAfter)(http.HandlerFunc(videos.Upload))

	mux.HandleFunc("/healthz", health.Handle)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("POST /videos/upload", upload)
	mux.HandleFunc("GET /videos", videos.List)
	mux.HandleFunc("GET /videos/{id}", videos.Get)
	mux.HandleFunc("DELETE /videos/{id}", videos.Delete)
	mux.HandleFunc("GET /videos/stream/{id}", videos.Stream)
	mux.HandleFunc("GET /ingestion/{id}", videos.Ingestion)

	if deps.ThumbnailDir != "" {
		mux.Handle("GET /thumbnails/", immutable(http.StripPrefix("/thumbnails/", http.FileServer(http.Dir(deps.ThumbnailDir)))))
	}
}

// immutable marks responses cacheable forever; frame names are never reused
// for different content within a video id.
func immutable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		next.ServeHTTP(w, r)
	})
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Videos           VideoStore
	Ingestor         VideoIngestor
	Statuses         IngestionStatuses
	Streamer         VideoStreamer
	UploadLimiter    middleware.RateLimiter
	UploadRetryAfter time.Duration
	MaxUploadBytes   int64
	// ThumbnailDir serves locally rendered frames; empty when frames live remotely.
	ThumbnailDir string
	HealthChecks map[string]HealthChecker
}
