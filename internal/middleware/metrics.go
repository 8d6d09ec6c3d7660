package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scrubline/backend/internal/metrics"
)

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.headerWritten {
		rw.statusCode = code
		rw.headerWritten = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// MetricsConfig holds configuration for the metrics middleware.
type MetricsConfig struct {
	// SkipPaths are path prefixes that are not recorded.
	SkipPaths []string
}

// DefaultMetricsConfig skips the scrape and probe endpoints.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{SkipPaths: []string{"/metrics", "/healthz"}}
}

// Metrics records request counts, latency and in-flight requests in Prometheus.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newMetricsResponseWriter(w)
			start := time.Now()

			next.ServeHTTP(wrapped, r)

			path := NormalizePath(r.URL.Path)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// NormalizePath collapses ids and file names into placeholders so label
// cardinality stays bounded.
func NormalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "/"
	}
	switch parts[0] {
	case "videos":
		switch {
		case len(parts) == 1:
			return "/videos"
		case parts[1] == "upload" && len(parts) == 2:
			return "/videos/upload"
		case parts[1] == "stream":
			return "/videos/stream/{id}"
		default:
			return "/videos/{id}"
		}
	case "thumbnails":
		return "/thumbnails/{path}"
	case "ingestion":
		return "/ingestion/{id}"
	}
	if len(parts) > 1 {
		return "/" + parts[0] + "/{path}"
	}
	return "/" + parts[0]
}
