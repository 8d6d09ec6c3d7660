package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scrubline/backend/internal/logging"
)

func TestIPRateLimiterAllowsBurstThenRejects(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Minute, 2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.(*ipRateLimiter).WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("1.2.3.4") || !limiter.Allow("1.2.3.4") {
		t.Fatal("burst requests should be allowed")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatal("request beyond burst should be rejected")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatal("other clients keep their own budget")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Minute, 1, time.Minute)
	handler := RateLimit(limiter, "upload", time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/videos/upload", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	called := false
	handler := RateLimit(nil, "upload", 0)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Fatal("nil limiter should not block")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.10:1234"
	if got := ClientIP(req); got != "192.168.1.10" {
		t.Fatalf("unexpected ip %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("unexpected forwarded ip %q", got)
	}
}

func TestRequestLoggerAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seenID string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.RequestIDFromContext(r.Context())
		_, _ = io.WriteString(w, "ok")
	}))

	req := httptest.NewRequest(http.MethodGet, "/videos", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seenID != "abc-123" {
		t.Fatalf("expected propagated request id got %q", seenID)
	}
	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("request id should be echoed")
	}
	if !strings.Contains(buf.String(), `"request_id":"abc-123"`) || !strings.Contains(buf.String(), `"bytes":2`) {
		t.Fatalf("unexpected log output %s", buf.String())
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("generated request id should be set")
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/":                               "/",
		"/videos":                         "/videos",
		"/videos/upload":                  "/videos/upload",
		"/videos/abc":                     "/videos/{id}",
		"/ingestion/abc":                  "/ingestion/{id}",
		"/videos/stream/abc":              "/videos/stream/{id}",
		"/thumbnails/abc/thumb-3.jpg":     "/thumbnails/{path}",
		"/healthz":                        "/healthz",
		"/something/deep/nested/resource": "/something/{path}",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMetricsRecordsStatus(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/stream/abc", nil))
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206 got %d", rec.Code)
	}

	mrw := newMetricsResponseWriter(httptest.NewRecorder())
	mrw.WriteHeader(http.StatusNotFound)
	mrw.WriteHeader(http.StatusOK)
	if mrw.statusCode != http.StatusNotFound {
		t.Fatalf("first status should win, got %d", mrw.statusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/videos/stream/abc", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Range")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
