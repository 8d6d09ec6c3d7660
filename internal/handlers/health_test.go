package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func TestHealthHandlerHandle(t *testing.T) {
	handler := HealthHandler{}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type got %s", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec = httptest.NewRecorder()

	handler.Handle(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected method not allowed got %d", rec.Code)
	}
}

func TestHealthHandlerReportsFailingCheck(t *testing.T) {
	handler := HealthHandler{Checks: map[string]HealthChecker{
		"database": pingStub{err: errors.New("connection refused")},
		"storage":  pingStub{},
	}}

	rec := httptest.NewRecorder()
	handler.Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "degraded" || body["database"] != "unavailable" || body["storage"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}
