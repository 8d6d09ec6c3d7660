package httpserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewLeavesWriteTimeoutUnset(t *testing.T) {
	srv := New(8080, http.NotFoundHandler())
	if srv.Addr() != ":8080" {
		t.Fatalf("unexpected addr %q", srv.Addr())
	}
	if srv.inner.WriteTimeout != 0 {
		t.Fatalf("streaming responses must not have a write timeout, got %v", srv.inner.WriteTimeout)
	}
	if srv.inner.ReadHeaderTimeout == 0 {
		t.Fatal("expected a read header timeout")
	}
}

func TestServeAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := New(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve() should return nil after shutdown, got %v", err)
	}
}
