package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ShutdownTimeout bounds how long in-flight streams and uploads may drain.
var ShutdownTimeout = 15 * time.Second

// Server wraps the http.Server with defaults suited to long-lived video
// streams. WriteTimeout is left unset so range responses are never cut off.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port.
func New(port int, handler http.Handler) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Serve accepts connections on l until the server is shut down.
func (s *Server) Serve(l net.Listener) error {
	err := s.inner.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
