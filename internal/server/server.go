// Package server exposes the broker over HTTP: the JSON-RPC 2.0 surface on
// POST /rpc and a health endpoint on GET /health.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/transom-dev/transom/internal/log"
	"github.com/transom-dev/transom/internal/metrics"
	"github.com/transom-dev/transom/internal/registry"
	"github.com/transom-dev/transom/internal/router"
)

// Server wraps the RPC handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	addr     string
	port     int // Actual port after binding (useful when using :0)
}

// Config configures the broker server.
type Config struct {
	// Addr is the address to listen on (e.g., ":8700" or "localhost:0").
	Addr string
	// Registry holds the contracts and match index (required).
	Registry *registry.Registry
	// Router routes live calls and dry runs (required).
	Router *router.Router
	// Recorder exposes call metrics on /health (optional).
	Recorder *metrics.Recorder
	// Tracer creates a span per dispatched RPC method (optional).
	Tracer trace.Tracer
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout time.Duration
}

// New creates a broker server. If Addr uses port 0, the OS assigns an
// available port; use Port() after New to get the actual one.
func New(cfg Config) (*Server, error) {
	handler := NewHandler(cfg.Registry, cfg.Router, cfg.Recorder, cfg.Tracer)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}

	// Create listener first to get the actual port (important for :0)
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		handler:  handler,
		addr:     cfg.Addr,
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           routes(handler),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
	}, nil
}

// routes assembles the HTTP surface.
func routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/rpc", h.ServeRPC)
	r.Get("/health", h.Health)

	return r
}

// Start starts the HTTP server. It blocks until the server is stopped or fails.
func (s *Server) Start() error {
	log.Info(log.CatRPC, "starting broker server", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatRPC, "stopping broker server")
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on. Useful when the
// server was configured with port 0 for auto-assignment.
func (s *Server) Port() int {
	return s.port
}
