// Package server exposes run metrics and profiling endpoints over HTTP while
// a snapshot is being built.
package server

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/INLOpen/ledgersnap/config"
	"github.com/arl/statsviz"
)

// DefaultListenAddress is used when the configuration leaves it empty.
const DefaultListenAddress = "localhost:6060"

// MetricsServer manages the HTTP server for metrics and debugging.
type MetricsServer struct {
	server   *http.Server
	logger   *slog.Logger
	listener net.Listener
	mu       sync.Mutex
}

// NewMetricsServer creates and configures a new HTTP server. expvar
// metrics are served on /debug/vars and the runtime dashboard on
// /debug/statsviz; pprof is optional.
func NewMetricsServer(cfg *config.DebugConfig, logger *slog.Logger) *MetricsServer {
	mux := http.NewServeMux()
	logger = logger.With("component", "MetricsServer")

	if cfg.PProfEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logger.Debug("pprof profiling endpoints enabled on /debug/pprof")
	}
	mux.Handle("/debug/vars", expvar.Handler())

	if err := statsviz.Register(mux,
		statsviz.Root("/debug/statsviz"),
		statsviz.SendFrequency(500*time.Millisecond),
	); err != nil {
		logger.Warn("Runtime dashboard unavailable", "error", err)
	}

	addr := cfg.ListenAddress
	if addr == "" {
		addr = DefaultListenAddress
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the server's request multiplexer.
func (s *MetricsServer) Handler() http.Handler { return s.server.Handler }

// Start binds the listen address and serves in the background. It returns
// the bound address, which differs from the configured one for port 0.
func (s *MetricsServer) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String(), nil
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.listener = ln
	s.logger.Info("Metrics server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()
	return ln.Addr().String(), nil
}

// Stop gracefully shuts down the metrics server.
func (s *MetricsServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	s.listener = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Metrics server shutdown failed", "error", err)
	} else {
		s.logger.Debug("Metrics server stopped")
	}
}
