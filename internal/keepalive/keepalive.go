// Package keepalive exposes the liveness HTTP endpoint used by free-tier
// hosts that sleep idle processes.
package keepalive

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Server answers 200 once the bot reports ready, 503 before.
type Server struct {
	srv    *http.Server
	ready  atomic.Bool
	logger *slog.Logger
}

// New creates a keep-alive server listening on addr.
func New(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("I'm alive!"))
}

// SetReady flips the readiness signal.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("keepalive server failed", "error", err)
		}
	}()
	s.logger.Info("keepalive server listening", "addr", s.srv.Addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
