// Package status exposes a small diagnostics HTTP surface.
//
// DESIGN: Two read-only endpoints:
//   - /healthz: liveness probe, cheap enough for tight probe intervals
//   - /status:  pipeline snapshot, counters and host resource stats
//
// The server is optional; it only runs when a listen address is configured.
// It reads pipeline state through the Source interface and never feeds
// anything back into the pipeline.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/whotterre/log-watcher/internal/monitoring"
	"github.com/whotterre/log-watcher/internal/watcher"
)

// Source is the read-only view of the pipeline the server reports on.
type Source interface {
	Snapshot() watcher.Snapshot
	Metrics() *monitoring.MetricsCollector
}

// Server serves the diagnostics endpoints.
type Server struct {
	addr      string
	version   string
	src       Source
	logger    *monitoring.Logger
	srv       *http.Server
	startedAt time.Time
}

// New builds the server without binding the listen address yet.
func New(addr, version string, src Source, logger *monitoring.Logger) *Server {
	s := &Server{
		addr:      addr,
		version:   version,
		src:       src,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)

	var h http.Handler = mux
	h = s.logRequests(h)
	h = s.panicRecovery(h)
	return h
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("status server listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type statusResponse struct {
	Service  string           `json:"service"`
	Version  string           `json:"version,omitempty"`
	Now      time.Time        `json:"now"`
	Pipeline watcher.Snapshot `json:"pipeline"`
	Counters map[string]int64 `json:"counters"`
	Host     hostStats        `json:"host"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Service:  "log-watcher",
		Version:  s.version,
		Now:      time.Now().UTC(),
		Pipeline: s.src.Snapshot(),
		Counters: s.src.Metrics().Stats(),
		Host:     collectHostStats(),
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
