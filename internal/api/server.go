// Package api exposes the monitor over HTTP: a JSON status page with the
// latest sample, a health check, and the Prometheus scrape endpoint. It is
// a consumer of the poll loop's event channel and holds only display state;
// it never calls into the prober or estimator.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FairForge/migwatch/internal/poll"
	"github.com/FairForge/migwatch/internal/rate"
	"github.com/FairForge/migwatch/internal/stats"
)

// Status strings shown to operators.
const (
	StatusStopped = "stopped"
	StatusRunning = "running"
)

// StatusResponse is the JSON body of GET /status. Counters carry both raw
// values and display strings; the last-known-good sample stays visible
// through transient probe errors, with the error reported alongside.
type StatusResponse struct {
	Status          string  `json:"status"`
	Progress        float64 `json:"progress_percent"`
	V1Remaining     int64   `json:"v1_remaining"`
	V2Done          int64   `json:"v2_done"`
	Queued          int64   `json:"queued"`
	Processing      int64   `json:"processing"`
	Errors          int64   `json:"errors"`
	V1Display       string  `json:"v1_remaining_display"`
	V2Display       string  `json:"v2_done_display"`
	Rate            string  `json:"rate"`
	RatePerHour     float64 `json:"rate_per_hour"`
	ETA             string  `json:"eta"`
	LastUpdate      string  `json:"last_update,omitempty"`
	LastError       string  `json:"last_error,omitempty"`
	LastErrorAt     string  `json:"last_error_at,omitempty"`
	HasSample       bool    `json:"has_sample"`
	SessionRunning  bool    `json:"session_running"`
	ProgressDisplay string  `json:"progress_display"`
}

// Server serves monitor state over HTTP.
type Server struct {
	logger     *zap.Logger
	loop       *poll.Loop
	router     *chi.Mux
	httpServer *http.Server

	mu        sync.RWMutex
	hasSample bool
	snapshot  stats.Snapshot
	rateRes   rate.Result
	updatedAt time.Time
	lastErr   string
	lastErrAt time.Time
}

// NewServer creates a status server bound to addr. metricsHandler, when
// non-nil, is mounted at /metrics.
func NewServer(addr string, loop *poll.Loop, metricsHandler http.Handler, logger *zap.Logger) *Server {
	s := &Server{
		logger: logger,
		loop:   loop,
		router: chi.NewRouter(),
	}

	s.router.Get("/status", s.handleStatus)
	s.router.Get("/healthz", s.handleHealth)
	if metricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Consume drains the loop's event channel until ctx is cancelled. Runs on
// its own goroutine; the receive here is the only thing that touches the
// worker's output, so the worker is never blocked by HTTP traffic.
func (s *Server) Consume(ctx context.Context, events <-chan poll.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ev)
		}
	}
}

func (s *Server) apply(ev poll.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case poll.EventSample:
		s.hasSample = true
		s.snapshot = ev.Snapshot
		s.rateRes = ev.Rate
		s.updatedAt = ev.At
		// A good sample clears the error indicator.
		s.lastErr = ""
	case poll.EventError:
		// Keep the last-known-good sample on display; only the error
		// indicator changes.
		s.lastErr = ev.Message
		s.lastErrAt = ev.At
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := StatusResponse{
		Status:          StatusStopped,
		Progress:        s.snapshot.ProgressPercent,
		V1Remaining:     s.snapshot.V1Remaining,
		V2Done:          s.snapshot.V2Done,
		Queued:          s.snapshot.Queued,
		Processing:      s.snapshot.Processing,
		Errors:          s.snapshot.Errors,
		V1Display:       stats.FormatCount(s.snapshot.V1Remaining),
		V2Display:       stats.FormatCount(s.snapshot.V2Done),
		Rate:            s.rateRes.String(),
		RatePerHour:     s.rateRes.PerHour,
		ETA:             s.rateRes.ETAString(),
		LastError:       s.lastErr,
		HasSample:       s.hasSample,
		ProgressDisplay: formatPercent(s.snapshot.ProgressPercent),
	}
	if !s.updatedAt.IsZero() {
		resp.LastUpdate = s.updatedAt.Format(time.RFC3339)
	}
	if !s.lastErrAt.IsZero() && s.lastErr != "" {
		resp.LastErrorAt = s.lastErrAt.Format(time.RFC3339)
	}
	s.mu.RUnlock()

	if s.loop.State() == poll.StateRunning {
		resp.Status = StatusRunning
		resp.SessionRunning = true
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func formatPercent(p float64) string {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return fmt.Sprintf("%.2f%%", p)
}

// ListenAndServe starts serving. Blocks until the server exits.
func (s *Server) ListenAndServe() error {
	s.logger.Info("status server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
