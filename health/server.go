package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"tokentracker/buffer"
	"tokentracker/config"
)

// ConnState is the reported liveness of one upstream websocket.
type ConnState struct {
	Connected     bool      `json:"connected"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	ReconnectsTotal int     `json:"reconnects_total"`
}

// Snapshot is the point-in-time state the /health handler renders. Callers
// (the orchestrator) push updates via Server.UpdateSnapshot; the HTTP
// handler only ever reads the last pushed value, so request handling never
// blocks on the tracker's own goroutines.
type Snapshot struct {
	StartedAt      time.Time
	TradeConn      ConnState
	NewTokenConn   ConnState
	CoinsTracked   int
	MetricsSaved   int64
	MetricsLost    int64
	CoinsGraduated int64
	CoinsFinished  int64
	LastError      string
}

// Server is the HTTP surface of spec §4.7: liveness, buffer stats,
// Prometheus export, and config hot-reload. Grounded on
// api.Server's mux/middleware shape, trimmed to the handful of routes this
// system needs.
type Server struct {
	cfg     *config.Config
	buf     *buffer.Buffer
	metrics *Metrics
	handler http.Handler

	mu   sync.RWMutex
	snap Snapshot
}

// NewServer wires the mux and middleware chain, returning a Server ready
// for ListenAndServe.
func NewServer(cfg *config.Config, buf *buffer.Buffer, metrics *Metrics, promHandler http.Handler) *Server {
	s := &Server{cfg: cfg, buf: buf, metrics: metrics, snap: Snapshot{StartedAt: time.Now()}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleHealth)
	mux.Handle("GET /metrics", promHandler)
	mux.HandleFunc("POST /reload-config", s.handleReloadConfig)

	s.handler = s.loggingMiddleware(mux)
	return s
}

// UpdateSnapshot replaces the current health snapshot. The orchestrator
// calls it once a second from its health-snapshot loop.
func (s *Server) UpdateSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.StartedAt = s.snap.StartedAt
	s.snap = snap
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{Addr: addr, Handler: s.handler}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 health server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type healthResponse struct {
	Status         string          `json:"status"`
	UptimeSeconds  float64         `json:"uptime_seconds"`
	TradeStream    ConnState       `json:"trade_stream"`
	NewTokenStream ConnState       `json:"new_token_stream"`
	CoinsTracked   int             `json:"coins_tracked"`
	MetricsSaved   int64           `json:"metrics_saved_total"`
	MetricsLost    int64           `json:"metrics_lost_total"`
	CoinsGraduated int64           `json:"coins_graduated_total"`
	CoinsFinished  int64           `json:"coins_finished_total"`
	Buffer         buffer.Stats    `json:"buffer"`
	LastError      string          `json:"last_error,omitempty"`
}

// handleHealth reports liveness per spec §4.7's status-code policy: 200 if
// at least one upstream connection is up, 503 if both are down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("❌ health handler panic: %v", rec)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}()

	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	resp := healthResponse{
		Status:         "ok",
		UptimeSeconds:  time.Since(snap.StartedAt).Seconds(),
		TradeStream:    snap.TradeConn,
		NewTokenStream: snap.NewTokenConn,
		CoinsTracked:   snap.CoinsTracked,
		MetricsSaved:   snap.MetricsSaved,
		MetricsLost:    snap.MetricsLost,
		CoinsGraduated: snap.CoinsGraduated,
		CoinsFinished:  snap.CoinsFinished,
		Buffer:         s.buf.Summarize(),
		LastError:      snap.LastError,
	}

	status := http.StatusOK
	if !snap.TradeConn.Connected && !snap.NewTokenConn.Connected {
		status = http.StatusServiceUnavailable
		resp.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// handleReloadConfig re-reads the override file and returns the effective
// config snapshot, per spec §4.7's hot-reload operation.
func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Reload()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
