package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokentracker/buffer"
	"tokentracker/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.LoadFromEnv()
	buf := buffer.New()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	_ = metrics
	return NewServer(cfg, buf, metrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func TestHealthReturns503WhenBothStreamsDown(t *testing.T) {
	s := newTestServer(t)
	s.UpdateSnapshot(Snapshot{
		TradeConn:    ConnState{Connected: false},
		NewTokenConn: ConnState{Connected: false},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Status != "down" {
		t.Fatalf("expected status=down, got %q", body.Status)
	}
}

func TestHealthReturns200WhenOneStreamUp(t *testing.T) {
	s := newTestServer(t)
	s.UpdateSnapshot(Snapshot{
		TradeConn:    ConnState{Connected: true},
		NewTokenConn: ConnState{Connected: false},
		CoinsTracked: 3,
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMetricsEndpointExposesPrometheusText(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
