// Package health implements the HTTP surface of spec §4.7: liveness,
// buffer statistics, Prometheus metrics export, and config hot-reload.
// Metric names are grounded on the Prometheus metrics already present in
// the source tracker (tracker_trades_received_total and siblings), wired
// through github.com/prometheus/client_golang the way
// adred-codev-ws_poc/src/metrics.go declares its counters/gauges.
package health

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge the tracker exports. A single
// instance is created at startup and threaded through every component that
// needs to bump a counter.
type Metrics struct {
	TradesReceived   prometheus.Counter
	TradesProcessed  prometheus.Counter
	TradesFromBuffer prometheus.Counter
	TradesMalformed  prometheus.Counter

	MetricsSaved prometheus.Counter
	MetricsLost  prometheus.Counter

	CoinsTracked   prometheus.Gauge
	CoinsGraduated prometheus.Counter
	CoinsFinished  prometheus.Counter

	BufferSize         prometheus.Gauge
	BufferTradesTotal  prometheus.Counter

	DBQueryDuration    prometheus.Histogram
	FlushDuration      prometheus.Histogram

	WSReconnectsTotal  *prometheus.CounterVec
}

// NewMetrics constructs and registers every metric against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		TradesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_trades_received_total",
			Help: "Total trades received from the upstream trade stream",
		}),
		TradesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_trades_processed_total",
			Help: "Total trades folded into an aggregator",
		}),
		TradesFromBuffer: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_trades_from_buffer_total",
			Help: "Total trades folded in retroactively via buffer replay",
		}),
		TradesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_trades_malformed_total",
			Help: "Total inbound frames dropped for failing to parse",
		}),
		MetricsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_metrics_saved_total",
			Help: "Total metric rows successfully persisted",
		}),
		MetricsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_metrics_lost_total",
			Help: "Total metric rows dropped due to a failed batch insert",
		}),
		CoinsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_coins_tracked",
			Help: "Current number of tokens in the active aggregator set",
		}),
		CoinsGraduated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_coins_graduated_total",
			Help: "Total tokens that reached the graduation threshold",
		}),
		CoinsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_coins_finished_total",
			Help: "Total tokens that aged out without graduating",
		}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_trade_buffer_size",
			Help: "Current total number of trades held in the rolling buffer",
		}),
		BufferTradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_buffer_trades_total",
			Help: "Total trades ever appended to the rolling buffer",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_db_query_duration_seconds",
			Help:    "Active-set read duration",
			Buckets: prometheus.DefBuckets,
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_flush_duration_seconds",
			Help:    "Per-tick flush engine duration",
			Buckets: prometheus.DefBuckets,
		}),
		WSReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_ws_reconnects_total",
			Help: "Total upstream reconnect attempts by stream",
		}, []string{"stream"}),
	}

	reg.MustRegister(
		m.TradesReceived, m.TradesProcessed, m.TradesFromBuffer, m.TradesMalformed,
		m.MetricsSaved, m.MetricsLost,
		m.CoinsTracked, m.CoinsGraduated, m.CoinsFinished,
		m.BufferSize, m.BufferTradesTotal,
		m.DBQueryDuration, m.FlushDuration,
		m.WSReconnectsTotal,
	)
	return m
}
