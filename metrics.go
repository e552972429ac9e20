package linesearch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	queries        *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	connections    prometheus.Gauge
	rejected       *prometheus.CounterVec
	batchRequests  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linesearch_queries_total",
				Help: "Total number of queries by search mode and outcome",
			},
			[]string{"mode", "status"},
		),
		searchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linesearch_search_duration_seconds",
				Help:    "Lookup latency in seconds, excluding load and prepare",
				Buckets: prometheus.ExponentialBuckets(1e-7, 4, 12),
			},
			[]string{"mode"},
		),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "linesearch_connections_active",
			Help: "Number of open client connections",
		}),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linesearch_frames_rejected_total",
				Help: "Inbound frames answered with an error frame",
			},
			[]string{"reason"},
		),
		batchRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "linesearch_batch_requests_total",
			Help: "Requests dispatched through the batch path",
		}),
	}
}

func (m *Metrics) observeQuery(mode Mode, status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(string(mode), string(status)).Inc()
	if status != StatusError {
		m.searchDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) frameRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) batch(n int) {
	if m != nil {
		m.batchRequests.Add(float64(n))
	}
}
