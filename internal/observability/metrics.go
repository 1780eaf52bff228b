// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solana-buy-tracker/internal/events"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Block source metrics
	BlocksProcessed    *prometheus.CounterVec
	TransactionsSeen   prometheus.Counter
	ThrottleBackoffs   *prometheus.CounterVec
	EndpointRotations  prometheus.Counter
	BackoffWaitSeconds prometheus.Histogram
	HighestHeightSeen  prometheus.Gauge

	// Classification metrics
	AcquisitionsDetected *prometheus.CounterVec

	// Session metrics
	SessionsCompleted *prometheus.CounterVec
	SessionRecords    prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_buy_tracker"
	}

	return &Metrics{
		BlocksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocksource",
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks processed by phase",
		}, []string{"phase"}),
		TransactionsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocksource",
			Name:      "transactions_seen_total",
			Help:      "Total number of transactions scanned",
		}),
		ThrottleBackoffs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocksource",
			Name:      "throttle_backoffs_total",
			Help:      "Total number of throttle-induced backoff waits by endpoint",
		}, []string{"endpoint"}),
		EndpointRotations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocksource",
			Name:      "endpoint_rotations_total",
			Help:      "Total number of endpoint rotations",
		}),
		BackoffWaitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "blocksource",
			Name:      "backoff_wait_seconds",
			Help:      "Backoff wait durations in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		HighestHeightSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blocksource",
			Name:      "highest_height_seen",
			Help:      "Highest block height delivered to any session",
		}),
		AcquisitionsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "acquisitions_detected_total",
			Help:      "Total number of acquisition records by exchange and confidence",
		}, []string{"exchange", "confidence"}),
		SessionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "sessions_completed_total",
			Help:      "Total number of completed sessions by outcome",
		}, []string{"outcome"}),
		SessionRecords: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "session_records",
			Help:      "Record counts of completed sessions",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 10000},
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsSink translates pipeline events into metric updates.
type MetricsSink struct {
	metrics *Metrics
}

// NewMetricsSink creates a sink over the given metrics.
func NewMetricsSink(metrics *Metrics) *MetricsSink {
	return &MetricsSink{metrics: metrics}
}

// Compile-time interface check.
var _ events.Sink = (*MetricsSink)(nil)

// Emit implements events.Sink.
func (s *MetricsSink) Emit(e events.Event) {
	m := s.metrics
	switch ev := e.(type) {
	case events.BlockProcessed:
		phase := "live"
		if ev.Backfill {
			phase = "backfill"
		}
		m.BlocksProcessed.WithLabelValues(phase).Inc()
		m.TransactionsSeen.Add(float64(ev.Transactions))
		m.HighestHeightSeen.Set(float64(ev.Height))
	case events.AcquisitionDetected:
		m.AcquisitionsDetected.WithLabelValues(ev.Record.ExchangeName, string(ev.Record.Confidence)).Inc()
	case events.ThrottleBackoff:
		m.ThrottleBackoffs.WithLabelValues(ev.Endpoint).Inc()
		m.BackoffWaitSeconds.Observe(ev.Wait.Seconds())
	case events.EndpointRotated:
		m.EndpointRotations.Inc()
	case events.SessionCompleted:
		outcome := "target_reached"
		if ev.Stopped {
			outcome = "stopped"
		}
		m.SessionsCompleted.WithLabelValues(outcome).Inc()
		m.SessionRecords.Observe(float64(ev.Records))
	}
}
