package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swaptracker"

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	ProcessedBlocks    prometheus.Counter
	DroppedLogs        prometheus.Counter
	DuplicateLogs      prometheus.Counter
	PendingLogs        prometheus.Gauge
	PersistedSwaps     prometheus.Counter
	BlockProcessingDur prometheus.Histogram
}

// New registers the collectors with reg. A nil reg leaves them unregistered,
// which is what tests and callers without a /metrics endpoint want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProcessedBlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_blocks_total",
			Help:      "Blocks handed to the processor.",
		}),
		DroppedLogs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_logs_total",
			Help:      "Logs dropped because the pending buffer was full.",
		}),
		DuplicateLogs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_logs_total",
			Help:      "Logs discarded as redeliveries.",
		}),
		PendingLogs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_logs",
			Help:      "Logs buffered and waiting for a pass.",
		}),
		PersistedSwaps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persisted_swaps_total",
			Help:      "Swap rows written to the store.",
		}),
		BlockProcessingDur: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_processing_seconds",
			Help:      "Time spent decoding, pricing and persisting one block.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// Handler serves g in the Prometheus text format; nil serves the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
