package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBulkCopyMetrics() {
	r.BurstsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shard_copy_bursts_total",
			Help: "Total number of contiguous same-source bursts processed by write_copies",
		},
		[]string{"outcome"},
	)

	r.BurstDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shard_copy_burst_duration_seconds",
			Help:    "Time to ingest one burst, including any per-row fallback",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.BatchFallbacksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "shard_copy_batch_fallbacks_total",
			Help: "Total number of rows that fell back to the single-edge write path after a batch failure",
		},
	)

	r.BurstSize = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shard_copy_burst_size",
			Help:    "Number of edges per contiguous same-source burst",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 500},
		},
	)
}
