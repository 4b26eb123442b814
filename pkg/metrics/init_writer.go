package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initWriterMetrics() {
	r.WritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shard_writes_total",
			Help: "Total number of single-edge write attempts, by outcome",
		},
		[]string{"outcome"},
	)

	r.WriteDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shard_write_duration_seconds",
			Help:    "Single-edge write latency in seconds, including retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"outcome"},
	)

	r.DeadlockRetriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shard_deadlock_retries_total",
			Help: "Total number of writer retries triggered by a deadlock signal",
		},
		[]string{"exhausted"},
	)

	r.PositionRetriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shard_position_retries_total",
			Help: "Total number of writer retries triggered by a position collision",
		},
		[]string{"path"},
	)
}
