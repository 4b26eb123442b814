package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initMetadataMetrics() {
	r.MetadataLockWaitSeconds = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shard_metadata_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the metadata row lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	r.MetadataRecomputeTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "shard_metadata_recompute_total",
			Help: "Total number of full COUNT(*) recomputations triggered by update_metadata",
		},
	)
}
