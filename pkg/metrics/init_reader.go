package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReaderMetrics() {
	r.ReadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shard_reads_total",
			Help: "Total number of reader calls, by view",
		},
		[]string{"view"},
	)

	r.ReadDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shard_read_duration_seconds",
			Help:    "Reader call latency in seconds, by view",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"view"},
	)

	r.PageSizeReads = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shard_page_size_reads",
			Help:    "Size passed by each reader call: the requested page size for paginated and scan reads, or the number of lookup keys",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)
}
