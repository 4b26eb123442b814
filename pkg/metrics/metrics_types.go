// Package metrics exposes Prometheus instrumentation for the shard engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics emitted by the shard storage engine.
type Registry struct {
	registry *prometheus.Registry

	// Writer metrics (pkg/shard edge writer and lifecycle wrappers)
	WritesTotal          *prometheus.CounterVec
	WriteDuration        *prometheus.HistogramVec
	DeadlockRetriesTotal *prometheus.CounterVec
	PositionRetriesTotal *prometheus.CounterVec

	// Bulk copy ingester metrics
	BurstsTotal         *prometheus.CounterVec
	BurstDuration       prometheus.Histogram
	BatchFallbacksTotal prometheus.Counter
	BurstSize           prometheus.Histogram

	// Reader metrics
	ReadsTotal    *prometheus.CounterVec
	ReadDuration  *prometheus.HistogramVec
	PageSizeReads prometheus.Histogram

	// Metadata transactor metrics
	MetadataLockWaitSeconds prometheus.Histogram
	MetadataRecomputeTotal  prometheus.Counter
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide default registry, created lazily.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all shard metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{registry: reg}

	r.initWriterMetrics()
	r.initBulkCopyMetrics()
	r.initReaderMetrics()
	r.initMetadataMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
