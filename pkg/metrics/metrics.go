package metrics

import "time"

// RecordWrite records a single-edge write attempt.
func (r *Registry) RecordWrite(outcome string, duration time.Duration) {
	r.WritesTotal.WithLabelValues(outcome).Inc()
	r.WriteDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordDeadlockRetry records one writer retry triggered by a deadlock signal.
func (r *Registry) RecordDeadlockRetry(exhausted bool) {
	label := "false"
	if exhausted {
		label = "true"
	}
	r.DeadlockRetriesTotal.WithLabelValues(label).Inc()
}

// RecordPositionRetry records one writer retry triggered by a position collision.
func (r *Registry) RecordPositionRetry(path string) {
	r.PositionRetriesTotal.WithLabelValues(path).Inc()
}

// RecordBurst records one contiguous same-source burst processed by write_copies.
func (r *Registry) RecordBurst(outcome string, size int, duration time.Duration) {
	r.BurstsTotal.WithLabelValues(outcome).Inc()
	r.BurstDuration.Observe(duration.Seconds())
	r.BurstSize.Observe(float64(size))
}

// RecordBatchFallback records rows that fell back to the single-edge write path.
func (r *Registry) RecordBatchFallback(rows int) {
	r.BatchFallbacksTotal.Add(float64(rows))
}

// RecordRead records a reader call.
func (r *Registry) RecordRead(view string, pageSize int, duration time.Duration) {
	r.ReadsTotal.WithLabelValues(view).Inc()
	r.ReadDuration.WithLabelValues(view).Observe(duration.Seconds())
	r.PageSizeReads.Observe(float64(pageSize))
}

// RecordMetadataLockWait records time spent waiting for the metadata row lock.
func (r *Registry) RecordMetadataLockWait(d time.Duration) {
	r.MetadataLockWaitSeconds.Observe(d.Seconds())
}

// RecordMetadataRecompute records a full COUNT(*) recomputation.
func (r *Registry) RecordMetadataRecompute() {
	r.MetadataRecomputeTotal.Inc()
}
