package shard

import (
	"context"
	"time"

	"github.com/dd0wney/shardedge/pkg/logging"
)

// WriteCopies bulk-ingests edges that are already grouped contiguously by
// SourceID (caller-guaranteed; adjacent-group detection is by equality
// to the current group's head, §4.3). Each contiguous same-source burst
// is ingested as a batched INSERT with a per-row fallback to the
// single-edge write path for rows the batch rejected.
func (s *Shard) WriteCopies(ctx context.Context, edges []Edge) error {
	i := 0
	for i < len(edges) {
		j := i + 1
		for j < len(edges) && edges[j].SourceID == edges[i].SourceID {
			j++
		}
		if err := s.writeBurst(ctx, edges[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// writeBurst implements §4.3 steps 1–6 for one contiguous same-source
// burst: open a metadata transaction, attempt the batched insert,
// partition by per-row status on failure, fall back row-by-row, and
// reconcile the metadata count once in a finally-equivalent deferred
// update — no GREATEST clamp here, since the copy path assumes
// non-negative totals by construction.
func (s *Shard) writeBurst(ctx context.Context, burst []Edge) error {
	start := time.Now()
	sourceID := burst[0].SourceID
	outcome := "success"

	err := s.atomically(ctx, sourceID, func(ctx context.Context, tx Tx, md Metadata) (txErr error) {
		var cumulativeDelta int32

		defer func() {
			if cumulativeDelta != 0 {
				if _, err := tx.Exec(ctx, s.schema.updateMetadataCountDeltaUnclampedSQL(), sourceID, cumulativeDelta); err != nil && txErr == nil {
					txErr = err
				}
			}
		}()

		completed, failed, err := s.insertBurst(ctx, tx, burst)
		if err != nil {
			txErr = err
			return err
		}

		for _, e := range completed {
			if e.State == md.State {
				cumulativeDelta++
			}
		}

		if len(failed) > 0 {
			outcome = "partial_fallback"
			s.mx.RecordBatchFallback(len(failed))
			s.log.Warn("batch insert partially failed, falling back to single-edge path",
				logging.SourceID(sourceID), logging.Count(len(failed)))

			for _, e := range failed {
				delta, werr := s.writeEdge(ctx, tx, md, e, false)
				if werr != nil {
					txErr = werr
					return werr
				}
				cumulativeDelta += delta
			}
		}

		return txErr
	})

	if err != nil {
		outcome = "error"
	}
	s.mx.RecordBurst(outcome, len(burst), time.Since(start))
	if err != nil {
		return s.wrapExecErr("write_copies", start, err)
	}
	return nil
}

// insertBurst attempts the single multi-row INSERT and, on a reported
// batch failure, partitions the burst by per-row status: rows with a
// negative status are failed, the rest are completed (§4.3 step 3).
func (s *Shard) insertBurst(ctx context.Context, tx Tx, burst []Edge) (completed, failed []Edge, err error) {
	argRows := make([][]any, len(burst))
	for i, e := range burst {
		argRows[i] = []any{e.SourceID, e.Position, e.UpdatedAt, e.DestinationID, e.Count, uint8(e.State)}
	}

	statuses, batchErr := tx.ExecBatch(ctx, s.schema.insertEdgeSQL(), argRows)
	if batchErr == nil {
		return burst, nil, nil
	}
	if statuses == nil {
		// Catastrophic failure with no per-row detail: the whole burst
		// falls back to the single-edge path.
		return nil, burst, nil
	}

	for i, st := range statuses {
		if st.Failed() {
			failed = append(failed, burst[i])
		} else {
			completed = append(completed, burst[i])
		}
	}
	return completed, failed, nil
}
