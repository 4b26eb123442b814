package shard

import (
	"context"
	"errors"
	"time"
)

// atomically runs f inside a database transaction that has acquired an
// exclusive row lock on the metadata row for sourceID (§4.1). If the row
// does not exist, it is lazily created outside the transaction (ignoring
// a unique-violation race with another writer) and the whole operation
// is retried once the default row is in place.
//
// Deadlock signals are not retried here — §4.1 is explicit that the
// transactor propagates them to the caller, which owns retry policy
// (the writer, §4.2).
func (s *Shard) atomically(ctx context.Context, sourceID uint64, f func(ctx context.Context, tx Tx, md Metadata) error) error {
	for {
		err := s.exec.Transaction(ctx, func(ctx context.Context, tx Tx) error {
			md, found, err := s.lockMetadata(ctx, tx, sourceID)
			if err != nil {
				return err
			}
			if !found {
				return errMissingMetadataRow
			}
			return f(ctx, tx, md)
		})

		if err == nil {
			return nil
		}
		if errors.Is(err, errMissingMetadataRow) {
			if insErr := s.lazilyInsertMetadata(ctx, sourceID); insErr != nil {
				return NewShardError(s.id, "atomically.lazy_insert", insErr)
			}
			continue
		}
		return err
	}
}

// lockMetadata reads the metadata row for sourceID with SELECT ... FOR
// UPDATE inside the open transaction tx, recording how long the row lock
// took to acquire.
func (s *Shard) lockMetadata(ctx context.Context, tx Tx, sourceID uint64) (Metadata, bool, error) {
	start := time.Now()
	var md Metadata
	found, err := tx.SelectOne(ctx, QueryClassSelectModify, s.schema.selectMetadataForUpdateSQL(), []any{sourceID}, func(scan func(dest ...any) error) error {
		var scanErr error
		md, scanErr = scanMetadata(scan)
		return scanErr
	})
	s.mx.RecordMetadataLockWait(time.Since(start))
	if err != nil {
		return Metadata{}, false, err
	}
	return md, found, nil
}

// lazilyInsertMetadata computes the default Normal-state row for a source
// that has never been referenced and inserts it, swallowing a
// unique-violation race against another actor doing the same thing
// (§4.1). The default count is a full scan of that source's Normal edges.
func (s *Shard) lazilyInsertMetadata(ctx context.Context, sourceID uint64) error {
	count, err := s.countEdgesInState(ctx, s.exec, sourceID, Normal)
	if err != nil {
		return err
	}

	md := newMetadata(sourceID, count, s.clock())
	_, err = s.exec.Exec(ctx, s.schema.insertDefaultMetadataSQL(), md.SourceID, md.Count, uint8(md.State), md.UpdatedAt)
	if err != nil && s.exec.Classify(err) != ErrKindIntegrityViolation {
		return err
	}
	return nil
}

// selectOner is the common read surface shared by Executor and Tx.
type selectOner interface {
	SelectOne(ctx context.Context, class QueryClass, sql string, args []any, handle RowScanner) (bool, error)
}

// countEdgesInState runs a full COUNT(*) of a source's edges in the
// given state, used both for lazy metadata creation and for
// update_metadata's recount (§4.5).
func (s *Shard) countEdgesInState(ctx context.Context, exec selectOner, sourceID uint64, state State) (int32, error) {
	var n int32
	_, err := exec.SelectOne(ctx, QueryClassSelect, s.schema.countEdgesInStateSQL(), []any{sourceID, uint8(state)}, func(scan func(dest ...any) error) error {
		return scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
