package shard

import (
	"context"
	"time"
)

// Add accepts an edge write in the Normal state (§4.5 edge form).
func (s *Shard) Add(ctx context.Context, sourceID, destinationID uint64, position int64, updatedAt uint32) error {
	return s.Write(ctx, Edge{SourceID: sourceID, DestinationID: destinationID, Position: position, UpdatedAt: updatedAt, Count: 1, State: Normal})
}

// Negate accepts an edge write in the Negative state.
func (s *Shard) Negate(ctx context.Context, sourceID, destinationID uint64, position int64, updatedAt uint32) error {
	return s.Write(ctx, Edge{SourceID: sourceID, DestinationID: destinationID, Position: position, UpdatedAt: updatedAt, Count: 1, State: Negative})
}

// Remove accepts an edge write in the Removed (tombstone) state.
func (s *Shard) Remove(ctx context.Context, sourceID, destinationID uint64, position int64, updatedAt uint32) error {
	return s.Write(ctx, Edge{SourceID: sourceID, DestinationID: destinationID, Position: position, UpdatedAt: updatedAt, Count: 1, State: Removed})
}

// Archive accepts an edge write in the Archived state.
func (s *Shard) Archive(ctx context.Context, sourceID, destinationID uint64, position int64, updatedAt uint32) error {
	return s.Write(ctx, Edge{SourceID: sourceID, DestinationID: destinationID, Position: position, UpdatedAt: updatedAt, Count: 1, State: Archived})
}

// AddSource moves the whole source into the Normal state (§4.5 source form).
func (s *Shard) AddSource(ctx context.Context, sourceID uint64, updatedAt uint32) error {
	return s.UpdateMetadata(ctx, sourceID, Normal, updatedAt)
}

// NegateSource moves the whole source into the Negative state.
func (s *Shard) NegateSource(ctx context.Context, sourceID uint64, updatedAt uint32) error {
	return s.UpdateMetadata(ctx, sourceID, Negative, updatedAt)
}

// RemoveSource moves the whole source into the Removed state.
func (s *Shard) RemoveSource(ctx context.Context, sourceID uint64, updatedAt uint32) error {
	return s.UpdateMetadata(ctx, sourceID, Removed, updatedAt)
}

// ArchiveSource moves the whole source into the Archived state.
func (s *Shard) ArchiveSource(ctx context.Context, sourceID uint64, updatedAt uint32) error {
	return s.UpdateMetadata(ctx, sourceID, Archived, updatedAt)
}

// UpdateMetadata transitions a source's metadata row to state as of
// updatedAt, recomputing count by a full scan of the source's edges now
// in that state (§4.5 — acknowledged expensive, see the §9 design
// note). It only applies when updatedAt differs from the stored value
// or the transition doesn't downgrade state precedence.
func (s *Shard) UpdateMetadata(ctx context.Context, sourceID uint64, state State, updatedAt uint32) error {
	start := time.Now()
	err := s.atomically(ctx, sourceID, func(ctx context.Context, tx Tx, md Metadata) error {
		if updatedAt == md.UpdatedAt && maxState(md.State, state) != state {
			return nil
		}
		count, err := s.countEdgesInState(ctx, tx, sourceID, state)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, s.schema.updateMetadataStateSQL(), sourceID, uint8(state), updatedAt, count)
		if err != nil {
			return err
		}
		s.mx.RecordMetadataRecompute()
		return nil
	})
	if err != nil {
		return s.wrapExecErr("update_metadata", start, err)
	}
	return nil
}

// WriteMetadata attempts an unconditional insert of md; on a
// unique-violation (the row already exists) it falls back to the
// updated_at-guarded update inside atomically (§4.5).
func (s *Shard) WriteMetadata(ctx context.Context, md Metadata) error {
	start := time.Now()
	_, err := s.exec.Exec(ctx, s.schema.insertMetadataUnconditionalSQL(), md.SourceID, md.Count, uint8(md.State), md.UpdatedAt)
	if err == nil {
		return nil
	}
	if s.exec.Classify(err) != ErrKindIntegrityViolation {
		return s.wrapExecErr("write_metadata", start, err)
	}
	return s.UpdateMetadata(ctx, md.SourceID, md.State, md.UpdatedAt)
}

// WithLock opens a metadata transaction on sourceID and hands f the
// open Tx and the current, locked Metadata row, letting callers chain
// multiple operations under one lock (§4.5). f must not retain tx past
// its own return.
func (s *Shard) WithLock(ctx context.Context, sourceID uint64, f func(ctx context.Context, tx Tx, md Metadata) error) error {
	start := time.Now()
	if err := s.atomically(ctx, sourceID, f); err != nil {
		return s.wrapExecErr("with_lock", start, err)
	}
	return nil
}
