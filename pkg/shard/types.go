// Package shard implements the per-shard storage engine for a horizontally
// partitioned graph-edge database: directed, labeled edges grouped by
// source id, per-source aggregate metadata, and monotonic, idempotent
// state transitions under concurrent writers.
//
// The package knows nothing of shard routing, replication topology, the
// RPC surface, schema DDL, or the query parser — it consumes only an
// Executor (see executor.go) and a Clock.
package shard

import "fmt"

// State is the closed, totally-ordered enum attributed to an edge or to a
// source's metadata. The wire ids are stable (§6.1); the order itself
// (Normal < Removed < Archived < Negative) is the contract used to break
// ties when two writes land at the same UpdatedAt.
type State uint8

const (
	Normal State = iota
	Removed
	Archived
	Negative
)

// String renders the state for logs and error messages.
func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Removed:
		return "removed"
	case Archived:
		return "archived"
	case Negative:
		return "negative"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// maxState returns the higher-precedence of two states, used to break ties at
// equal UpdatedAt (invariant 4) and to decide whether a metadata update
// would downgrade the source's state (invariant 5).
func maxState(a, b State) State {
	if b > a {
		return b
	}
	return a
}

// Edge is one row of the edges table: a directed relation from SourceID to
// DestinationID, uniquely identified by (SourceID, DestinationID).
// Position is a client-supplied ordering key, unique within
// (SourceID, State) by invariant 3.
type Edge struct {
	SourceID      uint64
	DestinationID uint64
	Position      int64
	UpdatedAt     uint32
	Count         uint8
	State         State
}

// Metadata is the single aggregate row kept per source id.
type Metadata struct {
	SourceID  uint64
	Count     int32
	State     State
	UpdatedAt uint32
}

// newMetadata builds the lazily-materialized default metadata row for a
// source that has never been touched: state Normal, UpdatedAt taken from
// the engine's Clock, and a count equal to however many Normal edges
// already exist for it (the transactor computes that count via a scan
// before inserting this row).
func newMetadata(sourceID uint64, normalCount int32, updatedAt uint32) Metadata {
	return Metadata{
		SourceID:  sourceID,
		Count:     normalCount,
		State:     Normal,
		UpdatedAt: updatedAt,
	}
}

// acceptsWrite reports whether a proposed (newAt, newState) may replace an
// existing (oldAt, oldState) edge under invariant 4: an edge never moves
// backward in the monotonic order (UpdatedAt ASC, state-precedence ASC).
func acceptsWrite(oldAt uint32, oldState State, newAt uint32, newState State) bool {
	if newAt > oldAt {
		return true
	}
	if newAt == oldAt {
		return maxState(oldState, newState) == newState
	}
	return false
}

// Clock supplies the monotonic, seconds-since-epoch timestamp the engine
// uses wherever "now" would otherwise be needed — currently, stamping a
// lazily-materialized metadata row's UpdatedAt at the moment it is first
// referenced. Injectable so callers (and tests) can supply a deterministic
// source of time rather than the engine calling time.Now() itself.
type Clock func() uint32
