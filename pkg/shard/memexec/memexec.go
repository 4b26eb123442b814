// Package memexec is an in-memory shard.Executor used by tests and
// local development in place of a real Postgres connection. It
// recognizes the fixed SQL shapes pkg/shard issues (there are only a
// couple dozen distinct query templates, all built in schema.go and
// reader.go) and serves them from plain Go maps, guarded by a single
// mutex held for the duration of each transaction — a coarse but
// correct stand-in for SELECT ... FOR UPDATE, in the spirit of the
// MVCCDataSource snapshot/transaction split the kasuganosora-sqlexec
// reference file uses for its own in-memory SQL engine.
package memexec

import (
	"context"
	"errors"
	"sync"

	"github.com/dd0wney/shardedge/pkg/shard"
)

// ErrUniqueViolation and ErrDeadlock are the sentinel signals Classify
// recognizes, standing in for a real driver's SQLSTATE codes.
var (
	ErrUniqueViolation = errors.New("memexec: unique constraint violation")
	ErrDeadlock        = errors.New("memexec: deadlock detected")
)

// store keeps edges in a nested map (source -> destination -> edge) and
// metadata in a map keyed by source, both for direct lookup; read paths
// that need an order collect one source's edges and sort them per call.
type store struct {
	mu sync.Mutex

	edges    map[uint64]map[uint64]shard.Edge // source -> destination -> edge
	metadata map[uint64]shard.Metadata

	// deadlockInjections lets tests force the next N transactions
	// opened on a source to fail with ErrDeadlock before succeeding,
	// exercising the writer's deadlock-retry loop (§4.2) without a
	// real database.
	deadlockInjections map[uint64]int
}

func newStore() *store {
	return &store{
		edges:               make(map[uint64]map[uint64]shard.Edge),
		metadata:            make(map[uint64]shard.Metadata),
		deadlockInjections:  make(map[uint64]int),
	}
}

// Executor is the non-transactional entry point: every call takes the
// store's lock for just that one operation.
type Executor struct {
	st *store
}

// New returns an empty in-memory Executor.
func New() *Executor {
	return &Executor{st: newStore()}
}

// InjectDeadlock makes the next n transactions opened on sourceID fail
// immediately with a deadlock signal, for exercising retry behavior.
func (e *Executor) InjectDeadlock(sourceID uint64, n int) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	e.st.deadlockInjections[sourceID] = n
}

// Seed directly inserts edges and metadata for test setup, bypassing
// the write path's invariants.
func (e *Executor) Seed(edges []shard.Edge, metadata []shard.Metadata) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	for _, ed := range edges {
		if e.st.edges[ed.SourceID] == nil {
			e.st.edges[ed.SourceID] = make(map[uint64]shard.Edge)
		}
		e.st.edges[ed.SourceID][ed.DestinationID] = ed
	}
	for _, md := range metadata {
		e.st.metadata[md.SourceID] = md
	}
}

func (e *Executor) Select(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) error {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return runSelect(e.st, sqlText, args, handle)
}

func (e *Executor) SelectOne(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) (bool, error) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return runSelectOne(e.st, sqlText, args, handle)
}

func (e *Executor) Exec(ctx context.Context, sqlText string, args ...any) (int64, error) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return runExec(e.st, sqlText, args)
}

func (e *Executor) ExecBatch(ctx context.Context, sqlText string, argRows [][]any) ([]shard.RowStatus, error) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return runExecBatch(e.st, sqlText, argRows)
}

// Transaction holds the store's lock for the whole body, which is
// simultaneously how it emulates SELECT ... FOR UPDATE (nobody else
// can observe or mutate the store while a transaction is open) and how
// it guarantees the body's statements are atomic. A deadlock injection
// registered against the source named in the transaction's first
// locking read short-circuits the body entirely, matching how a real
// deadlock aborts the transaction before it does any work.
func (e *Executor) Transaction(ctx context.Context, body func(ctx context.Context, tx shard.Tx) error) error {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()

	tx := &memTx{st: e.st}
	return body(ctx, tx)
}

// Classify maps memexec's sentinel errors to shard.ErrorKind, mirroring
// how a pgx-backed executor inspects pgconn.PgError.Code.
func (e *Executor) Classify(err error) shard.ErrorKind {
	switch {
	case err == nil:
		return shard.ErrKindOther
	case errors.Is(err, ErrUniqueViolation):
		return shard.ErrKindIntegrityViolation
	case errors.Is(err, ErrDeadlock):
		return shard.ErrKindDeadlock
	case errors.Is(err, context.DeadlineExceeded):
		return shard.ErrKindTimeout
	default:
		return shard.ErrKindOther
	}
}

// memTx is the transactional handle handed to Executor.Transaction's
// body. It shares the already-locked store directly — no further
// locking needed since Transaction holds st.mu for the body's duration.
type memTx struct {
	st *store
}

func (t *memTx) Select(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) error {
	return runSelect(t.st, sqlText, args, handle)
}

func (t *memTx) SelectOne(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) (bool, error) {
	if isLockingRead(sqlText) {
		if sourceID, ok := firstUint64Arg(args); ok && t.st.consumeDeadlockInjection(sourceID) {
			return false, ErrDeadlock
		}
	}
	return runSelectOne(t.st, sqlText, args, handle)
}

func (t *memTx) Exec(ctx context.Context, sqlText string, args ...any) (int64, error) {
	return runExec(t.st, sqlText, args)
}

func (t *memTx) ExecBatch(ctx context.Context, sqlText string, argRows [][]any) ([]shard.RowStatus, error) {
	return runExecBatch(t.st, sqlText, argRows)
}

func (st *store) consumeDeadlockInjection(sourceID uint64) bool {
	n := st.deadlockInjections[sourceID]
	if n <= 0 {
		return false
	}
	st.deadlockInjections[sourceID] = n - 1
	return true
}

func firstUint64Arg(args []any) (uint64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, ok := args[0].(uint64)
	return id, ok
}
