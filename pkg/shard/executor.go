package shard

import "context"

// QueryClass tags a query so the executor can route it to a possibly
// distinct replica or timeout (§6.3).
type QueryClass string

const (
	QueryClassSelect       QueryClass = "select"
	QueryClassSelectModify QueryClass = "select_modify"
	QueryClassSelectCopy   QueryClass = "select_copy"
)

// RowScanner is handed one row at a time by Select/SelectOne; it reads
// the row's columns in query order.
type RowScanner func(scan func(dest ...any) error) error

// RowStatus is the per-row outcome of a batched INSERT issued through
// ExecBatch: a negative status marks that row as failed (§4.3 step 3).
type RowStatus int64

// Failed reports whether this row's batch status indicates failure.
func (s RowStatus) Failed() bool {
	return s < 0
}

// Tx is the transactional handle passed into the body function of
// Executor.Transaction. It exposes the same read/write surface as
// Executor, but all statements run inside the open transaction.
type Tx interface {
	Select(ctx context.Context, class QueryClass, sql string, args []any, handle RowScanner) error
	SelectOne(ctx context.Context, class QueryClass, sql string, args []any, handle RowScanner) (bool, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	ExecBatch(ctx context.Context, sql string, argRows [][]any) ([]RowStatus, error)
}

// Executor is the only collaborator the engine requires from its
// backing store (§6.3): streaming/point selects, single statement
// execution, batched multi-row insert with per-row status, and
// transactions that expose the same surface. Modeled as a stateless
// interface in the style of the ali01-mnemosyne Executor abstraction —
// repository methods take the executor as a parameter rather than
// owning a connection, so the same engine code runs against a pooled
// connection or an open transaction.
type Executor interface {
	Select(ctx context.Context, class QueryClass, sql string, args []any, handle RowScanner) error
	SelectOne(ctx context.Context, class QueryClass, sql string, args []any, handle RowScanner) (bool, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	ExecBatch(ctx context.Context, sql string, argRows [][]any) ([]RowStatus, error)
	Transaction(ctx context.Context, body func(ctx context.Context, tx Tx) error) error

	// Classify distinguishes the error signals §6.3 requires: integrity
	// violation, deadlock/rollback, and query timeout. Implementations
	// inspect driver-specific error codes (e.g. pgconn.PgError.Code).
	Classify(err error) ErrorKind
}

// ErrorKind is the taxonomy of backend error signals the writer and
// transactor must distinguish (§7).
type ErrorKind int

const (
	ErrKindOther ErrorKind = iota
	ErrKindIntegrityViolation
	ErrKindDeadlock
	ErrKindTimeout
)
