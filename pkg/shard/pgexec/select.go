package pgexec

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dd0wney/shardedge/pkg/shard"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the
// same Select/SelectOne/Exec logic run against a pooled connection or
// an open transaction (the stateless-Executor-as-parameter shape
// shard.Executor itself models).
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func selectRows(ctx context.Context, q pgxQuerier, sqlText string, args []any, handle shard.RowScanner) error {
	rows, err := q.Query(ctx, sqlText, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := handle(rows.Scan); err != nil {
			return err
		}
	}
	return rows.Err()
}

func selectOneRow(ctx context.Context, q pgxQuerier, sqlText string, args []any, handle shard.RowScanner) (bool, error) {
	rows, err := q.Query(ctx, sqlText, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}
	if err := handle(rows.Scan); err != nil {
		return false, err
	}
	return true, rows.Err()
}

func execSQL(ctx context.Context, q pgxQuerier, sqlText string, args ...any) (int64, error) {
	tag, err := q.Exec(ctx, sqlText, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Select runs a streaming query against the pool (outside any
// transaction).
func (e *Executor) Select(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) error {
	return selectRows(ctx, e.pool, sqlText, args, handle)
}

// SelectOne runs a point query against the pool.
func (e *Executor) SelectOne(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) (bool, error) {
	return selectOneRow(ctx, e.pool, sqlText, args, handle)
}

// Exec runs a single statement against the pool.
func (e *Executor) Exec(ctx context.Context, sqlText string, args ...any) (int64, error) {
	return execSQL(ctx, e.pool, sqlText, args...)
}

// ExecBatch issues one multi-row INSERT via pgx's batch pipeline and
// reports a per-row status: a row whose individual Exec in the batch
// errors is marked failed (negative status) rather than aborting the
// whole batch, per §4.3's per-row partition rule.
func (e *Executor) ExecBatch(ctx context.Context, sqlText string, argRows [][]any) ([]shard.RowStatus, error) {
	batch := &pgx.Batch{}
	for _, args := range argRows {
		batch.Queue(sqlText, args...)
	}

	br := e.pool.SendBatch(ctx, batch)
	defer br.Close()

	return drainBatch(br, len(argRows))
}

// errBatchPartialFailure is the sentinel ExecBatch returns whenever at
// least one row in the batch failed, so callers can tell "fully
// succeeded" (nil, nil) apart from "inspect the per-row statuses"
// without re-deriving it from the status slice themselves.
var errBatchPartialFailure = errors.New("pgexec: batch insert had per-row failures")

// batchResults is satisfied by pgx.BatchResults.
type batchResults interface {
	Exec() (pgconn.CommandTag, error)
}

// drainBatch consumes n queued statements from a pgx batch result,
// turning each Exec error into a negative RowStatus (§4.3 step 3).
func drainBatch(br batchResults, n int) ([]shard.RowStatus, error) {
	statuses := make([]shard.RowStatus, n)
	anyFailed := false
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			statuses[i] = shard.RowStatus(-1)
			anyFailed = true
			continue
		}
		statuses[i] = shard.RowStatus(1)
	}
	if !anyFailed {
		return nil, nil
	}
	return statuses, errBatchPartialFailure
}
