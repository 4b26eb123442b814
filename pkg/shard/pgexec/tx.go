package pgexec

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/shardedge/pkg/shard"
)

// pgxTx adapts an open pgx.Tx to shard.Tx.
type pgxTx struct {
	tx pgx.Tx
}

func (t pgxTx) Select(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) error {
	return selectRows(ctx, t.tx, sqlText, args, handle)
}

func (t pgxTx) SelectOne(ctx context.Context, class shard.QueryClass, sqlText string, args []any, handle shard.RowScanner) (bool, error) {
	return selectOneRow(ctx, t.tx, sqlText, args, handle)
}

func (t pgxTx) Exec(ctx context.Context, sqlText string, args ...any) (int64, error) {
	return execSQL(ctx, t.tx, sqlText, args...)
}

func (t pgxTx) ExecBatch(ctx context.Context, sqlText string, argRows [][]any) ([]shard.RowStatus, error) {
	batch := &pgx.Batch{}
	for _, args := range argRows {
		batch.Queue(sqlText, args...)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	return drainBatch(br, len(argRows))
}

// Transaction opens a pgx transaction, runs body, and commits on a nil
// return or rolls back otherwise (§4.1's "commit on normal return of f,
// roll back on any thrown error").
func (e *Executor) Transaction(ctx context.Context, body func(ctx context.Context, tx shard.Tx) error) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}

	if err := body(ctx, pgxTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
