package pgexec

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dd0wney/shardedge/pkg/shard"
)

// Postgres SQLSTATE codes the writer and transactor need to
// distinguish (§7): serialization_failure / deadlock_detected, and
// unique_violation.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateQueryCanceled        = "57014"
)

// Classify inspects the driver error for a pgconn.PgError code,
// mirroring the teacher's errors.Is(err, pgx.ErrNoRows) idiom of
// branching on a driver-specific error signal.
func (e *Executor) Classify(err error) shard.ErrorKind {
	if err == nil {
		return shard.ErrKindOther
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return shard.ErrKindDeadlock
		case sqlStateUniqueViolation:
			return shard.ErrKindIntegrityViolation
		case sqlStateQueryCanceled:
			return shard.ErrKindTimeout
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return shard.ErrKindTimeout
	}
	return shard.ErrKindOther
}
