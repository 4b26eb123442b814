// Package pgexec implements shard.Executor on top of pgx/v5, following
// the pool-plus-migrate shape of pkg/licensing's PGStore.
package pgexec

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/shardedge/pkg/shard"
)

// Executor is a pgxpool-backed shard.Executor.
type Executor struct {
	pool *pgxpool.Pool
}

// Config configures the pool that backs an Executor.
type Config struct {
	DatabaseURL     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig mirrors licensing.NewPGStore's pool sizing.
func DefaultConfig(databaseURL string) Config {
	return Config{
		DatabaseURL:     databaseURL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
	}
}

// New opens a connection pool, verifies connectivity, and runs the
// shard schema's migration (§6.2).
func New(ctx context.Context, cfg Config, tablePrefix string) (*Executor, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgexec: parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgexec: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgexec: database unreachable: %w", err)
	}

	e := &Executor{pool: pool}
	if err := migrate(ctx, pool, tablePrefix); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgexec: migration failed: %w", err)
	}
	return e, nil
}

// Close releases the underlying pool.
func (e *Executor) Close() {
	e.pool.Close()
}

var _ shard.Executor = (*Executor)(nil)
