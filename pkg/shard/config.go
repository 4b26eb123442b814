package shard

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New()

// Config holds the per-shard configuration keys named in §6.4.
type Config struct {
	// TablePrefix is prepended to "edges"/"metadata" to name this
	// shard's tables (<prefix>_edges, <prefix>_metadata).
	TablePrefix string `validate:"required,alphanum"`

	// DBName, DBUser, DBPassword are the edges.db_name / db.username /
	// db.password configuration keys.
	DBName     string `validate:"required"`
	DBUser     string `validate:"required"`
	DBPassword string `validate:"-"`

	// DeadlockRetries is errors.deadlock_retries: the total number of
	// attempts the writer makes for a single-edge write, so a deadlock
	// signal is retried at most DeadlockRetries-1 times.
	DeadlockRetries int `validate:"required,min=1,max=20"`
}

// DefaultConfig returns a safe default configuration, grounded on the
// teacher's DefaultClusterConfig pattern: a small, explicit retry budget
// rather than unbounded retries.
func DefaultConfig(tablePrefix, dbName, dbUser string) Config {
	return Config{
		TablePrefix:     tablePrefix,
		DBName:          dbName,
		DBUser:          dbUser,
		DeadlockRetries: 3,
	}
}

// Validate checks the configuration against its go-playground/validator
// struct tags; there are no further hand-written checks.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("shard: invalid config: %w", err)
	}
	return nil
}
