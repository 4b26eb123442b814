package pgexec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrate creates the shard's two tables and their indexes if they do
// not already exist, following store_pg_schema.go's
// CREATE-TABLE-IF-NOT-EXISTS-plus-indexes shape. This is a convenience
// for local/dev use, not a substitute for a real DDL driver (§1, §6.2).
func migrate(ctx context.Context, pool *pgxpool.Pool, tablePrefix string) error {
	edgesTable := tablePrefix + "_edges"
	metadataTable := tablePrefix + "_metadata"

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		source_id      BIGINT NOT NULL,
		destination_id BIGINT NOT NULL,
		position       BIGINT NOT NULL,
		updated_at     INTEGER NOT NULL,
		count          SMALLINT NOT NULL DEFAULT 0,
		state          SMALLINT NOT NULL,
		PRIMARY KEY (source_id, destination_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_source_state_position
		ON %[1]s (source_id, state, position);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_source_destination
		ON %[1]s (source_id, destination_id);

	CREATE TABLE IF NOT EXISTS %[2]s (
		source_id  BIGINT PRIMARY KEY,
		count      INTEGER NOT NULL DEFAULT 0,
		state      SMALLINT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`, edgesTable, metadataTable)

	_, err := pool.Exec(ctx, schema)
	return err
}
