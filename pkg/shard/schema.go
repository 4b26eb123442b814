package shard

import "fmt"

// tableNames returns the shard's edges and metadata table names, built
// from its configured prefix (§6.2: "<prefix>_edges", "<prefix>_metadata").
func tableNames(prefix string) (edges, metadata string) {
	return prefix + "_edges", prefix + "_metadata"
}

// schema holds the shard's table names and the parameterized SQL it
// composes queries from. Kept separate from the paginated and scan query
// text (which reader.go builds) so the column layout is defined in one place.
type schema struct {
	edgesTable    string
	metadataTable string
}

func newSchema(prefix string) schema {
	e, m := tableNames(prefix)
	return schema{edgesTable: e, metadataTable: m}
}

// edgeColumns is the canonical column order used by every edge
// select/insert/update in this package.
var edgeColumns = []string{"source_id", "position", "updated_at", "destination_id", "count", "state"}

// scanEdge reads one row in edgeColumns order into an Edge.
func scanEdge(scan func(dest ...any) error) (Edge, error) {
	var e Edge
	var state uint8
	err := scan(&e.SourceID, &e.Position, &e.UpdatedAt, &e.DestinationID, &e.Count, &state)
	e.State = State(state)
	return e, err
}

// scanMetadata reads one metadata row (source_id, count, state, updated_at).
func scanMetadata(scan func(dest ...any) error) (Metadata, error) {
	var m Metadata
	var state uint8
	err := scan(&m.SourceID, &m.Count, &state, &m.UpdatedAt)
	m.State = State(state)
	return m, err
}

func (s schema) insertEdgeSQL() string {
	return fmt.Sprintf(
		`INSERT INTO %s (source_id, position, updated_at, destination_id, count, state) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.edgesTable,
	)
}

func (s schema) selectEdgeSQL() string {
	return fmt.Sprintf(
		`SELECT source_id, position, updated_at, destination_id, count, state FROM %s WHERE source_id = $1 AND destination_id = $2`,
		s.edgesTable,
	)
}

func (s schema) selectMetadataForUpdateSQL() string {
	return fmt.Sprintf(
		`SELECT source_id, count, state, updated_at FROM %s WHERE source_id = $1 FOR UPDATE`,
		s.metadataTable,
	)
}

func (s schema) selectMetadataSQL() string {
	return fmt.Sprintf(
		`SELECT source_id, count, state, updated_at FROM %s WHERE source_id = $1`,
		s.metadataTable,
	)
}

func (s schema) insertDefaultMetadataSQL() string {
	return fmt.Sprintf(
		`INSERT INTO %s (source_id, count, state, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (source_id) DO NOTHING`,
		s.metadataTable,
	)
}

func (s schema) updateMetadataCountDeltaSQL() string {
	return fmt.Sprintf(
		`UPDATE %s SET count = GREATEST(count + $2, 0) WHERE source_id = $1`,
		s.metadataTable,
	)
}

// updateMetadataCountDeltaUnclampedSQL is used by the bulk copy path,
// which assumes non-negative totals by construction (§4.3 step 5) and so
// skips the GREATEST clamp the single-edge writer applies.
func (s schema) updateMetadataCountDeltaUnclampedSQL() string {
	return fmt.Sprintf(
		`UPDATE %s SET count = count + $2 WHERE source_id = $1`,
		s.metadataTable,
	)
}

func (s schema) updateMetadataStateSQL() string {
	return fmt.Sprintf(
		`UPDATE %s SET state = $2, updated_at = $3, count = $4 WHERE source_id = $1 AND updated_at <= $3`,
		s.metadataTable,
	)
}

func (s schema) insertMetadataUnconditionalSQL() string {
	return fmt.Sprintf(
		`INSERT INTO %s (source_id, count, state, updated_at) VALUES ($1, $2, $3, $4)`,
		s.metadataTable,
	)
}

// updateEdgeReplacingPositionSQL backs the "reactivating an edge
// replaces its position" branch of update_edge (§4.2): old.state ==
// Archived && new.state == Normal.
func (s schema) updateEdgeReplacingPositionSQL() string {
	return fmt.Sprintf(
		`UPDATE %s SET updated_at = $4, position = $5, count = 0, state = $6
		 WHERE source_id = $1 AND destination_id = $2 AND updated_at <= $3`,
		s.edgesTable,
	)
}

// updateEdgeKeepingPositionSQL backs the default update_edge branch,
// which keeps the existing position.
func (s schema) updateEdgeKeepingPositionSQL() string {
	return fmt.Sprintf(
		`UPDATE %s SET updated_at = $4, count = 0, state = $5
		 WHERE source_id = $1 AND destination_id = $2 AND updated_at <= $3`,
		s.edgesTable,
	)
}

func (s schema) countEdgesInStateSQL() string {
	return fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE source_id = $1 AND state = $2`,
		s.edgesTable,
	)
}
