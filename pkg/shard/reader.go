package shard

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/shardedge/pkg/logging"
)

// Get is the point lookup by (source, destination) (§4.4).
func (s *Shard) Get(ctx context.Context, sourceID, destinationID uint64) (Edge, bool, error) {
	start := time.Now()
	var e Edge
	found, err := s.exec.SelectOne(ctx, QueryClassSelect, s.schema.selectEdgeSQL(), []any{sourceID, destinationID}, func(scan func(dest ...any) error) error {
		var serr error
		e, serr = scanEdge(scan)
		return serr
	})
	s.mx.RecordRead("get", 1, time.Since(start))
	if err != nil {
		return Edge{}, false, s.wrapExecErr("get", start, err)
	}
	return e, found, nil
}

// Count reads the metadata row and sums its count over every state in
// states that equals the metadata's own state. If the row is missing,
// it is populated (via the lazy-insert path) and the read retried once
// (§4.4).
func (s *Shard) Count(ctx context.Context, sourceID uint64, states []State) (int32, error) {
	start := time.Now()
	md, found, err := s.selectMetadata(ctx, sourceID)
	if err != nil {
		return 0, s.wrapExecErr("count", start, err)
	}
	if !found {
		if err := s.lazilyInsertMetadata(ctx, sourceID); err != nil {
			return 0, s.wrapExecErr("count", start, err)
		}
		md, found, err = s.selectMetadata(ctx, sourceID)
		if err != nil {
			return 0, s.wrapExecErr("count", start, err)
		}
		if !found {
			return 0, NewShardError(s.id, "count", errMissingMetadataRow)
		}
	}

	s.mx.RecordRead("count", 1, time.Since(start))
	for _, st := range states {
		if st == md.State {
			return md.Count, nil
		}
	}
	return 0, nil
}

// Counts is the batch form of Count: sources absent from the supplied
// map stay absent, matching the "missing sources remain missing" rule
// in §4.4 (a batch lookup does not lazily materialize metadata).
func (s *Shard) Counts(ctx context.Context, sourceIDs []uint64, states []State, results map[uint64]int32) error {
	start := time.Now()
	stateSet := make(map[State]bool, len(states))
	for _, st := range states {
		stateSet[st] = true
	}

	for _, sourceID := range sourceIDs {
		md, found, err := s.selectMetadata(ctx, sourceID)
		if err != nil {
			return s.wrapExecErr("counts", start, err)
		}
		if !found {
			continue
		}
		if stateSet[md.State] {
			results[sourceID] = md.Count
		}
	}
	s.mx.RecordRead("counts", len(sourceIDs), time.Since(start))
	return nil
}

func (s *Shard) selectMetadata(ctx context.Context, sourceID uint64) (Metadata, bool, error) {
	var md Metadata
	found, err := s.exec.SelectOne(ctx, QueryClassSelect, s.schema.selectMetadataSQL(), []any{sourceID}, func(scan func(dest ...any) error) error {
		var serr error
		md, serr = scanMetadata(scan)
		return serr
	})
	if err != nil {
		return Metadata{}, false, err
	}
	return md, found, nil
}

// SelectAllMetadata is the full metadata scan used by copy (§4.4):
// ascending by source_id, filtered by source_id > cursor, fetching
// count+1 rows to detect whether another page follows.
func (s *Shard) SelectAllMetadata(ctx context.Context, cursor MetadataScanCursor, count int) ([]Metadata, MetadataScanCursor, bool, error) {
	start := time.Now()
	sqlText := fmt.Sprintf(
		`SELECT source_id, count, state, updated_at FROM %s WHERE source_id > $1 ORDER BY source_id ASC LIMIT $2`,
		s.schema.metadataTable,
	)
	var rows []Metadata
	err := s.exec.Select(ctx, QueryClassSelectCopy, sqlText, []any{uint64(cursor), count + 1}, func(scan func(dest ...any) error) error {
		md, serr := scanMetadata(scan)
		if serr != nil {
			return serr
		}
		rows = append(rows, md)
		return nil
	})
	if err != nil {
		return nil, 0, false, s.wrapExecErr("select_all_metadata", start, err)
	}

	hasMore := len(rows) > count
	if hasMore {
		rows = rows[:count]
	}
	next := cursor
	if hasMore {
		next = MetadataScanCursor(rows[len(rows)-1].SourceID)
	}
	s.mx.RecordRead("select_all_metadata", count, time.Since(start))
	return rows, next, hasMore, nil
}

// SelectAll is the full edge scan used by copy (§4.4): ordering
// (source_id ASC, destination_id ASC), predicate
// (source_id = c1 AND destination_id > c2) OR source_id > c1.
func (s *Shard) SelectAll(ctx context.Context, cursor EdgeScanCursor, count int) ([]Edge, EdgeScanCursor, bool, error) {
	start := time.Now()
	sqlText := fmt.Sprintf(
		`SELECT source_id, position, updated_at, destination_id, count, state FROM %s
		 WHERE (source_id = $1 AND destination_id > $2) OR source_id > $1
		 ORDER BY source_id ASC, destination_id ASC LIMIT $3`,
		s.schema.edgesTable,
	)
	var rows []Edge
	err := s.exec.Select(ctx, QueryClassSelectCopy, sqlText, []any{cursor.SourceID, cursor.DestinationID, count + 1}, func(scan func(dest ...any) error) error {
		e, serr := scanEdge(scan)
		if serr != nil {
			return serr
		}
		rows = append(rows, e)
		return nil
	})
	if err != nil {
		return nil, EdgeScanCursor{}, false, s.wrapExecErr("select_all", start, err)
	}

	hasMore := len(rows) > count
	if hasMore {
		rows = rows[:count]
	}
	next := cursor
	if hasMore {
		last := rows[len(rows)-1]
		next = EdgeScanCursor{SourceID: last.SourceID, DestinationID: last.DestinationID}
	}
	s.mx.RecordRead("select_all", count, time.Since(start))
	return rows, next, hasMore, nil
}

// statesFilter builds the "state = ANY($2)" predicate shared by every
// paginated edge select that takes an explicit state list.
func statesFilter(states []State) (string, any) {
	arg := make([]int16, len(states))
	for i, st := range states {
		arg[i] = int16(st)
	}
	return "state = ANY($2)", arg
}

// excludeRemovedFilter backs select_including_archived's predicate.
func excludeRemovedFilter() (string, any) {
	return "state != $2", int16(Removed)
}

// SelectByDestinationID orders by destination_id over index
// (source_id, destination_id) (§4.4).
func (s *Shard) SelectByDestinationID(ctx context.Context, sourceID uint64, states []State, count int, cursor Cursor) (ResultWindow[Edge], error) {
	filterSQL, filterArg := statesFilter(states)
	return s.paginate(ctx, "select_by_destination_id", sourceID, "destination_id", filterSQL, filterArg, count, cursor)
}

// SelectByPosition orders by position over the primary-key index.
func (s *Shard) SelectByPosition(ctx context.Context, sourceID uint64, states []State, count int, cursor Cursor) (ResultWindow[Edge], error) {
	filterSQL, filterArg := statesFilter(states)
	return s.paginate(ctx, "select_by_position", sourceID, "position", filterSQL, filterArg, count, cursor)
}

// SelectIncludingArchived orders by destination_id but, unlike
// SelectByDestinationID, filters out only Removed rows rather than
// matching an explicit state list (§4.4).
func (s *Shard) SelectIncludingArchived(ctx context.Context, sourceID uint64, count int, cursor Cursor) (ResultWindow[Edge], error) {
	filterSQL, filterArg := excludeRemovedFilter()
	return s.paginate(ctx, "select_including_archived", sourceID, "destination_id", filterSQL, filterArg, count, cursor)
}

// SelectEdges is select_by_position's twin: same ordering and filter,
// named separately because callers use it specifically to fetch full
// edge rows rather than just checking membership (§4.4).
func (s *Shard) SelectEdges(ctx context.Context, sourceID uint64, states []State, count int, cursor Cursor) (ResultWindow[Edge], error) {
	return s.SelectByPosition(ctx, sourceID, states, count, cursor)
}

// paginate implements the bidirectional paging protocol (§4.4): a page
// query in the cursor's own direction plus a single-row continuation
// probe in the opposite direction, anchoring prev_cursor. Modeled as
// two round trips rather than a SQL-level UNION, per the design note
// in §9 sanctioning that substitution.
func (s *Shard) paginate(ctx context.Context, view string, sourceID uint64, orderColumn, filterSQL string, filterArg any, count int, cursor Cursor) (ResultWindow[Edge], error) {
	start := time.Now()
	forward := cursor.Forward()
	comparand := cursor.Magnitude()
	s.log.Debug("paginate", logging.SourceID(sourceID), logging.CursorValue(int64(cursor)), logging.Component(view))

	pageOp, pageOrder := "<", "DESC"
	probeOp, probeOrder := ">", "ASC"
	if !forward {
		pageOp, pageOrder = ">", "ASC"
		probeOp, probeOrder = "<", "DESC"
	}

	pageSQL := fmt.Sprintf(
		`SELECT source_id, position, updated_at, destination_id, count, state FROM %s
		 WHERE source_id = $1 AND %s AND %s %s $3
		 ORDER BY %s %s LIMIT $4`,
		s.schema.edgesTable, filterSQL, orderColumn, pageOp, orderColumn, pageOrder,
	)

	var rows []Edge
	err := s.exec.Select(ctx, QueryClassSelect, pageSQL, []any{sourceID, filterArg, comparand, count + 1}, func(scan func(dest ...any) error) error {
		e, serr := scanEdge(scan)
		if serr != nil {
			return serr
		}
		rows = append(rows, e)
		return nil
	})
	if err != nil {
		return ResultWindow[Edge]{}, s.wrapExecErr("paginate", start, err)
	}

	win := ResultWindow[Edge]{NextCursor: End, PrevCursor: End}
	if len(rows) > count {
		rows = rows[:count]
		win.NextCursor = NewCursor(orderColumnValue(rows[count-1], orderColumn), forward)
	}
	win.Page = rows

	// prev_cursor anchors on this page's own boundary row (its first
	// returned row, nearest the query's starting edge) rather than on
	// whatever the probe scans: the probe only needs to answer "does
	// anything lie beyond that boundary", a plain existence check.
	if len(win.Page) > 0 {
		boundary := orderColumnValue(win.Page[0], orderColumn)

		probeSQL := fmt.Sprintf(
			`SELECT source_id, position, updated_at, destination_id, count, state FROM %s
			 WHERE source_id = $1 AND %s AND %s %s $3
			 ORDER BY %s %s LIMIT 1`,
			s.schema.edgesTable, filterSQL, orderColumn, probeOp, orderColumn, probeOrder,
		)

		found, err := s.exec.SelectOne(ctx, QueryClassSelect, probeSQL, []any{sourceID, filterArg, boundary}, func(scan func(dest ...any) error) error {
			_, serr := scanEdge(scan)
			return serr
		})
		if err != nil {
			return ResultWindow[Edge]{}, s.wrapExecErr("paginate", start, err)
		}
		if found {
			win.PrevCursor = NewCursor(boundary, !forward)
		}
	}

	if !forward {
		reverseEdges(win.Page)
	}
	s.mx.RecordRead(view, count, time.Since(start))
	return win, nil
}

func orderColumnValue(e Edge, orderColumn string) int64 {
	if orderColumn == "position" {
		return e.Position
	}
	return int64(e.DestinationID)
}

func reverseEdges(edges []Edge) {
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
}

// Intersect reports, of destinationIDs, which are present among
// source's edges in any of states, ordered destination_id DESC. Empty
// input returns empty output without a round trip (§4.4).
func (s *Shard) Intersect(ctx context.Context, sourceID uint64, states []State, destinationIDs []uint64) ([]uint64, error) {
	edges, err := s.IntersectEdges(ctx, sourceID, states, destinationIDs)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(edges))
	for i, e := range edges {
		out[i] = e.DestinationID
	}
	return out, nil
}

// IntersectEdges is Intersect's full-row twin, returning matching edges.
func (s *Shard) IntersectEdges(ctx context.Context, sourceID uint64, states []State, destinationIDs []uint64) ([]Edge, error) {
	if len(destinationIDs) == 0 {
		return nil, nil
	}
	start := time.Now()

	stateArg := make([]int16, len(states))
	for i, st := range states {
		stateArg[i] = int16(st)
	}
	destArg := make([]int64, len(destinationIDs))
	for i, d := range destinationIDs {
		destArg[i] = int64(d)
	}

	sqlText := fmt.Sprintf(
		`SELECT source_id, position, updated_at, destination_id, count, state FROM %s
		 WHERE source_id = $1 AND state = ANY($2) AND destination_id = ANY($3)
		 ORDER BY destination_id DESC`,
		s.schema.edgesTable,
	)

	var rows []Edge
	err := s.exec.Select(ctx, QueryClassSelect, sqlText, []any{sourceID, stateArg, destArg}, func(scan func(dest ...any) error) error {
		e, serr := scanEdge(scan)
		if serr != nil {
			return serr
		}
		rows = append(rows, e)
		return nil
	})
	if err != nil {
		return nil, s.wrapExecErr("intersect_edges", start, err)
	}
	s.mx.RecordRead("intersect_edges", len(destinationIDs), time.Since(start))
	return rows, nil
}
