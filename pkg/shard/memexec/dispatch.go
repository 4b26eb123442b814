package memexec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dd0wney/shardedge/pkg/shard"
)

// This file recognizes the fixed handful of SQL shapes pkg/shard's
// schema.go and reader.go build and serves them from the in-memory
// store. There is no general SQL parser here — every shape below
// corresponds to exactly one query-building function in pkg/shard, so
// matching on a distinguishing substring (plus argument count) is
// sufficient and avoids needing a real SQL engine for tests.

func isLockingRead(sqlText string) bool {
	return strings.Contains(sqlText, "FOR UPDATE")
}

// edgeRow returns the scan closure pkg/shard's scanEdge expects:
// (source_id, position, updated_at, destination_id, count, state).
func edgeRow(e shard.Edge) func(dest ...any) error {
	return func(dest ...any) error {
		if len(dest) != 6 {
			return fmt.Errorf("memexec: edge row expects 6 dest, got %d", len(dest))
		}
		*(dest[0].(*uint64)) = e.SourceID
		*(dest[1].(*int64)) = e.Position
		*(dest[2].(*uint32)) = e.UpdatedAt
		*(dest[3].(*uint64)) = e.DestinationID
		*(dest[4].(*uint8)) = e.Count
		*(dest[5].(*uint8)) = uint8(e.State)
		return nil
	}
}

func metadataRow(m shard.Metadata) func(dest ...any) error {
	return func(dest ...any) error {
		if len(dest) != 4 {
			return fmt.Errorf("memexec: metadata row expects 4 dest, got %d", len(dest))
		}
		*(dest[0].(*uint64)) = m.SourceID
		*(dest[1].(*int32)) = m.Count
		*(dest[2].(*uint8)) = uint8(m.State)
		*(dest[3].(*uint32)) = m.UpdatedAt
		return nil
	}
}

func countRow(n int32) func(dest ...any) error {
	return func(dest ...any) error {
		if len(dest) != 1 {
			return fmt.Errorf("memexec: count row expects 1 dest, got %d", len(dest))
		}
		*(dest[0].(*int32)) = n
		return nil
	}
}

func (st *store) edgesOf(sourceID uint64) map[uint64]shard.Edge {
	return st.edges[sourceID]
}

func (st *store) sortedEdgesOf(sourceID uint64) []shard.Edge {
	m := st.edges[sourceID]
	out := make([]shard.Edge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// --- SelectOne ---

func runSelectOne(st *store, sqlText string, args []any, handle shard.RowScanner) (bool, error) {
	switch {
	case strings.Contains(sqlText, "COUNT(*)"):
		sourceID := args[0].(uint64)
		state := shard.State(args[1].(uint8))
		var n int32
		for _, e := range st.edgesOf(sourceID) {
			if e.State == state {
				n++
			}
		}
		return true, handle(countRow(n))

	case strings.Contains(sqlText, "FOR UPDATE"):
		sourceID := args[0].(uint64)
		md, ok := st.metadata[sourceID]
		if !ok {
			return false, nil
		}
		return true, handle(metadataRow(md))

	case strings.Contains(sqlText, "destination_id = $2") && !strings.Contains(sqlText, "ORDER BY"):
		sourceID := args[0].(uint64)
		destID := args[1].(uint64)
		e, ok := st.edgesOf(sourceID)[destID]
		if !ok {
			return false, nil
		}
		return true, handle(edgeRow(e))

	case strings.Contains(sqlText, "ORDER BY") && len(args) == 3:
		// The opposite-direction continuation probe (§4.4): a single
		// row just past the cursor in the reverse direction.
		rows := paginateQuery(st, sqlText, args, 1)
		if len(rows) == 0 {
			return false, nil
		}
		return true, handle(edgeRow(rows[0]))

	case !strings.Contains(sqlText, "destination_id") && len(args) == 1:
		sourceID := args[0].(uint64)
		md, ok := st.metadata[sourceID]
		if !ok {
			return false, nil
		}
		return true, handle(metadataRow(md))
	}
	return false, fmt.Errorf("memexec: SelectOne cannot recognize query: %s", sqlText)
}

// --- Select ---

func runSelect(st *store, sqlText string, args []any, handle shard.RowScanner) error {
	switch {
	case strings.Contains(sqlText, "ORDER BY source_id ASC") && !strings.Contains(sqlText, "destination_id"):
		cursor := args[0].(uint64)
		limit := args[1].(int)
		var ids []uint64
		for id := range st.metadata {
			if id > cursor {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if len(ids) > limit {
			ids = ids[:limit]
		}
		for _, id := range ids {
			if err := handle(metadataRow(st.metadata[id])); err != nil {
				return err
			}
		}
		return nil

	case strings.Contains(sqlText, "OR source_id > $1"):
		c1 := args[0].(uint64)
		c2 := args[1].(uint64)
		limit := args[2].(int)
		var all []shard.Edge
		for _, edgesBySource := range st.edges {
			for _, e := range edgesBySource {
				all = append(all, e)
			}
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].SourceID != all[j].SourceID {
				return all[i].SourceID < all[j].SourceID
			}
			return all[i].DestinationID < all[j].DestinationID
		})
		var out []shard.Edge
		for _, e := range all {
			if (e.SourceID == c1 && e.DestinationID > c2) || e.SourceID > c1 {
				out = append(out, e)
			}
		}
		if len(out) > limit {
			out = out[:limit]
		}
		for _, e := range out {
			if err := handle(edgeRow(e)); err != nil {
				return err
			}
		}
		return nil

	case strings.Contains(sqlText, "destination_id = ANY($3)"):
		sourceID := args[0].(uint64)
		states := args[1].([]int16)
		dests := args[2].([]int64)
		stateSet := make(map[shard.State]bool, len(states))
		for _, s := range states {
			stateSet[shard.State(s)] = true
		}
		destSet := make(map[uint64]bool, len(dests))
		for _, d := range dests {
			destSet[uint64(d)] = true
		}
		var out []shard.Edge
		for _, e := range st.edgesOf(sourceID) {
			if stateSet[e.State] && destSet[e.DestinationID] {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].DestinationID > out[j].DestinationID })
		for _, e := range out {
			if err := handle(edgeRow(e)); err != nil {
				return err
			}
		}
		return nil

	case strings.Contains(sqlText, "ORDER BY") && len(args) == 4:
		limit := args[3].(int)
		rows := paginateQuery(st, sqlText, args, limit)
		for _, e := range rows {
			if err := handle(edgeRow(e)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("memexec: Select cannot recognize query: %s", sqlText)
}

// paginateQuery implements the bidirectional paging protocol's single
// query shape shared by both the page and probe queries in
// pkg/shard/reader.go's paginate: filter by source and state, order by
// destination_id or position in the stated direction, limited to n rows.
func paginateQuery(st *store, sqlText string, args []any, n int) []shard.Edge {
	sourceID := args[0].(uint64)
	filterArg := args[1]
	comparand := args[2].(int64)

	orderColumn := "destination_id"
	if strings.Contains(sqlText, "ORDER BY position") {
		orderColumn = "position"
	}
	desc := strings.Contains(sqlText, "ORDER BY "+orderColumn+" DESC")

	var op string
	switch {
	case strings.Contains(sqlText, orderColumn+" >= $3"):
		op = ">="
	case strings.Contains(sqlText, orderColumn+" <= $3"):
		op = "<="
	case strings.Contains(sqlText, orderColumn+" > $3"):
		op = ">"
	default:
		op = "<"
	}

	rows := st.sortedEdgesOf(sourceID)

	var filtered []shard.Edge
	switch fa := filterArg.(type) {
	case []int16:
		allowed := make(map[shard.State]bool, len(fa))
		for _, s := range fa {
			allowed[shard.State(s)] = true
		}
		for _, e := range rows {
			if allowed[e.State] {
				filtered = append(filtered, e)
			}
		}
	case int16:
		for _, e := range rows {
			if e.State != shard.State(fa) {
				filtered = append(filtered, e)
			}
		}
	}

	var matched []shard.Edge
	for _, e := range filtered {
		val := columnValue(e, orderColumn)
		if compare(val, op, comparand) {
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		vi, vj := columnValue(matched[i], orderColumn), columnValue(matched[j], orderColumn)
		if desc {
			return vi > vj
		}
		return vi < vj
	})

	if len(matched) > n {
		matched = matched[:n]
	}
	return matched
}

func columnValue(e shard.Edge, orderColumn string) int64 {
	if orderColumn == "position" {
		return e.Position
	}
	return int64(e.DestinationID)
}

func compare(val int64, op string, comparand int64) bool {
	switch op {
	case "<":
		return val < comparand
	case ">":
		return val > comparand
	case "<=":
		return val <= comparand
	case ">=":
		return val >= comparand
	}
	return false
}

// --- Exec ---

func runExec(st *store, sqlText string, args []any) (int64, error) {
	switch {
	case strings.Contains(sqlText, "INSERT") && len(args) == 6:
		return insertEdge(st, args)
	case strings.Contains(sqlText, "DO NOTHING"):
		return insertDefaultMetadata(st, args)
	case strings.Contains(sqlText, "INSERT") && len(args) == 4:
		return insertMetadataUnconditional(st, args)
	case strings.Contains(sqlText, "GREATEST"):
		return updateMetadataCountDelta(st, args, true)
	case strings.Contains(sqlText, "count = count + $2 WHERE source_id = $1"):
		return updateMetadataCountDelta(st, args, false)
	case strings.Contains(sqlText, "state = $2, updated_at = $3, count = $4"):
		return updateMetadataState(st, args)
	case strings.Contains(sqlText, "position = $5, count = 0, state = $6"):
		return updateEdge(st, args, true)
	case strings.Contains(sqlText, "updated_at = $4, count = 0, state = $5"):
		return updateEdge(st, args, false)
	}
	return 0, fmt.Errorf("memexec: Exec cannot recognize query: %s", sqlText)
}

func insertEdge(st *store, args []any) (int64, error) {
	e := shard.Edge{
		SourceID:      args[0].(uint64),
		Position:      args[1].(int64),
		UpdatedAt:     args[2].(uint32),
		DestinationID: args[3].(uint64),
		Count:         args[4].(uint8),
		State:         shard.State(args[5].(uint8)),
	}
	if _, exists := st.edges[e.SourceID][e.DestinationID]; exists {
		return 0, ErrUniqueViolation
	}
	if positionCollision(st.sortedEdgesOf(e.SourceID), e.State, e.Position, e.DestinationID) {
		return 0, ErrUniqueViolation
	}
	if st.edges[e.SourceID] == nil {
		st.edges[e.SourceID] = make(map[uint64]shard.Edge)
	}
	st.edges[e.SourceID][e.DestinationID] = e
	return 1, nil
}

func positionCollision(edges []shard.Edge, state shard.State, position int64, excludeDest uint64) bool {
	for _, e := range edges {
		if e.DestinationID == excludeDest {
			continue
		}
		if e.State == state && e.Position == position {
			return true
		}
	}
	return false
}

func insertDefaultMetadata(st *store, args []any) (int64, error) {
	sourceID := args[0].(uint64)
	if _, exists := st.metadata[sourceID]; exists {
		return 0, nil
	}
	st.metadata[sourceID] = shard.Metadata{
		SourceID:  sourceID,
		Count:     args[1].(int32),
		State:     shard.State(args[2].(uint8)),
		UpdatedAt: args[3].(uint32),
	}
	return 1, nil
}

func insertMetadataUnconditional(st *store, args []any) (int64, error) {
	sourceID := args[0].(uint64)
	if _, exists := st.metadata[sourceID]; exists {
		return 0, ErrUniqueViolation
	}
	st.metadata[sourceID] = shard.Metadata{
		SourceID:  sourceID,
		Count:     args[1].(int32),
		State:     shard.State(args[2].(uint8)),
		UpdatedAt: args[3].(uint32),
	}
	return 1, nil
}

func updateMetadataCountDelta(st *store, args []any, clamp bool) (int64, error) {
	sourceID := args[0].(uint64)
	delta := args[1].(int32)
	md, ok := st.metadata[sourceID]
	if !ok {
		return 0, nil
	}
	md.Count += delta
	if clamp && md.Count < 0 {
		md.Count = 0
	}
	st.metadata[sourceID] = md
	return 1, nil
}

func updateMetadataState(st *store, args []any) (int64, error) {
	sourceID := args[0].(uint64)
	state := shard.State(args[1].(uint8))
	updatedAt := args[2].(uint32)
	count := args[3].(int32)
	md, ok := st.metadata[sourceID]
	if !ok || md.UpdatedAt > updatedAt {
		return 0, nil
	}
	md.State = state
	md.UpdatedAt = updatedAt
	md.Count = count
	st.metadata[sourceID] = md
	return 1, nil
}

func updateEdge(st *store, args []any, replacePosition bool) (int64, error) {
	sourceID := args[0].(uint64)
	destID := args[1].(uint64)

	// Argument layout follows schema.go's placeholder numbering: $3 is
	// always the updated_at <= guard, $4 the value actually written.
	guard := args[2].(uint32)
	updatedAt := args[3].(uint32)
	var position int64
	var state shard.State

	if replacePosition {
		position = args[4].(int64)
		state = shard.State(args[5].(uint8))
	} else {
		state = shard.State(args[4].(uint8))
	}

	e, ok := st.edges[sourceID][destID]
	if !ok || e.UpdatedAt > guard {
		return 0, nil
	}
	if !replacePosition {
		position = e.Position
	}
	if positionCollision(st.sortedEdgesOf(sourceID), state, position, destID) {
		return 0, ErrUniqueViolation
	}

	e.UpdatedAt = updatedAt
	e.Position = position
	e.Count = 0
	e.State = state
	st.edges[sourceID][destID] = e
	return 1, nil
}

// --- ExecBatch ---

func runExecBatch(st *store, sqlText string, argRows [][]any) ([]shard.RowStatus, error) {
	statuses := make([]shard.RowStatus, len(argRows))
	anyFailed := false
	for i, args := range argRows {
		if _, err := runExec(st, sqlText, args); err != nil {
			statuses[i] = shard.RowStatus(-1)
			anyFailed = true
			continue
		}
		statuses[i] = shard.RowStatus(1)
	}
	if !anyFailed {
		return nil, nil
	}
	return statuses, fmt.Errorf("memexec: batch had per-row failures")
}
