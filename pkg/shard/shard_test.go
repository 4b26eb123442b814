package shard_test

import (
	"context"
	"testing"

	"github.com/dd0wney/shardedge/pkg/shard"
	"github.com/dd0wney/shardedge/pkg/shard/memexec"
)

func newTestShard(t *testing.T) (*shard.Shard, *memexec.Executor) {
	t.Helper()
	exec := memexec.New()
	cfg := shard.DefaultConfig("t", "testdb", "testuser")
	s, err := shard.New("shard-0", exec, cfg)
	if err != nil {
		t.Fatalf("shard.New: %v", err)
	}
	return s, exec
}

// S1: a fresh insert is immediately counted.
func TestInsertThenCount(t *testing.T) {
	s, _ := newTestShard(t)
	ctx := context.Background()

	if err := s.Add(ctx, 10, 20, 1000, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := s.Count(ctx, 10, []shard.State{shard.Normal})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count(Normal) = %d, want 1", n)
	}
}

// S2: removing at the same timestamp changes the edge's state but
// never the source's metadata state.
func TestRemoveSameTimestamp(t *testing.T) {
	s, _ := newTestShard(t)
	ctx := context.Background()

	if err := s.Add(ctx, 10, 20, 1000, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove(ctx, 10, 20, 1000, 100); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	e, found, err := s.Get(ctx, 10, 20)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if e.State != shard.Removed {
		t.Fatalf("edge state = %v, want Removed", e.State)
	}

	if n, _ := s.Count(ctx, 10, []shard.State{shard.Normal}); n != 0 {
		t.Fatalf("Count(Normal) = %d, want 0", n)
	}
	if n, _ := s.Count(ctx, 10, []shard.State{shard.Removed}); n != 0 {
		t.Fatalf("Count(Removed) = %d, want 0 (metadata state stays Normal)", n)
	}
}

// S3: a write with an older timestamp than the stored edge is rejected.
func TestStaleWriteRejected(t *testing.T) {
	s, _ := newTestShard(t)
	ctx := context.Background()

	if err := s.Add(ctx, 10, 20, 1000, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Archive(ctx, 10, 20, 999, 50); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	e, found, err := s.Get(ctx, 10, 20)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if e.State != shard.Normal || e.UpdatedAt != 100 || e.Position != 1000 {
		t.Fatalf("edge = %+v, want unchanged (Normal, t=100, pos=1000)", e)
	}
}

// S4: reactivating an archived edge (Archived -> Normal) replaces its position.
func TestReactivationReplacesPosition(t *testing.T) {
	s, _ := newTestShard(t)
	ctx := context.Background()

	if err := s.Archive(ctx, 10, 20, 1000, 100); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := s.Add(ctx, 10, 20, 2000, 200); err != nil {
		t.Fatalf("Add (reactivate): %v", err)
	}

	e, found, err := s.Get(ctx, 10, 20)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if e.State != shard.Normal || e.UpdatedAt != 200 || e.Position != 2000 {
		t.Fatalf("edge = %+v, want (Normal, t=200, pos=2000)", e)
	}
	if n, _ := s.Count(ctx, 10, []shard.State{shard.Normal}); n != 1 {
		t.Fatalf("Count(Normal) = %d, want 1", n)
	}
}

// S5: forward pagination by destination_id returns pages in descending
// destination_id order, and following next_cursor continues page by page
// until the last page reports End.
func TestPaginationForward(t *testing.T) {
	s, _ := newTestShard(t)
	ctx := context.Background()

	for i, dest := range []uint64{100, 200, 300, 400, 500} {
		if err := s.Add(ctx, 1, dest, int64(i+1)*10, 100); err != nil {
			t.Fatalf("Add(%d): %v", dest, err)
		}
	}

	win, err := s.SelectByDestinationID(ctx, 1, []shard.State{shard.Normal}, 2, shard.Start)
	if err != nil {
		t.Fatalf("SelectByDestinationID: %v", err)
	}
	assertDestIDs(t, win.Page, []uint64{500, 400})
	if win.PrevCursor != shard.End {
		t.Fatalf("prev_cursor = %v, want End", win.PrevCursor)
	}

	win2, err := s.SelectByDestinationID(ctx, 1, []shard.State{shard.Normal}, 2, win.NextCursor)
	if err != nil {
		t.Fatalf("SelectByDestinationID page 2: %v", err)
	}
	assertDestIDs(t, win2.Page, []uint64{300, 200})

	win3, err := s.SelectByDestinationID(ctx, 1, []shard.State{shard.Normal}, 2, win2.NextCursor)
	if err != nil {
		t.Fatalf("SelectByDestinationID page 3: %v", err)
	}
	assertDestIDs(t, win3.Page, []uint64{100})
	if win3.NextCursor != shard.End {
		t.Fatalf("next_cursor on last page = %v, want End", win3.NextCursor)
	}
}

func assertDestIDs(t *testing.T, edges []shard.Edge, want []uint64) {
	t.Helper()
	if len(edges) != len(want) {
		t.Fatalf("got %d edges, want %d (%v)", len(edges), len(want), want)
	}
	for i, e := range edges {
		if e.DestinationID != want[i] {
			t.Fatalf("page[%d].DestinationID = %d, want %d", i, e.DestinationID, want[i])
		}
	}
}

// S6: a bulk copy burst with one duplicate destination falls back to
// the single-edge path for the rejected row.
func TestBulkCopyPartialDuplicate(t *testing.T) {
	s, _ := newTestShard(t)
	ctx := context.Background()

	burst := []shard.Edge{
		{SourceID: 7, DestinationID: 1, Position: 10, UpdatedAt: 100, Count: 1, State: shard.Normal},
		{SourceID: 7, DestinationID: 1, Position: 10, UpdatedAt: 200, Count: 1, State: shard.Archived},
	}
	if err := s.WriteCopies(ctx, burst); err != nil {
		t.Fatalf("WriteCopies: %v", err)
	}

	e, found, err := s.Get(ctx, 7, 1)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if e.State != shard.Archived {
		t.Fatalf("edge state = %v, want Archived", e.State)
	}
	if n, _ := s.Count(ctx, 7, []shard.State{shard.Normal}); n != 0 {
		t.Fatalf("Count(Normal) = %d, want 0", n)
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	s, _ := newTestShard(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.Add(ctx, 10, 20, 1000, 100); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}
	if n, _ := s.Count(ctx, 10, []shard.State{shard.Normal}); n != 1 {
		t.Fatalf("Count(Normal) = %d, want 1", n)
	}
}

func TestDeadlockRetryExhaustion(t *testing.T) {
	s, exec := newTestShard(t)
	ctx := context.Background()

	exec.InjectDeadlock(10, 10) // far more than the configured retry budget
	err := s.Add(ctx, 10, 20, 1000, 100)
	if err == nil {
		t.Fatalf("expected deadlock-exhaustion error, got nil")
	}
}
