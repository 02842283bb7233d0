package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/podium/internal/domain/board"
)

const testKey board.Key = "category:chess"

func newTestStore(t *testing.T, opts ...Option) *TreapStore {
	t.Helper()
	s := NewTreapStore(context.Background(), opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if n, err := store.Cardinality(ctx, testKey); err != nil || n != 0 {
		t.Fatalf("expected empty board, got %d (%v)", n, err)
	}

	score, err := store.Upsert(ctx, testKey, "alice", 85, board.ReplaceIfGreater)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 85 {
		t.Errorf("expected score 85, got %d", score)
	}

	rank, ok, err := store.Rank(ctx, testKey, "alice")
	if err != nil || !ok || rank != 1 {
		t.Fatalf("expected rank 1, got %d ok=%v err=%v", rank, ok, err)
	}

	if _, ok, _ := store.Rank(ctx, testKey, "bob"); ok {
		t.Error("expected unknown member to be unranked")
	}
	if _, ok, _ := store.Rank(ctx, "category:missing", "alice"); ok {
		t.Error("expected missing board to be unranked")
	}

	entries, err := store.Range(ctx, testKey, 0, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Member != "alice" || entries[0].Rank != 1 || entries[0].Score != 85 {
		t.Errorf("unexpected range: %+v", entries)
	}
}

func TestTreapStore_MergeModes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, v := range []int64{50, 40, 70} {
		if _, err := store.Upsert(ctx, testKey, "alice", v, board.ReplaceIfGreater); err != nil {
			t.Fatal(err)
		}
	}
	if s, _, _ := store.Score(ctx, testKey, "alice"); s != 70 {
		t.Errorf("replace-if-greater: expected 70, got %d", s)
	}

	for _, v := range []int64{50, 40, 70} {
		if _, err := store.Upsert(ctx, board.Global, "alice", v, board.Add); err != nil {
			t.Fatal(err)
		}
	}
	if s, _, _ := store.Score(ctx, board.Global, "alice"); s != 160 {
		t.Errorf("add: expected 160, got %d", s)
	}

	// A zero submission still creates the entry.
	if _, err := store.Upsert(ctx, board.Global, "zero", 0, board.Add); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Rank(ctx, board.Global, "zero"); !ok {
		t.Error("expected zero-score entry to be ranked")
	}
}

func TestTreapStore_OrderingAndTies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seed := map[string]int64{"dave": 10, "carol": 30, "bob": 30, "alice": 20, "erin": 30}
	for m, v := range seed {
		if _, err := store.Upsert(ctx, testKey, m, v, board.ReplaceIfGreater); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"bob", "carol", "erin", "alice", "dave"}
	entries, err := store.Range(ctx, testKey, 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Member != want[i] || e.Rank != i+1 {
			t.Errorf("position %d: got %+v, want member %s", i, e, want[i])
		}
		r, ok, _ := store.Rank(ctx, testKey, e.Member)
		if !ok || r != e.Rank {
			t.Errorf("rank mismatch for %s: Rank=%d Range=%d", e.Member, r, e.Rank)
		}
	}
}

func TestTreapStore_RangeWindows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for i := 0; i < 10; i++ {
		if _, err := store.Upsert(ctx, testKey, fmt.Sprintf("m%02d", i), int64(100-i), board.ReplaceIfGreater); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		start, stop int
		first, n    int
	}{
		{0, 2, 1, 3},
		{3, 5, 4, 3},
		{8, 20, 9, 2},
		{9, 9, 10, 1},
		{10, 15, 0, 0},
		{5, 4, 0, 0},
		{2, -1, 3, 8},
	}
	for _, c := range cases {
		got, err := store.Range(ctx, testKey, c.start, c.stop)
		if err != nil {
			t.Fatalf("range(%d,%d): %v", c.start, c.stop, err)
		}
		if len(got) != c.n {
			t.Errorf("range(%d,%d): expected %d entries, got %d", c.start, c.stop, c.n, len(got))
			continue
		}
		if c.n > 0 && got[0].Rank != c.first {
			t.Errorf("range(%d,%d): expected first rank %d, got %d", c.start, c.stop, c.first, got[0].Rank)
		}
	}

	if _, err := store.Range(ctx, testKey, -1, 3); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if got, _ := store.Range(ctx, "global", 0, 10); len(got) != 0 {
		t.Errorf("expected empty range on missing board, got %d", len(got))
	}
}

func TestTreapStore_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, m := range []string{"a", "b", "c"} {
		_, _ = store.Upsert(ctx, testKey, m, 5, board.Add)
	}
	_, _ = store.Upsert(ctx, "category:go", "a", 1, board.Add)

	removed, err := store.Remove(ctx, testKey, "b")
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	if removed, _ := store.Remove(ctx, testKey, "b"); removed {
		t.Error("second removal should report absent")
	}
	if r, _, _ := store.Rank(ctx, testKey, "c"); r != 2 {
		t.Errorf("expected c to move to rank 2, got %d", r)
	}

	keys, _ := store.Keys(ctx, board.CategoryPrefix)
	if len(keys) != 2 || keys[0] != "category:chess" || keys[1] != "category:go" {
		t.Errorf("unexpected keys %v", keys)
	}

	if err := store.Clear(ctx, testKey); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Cardinality(ctx, testKey); n != 0 {
		t.Errorf("expected cleared board, got %d entries", n)
	}
	if _, err := store.Upsert(ctx, testKey, "a", 3, board.Add); err != nil {
		t.Fatal(err)
	}
	if s, _, _ := store.Score(ctx, testKey, "a"); s != 3 {
		t.Errorf("expected fresh board after clear, got score %d", s)
	}
	if err := store.Clear(ctx, "category:none"); err != nil {
		t.Errorf("clearing a missing board should succeed: %v", err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTreapStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, WithClock(clock.Now), WithSweepInterval(time.Hour))
	daily := board.Key("daily:2024-03-09")

	if err := store.SetExpiry(ctx, daily, time.Hour); err != nil {
		t.Fatalf("expiry on missing board should be a no-op: %v", err)
	}
	_, _ = store.Upsert(ctx, daily, "alice", 10, board.Add)
	if err := store.SetExpiry(ctx, daily, 48*time.Hour); err != nil {
		t.Fatal(err)
	}
	if ttl, ok := store.TTL(daily); !ok || ttl != 48*time.Hour {
		t.Errorf("expected 48h ttl, got %v %v", ttl, ok)
	}

	clock.Advance(47 * time.Hour)
	if n, _ := store.Cardinality(ctx, daily); n != 1 {
		t.Fatalf("board expired early")
	}

	clock.Advance(time.Hour)
	if n, _ := store.Cardinality(ctx, daily); n != 0 {
		t.Errorf("expected expired board to read as empty, got %d", n)
	}
	if _, ok, _ := store.Rank(ctx, daily, "alice"); ok {
		t.Error("expected expired board to be unranked")
	}
	if keys, _ := store.Keys(ctx, "daily:"); len(keys) != 0 {
		t.Errorf("expected no live daily keys, got %v", keys)
	}

	// Writes after expiry start a fresh board without a ttl.
	if s, _ := store.Upsert(ctx, daily, "alice", 4, board.Add); s != 4 {
		t.Errorf("expected fresh score 4, got %d", s)
	}
	if _, ok := store.TTL(daily); ok {
		t.Error("recreated board should not inherit the old ttl")
	}

	_ = store.SetExpiry(ctx, daily, time.Minute)
	clock.Advance(time.Minute)
	store.Sweep()
	if _, ok := store.boards.Load(daily); ok {
		t.Error("sweep should drop expired boards")
	}
}

func TestTreapStore_Unavailable(t *testing.T) {
	store := NewTreapStore(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Upsert(ctx, testKey, "a", 1, board.Add); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable on cancelled context, got %v", err)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatal("context should be cancelled")
	}

	_ = store.Close()
	_ = store.Close()
	if _, _, err := store.Rank(context.Background(), testKey, "a"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable after close, got %v", err)
	}
}

func TestTreapStore_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const workers, perWorker = 16, 500
	var wg sync.WaitGroup
	var failures atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := store.Upsert(ctx, board.Global, "shared", 1, board.Add); err != nil {
					failures.Add(1)
				}
				_, _ = store.Upsert(ctx, board.Global, fmt.Sprintf("w%d", w), int64(i), board.ReplaceIfGreater)
				if i%100 == 0 {
					_, _, _ = store.Rank(ctx, board.Global, "shared")
				}
			}
		}(w)
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d upserts failed", failures.Load())
	}
	if s, _, _ := store.Score(ctx, board.Global, "shared"); s != workers*perWorker {
		t.Errorf("lost updates: expected %d, got %d", workers*perWorker, s)
	}
	if r, _, _ := store.Rank(ctx, board.Global, "shared"); r != 1 {
		t.Errorf("expected shared at rank 1, got %d", r)
	}
}

func TestTreapStore_MatchesSortedReference(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	r := rand.New(rand.NewSource(42))

	ref := make(map[string]int64)
	for i := 0; i < 3000; i++ {
		m := fmt.Sprintf("user-%03d", r.Intn(400))
		v := int64(r.Intn(1000))
		if r.Intn(4) == 0 {
			if _, err := store.Remove(ctx, testKey, m); err != nil {
				t.Fatal(err)
			}
			delete(ref, m)
			continue
		}
		if _, err := store.Upsert(ctx, testKey, m, v, board.ReplaceIfGreater); err != nil {
			t.Fatal(err)
		}
		if old, ok := ref[m]; !ok || v > old {
			ref[m] = v
		}
	}

	type row struct {
		m string
		v int64
	}
	rows := make([]row, 0, len(ref))
	for m, v := range ref {
		rows = append(rows, row{m, v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].v != rows[j].v {
			return rows[i].v > rows[j].v
		}
		return rows[i].m < rows[j].m
	})

	all, _ := store.Range(ctx, testKey, 0, -1)
	if len(all) != len(rows) {
		t.Fatalf("expected %d entries, got %d", len(rows), len(all))
	}
	for i := range rows {
		if all[i].Member != rows[i].m || all[i].Score != rows[i].v {
			t.Fatalf("position %d: got %+v, want %+v", i, all[i], rows[i])
		}
		if rank, _, _ := store.Rank(ctx, testKey, rows[i].m); rank != i+1 {
			t.Fatalf("rank of %s: got %d, want %d", rows[i].m, rank, i+1)
		}
	}
}

func BenchmarkTreapStore_Upsert(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	members := make([]string, 100_000)
	for i := range members {
		members[i] = fmt.Sprintf("user-%d", i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			_, _ = store.Upsert(ctx, board.Global, members[r.Intn(len(members))], int64(r.Intn(1000)), board.Add)
		}
	})
}

func BenchmarkTreapStore_RankAndRange(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	const n = 100_000
	for i := 0; i < n; i++ {
		_, _ = store.Upsert(ctx, board.Global, fmt.Sprintf("user-%d", i), int64(i%5000), board.ReplaceIfGreater)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			rank, _, _ := store.Rank(ctx, board.Global, fmt.Sprintf("user-%d", r.Intn(n)))
			_, _ = store.Range(ctx, board.Global, rank, rank+10)
		}
	})
}
