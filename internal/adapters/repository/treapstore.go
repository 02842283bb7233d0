package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/pkg/metrics"
)

const defaultSweepInterval = time.Minute

// treap is one board: an order-statistic treap plus a member index.
type treap struct {
	mu        sync.RWMutex
	root      *node
	scores    map[string]int64
	expiresAt time.Time // zero when the board never expires
	dead      bool      // unlinked from the store; writers must reload
}

func newTreap() *treap {
	return &treap{scores: make(map[string]int64)}
}

func (t *treap) expired(now time.Time) bool {
	return !t.expiresAt.IsZero() && !now.Before(t.expiresAt)
}

func (t *treap) reset() {
	t.root = nil
	t.scores = make(map[string]int64)
	t.expiresAt = time.Time{}
}

// TreapStore is an in-memory Store holding one treap per board.
//
// Each board has its own lock, so writes to different boards never contend
// and per-member updates on one board are atomic. Board expiry is checked
// lazily on every access and a background sweeper drops expired boards.
type TreapStore struct {
	boards        *xsync.MapOf[board.Key, *treap]
	now           func() time.Time
	sweepInterval time.Duration

	closed   atomic.Bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

var _ Store = (*TreapStore)(nil)

// NewTreapStore constructs a treap store and starts its sweeper. The sweeper
// stops when ctx is cancelled or Close is called.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		boards:        xsync.NewMapOf[board.Key, *treap](),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startSweeper(ctx)
	return s
}

func (s *TreapStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Close stops the sweeper. Subsequent calls fail with ErrStoreUnavailable.
func (s *TreapStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// Sweep drops every expired board and refreshes the store gauges.
func (s *TreapStore) Sweep() {
	now := s.now()
	boards, entries := 0, 0
	s.boards.Range(func(key board.Key, b *treap) bool {
		b.mu.Lock()
		if b.expired(now) {
			s.unlinkLocked(key, b)
			b.mu.Unlock()
			metrics.RecordBoardExpired()
			return true
		}
		boards++
		entries += len(b.scores)
		b.mu.Unlock()
		return true
	})
	metrics.UpdateStoreBoards(boards)
	metrics.UpdateStoreEntries(entries)
}

// unlinkLocked marks b dead and removes it from the map if it is still the
// current board for key. Caller holds b.mu.
func (s *TreapStore) unlinkLocked(key board.Key, b *treap) {
	b.dead = true
	s.boards.Compute(key, func(old *treap, loaded bool) (*treap, bool) {
		if loaded && old == b {
			return nil, true
		}
		return old, !loaded
	})
}

func (s *TreapStore) begin(ctx context.Context, op string) (func(), error) {
	if s.closed.Load() {
		metrics.RecordErrorByComponent("repository", "closed")
		return nil, fmt.Errorf("%s: %w: closed", op, ErrStoreUnavailable)
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("repository", "context")
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	start := time.Now()
	return func() {
		metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	}, nil
}

// live returns the board for key if it exists and has not expired.
// The returned board is read-locked; the caller must RUnlock it.
func (s *TreapStore) live(key board.Key) (*treap, bool) {
	b, ok := s.boards.Load(key)
	if !ok {
		return nil, false
	}
	b.mu.RLock()
	if b.dead || b.expired(s.now()) {
		b.mu.RUnlock()
		return nil, false
	}
	return b, true
}

// Upsert implements Store.Upsert in O(log n) expected time.
func (s *TreapStore) Upsert(ctx context.Context, key board.Key, member string, value int64, mode board.MergeMode) (int64, error) {
	done, err := s.begin(ctx, "upsert")
	if err != nil {
		return 0, err
	}
	defer done()

	for {
		b, _ := s.boards.LoadOrCompute(key, newTreap)
		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}
		if b.expired(s.now()) {
			b.reset()
			metrics.RecordBoardExpired()
		}
		old, present := b.scores[member]
		next := mode.Merge(old, present, value)
		if !present || next != old {
			if present {
				b.root = deleteNode(b.root, member, old)
			}
			b.root = insert(b.root, member, next)
			b.scores[member] = next
		}
		b.mu.Unlock()
		return next, nil
	}
}

// Rank implements Store.Rank in O(log n).
func (s *TreapStore) Rank(ctx context.Context, key board.Key, member string) (int, bool, error) {
	done, err := s.begin(ctx, "rank")
	if err != nil {
		return 0, false, err
	}
	defer done()

	b, ok := s.live(key)
	if !ok {
		return 0, false, nil
	}
	defer b.mu.RUnlock()
	score, ok := b.scores[member]
	if !ok {
		return 0, false, nil
	}
	return position(b.root, member, score) + 1, true, nil
}

// Score implements Store.Score.
func (s *TreapStore) Score(ctx context.Context, key board.Key, member string) (int64, bool, error) {
	done, err := s.begin(ctx, "score")
	if err != nil {
		return 0, false, err
	}
	defer done()

	b, ok := s.live(key)
	if !ok {
		return 0, false, nil
	}
	defer b.mu.RUnlock()
	score, ok := b.scores[member]
	return score, ok, nil
}

// Range implements Store.Range in O(log n + k).
func (s *TreapStore) Range(ctx context.Context, key board.Key, start, stop int) ([]Entry, error) {
	done, err := s.begin(ctx, "range")
	if err != nil {
		return nil, err
	}
	defer done()

	if start < 0 {
		return nil, fmt.Errorf("range: %w: negative start %d", ErrInvalidRange, start)
	}
	b, ok := s.live(key)
	if !ok {
		return []Entry{}, nil
	}
	defer b.mu.RUnlock()

	n := len(b.scores)
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop {
		return []Entry{}, nil
	}
	out := make([]Entry, 0, stop-start+1)
	collectRange(b.root, start, stop-start+1, &out)
	for i := range out {
		out[i].Rank = start + i + 1
	}
	return out, nil
}

// Cardinality implements Store.Cardinality.
func (s *TreapStore) Cardinality(ctx context.Context, key board.Key) (int, error) {
	done, err := s.begin(ctx, "cardinality")
	if err != nil {
		return 0, err
	}
	defer done()

	b, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	defer b.mu.RUnlock()
	return len(b.scores), nil
}

// Remove implements Store.Remove.
func (s *TreapStore) Remove(ctx context.Context, key board.Key, member string) (bool, error) {
	done, err := s.begin(ctx, "remove")
	if err != nil {
		return false, err
	}
	defer done()

	b, ok := s.boards.Load(key)
	if !ok {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead || b.expired(s.now()) {
		return false, nil
	}
	score, ok := b.scores[member]
	if !ok {
		return false, nil
	}
	b.root = deleteNode(b.root, member, score)
	delete(b.scores, member)
	return true, nil
}

// Clear implements Store.Clear.
func (s *TreapStore) Clear(ctx context.Context, key board.Key) error {
	done, err := s.begin(ctx, "clear")
	if err != nil {
		return err
	}
	defer done()

	b, ok := s.boards.Load(key)
	if !ok {
		return nil
	}
	b.mu.Lock()
	if !b.dead {
		s.unlinkLocked(key, b)
	}
	b.mu.Unlock()
	return nil
}

// SetExpiry implements Store.SetExpiry.
func (s *TreapStore) SetExpiry(ctx context.Context, key board.Key, ttl time.Duration) error {
	done, err := s.begin(ctx, "expire")
	if err != nil {
		return err
	}
	defer done()

	b, ok := s.boards.Load(key)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := s.now()
	if b.dead || b.expired(now) {
		return nil
	}
	if ttl <= 0 {
		b.expiresAt = time.Time{}
		return nil
	}
	b.expiresAt = now.Add(ttl)
	return nil
}

// Keys implements Store.Keys. Keys are returned sorted.
func (s *TreapStore) Keys(ctx context.Context, prefix string) ([]board.Key, error) {
	done, err := s.begin(ctx, "keys")
	if err != nil {
		return nil, err
	}
	defer done()

	now := s.now()
	var keys []board.Key
	s.boards.Range(func(key board.Key, b *treap) bool {
		if !strings.HasPrefix(string(key), prefix) {
			return true
		}
		b.mu.RLock()
		if !b.dead && !b.expired(now) && len(b.scores) > 0 {
			keys = append(keys, key)
		}
		b.mu.RUnlock()
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// TTL returns the remaining lifetime of key, mainly for diagnostics.
func (s *TreapStore) TTL(key board.Key) (time.Duration, bool) {
	b, ok := s.live(key)
	if !ok {
		return 0, false
	}
	defer b.mu.RUnlock()
	if b.expiresAt.IsZero() {
		return 0, false
	}
	return b.expiresAt.Sub(s.now()), true
}
