// Package memory is a process-local ledger for development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/domain/model"
)

// Ledger keeps every record in memory. It satisfies ledger.Ledger.
type Ledger struct {
	mu         sync.RWMutex
	records    []model.ScoreRecord
	byUser     map[string][]int // user id -> indexes into records
	players    map[string]model.Player
	categories map[string]model.Category
	now        func() time.Time
}

var _ ledger.Ledger = (*Ledger)(nil)

// Option configures the memory ledger.
type Option func(*Ledger)

// WithClock replaces time.Now for default submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		byUser:     make(map[string][]int),
		players:    make(map[string]model.Player),
		categories: make(map[string]model.Category),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Append(ctx context.Context, rec model.ScoreRecord, displayName string) (model.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreRecord{}, err
	}
	rec, err := ledger.Prepare(rec, l.now())
	if err != nil {
		return model.ScoreRecord{}, err
	}
	rec.Metadata = maps.Clone(rec.Metadata)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.categories[rec.CategoryID]; !ok {
		return model.ScoreRecord{}, fmt.Errorf("append: %w: %s", ledger.ErrCategoryNotFound, rec.CategoryID)
	}
	p, ok := l.players[rec.UserID]
	if !ok {
		p = model.Player{ID: rec.UserID, Active: true}
	}
	p.DisplayName = displayName
	l.players[rec.UserID] = p
	l.byUser[rec.UserID] = append(l.byUser[rec.UserID], len(l.records))
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *Ledger) MaxScore(ctx context.Context, userID, categoryID string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var best int64
	found := false
	for _, i := range l.byUser[userID] {
		r := l.records[i]
		if r.CategoryID != categoryID {
			continue
		}
		if !found || r.Value > best {
			best, found = r.Value, true
		}
	}
	return best, found, nil
}

func (l *Ledger) SumScore(ctx context.Context, userID string, f ledger.SumFilter) (ledger.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Aggregate{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var agg ledger.Aggregate
	for _, i := range l.byUser[userID] {
		r := l.records[i]
		if f.CategoryID != "" && r.CategoryID != f.CategoryID {
			continue
		}
		if !f.Since.IsZero() && r.SubmittedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !r.SubmittedAt.Before(f.Until) {
			continue
		}
		agg.Sum = model.AddScores(agg.Sum, r.Value)
		agg.Count++
	}
	return agg, nil
}

func (l *Ledger) ListActiveUsers(ctx context.Context) ([]model.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Player, 0, len(l.players))
	for id, p := range l.players {
		if p.Active && len(l.byUser[id]) > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Ledger) ListActiveCategories(ctx context.Context) ([]model.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Category, 0, len(l.categories))
	for _, c := range l.categories {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Ledger) CountDistinctUsers(ctx context.Context, categoryID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range l.records {
		if r.CategoryID != categoryID {
			continue
		}
		if p := l.players[r.UserID]; p.Active {
			seen[r.UserID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (l *Ledger) CountRecords(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.records)), nil
}

func (l *Ledger) GetCategory(ctx context.Context, id string) (model.Category, error) {
	if err := ctx.Err(); err != nil {
		return model.Category{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.categories[id]
	if !ok {
		return model.Category{}, fmt.Errorf("get category: %w: %s", ledger.ErrCategoryNotFound, id)
	}
	return c, nil
}

func (l *Ledger) UpsertCategory(ctx context.Context, c model.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ID == "" {
		return fmt.Errorf("upsert category: %w: empty id", ledger.ErrInvalidRecord)
	}
	if c.MaxScore != nil {
		v := *c.MaxScore
		c.MaxScore = &v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c.Name != "" {
		for id, other := range l.categories {
			if id != c.ID && other.Name == c.Name {
				return fmt.Errorf("upsert category %s: %w: %q", c.ID, ledger.ErrDuplicateCategoryName, c.Name)
			}
		}
	}
	l.categories[c.ID] = c
	return nil
}

// SetPlayerActive toggles whether a player takes part in rebuilds.
func (l *Ledger) SetPlayerActive(id string, active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.players[id]; ok {
		p.Active = active
		l.players[id] = p
	}
}

func (l *Ledger) Close() error { return nil }
