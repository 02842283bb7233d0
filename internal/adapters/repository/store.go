// Package repository holds the fast rank store that serves every leaderboard
// read and absorbs every projected score.
package repository

import (
	"context"
	"time"

	"github.com/okian/podium/internal/domain/board"
)

// Entry is one row of a board.
type Entry struct {
	Rank   int // 1-based position
	Member string
	Score  int64
}

// Store is a keyed collection of ordered boards. Entries are ordered by
// score descending, then member ascending, and every read uses that order.
type Store interface {
	// Upsert merges value into member's score on key using mode and returns
	// the resulting score. Creates the board on first write.
	Upsert(ctx context.Context, key board.Key, member string, value int64, mode board.MergeMode) (int64, error)

	// Rank returns member's 1-based position on key. ok is false when the
	// member or the board is absent.
	Rank(ctx context.Context, key board.Key, member string) (rank int, ok bool, err error)

	// Score returns member's score on key.
	Score(ctx context.Context, key board.Key, member string) (score int64, ok bool, err error)

	// Range returns entries at 0-based positions start..stop inclusive. A
	// negative stop means the last entry. Out-of-range windows are clipped.
	Range(ctx context.Context, key board.Key, start, stop int) ([]Entry, error)

	// Cardinality returns the number of entries on key.
	Cardinality(ctx context.Context, key board.Key) (int, error)

	// Remove deletes member from key and reports whether it was present.
	Remove(ctx context.Context, key board.Key, member string) (bool, error)

	// Clear drops the board entirely.
	Clear(ctx context.Context, key board.Key) error

	// SetExpiry makes key disappear ttl from now. Non-positive ttl removes
	// any expiry. A missing board is a no-op.
	SetExpiry(ctx context.Context, key board.Key, ttl time.Duration) error

	// Keys lists live, non-empty boards whose key starts with prefix.
	Keys(ctx context.Context, prefix string) ([]board.Key, error)
}
