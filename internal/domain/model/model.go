// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// ScoreRecord is one immutable score submission as stored in the ledger.
type ScoreRecord struct {
	ID          string
	UserID      string
	CategoryID  string
	Value       int64
	Metadata    map[string]any
	SubmittedAt time.Time
}

// Player is the ledger's view of a user: the latest display name seen.
type Player struct {
	ID          string
	DisplayName string
	Active      bool
}

// Category is a game or competition that scores are submitted to.
type Category struct {
	ID       string
	Name     string
	Slug     string
	MaxScore *int64 // nil means unbounded
	Active   bool
}

// Accepts reports whether value is within the category's bounds.
func (c Category) Accepts(value int64) bool {
	if value < 0 {
		return false
	}
	return c.MaxScore == nil || value <= *c.MaxScore
}

// AddScores returns a+b for non-negative scores, capped at math.MaxInt64.
// Every accumulating board and ledger sum uses it so totals never wrap.
func AddScores(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
