// Package ledger defines the durable, append-only record of every score
// submission. The rank store is a projection of this ledger and can always
// be rebuilt from it.
package ledger

import (
	"context"
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// SumFilter restricts SumScore. An empty CategoryID sums across categories.
// Since is inclusive and Until exclusive; a zero bound is open.
type SumFilter struct {
	CategoryID string
	Since      time.Time
	Until      time.Time
}

// Aggregate is the result of SumScore.
type Aggregate struct {
	Sum   int64
	Count int64
}

// Ledger is the durable store of score records, players and categories.
type Ledger interface {
	// Append stores rec and records displayName as the user's latest name,
	// atomically. Empty ID and zero SubmittedAt are filled in. The stored
	// record is returned.
	Append(ctx context.Context, rec model.ScoreRecord, displayName string) (model.ScoreRecord, error)

	// MaxScore returns the user's best value in a category.
	MaxScore(ctx context.Context, userID, categoryID string) (best int64, ok bool, err error)

	// SumScore totals the user's values matching f. The sum is capped at
	// math.MaxInt64.
	SumScore(ctx context.Context, userID string, f SumFilter) (Aggregate, error)

	// ListActiveUsers returns active players with at least one record.
	ListActiveUsers(ctx context.Context) ([]model.Player, error)

	// ListActiveCategories returns categories accepting submissions.
	ListActiveCategories(ctx context.Context) ([]model.Category, error)

	// CountDistinctUsers counts active users with records in a category.
	CountDistinctUsers(ctx context.Context, categoryID string) (int, error)

	// CountRecords counts every stored record.
	CountRecords(ctx context.Context) (int64, error)

	// GetCategory returns ErrCategoryNotFound for unknown ids.
	GetCategory(ctx context.Context, id string) (model.Category, error)

	// UpsertCategory creates or replaces a category definition.
	UpsertCategory(ctx context.Context, c model.Category) error

	Close() error
}
