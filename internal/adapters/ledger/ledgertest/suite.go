// Package ledgertest is a conformance suite every ledger backend runs.
package ledgertest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/domain/model"
)

// Factory returns a fresh, empty ledger for one subtest.
type Factory func(t *testing.T) ledger.Ledger

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Run exercises the ledger contract against backends built by newLedger.
func Run(t *testing.T, newLedger Factory) {
	t.Run("categories", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)

		_, err := l.GetCategory(ctx, "chess")
		require.True(t, errors.Is(err, ledger.ErrCategoryNotFound), "got %v", err)

		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess", Name: "Chess", Slug: "chess", MaxScore: Int64(3000), Active: true}))
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "darts", Name: "Darts", Slug: "darts", Active: true}))
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "go", Name: "Go", Slug: "go", Active: false}))

		c, err := l.GetCategory(ctx, "chess")
		require.NoError(t, err)
		assert.Equal(t, "Chess", c.Name)
		require.NotNil(t, c.MaxScore)
		assert.Equal(t, int64(3000), *c.MaxScore)
		assert.True(t, c.Active)

		d, err := l.GetCategory(ctx, "darts")
		require.NoError(t, err)
		assert.Nil(t, d.MaxScore)

		active, err := l.ListActiveCategories(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "chess", active[0].ID)
		assert.Equal(t, "darts", active[1].ID)

		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "darts", Name: "Darts", Slug: "darts", Active: false}))
		active, err = l.ListActiveCategories(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
	})

	t.Run("append", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess", Active: true}))

		rec, err := l.Append(ctx, model.ScoreRecord{UserID: "u1", CategoryID: "chess", Value: 40, Metadata: map[string]any{"moves": 31}}, "Ada")
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.SubmittedAt.IsZero())

		_, err = l.Append(ctx, model.ScoreRecord{UserID: "u1", CategoryID: "nope", Value: 1}, "Ada")
		require.True(t, errors.Is(err, ledger.ErrCategoryNotFound), "got %v", err)

		_, err = l.Append(ctx, model.ScoreRecord{UserID: "u1", CategoryID: "chess", Value: -1}, "Ada")
		require.True(t, errors.Is(err, ledger.ErrInvalidRecord), "got %v", err)

		n, err := l.CountRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("aggregates", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess", Active: true}))
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "darts", Active: true}))

		base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
		appendAt := func(user, cat string, v int64, at time.Time) {
			_, err := l.Append(ctx, model.ScoreRecord{UserID: user, CategoryID: cat, Value: v, SubmittedAt: at}, "name-"+user)
			require.NoError(t, err)
		}
		appendAt("u1", "chess", 50, base.AddDate(0, 0, -10))
		appendAt("u1", "chess", 40, base.Add(-time.Hour))
		appendAt("u1", "chess", 70, base)
		appendAt("u1", "darts", 5, base)
		appendAt("u2", "darts", 9, base)

		best, ok, err := l.MaxScore(ctx, "u1", "chess")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(70), best)

		_, ok, err = l.MaxScore(ctx, "u2", "chess")
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := l.SumScore(ctx, "u1", ledger.SumFilter{})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{Sum: 165, Count: 4}, all)

		chess, err := l.SumScore(ctx, "u1", ledger.SumFilter{CategoryID: "chess"})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{Sum: 160, Count: 3}, chess)

		today, err := l.SumScore(ctx, "u1", ledger.SumFilter{Since: base.Add(-2 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{Sum: 115, Count: 3}, today)

		boundary, err := l.SumScore(ctx, "u1", ledger.SumFilter{Since: base})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{Sum: 75, Count: 2}, boundary)

		window, err := l.SumScore(ctx, "u1", ledger.SumFilter{Since: base.Add(-2 * time.Hour), Until: base})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{Sum: 40, Count: 1}, window)

		before, err := l.SumScore(ctx, "u1", ledger.SumFilter{Until: base.Add(-time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{Sum: 50, Count: 1}, before)

		none, err := l.SumScore(ctx, "ghost", ledger.SumFilter{})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{}, none)

		n, err := l.CountDistinctUsers(ctx, "darts")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = l.CountDistinctUsers(ctx, "chess")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("capped sums", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "darts", Active: true}))

		for _, v := range []int64{math.MaxInt64, 1, math.MaxInt64} {
			_, err := l.Append(ctx, model.ScoreRecord{UserID: "u1", CategoryID: "darts", Value: v}, "Ada")
			require.NoError(t, err)
		}

		all, err := l.SumScore(ctx, "u1", ledger.SumFilter{})
		require.NoError(t, err)
		assert.Equal(t, ledger.Aggregate{Sum: math.MaxInt64, Count: 3}, all)

		best, ok, err := l.MaxScore(ctx, "u1", "darts")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(math.MaxInt64), best)
	})

	t.Run("category names", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess", Name: "Chess", Active: true}))

		err := l.UpsertCategory(ctx, model.Category{ID: "chess-960", Name: "Chess", Active: true})
		require.True(t, errors.Is(err, ledger.ErrDuplicateCategoryName), "got %v", err)
		_, err = l.GetCategory(ctx, "chess-960")
		require.True(t, errors.Is(err, ledger.ErrCategoryNotFound), "got %v", err)

		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess", Name: "Chess", Slug: "chess", Active: false}))
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess-960", Name: "Chess960", Active: true}))

		// Unnamed categories do not collide.
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "a", Active: true}))
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "b", Active: true}))
	})

	t.Run("players", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess", Active: true}))

		users, err := l.ListActiveUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		_, err = l.Append(ctx, model.ScoreRecord{UserID: "u2", CategoryID: "chess", Value: 1}, "Bea")
		require.NoError(t, err)
		_, err = l.Append(ctx, model.ScoreRecord{UserID: "u1", CategoryID: "chess", Value: 1}, "Ada")
		require.NoError(t, err)
		_, err = l.Append(ctx, model.ScoreRecord{UserID: "u1", CategoryID: "chess", Value: 2}, "Ada L.")
		require.NoError(t, err)

		users, err = l.ListActiveUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "u1", users[0].ID)
		assert.Equal(t, "Ada L.", users[0].DisplayName)
		assert.Equal(t, "u2", users[1].ID)
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := newLedger(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := l.CountRecords(ctx)
		assert.Error(t, err)
	})
}
