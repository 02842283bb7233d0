package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// Instrument wraps l so every call records latency and failures.
func Instrument(l Ledger) Ledger {
	if _, ok := l.(*instrumented); ok {
		return l
	}
	return &instrumented{next: l}
}

type instrumented struct {
	next Ledger
}

func observe(op string, start time.Time, err error) {
	metrics.RecordLedgerLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrCategoryNotFound) {
		metrics.RecordLedgerError(op)
	}
}

func (i *instrumented) Append(ctx context.Context, rec model.ScoreRecord, displayName string) (_ model.ScoreRecord, err error) {
	defer func(start time.Time) { observe("append", start, err) }(time.Now())
	return i.next.Append(ctx, rec, displayName)
}

func (i *instrumented) MaxScore(ctx context.Context, userID, categoryID string) (_ int64, _ bool, err error) {
	defer func(start time.Time) { observe("max_score", start, err) }(time.Now())
	return i.next.MaxScore(ctx, userID, categoryID)
}

func (i *instrumented) SumScore(ctx context.Context, userID string, f SumFilter) (_ Aggregate, err error) {
	defer func(start time.Time) { observe("sum_score", start, err) }(time.Now())
	return i.next.SumScore(ctx, userID, f)
}

func (i *instrumented) ListActiveUsers(ctx context.Context) (_ []model.Player, err error) {
	defer func(start time.Time) { observe("list_users", start, err) }(time.Now())
	return i.next.ListActiveUsers(ctx)
}

func (i *instrumented) ListActiveCategories(ctx context.Context) (_ []model.Category, err error) {
	defer func(start time.Time) { observe("list_categories", start, err) }(time.Now())
	return i.next.ListActiveCategories(ctx)
}

func (i *instrumented) CountDistinctUsers(ctx context.Context, categoryID string) (_ int, err error) {
	defer func(start time.Time) { observe("count_users", start, err) }(time.Now())
	return i.next.CountDistinctUsers(ctx, categoryID)
}

func (i *instrumented) CountRecords(ctx context.Context) (_ int64, err error) {
	defer func(start time.Time) { observe("count_records", start, err) }(time.Now())
	return i.next.CountRecords(ctx)
}

func (i *instrumented) GetCategory(ctx context.Context, id string) (_ model.Category, err error) {
	defer func(start time.Time) { observe("get_category", start, err) }(time.Now())
	return i.next.GetCategory(ctx, id)
}

func (i *instrumented) UpsertCategory(ctx context.Context, c model.Category) (err error) {
	defer func(start time.Time) { observe("upsert_category", start, err) }(time.Now())
	return i.next.UpsertCategory(ctx, c)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
