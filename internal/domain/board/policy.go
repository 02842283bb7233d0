package board

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Target is one board touched by a submission.
type Target struct {
	Key  Key
	Mode MergeMode
	TTL  time.Duration // zero for boards that never expire
}

// Period is a user-facing leaderboard window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// ErrInvalidPeriod is returned by ParsePeriod.
var ErrInvalidPeriod = errors.New("invalid period")

// ParsePeriod parses day, week, month, year or all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// Policy is the pure mapping from submissions to boards.
type Policy struct {
	loc *time.Location
}

// Option configures a Policy.
type Option func(*Policy)

// WithLocation computes calendar boundaries in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(p *Policy) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// NewPolicy returns a Policy computing dates in UTC unless configured.
func NewPolicy(opts ...Option) Policy {
	p := Policy{loc: time.UTC}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p Policy) in(ts time.Time) time.Time {
	if p.loc == nil {
		return ts.UTC()
	}
	return ts.In(p.loc)
}

// Targets returns the boards a submission to categoryID at ts updates, in
// the order they must be written: category, global, daily, weekly, monthly.
func (p Policy) Targets(categoryID string, ts time.Time) []Target {
	t := p.in(ts)
	return []Target{
		{Key: CategoryKey(categoryID), Mode: ReplaceIfGreater},
		{Key: Global, Mode: Add},
		{Key: DailyKey(t), Mode: Add, TTL: DailyTTL},
		{Key: WeeklyKey(t), Mode: Add, TTL: WeeklyTTL},
		{Key: MonthlyKey(t), Mode: Add, TTL: MonthlyTTL},
	}
}

// KeyForPeriod resolves a period to the board that serves it at now.
// Year has no board of its own and resolves to the all-time board.
func (p Policy) KeyForPeriod(period Period, now time.Time) (Key, error) {
	t := p.in(now)
	switch period {
	case PeriodDay:
		return DailyKey(t), nil
	case PeriodWeek:
		return WeeklyKey(t), nil
	case PeriodMonth:
		return MonthlyKey(t), nil
	case PeriodYear, PeriodAll:
		return Global, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

// PeriodStart returns the first instant of the day, week or month window
// containing now, matching the boundaries used by Targets.
func (p Policy) PeriodStart(period Period, now time.Time) (time.Time, error) {
	t := p.in(now)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case PeriodDay:
		return day, nil
	case PeriodWeek:
		jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
		return jan1.AddDate(0, 0, (WeekOfYear(t)-1)*7), nil
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("%w: no window start for %q", ErrInvalidPeriod, period)
	}
}

// PeriodEnd returns the first instant after the day, week or month window
// containing now. The last week of a year ends on January 1.
func (p Policy) PeriodEnd(period Period, now time.Time) (time.Time, error) {
	start, err := p.PeriodStart(period, now)
	if err != nil {
		return time.Time{}, err
	}
	switch period {
	case PeriodDay:
		return start.AddDate(0, 0, 1), nil
	case PeriodWeek:
		end := start.AddDate(0, 0, 7)
		nextYear := time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, start.Location())
		if end.After(nextYear) {
			return nextYear, nil
		}
		return end, nil
	default:
		return start.AddDate(0, 1, 0), nil
	}
}

// TimeWindows lists the expiring windows in Targets order.
func TimeWindows() []Period {
	return []Period{PeriodDay, PeriodWeek, PeriodMonth}
}

// TTLFor returns the lifetime of the board serving period.
func TTLFor(period Period) time.Duration {
	switch period {
	case PeriodDay:
		return DailyTTL
	case PeriodWeek:
		return WeeklyTTL
	case PeriodMonth:
		return MonthlyTTL
	default:
		return 0
	}
}
