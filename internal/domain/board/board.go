// Package board maps score submissions onto leaderboard keys.
//
// A board is addressed by a Key such as "category:chess", "global",
// "daily:2024-03-09", "weekly:2024-W10" or "monthly:2024-03". The Policy
// decides which boards a submission touches, how the score merges into each
// (ReplaceIfGreater keeps a personal best, Add accumulates) and how long a
// time-scoped board lives after its last write.
package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// Key names a board.
type Key string

// Kind is the coarse board class used for metrics and validation.
type Kind string

const (
	KindCategory Kind = "category"
	KindGlobal   Kind = "global"
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
)

// Global is the all-time, all-category board.
const Global Key = "global"

// CategoryPrefix prefixes every per-category board key.
const CategoryPrefix = string(KindCategory) + ":"

// Time-scoped board lifetimes, refreshed on every write.
const (
	DailyTTL   = 2 * 24 * time.Hour
	WeeklyTTL  = 8 * 24 * time.Hour
	MonthlyTTL = 32 * 24 * time.Hour
)

// MergeMode selects how a submitted value combines with an existing score.
type MergeMode int

const (
	// ReplaceIfGreater stores max(existing, value).
	ReplaceIfGreater MergeMode = iota
	// Add stores existing + value, treating absent as zero and capping at
	// math.MaxInt64.
	Add
)

func (m MergeMode) String() string {
	switch m {
	case ReplaceIfGreater:
		return "replace_if_greater"
	case Add:
		return "add"
	default:
		return "unknown"
	}
}

// Merge applies the mode to an existing score.
func (m MergeMode) Merge(existing int64, present bool, value int64) int64 {
	if !present {
		return value
	}
	if m == Add {
		return model.AddScores(existing, value)
	}
	if value > existing {
		return value
	}
	return existing
}

// ErrInvalidKey is returned by ParseKey for malformed board keys.
var ErrInvalidKey = errors.New("invalid board key")

// CategoryKey returns the board key of a category.
func CategoryKey(categoryID string) Key {
	return Key(CategoryPrefix + categoryID)
}

// DailyKey returns the daily board key containing t.
func DailyKey(t time.Time) Key {
	return Key(fmt.Sprintf("%s:%04d-%02d-%02d", KindDaily, t.Year(), int(t.Month()), t.Day()))
}

// WeeklyKey returns the weekly board key containing t. Weeks are counted
// from January 1 in blocks of seven days, so W1 is Jan 1-7.
func WeeklyKey(t time.Time) Key {
	return Key(fmt.Sprintf("%s:%d-W%d", KindWeekly, t.Year(), WeekOfYear(t)))
}

// MonthlyKey returns the monthly board key containing t.
func MonthlyKey(t time.Time) Key {
	return Key(fmt.Sprintf("%s:%04d-%02d", KindMonthly, t.Year(), int(t.Month())))
}

// WeekOfYear returns ceil(dayOfYear/7) with a 1-based day of year.
func WeekOfYear(t time.Time) int {
	return (t.YearDay() + 6) / 7
}

// Kind returns the board class of k.
func (k Key) Kind() Kind {
	if k == Global {
		return KindGlobal
	}
	kind, _, _ := strings.Cut(string(k), ":")
	return Kind(kind)
}

// IsTimeScoped reports whether boards of this key expire.
func (k Key) IsTimeScoped() bool {
	switch k.Kind() {
	case KindDaily, KindWeekly, KindMonthly:
		return true
	default:
		return false
	}
}

// CategoryID returns the category of a category board.
func (k Key) CategoryID() (string, bool) {
	if k.Kind() != KindCategory {
		return "", false
	}
	return strings.TrimPrefix(string(k), CategoryPrefix), true
}

func (k Key) String() string { return string(k) }

// ParseKey validates an externally supplied board key.
func ParseKey(s string) (Key, error) {
	if s == string(Global) {
		return Global, nil
	}
	kind, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	switch Kind(kind) {
	case KindCategory:
		return Key(s), nil
	case KindDaily:
		if _, err := time.Parse("2006-01-02", rest); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
		}
	case KindMonthly:
		if _, err := time.Parse("2006-01", rest); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
		}
	case KindWeekly:
		year, week, ok := strings.Cut(rest, "-W")
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
		}
		y, yErr := strconv.Atoi(year)
		w, wErr := strconv.Atoi(week)
		if yErr != nil || wErr != nil || y < 1 || w < 1 || w > 53 || strconv.Itoa(w) != week {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key(s), nil
}
