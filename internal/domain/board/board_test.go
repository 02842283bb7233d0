package board

import (
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTargets(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := NewPolicy()

		Convey("When a chess score is submitted on 2024-03-09", func() {
			ts := time.Date(2024, time.March, 9, 15, 4, 5, 0, time.UTC)
			targets := p.Targets("chess", ts)

			Convey("Then five boards are targeted in order", func() {
				So(targets, ShouldResemble, []Target{
					{Key: "category:chess", Mode: ReplaceIfGreater},
					{Key: "global", Mode: Add},
					{Key: "daily:2024-03-09", Mode: Add, TTL: 48 * time.Hour},
					{Key: "weekly:2024-W10", Mode: Add, TTL: 192 * time.Hour},
					{Key: "monthly:2024-03", Mode: Add, TTL: 768 * time.Hour},
				})
			})
		})

		Convey("When the timestamp is in another zone", func() {
			loc := time.FixedZone("UTC+10", 10*60*60)
			ts := time.Date(2024, time.January, 1, 5, 0, 0, 0, loc) // Dec 31 19:00 UTC
			targets := p.Targets("chess", ts)

			Convey("Then dates are computed in UTC", func() {
				So(targets[2].Key, ShouldEqual, Key("daily:2023-12-31"))
				So(targets[3].Key, ShouldEqual, Key("weekly:2023-W53"))
				So(targets[4].Key, ShouldEqual, Key("monthly:2023-12"))
			})
		})

		Convey("When a location is configured", func() {
			loc := time.FixedZone("UTC+10", 10*60*60)
			lp := NewPolicy(WithLocation(loc))
			ts := time.Date(2023, time.December, 31, 19, 0, 0, 0, time.UTC)

			Convey("Then dates follow that location", func() {
				So(lp.Targets("chess", ts)[2].Key, ShouldEqual, Key("daily:2024-01-01"))
			})
		})
	})
}

func TestWeekOfYear(t *testing.T) {
	Convey("Given calendar dates", t, func() {
		cases := []struct {
			date time.Time
			want int
		}{
			{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1},
			{time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC), 1},
			{time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), 2},
			{time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), 10},
			{time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 53},
			{time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), 53},
			{time.Date(2021, 12, 24, 0, 0, 0, 0, time.UTC), 52},
		}
		for _, c := range cases {
			So(WeekOfYear(c.date), ShouldEqual, c.want)
		}
		So(WeeklyKey(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)), ShouldEqual, Key("weekly:2024-W1"))
	})
}

func TestMergeMode(t *testing.T) {
	Convey("Given merge modes", t, func() {
		So(ReplaceIfGreater.Merge(0, false, 40), ShouldEqual, 40)
		So(ReplaceIfGreater.Merge(50, true, 40), ShouldEqual, 50)
		So(ReplaceIfGreater.Merge(50, true, 70), ShouldEqual, 70)
		So(Add.Merge(0, false, 40), ShouldEqual, 40)
		So(Add.Merge(50, true, 40), ShouldEqual, 90)
		So(Add.Merge(math.MaxInt64, true, 1), ShouldEqual, int64(math.MaxInt64))
		So(Add.Merge(math.MaxInt64-10, true, 20), ShouldEqual, int64(math.MaxInt64))
		So(Add.String(), ShouldEqual, "add")
	})
}

func TestPeriods(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := NewPolicy()
		now := time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)

		Convey("Then periods resolve to board keys", func() {
			for period, want := range map[Period]Key{
				PeriodDay:   "daily:2024-03-09",
				PeriodWeek:  "weekly:2024-W10",
				PeriodMonth: "monthly:2024-03",
				PeriodYear:  "global",
				PeriodAll:   "global",
			} {
				got, err := p.KeyForPeriod(period, now)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, want)
			}
		})

		Convey("Then unknown periods are rejected", func() {
			_, err := ParsePeriod("fortnight")
			So(errors.Is(err, ErrInvalidPeriod), ShouldBeTrue)
			got, err := ParsePeriod(" Week ")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, PeriodWeek)
		})

		Convey("Then window starts match the keys", func() {
			day, _ := p.PeriodStart(PeriodDay, now)
			week, _ := p.PeriodStart(PeriodWeek, now)
			month, _ := p.PeriodStart(PeriodMonth, now)
			So(day, ShouldEqual, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
			So(week, ShouldEqual, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
			So(WeeklyKey(week), ShouldEqual, WeeklyKey(now))
			So(WeeklyKey(week.Add(-time.Nanosecond)), ShouldNotEqual, WeeklyKey(now))
			So(month, ShouldEqual, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
			_, err := p.PeriodStart(PeriodAll, now)
			So(err, ShouldNotBeNil)
		})

		Convey("Then window ends are the next window's start", func() {
			day, _ := p.PeriodEnd(PeriodDay, now)
			week, _ := p.PeriodEnd(PeriodWeek, now)
			month, _ := p.PeriodEnd(PeriodMonth, now)
			So(day, ShouldEqual, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
			So(week, ShouldEqual, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
			So(month, ShouldEqual, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
			So(WeeklyKey(week.Add(-time.Nanosecond)), ShouldEqual, WeeklyKey(now))
			So(WeeklyKey(week), ShouldNotEqual, WeeklyKey(now))
			_, err := p.PeriodEnd(PeriodYear, now)
			So(err, ShouldNotBeNil)
		})

		Convey("Then the last week of the year is cut at January 1", func() {
			eve := time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC)
			start, _ := p.PeriodStart(PeriodWeek, eve)
			end, _ := p.PeriodEnd(PeriodWeek, eve)
			So(start, ShouldEqual, time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC))
			So(end, ShouldEqual, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
			So(WeeklyKey(end), ShouldEqual, Key("weekly:2025-W1"))
		})
	})
}

func TestParseKey(t *testing.T) {
	Convey("Given board keys", t, func() {
		for _, ok := range []string{"global", "category:chess", "daily:2024-03-09", "weekly:2024-W10", "weekly:2024-W1", "monthly:2024-03"} {
			k, err := ParseKey(ok)
			So(err, ShouldBeNil)
			So(string(k), ShouldEqual, ok)
		}
		for _, bad := range []string{"", "category:", "daily:2024-13-01", "weekly:2024-10", "weekly:2024-W01", "weekly:2024-W54", "monthly:24", "yearly:2024"} {
			_, err := ParseKey(bad)
			So(errors.Is(err, ErrInvalidKey), ShouldBeTrue)
		}
	})

	Convey("Given key kinds", t, func() {
		So(Global.Kind(), ShouldEqual, KindGlobal)
		So(CategoryKey("go").Kind(), ShouldEqual, KindCategory)
		So(Key("daily:2024-03-09").IsTimeScoped(), ShouldBeTrue)
		So(Global.IsTimeScoped(), ShouldBeFalse)
		id, ok := CategoryKey("go").CategoryID()
		So(ok, ShouldBeTrue)
		So(id, ShouldEqual, "go")
	})
}
