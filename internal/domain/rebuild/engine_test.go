package rebuild

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/podium/internal/adapters/catalog"
	"github.com/okian/podium/internal/adapters/events"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/ledger/memory"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/leaderboard"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// gatedLedger blocks ListActiveCategories until the gate is opened.
type gatedLedger struct {
	Ledger
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedLedger) ListActiveCategories(ctx context.Context) ([]model.Category, error) {
	g.calls.Add(1)
	<-g.gate
	return g.Ledger.ListActiveCategories(ctx)
}

// brokenLedger fails max-score lookups for one user.
type brokenLedger struct {
	Ledger
	user string
}

func (b brokenLedger) MaxScore(ctx context.Context, userID, categoryID string) (int64, bool, error) {
	if userID == b.user {
		return 0, false, errors.New("ledger timeout")
	}
	return b.Ledger.MaxScore(ctx, userID, categoryID)
}

type fixture struct {
	clock  *fakeClock
	ledger *memory.Ledger
	live   *repository.TreapStore
	svc    *leaderboard.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	led := memory.New(memory.WithClock(clock.Now))
	for _, id := range []string{"chess", "darts"} {
		if err := led.UpsertCategory(ctx, model.Category{ID: id, Name: id, Active: true}); err != nil {
			t.Fatal(err)
		}
	}
	live := newStore(t, clock)
	svc := leaderboard.New(live, led, catalog.New(led), leaderboard.WithClock(clock.Now), leaderboard.WithLogger(logger.Nop()))
	return &fixture{clock: clock, ledger: led, live: live, svc: svc}
}

func newStore(t *testing.T, clock *fakeClock) *repository.TreapStore {
	s := repository.NewTreapStore(context.Background(), repository.WithClock(clock.Now), repository.WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (f *fixture) submit(user, name, category string, value int64, at time.Time) {
	_, err := f.svc.SubmitScore(context.Background(), leaderboard.Submission{
		UserID: user, DisplayName: name, CategoryID: category, Value: value, SubmittedAt: at,
	})
	So(err, ShouldBeNil)
}

func (f *fixture) seed() {
	now := f.clock.Now()
	f.submit("u1", "Ada", "chess", 50, now.AddDate(0, 0, -40))
	f.submit("u1", "Ada", "chess", 30, now.Add(-time.Hour))
	f.submit("u1", "Ada", "darts", 20, now)
	f.submit("u2", "Bea", "chess", 70, now)
	f.submit("u3", "Cy", "darts", 5, now.AddDate(0, 0, -3))
}

func dump(s repository.Store, key board.Key) []repository.Entry {
	rows, err := s.Range(context.Background(), key, 0, -1)
	So(err, ShouldBeNil)
	return rows
}

func newEngine(f *fixture, store repository.Store, l Ledger, opts ...Option) *Engine {
	base := []Option{WithClock(f.clock.Now), WithWorkers(3), WithLogger(logger.Nop())}
	return New(store, l, append(base, opts...)...)
}

func TestForceSync(t *testing.T) {
	Convey("Given a ledger populated through the service", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		f.seed()

		Convey("When the ledger holds a record dated later in the month", func() {
			now := f.clock.Now()
			f.submit("u4", "Di", "darts", 9, now.AddDate(0, 0, 5))
			fresh := newStore(t, f.clock)
			_, err := newEngine(f, fresh, f.ledger).ForceSync(ctx)
			So(err, ShouldBeNil)

			Convey("Then it stays off the current day and week like the live projection", func() {
				day, week := board.DailyKey(now), board.WeeklyKey(now)
				So(dump(f.live, day), ShouldHaveLength, 2)
				So(dump(fresh, day), ShouldResemble, dump(f.live, day))
				So(dump(fresh, week), ShouldResemble, dump(f.live, week))
				n, err := fresh.Cardinality(ctx, week)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 3)
			})

			Convey("Then it still counts toward the month it falls in", func() {
				month := board.MonthlyKey(now)
				So(dump(fresh, month), ShouldResemble, dump(f.live, month))
				So(dump(fresh, month), ShouldHaveLength, 4)
			})
		})

		Convey("When a fresh store is rebuilt", func() {
			fresh := newStore(t, f.clock)
			rec := &events.Recorder{}
			e := newEngine(f, fresh, f.ledger, WithPublisher(rec))
			So(e.State(), ShouldEqual, NotSynced)

			res, err := e.ForceSync(ctx)
			So(err, ShouldBeNil)

			Convey("Then the result counts the work", func() {
				So(res.Trigger, ShouldEqual, TriggerManual)
				So(res.Users, ShouldEqual, 3)
				So(res.Categories, ShouldEqual, 2)
				So(res.Records, ShouldEqual, 5)
				So(res.Failures, ShouldEqual, 0)
				So(e.State(), ShouldEqual, Synced)
				So(len(rec.Events(events.SubjectLeaderboardRebuilt)), ShouldEqual, 1)
			})

			Convey("Then category and global boards match the incremental projection", func() {
				for _, key := range []board.Key{board.CategoryKey("chess"), board.CategoryKey("darts"), board.Global} {
					So(dump(fresh, key), ShouldResemble, dump(f.live, key))
				}
			})

			Convey("Then only the current windows are rebuilt", func() {
				now := f.clock.Now()
				So(dump(fresh, board.DailyKey(now)), ShouldResemble, dump(f.live, board.DailyKey(now)))
				So(dump(fresh, board.MonthlyKey(now)), ShouldResemble, dump(f.live, board.MonthlyKey(now)))
				So(dump(fresh, board.DailyKey(now.AddDate(0, 0, -3))), ShouldBeEmpty)
				ttl, ok := fresh.TTL(board.DailyKey(now))
				So(ok, ShouldBeTrue)
				So(ttl, ShouldEqual, board.DailyTTL)
			})

			Convey("Then status reports no divergence", func() {
				st, err := e.Status(ctx)
				So(err, ShouldBeNil)
				So(st.State, ShouldEqual, "synced")
				So(st.GlobalPopulated, ShouldBeTrue)
				So(st.GlobalEntries, ShouldEqual, 3)
				So(st.Divergent, ShouldEqual, 0)
				So(len(st.Categories), ShouldEqual, 2)
				for _, c := range st.Categories {
					So(c.Diverged, ShouldBeFalse)
				}
				So(st.LastSync, ShouldNotBeNil)
				So(st.LastSync.Users, ShouldEqual, 3)
			})

			Convey("Then a second rebuild is idempotent", func() {
				now := f.clock.Now()
				before := dump(fresh, board.DailyKey(now))
				_, err := e.ForceSync(ctx)
				So(err, ShouldBeNil)
				So(dump(fresh, board.DailyKey(now)), ShouldResemble, before)
				So(dump(fresh, board.Global), ShouldResemble, dump(f.live, board.Global))
			})
		})

		Convey("When the live store drifts", func() {
			e := newEngine(f, f.live, f.ledger)
			_, err := f.live.Remove(ctx, board.CategoryKey("chess"), model.Member{UserID: "u2", DisplayName: "Bea"}.Encode())
			So(err, ShouldBeNil)
			_, err = f.live.Upsert(ctx, board.CategoryKey("stale"), "x", 1, board.Add)
			So(err, ShouldBeNil)

			st, err := e.Status(ctx)
			So(err, ShouldBeNil)
			So(st.Divergent, ShouldEqual, 1)

			Convey("Then ForceSync repairs it and drops stale category boards", func() {
				_, err := e.ForceSync(ctx)
				So(err, ShouldBeNil)
				st, err := e.Status(ctx)
				So(err, ShouldBeNil)
				So(st.Divergent, ShouldEqual, 0)
				n, err := f.live.Cardinality(ctx, board.CategoryKey("stale"))
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When inactive players exist they are not rebuilt", func() {
			f.ledger.SetPlayerActive("u3", false)
			fresh := newStore(t, f.clock)
			e := newEngine(f, fresh, f.ledger)
			res, err := e.ForceSync(ctx)
			So(err, ShouldBeNil)
			So(res.Users, ShouldEqual, 2)
			n, _ := fresh.Cardinality(ctx, board.Global)
			So(n, ShouldEqual, 2)
		})

		Convey("When a user's aggregates cannot be read", func() {
			fresh := newStore(t, f.clock)
			e := newEngine(f, fresh, brokenLedger{Ledger: f.ledger, user: "u2"})
			res, err := e.ForceSync(ctx)

			Convey("Then the rebuild fails and the engine stays unsynced", func() {
				So(errors.Is(err, ErrRebuildFailed), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "u2")
				So(res.Failures, ShouldEqual, 1)
				So(e.State(), ShouldEqual, NotSynced)
			})
		})
	})
}

func TestCheckAndSync(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		f.seed()
		fresh := newStore(t, f.clock)
		e := newEngine(f, fresh, f.ledger)

		res, err := e.CheckAndSync(ctx)
		So(err, ShouldBeNil)
		So(res.Skipped, ShouldBeFalse)
		So(res.Users, ShouldEqual, 3)
		So(e.State(), ShouldEqual, Synced)
	})

	Convey("Given a store whose global board has a single entry", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		f.seed()
		partial := newStore(t, f.clock)
		_, err := partial.Upsert(ctx, board.Global, model.Member{UserID: "u1", DisplayName: "Ada"}.Encode(), 1, board.Add)
		So(err, ShouldBeNil)
		e := newEngine(f, partial, f.ledger)

		res, err := e.Startup(ctx)

		Convey("Then the rebuild is skipped even though boards are incomplete", func() {
			So(err, ShouldBeNil)
			So(res.Skipped, ShouldBeTrue)
			So(res.Trigger, ShouldEqual, TriggerStartup)
			So(e.State(), ShouldEqual, Synced)
			n, _ := partial.Cardinality(ctx, board.CategoryKey("chess"))
			So(n, ShouldEqual, 0)

			st, err := e.Status(ctx)
			So(err, ShouldBeNil)
			So(st.Divergent, ShouldEqual, 2)
		})
	})
}

func TestForceSyncSingleFlight(t *testing.T) {
	Convey("Given a rebuild that is in flight", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		f.seed()
		gated := &gatedLedger{Ledger: f.ledger, gate: make(chan struct{})}
		e := newEngine(f, newStore(t, f.clock), gated)

		results := make(chan Result, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := e.ForceSync(ctx)
				if err == nil {
					results <- res
				}
			}()
		}
		for gated.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		// Give the second caller time to join the flight.
		time.Sleep(20 * time.Millisecond)
		close(gated.gate)
		wg.Wait()
		close(results)

		Convey("Then both callers observe one rebuild", func() {
			So(gated.calls.Load(), ShouldEqual, 1)
			shared := 0
			for res := range results {
				So(res.Users, ShouldEqual, 3)
				if res.Shared {
					shared++
				}
			}
			So(shared, ShouldEqual, 2)
		})
	})
}

func TestStatusWithoutLedger(t *testing.T) {
	Convey("Status surfaces ledger failures", t, func() {
		f := newFixture(t)
		e := newEngine(f, f.live, failingCategories{Ledger: f.ledger})
		_, err := e.Status(context.Background())
		So(err, ShouldNotBeNil)
	})
}

type failingCategories struct{ Ledger }

func (failingCategories) ListActiveCategories(context.Context) ([]model.Category, error) {
	return nil, ledger.ErrCategoryNotFound
}
