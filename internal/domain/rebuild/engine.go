// Package rebuild reconstructs the rank store from the ledger and reports
// divergence between the two.
//
// Category boards and the global board are cleared and recomputed. Expiring
// boards are only rebuilt for the current day, week and month; older ones
// cannot be recovered from a rebuild.
package rebuild

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/podium/internal/adapters/events"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/adapters/mq/worker"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Rebuild triggers.
const (
	TriggerManual  = "manual"
	TriggerCheck   = "check"
	TriggerStartup = "startup"
)

// Ledger is the slice of the durable ledger a rebuild reads.
type Ledger interface {
	MaxScore(ctx context.Context, userID, categoryID string) (int64, bool, error)
	SumScore(ctx context.Context, userID string, f ledger.SumFilter) (ledger.Aggregate, error)
	ListActiveUsers(ctx context.Context) ([]model.Player, error)
	ListActiveCategories(ctx context.Context) ([]model.Category, error)
	CountDistinctUsers(ctx context.Context, categoryID string) (int, error)
	CountRecords(ctx context.Context) (int64, error)
}

// State is the engine's sync state. It only ever moves forward.
type State int32

const (
	NotSynced State = iota
	Synced
)

func (s State) String() string {
	if s == Synced {
		return "synced"
	}
	return "not_synced"
}

// Result describes one CheckAndSync or ForceSync call.
type Result struct {
	Trigger    string        `json:"trigger"`
	Skipped    bool          `json:"skipped,omitempty"`
	Shared     bool          `json:"shared,omitempty"`
	Users      int           `json:"users"`
	Categories int           `json:"categories"`
	Records    int64         `json:"records"`
	Entries    int64         `json:"entries"`
	Failures   int           `json:"failures"`
	Elapsed    time.Duration `json:"elapsedNs"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// CategoryStatus compares one category between the ledger and its board.
type CategoryStatus struct {
	CategoryID   string `json:"categoryId"`
	LedgerUsers  int    `json:"ledgerUsers"`
	BoardEntries int    `json:"boardEntries"`
	Diverged     bool   `json:"diverged"`
}

// Status is the engine's divergence report.
type Status struct {
	State           string           `json:"state"`
	GlobalEntries   int              `json:"globalEntries"`
	GlobalPopulated bool             `json:"globalPopulated"`
	Divergent       int              `json:"divergent"`
	Categories      []CategoryStatus `json:"categories"`
	LastSync        *Result          `json:"lastSync,omitempty"`
}

type window struct {
	key   board.Key
	since time.Time
	until time.Time
	ttl   time.Duration
}

// Engine rebuilds the rank store. ForceSync is single-flight: concurrent
// callers share one rebuild.
type Engine struct {
	store     repository.Store
	ledger    Ledger
	policy    board.Policy
	publisher events.Publisher
	log       logger.Logger
	now       func() time.Time

	workers   int
	queueSize int

	group singleflight.Group
	state atomic.Int32

	mu   sync.RWMutex
	last *Result
}

// New creates an engine over store and l.
func New(store repository.Store, l Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		ledger:    l,
		policy:    board.NewPolicy(),
		publisher: events.Nop{},
		log:       logger.Named("rebuild"),
		now:       time.Now,
		workers:   runtime.NumCPU() * 2,
		queueSize: 10000,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current sync state.
func (e *Engine) State() State { return State(e.state.Load()) }

// CheckAndSync rebuilds only when the global board is empty. A populated
// global board is taken as proof of a populated store, even if other
// boards are incomplete.
func (e *Engine) CheckAndSync(ctx context.Context) (Result, error) {
	return e.checkAndSync(ctx, TriggerCheck)
}

// Startup is CheckAndSync labelled as the startup run.
func (e *Engine) Startup(ctx context.Context) (Result, error) {
	return e.checkAndSync(ctx, TriggerStartup)
}

// ForceSync clears and rebuilds every category board, the global board and
// the current time-scoped boards from the ledger.
func (e *Engine) ForceSync(ctx context.Context) (Result, error) {
	return e.sync(ctx, TriggerManual)
}

func (e *Engine) checkAndSync(ctx context.Context, trigger string) (Result, error) {
	n, err := e.store.Cardinality(ctx, board.Global)
	if err != nil {
		metrics.RecordSyncRun(metrics.SyncFailed)
		return Result{Trigger: trigger}, fmt.Errorf("check: %w: %w", ErrStoreUnavailable, err)
	}
	if n > 0 {
		e.state.Store(int32(Synced))
		metrics.RecordSyncRun(metrics.SyncSkipped)
		e.log.Info(ctx, "rank store already populated, skipping rebuild", logger.Int("globalEntries", n))
		return Result{Trigger: trigger, Skipped: true, FinishedAt: e.now()}, nil
	}
	return e.sync(ctx, trigger)
}

func (e *Engine) sync(ctx context.Context, trigger string) (Result, error) {
	v, err, shared := e.group.Do("sync", func() (any, error) {
		return e.forceSync(ctx, trigger)
	})
	res, _ := v.(Result)
	if shared {
		res.Shared = true
		metrics.RecordSyncRun(metrics.SyncShared)
	}
	return res, err
}

func (e *Engine) forceSync(ctx context.Context, trigger string) (Result, error) {
	start := time.Now()
	res := Result{Trigger: trigger}

	cats, err := e.ledger.ListActiveCategories(ctx)
	if err != nil {
		return e.fail(ctx, res, fmt.Errorf("list categories: %w", err))
	}
	users, err := e.ledger.ListActiveUsers(ctx)
	if err != nil {
		return e.fail(ctx, res, fmt.Errorf("list users: %w", err))
	}
	if res.Records, err = e.ledger.CountRecords(ctx); err != nil {
		return e.fail(ctx, res, fmt.Errorf("count records: %w", err))
	}
	res.Users, res.Categories = len(users), len(cats)

	if err := e.clear(ctx); err != nil {
		return e.fail(ctx, res, err)
	}

	now := e.now()
	windows := make([]window, 0, len(board.TimeWindows()))
	for _, p := range board.TimeWindows() {
		key, _ := e.policy.KeyForPeriod(p, now)
		since, _ := e.policy.PeriodStart(p, now)
		until, _ := e.policy.PeriodEnd(p, now)
		windows = append(windows, window{key: key, since: since, until: until, ttl: board.TTLFor(p)})
	}

	var entries atomic.Int64
	q := queue.NewInMemoryQueue(queue.WithCapacity(e.queueSize))
	pool := worker.NewPool(e.workers, q, worker.ProcessorFunc(func(ctx context.Context, job queue.Job) error {
		n, err := e.rebuildUser(ctx, job, cats, windows)
		entries.Add(n)
		return err
	}))
	pool.Start(ctx)

	var enqueueErr error
	for _, u := range users {
		if enqueueErr = q.EnqueueWait(ctx, queue.Job{UserID: u.ID, DisplayName: u.DisplayName}); enqueueErr != nil {
			break
		}
	}
	_ = q.Close()
	waitErr := pool.Wait(ctx)

	res.Entries = entries.Load()
	res.Failures = int(pool.Failed())
	res.Elapsed = time.Since(start)
	res.FinishedAt = e.now()

	switch {
	case enqueueErr != nil:
		return e.fail(ctx, res, fmt.Errorf("enqueue: %w", enqueueErr))
	case waitErr != nil:
		return e.fail(ctx, res, fmt.Errorf("wait: %w", waitErr))
	case res.Failures > 0:
		return e.fail(ctx, res, fmt.Errorf("%d of %d users: %w", res.Failures, res.Users, pool.Err()))
	}

	e.state.Store(int32(Synced))
	e.remember(res)
	metrics.RecordSyncRun(metrics.SyncRebuilt)
	metrics.RecordSyncDuration(float64(res.Elapsed.Milliseconds()))
	metrics.UpdateSyncLastUnix(float64(res.FinishedAt.Unix()))
	e.log.Info(ctx, "rank store rebuilt",
		logger.String("trigger", trigger),
		logger.Int("users", res.Users),
		logger.Int("categories", res.Categories),
		logger.Int64("records", res.Records),
		logger.Int64("entries", res.Entries),
		logger.Duration("elapsed", res.Elapsed),
	)

	if err := e.publisher.Publish(ctx, events.SubjectLeaderboardRebuilt, events.LeaderboardRebuilt{
		Trigger:    trigger,
		Users:      res.Users,
		Categories: res.Categories,
		DurationMS: res.Elapsed.Milliseconds(),
	}); err != nil {
		e.log.Warn(ctx, "event publish failed", logger.String("subject", events.SubjectLeaderboardRebuilt), logger.Error(err))
	}
	return res, nil
}

// clear drops every category board and the global board. Time-scoped
// boards are left to their own expiry.
func (e *Engine) clear(ctx context.Context) error {
	keys, err := e.store.Keys(ctx, board.CategoryPrefix)
	if err != nil {
		return fmt.Errorf("%w: list boards: %w", ErrStoreUnavailable, err)
	}
	for _, k := range append(keys, board.Global) {
		if err := e.store.Clear(ctx, k); err != nil {
			return fmt.Errorf("%w: clear %s: %w", ErrStoreUnavailable, k, err)
		}
	}
	return nil
}

// rebuildUser recomputes one user's entries and returns how many it wrote.
// Time-scoped boards are not cleared, so their sums are written with
// ReplaceIfGreater to keep repeated rebuilds idempotent.
func (e *Engine) rebuildUser(ctx context.Context, job queue.Job, cats []model.Category, windows []window) (int64, error) {
	member := model.Member{UserID: job.UserID, DisplayName: job.DisplayName}.Encode()
	var written int64

	for _, c := range cats {
		best, ok, err := e.ledger.MaxScore(ctx, job.UserID, c.ID)
		if err != nil {
			return written, fmt.Errorf("max score %s: %w", c.ID, err)
		}
		if !ok {
			continue
		}
		if _, err := e.store.Upsert(ctx, board.CategoryKey(c.ID), member, best, board.ReplaceIfGreater); err != nil {
			return written, err
		}
		written++
	}

	total, err := e.ledger.SumScore(ctx, job.UserID, ledger.SumFilter{})
	if err != nil {
		return written, fmt.Errorf("sum score: %w", err)
	}
	if total.Count > 0 {
		if _, err := e.store.Upsert(ctx, board.Global, member, total.Sum, board.Add); err != nil {
			return written, err
		}
		written++
	}

	for _, w := range windows {
		agg, err := e.ledger.SumScore(ctx, job.UserID, ledger.SumFilter{Since: w.since, Until: w.until})
		if err != nil {
			return written, fmt.Errorf("sum score since %s: %w", w.since.Format(time.RFC3339), err)
		}
		if agg.Count == 0 {
			continue
		}
		if _, err := e.store.Upsert(ctx, w.key, member, agg.Sum, board.ReplaceIfGreater); err != nil {
			return written, err
		}
		if err := e.store.SetExpiry(ctx, w.key, w.ttl); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (e *Engine) fail(ctx context.Context, res Result, err error) (Result, error) {
	metrics.RecordSyncRun(metrics.SyncFailed)
	e.log.Error(ctx, "rebuild failed", logger.String("trigger", res.Trigger), logger.Error(err))
	return res, fmt.Errorf("%w: %w", ErrRebuildFailed, err)
}

func (e *Engine) remember(res Result) {
	e.mu.Lock()
	e.last = &res
	e.mu.Unlock()
}

// Status compares each active category's distinct ledger users with its
// board cardinality.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	cats, err := e.ledger.ListActiveCategories(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("status: list categories: %w", err)
	}
	global, err := e.store.Cardinality(ctx, board.Global)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w: %w", ErrStoreUnavailable, err)
	}

	st := Status{
		State:           e.State().String(),
		GlobalEntries:   global,
		GlobalPopulated: global > 0,
		Categories:      make([]CategoryStatus, 0, len(cats)),
	}
	for _, c := range cats {
		users, err := e.ledger.CountDistinctUsers(ctx, c.ID)
		if err != nil {
			return Status{}, fmt.Errorf("status: count users %s: %w", c.ID, err)
		}
		entries, err := e.store.Cardinality(ctx, board.CategoryKey(c.ID))
		if err != nil {
			return Status{}, fmt.Errorf("status: %w: %w", ErrStoreUnavailable, err)
		}
		cs := CategoryStatus{CategoryID: c.ID, LedgerUsers: users, BoardEntries: entries, Diverged: users != entries}
		if cs.Diverged {
			st.Divergent++
		}
		st.Categories = append(st.Categories, cs)
	}
	metrics.UpdateSyncDivergentCategories(st.Divergent)

	e.mu.RLock()
	if e.last != nil {
		last := *e.last
		st.LastSync = &last
	}
	e.mu.RUnlock()
	return st, nil
}
