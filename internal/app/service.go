// Package service is the composition root: it opens the ledger, builds the
// rank store and wires the leaderboard and rebuild engines the HTTP API
// depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/podium/internal/adapters/catalog"
	"github.com/okian/podium/internal/adapters/events"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/ledger/memory"
	"github.com/okian/podium/internal/adapters/ledger/postgres"
	"github.com/okian/podium/internal/adapters/ledger/sqlite"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/dedupe"
	"github.com/okian/podium/internal/domain/leaderboard"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/rebuild"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// ErrNotStarted is returned by accessors used before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every long-lived component of the process.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	now    func() time.Time

	// Overrides, mainly for tests.
	ledgerOverride    ledger.Ledger
	publisherOverride events.Publisher

	ledger      ledger.Ledger
	store       *repository.TreapStore
	catalog     *catalog.Catalog
	deduper     dedupe.Deduper
	publisher   events.Publisher
	leaderboard *leaderboard.Service
	rebuild     *rebuild.Engine

	started   bool
	startedAt time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLedger uses l instead of opening the configured driver. Stop closes it.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Service) { s.ledgerOverride = l }
}

// WithPublisher uses p instead of connecting to NATS.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisherOverride = p }
}

// WithClock overrides time.Now for every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the ledger, seeds categories, builds the engines and, when
// configured, rebuilds an empty rank store from the ledger.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting leaderboard service...", logger.String("ledger", cfg.LedgerDriver))

	l, err := s.openLedger(ctx)
	if err != nil {
		return err
	}
	s.ledger = ledger.Instrument(l)

	s.catalog = catalog.New(s.ledger,
		catalog.WithSize(cfg.CategoryCacheSize),
		catalog.WithTTL(cfg.CategoryCacheTTL()),
	)
	if err := s.seed(ctx); err != nil {
		_ = s.ledger.Close()
		return err
	}

	if s.publisher, err = s.openPublisher(ctx); err != nil {
		_ = s.ledger.Close()
		return err
	}

	s.store = repository.NewTreapStore(ctx,
		repository.WithClock(s.now),
		repository.WithSweepInterval(cfg.StoreSweepInterval()),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))

	policy := board.NewPolicy()
	s.leaderboard = leaderboard.New(s.store, s.ledger, s.catalog,
		leaderboard.WithPolicy(policy),
		leaderboard.WithPublisher(s.publisher),
		leaderboard.WithDeduper(s.deduper),
		leaderboard.WithClock(s.now),
		leaderboard.WithReadTimeout(cfg.StoreTimeout()),
		leaderboard.WithMaxLimit(cfg.MaxLeaderboardLimit),
		leaderboard.WithMaxRadius(cfg.MaxNeighborRadius),
	)
	s.rebuild = rebuild.New(s.store, s.ledger,
		rebuild.WithPolicy(policy),
		rebuild.WithPublisher(s.publisher),
		rebuild.WithClock(s.now),
		rebuild.WithWorkers(cfg.RebuildWorkers),
		rebuild.WithQueueSize(cfg.RebuildQueueSize),
	)

	if cfg.SyncOnStart {
		// A failed startup rebuild leaves the engine not_synced; the store
		// keeps serving and an operator can retry through /admin/sync.
		if _, err := s.rebuild.Startup(ctx); err != nil {
			s.logger.Error(ctx, "startup rebuild failed", logger.Error(err))
		}
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("rebuildWorkers", cfg.RebuildWorkers),
		logger.Int("dedupeSize", cfg.DedupeSize),
		logger.Int("categories", len(cfg.Categories)),
		logger.String("syncState", s.rebuild.State().String()),
	)
	return nil
}

func (s *Service) openLedger(ctx context.Context) (ledger.Ledger, error) {
	if s.ledgerOverride != nil {
		return s.ledgerOverride, nil
	}
	switch strings.ToLower(s.cfg.LedgerDriver) {
	case config.DriverPostgres:
		l, err := postgres.Open(ctx, s.cfg.DatabaseURL, s.cfg.MigrateOnStart)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return l, nil
	case config.DriverSQLite:
		l, err := sqlite.Open(ctx, s.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return l, nil
	case config.DriverMemory, "":
		s.logger.Warn(ctx, "using in-memory ledger; scores are lost on restart")
		return memory.New(memory.WithClock(s.now)), nil
	default:
		return nil, fmt.Errorf("%w: unknown ledger_driver %q", config.ErrInvalidConfig, s.cfg.LedgerDriver)
	}
}

func (s *Service) openPublisher(ctx context.Context) (events.Publisher, error) {
	if s.publisherOverride != nil {
		return s.publisherOverride, nil
	}
	if s.cfg.NATSURL == "" {
		return events.Nop{}, nil
	}
	p, err := events.ConnectNATS(ctx, s.cfg.NATSURL, s.cfg.NATSSubjectPrefix)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return p, nil
}

func (s *Service) seed(ctx context.Context) error {
	for _, c := range s.cfg.Categories {
		cat := model.Category{ID: c.ID, Name: c.DisplayName(), Slug: c.Slug, MaxScore: c.MaxScore, Active: c.Active}
		if err := s.catalog.Put(ctx, cat); err != nil {
			return fmt.Errorf("seed category %s: %w", c.ID, err)
		}
	}
	return nil
}

// Stop releases every component. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping leaderboard service...")

	if err := s.publisher.Close(); err != nil {
		s.logger.Warn(ctx, "event publisher close failed", logger.Error(err))
	}
	_ = s.store.Close()
	if err := s.ledger.Close(); err != nil {
		s.logger.Warn(ctx, "ledger close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

// Leaderboard returns the request-facing engine.
func (s *Service) Leaderboard() (*leaderboard.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.leaderboard, nil
}

// Rebuild returns the rebuild engine.
func (s *Service) Rebuild() (*rebuild.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.rebuild, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"ledgerDriver": s.cfg.LedgerDriver,
		"dedupeSize":   s.cfg.DedupeSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
	stats["syncState"] = s.rebuild.State().String()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["cachedCategories"] = s.catalog.Len()

	if keys, err := s.store.Keys(ctx, ""); err == nil {
		stats["boards"] = len(keys)
		metrics.UpdateStoreBoards(len(keys))
	}
	if n, err := s.store.Cardinality(ctx, board.Global); err == nil {
		stats["rankedUsers"] = n
	}
	if n, err := s.ledger.CountRecords(ctx); err == nil {
		stats["records"] = n
	}
	return stats
}
