// Package config defines service configuration and its defaults.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Ledger drivers accepted by LedgerDriver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// CategorySeed describes a category upserted into the ledger at startup.
type CategorySeed struct {
	ID       string `koanf:"id"`
	Name     string `koanf:"name"`
	Slug     string `koanf:"slug"`
	MaxScore *int64 `koanf:"max_score"`
	Active   bool   `koanf:"active"`
}

// DisplayName returns Name, falling back to the ID.
func (c CategorySeed) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// LedgerDriver selects the durable ledger: memory, postgres or sqlite.
	LedgerDriver string `koanf:"ledger_driver"`
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `koanf:"database_url"`
	// SQLitePath is the SQLite database file.
	SQLitePath string `koanf:"sqlite_path"`
	// MigrateOnStart applies embedded schema migrations before serving.
	MigrateOnStart bool `koanf:"migrate_on_start"`

	// NATSURL enables event publishing when set.
	NATSURL string `koanf:"nats_url"`
	// NATSSubjectPrefix is prepended to every event subject.
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`

	// MaxLeaderboardLimit caps page sizes on read endpoints.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
	// MaxNeighborRadius caps the neighbors radius.
	MaxNeighborRadius int `koanf:"max_neighbor_radius"`

	// StoreTimeoutMS bounds every rank store read.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`
	// StoreSweepIntervalMS is how often expired boards are swept.
	StoreSweepIntervalMS int `koanf:"store_sweep_interval_ms"`

	// RebuildWorkers sets the number of parallel per-user rebuild workers.
	RebuildWorkers int `koanf:"rebuild_workers"`
	// RebuildQueueSize bounds the rebuild job queue.
	RebuildQueueSize int `koanf:"rebuild_queue_size"`
	// SyncOnStart runs checkAndSync before serving.
	SyncOnStart bool `koanf:"sync_on_start"`

	// CategoryCacheSize and CategoryCacheTTLMS bound the category lookup cache.
	CategoryCacheSize  int `koanf:"category_cache_size"`
	CategoryCacheTTLMS int `koanf:"category_cache_ttl_ms"`

	// DedupeSize sets how many submission ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// Categories are upserted into the ledger at startup.
	Categories []CategorySeed `koanf:"categories"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		LedgerDriver:         DriverMemory,
		SQLitePath:           "podium.db",
		MigrateOnStart:       true,
		NATSSubjectPrefix:    "podium",
		MaxLeaderboardLimit:  100,
		MaxNeighborRadius:    50,
		StoreTimeoutMS:       250,
		StoreSweepIntervalMS: 60_000,
		RebuildWorkers:       runtime.NumCPU() * 2,
		RebuildQueueSize:     10_000,
		SyncOnStart:          true,
		CategoryCacheSize:    1_024,
		CategoryCacheTTLMS:   30_000,
		DedupeSize:           100_000,
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// StoreSweepInterval returns StoreSweepIntervalMS as a duration.
func (c *Config) StoreSweepInterval() time.Duration {
	return time.Duration(c.StoreSweepIntervalMS) * time.Millisecond
}

// CategoryCacheTTL returns CategoryCacheTTLMS as a duration.
func (c *Config) CategoryCacheTTL() time.Duration {
	return time.Duration(c.CategoryCacheTTLMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LedgerDriver) {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres ledger", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite ledger", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ledger_driver %q", ErrInvalidConfig, c.LedgerDriver)
	}
	if c.MaxLeaderboardLimit < 1 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	if c.MaxNeighborRadius < 0 {
		return fmt.Errorf("%w: max_neighbor_radius must not be negative", ErrInvalidConfig)
	}
	if c.StoreTimeoutMS < 1 {
		return fmt.Errorf("%w: store_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.RebuildWorkers < 1 || c.RebuildQueueSize < 1 {
		return fmt.Errorf("%w: rebuild_workers and rebuild_queue_size must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Categories))
	names := make(map[string]string, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("%w: category id must not be empty", ErrInvalidConfig)
		}
		if _, dup := seen[cat.ID]; dup {
			return fmt.Errorf("%w: duplicate category id %q", ErrInvalidConfig, cat.ID)
		}
		seen[cat.ID] = struct{}{}
		name := cat.DisplayName()
		if other, dup := names[name]; dup {
			return fmt.Errorf("%w: categories %q and %q share the name %q", ErrInvalidConfig, other, cat.ID, name)
		}
		names[name] = cat.ID
		if cat.MaxScore != nil && *cat.MaxScore < 0 {
			return fmt.Errorf("%w: category %q max_score must not be negative", ErrInvalidConfig, cat.ID)
		}
	}
	return nil
}
