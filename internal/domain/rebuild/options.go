package rebuild

import (
	"time"

	"github.com/okian/podium/internal/adapters/events"
	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many users are rebuilt in parallel.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize bounds the rebuild job queue.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithPolicy replaces the default UTC board policy.
func WithPolicy(p board.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithPublisher publishes leaderboard.rebuilt after each successful rebuild.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
