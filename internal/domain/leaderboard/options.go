package leaderboard

import (
	"time"

	"github.com/okian/podium/internal/adapters/events"
	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/dedupe"
	"github.com/okian/podium/pkg/logger"
)

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces the default UTC board policy.
func WithPolicy(p board.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithPublisher publishes score.submitted events after each submission.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithDeduper enables submission idempotency keys.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) { s.dedupe = d }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReadTimeout bounds every read query against the rank store.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithMaxLimit caps page sizes.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithMaxRadius caps neighbor radii.
func WithMaxRadius(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRadius = n
		}
	}
}
