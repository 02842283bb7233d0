// Package leaderboard applies score submissions to every affected board and
// answers ranking queries from the rank store.
//
// A submission is appended to the ledger before any board is touched. Board
// updates after that point are best effort: if one fails the submission is
// still reported as recorded, flagged Partial, and the next rebuild repairs
// the boards.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/podium/internal/adapters/events"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/dedupe"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const (
	defaultReadTimeout = 250 * time.Millisecond
	defaultMaxLimit    = 100
	defaultMaxRadius   = 50
)

// Appender is the slice of the ledger a submission needs.
type Appender interface {
	Append(ctx context.Context, rec model.ScoreRecord, displayName string) (model.ScoreRecord, error)
}

// Catalog resolves categories for validation.
type Catalog interface {
	Get(ctx context.Context, id string) (model.Category, error)
}

// Submission is one incoming score.
type Submission struct {
	SubmissionID string // optional idempotency key
	UserID       string
	DisplayName  string
	CategoryID   string
	Value        int64
	Metadata     map[string]any
	SubmittedAt  time.Time // zero means now
}

// Service is the leaderboard engine's request-facing API.
type Service struct {
	store     repository.Store
	ledger    Appender
	catalog   Catalog
	policy    board.Policy
	publisher events.Publisher
	dedupe    dedupe.Deduper
	log       logger.Logger
	now       func() time.Time

	readTimeout time.Duration
	maxLimit    int
	maxRadius   int
}

// New wires a service over the given store, ledger and catalog.
func New(store repository.Store, l Appender, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		store:       store,
		ledger:      l,
		catalog:     catalog,
		policy:      board.NewPolicy(),
		publisher:   events.Nop{},
		log:         logger.Named("leaderboard"),
		now:         time.Now,
		readTimeout: defaultReadTimeout,
		maxLimit:    defaultMaxLimit,
		maxRadius:   defaultMaxRadius,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the board policy in use.
func (s *Service) Policy() board.Policy { return s.policy }

// SubmitScore records sub in the ledger and projects it onto every board
// the policy selects, returning the member's fresh category and global
// ranks.
func (s *Service) SubmitScore(ctx context.Context, sub Submission) (types.SubmitResult, error) {
	const op = "leaderboard.SubmitScore"
	start := time.Now()
	defer func() {
		metrics.RecordSubmitLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := s.validate(ctx, sub); err != nil {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return types.SubmitResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if sub.SubmissionID != "" && s.dedupe != nil {
		if s.dedupe.SeenAndRecord(ctx, sub.SubmissionID) {
			metrics.RecordDuplicateSubmission()
			metrics.RecordSubmission(metrics.OutcomeDuplicate)
			recordID, ok := s.dedupe.Lookup(ctx, sub.SubmissionID)
			if !ok {
				return types.SubmitResult{}, fmt.Errorf("%s: %w: %s", op, ErrDuplicateSubmission, sub.SubmissionID)
			}
			return types.SubmitResult{RecordID: recordID, Duplicate: true}, nil
		}
	}

	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = s.now()
	}
	rec, err := s.ledger.Append(ctx, model.ScoreRecord{
		UserID:      sub.UserID,
		CategoryID:  sub.CategoryID,
		Value:       sub.Value,
		Metadata:    sub.Metadata,
		SubmittedAt: sub.SubmittedAt,
	}, sub.DisplayName)
	if err != nil {
		if sub.SubmissionID != "" && s.dedupe != nil {
			s.dedupe.Unrecord(ctx, sub.SubmissionID)
		}
		metrics.RecordSubmission(metrics.OutcomeFailed)
		s.log.Error(ctx, "ledger append failed",
			logger.String("userID", sub.UserID),
			logger.String("categoryID", sub.CategoryID),
			logger.Error(err),
		)
		return types.SubmitResult{}, fmt.Errorf("%s: %w", op, mapLedgerErr(err))
	}
	if sub.SubmissionID != "" && s.dedupe != nil {
		s.dedupe.Bind(ctx, sub.SubmissionID, rec.ID)
	}

	member := model.Member{UserID: sub.UserID, DisplayName: sub.DisplayName}
	res := types.SubmitResult{RecordID: rec.ID, SubmittedAt: rec.SubmittedAt}
	res.Partial = !s.project(ctx, member.Encode(), sub.CategoryID, sub.Value, rec.SubmittedAt)

	catKey := board.CategoryKey(sub.CategoryID)
	for _, r := range []struct {
		key board.Key
		dst *int
	}{{catKey, &res.CategoryRank}, {board.Global, &res.GlobalRank}} {
		rank, ok, err := s.store.Rank(ctx, r.key, member.Encode())
		if err != nil {
			res.Partial = true
			s.log.Warn(ctx, "rank re-read failed", logger.String("board", r.key.String()), logger.Error(err))
			continue
		}
		if ok {
			*r.dst = rank
		}
	}

	if res.Partial {
		metrics.RecordSubmission(metrics.OutcomePartial)
	} else {
		metrics.RecordSubmission(metrics.OutcomeAccepted)
	}

	s.publish(ctx, events.SubjectScoreSubmitted, events.ScoreSubmitted{
		RecordID:     rec.ID,
		UserID:       sub.UserID,
		DisplayName:  sub.DisplayName,
		CategoryID:   sub.CategoryID,
		Value:        sub.Value,
		SubmittedAt:  rec.SubmittedAt,
		CategoryRank: res.CategoryRank,
		GlobalRank:   res.GlobalRank,
		Partial:      res.Partial,
	})
	return res, nil
}

func (s *Service) validate(ctx context.Context, sub Submission) error {
	if sub.UserID == "" || sub.CategoryID == "" {
		return fmt.Errorf("%w: userId and categoryId are required", ErrInvalidSubmission)
	}
	if sub.Value < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidScore, sub.Value)
	}

	cat, err := s.catalog.Get(ctx, sub.CategoryID)
	switch {
	case errors.Is(err, ledger.ErrCategoryNotFound):
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, sub.CategoryID)
	case err != nil:
		return fmt.Errorf("%w: category lookup: %w", ErrStoreUnavailable, err)
	case !cat.Active:
		return fmt.Errorf("%w: %s", ErrCategoryInactive, sub.CategoryID)
	case !cat.Accepts(sub.Value):
		return fmt.Errorf("%w: %d exceeds max %d for %s", ErrInvalidScore, sub.Value, *cat.MaxScore, sub.CategoryID)
	}
	return nil
}

// project applies value to every target board and reports whether every
// write succeeded. A failed board does not stop the remaining ones.
func (s *Service) project(ctx context.Context, member, categoryID string, value int64, at time.Time) bool {
	ok := true
	for _, t := range s.policy.Targets(categoryID, at) {
		kind := string(t.Key.Kind())
		if _, err := s.store.Upsert(ctx, t.Key, member, value, t.Mode); err != nil {
			ok = false
			metrics.RecordBoardUpdateError(kind)
			s.log.Error(ctx, "board update failed",
				logger.String("board", t.Key.String()),
				logger.String("mode", t.Mode.String()),
				logger.Error(err),
			)
			continue
		}
		metrics.RecordBoardUpdate(kind)
		if t.TTL <= 0 {
			continue
		}
		if err := s.store.SetExpiry(ctx, t.Key, t.TTL); err != nil {
			ok = false
			metrics.RecordBoardUpdateError(kind)
			s.log.Error(ctx, "board expiry failed", logger.String("board", t.Key.String()), logger.Error(err))
		}
	}
	return ok
}

func (s *Service) publish(ctx context.Context, subject string, payload any) {
	if err := s.publisher.Publish(ctx, subject, payload); err != nil {
		s.log.Warn(ctx, "event publish failed", logger.String("subject", subject), logger.Error(err))
	}
}

func mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrCategoryNotFound):
		return fmt.Errorf("%w: %w", ErrCategoryNotFound, err)
	case errors.Is(err, ledger.ErrInvalidRecord):
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	default:
		return fmt.Errorf("%w: ledger: %w", ErrStoreUnavailable, err)
	}
}
