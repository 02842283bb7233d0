package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/leaderboard"
	"github.com/okian/podium/internal/domain/rebuild"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// NewKind tags kind with the handler op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags err with op and kind so both stay matchable.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Wrap prefixes err with the handler op.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// classify maps a domain error onto a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, leaderboard.ErrInvalidSubmission),
		errors.Is(err, leaderboard.ErrInvalidArgument),
		errors.Is(err, board.ErrInvalidPeriod):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, leaderboard.ErrInvalidScore):
		return http.StatusBadRequest, "invalid_score"
	case errors.Is(err, leaderboard.ErrCategoryNotFound):
		return http.StatusNotFound, "category_not_found"
	case errors.Is(err, board.ErrInvalidKey):
		return http.StatusNotFound, "unknown_board"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, leaderboard.ErrCategoryInactive):
		return http.StatusConflict, "category_inactive"
	case errors.Is(err, leaderboard.ErrDuplicateSubmission):
		return http.StatusConflict, "duplicate_in_progress"
	case errors.Is(err, leaderboard.ErrStoreUnavailable),
		errors.Is(err, rebuild.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, rebuild.ErrRebuildFailed):
		return http.StatusInternalServerError, "rebuild_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
