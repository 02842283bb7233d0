package leaderboard

import "errors"

// Sentinel kinds for leaderboard errors. Callers match them with errors.Is.
var (
	ErrInvalidScore        = errors.New("invalid score")
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrCategoryInactive    = errors.New("category inactive")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrDuplicateSubmission = errors.New("duplicate submission in progress")
)
