package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidRecord    = errors.New("invalid score record")

	// ErrDuplicateCategoryName is returned when another category already
	// uses the name.
	ErrDuplicateCategoryName = errors.New("category name already in use")
)
