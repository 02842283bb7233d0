package repository

import "errors"

// Sentinel kinds for rank store errors.
var (
	ErrStoreUnavailable = errors.New("rank store unavailable")
	ErrInvalidRange     = errors.New("invalid range")
)
