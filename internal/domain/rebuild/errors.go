package rebuild

import "errors"

// Sentinel kinds for sync errors.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrRebuildFailed    = errors.New("rebuild failed")
)
