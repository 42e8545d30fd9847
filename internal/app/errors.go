package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound       = errors.New("not found")
	ErrOrderIntegrity = errors.New("order compaction incomplete")
	ErrBatchTooLarge  = errors.New("too many timeline ids")
)
