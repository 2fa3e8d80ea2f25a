package errors

import "errors"

var (
	// Acquisition errors
	ErrNotConfigured = errors.New("source not configured")
	ErrReadFailed    = errors.New("failed to read source")
	ErrParseFailed   = errors.New("failed to parse source data")

	// Computation errors
	ErrInvalidInterval = errors.New("invalid interval between samples")

	// Encoding errors
	ErrNoRecord = errors.New("no metric recorded yet")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
)
