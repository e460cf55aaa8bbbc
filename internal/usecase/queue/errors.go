package queue

import "errors"

// Sentinel errors for queue operations.
var (
	// ErrInvalidPriority is returned when a priority outside 1-10 is requested.
	ErrInvalidPriority = errors.New("priority must be between 1 and 10")

	// ErrInvalidMaxRetries is returned for a negative retry limit.
	ErrInvalidMaxRetries = errors.New("max retries must be positive")
)
