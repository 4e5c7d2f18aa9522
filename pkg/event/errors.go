package event

import "errors"

var (
	// ErrValidation indicates a malformed publish request. Nothing was
	// persisted.
	ErrValidation = errors.New("event: validation failed")

	// ErrStorage indicates the event store rejected the write. Callers must
	// treat the event as not recorded.
	ErrStorage = errors.New("event: storage failure")

	// ErrNotFound is returned when an event does not exist.
	ErrNotFound = errors.New("event: not found")
)
