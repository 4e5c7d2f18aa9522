package config

import "errors"

var (
	// ErrParsing is returned when environment variables cannot be parsed
	// into the target struct.
	ErrParsing = errors.New("config: failed to parse environment variables")

	// ErrNilPointer is returned when Load receives a nil target.
	ErrNilPointer = errors.New("config: nil pointer provided")

	// ErrNotLoaded is returned when a cached configuration cannot be
	// resolved after loading, which indicates a concurrent-load bug.
	ErrNotLoaded = errors.New("config: configuration has not been loaded")
)
