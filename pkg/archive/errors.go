package archive

import "errors"

var (
	// ErrColdStorage indicates a cold storage write failure. The hot rows
	// are left in place and retried on the next sweep.
	ErrColdStorage = errors.New("archive: cold storage failure")

	// ErrInvalidConfig indicates missing cold storage configuration.
	ErrInvalidConfig = errors.New("archive: invalid configuration")
)
