package notification

import "errors"

var (
	// ErrValidation indicates malformed notification input. Nothing was
	// persisted.
	ErrValidation = errors.New("notification: validation failed")

	// ErrDuplicateExternalID is returned when (app id, external id) already
	// names a stored notification. The idempotency key guarantees
	// at-most-one notification per app-supplied key.
	ErrDuplicateExternalID = errors.New("notification: duplicate external id")

	// ErrInvalidTransition is returned when the lifecycle table rejects a
	// requested state change. The state row is left untouched.
	ErrInvalidTransition = errors.New("notification: invalid state transition")

	// ErrForbidden is returned when an app operates on a notification it
	// does not own.
	ErrForbidden = errors.New("notification: app does not own this notification")

	// ErrNotFound is returned when a notification does not exist.
	ErrNotFound = errors.New("notification: not found")

	// ErrStorage indicates a persistence-layer failure.
	ErrStorage = errors.New("notification: storage failure")

	// ErrStateConflict is returned by the storage layer when the
	// conditional state update lost a race. The manager re-reads and
	// re-evaluates the transition.
	ErrStateConflict = errors.New("notification: state changed concurrently")
)
