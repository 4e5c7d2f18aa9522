package notification

import "fmt"

// Status is the lifecycle position of a notification for its recipient.
type Status string

const (
	StatusUnread    Status = "unread"
	StatusRead      Status = "read"
	StatusClicked   Status = "clicked"
	StatusDismissed Status = "dismissed"
	StatusExpired   Status = "expired"
)

// Valid reports whether the status is one of the fixed set.
func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusClicked, StatusDismissed, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave this status.
func (s Status) Terminal() bool {
	return s == StatusDismissed || s == StatusExpired
}

// transitions maps each status to the set of statuses reachable from it.
// A clicked notification is implicitly read, so clicked never moves back
// to read.
var transitions = map[Status]map[Status]bool{
	StatusUnread: {
		StatusRead:      true,
		StatusClicked:   true,
		StatusDismissed: true,
		StatusExpired:   true,
	},
	StatusRead: {
		StatusClicked:   true,
		StatusDismissed: true,
		StatusExpired:   true,
	},
	StatusClicked: {
		StatusDismissed: true,
	},
	StatusDismissed: {},
	StatusExpired:   {},
}

// CanTransition reports whether the lifecycle table permits from -> to.
// Identical terminal states are not a transition; callers treat those as
// idempotent no-ops before consulting the table.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// checkTransition classifies a requested transition: nil means apply it,
// errNoop means the state is already there and the request succeeds without
// mutation, anything else is rejected.
func checkTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if from == to && from.Terminal() {
		return errNoop
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// errNoop signals an idempotent repeat of a terminal transition. It never
// escapes the package.
var errNoop = fmt.Errorf("notification: transition already applied")
