package broadcast

import "errors"

var (
	// ErrConnectionLimit is returned when a user already holds the maximum
	// number of live connections.
	ErrConnectionLimit = errors.New("broadcast: per-user connection limit reached")

	// ErrHubClosed is returned when registering on a hub that has shut down.
	ErrHubClosed = errors.New("broadcast: hub is closed")

	// ErrInvalidSubscribe indicates a malformed subscribe message from the
	// client.
	ErrInvalidSubscribe = errors.New("broadcast: invalid subscribe message")
)
