package webhook

import "errors"

var (
	// ErrValidation indicates malformed subscription input.
	ErrValidation = errors.New("webhook: validation failed")

	// ErrNotFound is returned when a subscription or delivery does not exist.
	ErrNotFound = errors.New("webhook: not found")

	// ErrForbidden is returned when an app operates on a subscription it
	// does not own.
	ErrForbidden = errors.New("webhook: app does not own this subscription")

	// ErrStorage indicates a persistence-layer failure.
	ErrStorage = errors.New("webhook: storage failure")

	// ErrDelivery is the failure class recorded on delivery attempts. It is
	// captured in the attempt audit row, never surfaced to the publisher.
	ErrDelivery = errors.New("webhook: delivery failed")

	// ErrInvalidSignature is returned by Verify when the payload does not
	// match the signature or the timestamp falls outside the accepted
	// window.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
)
