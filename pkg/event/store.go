package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists published events.
// Append is the single write path; implementations must keep OccurredAt
// monotonically non-decreasing across appends (clamping when the wall clock
// steps backwards) so per-user ordering guarantees hold downstream.
type Store interface {
	// Append records a new event, adjusting OccurredAt if needed to keep
	// the store's timestamp sequence non-decreasing.
	Append(ctx context.Context, e *Event) error

	// Get returns a single event by id.
	Get(ctx context.Context, id uuid.UUID) (*Event, error)

	// ListOlderThan returns up to limit events with OccurredAt before
	// cutoff, oldest first. Used by the archival sweep.
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)

	// DeleteBatch removes events by id after they have been archived.
	DeleteBatch(ctx context.Context, ids []uuid.UUID) error
}
