package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows Query results. A nil Status means all statuses.
type Filter struct {
	Status *Status
	AppID  string
	Limit  int
	Offset int
}

// DefaultQueryLimit caps result pages when the caller does not set one.
const DefaultQueryLimit = 50

// Storage persists notifications and their state records.
//
// Create must write the notification and its initial state atomically.
// UpdateState is a compare-and-swap keyed on the state's current status:
// implementations return ErrStateConflict when the row no longer holds
// expectedStatus, and must never partially apply the update.
type Storage interface {
	Create(ctx context.Context, n Notification, st State) error
	Get(ctx context.Context, id uuid.UUID) (Notification, State, error)
	Query(ctx context.Context, userID string, f Filter) ([]Item, error)
	UpdateState(ctx context.Context, id uuid.UUID, expectedStatus Status, st State) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]Item, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
