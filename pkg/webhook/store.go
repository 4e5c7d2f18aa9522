package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore persists webhook subscriptions.
//
// RecordSuccess and RecordFailure update the health counters atomically:
// any success resets the consecutive-failure streak, and a failure that
// reaches the ceiling flips the subscription inactive in the same write.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByApp(ctx context.Context, appID string) ([]Subscription, error)
	ListActive(ctx context.Context) ([]Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
	RecordSuccess(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, ceiling int) (consecutive int, disabled bool, err error)
}

// DefaultClaimLease is how long a claimed delivery stays invisible to other
// workers before it is considered abandoned and reclaimed.
const DefaultClaimLease = time.Minute

// DeliveryStore persists the delivery queue and the attempt audit trail.
//
// ClaimDue atomically marks due pending deliveries as processing and returns
// them ordered by the underlying event's occurred_at, so one subscription's
// deliveries go out in publish order. Claims expire after lease so a crashed
// worker's deliveries are retried.
type DeliveryStore interface {
	Enqueue(ctx context.Context, deliveries []Delivery) error
	Get(ctx context.Context, id uuid.UUID) (*Delivery, error)
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Delivery, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, attempts int) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	Reschedule(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error

	RecordAttempt(ctx context.Context, a Attempt) error
	ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]Attempt, error)
	ListAttemptsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Attempt, error)
	DeleteAttempts(ctx context.Context, ids []uuid.UUID) error
}
