package webhook

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the queue state of one (event, subscription) pair.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySucceeded  DeliveryStatus = "succeeded"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Delivery is a queued webhook send. Payload is the serialized event,
// frozen at enqueue time so later event archival cannot change what the
// subscriber receives.
type Delivery struct {
	ID             uuid.UUID      `json:"id"`
	SubscriptionID uuid.UUID      `json:"subscription_id"`
	EventID        uuid.UUID      `json:"event_id"`
	EventKey       string         `json:"event_key"`
	Payload        []byte         `json:"payload"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	NextAttemptAt  time.Time      `json:"next_attempt_at"`
	OccurredAt     time.Time      `json:"occurred_at"`
	CreatedAt      time.Time      `json:"created_at"`
	LastError      string         `json:"last_error,omitempty"`
}

// Attempt is the append-only audit record of one HTTP delivery try.
type Attempt struct {
	ID             uuid.UUID     `json:"id"`
	DeliveryID     uuid.UUID     `json:"delivery_id"`
	SubscriptionID uuid.UUID     `json:"subscription_id"`
	EventID        uuid.UUID     `json:"event_id"`
	Number         int           `json:"number"`
	StatusCode     int           `json:"status_code,omitempty"`
	Success        bool          `json:"success"`
	Duration       time.Duration `json:"duration"`
	AttemptedAt    time.Time     `json:"attempted_at"`
	Error          string        `json:"error,omitempty"`
}
