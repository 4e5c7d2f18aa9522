package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	maxTitleLen = 200
	maxBodyLen  = 1000
)

// Priority orders notifications in query results.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the sort weight of the priority, higher sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	}
	return -1
}

// Valid reports whether the priority is one of the fixed set.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Notification is immutable message content created by an application.
// Only the associated State record ever changes after creation.
type Notification struct {
	ID         uuid.UUID  `json:"id"`
	AppID      string     `json:"app_id"`
	ExternalID string     `json:"external_id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	ActionURL  string     `json:"action_url,omitempty"`
	Priority   Priority   `json:"priority"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ExpiredAt reports whether the notification's content has expired at t.
func (n Notification) ExpiredAt(t time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(t)
}

// Validate checks content constraints. Called after sanitization so the
// length limits apply to what is actually stored.
func (n Notification) Validate() error {
	if n.AppID == "" {
		return fmt.Errorf("%w: app id is required", ErrValidation)
	}
	if n.ExternalID == "" {
		return fmt.Errorf("%w: external id is required", ErrValidation)
	}
	if n.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if l := len([]rune(n.Title)); l < 1 || l > maxTitleLen {
		return fmt.Errorf("%w: title must be 1-%d characters, got %d", ErrValidation, maxTitleLen, l)
	}
	if l := len([]rune(n.Body)); l < 1 || l > maxBodyLen {
		return fmt.Errorf("%w: body must be 1-%d characters, got %d", ErrValidation, maxBodyLen, l)
	}
	if !n.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, n.Priority)
	}
	return nil
}

// State is the mutable per-user lifecycle record, exactly one per
// notification.
type State struct {
	NotificationID uuid.UUID  `json:"notification_id"`
	UserID         string     `json:"user_id"`
	Status         Status     `json:"status"`
	SentAt         time.Time  `json:"sent_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	DismissedAt    *time.Time `json:"dismissed_at,omitempty"`
	ClickedAt      *time.Time `json:"clicked_at,omitempty"`
	DismissedFrom  string     `json:"dismissed_from,omitempty"`
}

// Item joins a notification with its state for query results.
type Item struct {
	Notification Notification `json:"notification"`
	State        State        `json:"state"`
}
