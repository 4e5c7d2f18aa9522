package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies the domain an event belongs to.
type Category string

const (
	CategoryNotification Category = "notification"
	CategoryUser         Category = "user"
	CategorySession      Category = "session"
	CategoryTransaction  Category = "transaction"
)

// Valid reports whether the category is one of the fixed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryNotification, CategoryUser, CategorySession, CategoryTransaction:
		return true
	}
	return false
}

// Event is an immutable fact recorded by a publishing application.
// OccurredAt is always server-assigned; caller-supplied timestamps are never
// trusted.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	AppID      string         `json:"app_id"`
	UserID     string         `json:"user_id"`
	Category   Category       `json:"category"`
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Key returns the "category.type" routing key used for pattern matching.
func (e Event) Key() string {
	return string(e.Category) + "." + e.Type
}

// Validate checks the event envelope. The payload schema is owned by the
// publishing application; only its shape (a JSON object) is enforced.
func (e Event) Validate() error {
	if e.AppID == "" {
		return fmt.Errorf("%w: app id is required", ErrValidation)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, e.Category)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: type is required", ErrValidation)
	}
	if e.Type != strings.ToLower(e.Type) || strings.ContainsAny(e.Type, " .") {
		return fmt.Errorf("%w: type must be a lowercase token without dots or spaces, got %q", ErrValidation, e.Type)
	}
	if e.EntityID == "" {
		return fmt.Errorf("%w: entity id is required", ErrValidation)
	}
	return nil
}
