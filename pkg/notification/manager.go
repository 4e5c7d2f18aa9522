package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oriva/eventsync/pkg/event"
	"github.com/oriva/eventsync/pkg/logger"
	"github.com/oriva/eventsync/pkg/sanitizer"
)

// EventSink publishes lifecycle events. Satisfied by *event.Publisher.
type EventSink interface {
	Publish(ctx context.Context, appID, userID string, category event.Category,
		eventType, entityType, entityID string, payload map[string]any) (*event.Event, error)
}

// DefaultExpireBatchSize bounds how many rows one Expire pass touches.
const DefaultExpireBatchSize = 500

// casRetries bounds re-evaluation after a lost compare-and-swap race.
const casRetries = 3

// Manager coordinates notification creation and lifecycle transitions,
// keeping storage, the event log, and the unread-count cache consistent.
type Manager struct {
	storage     Storage
	events      EventSink
	counts      CountCache
	log         *slog.Logger
	now         func() time.Time
	expireBatch int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCountCache installs an unread-count cache. Defaults to NoopCountCache.
func WithCountCache(c CountCache) ManagerOption {
	return func(m *Manager) { m.counts = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithExpireBatchSize bounds rows per expiry sweep.
func WithExpireBatchSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.expireBatch = n
		}
	}
}

// NewManager creates a Manager. The event sink is required so every state
// change is observable; pass a publisher without broadcaster or queue to
// keep events local.
func NewManager(storage Storage, events EventSink, opts ...ManagerOption) *Manager {
	m := &Manager{
		storage:     storage,
		events:      events,
		counts:      NoopCountCache{},
		log:         slog.Default(),
		now:         time.Now,
		expireBatch: DefaultExpireBatchSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateInput is the app-facing payload for a new notification.
type CreateInput struct {
	AppID      string
	ExternalID string
	UserID     string
	Title      string
	Body       string
	ActionURL  string
	Priority   Priority
	ExpiresAt  *time.Time
}

// Create sanitizes and persists a notification in the unread state, then
// publishes notification.created. The (app id, external id) pair is an
// idempotency key; a repeat returns ErrDuplicateExternalID.
func (m *Manager) Create(ctx context.Context, in CreateInput) (Item, error) {
	now := m.now().UTC()

	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	n := Notification{
		ID:         uuid.New(),
		AppID:      in.AppID,
		ExternalID: in.ExternalID,
		UserID:     in.UserID,
		Title:      sanitizer.CleanText(in.Title),
		Body:       sanitizer.CleanText(in.Body),
		ActionURL:  in.ActionURL,
		Priority:   in.Priority,
		ExpiresAt:  in.ExpiresAt,
		CreatedAt:  now,
	}
	if err := n.Validate(); err != nil {
		return Item{}, err
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
		return Item{}, fmt.Errorf("%w: expires_at must be in the future", ErrValidation)
	}

	st := State{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Status:         StatusUnread,
		SentAt:         now,
	}
	if err := m.storage.Create(ctx, n, st); err != nil {
		return Item{}, err
	}

	m.invalidateCount(ctx, n.UserID)
	m.publish(ctx, n, "created", map[string]any{
		"external_id": n.ExternalID,
		"title":       n.Title,
		"priority":    string(n.Priority),
	})
	return Item{Notification: n, State: st}, nil
}

// Get returns a notification with its state.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	n, st, err := m.storage.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return Item{Notification: n, State: st}, nil
}

// Query lists a user's notifications ordered by priority, newest first
// within each priority. Content past its expiry is excluded.
func (m *Manager) Query(ctx context.Context, userID string, f Filter) ([]Item, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return m.storage.Query(ctx, userID, f)
}

// MarkRead transitions a notification to read.
func (m *Manager) MarkRead(ctx context.Context, id uuid.UUID, userID string) (Item, error) {
	return m.Transition(ctx, id, userID, StatusRead, "")
}

// MarkClicked transitions a notification to clicked. Clicking an unread
// notification also stamps the read timestamp.
func (m *Manager) MarkClicked(ctx context.Context, id uuid.UUID, userID string) (Item, error) {
	return m.Transition(ctx, id, userID, StatusClicked, "")
}

// Dismiss transitions a notification to dismissed, recording which app the
// dismissal originated from. Dismissing an already dismissed notification
// succeeds without changing anything.
func (m *Manager) Dismiss(ctx context.Context, id uuid.UUID, userID, fromAppID string) (Item, error) {
	return m.Transition(ctx, id, userID, StatusDismissed, fromAppID)
}

// Transition applies one lifecycle step on behalf of userID, who must own
// the notification. Racing callers are serialized by the storage CAS; a
// loser re-reads and re-evaluates, so the first terminal transition wins and
// an identical repeat degrades to an idempotent no-op.
func (m *Manager) Transition(ctx context.Context, id uuid.UUID, userID string, to Status, origin string) (Item, error) {
	var lastErr error
	for range casRetries {
		n, st, err := m.storage.Get(ctx, id)
		if err != nil {
			return Item{}, err
		}
		if st.UserID != userID {
			return Item{}, fmt.Errorf("%w: notification belongs to another user", ErrForbidden)
		}

		switch err := checkTransition(st.Status, to); {
		case errors.Is(err, errNoop):
			return Item{Notification: n, State: st}, nil
		case err != nil:
			return Item{}, err
		}

		from := st.Status
		next := m.stamp(st, to, origin)

		if err := m.storage.UpdateState(ctx, id, from, next); err != nil {
			if errors.Is(err, ErrStateConflict) {
				lastErr = err
				continue
			}
			return Item{}, err
		}

		// Every accepted transition invalidates the count, not only those
		// leaving unread, so the cached value is auditable against storage.
		m.invalidateCount(ctx, n.UserID)
		payload := map[string]any{"status": string(to)}
		if to == StatusDismissed && origin != "" {
			payload["dismissed_from"] = origin
		}
		m.publish(ctx, n, string(to), payload)
		return Item{Notification: n, State: next}, nil
	}
	return Item{}, lastErr
}

// stamp produces the post-transition state, setting each timestamp at most
// once so earlier history survives later transitions.
func (m *Manager) stamp(st State, to Status, origin string) State {
	now := m.now().UTC()
	st.Status = to
	switch to {
	case StatusRead:
		if st.ReadAt == nil {
			st.ReadAt = &now
		}
	case StatusClicked:
		if st.ReadAt == nil {
			st.ReadAt = &now
		}
		if st.ClickedAt == nil {
			st.ClickedAt = &now
		}
	case StatusDismissed:
		if st.DismissedAt == nil {
			st.DismissedAt = &now
			st.DismissedFrom = origin
		}
	}
	return st
}

// Delete removes a notification. Only the app that created it may delete it.
func (m *Manager) Delete(ctx context.Context, appID string, id uuid.UUID) error {
	n, _, err := m.storage.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.AppID != appID {
		return fmt.Errorf("%w: owned by %s", ErrForbidden, n.AppID)
	}
	if err := m.storage.Delete(ctx, id); err != nil {
		return err
	}
	m.invalidateCount(ctx, n.UserID)
	m.publish(ctx, n, "deleted", map[string]any{"external_id": n.ExternalID})
	return nil
}

// UnreadCount returns the user's unread count, served from the cache when
// fresh and recomputed from storage on a miss.
func (m *Manager) UnreadCount(ctx context.Context, userID string) (int, error) {
	if count, ok, err := m.counts.Get(ctx, userID); err == nil && ok {
		return count, nil
	} else if err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "unread count cache read failed",
			logger.UserID(userID), logger.Error(err))
	}

	count, err := m.storage.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := m.counts.Set(ctx, userID, count); err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "unread count cache write failed",
			logger.UserID(userID), logger.Error(err))
	}
	return count, nil
}

// Expire sweeps one bounded batch of overdue unread and read notifications
// into the expired state. It returns how many it transitioned; callers loop
// until zero to drain a backlog.
func (m *Manager) Expire(ctx context.Context) (int, error) {
	items, err := m.storage.ListExpirable(ctx, m.now().UTC(), m.expireBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, it := range items {
		if _, err := m.Transition(ctx, it.Notification.ID, it.State.UserID, StatusExpired, ""); err != nil {
			// A racing dismissal is fine; the row reached a terminal state
			// either way.
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (m *Manager) invalidateCount(ctx context.Context, userID string) {
	if err := m.counts.Invalidate(ctx, userID); err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "unread count cache invalidation failed",
			logger.UserID(userID), logger.Error(err))
	}
}

// publish emits a lifecycle event. The state change is already durable, so
// a publish failure is logged and swallowed.
func (m *Manager) publish(ctx context.Context, n Notification, eventType string, payload map[string]any) {
	_, err := m.events.Publish(ctx, n.AppID, n.UserID, event.CategoryNotification,
		eventType, "notification", n.ID.String(), payload)
	if err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "lifecycle event publish failed",
			logger.NotificationID(n.ID.String()),
			logger.EventType("notification."+eventType),
			logger.Error(err))
	}
}
