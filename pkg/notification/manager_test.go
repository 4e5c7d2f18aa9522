package notification_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriva/eventsync/pkg/event"
	"github.com/oriva/eventsync/pkg/notification"
)

type sinkCall struct {
	appID     string
	userID    string
	eventType string
	payload   map[string]any
}

type captureSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *captureSink) Publish(_ context.Context, appID, userID string, _ event.Category,
	eventType, _, _ string, payload map[string]any,
) (*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{appID: appID, userID: userID, eventType: eventType, payload: payload})
	return &event.Event{}, nil
}

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.eventType
	}
	return out
}

func newManager(t *testing.T, opts ...notification.ManagerOption) (*notification.Manager, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	return notification.NewManager(notification.NewMemoryStorage(), sink, opts...), sink
}

func validInput() notification.CreateInput {
	return notification.CreateInput{
		AppID:      "sessionapp",
		ExternalID: "sess_991",
		UserID:     "user_42",
		Title:      "Session starting soon",
		Body:       "Your 3pm session begins in 10 minutes.",
		Priority:   notification.PriorityHigh,
	}
}

func TestManager_Create(t *testing.T) {
	t.Parallel()

	m, sink := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)

	assert.Equal(t, notification.StatusUnread, it.State.Status)
	assert.False(t, it.State.SentAt.IsZero())
	assert.Nil(t, it.State.ReadAt)
	assert.Equal(t, []string{"created"}, sink.types())

	// Same (app, external id) pair is rejected.
	_, err = m.Create(ctx, validInput())
	assert.ErrorIs(t, err, notification.ErrDuplicateExternalID)

	// A different app may reuse the same external id.
	in := validInput()
	in.AppID = "shopapp"
	_, err = m.Create(ctx, in)
	assert.NoError(t, err)
}

func TestManager_CreateSanitizesContent(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)

	in := validInput()
	in.Title = `<script>alert(1)</script>Payment received`
	in.Body = `Order <b>#88</b> shipped`

	it, err := m.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Payment received", it.Notification.Title)
	assert.Equal(t, "Order #88 shipped", it.Notification.Body)
}

func TestManager_CreateValidation(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*notification.CreateInput)
	}{
		{"empty title", func(in *notification.CreateInput) { in.Title = "" }},
		{"script-only title", func(in *notification.CreateInput) { in.Title = "<script>x</script>" }},
		{"oversized body", func(in *notification.CreateInput) { in.Body = strings.Repeat("a", 1001) }},
		{"unknown priority", func(in *notification.CreateInput) { in.Priority = "critical" }},
		{"missing user", func(in *notification.CreateInput) { in.UserID = "" }},
		{"past expiry", func(in *notification.CreateInput) {
			past := time.Now().Add(-time.Hour)
			in.ExpiresAt = &past
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			in.ExternalID = "ext_" + tt.name
			tt.mutate(&in)
			_, err := m.Create(ctx, in)
			assert.ErrorIs(t, err, notification.ErrValidation)
		})
	}
}

func TestManager_CreateDefaultsPriority(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	in := validInput()
	in.Priority = ""

	it, err := m.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, notification.PriorityNormal, it.Notification.Priority)
}

func TestManager_TransitionStampsTimestampsOnce(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)
	id := it.Notification.ID

	read, err := m.MarkRead(ctx, id, "user_42")
	require.NoError(t, err)
	require.NotNil(t, read.State.ReadAt)

	clicked, err := m.MarkClicked(ctx, id, "user_42")
	require.NoError(t, err)
	require.NotNil(t, clicked.State.ClickedAt)
	assert.Equal(t, read.State.ReadAt, clicked.State.ReadAt, "read timestamp must not move")

	dismissed, err := m.Dismiss(ctx, id, "user_42", "calendarapp")
	require.NoError(t, err)
	assert.Equal(t, "calendarapp", dismissed.State.DismissedFrom)
	assert.Equal(t, clicked.State.ClickedAt, dismissed.State.ClickedAt)
}

func TestManager_ClickFromUnreadImpliesRead(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)

	clicked, err := m.MarkClicked(ctx, it.Notification.ID, "user_42")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusClicked, clicked.State.Status)
	assert.NotNil(t, clicked.State.ReadAt)
}

func TestManager_DismissIsIdempotent(t *testing.T) {
	t.Parallel()

	m, sink := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)
	id := it.Notification.ID

	first, err := m.Dismiss(ctx, id, "user_42", "sessionapp")
	require.NoError(t, err)

	// The repeat succeeds but mutates nothing and emits no second event.
	second, err := m.Dismiss(ctx, id, "user_42", "otherapp")
	require.NoError(t, err)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, []string{"created", "dismissed"}, sink.types())
}

func TestManager_TerminalStatesRejectOtherTransitions(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)
	id := it.Notification.ID

	_, err = m.Dismiss(ctx, id, "user_42", "sessionapp")
	require.NoError(t, err)

	_, err = m.MarkRead(ctx, id, "user_42")
	assert.ErrorIs(t, err, notification.ErrInvalidTransition)
	_, err = m.MarkClicked(ctx, id, "user_42")
	assert.ErrorIs(t, err, notification.ErrInvalidTransition)
}

func TestManager_ClickedCannotRegressToRead(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = m.MarkClicked(ctx, it.Notification.ID, "user_42")
	require.NoError(t, err)

	_, err = m.MarkRead(ctx, it.Notification.ID, "user_42")
	assert.ErrorIs(t, err, notification.ErrInvalidTransition)
}

func TestManager_QueryOrdering(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m, _ := newManager(t, notification.WithClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	}))
	ctx := context.Background()

	mk := func(ext string, p notification.Priority) {
		in := validInput()
		in.ExternalID = ext
		in.Priority = p
		_, err := m.Create(ctx, in)
		require.NoError(t, err)
	}
	mk("a", notification.PriorityLow)
	mk("b", notification.PriorityUrgent)
	mk("c", notification.PriorityNormal)
	mk("d", notification.PriorityUrgent)

	items, err := m.Query(ctx, "user_42", notification.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 4)

	// Urgent first, newest first within a priority.
	assert.Equal(t, "d", items[0].Notification.ExternalID)
	assert.Equal(t, "b", items[1].Notification.ExternalID)
	assert.Equal(t, "c", items[2].Notification.ExternalID)
	assert.Equal(t, "a", items[3].Notification.ExternalID)
}

func TestManager_QueryFilters(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.ExternalID = "sess_992"
	in.AppID = "shopapp"
	_, err = m.Create(ctx, in)
	require.NoError(t, err)

	_, err = m.MarkRead(ctx, first.Notification.ID, "user_42")
	require.NoError(t, err)

	unread := notification.StatusUnread
	items, err := m.Query(ctx, "user_42", notification.Filter{Status: &unread})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "shopapp", items[0].Notification.AppID)

	items, err = m.Query(ctx, "user_42", notification.Filter{AppID: "sessionapp"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, notification.StatusRead, items[0].State.Status)
}

func TestManager_DeleteRequiresOwnership(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)

	err = m.Delete(ctx, "shopapp", it.Notification.ID)
	assert.ErrorIs(t, err, notification.ErrForbidden)

	err = m.Delete(ctx, "sessionapp", it.Notification.ID)
	require.NoError(t, err)

	_, err = m.Get(ctx, it.Notification.ID)
	assert.ErrorIs(t, err, notification.ErrNotFound)
}

type fakeCountCache struct {
	mu           sync.Mutex
	values       map[string]int
	invalidation int
}

func newFakeCountCache() *fakeCountCache {
	return &fakeCountCache{values: make(map[string]int)}
}

func (c *fakeCountCache) Get(_ context.Context, userID string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[userID]
	return v, ok, nil
}

func (c *fakeCountCache) Set(_ context.Context, userID string, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[userID] = count
	return nil
}

func (c *fakeCountCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, userID)
	c.invalidation++
	return nil
}

func (c *fakeCountCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidation
}

func TestManager_UnreadCountUsesCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCountCache()
	m, _ := newManager(t, notification.WithCountCache(cache))
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)

	count, err := m.UnreadCount(ctx, "user_42")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Marking read invalidates, and the next count reflects storage.
	_, err = m.MarkRead(ctx, it.Notification.ID, "user_42")
	require.NoError(t, err)

	count, err = m.UnreadCount(ctx, "user_42")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.GreaterOrEqual(t, cache.invalidation, 2)
}

func TestManager_EveryAcceptedTransitionInvalidatesCount(t *testing.T) {
	t.Parallel()

	cache := newFakeCountCache()
	m, _ := newManager(t, notification.WithCountCache(cache))
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)
	id := it.Notification.ID

	_, err = m.MarkRead(ctx, id, "user_42")
	require.NoError(t, err)
	afterRead := cache.invalidations()

	// read -> clicked does not change the unread count, but still
	// invalidates so the cached value stays auditable against storage.
	_, err = m.MarkClicked(ctx, id, "user_42")
	require.NoError(t, err)
	assert.Equal(t, afterRead+1, cache.invalidations())

	// The idempotent repeat of a terminal transition touches nothing.
	_, err = m.Dismiss(ctx, id, "user_42", "sessionapp")
	require.NoError(t, err)
	afterDismiss := cache.invalidations()
	_, err = m.Dismiss(ctx, id, "user_42", "otherapp")
	require.NoError(t, err)
	assert.Equal(t, afterDismiss, cache.invalidations())
}

func TestManager_TransitionRequiresOwningUser(t *testing.T) {
	t.Parallel()

	m, sink := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)
	id := it.Notification.ID

	_, err = m.MarkRead(ctx, id, "user_99")
	assert.ErrorIs(t, err, notification.ErrForbidden)
	_, err = m.Dismiss(ctx, id, "user_99", "shopapp")
	assert.ErrorIs(t, err, notification.ErrForbidden)

	// The record is untouched and no lifecycle event leaked.
	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusUnread, got.State.Status)
	assert.Equal(t, []string{"created"}, sink.types())

	_, err = m.MarkRead(ctx, id, "user_42")
	assert.NoError(t, err)
}

func TestManager_Expire(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m, sink := newManager(t, notification.WithClock(func() time.Time { return current }))
	ctx := context.Background()

	expires := current.Add(time.Hour)
	in := validInput()
	in.ExpiresAt = &expires
	it, err := m.Create(ctx, in)
	require.NoError(t, err)

	// Nothing is overdue yet.
	n, err := m.Expire(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	current = current.Add(2 * time.Hour)
	n, err = m.Expire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.Get(ctx, it.Notification.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusExpired, got.State.Status)
	assert.Equal(t, []string{"created", "expired"}, sink.types())

	// Expired is terminal for the sweep too.
	n, err = m.Expire(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Mirrors a cross-app flow: one app creates, the user reads it in a second
// app and dismisses it from a third, and the repeat dismissal is a no-op.
func TestManager_CrossAppLifecycle(t *testing.T) {
	t.Parallel()

	m, sink := newManager(t)
	ctx := context.Background()

	it, err := m.Create(ctx, validInput())
	require.NoError(t, err)
	id := it.Notification.ID

	_, err = m.MarkRead(ctx, id, "user_42")
	require.NoError(t, err)

	dismissed, err := m.Dismiss(ctx, id, "user_42", "calendarapp")
	require.NoError(t, err)
	assert.Equal(t, "calendarapp", dismissed.State.DismissedFrom)

	again, err := m.Dismiss(ctx, id, "user_42", "sessionapp")
	require.NoError(t, err)
	assert.Equal(t, "calendarapp", again.State.DismissedFrom)

	assert.Equal(t, []string{"created", "read", "dismissed"}, sink.types())
}

// Walks a notification through the full multi-app flow: published by one app,
// surfaced first in the user's feed by priority, dismissed from another app,
// gone from the unread view, and immune to a repeated dismissal.
func TestManager_EndToEndFlow(t *testing.T) {
	t.Parallel()

	m, sink := newManager(t)
	ctx := context.Background()

	in := validInput()
	in.Priority = notification.PriorityUrgent
	urgent, err := m.Create(ctx, in)
	require.NoError(t, err)

	in = validInput()
	in.ExternalID = "sess_992"
	in.Priority = notification.PriorityLow
	_, err = m.Create(ctx, in)
	require.NoError(t, err)

	items, err := m.Query(ctx, "user_42", notification.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, urgent.Notification.ID, items[0].Notification.ID)

	_, err = m.Dismiss(ctx, urgent.Notification.ID, "user_42", "calendarapp")
	require.NoError(t, err)

	unread := notification.StatusUnread
	items, err = m.Query(ctx, "user_42", notification.Filter{Status: &unread})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "sess_992", items[0].Notification.ExternalID)

	// The repeat dismissal succeeds without emitting a second event.
	_, err = m.Dismiss(ctx, urgent.Notification.ID, "user_42", "sessionapp")
	require.NoError(t, err)
	assert.Equal(t, []string{"created", "created", "dismissed"}, sink.types())
}
