package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriva/eventsync/pkg/broadcast"
	"github.com/oriva/eventsync/pkg/event"
)

func userEvent(userID, typ string) event.Event {
	return event.Event{
		ID:         uuid.New(),
		AppID:      "sessionapp",
		UserID:     userID,
		Category:   event.CategoryNotification,
		Type:       typ,
		EntityType: "notification",
		EntityID:   "ntf_1",
		OccurredAt: time.Now().UTC(),
	}
}

func recv(t *testing.T, h *broadcast.Handle) event.Event {
	t.Helper()
	select {
	case e, ok := <-h.Events():
		require.True(t, ok, "handle closed unexpectedly")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func TestHub_FanoutRoutesByUser(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub()
	defer hub.Close()
	ctx := context.Background()

	alice, err := hub.Register("alice", nil)
	require.NoError(t, err)
	bob, err := hub.Register("bob", nil)
	require.NoError(t, err)

	e := userEvent("alice", "created")
	require.NoError(t, hub.Fanout(ctx, e))

	got := recv(t, alice)
	assert.Equal(t, e.ID, got.ID)

	select {
	case <-bob.Events():
		t.Fatal("bob must not receive alice's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FanoutPreservesPublishOrder(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub()
	defer hub.Close()
	ctx := context.Background()

	h, err := hub.Register("alice", nil)
	require.NoError(t, err)

	first := userEvent("alice", "created")
	second := userEvent("alice", "read")
	require.NoError(t, hub.Fanout(ctx, first))
	require.NoError(t, hub.Fanout(ctx, second))

	assert.Equal(t, first.ID, recv(t, h).ID)
	assert.Equal(t, second.ID, recv(t, h).ID)
}

func TestHub_PatternFiltering(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub()
	defer hub.Close()
	ctx := context.Background()

	filtered, err := hub.Register("alice", []string{"notification.created"})
	require.NoError(t, err)
	all, err := hub.Register("alice", nil)
	require.NoError(t, err)

	created := userEvent("alice", "created")
	dismissed := userEvent("alice", "dismissed")
	require.NoError(t, hub.Fanout(ctx, created))
	require.NoError(t, hub.Fanout(ctx, dismissed))

	// The filtered handle only sees notification.created.
	assert.Equal(t, created.ID, recv(t, filtered).ID)
	select {
	case e := <-filtered.Events():
		t.Fatalf("unexpected event %s", e.Key())
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, created.ID, recv(t, all).ID)
	assert.Equal(t, dismissed.ID, recv(t, all).ID)
}

func TestHub_PlatformWideEventsReachEveryone(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub()
	defer hub.Close()
	ctx := context.Background()

	alice, err := hub.Register("alice", nil)
	require.NoError(t, err)
	bob, err := hub.Register("bob", nil)
	require.NoError(t, err)

	e := userEvent("", "maintenance")
	e.Category = event.CategorySession
	require.NoError(t, hub.Fanout(ctx, e))

	assert.Equal(t, e.ID, recv(t, alice).ID)
	assert.Equal(t, e.ID, recv(t, bob).ID)
}

func TestHub_ConnectionLimit(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub(broadcast.WithConnectionLimit(10))
	defer hub.Close()

	handles := make([]*broadcast.Handle, 0, 10)
	for range 10 {
		h, err := hub.Register("alice", nil)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	_, err := hub.Register("alice", nil)
	assert.ErrorIs(t, err, broadcast.ErrConnectionLimit)

	// Releasing one connection frees a slot.
	handles[0].Close()
	_, err = hub.Register("alice", nil)
	assert.NoError(t, err)
	assert.Equal(t, 10, hub.ConnectionCount("alice"))
}

func TestHub_SlowConsumerIsDisconnected(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub(broadcast.WithBufferSize(1))
	defer hub.Close()
	ctx := context.Background()

	h, err := hub.Register("alice", nil)
	require.NoError(t, err)

	// Fill the buffer, then overflow it without draining.
	require.NoError(t, hub.Fanout(ctx, userEvent("alice", "created")))
	require.NoError(t, hub.Fanout(ctx, userEvent("alice", "read")))

	assert.Zero(t, hub.ConnectionCount("alice"))

	// The channel still yields the buffered event, then closes.
	<-h.Events()
	_, ok := <-h.Events()
	assert.False(t, ok)
}

func TestHub_CloseRejectsNewRegistrations(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub()
	h, err := hub.Register("alice", nil)
	require.NoError(t, err)

	hub.Close()

	_, ok := <-h.Events()
	assert.False(t, ok)

	_, err = hub.Register("alice", nil)
	assert.ErrorIs(t, err, broadcast.ErrHubClosed)
}
