package webhook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriva/eventsync/pkg/webhook"
)

func validCreateInput() webhook.CreateInput {
	return webhook.CreateInput{
		AppID:    "shopapp",
		URL:      "https://hooks.example.com/events",
		Patterns: []string{"notification.*", "transaction.completed"},
	}
}

func TestRegistry_Create(t *testing.T) {
	t.Parallel()

	reg := webhook.NewRegistry(webhook.NewMemorySubscriptionStore())
	ctx := context.Background()

	sub, err := reg.Create(ctx, validCreateInput())
	require.NoError(t, err)

	// The secret is returned exactly once, with 32 bytes hex-encoded.
	assert.Len(t, sub.Secret, webhook.SecretBytes*2)
	assert.True(t, sub.Active)
	assert.Equal(t, webhook.DefaultMaxRetries, sub.MaxRetries)
	assert.Equal(t, webhook.DefaultBackoffBase, sub.BackoffBase)

	got, err := reg.Get(ctx, "shopapp", sub.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Secret, "reads must redact the secret")
}

func TestRegistry_CreateValidation(t *testing.T) {
	t.Parallel()

	reg := webhook.NewRegistry(webhook.NewMemorySubscriptionStore())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*webhook.CreateInput)
	}{
		{"http url", func(in *webhook.CreateInput) { in.URL = "http://hooks.example.com" }},
		{"no host", func(in *webhook.CreateInput) { in.URL = "https://" }},
		{"no patterns", func(in *webhook.CreateInput) { in.Patterns = nil }},
		{"bad pattern", func(in *webhook.CreateInput) { in.Patterns = []string{"notif*.created"} }},
		{"missing app", func(in *webhook.CreateInput) { in.AppID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validCreateInput()
			tt.mutate(&in)
			_, err := reg.Create(ctx, in)
			assert.ErrorIs(t, err, webhook.ErrValidation)
		})
	}
}

func TestRegistry_OwnershipChecks(t *testing.T) {
	t.Parallel()

	reg := webhook.NewRegistry(webhook.NewMemorySubscriptionStore())
	ctx := context.Background()

	sub, err := reg.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = reg.Get(ctx, "otherapp", sub.ID)
	assert.ErrorIs(t, err, webhook.ErrForbidden)

	active := false
	_, err = reg.Update(ctx, "otherapp", sub.ID, webhook.UpdateInput{Active: &active})
	assert.ErrorIs(t, err, webhook.ErrForbidden)

	err = reg.Delete(ctx, "otherapp", sub.ID)
	assert.ErrorIs(t, err, webhook.ErrForbidden)

	err = reg.Delete(ctx, "shopapp", sub.ID)
	assert.NoError(t, err)
}

func TestRegistry_ReactivationResetsFailureStreak(t *testing.T) {
	t.Parallel()

	store := webhook.NewMemorySubscriptionStore()
	reg := webhook.NewRegistry(store)
	ctx := context.Background()

	sub, err := reg.Create(ctx, validCreateInput())
	require.NoError(t, err)

	// Drive the subscription over the ceiling.
	var disabled bool
	for range 3 {
		_, disabled, err = store.RecordFailure(ctx, sub.ID, 3)
		require.NoError(t, err)
	}
	require.True(t, disabled)

	active := true
	updated, err := reg.Update(ctx, "shopapp", sub.ID, webhook.UpdateInput{Active: &active})
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Zero(t, updated.ConsecutiveFailures)
	assert.Nil(t, updated.DisabledAt)
}
