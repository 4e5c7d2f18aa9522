package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriva/eventsync/pkg/async"
)

func TestRun_ReturnsResult(t *testing.T) {
	t.Parallel()

	f := async.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, f.Done())
}

func TestRun_PropagatesError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	f := async.Run(context.Background(), func(ctx context.Context) (string, error) {
		return "", wantErr
	})

	_, err := f.Await()
	assert.ErrorIs(t, err, wantErr)
}

func TestRun_PreCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := async.Run(ctx, func(ctx context.Context) (int, error) {
		t.Error("fn must not run with a cancelled context")
		return 0, nil
	})

	_, err := f.Await()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitTimeout(t *testing.T) {
	t.Parallel()

	f := async.Run(context.Background(), func(ctx context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 1, nil
	})

	_, err := f.AwaitTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, async.ErrTimeout)

	// The computation still completes and remains awaitable.
	v, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
