package async

import (
	"context"
	"time"
)

// Future represents the result of a computation running in its own goroutine.
type Future[T any] struct {
	result T
	err    error
	done   chan struct{}
}

// Run executes fn asynchronously and returns a Future for its result.
// A pre-cancelled context short-circuits without invoking fn.
func Run[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		select {
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		default:
		}

		f.result, f.err = fn(ctx)
	}()

	return f
}

// Await blocks until the computation completes and returns its result.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.result, f.err
}

// AwaitTimeout waits for completion up to the given duration.
// Returns ErrTimeout if the deadline elapses first; the computation keeps
// running and a later Await still yields its result.
func (f *Future[T]) AwaitTimeout(d time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-time.After(d):
		var zero T
		return zero, ErrTimeout
	}
}

// Done returns true if the computation has completed, without blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
