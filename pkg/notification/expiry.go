package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/oriva/eventsync/pkg/logger"
)

// DefaultExpiryInterval is how often the expiry worker sweeps.
const DefaultExpiryInterval = time.Minute

// Expirer is the slice of Manager the worker needs.
type Expirer interface {
	Expire(ctx context.Context) (int, error)
}

// ExpiryWorker periodically moves overdue notifications to the expired
// state. Sweeps are bounded batches; each tick drains until a pass expires
// nothing, so a backlog clears without unbounded single transactions.
type ExpiryWorker struct {
	manager  Expirer
	interval time.Duration
	log      *slog.Logger
}

// ExpiryOption configures an ExpiryWorker.
type ExpiryOption func(*ExpiryWorker)

// WithExpiryInterval sets the sweep cadence.
func WithExpiryInterval(d time.Duration) ExpiryOption {
	return func(w *ExpiryWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithExpiryLogger sets the structured logger.
func WithExpiryLogger(l *slog.Logger) ExpiryOption {
	return func(w *ExpiryWorker) { w.log = l }
}

// NewExpiryWorker creates a worker around the manager's Expire operation.
func NewExpiryWorker(manager Expirer, opts ...ExpiryOption) *ExpiryWorker {
	w := &ExpiryWorker{
		manager:  manager,
		interval: DefaultExpiryInterval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, sweeping on every tick until the context is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.LogAttrs(ctx, slog.LevelInfo, "expiry worker started",
		logger.Component("notification.expiry"),
		slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.LogAttrs(ctx, slog.LevelInfo, "expiry worker stopped",
				logger.Component("notification.expiry"))
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	total := 0
	for {
		n, err := w.manager.Expire(ctx)
		if err != nil {
			w.log.LogAttrs(ctx, slog.LevelError, "expiry sweep failed",
				logger.Component("notification.expiry"), logger.Error(err))
			return
		}
		total += n
		if n == 0 {
			break
		}
	}
	if total > 0 {
		w.log.LogAttrs(ctx, slog.LevelInfo, "notifications expired",
			logger.Component("notification.expiry"), slog.Int("count", total))
	}
}
