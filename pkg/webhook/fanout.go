package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oriva/eventsync/pkg/event"
	"github.com/oriva/eventsync/pkg/logger"
)

// Fanout turns one published event into queued deliveries for every active
// subscription whose patterns match. It satisfies event.FanoutQueue.
type Fanout struct {
	subs       SubscriptionStore
	deliveries DeliveryStore
	log        *slog.Logger
	now        func() time.Time
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithFanoutLogger sets the structured logger.
func WithFanoutLogger(l *slog.Logger) FanoutOption {
	return func(f *Fanout) { f.log = l }
}

// WithFanoutClock overrides the time source, for tests.
func WithFanoutClock(now func() time.Time) FanoutOption {
	return func(f *Fanout) { f.now = now }
}

// NewFanout creates a Fanout over the subscription and delivery stores.
func NewFanout(subs SubscriptionStore, deliveries DeliveryStore, opts ...FanoutOption) *Fanout {
	f := &Fanout{subs: subs, deliveries: deliveries, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EnqueueEvent matches the event against all active subscriptions and queues
// one delivery per match. The event is serialized once; the frozen payload
// is what every subscriber eventually receives.
func (f *Fanout) EnqueueEvent(ctx context.Context, e event.Event) error {
	subs, err := f.subs.ListActive(ctx)
	if err != nil {
		return err
	}

	key := e.Key()
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: serializing event %s: %v", ErrStorage, e.ID, err)
	}

	now := f.now().UTC()
	deliveries := make([]Delivery, 0)
	for _, sub := range subs {
		if !sub.Matches(key) {
			continue
		}
		deliveries = append(deliveries, Delivery{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			EventID:        e.ID,
			EventKey:       key,
			Payload:        payload,
			Status:         DeliveryPending,
			NextAttemptAt:  now,
			OccurredAt:     e.OccurredAt,
			CreatedAt:      now,
		})
	}
	if len(deliveries) == 0 {
		return nil
	}

	if err := f.deliveries.Enqueue(ctx, deliveries); err != nil {
		return err
	}
	f.log.LogAttrs(ctx, slog.LevelDebug, "webhook deliveries enqueued",
		logger.EventID(e.ID), logger.EventType(key), slog.Int("count", len(deliveries)))
	return nil
}
