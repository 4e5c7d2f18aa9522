package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oriva/eventsync/pkg/async"
	"github.com/oriva/eventsync/pkg/logger"
)

// Broadcaster pushes a stored event to live client connections.
// Implementations must not block the caller beyond buffering.
type Broadcaster interface {
	Fanout(ctx context.Context, e Event) error
}

// FanoutQueue enqueues durable webhook deliveries for a stored event.
type FanoutQueue interface {
	EnqueueEvent(ctx context.Context, e Event) error
}

// Publisher is the single entry point for recording events.
// The publish path is synchronous up to the durable store append; broadcast
// and webhook enqueue run detached so publish latency does not depend on
// subscriber count or health.
type Publisher struct {
	store       Store
	broadcaster Broadcaster
	queue       FanoutQueue
	log         *slog.Logger
	now         func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithBroadcaster attaches the live-connection broadcaster.
func WithBroadcaster(b Broadcaster) PublisherOption {
	return func(p *Publisher) { p.broadcaster = b }
}

// WithFanoutQueue attaches the webhook delivery queue.
func WithFanoutQueue(q FanoutQueue) PublisherOption {
	return func(p *Publisher) { p.queue = q }
}

// WithLogger sets the logger used for fan-out failures.
func WithLogger(log *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if log != nil {
			p.log = log
		}
	}
}

// WithClock overrides the timestamp source. Test hook.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPublisher creates a Publisher writing to store.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish validates and records an event, then fans it out.
// The returned event carries the server-assigned id and timestamp. An error
// return means the event was not recorded; fan-out failures are logged and
// never returned.
func (p *Publisher) Publish(ctx context.Context, appID, userID string, category Category, eventType, entityType, entityID string, payload map[string]any) (*Event, error) {
	e := &Event{
		ID:         uuid.New(),
		AppID:      appID,
		UserID:     userID,
		Category:   category,
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		OccurredAt: p.now(),
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}

	// The payload map must survive a round trip to JSON; anything else is
	// rejected before it can poison the store or webhook bodies.
	if payload != nil {
		if _, err := json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("%w: payload is not JSON-serializable: %v", ErrValidation, err)
		}
	}

	if err := p.store.Append(ctx, e); err != nil {
		return nil, err
	}

	p.dispatch(ctx, *e)

	return e, nil
}

// dispatch hands the stored event to the broadcaster and delivery queue.
// The broadcaster is invoked inline because its sends are buffered and
// non-blocking, and calling it in publish order preserves per-user ordering
// for live clients. The delivery enqueue is detached from the caller's
// context so a cancelled request cannot abort fan-out of an already-durable
// event.
func (p *Publisher) dispatch(ctx context.Context, e Event) {
	bctx := context.WithoutCancel(ctx)

	if p.broadcaster != nil {
		if err := p.broadcaster.Fanout(bctx, e); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "live broadcast failed, event remains durable",
				logger.EventID(e.ID),
				logger.EventType(e.Key()),
				logger.Error(err),
			)
		}
	}

	if p.queue != nil {
		async.Run(bctx, func(ctx context.Context) (struct{}, error) {
			if err := p.queue.EnqueueEvent(ctx, e); err != nil {
				p.log.LogAttrs(ctx, slog.LevelError, "webhook fan-out enqueue failed",
					logger.EventID(e.ID),
					logger.EventType(e.Key()),
					logger.Error(err),
				)
			}
			return struct{}{}, nil
		})
	}
}
