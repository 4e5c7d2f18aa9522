package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oriva/eventsync/pkg/logger"
)

// Registry manages webhook subscriptions on behalf of applications.
// All mutations are owner-checked against the caller's app id.
type Registry struct {
	subs SubscriptionStore
	log  *slog.Logger
	now  func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the structured logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// WithRegistryClock overrides the time source, for tests.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a Registry over a subscription store.
func NewRegistry(subs SubscriptionStore, opts ...RegistryOption) *Registry {
	r := &Registry{subs: subs, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateInput is the app-facing payload for a new subscription.
type CreateInput struct {
	AppID       string
	URL         string
	Patterns    []string
	MaxRetries  int
	BackoffBase time.Duration
}

// Create registers a subscription and generates its signing secret. The
// returned Subscription is the only place the secret ever appears; reads
// through Get and ListByApp redact it.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*Subscription, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:          uuid.New(),
		AppID:       in.AppID,
		URL:         in.URL,
		Secret:      secret,
		Patterns:    in.Patterns,
		Active:      true,
		MaxRetries:  in.MaxRetries,
		BackoffBase: in.BackoffBase,
		CreatedAt:   r.now().UTC(),
	}
	if sub.MaxRetries <= 0 {
		sub.MaxRetries = DefaultMaxRetries
	}
	if sub.BackoffBase <= 0 {
		sub.BackoffBase = DefaultBackoffBase
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := r.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	r.log.LogAttrs(ctx, slog.LevelInfo, "webhook subscription created",
		logger.SubscriptionID(sub.ID), logger.AppID(sub.AppID))
	return sub, nil
}

// Get returns a subscription with the secret redacted.
func (r *Registry) Get(ctx context.Context, appID string, id uuid.UUID) (*Subscription, error) {
	sub, err := r.owned(ctx, appID, id)
	if err != nil {
		return nil, err
	}
	sub.Secret = ""
	return sub, nil
}

// ListByApp returns an app's subscriptions with secrets redacted.
func (r *Registry) ListByApp(ctx context.Context, appID string) ([]Subscription, error) {
	subs, err := r.subs.ListByApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Secret = ""
	}
	return subs, nil
}

// UpdateInput carries the mutable subscription fields. Nil fields are left
// unchanged.
type UpdateInput struct {
	URL      *string
	Patterns []string
	Active   *bool
}

// Update mutates endpoint, patterns, or active flag. Reactivating a
// subscription resets its consecutive-failure streak so it gets a clean run.
func (r *Registry) Update(ctx context.Context, appID string, id uuid.UUID, in UpdateInput) (*Subscription, error) {
	sub, err := r.owned(ctx, appID, id)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		sub.URL = *in.URL
	}
	if in.Patterns != nil {
		sub.Patterns = in.Patterns
	}
	if in.Active != nil && *in.Active != sub.Active {
		sub.Active = *in.Active
		if sub.Active {
			sub.ConsecutiveFailures = 0
			sub.DisabledAt = nil
		} else {
			now := r.now().UTC()
			sub.DisabledAt = &now
		}
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := r.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	sub.Secret = ""
	return sub, nil
}

// Delete removes a subscription permanently.
func (r *Registry) Delete(ctx context.Context, appID string, id uuid.UUID) error {
	if _, err := r.owned(ctx, appID, id); err != nil {
		return err
	}
	if err := r.subs.Delete(ctx, id); err != nil {
		return err
	}
	r.log.LogAttrs(ctx, slog.LevelInfo, "webhook subscription deleted",
		logger.SubscriptionID(id), logger.AppID(appID))
	return nil
}

func (r *Registry) owned(ctx context.Context, appID string, id uuid.UUID) (*Subscription, error) {
	sub, err := r.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.AppID != appID {
		return nil, fmt.Errorf("%w: owned by %s", ErrForbidden, sub.AppID)
	}
	return sub, nil
}
