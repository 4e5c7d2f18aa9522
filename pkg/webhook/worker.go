package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriva/eventsync/pkg/cache"
	"github.com/oriva/eventsync/pkg/logger"
)

const (
	// DefaultPollInterval is how often the worker scans for due deliveries.
	DefaultPollInterval = 5 * time.Second

	// DefaultConcurrency is the fixed worker pool size. One hung endpoint
	// occupies one slot; the rest keep draining.
	DefaultConcurrency = 8

	// DefaultSubscriptionCacheSize bounds the worker's subscription lookup
	// cache.
	DefaultSubscriptionCacheSize = 1024

	// DefaultSubscriptionCacheTTL bounds how long a cached subscription is
	// trusted before the store is consulted again. Deactivations made
	// through the registry or another process take effect within one TTL.
	DefaultSubscriptionCacheTTL = 30 * time.Second
)

type cachedSubscription struct {
	sub       Subscription
	fetchedAt time.Time
}

// Worker drains the delivery queue on a recurring sweep. Each claimed
// delivery gets one HTTP attempt; failures are rescheduled with exponential
// backoff until the subscription's retry cap, then abandoned. Every failed
// attempt extends the subscription's consecutive-failure streak, and hitting
// the ceiling deactivates it.
type Worker struct {
	deliveries DeliveryStore
	subs       SubscriptionStore
	sender     *Sender
	subCache   *cache.LRU[uuid.UUID, cachedSubscription]
	log        *slog.Logger
	now        func() time.Time

	pollInterval   time.Duration
	lease          time.Duration
	failureCeiling int
	subCacheTTL    time.Duration
	onDisabled     func(ctx context.Context, sub Subscription)

	sem chan struct{}
	wg  sync.WaitGroup
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollInterval sets the sweep cadence.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithConcurrency sets the worker pool size.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

// WithClaimLease sets how long a claim stays exclusive.
func WithClaimLease(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lease = d
		}
	}
}

// WithFailureCeiling overrides the consecutive-failure deactivation limit.
func WithFailureCeiling(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.failureCeiling = n
		}
	}
}

// WithOnDisabled installs a hook invoked after a subscription is
// auto-deactivated, for operator alerting.
func WithOnDisabled(fn func(ctx context.Context, sub Subscription)) WorkerOption {
	return func(w *Worker) { w.onDisabled = fn }
}

// WithSender replaces the default sender, for tests or custom transports.
func WithSender(s *Sender) WorkerOption {
	return func(w *Worker) {
		if s != nil {
			w.sender = s
		}
	}
}

// WithWorkerLogger sets the structured logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

// WithWorkerClock overrides the time source, for tests.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// WithSubscriptionCacheSize bounds the lookup cache.
func WithSubscriptionCacheSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.subCache = cache.NewLRU[uuid.UUID, cachedSubscription](n)
		}
	}
}

// WithSubscriptionCacheTTL sets how long cached subscriptions are trusted.
func WithSubscriptionCacheTTL(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.subCacheTTL = d
		}
	}
}

// NewWorker creates a delivery worker over the given stores.
func NewWorker(deliveries DeliveryStore, subs SubscriptionStore, opts ...WorkerOption) *Worker {
	w := &Worker{
		deliveries:     deliveries,
		subs:           subs,
		sender:         NewSender(),
		subCache:       cache.NewLRU[uuid.UUID, cachedSubscription](DefaultSubscriptionCacheSize),
		log:            slog.Default(),
		now:            time.Now,
		pollInterval:   DefaultPollInterval,
		lease:          DefaultClaimLease,
		failureCeiling: DefaultFailureCeiling,
		subCacheTTL:    DefaultSubscriptionCacheTTL,
		sem:            make(chan struct{}, DefaultConcurrency),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, sweeping on every tick until the context is cancelled, then
// waits for in-flight deliveries to finish.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.log.LogAttrs(ctx, slog.LevelInfo, "webhook delivery worker started",
		logger.Component("webhook.worker"),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Int("concurrency", cap(w.sem)))

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.log.LogAttrs(ctx, slog.LevelInfo, "webhook delivery worker stopped",
				logger.Component("webhook.worker"))
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	free := cap(w.sem) - len(w.sem)
	if free == 0 {
		return
	}

	claimed, err := w.deliveries.ClaimDue(ctx, w.now().UTC(), free, w.lease)
	if err != nil {
		w.log.LogAttrs(ctx, slog.LevelError, "claiming due deliveries failed",
			logger.Component("webhook.worker"), logger.Error(err))
		return
	}

	// Same-subscription deliveries go to a single pool worker so they
	// complete in claim order; only distinct subscriptions run concurrently.
	for _, batch := range groupBySubscription(claimed) {
		w.sem <- struct{}{}
		w.wg.Add(1)
		go func(batch []Delivery) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			// Deliveries outlive a cancelled sweep so claimed rows are not
			// abandoned until the lease expires.
			for _, d := range batch {
				w.process(context.WithoutCancel(ctx), d)
			}
		}(batch)
	}
}

// groupBySubscription splits a claim batch into per-subscription slices,
// each ordered by the event timestamp, preserving first-seen subscription
// order.
func groupBySubscription(claimed []Delivery) [][]Delivery {
	groups := make(map[uuid.UUID]int, len(claimed))
	out := make([][]Delivery, 0, len(claimed))
	for _, d := range claimed {
		i, ok := groups[d.SubscriptionID]
		if !ok {
			i = len(out)
			groups[d.SubscriptionID] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], d)
	}
	for _, batch := range out {
		sort.Slice(batch, func(i, j int) bool { return batch[i].OccurredAt.Before(batch[j].OccurredAt) })
	}
	return out
}

// ProcessDue claims and processes due deliveries synchronously, returning
// how many it handled. Used by tests and one-shot maintenance commands.
func (w *Worker) ProcessDue(ctx context.Context, limit int) (int, error) {
	claimed, err := w.deliveries.ClaimDue(ctx, w.now().UTC(), limit, w.lease)
	if err != nil {
		return 0, err
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].OccurredAt.Before(claimed[j].OccurredAt) })
	for _, d := range claimed {
		w.process(ctx, d)
	}
	return len(claimed), nil
}

func (w *Worker) process(ctx context.Context, d Delivery) {
	sub, err := w.subscription(ctx, d.SubscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			w.finishFailed(ctx, d, d.Attempts, "subscription deleted")
			return
		}
		// Transient store failure; leave the claim to lapse and retry.
		w.log.LogAttrs(ctx, slog.LevelError, "subscription lookup failed",
			logger.SubscriptionID(d.SubscriptionID), logger.Error(err))
		return
	}
	if !sub.Active {
		w.finishFailed(ctx, d, d.Attempts, "subscription inactive")
		return
	}

	attemptNo := d.Attempts + 1
	result := w.sender.Send(ctx, *sub, d.Payload)

	attempt := Attempt{
		ID:             uuid.New(),
		DeliveryID:     d.ID,
		SubscriptionID: sub.ID,
		EventID:        d.EventID,
		Number:         attemptNo,
		StatusCode:     result.StatusCode,
		Success:        result.Success,
		Duration:       result.Duration,
		AttemptedAt:    w.now().UTC(),
	}
	if result.Err != nil {
		attempt.Error = result.Err.Error()
	}
	if err := w.deliveries.RecordAttempt(ctx, attempt); err != nil {
		w.log.LogAttrs(ctx, slog.LevelError, "recording delivery attempt failed",
			logger.SubscriptionID(sub.ID), logger.Error(err))
	}

	if result.Success {
		if err := w.deliveries.MarkSucceeded(ctx, d.ID, attemptNo); err != nil {
			w.log.LogAttrs(ctx, slog.LevelError, "marking delivery succeeded failed",
				logger.SubscriptionID(sub.ID), logger.Error(err))
		}
		if err := w.subs.RecordSuccess(ctx, sub.ID); err != nil {
			w.log.LogAttrs(ctx, slog.LevelError, "recording delivery success failed",
				logger.SubscriptionID(sub.ID), logger.Error(err))
		}
		w.log.LogAttrs(ctx, slog.LevelDebug, "webhook delivered",
			logger.SubscriptionID(sub.ID), logger.EventID(d.EventID),
			logger.Attempt(attemptNo), logger.Duration(result.Duration))
		return
	}

	consecutive, disabled, err := w.subs.RecordFailure(ctx, sub.ID, w.failureCeiling)
	if err != nil {
		w.log.LogAttrs(ctx, slog.LevelError, "recording delivery failure failed",
			logger.SubscriptionID(sub.ID), logger.Error(err))
	}

	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	if attemptNo >= sub.MaxRetries {
		w.finishFailed(ctx, d, attemptNo, errMsg)
		w.log.LogAttrs(ctx, slog.LevelWarn, "webhook delivery abandoned after final attempt",
			logger.SubscriptionID(sub.ID), logger.EventID(d.EventID), logger.Attempt(attemptNo))
	} else {
		next := w.now().UTC().Add(Backoff{Base: sub.BackoffBase}.Delay(attemptNo))
		if err := w.deliveries.Reschedule(ctx, d.ID, attemptNo, next, errMsg); err != nil {
			w.log.LogAttrs(ctx, slog.LevelError, "rescheduling delivery failed",
				logger.SubscriptionID(sub.ID), logger.Error(err))
		}
	}

	if disabled {
		w.subCache.Delete(sub.ID)
		w.log.LogAttrs(ctx, slog.LevelError, "webhook subscription deactivated after repeated failures",
			logger.SubscriptionID(sub.ID), logger.AppID(sub.AppID),
			slog.Int("consecutive_failures", consecutive))
		if w.onDisabled != nil {
			disabledSub := *sub
			disabledSub.Active = false
			disabledSub.ConsecutiveFailures = consecutive
			w.onDisabled(ctx, disabledSub)
		}
	}
}

func (w *Worker) finishFailed(ctx context.Context, d Delivery, attempts int, reason string) {
	if err := w.deliveries.MarkFailed(ctx, d.ID, attempts, reason); err != nil {
		w.log.LogAttrs(ctx, slog.LevelError, "marking delivery failed failed",
			logger.SubscriptionID(d.SubscriptionID), logger.Error(err))
	}
}

// subscription serves lookups from the LRU cache. Entries expire after the
// cache TTL and are evicted on a self-observed deactivation, so registry
// edits and deactivations made elsewhere take effect within one TTL.
func (w *Worker) subscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	if entry, ok := w.subCache.Get(id); ok && w.now().Sub(entry.fetchedAt) < w.subCacheTTL {
		sub := entry.sub
		return &sub, nil
	}
	sub, err := w.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	w.subCache.Set(id, cachedSubscription{sub: *sub, fetchedAt: w.now()})
	return sub, nil
}
