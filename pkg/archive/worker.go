package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oriva/eventsync/pkg/event"
	"github.com/oriva/eventsync/pkg/logger"
	"github.com/oriva/eventsync/pkg/webhook"
)

const (
	// DefaultSweepInterval is how often the archiver runs.
	DefaultSweepInterval = time.Hour

	// DefaultBatchSize bounds rows moved per store round-trip.
	DefaultBatchSize = 500

	// DefaultEventRetention keeps events hot for 30 days.
	DefaultEventRetention = 30 * 24 * time.Hour

	// DefaultAttemptRetention keeps delivery attempts hot for 7 days.
	DefaultAttemptRetention = 7 * 24 * time.Hour
)

// EventSource is the slice of the event store the archiver reads and prunes.
type EventSource interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]event.Event, error)
	DeleteBatch(ctx context.Context, ids []uuid.UUID) error
}

// AttemptSource is the slice of the delivery store the archiver reads and
// prunes.
type AttemptSource interface {
	ListAttemptsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]webhook.Attempt, error)
	DeleteAttempts(ctx context.Context, ids []uuid.UUID) error
}

// NotificationPurger removes fully-expired notifications, cascading their
// state rows.
type NotificationPurger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// SweepStats summarizes one archival pass.
type SweepStats struct {
	EventsArchived      int
	AttemptsArchived    int
	NotificationsPurged int
}

// Worker moves aged rows to cold storage in bounded batches.
type Worker struct {
	events        EventSource
	attempts      AttemptSource
	notifications NotificationPurger
	cold          ColdStorage
	log           *slog.Logger
	now           func() time.Time

	interval         time.Duration
	batchSize        int
	eventRetention   time.Duration
	attemptRetention time.Duration
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithSweepInterval sets the sweep cadence.
func WithSweepInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize bounds rows per round-trip.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithEventRetention sets how long events stay hot.
func WithEventRetention(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.eventRetention = d
		}
	}
}

// WithAttemptRetention sets how long delivery attempts stay hot.
func WithAttemptRetention(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.attemptRetention = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker creates an archival worker. notifications may be nil when
// notification purging is handled elsewhere.
func NewWorker(events EventSource, attempts AttemptSource, notifications NotificationPurger, cold ColdStorage, opts ...WorkerOption) *Worker {
	w := &Worker{
		events:           events,
		attempts:         attempts,
		notifications:    notifications,
		cold:             cold,
		log:              slog.Default(),
		now:              time.Now,
		interval:         DefaultSweepInterval,
		batchSize:        DefaultBatchSize,
		eventRetention:   DefaultEventRetention,
		attemptRetention: DefaultAttemptRetention,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, sweeping on every tick until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.LogAttrs(ctx, slog.LevelInfo, "archival worker started",
		logger.Component("archive.worker"), slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.LogAttrs(ctx, slog.LevelInfo, "archival worker stopped",
				logger.Component("archive.worker"))
			return ctx.Err()
		case <-ticker.C:
			stats, err := w.Sweep(ctx)
			if err != nil {
				w.log.LogAttrs(ctx, slog.LevelError, "archival sweep failed",
					logger.Component("archive.worker"), logger.Error(err))
				continue
			}
			if stats.EventsArchived > 0 || stats.AttemptsArchived > 0 || stats.NotificationsPurged > 0 {
				w.log.LogAttrs(ctx, slog.LevelInfo, "archival sweep finished",
					logger.Component("archive.worker"),
					slog.Int("events", stats.EventsArchived),
					slog.Int("attempts", stats.AttemptsArchived),
					slog.Int("notifications", stats.NotificationsPurged))
			}
		}
	}
}

// Sweep drains everything past retention in bounded batches and returns
// what it moved.
func (w *Worker) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := w.now().UTC()

	for {
		n, err := w.archiveEvents(ctx, now.Add(-w.eventRetention))
		if err != nil {
			return stats, err
		}
		stats.EventsArchived += n
		if n < w.batchSize {
			break
		}
	}

	for {
		n, err := w.archiveAttempts(ctx, now.Add(-w.attemptRetention))
		if err != nil {
			return stats, err
		}
		stats.AttemptsArchived += n
		if n < w.batchSize {
			break
		}
	}

	if w.notifications != nil {
		for {
			n, err := w.notifications.DeleteExpiredBefore(ctx, now.Add(-w.eventRetention), w.batchSize)
			if err != nil {
				return stats, err
			}
			stats.NotificationsPurged += n
			if n < w.batchSize {
				break
			}
		}
	}
	return stats, nil
}

// archiveEvents writes one batch to cold storage, then deletes the hot rows.
// Write-then-delete: an upload failure leaves the batch for the next sweep.
func (w *Worker) archiveEvents(ctx context.Context, cutoff time.Time) (int, error) {
	events, err := w.events.ListOlderThan(ctx, cutoff, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	records := make([]any, len(events))
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		records[i] = e
		ids[i] = e.ID
	}

	key := archiveKey("events", events[0].OccurredAt)
	data, err := encodeLines(records)
	if err != nil {
		return 0, err
	}
	if err := w.cold.Store(ctx, key, data); err != nil {
		return 0, err
	}
	if err := w.events.DeleteBatch(ctx, ids); err != nil {
		return 0, err
	}
	return len(events), nil
}

func (w *Worker) archiveAttempts(ctx context.Context, cutoff time.Time) (int, error) {
	attempts, err := w.attempts.ListAttemptsOlderThan(ctx, cutoff, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(attempts) == 0 {
		return 0, nil
	}

	records := make([]any, len(attempts))
	ids := make([]uuid.UUID, len(attempts))
	for i, a := range attempts {
		records[i] = a
		ids[i] = a.ID
	}

	key := archiveKey("delivery-attempts", attempts[0].AttemptedAt)
	data, err := encodeLines(records)
	if err != nil {
		return 0, err
	}
	if err := w.cold.Store(ctx, key, data); err != nil {
		return 0, err
	}
	if err := w.attempts.DeleteAttempts(ctx, ids); err != nil {
		return 0, err
	}
	return len(attempts), nil
}

// archiveKey partitions batches by the date of their oldest record.
func archiveKey(prefix string, oldest time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", prefix, oldest.UTC().Format("2006/01/02"), uuid.New())
}

// encodeLines renders records as JSON lines.
func encodeLines(records []any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("%w: encoding record: %v", ErrColdStorage, err)
		}
	}
	return buf.Bytes(), nil
}
