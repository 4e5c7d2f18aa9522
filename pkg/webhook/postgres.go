package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriva/eventsync/pkg/pg"
)

// PostgresSubscriptionStore is the production SubscriptionStore backed by pgx.
type PostgresSubscriptionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionStore creates a store on an existing connection pool.
func NewPostgresSubscriptionStore(pool *pgxpool.Pool) *PostgresSubscriptionStore {
	return &PostgresSubscriptionStore{pool: pool}
}

const subColumns = `id, app_id, url, secret, patterns, active, consecutive_failures,
	total_deliveries, total_failures, max_retries, backoff_base_ms, created_at, disabled_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	var backoffMS int64
	err := row.Scan(&sub.ID, &sub.AppID, &sub.URL, &sub.Secret, &sub.Patterns,
		&sub.Active, &sub.ConsecutiveFailures, &sub.TotalDeliveries, &sub.TotalFailures,
		&sub.MaxRetries, &backoffMS, &sub.CreatedAt, &sub.DisabledAt)
	if err != nil {
		return nil, err
	}
	sub.BackoffBase = time.Duration(backoffMS) * time.Millisecond
	return &sub, nil
}

func (s *PostgresSubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	const q = `
		INSERT INTO webhook_subscriptions
			(id, app_id, url, secret, patterns, active, consecutive_failures,
			 total_deliveries, total_failures, max_retries, backoff_base_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, q, sub.ID, sub.AppID, sub.URL, sub.Secret, sub.Patterns,
		sub.Active, sub.ConsecutiveFailures, sub.TotalDeliveries, sub.TotalFailures,
		sub.MaxRetries, sub.BackoffBase.Milliseconds(), sub.CreatedAt)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (s *PostgresSubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM webhook_subscriptions WHERE id = $1`, id))
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, id)
		}
		return nil, errors.Join(ErrStorage, err)
	}
	return sub, nil
}

func (s *PostgresSubscriptionStore) ListByApp(ctx context.Context, appID string) ([]Subscription, error) {
	return s.list(ctx,
		`SELECT `+subColumns+` FROM webhook_subscriptions WHERE app_id = $1 ORDER BY created_at`, appID)
}

func (s *PostgresSubscriptionStore) ListActive(ctx context.Context) ([]Subscription, error) {
	return s.list(ctx,
		`SELECT `+subColumns+` FROM webhook_subscriptions WHERE active ORDER BY created_at`)
}

func (s *PostgresSubscriptionStore) list(ctx context.Context, q string, args ...any) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	defer rows.Close()

	out := make([]Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrStorage, err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return out, nil
}

func (s *PostgresSubscriptionStore) Update(ctx context.Context, sub *Subscription) error {
	const q = `
		UPDATE webhook_subscriptions
		SET url = $2, patterns = $3, active = $4, max_retries = $5, backoff_base_ms = $6,
		    disabled_at = $7,
		    consecutive_failures = CASE WHEN $4 AND NOT active THEN 0 ELSE consecutive_failures END
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, sub.ID, sub.URL, sub.Patterns, sub.Active,
		sub.MaxRetries, sub.BackoffBase.Milliseconds(), sub.DisabledAt)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, sub.ID)
	}
	return nil
}

func (s *PostgresSubscriptionStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresSubscriptionStore) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE webhook_subscriptions
		SET consecutive_failures = 0, total_deliveries = total_deliveries + 1
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	return nil
}

// RecordFailure bumps the failure counters and deactivates the subscription
// in the same statement once the streak reaches the ceiling, so two racing
// workers cannot both observe it active past the limit.
func (s *PostgresSubscriptionStore) RecordFailure(ctx context.Context, id uuid.UUID, ceiling int) (int, bool, error) {
	const q = `
		UPDATE webhook_subscriptions
		SET consecutive_failures = consecutive_failures + 1,
		    total_deliveries = total_deliveries + 1,
		    total_failures = total_failures + 1,
		    disabled_at = CASE WHEN active AND consecutive_failures + 1 >= $2 THEN now() ELSE disabled_at END,
		    active = CASE WHEN consecutive_failures + 1 >= $2 THEN false ELSE active END
		WHERE id = $1
		RETURNING consecutive_failures, (NOT active AND consecutive_failures = $2)`

	var consecutive int
	var justDisabled bool
	err := s.pool.QueryRow(ctx, q, id, ceiling).Scan(&consecutive, &justDisabled)
	if err != nil {
		if pg.IsNotFound(err) {
			return 0, false, fmt.Errorf("%w: subscription %s", ErrNotFound, id)
		}
		return 0, false, errors.Join(ErrStorage, err)
	}
	return consecutive, justDisabled, nil
}

// PostgresDeliveryStore is the production DeliveryStore backed by pgx.
type PostgresDeliveryStore struct {
	pool *pgxpool.Pool
}

// NewPostgresDeliveryStore creates a store on an existing connection pool.
func NewPostgresDeliveryStore(pool *pgxpool.Pool) *PostgresDeliveryStore {
	return &PostgresDeliveryStore{pool: pool}
}

const deliveryColumns = `id, subscription_id, event_id, event_key, payload, status,
	attempts, next_attempt_at, occurred_at, created_at, last_error`

func (s *PostgresDeliveryStore) Enqueue(ctx context.Context, deliveries []Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range deliveries {
		batch.Queue(`
			INSERT INTO webhook_deliveries (`+deliveryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			d.ID, d.SubscriptionID, d.EventID, d.EventKey, d.Payload, d.Status,
			d.Attempts, d.NextAttemptAt, d.OccurredAt, d.CreatedAt, d.LastError)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range deliveries {
		if _, err := results.Exec(); err != nil {
			return errors.Join(ErrStorage, err)
		}
	}
	return nil
}

func (s *PostgresDeliveryStore) Get(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	var d Delivery
	err := s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id).Scan(
		&d.ID, &d.SubscriptionID, &d.EventID, &d.EventKey, &d.Payload, &d.Status,
		&d.Attempts, &d.NextAttemptAt, &d.OccurredAt, &d.CreatedAt, &d.LastError)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, fmt.Errorf("%w: delivery %s", ErrNotFound, id)
		}
		return nil, errors.Join(ErrStorage, err)
	}
	return &d, nil
}

// ClaimDue claims with FOR UPDATE SKIP LOCKED so concurrent workers never
// double-deliver. Expired processing claims are reclaimed. Subscriptions
// with a live in-flight claim are skipped entirely so queued deliveries
// cannot overtake the one being sent.
func (s *PostgresDeliveryStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Delivery, error) {
	if lease <= 0 {
		lease = DefaultClaimLease
	}

	const q = `
		UPDATE webhook_deliveries
		SET status = 'processing', claimed_until = $2
		WHERE id IN (
			SELECT d.id FROM webhook_deliveries d
			WHERE d.next_attempt_at <= $1
			  AND (d.status = 'pending' OR (d.status = 'processing' AND d.claimed_until < $1))
			  AND NOT EXISTS (
				SELECT 1 FROM webhook_deliveries p
				WHERE p.subscription_id = d.subscription_id
				  AND p.id <> d.id
				  AND p.status = 'processing' AND p.claimed_until >= $1)
			ORDER BY d.occurred_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED)
		RETURNING ` + deliveryColumns

	rows, err := s.pool.Query(ctx, q, now, now.Add(lease), limit)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	defer rows.Close()

	out := make([]Delivery, 0)
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventID, &d.EventKey, &d.Payload,
			&d.Status, &d.Attempts, &d.NextAttemptAt, &d.OccurredAt, &d.CreatedAt, &d.LastError); err != nil {
			return nil, errors.Join(ErrStorage, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return out, nil
}

func (s *PostgresDeliveryStore) MarkSucceeded(ctx context.Context, id uuid.UUID, attempts int) error {
	return s.finish(ctx, id, DeliverySucceeded, attempts, "")
}

func (s *PostgresDeliveryStore) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	return s.finish(ctx, id, DeliveryFailed, attempts, lastError)
}

func (s *PostgresDeliveryStore) finish(ctx context.Context, id uuid.UUID, status DeliveryStatus, attempts int, lastError string) error {
	const q = `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, last_error = $4, claimed_until = NULL
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, status, attempts, lastError)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresDeliveryStore) Reschedule(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	const q = `
		UPDATE webhook_deliveries
		SET status = 'pending', attempts = $2, next_attempt_at = $3, last_error = $4, claimed_until = NULL
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, attempts, nextAttemptAt, lastError)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresDeliveryStore) RecordAttempt(ctx context.Context, a Attempt) error {
	const q = `
		INSERT INTO delivery_attempts
			(id, delivery_id, subscription_id, event_id, number, status_code,
			 success, duration_ms, attempted_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q, a.ID, a.DeliveryID, a.SubscriptionID, a.EventID,
		a.Number, a.StatusCode, a.Success, a.Duration.Milliseconds(), a.AttemptedAt, a.Error)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (s *PostgresDeliveryStore) ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]Attempt, error) {
	const q = `
		SELECT id, delivery_id, subscription_id, event_id, number, status_code,
		       success, duration_ms, attempted_at, error_message
		FROM delivery_attempts
		WHERE delivery_id = $1
		ORDER BY number ASC`

	return s.listAttempts(ctx, q, deliveryID)
}

func (s *PostgresDeliveryStore) ListAttemptsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Attempt, error) {
	const q = `
		SELECT id, delivery_id, subscription_id, event_id, number, status_code,
		       success, duration_ms, attempted_at, error_message
		FROM delivery_attempts
		WHERE attempted_at < $1
		ORDER BY attempted_at ASC
		LIMIT $2`

	return s.listAttempts(ctx, q, cutoff, limit)
}

func (s *PostgresDeliveryStore) listAttempts(ctx context.Context, q string, args ...any) ([]Attempt, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		var a Attempt
		var durationMS int64
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.SubscriptionID, &a.EventID,
			&a.Number, &a.StatusCode, &a.Success, &durationMS, &a.AttemptedAt, &a.Error); err != nil {
			return nil, errors.Join(ErrStorage, err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return out, nil
}

func (s *PostgresDeliveryStore) DeleteAttempts(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM delivery_attempts WHERE id = ANY($1)`, ids)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}
