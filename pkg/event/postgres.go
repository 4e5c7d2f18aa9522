package event

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

// PostgresStore is the production Store backed by pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store on top of an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, e *Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrStorage)
	}

	// GREATEST keeps the append sequence monotonic when the wall clock
	// steps backwards between writers.
	const q = `
		INSERT INTO events (id, app_id, user_id, category, type, entity_type, entity_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			GREATEST($9::timestamptz,
				(SELECT COALESCE(MAX(occurred_at), 'epoch'::timestamptz) + interval '1 microsecond' FROM events)))
		RETURNING occurred_at`

	row := s.pool.QueryRow(ctx, q,
		e.ID, e.AppID, e.UserID, e.Category, e.Type, e.EntityType, e.EntityID, e.Payload, e.OccurredAt)
	if err := row.Scan(&e.OccurredAt); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	const q = `
		SELECT id, app_id, user_id, category, type, entity_type, entity_id, payload, occurred_at
		FROM events WHERE id = $1`

	var e Event
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&e.ID, &e.AppID, &e.UserID, &e.Category, &e.Type, &e.EntityType, &e.EntityID, &e.Payload, &e.OccurredAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrStorage, err)
	}
	return &e, nil
}

func (s *PostgresStore) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	const q = `
		SELECT id, app_id, user_id, category, type, entity_type, entity_id, payload, occurred_at
		FROM events
		WHERE occurred_at < $1
		ORDER BY occurred_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AppID, &e.UserID, &e.Category, &e.Type,
			&e.EntityType, &e.EntityID, &e.Payload, &e.OccurredAt); err != nil {
			return nil, errors.Join(ErrStorage, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`DELETE FROM events WHERE id = $1`, id)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range ids {
		if _, err := results.Exec(); err != nil {
			return errors.Join(ErrStorage, err)
		}
	}
	return nil
}
