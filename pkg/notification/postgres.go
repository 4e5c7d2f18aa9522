package notification

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

// PostgresStorage is the production Storage backed by pgx.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a Storage on top of an existing connection pool.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

const itemColumns = `
	n.id, n.app_id, n.external_id, n.user_id, n.title, n.body, n.action_url,
	n.priority, n.expires_at, n.created_at,
	s.status, s.sent_at, s.read_at, s.dismissed_at, s.clicked_at, s.dismissed_from`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(
		&it.Notification.ID, &it.Notification.AppID, &it.Notification.ExternalID,
		&it.Notification.UserID, &it.Notification.Title, &it.Notification.Body,
		&it.Notification.ActionURL, &it.Notification.Priority,
		&it.Notification.ExpiresAt, &it.Notification.CreatedAt,
		&it.State.Status, &it.State.SentAt, &it.State.ReadAt,
		&it.State.DismissedAt, &it.State.ClickedAt, &it.State.DismissedFrom)
	if err != nil {
		return Item{}, err
	}
	it.State.NotificationID = it.Notification.ID
	it.State.UserID = it.Notification.UserID
	return it, nil
}

// Create writes the notification and its initial state in one transaction.
func (s *PostgresStorage) Create(ctx context.Context, n Notification, st State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (id, app_id, external_id, user_id, title, body, action_url, priority, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.AppID, n.ExternalID, n.UserID, n.Title, n.Body, n.ActionURL, n.Priority, n.ExpiresAt, n.CreatedAt)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateExternalID, n.AppID, n.ExternalID)
		}
		return errors.Join(ErrStorage, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_states (notification_id, user_id, status, sent_at)
		VALUES ($1, $2, $3, $4)`,
		st.NotificationID, st.UserID, st.Status, st.SentAt)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, id uuid.UUID) (Notification, State, error) {
	q := `
		SELECT` + itemColumns + `
		FROM notifications n
		JOIN notification_states s ON s.notification_id = n.id
		WHERE n.id = $1`

	it, err := scanItem(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if pg.IsNotFound(err) {
			return Notification{}, State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Notification{}, State{}, errors.Join(ErrStorage, err)
	}
	return it.Notification, it.State, nil
}

func (s *PostgresStorage) Query(ctx context.Context, userID string, f Filter) ([]Item, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	q := `
		SELECT` + itemColumns + `
		FROM notifications n
		JOIN notification_states s ON s.notification_id = n.id
		WHERE n.user_id = $1`
	args := []any{userID}

	// Content past its expiry never surfaces, even before the expiry worker
	// has swept it. Explicitly filtering for expired rows lifts that.
	if f.Status == nil || *f.Status != StatusExpired {
		q += ` AND (n.expires_at IS NULL OR n.expires_at >= now())`
	}

	if f.AppID != "" {
		args = append(args, f.AppID)
		q += fmt.Sprintf(" AND n.app_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		q += fmt.Sprintf(" AND s.status = $%d", len(args))
	}

	// Priority order is fixed; CASE keeps it independent of collation.
	q += `
		ORDER BY CASE n.priority
			WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0
		END DESC, n.created_at DESC`
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.Join(ErrStorage, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return items, nil
}

// UpdateState applies the new state only if the row still holds
// expectedStatus, so racing transitions resolve to exactly one winner.
func (s *PostgresStorage) UpdateState(ctx context.Context, id uuid.UUID, expectedStatus Status, st State) error {
	const q = `
		UPDATE notification_states
		SET status = $3, read_at = $4, dismissed_at = $5, clicked_at = $6, dismissed_from = $7
		WHERE notification_id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, q, id, expectedStatus,
		st.Status, st.ReadAt, st.DismissedAt, st.ClickedAt, st.DismissedFrom)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing row.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notification_states WHERE notification_id = $1)`, id,
		).Scan(&exists); err != nil {
			return errors.Join(ErrStorage, err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: status is no longer %s", ErrStateConflict, expectedStatus)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, id uuid.UUID) error {
	// notification_states cascades on the foreign key.
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStorage) ListExpirable(ctx context.Context, now time.Time, limit int) ([]Item, error) {
	q := `
		SELECT` + itemColumns + `
		FROM notifications n
		JOIN notification_states s ON s.notification_id = n.id
		WHERE n.expires_at IS NOT NULL AND n.expires_at < $1
		  AND s.status IN ('unread', 'read')
		ORDER BY n.expires_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.Join(ErrStorage, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return items, nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM notifications n
		JOIN notification_states s ON s.notification_id = n.id
		WHERE n.user_id = $1 AND s.status = 'unread'
		  AND (n.expires_at IS NULL OR n.expires_at >= now())`

	var count int
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&count); err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return count, nil
}

func (s *PostgresStorage) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	const q = `
		DELETE FROM notifications
		WHERE id IN (
			SELECT n.id
			FROM notifications n
			JOIN notification_states s ON s.notification_id = n.id
			WHERE s.status = 'expired' AND n.expires_at < $1
			LIMIT $2)`

	tag, err := s.pool.Exec(ctx, q, cutoff, limit)
	if err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return int(tag.RowsAffected()), nil
}
