package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToConnect       = errors.New("pg: failed to open db connection")
	ErrFailedToParseConfig   = errors.New("pg: failed to parse db config")
	ErrHealthcheckFailed     = errors.New("pg: healthcheck failed")
	ErrFailedToMigrate       = errors.New("pg: failed to apply migrations")
	ErrMigrationsDirNotFound = errors.New("pg: migrations directory not found")
	ErrMigrationsPathMissing = errors.New("pg: migrations path not provided")
)

// IsNotFound reports whether err is pgx.ErrNoRows.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports a unique constraint violation (SQLSTATE 23505),
// used to map duplicate external IDs to conflict errors.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports a referential integrity violation (SQLSTATE 23503).
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
