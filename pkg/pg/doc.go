// Package pg provides PostgreSQL connection and migration helpers for the
// engine's relational stores.
//
// Connect builds a pgx connection pool with retry, Migrate applies the SQL
// migrations under migrations/ with goose, and the error helpers classify
// driver errors (unique violation, missing row) so storage implementations
// can translate them into domain errors.
package pg
