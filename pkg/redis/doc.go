// Package redis provides a connection helper for the go-redis client.
//
// The engine uses Redis for the per-user unread-count cache; this package
// only owns establishing and health-checking the connection.
package redis
