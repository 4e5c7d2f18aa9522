// Package logger configures structured logging for the event sync engine.
//
// It wraps log/slog with a small factory that picks the output format and
// level per environment, injects request-scoped attributes from context, and
// ships the attribute helpers shared across packages so log keys stay
// consistent (user_id, app_id, event_type, ...).
//
// Usage:
//
//	log := logger.New(logger.WithProduction("eventsync"))
//	log.InfoContext(ctx, "event published", logger.EventType("notification.created"))
package logger
