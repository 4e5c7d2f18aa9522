// Package webhook delivers events to subscriber endpoints over HTTPS.
//
// Applications register subscriptions through the Registry, naming the event
// patterns they care about. The Fanout queues one delivery per (event,
// matching subscription) pair, and the Worker drains the queue on a sweep
// with bounded concurrency, signing each POST with the subscription's HMAC
// secret. Failed deliveries retry with exponential backoff up to the
// subscription's retry cap; a subscription that fails 100 times in a row is
// deactivated until an operator re-enables it.
//
// Delivery is at-least-once. Receivers should treat repeated deliveries of
// the same event id as no-ops.
package webhook
