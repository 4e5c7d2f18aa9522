// Package notification manages notification content and its per-user
// lifecycle state.
//
// A notification's content is immutable after creation; only its state
// record changes, and every state change flows through the lifecycle table
// (unread, read, clicked, dismissed, expired) enforced by the Manager.
// Dismissed and expired are terminal; re-applying the same terminal
// transition is an idempotent no-op. Every accepted mutation is also
// published as an event so downstream subscribers observe the full audit
// trail.
//
// Concurrent transitions on the same notification are serialized by a
// compare-and-swap on the state row's current status, so the first dismissal
// wins without any global locking.
package notification
