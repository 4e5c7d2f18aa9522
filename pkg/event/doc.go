// Package event implements the append-only event log and the publish path of
// the cross-application synchronization engine.
//
// Applications publish immutable events through the Publisher, which
// validates the envelope, stamps a server-side timestamp, appends the event
// to the Store, and then hands the stored event off to the live broadcaster
// and the webhook fan-out asynchronously. A failed publish means the event
// was not recorded; fan-out failures are logged and never surface to the
// publishing caller.
//
// Event types are addressed as "category.type" keys (for example
// "notification.created") and subscriptions select them with glob patterns
// where "*" matches one dot-delimited segment.
package event
