// Package async provides a minimal Future abstraction for fire-and-forget
// hand-off with optional result collection.
//
// The event publisher uses it to detach broadcast and webhook fan-out from
// the synchronous publish path: the caller gets its durable-write result
// immediately while fan-out completes in the background.
package async
