// Package sanitizer provides string cleaning helpers for user-facing content.
//
// Notification titles and bodies arrive from third-party applications and are
// rendered by multiple consumer apps, so executable markup is stripped before
// anything is persisted. The helpers are pure functions and safe for
// concurrent use.
//
// Usage:
//
//	title := sanitizer.CleanText(input.Title)
//	body := sanitizer.CleanText(input.Body)
package sanitizer
