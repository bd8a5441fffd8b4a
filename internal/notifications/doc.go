// Package notifications pushes job outcomes to ntfy.
//
// NewService returns a no-op when no topic is configured, so callers publish
// unconditionally. Per-event toggles in [notifications] suppress outcomes the
// user does not want on their phone.
package notifications
