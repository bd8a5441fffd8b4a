// Package events publishes job lifecycle events on NATS so other services can
// react to finished runs. Publishing is best-effort: a missing or unreachable
// server never affects the job itself.
package events
