// Package poller drives a Job from the caller's side. It starts a Worker or
// attaches to the one already running for the workspace, then reads snapshots
// at a fixed interval until a terminal state appears. A dropped caller can
// reconnect by polling again; the Worker never notices.
package poller
