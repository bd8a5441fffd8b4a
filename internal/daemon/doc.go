// Package daemon coordinates the long-running narratord process.
//
// It ties configuration, the workspace store, the job registry and the
// generation worker into a single lifecycle with flock-based locking to
// prevent multiple instances, and serves the HTTP API the CLI talks to.
// Generation requests are resolved against the workspace's remembered
// settings and sources before a job starts; polling reports the live job or,
// once it is gone, the persisted state of the last run.
//
// Keep orchestration logic here: pipeline steps live in workflow and job
// bookkeeping in jobs, while the daemon focuses on startup, shutdown, and
// request handling.
package daemon
