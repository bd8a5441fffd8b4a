// Package jobs tracks the single background pipeline run each workspace may
// have.
//
// A Registry owns one Job per workspace id. Workers mutate their Job only
// through its locked update methods, and every update mirrors the durable
// fields to <workDir>/pipeline_state.json. Readers take value snapshots.
//
// Status moves one way: running to completed, failed or cancelled. Once a Job
// is terminal its progress fields are frozen, so a worker that keeps running
// after a cancellation cannot publish further step updates. A state file
// still marked running after a restart is reported once by LoadStaleState
// and rewritten as interrupted.
package jobs
