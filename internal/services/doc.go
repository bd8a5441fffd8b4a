// Package services defines shared utilities consumed by the pipeline steps and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp workspace IDs, step labels, overlap window
//     indexes, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (retryable vs permanent) without string matching.
//
// Use these helpers when wiring new step logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
