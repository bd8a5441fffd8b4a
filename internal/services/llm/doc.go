// Package llm provides an OpenAI-compatible chat and speech client used by
// every model-backed pipeline step.
//
// This package is used by:
//   - Extract step: per-chunk cleaning of raw document text
//   - Script step: free-form transcript generation
//   - TTS-prep step: strict dialogue rewriting, repair prompts, overlap windows
//   - Artifacts step: structured JSON summaries
//   - Audio step: per-turn speech synthesis
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send an ordered message list, receive the assistant text.
// Client.CompleteJSON: system/user prompt pair with a JSON response format.
// Client.Synthesize: render one utterance to audio bytes.
// Client.HealthCheck: verify endpoint and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Retry-After headers are honoured up to the max delay. Context
// cancellation aborts retries immediately.
//
// Failures surface as *TransientError (retryable in kind, attempts exhausted)
// or *PermanentError (rejected outright). Both match services markers with
// errors.Is.
package llm
