// Package services defines shared utilities consumed by the pipeline stage
// executors and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp document IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the retry policy buckets the pipeline coordinator acts on
//     (permanent, transient, conflict, exhausted).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
