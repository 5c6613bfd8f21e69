// Package services defines shared utilities consumed by the pipeline stages,
// gateways and the job queue.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, video IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures keep their
//     classification (not found, gateway, validation, conflict) no matter how
//     many layers wrap them.
//
// Subpackages hold the HTTP clients for external providers (llm, speech).
package services
