// Package preflight provides readiness checks for external services,
// binaries and filesystem paths that Reelsmith depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll on start and logs every failed check. A failed
//     check does not stop the daemon because the API and queue stay useful.
//   - The CLI "reelsmith deps" command prints the same results as a table.
//
// Provider checks are gated by their API keys: without a key the generative
// gateway runs in fallback mode and there is nothing to reach.
package preflight
