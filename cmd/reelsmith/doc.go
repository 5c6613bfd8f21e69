// Package main hosts the Reelsmith CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon, ingests local files, submits
// and inspects pipeline jobs, and scaffolds configuration. Job and video
// queries go through the daemon's HTTP API and fall back to read-only database
// access when no daemon answers.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
