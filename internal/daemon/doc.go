// Package daemon coordinates the long-running Reelsmith process.
//
// It runs the job queue and the HTTP API under a single lifecycle with
// flock-based locking to prevent multiple instances sharing one data
// directory. While running it periodically reclaims video leases whose worker
// stopped heartbeating and removes old scratch directories from the work dir.
//
// Keep orchestration logic here: pipeline stages live in internal/pipeline and
// the composition of gateways and stores lives in internal/daemonrun, while
// the daemon focuses on startup, shutdown, and high level coordination.
package daemon
