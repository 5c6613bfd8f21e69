// Package queueaccess gives CLI commands one view of jobs and videos whether
// or not the daemon is running.
//
// A live daemon is reached over its HTTP API. Without one, reads go straight
// to the database and writes fail with ErrDaemonRequired, because only the
// daemon owns workers that can run a submitted job.
package queueaccess
