// Package database opens the shared relational store used by the video record
// store and the job queue.
//
// SQLite (modernc.org/sqlite) is the default for single-instance deployments;
// Postgres (lib/pq) lets several daemons share jobs and video leases when the
// RabbitMQ queue backend is used. Queries are written once with ? placeholders
// and rebound for Postgres. Timestamps are stored as fixed-width UTC text so
// cutoff comparisons work identically in both dialects.
package database
