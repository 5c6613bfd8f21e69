// Package queue accepts pipeline jobs and runs them asynchronously.
//
// Jobs are persisted in the jobs table and are immutable history: every
// submission, including a regeneration, creates a new row. A job moves
// waiting -> active -> completed|failed and never retries on its own; callers
// resubmit.
//
// Only one job per video may be waiting or active at a time. Submit takes a
// row in video_leases keyed by video id inside the same transaction that
// inserts the job, so a second submission for the same video is rejected with
// services.ErrConflict instead of racing the first. The lease is released when
// the job finishes. Active jobs refresh the lease heartbeat; ReclaimStale fails
// jobs whose worker stopped heartbeating so a crashed process cannot pin a
// video forever.
//
// Two backends share the Queue contract: InProcess runs jobs on goroutines
// bounded by the worker count, and RabbitMQ publishes job ids to a durable
// broker queue consumed with manual acks. Both drive jobs through the same
// dispatcher, so lease, heartbeat and failure handling are identical.
package queue
