// Package api is the HTTP surface of the daemon: job submission, job and video
// status, artifact references, queue stats, health and metrics.
//
// # Routes
//
//	POST /api/jobs                 submit {videoId, userId, stage}
//	GET  /api/jobs/:id             job status
//	POST /api/jobs/:id/cancel      cancel a waiting or active job
//	GET  /api/stats                job counts by status
//	GET  /api/videos/:id           video record, transcript and artifacts
//	GET  /api/videos/:id/status    status projection {status, processing}
//	GET  /api/videos/:id/jobs      recent jobs for a video
//	GET  /api/health               gateway readiness
//	GET  /api/blobs/*key           signed local blob download
//	GET  /metrics                  Prometheus exposition
//
// # Errors
//
// Failures are classified with services.Details and written as
// {"error", "kind", "hint"}. Validation maps to 400, not found to 404,
// conflicts to 409, a draining queue to 503 and everything else to 500.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// The router only depends on small interfaces so tests can swap the queue and
// store for fakes.
package api
