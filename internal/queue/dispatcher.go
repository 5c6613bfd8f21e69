package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"reelsmith/internal/logging"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/services"
)

// dispatcher holds the submit, execute and cancel logic both backends share.
type dispatcher struct {
	store     *Store
	runner    Runner
	videos    Videos
	observer  Observer
	logger    *slog.Logger
	owner     string
	heartbeat time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func newDispatcher(store *Store, runner Runner, videos Videos, opts Options) *dispatcher {
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	owner := opts.Owner
	if owner == "" {
		owner = hostOwner()
	}
	return &dispatcher{
		store:     store,
		runner:    runner,
		videos:    videos,
		observer:  opts.Observer,
		logger:    logging.NewComponentLogger(opts.Logger, "queue"),
		owner:     owner,
		heartbeat: heartbeat,
		running:   make(map[string]context.CancelFunc),
	}
}

// submit validates req, checks the video exists and records the job with its lease.
func (d *dispatcher) submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	req, from, err := normalize(req)
	if err != nil {
		return nil, err
	}
	view, err := d.videos.Status(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "submit", fmt.Sprintf("video %s", req.VideoID), nil)
	}
	job, err := d.store.Enqueue(ctx, req.VideoID, req.UserID, from, d.owner)
	if err != nil {
		return nil, err
	}
	if err := d.videos.MarkProcessing(ctx, job.VideoID, from); err != nil {
		logging.WarnWithContext(d.jobLogger(ctx, job), "video status not updated on submit", "submit_mark_failed",
			logging.String(logging.FieldErrorHint, "status flips to processing when the job starts"),
			logging.Error(err),
		)
	}
	if d.observer != nil {
		d.observer.JobSubmitted(from)
	}
	d.jobLogger(ctx, job).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String("requested_stage", string(from)),
	)
	return job, nil
}

func (d *dispatcher) status(ctx context.Context, jobID string) (*Job, error) {
	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "status", fmt.Sprintf("job %s", jobID), nil)
	}
	return job, nil
}

// execute runs one job to completion. It never returns an error: every
// outcome is recorded on the job.
func (d *dispatcher) execute(ctx context.Context, jobID string) {
	started, err := d.store.MarkActive(ctx, jobID)
	if err != nil {
		d.logger.Error("job activation failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		d.abandon(ctx, jobID, "job activation failed")
		return
	}
	if !started {
		d.logger.Debug("job no longer waiting; skipped", logging.String(logging.FieldJobID, jobID))
		return
	}
	job, err := d.store.Get(ctx, jobID)
	if err != nil || job == nil {
		d.logger.Error("job vanished after activation", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		d.abandon(ctx, jobID, "job record unreadable after activation")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.track(jobID, cancel)
	defer d.untrack(jobID)

	logger := d.jobLogger(ctx, job)
	if d.observer != nil {
		d.observer.JobStarted()
		defer d.observer.JobStopped()
	}
	start := time.Now()
	logger.Info("job started", logging.String(logging.FieldEventType, "job_start"))

	stopBeat := d.startHeartbeat(runCtx, jobID, logger)
	runErr := d.run(runCtx, job)
	stopBeat()

	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer finishCancel()
	finished, err := d.store.Finish(finishCtx, jobID, runErr)
	if err != nil {
		logger.Error("job outcome not persisted", logging.Error(err))
		return
	}
	if d.observer != nil {
		d.observer.JobFinished(finished.Status, time.Since(start))
	}
	if runErr != nil {
		details := services.Details(runErr)
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Duration("job_duration", time.Since(start)),
			logging.Error(runErr),
		)
		return
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", time.Since(start)),
	)
}

// run calls the runner, turning a panic into a job failure so one bad video
// cannot take the worker down.
func (d *dispatcher) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("pipeline panic", logging.String(logging.FieldJobID, job.ID),
				logging.Any("panic", r), logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("pipeline panic: %v", r)
			markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = d.videos.MarkError(markCtx, job.VideoID, err.Error())
		}
	}()
	return d.runner.Run(ctx, pipeline.Request{
		VideoID: job.VideoID,
		JobID:   job.ID,
		From:    job.RequestedStage,
	})
}

func (d *dispatcher) startHeartbeat(ctx context.Context, jobID string, logger *slog.Logger) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.store.Heartbeat(ctx, jobID); err != nil && ctx.Err() == nil {
					logger.Warn("lease heartbeat failed",
						logging.String(logging.FieldEventType, "lease_heartbeat_failed"),
						logging.String(logging.FieldErrorHint, "the job may be reclaimed if heartbeats keep failing"),
						logging.Error(err),
					)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// holdWaiting keeps the leases of this process's queued jobs fresh until ctx
// ends, so ReclaimStale only takes jobs whose submitter has gone away.
func (d *dispatcher) holdWaiting(ctx context.Context) {
	ticker := time.NewTicker(d.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.store.RefreshWaiting(ctx, d.owner); err != nil && ctx.Err() == nil {
				d.logger.Warn("waiting lease refresh failed",
					logging.String(logging.FieldEventType, "lease_refresh_failed"),
					logging.String(logging.FieldErrorHint, "queued jobs may be reclaimed if refreshes keep failing"),
					logging.Error(err),
				)
			}
		}
	}
}

// cancel fails a waiting job immediately or cancels a running one owned by
// this process.
func (d *dispatcher) cancel(ctx context.Context, jobID string) error {
	job, err := d.status(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return services.Wrap(services.ErrConflict, "", "cancel",
			fmt.Sprintf("job %s already %s", jobID, job.Status), nil)
	}
	if job.Status == StatusWaiting {
		cancelled, err := d.store.CancelWaiting(ctx, jobID)
		if err != nil {
			return err
		}
		if cancelled {
			if err := d.videos.MarkError(ctx, job.VideoID, ReasonCancelled); err != nil {
				d.logger.Warn("video not marked after cancel", logging.String(logging.FieldJobID, jobID), logging.Error(err))
			}
			d.jobLogger(ctx, job).Info("job cancelled before start", logging.String(logging.FieldEventType, "job_cancelled"))
			if d.observer != nil {
				d.observer.JobFinished(StatusFailed, 0)
			}
			return nil
		}
	}
	// Either active or it started between the read and the cancel.
	d.mu.Lock()
	stop, ok := d.running[jobID]
	d.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrConflict, "", "cancel",
			fmt.Sprintf("job %s is running on another worker", jobID), nil)
	}
	stop()
	d.jobLogger(ctx, job).Info("job cancel requested", logging.String(logging.FieldEventType, "job_cancelled"))
	return nil
}

// abandon fails a job that will never run and releases its video.
func (d *dispatcher) abandon(ctx context.Context, jobID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	job, err := d.store.Finish(ctx, jobID, errors.New(reason))
	if err != nil || job == nil {
		d.logger.Error("job abandon failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return
	}
	if err := d.videos.MarkError(ctx, job.VideoID, reason); err != nil {
		d.logger.Warn("video not marked after abandon", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
	if d.observer != nil {
		d.observer.JobFinished(StatusFailed, 0)
	}
}

// releaseVideos marks the videos of reclaimed jobs as errored.
func (d *dispatcher) releaseVideos(ctx context.Context, jobs []*Job) {
	for _, job := range jobs {
		if err := d.videos.MarkError(ctx, job.VideoID, job.FailureReason); err != nil {
			d.logger.Warn("video not marked after reclaim", logging.String(logging.FieldVideoID, job.VideoID), logging.Error(err))
		}
		logging.WarnWithContext(d.jobLogger(ctx, job), "job reclaimed", "job_reclaimed",
			logging.String(logging.FieldErrorHint, "resubmit the video to process it again"),
			logging.String(logging.FieldImpact, "video left in error state"),
			logging.Alert("stale_lease"),
		)
		if d.observer != nil {
			d.observer.JobFinished(StatusFailed, 0)
		}
	}
}

func (d *dispatcher) track(jobID string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.running[jobID] = cancel
	d.mu.Unlock()
}

func (d *dispatcher) untrack(jobID string) {
	d.mu.Lock()
	delete(d.running, jobID)
	d.mu.Unlock()
}

func (d *dispatcher) jobLogger(ctx context.Context, job *Job) *slog.Logger {
	ctx = services.WithVideoID(services.WithJobID(ctx, job.ID), job.VideoID)
	return logging.WithContext(ctx, d.logger)
}

// FailureReason is the message stored on a failed job.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled) {
		return ReasonCancelled
	}
	return services.Details(err).Message
}

// ReclaimStale fails unfinished jobs whose lease heartbeat is older than timeout
// and marks their videos errored. The daemon calls it periodically for both
// backends.
func ReclaimStale(ctx context.Context, store *Store, videos Videos, timeout time.Duration, logger *slog.Logger) (int, error) {
	jobs, err := store.ReclaimStale(ctx, time.Now().Add(-timeout))
	if err != nil {
		return 0, err
	}
	d := newDispatcher(store, nil, videos, Options{Logger: logger})
	d.releaseVideos(ctx, jobs)
	return len(jobs), nil
}
