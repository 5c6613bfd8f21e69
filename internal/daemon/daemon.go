package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/queue"
	"reelsmith/internal/staging"
)

const (
	shutdownGrace     = 30 * time.Second
	workSweepInterval = time.Hour
)

// Components are the already-built collaborators the daemon runs.
type Components struct {
	Queue  queue.Queue
	Jobs   *queue.Store
	Videos queue.Videos
	// Handler serves the HTTP API. The API is disabled when nil.
	Handler http.Handler
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	queue  queue.Queue
	jobs   *queue.Store
	videos queue.Videos
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	APIAddress   string
	LockFilePath string
	Jobs         queue.Stats
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps.Queue == nil || comps.Jobs == nil || comps.Videos == nil {
		return nil, errors.New("daemon requires config, queue, job store, and video store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		queue:    comps.Queue,
		jobs:     comps.Jobs,
		videos:   comps.Videos,
		api:      newAPIServer(cfg.Paths.APIBind, comps.Handler, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers state left by a previous run and
// begins processing jobs and serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsmith daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.queue.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start queue: %w", err)
	}
	d.reclaim(d.ctx)
	d.cleanWork(d.ctx, true)

	if err := d.api.start(d.ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		_ = d.queue.Shutdown(shutdownCtx)
		cancel()
		d.abortStart()
		return err
	}

	d.wg.Add(1)
	go d.maintain(d.ctx)

	d.running.Store(true)
	d.logger.Info("reelsmith daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String("queue_backend", d.cfg.Queue.Backend),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops the API, drains the queue and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := d.queue.Shutdown(shutdownCtx); err != nil {
		logging.WarnWithContext(d.logger, "queue shutdown incomplete", "queue_shutdown_failed",
			logging.String(logging.FieldErrorHint, "running jobs were cancelled and recorded as failed"),
			logging.Error(err),
		)
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
			logging.Error(err),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reelsmith daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		APIAddress:   d.api.address(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.queue.Stats(ctx); err == nil {
		status.Jobs = stats
	}
	return status
}

// maintain periodically releases leases of jobs whose worker stopped
// heartbeating and sweeps old work directories.
func (d *Daemon) maintain(ctx context.Context) {
	defer d.wg.Done()

	interval := d.cfg.HeartbeatInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	reclaimTicker := time.NewTicker(interval)
	defer reclaimTicker.Stop()
	sweepTicker := time.NewTicker(workSweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaimTicker.C:
			d.reclaim(ctx)
		case <-sweepTicker.C:
			d.cleanWork(ctx, false)
		}
	}
}

func (d *Daemon) reclaim(ctx context.Context) {
	if _, err := queue.ReclaimStale(ctx, d.jobs, d.videos, d.cfg.HeartbeatTimeout(), d.logger); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "stale lease reclaim failed", "lease_reclaim_failed",
			logging.String(logging.FieldErrorHint, "check database connectivity"),
			logging.String(logging.FieldImpact, "videos of crashed jobs stay locked until the next sweep"),
			logging.Error(err),
		)
	}
}

// cleanWork removes scratch directories. On start every directory of a video
// without a live lease is an orphan; afterwards only old ones are removed.
func (d *Daemon) cleanWork(ctx context.Context, startup bool) {
	leased, err := d.jobs.LeasedVideos(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "work cleanup skipped", "work_cleanup_skipped",
			logging.String(logging.FieldErrorHint, "check database connectivity"),
			logging.Error(err),
		)
		return
	}
	if startup {
		staging.CleanOrphaned(ctx, d.cfg.Paths.WorkDir, leased, d.logger)
		return
	}
	retention := time.Duration(d.cfg.Workflow.WorkRetentionHours) * time.Hour
	if retention <= 0 {
		return
	}
	staging.CleanStale(ctx, d.cfg.Paths.WorkDir, retention, leased, d.logger)
}
