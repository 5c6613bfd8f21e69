package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/videostore"
)

// ErrShuttingDown is returned by Submit once Shutdown has begun.
var ErrShuttingDown = errors.New("queue is shutting down")

// Queue is the job scheduling contract shared by every backend.
type Queue interface {
	// Start recovers state left by a previous process and begins running jobs.
	Start(ctx context.Context) error
	Submit(ctx context.Context, req SubmitRequest) (*Job, error)
	// Status returns the job or an error wrapping services.ErrNotFound.
	Status(ctx context.Context, jobID string) (*Job, error)
	Stats(ctx context.Context) (Stats, error)
	// Cancel stops a waiting or active job. The job is recorded as failed.
	Cancel(ctx context.Context, jobID string) error
	// Shutdown stops accepting jobs and waits for running ones. When ctx ends
	// first, running jobs are cancelled.
	Shutdown(ctx context.Context) error
}

// Runner executes the pipeline for one job.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) error
}

// Videos is the slice of the video store the queue touches.
type Videos interface {
	Status(ctx context.Context, id string) (*videostore.StatusView, error)
	MarkProcessing(ctx context.Context, id string, from stage.Stage) error
	MarkError(ctx context.Context, id, message string) error
}

// Observer receives job lifecycle events for metrics.
type Observer interface {
	JobSubmitted(from stage.Stage)
	// JobStarted and JobStopped bracket a run on a worker.
	JobStarted()
	JobStopped()
	// JobFinished records the outcome of every job, including ones that were
	// cancelled or reclaimed without running.
	JobFinished(status Status, elapsed time.Duration)
}

// Options are shared by every backend.
type Options struct {
	Workers           int
	HeartbeatInterval time.Duration
	Owner             string
	Observer          Observer
	Logger            *slog.Logger
}

// New builds the backend selected by cfg.Queue.Backend.
func New(cfg *config.Config, store *Store, runner Runner, videos Videos, observer Observer, logger *slog.Logger) (Queue, error) {
	opts := Options{
		Workers:           cfg.Queue.Workers,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Observer:          observer,
		Logger:            logger,
	}
	switch cfg.Queue.Backend {
	case config.QueueInProcess, "":
		opts.Owner = hostOwner()
		return NewInProcess(store, runner, videos, opts), nil
	case config.QueueRabbitMQ:
		opts.Owner = fmt.Sprintf("%s-%d", hostOwner(), os.Getpid())
		return DialRabbitMQ(cfg.Queue.AMQPURL, cfg.Queue.QueueName, store, runner, videos, opts)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "queue", "init",
			fmt.Sprintf("unknown backend %q", cfg.Queue.Backend), nil)
	}
}

func hostOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "reelsmith"
	}
	return host
}
