package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
	"reelsmith/internal/database"
	"reelsmith/internal/generative"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffmpeg"
	"reelsmith/internal/metrics"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
	"reelsmith/internal/storage"
	"reelsmith/internal/videostore"
)

// Runtime holds the stores and gateways shared by the daemon and the
// one-shot CLI commands.
type Runtime struct {
	Config     *config.Config
	DB         *database.DB
	Videos     *videostore.Store
	Jobs       *queue.Store
	Blobs      storage.Gateway
	Media      *ffmpeg.Client
	Generative generative.Gateway
	Metrics    *metrics.Metrics
	Pipeline   *pipeline.Orchestrator
	Logger     *slog.Logger
}

// Open connects the database and builds every gateway from cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := database.OpenConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	blobs, err := storage.New(cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &Runtime{
		Config:     cfg,
		DB:         db,
		Videos:     videostore.New(db),
		Jobs:       queue.NewStore(db),
		Blobs:      blobs,
		Media:      ffmpeg.New(cfg.Media.FFmpegBinary, cfg.Media.FFprobeBinary),
		Generative: generative.New(cfg, logger),
		Metrics:    metrics.New(),
		Logger:     logger,
	}
	rt.Pipeline, err = pipeline.New(pipeline.Dependencies{
		Store:      rt.Videos,
		Blobs:      rt.Blobs,
		Media:      rt.Media,
		Generative: rt.Generative,
		Observer:   rt.Metrics,
		Logger:     logger,
	}, pipeline.SettingsFromConfig(cfg))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return rt, nil
}

// NewQueue builds the configured queue backend running this runtime's pipeline.
func (r *Runtime) NewQueue() (queue.Queue, error) {
	return queue.New(r.Config, r.Jobs, r.Pipeline, r.Videos, r.Metrics, r.Logger)
}

// HealthChecks lists the gateway probes served by /api/health.
func (r *Runtime) HealthChecks() []api.HealthCheck {
	return []api.HealthCheck{
		r.Blobs.Health,
		r.Media.Health,
		r.Generative.Health,
	}
}

// BlobServer returns the local backend when signed URLs are served by the API.
func (r *Runtime) BlobServer() api.BlobServer {
	if local, ok := r.Blobs.(*storage.Local); ok {
		return local
	}
	return nil
}

// Close releases the database connection.
func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
