package pipeline

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffmpeg"
	"reelsmith/internal/stage"
	"reelsmith/internal/videostore"
)

// handlerCeiling keeps handler-reported progress below 100 until the
// orchestrator has persisted the stage result.
const handlerCeiling = 99

// reporter persists stage progress. Reports never lower the stored value.
type reporter struct {
	store   *videostore.Store
	videoID string
	stage   stage.Stage
	logger  *slog.Logger

	mu      sync.Mutex
	last    int
	sampler *logging.ProgressSampler
}

func newReporter(store *videostore.Store, videoID string, st stage.Stage, logger *slog.Logger) *reporter {
	return &reporter{
		store:   store,
		videoID: videoID,
		stage:   st,
		logger:  logger,
		sampler: logging.NewProgressSampler(5),
	}
}

// report records percent (0..100) for the running stage.
func (r *reporter) report(ctx context.Context, percent float64) {
	r.set(ctx, min(int(math.Floor(percent)), handlerCeiling))
}

func (r *reporter) done(ctx context.Context) {
	r.set(ctx, 100)
}

func (r *reporter) set(ctx context.Context, value int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value <= r.last {
		return
	}
	r.last = value
	if err := r.store.UpdateProgress(ctx, r.videoID, r.stage, value); err != nil {
		r.logger.Warn("progress update failed",
			logging.String(logging.FieldEventType, "progress_persist_failed"),
			logging.String(logging.FieldErrorHint, "status queries may show stale progress"),
			logging.Error(err),
		)
		return
	}
	if r.sampler.ShouldLog(string(r.stage), value) {
		r.logger.Debug("stage progress",
			logging.String(logging.FieldEventType, "stage_progress"),
			logging.Int(logging.FieldProgress, value),
		)
	}
}

// span maps a gateway callback (0..100) onto [from, to] of the stage.
func (r *reporter) span(ctx context.Context, from, to float64) ffmpeg.ProgressFunc {
	return func(percent float64) {
		percent = max(0, min(percent, 100))
		r.report(ctx, from+(to-from)*percent/100)
	}
}
