package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/generative"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffmpeg"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/videostore"
)

// MediaTool is the subset of the media gateway the stages use.
type MediaTool interface {
	Probe(ctx context.Context, path string) (ffprobe.Info, error)
	ExtractAudio(ctx context.Context, in, out string, opts ffmpeg.AudioOptions, progress ffmpeg.ProgressFunc) error
	Thumbnails(ctx context.Context, in, outDir string, count int, progress ffmpeg.ProgressFunc) ([]ffmpeg.Thumbnail, error)
	RenderWithCaptions(ctx context.Context, in, out, subtitlePath string, opts ffmpeg.RenderOptions, progress ffmpeg.ProgressFunc) error
}

// Observer receives stage outcomes for metrics.
type Observer interface {
	StageFinished(st stage.Stage, outcome string, elapsed time.Duration)
}

// Stage outcomes reported to the Observer.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// Settings holds the per-run knobs taken from config.
type Settings struct {
	WorkDir        string
	StageTimeout   time.Duration
	Audio          ffmpeg.AudioOptions
	ThumbnailCount int
	Render         ffmpeg.RenderOptions
	Voice          string
}

// SettingsFromConfig maps the config sections the stages read.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WorkDir:      cfg.Paths.WorkDir,
		StageTimeout: cfg.StageTimeout(),
		Audio: ffmpeg.AudioOptions{
			Format:  cfg.Media.AudioFormat,
			Bitrate: cfg.Media.AudioBitrate,
		},
		ThumbnailCount: cfg.Media.ThumbnailCount,
		Render: ffmpeg.RenderOptions{
			FPS:     cfg.Media.RenderFPS,
			Bitrate: cfg.Media.RenderBitrate,
			Codec:   cfg.Media.RenderCodec,
		},
		Voice: cfg.Speech.Voice,
	}
}

// Dependencies are the collaborators injected into the Orchestrator.
type Dependencies struct {
	Store      *videostore.Store
	Blobs      storage.Gateway
	Media      MediaTool
	Generative generative.Gateway
	Observer   Observer
	Logger     *slog.Logger
}

// Request names the video and the first stage to run.
type Request struct {
	VideoID string
	JobID   string
	From    stage.Stage
}

type stageFunc func(ctx context.Context, snap Snapshot, ws workspace, rep *reporter) (result, error)

// Orchestrator executes pipeline runs. It holds no per-run state and is safe
// for concurrent runs on different videos; callers must not run the same
// video twice at once.
type Orchestrator struct {
	deps     Dependencies
	settings Settings
	logger   *slog.Logger
	handlers map[stage.Stage]stageFunc
}

// New constructs an Orchestrator.
func New(deps Dependencies, settings Settings) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: video store is required")
	case deps.Blobs == nil:
		return nil, errors.New("pipeline: storage gateway is required")
	case deps.Media == nil:
		return nil, errors.New("pipeline: media gateway is required")
	case deps.Generative == nil:
		return nil, errors.New("pipeline: generative gateway is required")
	}
	if strings.TrimSpace(settings.WorkDir) == "" {
		return nil, errors.New("pipeline: work directory is required")
	}
	if settings.ThumbnailCount <= 0 {
		settings.ThumbnailCount = 8
	}
	o := &Orchestrator{
		deps:     deps,
		settings: settings,
		logger:   logging.NewComponentLogger(deps.Logger, "pipeline"),
	}
	o.handlers = map[stage.Stage]stageFunc{
		stage.ExtractAudio:      o.extractAudio,
		stage.Transcribe:        o.transcribe,
		stage.EnhanceScript:     o.enhanceScript,
		stage.GenerateVoiceover: o.generateVoiceover,
		stage.DetectScenes:      o.detectScenes,
		stage.GenerateCaptions:  o.generateCaptions,
		stage.RenderVideo:       o.renderVideo,
	}
	return o, nil
}

// Run executes req.From and every later stage. It returns nil once the video
// is ready. Any other return means the video was marked as errored, except
// for validation and not-found errors raised before the run began.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	from := req.From
	if from == "" {
		from = stage.ExtractAudio
	}
	if !from.Runnable() {
		return services.Wrap(services.ErrValidation, "", "run", fmt.Sprintf("stage %q is not runnable", from), nil)
	}
	if strings.TrimSpace(req.VideoID) == "" {
		return services.Wrap(services.ErrValidation, "", "run", "video id is required", nil)
	}

	ctx = services.WithVideoID(services.WithJobID(ctx, req.JobID), req.VideoID)
	logger := logging.WithContext(ctx, o.logger)

	view, err := o.deps.Store.Status(ctx, req.VideoID)
	if err != nil {
		return err
	}
	if view == nil {
		return services.Wrap(services.ErrNotFound, "", "run", fmt.Sprintf("video %s", req.VideoID), nil)
	}
	if err := o.deps.Store.MarkProcessing(ctx, req.VideoID, from); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	runStart := time.Now()
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("from_stage", string(from)),
	)
	for _, st := range stage.From(from) {
		if err := o.runStage(ctx, req.VideoID, st); err != nil {
			return err
		}
	}
	logger.Info("pipeline run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Duration("run_duration", time.Since(runStart)),
	)
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, videoID string, st stage.Stage) error {
	start := time.Now()
	handler, ok := o.handlers[st]
	if !ok {
		return o.stageFailed(ctx, videoID, st, start, fmt.Errorf("no handler for stage %s", st))
	}

	stageCtx := services.WithStage(ctx, string(st))
	logger := logging.WithContext(stageCtx, o.logger)
	if o.settings.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, o.settings.StageTimeout)
		defer cancel()
	}

	if err := o.deps.Store.BeginStage(stageCtx, videoID, st); err != nil {
		return o.stageFailed(ctx, videoID, st, start, o.classify(stageCtx, ctx, st, fmt.Errorf("begin stage: %w", err)))
	}
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	rep := newReporter(o.deps.Store, videoID, st, logger)
	ws, err := newWorkspace(o.settings.WorkDir, videoID, st)
	if err != nil {
		return o.stageFailed(ctx, videoID, st, start, err)
	}
	defer ws.cleanup(logger)

	snap, err := o.loadSnapshot(stageCtx, videoID)
	if err != nil {
		return o.stageFailed(ctx, videoID, st, start, o.classify(stageCtx, ctx, st, err))
	}
	res, err := handler(stageCtx, snap, ws, rep)
	if err == nil {
		err = res.apply(stageCtx, o, snap)
	}
	if err != nil {
		return o.stageFailed(ctx, videoID, st, start, o.classify(stageCtx, ctx, st, err))
	}
	// The render result completes the record itself, which already sets 100.
	if st != stage.RenderVideo {
		rep.done(stageCtx)
	}
	o.observe(st, OutcomeSucceeded, time.Since(start))
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

// stageFailed counts the failed stage and records err on the video.
func (o *Orchestrator) stageFailed(ctx context.Context, videoID string, st stage.Stage, start time.Time, err error) error {
	o.observe(st, outcomeFor(err), time.Since(start))
	return o.fail(ctx, videoID, st, err)
}

// classify tags deadline and cancellation failures so they surface with the
// right kind and message.
func (o *Orchestrator) classify(stageCtx, runCtx context.Context, st stage.Stage, err error) error {
	switch {
	case runCtx.Err() != nil:
		return services.Wrap(services.ErrCancelled, string(st), "run", "cancelled", err)
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		timeout := services.Wrap(services.ErrTimeout, string(st), "run",
			fmt.Sprintf("stage exceeded %s", o.settings.StageTimeout), err)
		return fmt.Errorf("%w: %w", services.ErrGateway, timeout)
	default:
		return err
	}
}

// fail records err on the video and returns it. The record write uses a
// context detached from cancellation so a cancelled job still lands in error.
func (o *Orchestrator) fail(ctx context.Context, videoID string, st stage.Stage, err error) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	message := failureMessage(err)
	details := services.Details(err)
	logging.ErrorWithContext(logging.WithContext(services.WithStage(ctx, string(st)), o.logger),
		"stage failed", "stage_failure",
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(err),
	)
	if markErr := o.deps.Store.MarkError(persistCtx, videoID, message); markErr != nil {
		o.logger.Error("failed to persist stage failure", logging.Error(markErr))
	}
	return err
}

func failureMessage(err error) string {
	if errors.Is(err, services.ErrCancelled) {
		return "cancelled"
	}
	return strings.TrimSpace(err.Error())
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, services.ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, services.ErrTimeout):
		return OutcomeTimeout
	default:
		return OutcomeFailed
	}
}

func (o *Orchestrator) observe(st stage.Stage, outcome string, elapsed time.Duration) {
	if o.deps.Observer != nil {
		o.deps.Observer.StageFinished(st, outcome, elapsed)
	}
}
