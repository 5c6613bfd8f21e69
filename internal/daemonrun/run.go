package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/logging"
	"reelsmith/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the reelsmith daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	for _, failed := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "run `reelsmith deps` for details"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "reelsmith.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	q, err := rt.NewQueue()
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.NewRouter(api.Options{
		Queue:   q,
		Videos:  rt.Videos,
		Jobs:    rt.Jobs,
		Checks:  rt.HealthChecks(),
		Monitor: rt.Metrics,
		Blobs:   rt.BlobServer(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}

	d, err := daemon.New(cfg, daemon.Components{
		Queue:   q,
		Jobs:    rt.Jobs,
		Videos:  rt.Videos,
		Handler: router,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.String(logging.FieldErrorHint, "check configuration, database access and paths.api_bind"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
			logging.Error(err),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelsmith daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpegBin := orDefault(cfg.Media.FFmpegBinary, "ffmpeg")
	ffprobeBin := orDefault(cfg.Media.FFprobeBinary, "ffprobe")
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpegBin)),
		logging.String("ffmpeg_binary", ffmpegBin),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobeBin)),
		logging.String("ffprobe_binary", ffprobeBin),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("speech_key_present", strings.TrimSpace(cfg.Speech.APIKey) != ""),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.String("queue_backend", cfg.Queue.Backend),
		logging.String("database_driver", cfg.Database.Driver),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
