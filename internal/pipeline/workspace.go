package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/logging"
	"reelsmith/internal/stage"
)

// workspace is the scratch directory for one stage of one video:
// <work_dir>/<video id>/<stage>. It is emptied before use and removed after.
type workspace struct {
	dir string
}

func newWorkspace(root, videoID string, st stage.Stage) (workspace, error) {
	dir := filepath.Join(root, videoID, strings.ToLower(string(st)))
	if err := os.RemoveAll(dir); err != nil {
		return workspace{}, fmt.Errorf("reset workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	return workspace{dir: dir}, nil
}

func (w workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w workspace) cleanup(logger *slog.Logger) {
	if err := os.RemoveAll(w.dir); err != nil {
		logger.Warn("workspace cleanup failed",
			logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "staging cleanup will remove it later"),
			logging.String("path", w.dir),
			logging.Error(err),
		)
	}
	// Drop the per-video directory once its last stage directory is gone.
	_ = os.Remove(filepath.Dir(w.dir))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
