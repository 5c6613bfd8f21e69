// Package staging manages the per-video scratch directories the pipeline
// creates under the work directory (work_dir/<video id>/<stage>).
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelsmith/internal/logging"
)

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes video work directories older than maxAge. Directories of
// videos listed in active are kept regardless of age.
func CleanStale(ctx context.Context, workDir string, maxAge time.Duration, active map[string]struct{}, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, workDir, logger, "stale", func(name string, info os.FileInfo) bool {
		if _, busy := active[name]; busy {
			return false
		}
		return info.ModTime().Before(cutoff)
	})
}

// CleanOrphaned removes every video work directory not listed in active. The
// daemon runs it on start, when no job of this process can still be running.
func CleanOrphaned(ctx context.Context, workDir string, active map[string]struct{}, logger *slog.Logger) CleanResult {
	return sweep(ctx, workDir, logger, "orphaned", func(name string, _ os.FileInfo) bool {
		_, busy := active[name]
		return !busy
	})
}

func sweep(ctx context.Context, workDir string, logger *slog.Logger, reason string, remove func(name string, info os.FileInfo) bool) CleanResult {
	result := CleanResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return result
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: workDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(workDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !remove(entry.Name(), info) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove work directory", "work_cleanup_failed",
				logging.String("path", dirPath),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed work directory",
			logging.String("path", dirPath),
			logging.String("reason", reason),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "work_cleanup"),
		)
	}

	return result
}

// ListDirectories returns all video work directories with their metadata.
func ListDirectories(workDir string) ([]DirInfo, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		dirPath := filepath.Join(workDir, entry.Name())
		size, _ := dirSize(dirPath)

		dirs = append(dirs, DirInfo{
			VideoID: entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}

	return dirs, nil
}

// DirInfo describes one video's work directory.
type DirInfo struct {
	VideoID string
	Path    string
	ModTime time.Time
	Size    int64
}

// dirSize calculates the total size of a directory recursively.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best effort
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
