package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"reelsmith/internal/config"
	"reelsmith/internal/deps"
	"reelsmith/internal/services"
	"reelsmith/internal/services/llm"
	"reelsmith/internal/services/speech"
)

const providerCheckTimeout = 30 * time.Second

// healthChecker is satisfied by the llm and speech clients.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckLLM verifies that the chat-completion API is reachable and the key is
// valid. It uses a single attempt (no retries).
func CheckLLM(ctx context.Context, cfg config.LLM) Result {
	const name = "LLM provider"
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing (fallback mode)"}
	}
	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryPolicy(services.RetryPolicy{Attempts: 1}))
	return checkProvider(ctx, name, client)
}

// CheckSpeech verifies that the transcription/speech API accepts the key.
func CheckSpeech(ctx context.Context, cfg config.Speech) Result {
	const name = "Speech provider"
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing (fallback mode)"}
	}
	client := speech.NewClient(speech.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	}, speech.WithRetryPolicy(services.RetryPolicy{Attempts: 1}))
	return checkProvider(ctx, name, client)
}

func checkProvider(ctx context.Context, name string, client healthChecker) Result {
	checkCtx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries for the given config. Both
// the daemon and the CLI deps command use this.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.MediaRequirements(cfg.Media.FFmpegBinary, cfg.Media.FFprobeBinary))
}

// summarizeProviderError produces a human-readable summary for provider health check failures.
func summarizeProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	var statusErr *services.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	return err.Error()
}
