package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reelsmith/internal/services"
)

// ToolError is the single typed failure for every ffmpeg operation.
type ToolError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ffmpeg %s failed", e.Op)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if line := lastLine(e.Stderr); line != "" {
		b.WriteString(": ")
		b.WriteString(line)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// wrapRunError turns an executor failure into a gateway error carrying a
// *ToolError. Deadline and cancellation keep their own markers.
func wrapRunError(ctx context.Context, op string, err error) error {
	toolErr := &ToolError{Op: op, Err: err}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.Code
		toolErr.Stderr = exitErr.Stderr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", services.ErrTimeout, services.Wrap(services.ErrGateway, "", "ffmpeg", "", toolErr))
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", services.ErrCancelled, services.Wrap(services.ErrGateway, "", "ffmpeg", "", toolErr))
	}
	return services.Wrap(services.ErrGateway, "", "ffmpeg", "", toolErr)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
