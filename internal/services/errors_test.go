package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"reelsmith/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrGateway, "RENDER_VIDEO", "ffmpeg", "render failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrGateway) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"RENDER_VIDEO", "ffmpeg", "render failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToGatewayMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrGateway) {
		t.Fatalf("expected gateway marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestDetailsClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.ErrorKind
	}{
		{"not found", services.Wrap(services.ErrNotFound, "TRANSCRIBE", "load audio", "missing", nil), services.KindNotFound},
		{"gateway", services.Wrap(services.ErrGateway, "TRANSCRIBE", "speech", "503", nil), services.KindGateway},
		{"validation", services.Wrap(services.ErrValidation, "", "submit", "bad stage", nil), services.KindValidation},
		{"conflict", services.Wrap(services.ErrConflict, "", "submit", "busy", nil), services.KindConflict},
		{"timeout wins over gateway", fmt.Errorf("%w: %w", services.ErrGateway, services.ErrTimeout), services.KindTimeout},
		{"deadline", fmt.Errorf("stage: %w", context.DeadlineExceeded), services.KindTimeout},
		{"cancel", fmt.Errorf("stage: %w", context.Canceled), services.KindCancelled},
		{"plain", errors.New("mystery"), services.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := services.Details(tt.err)
			if details.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", details.Kind, tt.want)
			}
			if details.Message == "" || details.Hint == "" {
				t.Fatalf("expected message and hint, got %+v", details)
			}
		})
	}
	if services.Details(nil).Kind != services.KindUnknown {
		t.Fatal("expected unknown kind for nil error")
	}
}

func TestIsRejection(t *testing.T) {
	if !services.IsRejection(services.Wrap(services.ErrConflict, "", "", "", nil)) {
		t.Fatal("expected conflict to be rejected at submission")
	}
	if services.IsRejection(services.Wrap(services.ErrGateway, "", "", "", nil)) {
		t.Fatal("gateway failures must reach the orchestrator")
	}
}

func TestRetryPolicyRetriesServerErrors(t *testing.T) {
	var delays []time.Duration
	policy := services.RetryPolicy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  4 * time.Second,
		Sleeper:   func(d time.Duration) { delays = append(delays, d) },
	}
	calls := 0
	err := policy.Do(context.Background(), "probe", func(context.Context) error {
		calls++
		return &services.HTTPStatusError{Service: "llm", StatusCode: 503}
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 failing calls, got %d (%v)", calls, err)
	}
	if len(delays) != 2 || delays[0] != 500*time.Millisecond || delays[1] != time.Second {
		t.Fatalf("unexpected delays %v", delays)
	}
}

func TestRetryPolicyStopsOnClientErrors(t *testing.T) {
	calls := 0
	err := services.DefaultRetryPolicy().Do(context.Background(), "probe", func(context.Context) error {
		calls++
		return &services.HTTPStatusError{Service: "llm", StatusCode: 401}
	})
	var statusErr *services.HTTPStatusError
	if !errors.As(err, &statusErr) || calls != 1 {
		t.Fatalf("expected single non-retried call, got %d (%v)", calls, err)
	}
}

func TestRetryPolicyHonoursRetryAfterCap(t *testing.T) {
	var delays []time.Duration
	policy := services.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Second,
		Sleeper: func(d time.Duration) { delays = append(delays, d) }}
	calls := 0
	_ = policy.Do(context.Background(), "probe", func(context.Context) error {
		calls++
		if calls == 1 {
			return &services.HTTPStatusError{StatusCode: 429, RetryAfter: time.Minute}
		}
		return nil
	})
	if len(delays) != 1 || delays[0] != 4*time.Second {
		t.Fatalf("expected capped retry-after, got %v", delays)
	}
}
