package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrGateway       = errors.New("gateway failure")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrCancelled     = errors.New("cancelled")
)

// ErrorKind is the coarse classification surfaced to logs, API responses and
// persisted failure messages.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindGateway       ErrorKind = "gateway_failure"
	KindValidation    ErrorKind = "validation_failure"
	KindConflict      ErrorKind = "conflict_failure"
	KindConfiguration ErrorKind = "configuration"
	KindTimeout       ErrorKind = "timeout"
	KindCancelled     ErrorKind = "cancelled"
	KindUnknown       ErrorKind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrGateway
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails summarizes a classified error.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Hint    string
}

// Details classifies err by its marker. Timeouts and cancellations are checked
// first because they are usually also wrapped as gateway failures.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		details.Kind = KindTimeout
		details.Hint = "raise workflow.stage_timeout_seconds or check the external service"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		details.Kind = KindCancelled
		details.Hint = "job was cancelled; resubmit to run again"
	case errors.Is(err, ErrValidation):
		details.Kind = KindValidation
		details.Hint = "check the submitted video id and stage name"
	case errors.Is(err, ErrConflict):
		details.Kind = KindConflict
		details.Hint = "wait for the active job on this video to finish"
	case errors.Is(err, ErrNotFound):
		details.Kind = KindNotFound
		details.Hint = "run the earlier stage that produces the missing artifact"
	case errors.Is(err, ErrConfiguration):
		details.Kind = KindConfiguration
		details.Hint = "check the reelsmith config file"
	case errors.Is(err, ErrGateway):
		details.Kind = KindGateway
		details.Hint = "inspect the tool or provider output in the logs"
	default:
		details.Kind = KindUnknown
		details.Hint = "check logs for details"
	}
	return details
}

// IsRejection reports whether err should be refused at submission time
// instead of reaching the orchestrator.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
