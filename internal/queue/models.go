package queue

import (
	"strings"
	"time"

	"reelsmith/internal/stage"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Failure reasons recorded by the queue itself rather than the pipeline.
const (
	ReasonCancelled   = "cancelled"
	ReasonInterrupted = "interrupted: worker stopped before the job finished"
	ReasonShutdown    = "queue shut down before the job started"
)

// ParseStatus converts a string into a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusWaiting, StatusActive, StatusCompleted, StatusFailed:
		return s, true
	default:
		return "", false
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one submission of a video to the pipeline.
type Job struct {
	ID             string      `json:"id"`
	VideoID        string      `json:"videoId"`
	UserID         string      `json:"userId"`
	RequestedStage stage.Stage `json:"requestedStage"`
	Status         Status      `json:"status"`
	FailureReason  string      `json:"failureReason,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	ProcessedAt    time.Time   `json:"processedAt,omitzero"`
	FinishedAt     time.Time   `json:"finishedAt,omitzero"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Stats counts jobs by status.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// SubmitRequest asks for videoId to be processed from Stage onward. An empty
// Stage means the whole pipeline.
type SubmitRequest struct {
	VideoID string `json:"videoId" validate:"required,max=128"`
	UserID  string `json:"userId" validate:"required,max=128"`
	Stage   string `json:"stage" validate:"omitempty,max=32"`
}
