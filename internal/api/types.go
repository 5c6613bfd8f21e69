package api

import (
	"time"

	"reelsmith/internal/queue"
	"reelsmith/internal/stage"
	"reelsmith/internal/videostore"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue job in a transport-friendly format.
type Job struct {
	ID             string `json:"id"`
	VideoID        string `json:"videoId"`
	UserID         string `json:"userId"`
	RequestedStage string `json:"requestedStage"`
	Status         string `json:"status"`
	FailureReason  string `json:"failureReason,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	ProcessedAt    string `json:"processedAt,omitempty"`
	FinishedAt     string `json:"finishedAt,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// SubmitResponse is returned when a job is accepted.
type SubmitResponse struct {
	JobID string `json:"jobId"`
	Job   Job    `json:"job"`
}

// JobListResponse wraps the recent jobs of one video.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// Processing mirrors videostore.Processing with formatted timestamps.
type Processing struct {
	Stage       string `json:"stage"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// VideoStatus is the status projection consumed by UI layers.
type VideoStatus struct {
	VideoID    string     `json:"videoId"`
	Status     string     `json:"status"`
	Processing Processing `json:"processing"`
}

// VideoDetail is a video record with its transcript and stored artifacts.
type VideoDetail struct {
	Video      *videostore.VideoRecord      `json:"video"`
	Transcript *videostore.TranscriptRecord `json:"transcript,omitempty"`
	Artifacts  []videostore.Artifact        `json:"artifacts"`
}

// HealthResponse aggregates gateway readiness.
type HealthResponse struct {
	Status string        `json:"status"`
	Checks []StageHealth `json:"checks"`
}

// StageHealth mirrors readiness reporting for one gateway.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// FromJob converts a queue job into its transport representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:             job.ID,
		VideoID:        job.VideoID,
		UserID:         job.UserID,
		RequestedStage: string(job.RequestedStage),
		Status:         string(job.Status),
		FailureReason:  job.FailureReason,
		CreatedAt:      formatTime(job.CreatedAt),
		ProcessedAt:    formatTime(job.ProcessedAt),
		FinishedAt:     formatTime(job.FinishedAt),
		UpdatedAt:      formatTime(job.UpdatedAt),
	}
}

// FromJobs converts a slice, preserving order.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusView converts the store projection.
func FromStatusView(view *videostore.StatusView) VideoStatus {
	if view == nil {
		return VideoStatus{}
	}
	return VideoStatus{
		VideoID: view.VideoID,
		Status:  string(view.Status),
		Processing: Processing{
			Stage:       string(view.Processing.Stage),
			Progress:    view.Processing.Progress,
			Error:       view.Processing.Error,
			StartedAt:   formatTime(view.Processing.StartedAt),
			CompletedAt: formatTime(view.Processing.CompletedAt),
		},
	}
}

// FromHealth converts gateway health records. The overall status is "ok" only
// when every check is ready.
func FromHealth(checks []stage.Health) HealthResponse {
	resp := HealthResponse{Status: "ok", Checks: make([]StageHealth, 0, len(checks))}
	for _, h := range checks {
		resp.Checks = append(resp.Checks, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
		if !h.Ready {
			resp.Status = "degraded"
		}
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
