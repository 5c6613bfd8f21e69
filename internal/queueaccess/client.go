package queueaccess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reelsmith/internal/api"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
)

const maxErrorBody = 64 * 1024

// NewHTTPAccess returns an Access that talks to the daemon API at baseURL
// (e.g. "http://127.0.0.1:7690").
func NewHTTPAccess(baseURL string, client *http.Client) Access {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpAccess{base: strings.TrimRight(baseURL, "/"), client: client}
}

type httpAccess struct {
	base   string
	client *http.Client
}

func (a *httpAccess) Submit(ctx context.Context, req queue.SubmitRequest) (api.Job, error) {
	var resp api.SubmitResponse
	if err := a.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return api.Job{}, err
	}
	return resp.Job, nil
}

func (a *httpAccess) Job(ctx context.Context, id string) (api.Job, error) {
	var job api.Job
	err := a.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

func (a *httpAccess) VideoJobs(ctx context.Context, videoID string, limit int) ([]api.Job, error) {
	path := "/api/videos/" + url.PathEscape(videoID) + "/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.JobListResponse
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (a *httpAccess) Cancel(ctx context.Context, id string) (api.Job, error) {
	var job api.Job
	err := a.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &job)
	return job, err
}

func (a *httpAccess) Stats(ctx context.Context) (queue.Stats, error) {
	var stats queue.Stats
	err := a.do(ctx, http.MethodGet, "/api/stats", nil, &stats)
	return stats, err
}

func (a *httpAccess) VideoStatus(ctx context.Context, id string) (api.VideoStatus, error) {
	var status api.VideoStatus
	err := a.do(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(id)+"/status", nil, &status)
	return status, err
}

func (a *httpAccess) Video(ctx context.Context, id string) (api.VideoDetail, error) {
	var detail api.VideoDetail
	err := a.do(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(id), nil, &detail)
	return detail, err
}

// Ping reports whether the daemon API answers.
func (a *httpAccess) Ping(ctx context.Context) error {
	var stats queue.Stats
	return a.do(ctx, http.MethodGet, "/api/stats", nil, &stats)
}

func (a *httpAccess) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeError restores the service marker from the API error body so callers
// can use errors.Is just as with direct store access.
func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body api.ErrorResponse
	if err := json.Unmarshal(payload, &body); err != nil || body.Error == "" {
		return services.NewHTTPStatusError("daemon api", resp, payload)
	}
	message := body.Error
	if body.Hint != "" {
		message += " (" + body.Hint + ")"
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %s", queue.ErrShuttingDown, message)
	}
	return fmt.Errorf("%w: %s", markerFor(services.ErrorKind(body.Kind)), message)
}

func markerFor(kind services.ErrorKind) error {
	switch kind {
	case services.KindNotFound:
		return services.ErrNotFound
	case services.KindValidation:
		return services.ErrValidation
	case services.KindConflict:
		return services.ErrConflict
	case services.KindConfiguration:
		return services.ErrConfiguration
	case services.KindTimeout:
		return services.ErrTimeout
	case services.KindCancelled:
		return services.ErrCancelled
	default:
		return services.ErrGateway
	}
}
