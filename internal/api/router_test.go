package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"reelsmith/internal/api"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/videostore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      map[string]*queue.Job
	submitErr error
	cancelled []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: map[string]*queue.Job{}}
}

func (q *fakeQueue) Start(context.Context) error { return nil }

func (q *fakeQueue) Submit(_ context.Context, req queue.SubmitRequest) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return nil, q.submitErr
	}
	if strings.TrimSpace(req.VideoID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "videoId is required", nil)
	}
	job := &queue.Job{
		ID:             fmt.Sprintf("job-%d", len(q.jobs)+1),
		VideoID:        req.VideoID,
		UserID:         req.UserID,
		RequestedStage: stage.ExtractAudio,
		Status:         queue.StatusWaiting,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	q.jobs[job.ID] = job
	return job, nil
}

func (q *fakeQueue) Status(_ context.Context, id string) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "status", "job "+id, nil)
	}
	clone := *job
	return &clone, nil
}

func (q *fakeQueue) Stats(context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var stats queue.Stats
	for _, job := range q.jobs {
		switch job.Status {
		case queue.StatusWaiting:
			stats.Waiting++
		case queue.StatusActive:
			stats.Active++
		case queue.StatusCompleted:
			stats.Completed++
		case queue.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (q *fakeQueue) Cancel(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return services.Wrap(services.ErrNotFound, "", "cancel", "job "+id, nil)
	}
	if job.Status.Terminal() {
		return services.Wrap(services.ErrConflict, "", "cancel", "job already finished", nil)
	}
	job.Status = queue.StatusFailed
	job.FailureReason = queue.ReasonCancelled
	q.cancelled = append(q.cancelled, id)
	return nil
}

func (q *fakeQueue) Shutdown(context.Context) error { return nil }

type healthRecorder struct {
	mu       sync.Mutex
	observed []stage.Health
}

func (h *healthRecorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("reelsmith_jobs_active 0\n"))
	})
}

func (h *healthRecorder) ObserveHealth(health stage.Health) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observed = append(h.observed, health)
}

type harness struct {
	queue   *fakeQueue
	store   *videostore.Store
	blobs   *storage.Local
	monitor *healthRecorder
	router  http.Handler
}

func newHarness(t *testing.T, checks ...api.HealthCheck) *harness {
	t.Helper()
	blobs, err := storage.NewLocal(storage.LocalOptions{
		Root:       t.TempDir(),
		SigningKey: "secret",
		BaseURL:    "http://example.test/api/blobs",
	})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	h := &harness{
		queue:   newFakeQueue(),
		store:   videostore.New(testsupport.MustOpenDB(t)),
		blobs:   blobs,
		monitor: &healthRecorder{},
	}
	router, err := api.NewRouter(api.Options{
		Queue:   h.queue,
		Videos:  h.store,
		Checks:  checks,
		Monitor: h.monitor,
		Blobs:   blobs,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	h.router = router
	return h
}

func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		var raw []byte
		switch v := body.(type) {
		case string:
			raw = []byte(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			raw = encoded
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSubmitAndFetchJob(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/jobs", queue.SubmitRequest{VideoID: "vid-1", UserID: "user-1"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	submitted := decode[api.SubmitResponse](t, w)
	if submitted.JobID == "" || submitted.Job.VideoID != "vid-1" {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}
	if submitted.Job.CreatedAt != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected createdAt format: %q", submitted.Job.CreatedAt)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id header")
	}

	w = h.do(t, http.MethodGet, "/api/jobs/"+submitted.JobID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	job := decode[api.Job](t, w)
	if job.Status != string(queue.StatusWaiting) || job.RequestedStage != string(stage.ExtractAudio) {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestSubmitErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   any
		status int
		kind   services.ErrorKind
	}{
		{name: "malformed body", body: "{not json", status: http.StatusBadRequest, kind: services.KindValidation},
		{name: "validation", body: queue.SubmitRequest{UserID: "user-1"}, status: http.StatusBadRequest, kind: services.KindValidation},
		{
			name:   "conflict",
			err:    services.Wrap(services.ErrConflict, "", "enqueue", "video vid-1 already has an active job", nil),
			body:   queue.SubmitRequest{VideoID: "vid-1", UserID: "user-1"},
			status: http.StatusConflict,
			kind:   services.KindConflict,
		},
		{
			name:   "missing video",
			err:    services.Wrap(services.ErrNotFound, "", "submit", "video vid-9", nil),
			body:   queue.SubmitRequest{VideoID: "vid-9", UserID: "user-1"},
			status: http.StatusNotFound,
			kind:   services.KindNotFound,
		},
		{
			name:   "shutting down",
			err:    queue.ErrShuttingDown,
			body:   queue.SubmitRequest{VideoID: "vid-1", UserID: "user-1"},
			status: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.queue.submitErr = tt.err

			w := h.do(t, http.MethodPost, "/api/jobs", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			resp := decode[api.ErrorResponse](t, w)
			if resp.Error == "" {
				t.Fatal("expected error message")
			}
			if tt.kind != "" && resp.Kind != string(tt.kind) {
				t.Fatalf("expected kind %q, got %q", tt.kind, resp.Kind)
			}
		})
	}
}

func TestCancelJob(t *testing.T) {
	h := newHarness(t)
	job, err := h.queue.Submit(context.Background(), queue.SubmitRequest{VideoID: "vid-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := h.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.Job](t, w)
	if resp.Status != string(queue.StatusFailed) || resp.FailureReason != queue.ReasonCancelled {
		t.Fatalf("unexpected cancelled job: %+v", resp)
	}

	w = h.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second cancel, got %d", w.Code)
	}
	w = h.do(t, http.MethodPost, "/api/jobs/missing/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a", "b"} {
		if _, err := h.queue.Submit(context.Background(), queue.SubmitRequest{VideoID: id, UserID: "u"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	w := h.do(t, http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stats := decode[queue.Stats](t, w)
	if stats.Waiting != 2 {
		t.Fatalf("expected 2 waiting, got %+v", stats)
	}
}

func TestVideoStatusAndDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, h.store, "clip")
	if err := h.store.MarkProcessing(ctx, video.ID, stage.Transcribe); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := h.store.UpdateProgress(ctx, video.ID, stage.Transcribe, 40); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := h.store.PutArtifact(ctx, videostore.Artifact{
		VideoID: video.ID,
		Kind:    videostore.ArtifactAudio,
		Key:     storage.VideoKey(video.ID, "audio.mp3"),
	}); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}

	w := h.do(t, http.MethodGet, "/api/videos/"+video.ID+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	status := decode[api.VideoStatus](t, w)
	if status.Status != string(videostore.StatusProcessing) {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Processing.Stage != string(stage.Transcribe) || status.Processing.Progress != 40 {
		t.Fatalf("unexpected processing: %+v", status.Processing)
	}
	if status.Processing.StartedAt == "" {
		t.Fatal("expected startedAt")
	}

	w = h.do(t, http.MethodGet, "/api/videos/"+video.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	detail := decode[api.VideoDetail](t, w)
	if detail.Video == nil || detail.Video.ID != video.ID {
		t.Fatalf("unexpected detail video: %+v", detail.Video)
	}
	if detail.Transcript != nil {
		t.Fatalf("expected no transcript yet, got %+v", detail.Transcript)
	}
	if len(detail.Artifacts) != 1 || detail.Artifacts[0].Kind != videostore.ArtifactAudio {
		t.Fatalf("unexpected artifacts: %+v", detail.Artifacts)
	}

	for _, target := range []string{"/api/videos/nope/status", "/api/videos/nope"} {
		if w := h.do(t, http.MethodGet, target, nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, w.Code)
		}
	}
}

func TestHealthAggregatesChecks(t *testing.T) {
	h := newHarness(t,
		func(context.Context) stage.Health { return stage.Healthy("storage") },
		func(context.Context) stage.Health { return stage.Unhealthy("ffmpeg", "binary not found") },
	)

	w := h.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	resp := decode[api.HealthResponse](t, w)
	if resp.Status != "degraded" || len(resp.Checks) != 2 {
		t.Fatalf("unexpected health: %+v", resp)
	}
	if resp.Checks[1].Detail != "binary not found" {
		t.Fatalf("expected detail to be preserved, got %+v", resp.Checks[1])
	}
	h.monitor.mu.Lock()
	observed := len(h.monitor.observed)
	h.monitor.mu.Unlock()
	if observed != 2 {
		t.Fatalf("expected 2 observations, got %d", observed)
	}
}

func TestBlobRequiresValidSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := storage.VideoKey("vid-1", "captions.srt")
	if _, err := h.blobs.Put(ctx, key, strings.NewReader("1\n00:00:00,000 --> 00:00:01,000\nHi\n\n"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	signed, err := h.blobs.SignedURL(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}

	w := h.do(t, http.MethodGet, parsed.RequestURI(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Hi") {
		t.Fatalf("unexpected blob body: %q", w.Body.String())
	}

	w = h.do(t, http.MethodGet, parsed.Path+"?expires=1&sig=bad", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", w.Code)
	}
}

func TestBlobNamesOriginalUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := storage.GenerateKey("uploads/user-1", "Holiday Clip.mp4")
	md := map[string]string{storage.MetaOriginalName: "Holiday Clip.mp4"}
	if _, err := h.blobs.Put(ctx, key, strings.NewReader("video"), "", storage.WithMetadata(md)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	signed, err := h.blobs.SignedURL(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}

	w := h.do(t, http.MethodGet, parsed.RequestURI(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `inline; filename="Holiday Clip.mp4"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
}

func TestMetricsAndUnknownRoute(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "reelsmith_jobs_active") {
		t.Fatalf("unexpected metrics response %d: %s", w.Code, w.Body.String())
	}
	w = h.do(t, http.MethodGet, "/api/nothing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	if _, err := api.NewRouter(api.Options{}); err == nil {
		t.Fatal("expected error without queue and store")
	}
}
