package queueaccess_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"reelsmith/internal/api"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
	"reelsmith/internal/queueaccess"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/videostore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// blockingRunner holds every job until its context is cancelled.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ pipeline.Request) error {
	<-ctx.Done()
	return ctx.Err()
}

type env struct {
	jobs   *queue.Store
	videos *videostore.Store
	video  *videostore.VideoRecord
	server *httptest.Server
}

func newEnv(t *testing.T) env {
	t.Helper()
	db := testsupport.MustOpenDB(t)
	jobs := queue.NewStore(db)
	videos := videostore.New(db)
	q := queue.NewInProcess(jobs, blockingRunner{}, videos, queue.Options{Workers: 1, Owner: "test"})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	router, err := api.NewRouter(api.Options{Queue: q, Videos: videos, Jobs: jobs})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return env{jobs: jobs, videos: videos, video: testsupport.NewVideo(t, videos, "clip"), server: server}
}

func TestHTTPAccessRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	access := queueaccess.NewHTTPAccess(e.server.URL, nil)

	job, err := access.Submit(ctx, queue.SubmitRequest{VideoID: e.video.ID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID == "" || job.VideoID != e.video.ID {
		t.Fatalf("unexpected job %+v", job)
	}

	if _, err := access.Submit(ctx, queue.SubmitRequest{VideoID: e.video.ID, UserID: "user-1"}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second submit err = %v, want conflict", err)
	}

	fetched, err := access.Job(ctx, job.ID)
	if err != nil || fetched.ID != job.ID {
		t.Fatalf("Job: %+v, %v", fetched, err)
	}

	status, err := access.VideoStatus(ctx, e.video.ID)
	if err != nil {
		t.Fatalf("VideoStatus: %v", err)
	}
	if status.Status != string(videostore.StatusProcessing) {
		t.Fatalf("video status = %s, want processing", status.Status)
	}

	detail, err := access.Video(ctx, e.video.ID)
	if err != nil || detail.Video == nil || detail.Video.Title != "clip" {
		t.Fatalf("Video: %+v, %v", detail, err)
	}

	listed, err := access.VideoJobs(ctx, e.video.ID, 5)
	if err != nil || len(listed) != 1 {
		t.Fatalf("VideoJobs: %v, %v", listed, err)
	}

	if _, err := access.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestHTTPAccessMapsErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	access := queueaccess.NewHTTPAccess(e.server.URL, nil)

	if _, err := access.Job(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Job err = %v, want not found", err)
	}
	if _, err := access.VideoStatus(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("VideoStatus err = %v, want not found", err)
	}
	if _, err := access.Submit(ctx, queue.SubmitRequest{VideoID: e.video.ID}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Submit err = %v, want validation", err)
	}
}

func TestOpenWithFallbackUsesStoreWhenDaemonDown(t *testing.T) {
	db := testsupport.MustOpenDB(t)
	jobs := queue.NewStore(db)
	videos := videostore.New(db)
	video := testsupport.NewVideo(t, videos, "offline")

	opened := false
	session, err := queueaccess.OpenWithFallback(context.Background(), "http://127.0.0.1:1", func() (queueaccess.Store, error) {
		opened = true
		return queueaccess.Store{Access: queueaccess.NewStoreAccess(jobs, videos)}, nil
	})
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()

	if !opened || session.Live {
		t.Fatalf("expected store fallback, live=%v opened=%v", session.Live, opened)
	}
	status, err := session.Access.VideoStatus(context.Background(), video.ID)
	if err != nil || status.Status != string(videostore.StatusUploading) {
		t.Fatalf("VideoStatus: %+v, %v", status, err)
	}
	if _, err := session.Access.Submit(context.Background(), queue.SubmitRequest{VideoID: video.ID, UserID: "u"}); !errors.Is(err, queueaccess.ErrDaemonRequired) {
		t.Fatalf("Submit err = %v, want ErrDaemonRequired", err)
	}
}

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	e := newEnv(t)
	session, err := queueaccess.OpenWithFallback(context.Background(), e.server.URL, nil)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if !session.Live {
		t.Fatal("expected live session")
	}
	stats, err := session.Access.Stats(context.Background())
	if err != nil || stats.Active != 0 || stats.Waiting != 0 {
		t.Fatalf("Stats: %+v, %v", stats, err)
	}
}
