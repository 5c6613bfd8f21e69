package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/videostore"
)

type funcRunner struct {
	mu    sync.Mutex
	calls []pipeline.Request
	fn    func(ctx context.Context, req pipeline.Request) error
}

func (r *funcRunner) Run(ctx context.Context, req pipeline.Request) error {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	if r.fn == nil {
		return nil
	}
	return r.fn(ctx, req)
}

func (r *funcRunner) first() pipeline.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return pipeline.Request{}
	}
	return r.calls[0]
}

func (r *funcRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	store  *queue.Store
	videos *videostore.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testsupport.MustOpenDB(t)
	return fixture{store: queue.NewStore(db), videos: videostore.New(db)}
}

func waitForStatus(t *testing.T, store *queue.Store, jobID string, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := store.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s status = %v, want %s", jobID, job, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
