package queue

import (
	"context"
	"sync"

	"reelsmith/internal/logging"
)

// InProcess runs jobs on goroutines in this process. Workers bounds how many
// run at once; zero or less means no bound.
type InProcess struct {
	*dispatcher

	slots chan struct{}
	base  context.Context
	stop  context.CancelFunc

	lifecycle sync.Mutex
	closed    bool
	wg        sync.WaitGroup
}

// NewInProcess constructs the in-process backend. Call Start before Submit.
func NewInProcess(store *Store, runner Runner, videos Videos, opts Options) *InProcess {
	base, cancel := context.WithCancel(context.Background())
	q := &InProcess{
		dispatcher: newDispatcher(store, runner, videos, opts),
		base:       base,
		stop:       cancel,
	}
	if opts.Workers > 0 {
		q.slots = make(chan struct{}, opts.Workers)
	}
	return q
}

// Start fails jobs a previous process of this host left unfinished; their
// goroutines are gone so nothing else would ever finish them.
func (q *InProcess) Start(ctx context.Context) error {
	jobs, err := q.store.FailOrphaned(ctx, q.owner)
	if err != nil {
		return err
	}
	if len(jobs) > 0 {
		q.logger.Info("failed orphaned jobs", logging.Int("count", len(jobs)))
	}
	q.releaseVideos(ctx, jobs)
	go q.holdWaiting(q.base)
	return nil
}

func (q *InProcess) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	q.lifecycle.Lock()
	closed := q.closed
	q.lifecycle.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	job, err := q.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	q.lifecycle.Lock()
	if q.closed {
		q.lifecycle.Unlock()
		q.abandon(ctx, job.ID, ReasonShutdown)
		return nil, ErrShuttingDown
	}
	q.wg.Add(1)
	q.lifecycle.Unlock()

	go q.dispatch(job.ID)
	return job, nil
}

func (q *InProcess) dispatch(jobID string) {
	defer q.wg.Done()
	if q.slots != nil {
		select {
		case q.slots <- struct{}{}:
			defer func() { <-q.slots }()
		case <-q.base.Done():
			q.abandon(q.base, jobID, ReasonShutdown)
			return
		}
	}
	if q.base.Err() != nil {
		q.abandon(q.base, jobID, ReasonShutdown)
		return
	}
	q.execute(q.base, jobID)
}

func (q *InProcess) Status(ctx context.Context, jobID string) (*Job, error) {
	return q.status(ctx, jobID)
}

func (q *InProcess) Stats(ctx context.Context) (Stats, error) {
	return q.store.Stats(ctx)
}

func (q *InProcess) Cancel(ctx context.Context, jobID string) error {
	return q.cancel(ctx, jobID)
}

// Shutdown drains queued and running jobs. If ctx ends first the remaining
// jobs are cancelled and recorded as failed.
func (q *InProcess) Shutdown(ctx context.Context) error {
	q.lifecycle.Lock()
	q.closed = true
	q.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.stop()
		return nil
	case <-ctx.Done():
		q.stop()
		<-done
		return ctx.Err()
	}
}
