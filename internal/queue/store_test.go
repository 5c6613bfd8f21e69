package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/testsupport"
)

func TestEnqueueRejectsSecondJobForVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, f.videos, "lease")

	first, err := f.store.Enqueue(ctx, video.ID, "user-1", stage.ExtractAudio, "host")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if first.Status != queue.StatusWaiting || first.RequestedStage != stage.ExtractAudio {
		t.Fatalf("unexpected job %+v", first)
	}

	_, err = f.store.Enqueue(ctx, video.ID, "user-1", stage.Transcribe, "host")
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second Enqueue error = %v, want conflict", err)
	}

	if _, err := f.store.Finish(ctx, first.ID, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	second, err := f.store.Enqueue(ctx, video.ID, "user-1", stage.Transcribe, "host")
	if err != nil {
		t.Fatalf("Enqueue after finish: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("regeneration must create a new job")
	}
}

func TestJobLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, f.videos, "lifecycle")

	job, err := f.store.Enqueue(ctx, video.ID, "user-1", stage.ExtractAudio, "host")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	started, err := f.store.MarkActive(ctx, job.ID)
	if err != nil || !started {
		t.Fatalf("MarkActive = %v, %v", started, err)
	}
	if again, _ := f.store.MarkActive(ctx, job.ID); again {
		t.Fatal("MarkActive must only start a waiting job once")
	}

	failed, err := f.store.Finish(ctx, job.ID, services.Wrap(services.ErrGateway, "RENDER_VIDEO", "render", "ffmpeg failed", nil))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.FailureReason == "" {
		t.Fatalf("finished job = %+v", failed)
	}
	if failed.ProcessedAt.IsZero() || failed.FinishedAt.IsZero() {
		t.Fatalf("timestamps not recorded: %+v", failed)
	}

	// A terminal job is immutable history.
	after, err := f.store.Finish(ctx, job.ID, nil)
	if err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if after.Status != queue.StatusFailed {
		t.Fatalf("terminal job rewritten to %s", after.Status)
	}

	stats, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (queue.Stats{Failed: 1}) {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCancelWaitingReleasesLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, f.videos, "cancel")

	job, err := f.store.Enqueue(ctx, video.ID, "user-1", stage.ExtractAudio, "host")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ok, err := f.store.CancelWaiting(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("CancelWaiting = %v, %v", ok, err)
	}
	got, _ := f.store.Get(ctx, job.ID)
	if got.Status != queue.StatusFailed || got.FailureReason != queue.ReasonCancelled {
		t.Fatalf("cancelled job = %+v", got)
	}
	if started, _ := f.store.MarkActive(ctx, job.ID); started {
		t.Fatal("cancelled job must not start")
	}
	if _, err := f.store.Enqueue(ctx, video.ID, "user-1", stage.ExtractAudio, "host"); err != nil {
		t.Fatalf("Enqueue after cancel: %v", err)
	}
}

func TestReclaimStaleFailsSilentJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := testsupport.NewVideo(t, f.videos, "stale")
	fresh := testsupport.NewVideo(t, f.videos, "fresh")

	staleJob, _ := f.store.Enqueue(ctx, stale.ID, "user-1", stage.ExtractAudio, "host")
	freshJob, _ := f.store.Enqueue(ctx, fresh.ID, "user-1", stage.ExtractAudio, "host")
	for _, id := range []string{staleJob.ID, freshJob.ID} {
		if ok, err := f.store.MarkActive(ctx, id); err != nil || !ok {
			t.Fatalf("MarkActive %s: %v", id, err)
		}
	}

	time.Sleep(20 * time.Millisecond)
	cutoff := time.Now()
	if err := f.store.Heartbeat(ctx, freshJob.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	reclaimed, err := f.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != staleJob.ID {
		t.Fatalf("reclaimed = %+v, want only %s", reclaimed, staleJob.ID)
	}
	if got, _ := f.store.Get(ctx, staleJob.ID); got.Status != queue.StatusFailed || got.FailureReason != queue.ReasonInterrupted {
		t.Fatalf("stale job = %+v", got)
	}
	if got, _ := f.store.Get(ctx, freshJob.ID); got.Status != queue.StatusActive {
		t.Fatalf("fresh job = %+v", got)
	}
}

func TestReclaimStaleReleasesAbandonedWaitingJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lost := testsupport.NewVideo(t, f.videos, "lost")
	queued := testsupport.NewVideo(t, f.videos, "queued")

	lostJob, _ := f.store.Enqueue(ctx, lost.ID, "user-1", stage.ExtractAudio, "gone-host")
	queuedJob, _ := f.store.Enqueue(ctx, queued.ID, "user-1", stage.ExtractAudio, "live-host")

	time.Sleep(20 * time.Millisecond)
	cutoff := time.Now()
	if err := f.store.RefreshWaiting(ctx, "live-host"); err != nil {
		t.Fatalf("RefreshWaiting: %v", err)
	}

	reclaimed, err := f.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != lostJob.ID {
		t.Fatalf("reclaimed = %+v, want only %s", reclaimed, lostJob.ID)
	}
	if got, _ := f.store.Get(ctx, queuedJob.ID); got.Status != queue.StatusWaiting {
		t.Fatalf("refreshed job = %+v", got)
	}

	// The released lease lets the video be submitted again.
	if _, err := f.store.Enqueue(ctx, lost.ID, "user-1", stage.ExtractAudio, "live-host"); err != nil {
		t.Fatalf("Enqueue after reclaim: %v", err)
	}
}

func TestFailOrphanedOnlyTouchesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := testsupport.NewVideo(t, f.videos, "mine")
	theirs := testsupport.NewVideo(t, f.videos, "theirs")

	mineJob, _ := f.store.Enqueue(ctx, mine.ID, "user-1", stage.ExtractAudio, "host-a")
	theirJob, _ := f.store.Enqueue(ctx, theirs.ID, "user-1", stage.ExtractAudio, "host-b")

	orphaned, err := f.store.FailOrphaned(ctx, "host-a")
	if err != nil {
		t.Fatalf("FailOrphaned: %v", err)
	}
	if len(orphaned) != 1 || orphaned[0].ID != mineJob.ID {
		t.Fatalf("orphaned = %+v", orphaned)
	}
	if got, _ := f.store.Get(ctx, theirJob.ID); got.Status != queue.StatusWaiting {
		t.Fatalf("other owner's job = %+v", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, f.videos, "list")

	var ids []string
	for range 3 {
		job, err := f.store.Enqueue(ctx, video.ID, "user-1", stage.ExtractAudio, "host")
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, job.ID)
		if _, err := f.store.Finish(ctx, job.ID, nil); err != nil {
			t.Fatalf("Finish: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	jobs, err := f.store.List(ctx, video.ID, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != ids[2] || jobs[1].ID != ids[1] {
		t.Fatalf("List order wrong: %+v", jobs)
	}
}

func TestLeasedVideosTracksUnfinishedJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	busy := testsupport.NewVideo(t, f.videos, "busy")
	done := testsupport.NewVideo(t, f.videos, "done")

	if _, err := f.store.Enqueue(ctx, busy.ID, "user-1", stage.ExtractAudio, "host"); err != nil {
		t.Fatalf("Enqueue busy: %v", err)
	}
	finished, err := f.store.Enqueue(ctx, done.ID, "user-1", stage.ExtractAudio, "host")
	if err != nil {
		t.Fatalf("Enqueue done: %v", err)
	}
	if _, err := f.store.Finish(ctx, finished.ID, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	leased, err := f.store.LeasedVideos(ctx)
	if err != nil {
		t.Fatalf("LeasedVideos: %v", err)
	}
	if _, ok := leased[busy.ID]; !ok || len(leased) != 1 {
		t.Fatalf("expected only %s leased, got %v", busy.ID, leased)
	}
}
