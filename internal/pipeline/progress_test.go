package pipeline

import (
	"context"
	"testing"

	"reelsmith/internal/logging"
	"reelsmith/internal/stage"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/videostore"
)

func TestReporterSpanAndCeiling(t *testing.T) {
	store := videostore.New(testsupport.MustOpenDB(t))
	video := testsupport.NewVideo(t, store, "progress")
	ctx := context.Background()
	if err := store.MarkProcessing(ctx, video.ID, stage.ExtractAudio); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	rep := newReporter(store, video.ID, stage.ExtractAudio, logging.NewNop())
	progress := func() int {
		view, err := store.Status(ctx, video.ID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		return view.Processing.Progress
	}

	fn := rep.span(ctx, 20, 60)
	fn(50)
	if got := progress(); got != 40 {
		t.Fatalf("span(20,60)(50) = %d, want 40", got)
	}
	fn(10)
	if got := progress(); got != 40 {
		t.Fatalf("progress went backwards to %d", got)
	}
	rep.report(ctx, 250)
	if got := progress(); got != handlerCeiling {
		t.Fatalf("handler progress = %d, want %d", got, handlerCeiling)
	}
	rep.done(ctx)
	if got := progress(); got != 100 {
		t.Fatalf("done progress = %d, want 100", got)
	}
}

func TestEvenScenes(t *testing.T) {
	scenes := evenScenes(10, 4)
	if len(scenes) != 4 {
		t.Fatalf("len = %d", len(scenes))
	}
	if scenes[0].StartSec != 0 || scenes[1].StartSec != 2.5 || scenes[3].EndSec != 10 {
		t.Fatalf("scenes = %+v", scenes)
	}
	for i := 1; i < len(scenes); i++ {
		if scenes[i].StartSec != scenes[i-1].EndSec {
			t.Fatalf("gap between scenes %d and %d: %+v", i-1, i, scenes)
		}
	}
	if got := evenScenes(0, 3); len(got) != 0 {
		t.Fatalf("zero duration scenes = %+v", got)
	}
}
