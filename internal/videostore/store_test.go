package videostore_test

import (
	"context"
	"errors"
	"testing"

	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/videostore"
)

func newStore(t *testing.T) *videostore.Store {
	t.Helper()
	return videostore.New(testsupport.MustOpenDB(t))
}

func TestCreateAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	video := testsupport.NewVideo(t, store, "demo")
	if video.ID == "" {
		t.Fatal("expected generated id")
	}
	if video.Status != videostore.StatusUploading {
		t.Fatalf("expected uploading, got %s", video.Status)
	}
	if video.OriginalFile == nil || video.OriginalFile.Resolution.Width != 1280 {
		t.Fatalf("unexpected original file %#v", video.OriginalFile)
	}
	if video.Captions == nil || len(video.Captions) != 0 {
		t.Fatalf("expected empty captions, got %#v", video.Captions)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing video, got %#v %v", missing, err)
	}
}

func TestCreateRequiresUser(t *testing.T) {
	store := newStore(t)
	if _, err := store.Create(context.Background(), videostore.NewVideo{Title: "x"}); err == nil {
		t.Fatal("expected error without user id")
	}
}

func TestProgressNeverDecreasesWithinStage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, store, "progress")

	if err := store.MarkProcessing(ctx, video.ID, stage.ExtractAudio); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	for _, p := range []int{10, 60, 30, 100} {
		if err := store.UpdateProgress(ctx, video.ID, stage.ExtractAudio, p); err != nil {
			t.Fatalf("UpdateProgress(%d): %v", p, err)
		}
	}
	view, err := store.Status(ctx, video.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Processing.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", view.Processing.Progress)
	}

	if err := store.BeginStage(ctx, video.ID, stage.Transcribe); err != nil {
		t.Fatalf("BeginStage: %v", err)
	}
	// Late update from the previous stage must not leak into the new one.
	if err := store.UpdateProgress(ctx, video.ID, stage.ExtractAudio, 90); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	view, _ = store.Status(ctx, video.ID)
	if view.Processing.Stage != stage.Transcribe || view.Processing.Progress != 0 {
		t.Fatalf("unexpected processing %#v", view.Processing)
	}
}

func TestBeginStageRejectsBackwardMove(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, store, "order")

	if err := store.MarkProcessing(ctx, video.ID, stage.DetectScenes); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.BeginStage(ctx, video.ID, stage.Transcribe); err == nil {
		t.Fatal("expected backward stage move to fail")
	}
	// Regeneration rewinds explicitly.
	if err := store.MarkProcessing(ctx, video.ID, stage.Transcribe); err != nil {
		t.Fatalf("MarkProcessing rewind: %v", err)
	}
	view, _ := store.Status(ctx, video.ID)
	if view.Processing.Stage != stage.Transcribe {
		t.Fatalf("expected rewind to TRANSCRIBE, got %s", view.Processing.Stage)
	}
}

func TestCompleteAndMarkError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, store, "done")

	if err := store.MarkProcessing(ctx, video.ID, stage.ExtractAudio); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.MarkError(ctx, video.ID, ""); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	got, _ := store.Get(ctx, video.ID)
	if got.Status != videostore.StatusError || got.Processing.Error == "" {
		t.Fatalf("error status must carry a message, got %#v", got.Processing)
	}

	if err := store.MarkProcessing(ctx, video.ID, stage.RenderVideo); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	processed := videostore.FileRef{Key: "videos/" + video.ID + "/processed.mp4", Format: "mp4"}
	if err := store.Complete(ctx, video.ID, processed); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ = store.Get(ctx, video.ID)
	if got.Status != videostore.StatusReady {
		t.Fatalf("expected ready, got %s", got.Status)
	}
	if got.ProcessedFile == nil || got.ProcessedFile.Key != processed.Key {
		t.Fatalf("ready video must carry processed file, got %#v", got.ProcessedFile)
	}
	if got.Processing.Stage != stage.Complete || got.Processing.Progress != 100 || got.Processing.Error != "" {
		t.Fatalf("unexpected processing %#v", got.Processing)
	}
	if got.Processing.CompletedAt.IsZero() {
		t.Fatal("expected completion time")
	}
}

func TestWritesToMissingVideoReportNotFound(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	err := store.MarkProcessing(ctx, "missing", stage.ExtractAudio)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = store.ReplaceCaptions(ctx, "missing", nil)
	if !errors.Is(err, videostore.ErrVideoNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReplaceCaptionsLeavesNoDuplicates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, store, "captions")

	first := []videostore.Caption{
		{ID: "c1", StartSec: 0, EndSec: 1.5, Text: "hello"},
		{ID: "c2", StartSec: 1.5, EndSec: 3, Text: "world", Style: &videostore.CaptionStyle{Position: "bottom"}},
	}
	second := []videostore.Caption{{ID: "c1", StartSec: 0, EndSec: 2, Text: "hi there"}}
	if err := store.ReplaceCaptions(ctx, video.ID, first); err != nil {
		t.Fatalf("ReplaceCaptions: %v", err)
	}
	got, _ := store.Get(ctx, video.ID)
	if len(got.Captions) != 2 || got.Captions[1].Style == nil || got.Captions[1].Style.Position != "bottom" {
		t.Fatalf("unexpected captions %#v", got.Captions)
	}
	if err := store.ReplaceCaptions(ctx, video.ID, second); err != nil {
		t.Fatalf("ReplaceCaptions: %v", err)
	}
	got, _ = store.Get(ctx, video.ID)
	if len(got.Captions) != 1 || got.Captions[0].Text != "hi there" {
		t.Fatalf("expected captions replaced, got %#v", got.Captions)
	}
}

func TestPartialWritesDoNotClobberTitle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, store, "title")

	if err := store.SetTitle(ctx, video.ID, "Renamed"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	if err := store.ReplaceCaptions(ctx, video.ID, []videostore.Caption{{ID: "c1", EndSec: 1, Text: "x"}}); err != nil {
		t.Fatalf("ReplaceCaptions: %v", err)
	}
	if err := videostore.ReplaceMetadata(ctx, store, video.ID, videostore.MetadataScenes, []videostore.Scene{{Index: 0, EndSec: 4}}); err != nil {
		t.Fatalf("ReplaceMetadata: %v", err)
	}
	got, _ := store.Get(ctx, video.ID)
	if got.Title != "Renamed" {
		t.Fatalf("title clobbered: %q", got.Title)
	}
	if len(got.Metadata.Scenes) != 1 || len(got.Metadata.Keyframes) != 0 {
		t.Fatalf("unexpected metadata %#v", got.Metadata)
	}
}

func TestTranscriptLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, store, "transcript")

	first, err := store.SaveTranscript(ctx, videostore.NewTranscript{
		VideoID:    video.ID,
		Text:       "um hello there",
		Segments:   []videostore.Segment{{ID: 0, Text: "um hello there", EndSec: 2, Confidence: 0.9}},
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if first.Language != "en" || len(first.Segments) != 1 {
		t.Fatalf("unexpected transcript %#v", first)
	}
	if err := store.UpdateEnhancement(ctx, first.ID, "Hello there.", []string{"removed filler"}, "A greeting."); err != nil {
		t.Fatalf("UpdateEnhancement: %v", err)
	}
	enhanced, _ := store.TranscriptForVideo(ctx, video.ID)
	if enhanced.ScriptText() != "Hello there." || enhanced.OriginalText != "um hello there" {
		t.Fatalf("unexpected enhancement %#v", enhanced)
	}

	second, err := store.SaveTranscript(ctx, videostore.NewTranscript{VideoID: video.ID, Text: "again", Language: "fr"})
	if err != nil {
		t.Fatalf("SaveTranscript again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected transcript id reused, got %s vs %s", second.ID, first.ID)
	}
	if second.EnhancedText != "" || second.ScriptText() != "again" {
		t.Fatalf("expected enhancement cleared, got %#v", second)
	}
	got, _ := store.Get(ctx, video.ID)
	if got.TranscriptRef != first.ID {
		t.Fatalf("expected transcript ref %s, got %s", first.ID, got.TranscriptRef)
	}

	if err := store.UpdateEnhancement(ctx, "missing", "x", nil, ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestArtifactsUpsert(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, store, "artifacts")

	a := videostore.Artifact{VideoID: video.ID, Kind: videostore.ArtifactAudio, Key: "videos/x/audio.mp3", SizeBytes: 10}
	if err := store.PutArtifact(ctx, a); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	a.SizeBytes = 20
	if err := store.PutArtifact(ctx, a); err != nil {
		t.Fatalf("PutArtifact overwrite: %v", err)
	}
	got, err := store.GetArtifact(ctx, video.ID, videostore.ArtifactAudio)
	if err != nil || got == nil || got.SizeBytes != 20 {
		t.Fatalf("unexpected artifact %#v %v", got, err)
	}
	list, _ := store.ListArtifacts(ctx, video.ID)
	if len(list) != 1 {
		t.Fatalf("expected one artifact, got %d", len(list))
	}
	none, err := store.GetArtifact(ctx, video.ID, videostore.ArtifactVoiceover)
	if err != nil || none != nil {
		t.Fatalf("expected nil artifact, got %#v %v", none, err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a := testsupport.NewVideo(t, store, "a")
	testsupport.NewVideo(t, store, "b")
	if err := store.MarkProcessing(ctx, a.ID, stage.ExtractAudio); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	processing, err := store.List(ctx, videostore.StatusProcessing)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(processing) != 1 || processing[0].ID != a.ID {
		t.Fatalf("unexpected list %#v", processing)
	}
	all, _ := store.List(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(all))
	}
}
