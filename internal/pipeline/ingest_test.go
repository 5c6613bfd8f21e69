package pipeline_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelsmith/internal/pipeline"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/videostore"
)

func TestIngestUploadsAndCreatesRecord(t *testing.T) {
	h := newHarness(t, &fakeMedia{hasAudio: true}, time.Minute)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "Holiday Clip.mp4")
	testsupport.WriteFile(t, src, 4096)

	video, err := h.orch.Ingest(ctx, pipeline.IngestRequest{Path: src, UserID: "user-9"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if video.Status != videostore.StatusUploading {
		t.Fatalf("status = %s, want uploading", video.Status)
	}
	if video.Title != "Holiday Clip" {
		t.Fatalf("title = %q", video.Title)
	}
	orig := video.OriginalFile
	if orig == nil || !strings.HasPrefix(orig.Key, "uploads/user-9/") || !strings.HasSuffix(orig.Key, ".mp4") {
		t.Fatalf("unexpected original %+v", orig)
	}
	if orig.DurationSeconds != 12 || orig.Resolution.Width != 1280 || orig.SizeBytes != 4096 {
		t.Fatalf("probe data not recorded: %+v", orig)
	}

	body, err := h.blobs.Get(ctx, orig.Key)
	if err != nil {
		t.Fatalf("Get blob: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if len(data) != 4096 {
		t.Fatalf("stored %d bytes, want 4096", len(data))
	}

	md, err := h.blobs.Metadata(ctx, orig.Key)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if md[storage.MetaUserID] != "user-9" || md[storage.MetaOriginalName] != "Holiday Clip.mp4" {
		t.Fatalf("upload metadata = %#v", md)
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	h := newHarness(t, &fakeMedia{}, time.Minute)
	ctx := context.Background()

	cases := []pipeline.IngestRequest{
		{UserID: "u"},
		{Path: filepath.Join(t.TempDir(), "missing.mp4"), UserID: "u"},
		{Path: t.TempDir(), UserID: "u"},
		{Path: "clip.mp4"},
	}
	for _, req := range cases {
		if _, err := h.orch.Ingest(ctx, req); !errors.Is(err, services.ErrValidation) {
			t.Errorf("Ingest(%+v) err = %v, want validation", req, err)
		}
	}
}
