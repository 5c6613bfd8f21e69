package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/database"
	"reelsmith/internal/videostore"
)

// MustOpenDB opens a fresh sqlite database in a temp dir and registers cleanup.
func MustOpenDB(t testing.TB) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "reelsmith.db")
	db, err := database.Open(context.Background(), config.DriverSQLite, path)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// NewVideo inserts an uploaded video owned by user-1 with a fixed original file.
func NewVideo(t testing.TB, store *videostore.Store, title string) *videostore.VideoRecord {
	t.Helper()

	video, err := store.Create(context.Background(), videostore.NewVideo{
		UserID: "user-1",
		Title:  title,
		Original: videostore.FileRef{
			Key:             "uploads/" + title + ".mp4",
			SizeBytes:       1024,
			DurationSeconds: 12,
			Format:          "mp4",
			Resolution:      videostore.Resolution{Width: 1280, Height: 720},
		},
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return video
}
