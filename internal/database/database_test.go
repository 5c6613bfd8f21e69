package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/database"
)

func openTemp(t *testing.T) (*database.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reelsmith.db")
	db, err := database.Open(context.Background(), config.DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestOpenCreatesSchemaOnce(t *testing.T) {
	db, path := openTemp(t)
	ctx := context.Background()

	var count int
	if err := db.QueryRow(ctx, "SELECT COUNT(1) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one schema_version row, got %d", count)
	}
	_ = db.Close()

	reopened, err := database.Open(ctx, config.DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.QueryRow(ctx, "SELECT COUNT(1) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected reopen to keep one schema_version row, got %d", count)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	db, path := openTemp(t)
	ctx := context.Background()
	if _, err := db.Exec(ctx, "UPDATE schema_version SET version = ?", 99); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	_, err := database.Open(ctx, config.DriverSQLite, path)
	if !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := database.Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	sqlite, _ := openTemp(t)
	query := "SELECT * FROM jobs WHERE id = ? AND status = '?' AND video_id = ?"
	if got := sqlite.Rebind(query); got != query {
		t.Fatalf("sqlite should not rebind, got %q", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()
	now := database.FormatTime(time.Now())
	insert := "INSERT INTO video_leases (video_id, job_id, owner, acquired_at, heartbeat_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := db.Exec(ctx, insert, "vid", "job-1", "test", now, now); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.Exec(ctx, insert, "vid", "job-2", "test", now, now)
	if !database.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if database.IsUniqueViolation(errors.New("other")) {
		t.Fatal("unexpected match for unrelated error")
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()
	now := database.FormatTime(time.Now())
	boom := errors.New("boom")

	err := db.InTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO video_leases (video_id, job_id, owner, acquired_at, heartbeat_at) VALUES (?, ?, ?, ?, ?)", "vid", "job", "t", now, now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	var jobID string
	err = db.QueryRow(ctx, "SELECT job_id FROM video_leases WHERE video_id = ?", "vid").Scan(&jobID)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected rollback, got %v (job %q)", err, jobID)
	}
}

func TestTimeHelpersRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8000, time.FixedZone("x", 3600))
	stored := database.FormatTime(ts)
	if len(stored) != len(database.TimeLayout)-len("Z07:00")+1 {
		t.Fatalf("expected fixed width timestamp, got %q", stored)
	}
	parsed := database.ParseTime(sql.NullString{String: stored, Valid: true})
	if !parsed.Equal(ts) {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, ts)
	}
	if !database.ParseTime(sql.NullString{}).IsZero() {
		t.Fatal("expected zero time for NULL")
	}
	if database.NullableTime(time.Time{}) != nil {
		t.Fatal("expected nil for zero time")
	}
	if database.NullableString("  ") != nil {
		t.Fatal("expected nil for blank string")
	}
}
