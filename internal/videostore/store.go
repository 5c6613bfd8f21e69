package videostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/database"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

// Store persists video and transcript records. Every write touches only the
// columns or child rows it owns so concurrent unrelated updates are never
// overwritten by a stale copy of the record.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// New wraps an open database.
func New(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// NewVideo describes a freshly uploaded video.
type NewVideo struct {
	ID       string
	UserID   string
	Title    string
	Original FileRef
}

const videoColumns = `id, user_id, title, status, original_file, processed_file, transcript_id,
	processing_stage, processing_progress, processing_error, processing_started_at,
	processing_completed_at, created_at, updated_at`

// Create inserts a video in uploading status.
func (s *Store) Create(ctx context.Context, in NewVideo) (*VideoRecord, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, errors.New("create video: user id is required")
	}
	original, err := database.MarshalJSON(in.Original)
	if err != nil {
		return nil, err
	}
	now := database.FormatTime(s.now())
	_, err = s.db.Exec(ctx,
		`INSERT INTO videos (id, user_id, title, status, original_file, processing_stage,
            processing_progress, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, in.UserID, strings.TrimSpace(in.Title), StatusUploading, original, stage.ExtractAudio, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}
	return s.Get(ctx, id)
}

// Get loads a video with its captions and metadata. Missing videos return nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*VideoRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	if video.Captions, err = s.captions(ctx, id); err != nil {
		return nil, err
	}
	if video.Metadata, err = s.metadata(ctx, id); err != nil {
		return nil, err
	}
	return video, nil
}

// Status returns the status projection without loading child rows.
func (s *Store) Status(ctx context.Context, id string) (*StatusView, error) {
	row := s.db.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video status: %w", err)
	}
	view := video.View()
	return &view, nil
}

// List returns videos, optionally filtered by status, newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*VideoRecord, error) {
	query := `SELECT ` + videoColumns + ` FROM videos`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*VideoRecord
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// SetTitle updates only the title column.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	return s.exec1(ctx, "set title",
		`UPDATE videos SET title = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(title), database.FormatTime(s.now()), id)
}

// MarkProcessing moves the video into processing at the requested stage. The
// stage is set explicitly here, which is how regeneration rewinds it.
func (s *Store) MarkProcessing(ctx context.Context, id string, from stage.Stage) error {
	now := database.FormatTime(s.now())
	return s.exec1(ctx, "mark processing",
		`UPDATE videos
         SET status = ?, processing_stage = ?, processing_progress = 0, processing_error = NULL,
             processing_started_at = ?, processing_completed_at = NULL, updated_at = ?
         WHERE id = ?`,
		StatusProcessing, from, now, now, id)
}

// BeginStage records the start of a stage run and resets progress to zero.
// The stage may only move forward from the one currently recorded.
func (s *Store) BeginStage(ctx context.Context, id string, st stage.Stage) error {
	current, err := s.Status(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("begin stage: %w", ErrVideoNotFound)
	}
	if st.Index() < current.Processing.Stage.Index() {
		return fmt.Errorf("begin stage: %s would move backwards from %s", st, current.Processing.Stage)
	}
	return s.exec1(ctx, "begin stage",
		`UPDATE videos SET processing_stage = ?, processing_progress = 0, updated_at = ? WHERE id = ?`,
		st, database.FormatTime(s.now()), id)
}

// UpdateProgress raises the progress of the running stage. Values lower than
// the stored one, or for a stage that is no longer current, are ignored, so
// progress never decreases within a stage.
func (s *Store) UpdateProgress(ctx context.Context, id string, st stage.Stage, percent int) error {
	percent = max(0, min(percent, 100))
	_, err := s.db.Exec(ctx,
		`UPDATE videos SET processing_progress = ?, updated_at = ?
         WHERE id = ? AND processing_stage = ? AND processing_progress <= ?`,
		percent, database.FormatTime(s.now()), id, st, percent)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Complete stores the rendered file and marks the video ready.
func (s *Store) Complete(ctx context.Context, id string, processed FileRef) error {
	encoded, err := database.MarshalJSON(processed)
	if err != nil {
		return err
	}
	now := database.FormatTime(s.now())
	return s.exec1(ctx, "complete",
		`UPDATE videos
         SET processed_file = ?, status = ?, processing_stage = ?, processing_progress = 100,
             processing_error = NULL, processing_completed_at = ?, updated_at = ?
         WHERE id = ?`,
		encoded, StatusReady, stage.Complete, now, now, id)
}

// MarkError records a failure. The message is required so status=error always
// carries processing.error.
func (s *Store) MarkError(ctx context.Context, id, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "processing failed"
	}
	now := database.FormatTime(s.now())
	return s.exec1(ctx, "mark error",
		`UPDATE videos SET status = ?, processing_error = ?, processing_completed_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusError, message, now, now, id)
}

// Delete removes a video and its child rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.exec1(ctx, "delete", `DELETE FROM videos WHERE id = ?`, id)
}

func (s *Store) exec1(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrVideoNotFound)
	}
	return nil
}

var (
	// ErrVideoNotFound is returned by writes that matched no video.
	ErrVideoNotFound = fmt.Errorf("video %w", services.ErrNotFound)
	// ErrTranscriptNotFound is returned by writes that matched no transcript.
	ErrTranscriptNotFound = fmt.Errorf("transcript %w", services.ErrNotFound)
)
