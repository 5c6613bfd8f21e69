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
)

// NewTranscript is the recognition output of the transcribe stage.
type NewTranscript struct {
	VideoID    string
	Text       string
	Segments   []Segment
	Language   string
	Confidence float64
}

const transcriptColumns = `id, video_id, original_text, enhanced_text, improvements, summary,
	segments, language, confidence, created_at, updated_at`

// SaveTranscript stores the transcript for a video and links it from the
// record. A video owns at most one transcript, so rerunning transcription
// overwrites the existing row in place and clears any earlier enhancement.
func (s *Store) SaveTranscript(ctx context.Context, in NewTranscript) (*TranscriptRecord, error) {
	segments := in.Segments
	if segments == nil {
		segments = []Segment{}
	}
	encoded, err := database.MarshalJSON(segments)
	if err != nil {
		return nil, err
	}
	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "en"
	}
	now := database.FormatTime(s.now())

	var id string
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id FROM transcripts WHERE video_id = ?`, in.VideoID).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = uuid.NewString()
			if _, err := tx.Exec(ctx,
				`INSERT INTO transcripts (id, video_id, original_text, segments, language, confidence, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id, in.VideoID, in.Text, encoded, language, in.Confidence, now, now,
			); err != nil {
				return fmt.Errorf("insert transcript: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lookup transcript: %w", err)
		default:
			if _, err := tx.Exec(ctx,
				`UPDATE transcripts
                 SET original_text = ?, enhanced_text = NULL, improvements = NULL, summary = NULL,
                     segments = ?, language = ?, confidence = ?, updated_at = ?
                 WHERE id = ?`,
				in.Text, encoded, language, in.Confidence, now, id,
			); err != nil {
				return fmt.Errorf("update transcript: %w", err)
			}
		}
		res, err := tx.Exec(ctx, `UPDATE videos SET transcript_id = ?, updated_at = ? WHERE id = ?`, id, now, in.VideoID)
		if err != nil {
			return fmt.Errorf("link transcript: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("link transcript: %w", ErrVideoNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTranscript(ctx, id)
}

// UpdateEnhancement writes the enhanced script fields. The original text and
// segments are left as recognized.
func (s *Store) UpdateEnhancement(ctx context.Context, transcriptID, enhanced string, improvements []string, summary string) error {
	if improvements == nil {
		improvements = []string{}
	}
	encoded, err := database.MarshalJSON(improvements)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(ctx,
		`UPDATE transcripts SET enhanced_text = ?, improvements = ?, summary = ?, updated_at = ? WHERE id = ?`,
		enhanced, encoded, database.NullableString(summary), database.FormatTime(s.now()), transcriptID)
	if err != nil {
		return fmt.Errorf("update enhancement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update enhancement: transcript %s: %w", transcriptID, ErrTranscriptNotFound)
	}
	return nil
}

// GetTranscript loads a transcript by id. Missing transcripts return nil, nil.
func (s *Store) GetTranscript(ctx context.Context, id string) (*TranscriptRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transcriptColumns+` FROM transcripts WHERE id = ?`, id)
	return getTranscript(row)
}

// TranscriptForVideo loads the transcript owned by a video, or nil when none exists.
func (s *Store) TranscriptForVideo(ctx context.Context, videoID string) (*TranscriptRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transcriptColumns+` FROM transcripts WHERE video_id = ?`, videoID)
	return getTranscript(row)
}

func getTranscript(row scanner) (*TranscriptRecord, error) {
	var (
		t            TranscriptRecord
		enhanced     sql.NullString
		improvements sql.NullString
		summary      sql.NullString
		segments     sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	err := row.Scan(&t.ID, &t.VideoID, &t.OriginalText, &enhanced, &improvements, &summary,
		&segments, &t.Language, &t.Confidence, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	t.EnhancedText = enhanced.String
	t.Summary = summary.String
	if err := database.UnmarshalJSON(improvements, &t.Improvements); err != nil {
		return nil, err
	}
	if err := database.UnmarshalJSON(segments, &t.Segments); err != nil {
		return nil, err
	}
	if t.Segments == nil {
		t.Segments = []Segment{}
	}
	t.CreatedAt = database.ParseTime(createdRaw)
	t.UpdatedAt = database.ParseTime(updatedRaw)
	return &t, nil
}

// touchVideo bumps updated_at and reports ErrVideoNotFound for unknown ids.
func touchVideo(ctx context.Context, tx *database.Tx, videoID string, now time.Time) error {
	res, err := tx.Exec(ctx, `UPDATE videos SET updated_at = ? WHERE id = ?`, database.FormatTime(now), videoID)
	if err != nil {
		return fmt.Errorf("touch video: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrVideoNotFound
	}
	return nil
}
