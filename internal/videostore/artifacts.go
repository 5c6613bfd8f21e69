package videostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reelsmith/internal/database"
)

// ReplaceCaptions swaps the full caption list for a video in one transaction.
func (s *Store) ReplaceCaptions(ctx context.Context, videoID string, captions []Caption) error {
	return s.db.InTx(ctx, func(tx *database.Tx) error {
		if err := touchVideo(ctx, tx, videoID, s.now()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM captions WHERE video_id = ?`, videoID); err != nil {
			return fmt.Errorf("clear captions: %w", err)
		}
		for i, c := range captions {
			var style any
			if c.Style != nil {
				encoded, err := database.MarshalJSON(c.Style)
				if err != nil {
					return err
				}
				style = encoded
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO captions (video_id, position, caption_id, start_sec, end_sec, text, style)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				videoID, i, c.ID, c.StartSec, c.EndSec, c.Text, style,
			); err != nil {
				return fmt.Errorf("insert caption %d: %w", i, err)
			}
		}
		return nil
	})
}

// ReplaceMetadata swaps one metadata list. Other lists are left untouched.
func ReplaceMetadata[T Scene | Highlight | Keyframe | AudioLevel](ctx context.Context, s *Store, videoID string, kind MetadataKind, items []T) error {
	return s.db.InTx(ctx, func(tx *database.Tx) error {
		if err := touchVideo(ctx, tx, videoID, s.now()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM video_metadata WHERE video_id = ? AND kind = ?`, videoID, kind); err != nil {
			return fmt.Errorf("clear %s: %w", kind, err)
		}
		for i, item := range items {
			payload, err := database.MarshalJSON(item)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO video_metadata (video_id, kind, position, payload) VALUES (?, ?, ?, ?)`,
				videoID, kind, i, payload,
			); err != nil {
				return fmt.Errorf("insert %s %d: %w", kind, i, err)
			}
		}
		return nil
	})
}

// PutArtifact records or overwrites the blob reference for a stage output.
func (s *Store) PutArtifact(ctx context.Context, a Artifact) error {
	now := s.now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO artifacts (video_id, kind, blob_key, url, size_bytes, content_type, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (video_id, kind) DO UPDATE SET
             blob_key = excluded.blob_key, url = excluded.url, size_bytes = excluded.size_bytes,
             content_type = excluded.content_type, updated_at = excluded.updated_at`,
		a.VideoID, a.Kind, a.Key, database.NullableString(a.URL), a.SizeBytes,
		database.NullableString(a.ContentType), database.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", a.Kind, err)
	}
	return nil
}

// GetArtifact returns the artifact of the given kind, or nil when absent.
func (s *Store) GetArtifact(ctx context.Context, videoID string, kind ArtifactKind) (*Artifact, error) {
	row := s.db.QueryRow(ctx,
		`SELECT video_id, kind, blob_key, url, size_bytes, content_type, updated_at
         FROM artifacts WHERE video_id = ? AND kind = ?`, videoID, kind)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", kind, err)
	}
	return a, nil
}

// ListArtifacts returns every artifact recorded for a video.
func (s *Store) ListArtifacts(ctx context.Context, videoID string) ([]Artifact, error) {
	rows, err := s.db.Query(ctx,
		`SELECT video_id, kind, blob_key, url, size_bytes, content_type, updated_at
         FROM artifacts WHERE video_id = ? ORDER BY kind`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanArtifact(row scanner) (*Artifact, error) {
	var (
		a           Artifact
		kind        string
		url         sql.NullString
		contentType sql.NullString
		updatedRaw  sql.NullString
	)
	if err := row.Scan(&a.VideoID, &kind, &a.Key, &url, &a.SizeBytes, &contentType, &updatedRaw); err != nil {
		return nil, err
	}
	a.Kind = ArtifactKind(kind)
	a.URL = url.String
	a.ContentType = contentType.String
	a.UpdatedAt = database.ParseTime(updatedRaw)
	return &a, nil
}
