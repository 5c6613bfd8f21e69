package videostore

import (
	"context"
	"database/sql"
	"fmt"

	"reelsmith/internal/database"
	"reelsmith/internal/stage"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*VideoRecord, error) {
	var (
		video        VideoRecord
		status       string
		original     sql.NullString
		processed    sql.NullString
		transcriptID sql.NullString
		stageName    string
		progress     int
		procErr      sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := row.Scan(
		&video.ID,
		&video.UserID,
		&video.Title,
		&status,
		&original,
		&processed,
		&transcriptID,
		&stageName,
		&progress,
		&procErr,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	video.Status = Status(status)
	video.TranscriptRef = transcriptID.String
	video.Processing = Processing{
		Stage:       stage.Stage(stageName),
		Progress:    progress,
		Error:       procErr.String,
		StartedAt:   database.ParseTime(startedRaw),
		CompletedAt: database.ParseTime(completedRaw),
	}
	video.CreatedAt = database.ParseTime(createdRaw)
	video.UpdatedAt = database.ParseTime(updatedRaw)

	if original.Valid {
		video.OriginalFile = &FileRef{}
		if err := database.UnmarshalJSON(original, video.OriginalFile); err != nil {
			return nil, fmt.Errorf("original_file: %w", err)
		}
	}
	if processed.Valid {
		video.ProcessedFile = &FileRef{}
		if err := database.UnmarshalJSON(processed, video.ProcessedFile); err != nil {
			return nil, fmt.Errorf("processed_file: %w", err)
		}
	}
	video.Captions = []Caption{}
	return &video, nil
}

func (s *Store) captions(ctx context.Context, videoID string) ([]Caption, error) {
	rows, err := s.db.Query(ctx,
		`SELECT caption_id, start_sec, end_sec, text, style FROM captions WHERE video_id = ? ORDER BY position`,
		videoID)
	if err != nil {
		return nil, fmt.Errorf("load captions: %w", err)
	}
	defer rows.Close()

	captions := []Caption{}
	for rows.Next() {
		var (
			c     Caption
			style sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.StartSec, &c.EndSec, &c.Text, &style); err != nil {
			return nil, fmt.Errorf("scan caption: %w", err)
		}
		if style.Valid {
			c.Style = &CaptionStyle{}
			if err := database.UnmarshalJSON(style, c.Style); err != nil {
				return nil, err
			}
		}
		captions = append(captions, c)
	}
	return captions, rows.Err()
}

func (s *Store) metadata(ctx context.Context, videoID string) (Metadata, error) {
	meta := Metadata{
		Scenes:      []Scene{},
		Highlights:  []Highlight{},
		Keyframes:   []Keyframe{},
		AudioLevels: []AudioLevel{},
	}
	rows, err := s.db.Query(ctx,
		`SELECT kind, payload FROM video_metadata WHERE video_id = ? ORDER BY kind, position`,
		videoID)
	if err != nil {
		return meta, fmt.Errorf("load metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind    string
			payload sql.NullString
		)
		if err := rows.Scan(&kind, &payload); err != nil {
			return meta, fmt.Errorf("scan metadata: %w", err)
		}
		switch MetadataKind(kind) {
		case MetadataScenes:
			var v Scene
			err = database.UnmarshalJSON(payload, &v)
			meta.Scenes = append(meta.Scenes, v)
		case MetadataHighlights:
			var v Highlight
			err = database.UnmarshalJSON(payload, &v)
			meta.Highlights = append(meta.Highlights, v)
		case MetadataKeyframes:
			var v Keyframe
			err = database.UnmarshalJSON(payload, &v)
			meta.Keyframes = append(meta.Keyframes, v)
		case MetadataAudioLevels:
			var v AudioLevel
			err = database.UnmarshalJSON(payload, &v)
			meta.AudioLevels = append(meta.AudioLevels, v)
		}
		if err != nil {
			return meta, fmt.Errorf("metadata %s: %w", kind, err)
		}
	}
	return meta, rows.Err()
}
