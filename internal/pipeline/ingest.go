package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
	"reelsmith/internal/videostore"
)

// IngestRequest describes a local file to register as a new video.
type IngestRequest struct {
	Path   string
	UserID string
	Title  string
	// VideoID is optional; an empty value generates one.
	VideoID string
}

// Ingest probes the file, uploads it under a generated key and creates the
// video record in uploading status. The record points at the stored original;
// no stage runs until a job is submitted.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (*videostore.VideoRecord, error) {
	src := strings.TrimSpace(req.Path)
	if src == "" {
		return nil, services.Wrap(services.ErrValidation, "", "ingest", "file path is required", nil)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "ingest", "user id is required", nil)
	}
	stat, err := os.Stat(src)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "ingest", fmt.Sprintf("cannot read %s", src), err)
	}
	if stat.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "", "ingest", fmt.Sprintf("%s is a directory", src), nil)
	}

	info, err := o.deps.Media.Probe(ctx, src)
	if err != nil {
		return nil, err
	}

	key := storage.GenerateKey("uploads/"+strings.TrimSpace(req.UserID), filepath.Base(src))
	obj, err := storage.Upload(ctx, o.deps.Blobs, key, src, storage.ContentTypeFor(key),
		storage.WithMetadata(map[string]string{
			storage.MetaUserID:       strings.TrimSpace(req.UserID),
			storage.MetaOriginalName: filepath.Base(src),
		}))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}
	size := obj.SizeBytes
	if size == 0 {
		size = stat.Size()
	}
	video, err := o.deps.Store.Create(ctx, videostore.NewVideo{
		ID:     req.VideoID,
		UserID: req.UserID,
		Title:  title,
		Original: videostore.FileRef{
			URL:             obj.URL,
			Key:             obj.Key,
			SizeBytes:       size,
			DurationSeconds: info.DurationSeconds,
			Format:          info.Format,
			Resolution:      videostore.Resolution{Width: info.Width, Height: info.Height},
		},
	})
	if err != nil {
		if delErr := o.deps.Blobs.Delete(context.WithoutCancel(ctx), obj.Key); delErr != nil {
			logStaleFailure(o.logger, obj.Key, delErr)
		}
		return nil, err
	}

	o.logger.Info("video ingested",
		logging.String(logging.FieldEventType, "video_ingested"),
		logging.String(logging.FieldVideoID, video.ID),
		logging.String("key", obj.Key),
		logging.Int64("size_bytes", size),
		logging.String("probe", info.String()),
	)
	return video, nil
}
