package pipeline

import (
	"context"
	"log/slog"

	"reelsmith/internal/logging"
	"reelsmith/internal/videostore"
)

// result is the typed output of a stage. apply persists it; only the
// orchestrator calls apply.
type result interface {
	apply(ctx context.Context, o *Orchestrator, snap Snapshot) error
}

type artifactResult struct {
	artifact videostore.Artifact
	// stale lists blob keys from a previous run that the new output replaces.
	stale []string
}

func (r artifactResult) apply(ctx context.Context, o *Orchestrator, _ Snapshot) error {
	if err := o.deps.Store.PutArtifact(ctx, r.artifact); err != nil {
		return err
	}
	o.deleteStale(ctx, r.stale)
	return nil
}

type transcriptResult struct {
	transcript videostore.NewTranscript
}

func (r transcriptResult) apply(ctx context.Context, o *Orchestrator, _ Snapshot) error {
	_, err := o.deps.Store.SaveTranscript(ctx, r.transcript)
	return err
}

type enhancementResult struct {
	transcriptID string
	enhanced     string
	improvements []string
	summary      string
}

func (r enhancementResult) apply(ctx context.Context, o *Orchestrator, _ Snapshot) error {
	return o.deps.Store.UpdateEnhancement(ctx, r.transcriptID, r.enhanced, r.improvements, r.summary)
}

type scenesResult struct {
	keyframes []videostore.Keyframe
	scenes    []videostore.Scene
	stale     []string
}

func (r scenesResult) apply(ctx context.Context, o *Orchestrator, snap Snapshot) error {
	id := snap.Video.ID
	if err := videostore.ReplaceMetadata(ctx, o.deps.Store, id, videostore.MetadataKeyframes, r.keyframes); err != nil {
		return err
	}
	if err := videostore.ReplaceMetadata(ctx, o.deps.Store, id, videostore.MetadataScenes, r.scenes); err != nil {
		return err
	}
	o.deleteStale(ctx, r.stale)
	return nil
}

type captionsResult struct {
	captions []videostore.Caption
	subtitle videostore.Artifact
}

func (r captionsResult) apply(ctx context.Context, o *Orchestrator, snap Snapshot) error {
	if err := o.deps.Store.ReplaceCaptions(ctx, snap.Video.ID, r.captions); err != nil {
		return err
	}
	return o.deps.Store.PutArtifact(ctx, r.subtitle)
}

type renderResult struct {
	processed videostore.FileRef
}

func (r renderResult) apply(ctx context.Context, o *Orchestrator, snap Snapshot) error {
	return o.deps.Store.Complete(ctx, snap.Video.ID, r.processed)
}

// deleteStale removes blobs a rerun no longer references. Failures only leak
// storage, so they are logged and ignored.
func (o *Orchestrator) deleteStale(ctx context.Context, keys []string) {
	logger := logging.WithContext(ctx, o.logger)
	for _, key := range keys {
		if err := o.deps.Blobs.Delete(ctx, key); err != nil {
			logStaleFailure(logger, key, err)
		}
	}
}

func logStaleFailure(logger *slog.Logger, key string, err error) {
	logger.Warn("stale artifact cleanup failed",
		logging.String(logging.FieldEventType, "artifact_cleanup_failed"),
		logging.String(logging.FieldErrorHint, "remove the blob manually if storage space matters"),
		logging.String("key", key),
		logging.Error(err),
	)
}
