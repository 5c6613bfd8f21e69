package pipeline

import (
	"context"
	"fmt"

	"reelsmith/internal/services"
	"reelsmith/internal/videostore"
)

// Snapshot is the read-only view of a video handed to a stage. It is loaded
// fresh before every stage, so a stage sees exactly what earlier stages
// persisted. Stage code must treat it as immutable.
type Snapshot struct {
	Video      *videostore.VideoRecord
	Transcript *videostore.TranscriptRecord
	Artifacts  map[videostore.ArtifactKind]videostore.Artifact
}

// Artifact returns the artifact of kind, reporting whether it exists.
func (s Snapshot) Artifact(kind videostore.ArtifactKind) (videostore.Artifact, bool) {
	a, ok := s.Artifacts[kind]
	return a, ok
}

func (o *Orchestrator) loadSnapshot(ctx context.Context, videoID string) (Snapshot, error) {
	video, err := o.deps.Store.Get(ctx, videoID)
	if err != nil {
		return Snapshot{}, err
	}
	if video == nil {
		return Snapshot{}, services.Wrap(services.ErrNotFound, "", "snapshot", fmt.Sprintf("video %s", videoID), nil)
	}
	transcript, err := o.deps.Store.TranscriptForVideo(ctx, videoID)
	if err != nil {
		return Snapshot{}, err
	}
	artifacts, err := o.deps.Store.ListArtifacts(ctx, videoID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Video:      video,
		Transcript: transcript,
		Artifacts:  make(map[videostore.ArtifactKind]videostore.Artifact, len(artifacts)),
	}
	for _, a := range artifacts {
		snap.Artifacts[a.Kind] = a
	}
	return snap, nil
}
