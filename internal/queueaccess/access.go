package queueaccess

import (
	"context"
	"errors"

	"reelsmith/internal/api"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/videostore"
)

// ErrDaemonRequired is returned by store-backed access for operations that
// only a running daemon can perform.
var ErrDaemonRequired = errors.New("reelsmith daemon is not running; start it with `reelsmith daemon`")

// Access provides job and video queries regardless of HTTP or direct store backing.
type Access interface {
	Submit(ctx context.Context, req queue.SubmitRequest) (api.Job, error)
	Job(ctx context.Context, id string) (api.Job, error)
	VideoJobs(ctx context.Context, videoID string, limit int) ([]api.Job, error)
	Cancel(ctx context.Context, id string) (api.Job, error)
	Stats(ctx context.Context) (queue.Stats, error)
	VideoStatus(ctx context.Context, id string) (api.VideoStatus, error)
	Video(ctx context.Context, id string) (api.VideoDetail, error)
}

// NewStoreAccess returns a read-only Access backed by direct DB access.
func NewStoreAccess(jobs *queue.Store, videos *videostore.Store) Access {
	return &storeAccess{jobs: jobs, videos: videos}
}

type storeAccess struct {
	jobs   *queue.Store
	videos *videostore.Store
}

func (a *storeAccess) Submit(context.Context, queue.SubmitRequest) (api.Job, error) {
	return api.Job{}, ErrDaemonRequired
}

func (a *storeAccess) Cancel(context.Context, string) (api.Job, error) {
	return api.Job{}, ErrDaemonRequired
}

func (a *storeAccess) Job(ctx context.Context, id string) (api.Job, error) {
	job, err := a.jobs.Get(ctx, id)
	if err != nil {
		return api.Job{}, err
	}
	if job == nil {
		return api.Job{}, services.Wrap(services.ErrNotFound, "", "job", id, nil)
	}
	return api.FromJob(job), nil
}

func (a *storeAccess) VideoJobs(ctx context.Context, videoID string, limit int) ([]api.Job, error) {
	jobs, err := a.jobs.List(ctx, videoID, limit)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs), nil
}

func (a *storeAccess) Stats(ctx context.Context) (queue.Stats, error) {
	return a.jobs.Stats(ctx)
}

func (a *storeAccess) VideoStatus(ctx context.Context, id string) (api.VideoStatus, error) {
	view, err := a.videos.Status(ctx, id)
	if err != nil {
		return api.VideoStatus{}, err
	}
	if view == nil {
		return api.VideoStatus{}, videoNotFound(id)
	}
	return api.FromStatusView(view), nil
}

func (a *storeAccess) Video(ctx context.Context, id string) (api.VideoDetail, error) {
	video, err := a.videos.Get(ctx, id)
	if err != nil {
		return api.VideoDetail{}, err
	}
	if video == nil {
		return api.VideoDetail{}, videoNotFound(id)
	}
	transcript, err := a.videos.TranscriptForVideo(ctx, id)
	if err != nil {
		return api.VideoDetail{}, err
	}
	artifacts, err := a.videos.ListArtifacts(ctx, id)
	if err != nil {
		return api.VideoDetail{}, err
	}
	if artifacts == nil {
		artifacts = []videostore.Artifact{}
	}
	return api.VideoDetail{Video: video, Transcript: transcript, Artifacts: artifacts}, nil
}

func videoNotFound(id string) error {
	return services.Wrap(services.ErrNotFound, "", "video", id, nil)
}
