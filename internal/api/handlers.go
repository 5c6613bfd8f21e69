package api

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/storage"
	"reelsmith/internal/videostore"
)

const (
	defaultJobListLimit = 20
	maxJobListLimit     = 200
)

func newRequestID() string {
	return uuid.NewString()
}

func (s *server) handleSubmit(c *gin.Context) {
	var req queue.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "", "submit", "malformed request body", err))
		return
	}
	job, err := s.queue.Submit(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusAccepted, SubmitResponse{JobID: job.ID, Job: FromJob(job)})
}

func (s *server) handleJob(c *gin.Context) {
	job, err := s.queue.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, FromJob(job))
}

func (s *server) handleCancel(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.queue.Cancel(ctx, id); err != nil {
		s.writeError(c, err)
		return
	}
	// An active job finishes asynchronously, so the returned status may still
	// read active for a moment.
	job, err := s.queue.Status(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusAccepted, FromJob(job))
}

func (s *server) handleStats(c *gin.Context) {
	stats, err := s.queue.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, stats)
}

func (s *server) handleVideoStatus(c *gin.Context) {
	id := c.Param("id")
	view, err := s.videos.Status(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if view == nil {
		s.writeError(c, videoNotFound(id))
		return
	}
	s.writeJSON(c, http.StatusOK, FromStatusView(view))
}

func (s *server) handleVideo(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	video, err := s.videos.Get(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if video == nil {
		s.writeError(c, videoNotFound(id))
		return
	}
	transcript, err := s.videos.TranscriptForVideo(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	artifacts, err := s.videos.ListArtifacts(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if artifacts == nil {
		artifacts = []videostore.Artifact{}
	}
	s.writeJSON(c, http.StatusOK, VideoDetail{Video: video, Transcript: transcript, Artifacts: artifacts})
}

func (s *server) handleVideoJobs(c *gin.Context) {
	if s.jobs == nil {
		s.writeJSON(c, http.StatusOK, JobListResponse{Jobs: []Job{}})
		return
	}
	limit := defaultJobListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(c, services.Wrap(services.ErrValidation, "", "list jobs", fmt.Sprintf("invalid limit %q", raw), nil))
			return
		}
		limit = min(parsed, maxJobListLimit)
	}
	jobs, err := s.jobs.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, JobListResponse{Jobs: FromJobs(jobs)})
}

func (s *server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	results := make([]stage.Health, 0, len(s.checks))
	for _, check := range s.checks {
		h := check(ctx)
		if s.monitor != nil {
			s.monitor.ObserveHealth(h)
		}
		results = append(results, h)
	}
	resp := FromHealth(results)
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(c, status, resp)
}

// handleBlob serves a local blob behind a URL produced by Local.SignedURL.
func (s *server) handleBlob(c *gin.Context) {
	key, err := storage.CleanKey(c.Param("key"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.blobs.Verify(key, c.Query("expires"), c.Query("sig")); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: err.Error(), Kind: string(services.KindValidation)})
		return
	}
	target := filepath.Join(s.blobs.Root(), filepath.FromSlash(key))
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		s.writeError(c, services.Wrap(services.ErrNotFound, "", "blob", key, nil))
		return
	}
	if err != nil {
		s.writeError(c, services.Wrap(services.ErrGateway, "", "blob", key, err))
		return
	}
	c.Header("Content-Type", storage.ContentTypeFor(key))
	if md, err := s.blobs.Metadata(c.Request.Context(), key); err == nil && md[storage.MetaOriginalName] != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": md[storage.MetaOriginalName]}))
	}
	c.File(target)
}

func videoNotFound(id string) error {
	return services.Wrap(services.ErrNotFound, "", "video", id, nil)
}
