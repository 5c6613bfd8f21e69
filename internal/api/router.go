package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reelsmith/internal/logging"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/videostore"
)

// Videos is the slice of the video store the API reads.
type Videos interface {
	Status(ctx context.Context, id string) (*videostore.StatusView, error)
	Get(ctx context.Context, id string) (*videostore.VideoRecord, error)
	TranscriptForVideo(ctx context.Context, videoID string) (*videostore.TranscriptRecord, error)
	ListArtifacts(ctx context.Context, videoID string) ([]videostore.Artifact, error)
}

// JobHistory lists past jobs of a video.
type JobHistory interface {
	List(ctx context.Context, videoID string, limit int) ([]*queue.Job, error)
}

// HealthCheck reports the readiness of one gateway.
type HealthCheck func(ctx context.Context) stage.Health

// Monitor exposes metrics and records health observations.
type Monitor interface {
	Handler() http.Handler
	ObserveHealth(h stage.Health)
}

// BlobServer verifies signed URLs and locates local blobs on disk.
type BlobServer interface {
	Verify(key, expires, sig string) error
	Root() string
	Metadata(ctx context.Context, key string) (map[string]string, error)
}

// Options wires the router. Queue and Videos are required.
type Options struct {
	Queue   queue.Queue
	Videos  Videos
	Jobs    JobHistory
	Checks  []HealthCheck
	Monitor Monitor
	Blobs   BlobServer
	Logger  *slog.Logger
}

type server struct {
	queue   queue.Queue
	videos  Videos
	jobs    JobHistory
	checks  []HealthCheck
	monitor Monitor
	blobs   BlobServer
	logger  *slog.Logger
}

// NewRouter builds the gin engine serving every route.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Queue == nil || opts.Videos == nil {
		return nil, errors.New("api router requires queue and video store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &server{
		queue:   opts.Queue,
		videos:  opts.Videos,
		jobs:    opts.Jobs,
		checks:  opts.Checks,
		monitor: opts.Monitor,
		blobs:   opts.Blobs,
		logger:  logging.NewComponentLogger(logger, "api-server"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestContext(), s.accessLog())
	engine.NoRoute(func(c *gin.Context) {
		s.writeError(c, services.Wrap(services.ErrNotFound, "", "route", c.Request.URL.Path, nil))
	})

	api := engine.Group("/api")
	api.POST("/jobs", s.handleSubmit)
	api.GET("/jobs/:id", s.handleJob)
	api.POST("/jobs/:id/cancel", s.handleCancel)
	api.GET("/stats", s.handleStats)
	api.GET("/videos/:id", s.handleVideo)
	api.GET("/videos/:id/status", s.handleVideoStatus)
	api.GET("/videos/:id/jobs", s.handleVideoJobs)
	api.GET("/health", s.handleHealth)
	if s.blobs != nil {
		api.GET("/blobs/*key", s.handleBlob)
	}
	if s.monitor != nil {
		engine.GET("/metrics", gin.WrapH(s.monitor.Handler()))
	}
	return engine, nil
}

const requestIDHeader = "X-Request-ID"

// requestContext attaches a correlation id to the request context so every
// log line written while serving it carries the same id.
func (s *server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" {
			rid = newRequestID()
		}
		c.Header(requestIDHeader, rid)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.WithContext(c.Request.Context(), s.logger).Debug("api request",
			logging.String(logging.FieldEventType, "api_request"),
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *server) writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// writeError maps a classified error onto an HTTP status.
func (s *server) writeError(c *gin.Context, err error) {
	details := services.Details(err)
	status := statusFor(err, details.Kind)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), s.logger), "api request failed", "api_error",
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.String("path", c.Request.URL.Path),
			logging.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: details.Message,
		Kind:  string(details.Kind),
		Hint:  details.Hint,
	})
}

func statusFor(err error, kind services.ErrorKind) int {
	if errors.Is(err, queue.ErrShuttingDown) {
		return http.StatusServiceUnavailable
	}
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
