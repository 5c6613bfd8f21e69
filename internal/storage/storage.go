package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

// Object describes a stored blob.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType,omitempty"`
	// Metadata echoes the user metadata attached at upload.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Metadata keys the pipeline attaches to uploads.
const (
	MetaUserID       = "user_id"
	MetaOriginalName = "original_name"
)

// PutOption adjusts a single Put.
type PutOption func(*putOptions)

type putOptions struct {
	metadata map[string]string
}

// WithMetadata attaches user metadata to the stored object. Blank keys are
// ignored; a later Put of the same key replaces the metadata.
func WithMetadata(md map[string]string) PutOption {
	return func(o *putOptions) {
		for k, v := range md {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if o.metadata == nil {
				o.metadata = make(map[string]string, len(md))
			}
			o.metadata[k] = v
		}
	}
}

func applyPutOptions(opts []PutOption) putOptions {
	var o putOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Gateway is the contract every blob backend satisfies.
type Gateway interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string, opts ...PutOption) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Exists(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) stage.Health
}

// ErrNotFound marks a missing object.
var ErrNotFound = fmt.Errorf("object %w", services.ErrNotFound)

// New builds the backend selected by cfg.Storage.Backend.
func New(cfg *config.Config) (Gateway, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "config is nil", nil)
	}
	switch cfg.Storage.Backend {
	case config.StorageSupabase:
		return NewSupabase(SupabaseOptions{
			URL:        cfg.Storage.SupabaseURL,
			Key:        cfg.Storage.SupabaseKey,
			Bucket:     cfg.Storage.Bucket,
			DefaultTTL: cfg.SignedURLTTL(),
		})
	case config.StorageLocal, "":
		return NewLocal(LocalOptions{
			Root:       cfg.Storage.LocalDir,
			SigningKey: cfg.Storage.SigningKey,
			BaseURL:    cfg.Storage.PublicBaseURL,
			DefaultTTL: cfg.SignedURLTTL(),
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init",
			fmt.Sprintf("unknown backend %q", cfg.Storage.Backend), nil)
	}
}

// GenerateKey returns a globally unique key for a user-supplied file:
// prefix/<unix-millis>-<random token><ext>.
func GenerateKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), token, ext)
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// VideoKey returns the stable key for a per-video artifact, e.g.
// VideoKey("abc", "audio.mp3") == "videos/abc/audio.mp3". Stable keys make a
// rerun overwrite the previous output.
func VideoKey(videoID string, parts ...string) string {
	elems := append([]string{"videos", videoID}, parts...)
	return path.Join(elems...)
}

// CleanKey validates and normalizes a key: slash separated, relative, with no
// parent references.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "key", "key is empty", nil)
	}
	cleaned := path.Clean(strings.TrimLeft(strings.ReplaceAll(trimmed, "\\", "/"), "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", services.Wrap(services.ErrValidation, "storage", "key", fmt.Sprintf("invalid key %q", key), nil)
	}
	return cleaned, nil
}

// Upload stores the local file at src under key.
func Upload(ctx context.Context, gw Gateway, key, src, contentType string, opts ...PutOption) (Object, error) {
	f, err := os.Open(src)
	if err != nil {
		return Object{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	return gw.Put(ctx, key, f, contentType, opts...)
}

// Download copies the object at key into dst, creating parent directories.
func Download(ctx context.Context, gw Gateway, key, dst string) (int64, error) {
	body, err := gw.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		return n, services.Wrap(services.ErrGateway, "storage", "download", key, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close %s: %w", dst, closeErr)
	}
	return n, nil
}

// ContentTypeFor guesses a content type from the key extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".srt":
		return "application/x-subrip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
