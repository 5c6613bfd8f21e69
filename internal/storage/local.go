package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

// LocalOptions configures the filesystem backend.
type LocalOptions struct {
	Root       string
	SigningKey string
	// BaseURL prefixes signed URLs, usually the API's /api/blobs endpoint.
	BaseURL    string
	DefaultTTL time.Duration
	Now        func() time.Time
}

// Local stores objects as files below Root.
type Local struct {
	root    string
	key     []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewLocal creates the root directory when needed.
func NewLocal(opts LocalOptions) (*Local, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "local_dir is required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "create local_dir", err)
	}
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "file://" + filepath.ToSlash(root)
	}
	return &Local{
		root:    root,
		key:     []byte(opts.SigningKey),
		baseURL: baseURL,
		ttl:     ttl,
		now:     now,
	}, nil
}

func (l *Local) path(key string) (string, string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

// Put writes body to a temp file and renames it into place, overwriting any
// existing object. Metadata is kept in a hidden sidecar file next to it.
func (l *Local) Put(ctx context.Context, key string, body io.Reader, contentType string, opts ...PutOption) (Object, error) {
	options := applyPutOptions(opts)
	cleaned, target, err := l.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, services.Wrap(services.ErrGateway, "storage", "put", cleaned, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return Object{}, services.Wrap(services.ErrGateway, "storage", "put", cleaned, err)
	}
	tmpName := tmp.Name()
	size, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		return Object{}, services.Wrap(services.ErrGateway, "storage", "put", cleaned, errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return Object{}, services.Wrap(services.ErrGateway, "storage", "put", cleaned, err)
	}
	if err := writeSidecar(target, options.metadata); err != nil {
		return Object{}, services.Wrap(services.ErrGateway, "storage", "put metadata", cleaned, err)
	}
	if contentType == "" {
		contentType = ContentTypeFor(cleaned)
	}
	signed, err := l.SignedURL(ctx, cleaned, l.ttl)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: cleaned, URL: signed, SizeBytes: size, ContentType: contentType, Metadata: options.metadata}, nil
}

// Metadata returns the user metadata stored with key, nil when there is none.
func (l *Local) Metadata(_ context.Context, key string) (map[string]string, error) {
	cleaned, target, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(sidecarPath(target))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrGateway, "storage", "metadata", cleaned, err)
	}
	var md map[string]string
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, services.Wrap(services.ErrGateway, "storage", "metadata", cleaned, err)
	}
	return md, nil
}

func sidecarPath(target string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".meta.json")
}

// writeSidecar stores md for target, removing any previous sidecar when md is empty.
func writeSidecar(target string, md map[string]string) error {
	path := sidecarPath(target)
	if len(md) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get opens the object for reading.
func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, target, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", cleaned, ErrNotFound)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrGateway, "storage", "get", cleaned, err)
	}
	return f, nil
}

// SignedURL returns BaseURL/key?expires=<unix>&sig=<hex hmac>. The object is
// not required to exist yet.
func (l *Local) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = l.ttl
	}
	expires := l.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", l.sign(cleaned, expires))
	return l.baseURL + "/" + escapeKey(cleaned) + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (l *Local) Verify(key, expires, sig string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return services.Wrap(services.ErrValidation, "storage", "verify", "malformed expiry", err)
	}
	if l.now().Unix() > exp {
		return services.Wrap(services.ErrValidation, "storage", "verify", "signed url expired", nil)
	}
	expected := l.sign(cleaned, exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return services.Wrap(services.ErrValidation, "storage", "verify", "signature mismatch", nil)
	}
	return nil
}

func (l *Local) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Delete removes the object. Deleting a missing object is not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	cleaned, target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrGateway, "storage", "delete", cleaned, err)
	}
	if err := writeSidecar(target, nil); err != nil {
		return services.Wrap(services.ErrGateway, "storage", "delete metadata", cleaned, err)
	}
	return nil
}

// Copy duplicates srcKey and its metadata to dstKey.
func (l *Local) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := l.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	defer src.Close()
	md, err := l.Metadata(ctx, srcKey)
	if err != nil {
		return err
	}
	_, err = l.Put(ctx, dstKey, src, "", WithMetadata(md))
	return err
}

// Exists reports whether a regular file is stored under key.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	cleaned, target, err := l.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrGateway, "storage", "exists", cleaned, err)
	}
	return info.Mode().IsRegular(), nil
}

// Health reports whether the root directory is present.
func (l *Local) Health(context.Context) stage.Health {
	info, err := os.Stat(l.root)
	if err != nil {
		return stage.Unhealthy("storage", err.Error())
	}
	if !info.IsDir() {
		return stage.Unhealthy("storage", l.root+" is not a directory")
	}
	return stage.Healthy("storage")
}

// Root returns the directory objects are stored under.
func (l *Local) Root() string {
	return l.root
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
