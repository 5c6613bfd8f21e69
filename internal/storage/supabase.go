package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	storage_go "github.com/supabase-community/storage-go"

	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

// SupabaseOptions configures the Supabase Storage backend.
type SupabaseOptions struct {
	URL        string
	Key        string
	Bucket     string
	DefaultTTL time.Duration
}

// Supabase stores objects in one Supabase Storage bucket.
type Supabase struct {
	// storage-go keeps upload headers (content type, upsert) on the client's
	// transport. Uploads go through their own client under mu so those
	// headers never leak into JSON requests.
	mu       sync.Mutex
	uploader *storage_go.Client
	client   *storage_go.Client
	endpoint string
	key      string
	bucket   string
	ttl      time.Duration
}

// NewSupabase builds a client against URL/storage/v1.
func NewSupabase(opts SupabaseOptions) (*Supabase, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" || strings.TrimSpace(opts.Key) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "supabase_url and supabase_key are required", nil)
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "bucket is required", nil)
	}
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	endpoint := base + "/storage/v1"
	headers := map[string]string{"apikey": opts.Key}
	return &Supabase{
		uploader: storage_go.NewClient(endpoint, opts.Key, headers),
		client:   storage_go.NewClient(endpoint, opts.Key, headers),
		endpoint: endpoint,
		key:      opts.Key,
		bucket:   bucket,
		ttl:      ttl,
	}, nil
}

// Put uploads with upsert so reruns overwrite the previous object. Metadata
// travels base64-encoded in the x-metadata header.
func (s *Supabase) Put(ctx context.Context, key string, body io.Reader, contentType string, opts ...PutOption) (Object, error) {
	options := applyPutOptions(opts)
	cleaned, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if contentType == "" {
		contentType = ContentTypeFor(cleaned)
	}
	counter := &countingReader{r: body}
	upsert := true

	fileOpts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}
	if len(options.metadata) > 0 {
		uploader, encErr := s.metadataUploader(options.metadata)
		if encErr != nil {
			return Object{}, services.Wrap(services.ErrValidation, "storage", "put", cleaned, encErr)
		}
		_, err = uploader.UploadFile(s.bucket, cleaned, counter, fileOpts)
	} else {
		s.mu.Lock()
		_, err = s.uploader.UploadFile(s.bucket, cleaned, counter, fileOpts)
		s.mu.Unlock()
	}
	if err != nil {
		return Object{}, services.Wrap(services.ErrGateway, "storage", "put", cleaned, err)
	}

	signed, err := s.SignedURL(ctx, cleaned, s.ttl)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: cleaned, URL: signed, SizeBytes: counter.n, ContentType: contentType, Metadata: options.metadata}, nil
}

// metadataUploader returns a one-off client whose requests carry md.
func (s *Supabase) metadataUploader(md map[string]string) (*storage_go.Client, error) {
	encoded, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	return storage_go.NewClient(s.endpoint, s.key, map[string]string{
		"apikey":     s.key,
		"x-metadata": base64.StdEncoding.EncodeToString(encoded),
	}), nil
}

// Get downloads the object into memory.
func (s *Supabase) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, cleaned)
	if err != nil {
		if isSupabaseNotFound(err) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, services.Wrap(services.ErrGateway, "storage", "get", cleaned, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// SignedURL asks Supabase to sign key for ttl.
func (s *Supabase) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	resp, err := s.client.CreateSignedUrl(s.bucket, cleaned, int(ttl.Seconds()))
	if err != nil {
		return "", services.Wrap(services.ErrGateway, "storage", "sign", cleaned, err)
	}
	return resp.SignedURL, nil
}

// Delete removes the object. Supabase treats missing prefixes as a no-op.
func (s *Supabase) Delete(ctx context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = s.client.RemoveFile(s.bucket, []string{cleaned})
	if err != nil && !isSupabaseNotFound(err) {
		return services.Wrap(services.ErrGateway, "storage", "delete", cleaned, err)
	}
	return nil
}

// Copy downloads srcKey and uploads it as dstKey. Metadata is not carried
// over since storage-go cannot read it back.
func (s *Supabase) Copy(ctx context.Context, srcKey, dstKey string) error {
	body, err := s.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	defer body.Close()
	_, err = s.Put(ctx, dstKey, body, "")
	return err
}

// Exists lists the key's parent folder and looks for an exact name match.
func (s *Supabase) Exists(ctx context.Context, key string) (bool, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, name := path.Split(cleaned)
	files, err := s.client.ListFiles(s.bucket, strings.TrimSuffix(dir, "/"), storage_go.FileSearchOptions{Limit: 1000})
	if err != nil {
		if isSupabaseNotFound(err) {
			return false, nil
		}
		return false, services.Wrap(services.ErrGateway, "storage", "exists", cleaned, err)
	}
	for _, f := range files {
		if f.Name == name && f.Id != "" {
			return true, nil
		}
	}
	return false, nil
}

// Health lists the bucket root.
func (s *Supabase) Health(ctx context.Context) stage.Health {
	if err := ctx.Err(); err != nil {
		return stage.Unhealthy("storage", err.Error())
	}
	_, err := s.client.ListFiles(s.bucket, "", storage_go.FileSearchOptions{Limit: 1})
	if err != nil {
		return stage.Unhealthy("storage", "supabase: "+err.Error())
	}
	return stage.Healthy("storage")
}

func isSupabaseNotFound(err error) bool {
	var storageErr *storage_go.StorageError
	if errors.As(err, &storageErr) && storageErr.Status == 404 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "not_found") || strings.Contains(msg, "404")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
