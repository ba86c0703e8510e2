package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"toltec-dpdb/internal/domain"
)

// GCSOptions configures the GCS client. With neither field set the client
// uses application default credentials.
type GCSOptions struct {
	Endpoint    string
	KeyFilePath string
	// Anonymous disables authentication, for public buckets and emulators.
	Anonymous bool
}

// GCSBackend stats gs://bucket/object URIs.
type GCSBackend struct {
	client *storage.Client
}

// NewGCSBackend creates the storage client.
func NewGCSBackend(ctx context.Context, opts GCSOptions) (*GCSBackend, error) {
	var copts []option.ClientOption
	if opts.Endpoint != "" {
		copts = append(copts, option.WithEndpoint(opts.Endpoint))
	}
	switch {
	case opts.Anonymous:
		copts = append(copts, option.WithoutAuthentication())
	case opts.KeyFilePath != "":
		copts = append(copts, option.WithAuthCredentialsFile(option.ServiceAccount, opts.KeyFilePath))
	}
	client, err := storage.NewClient(ctx, copts...)
	if err != nil {
		return nil, domain.ErrConfiguration("create GCS client: %v", err)
	}
	return &GCSBackend{client: client}, nil
}

// Stat returns the object size from its attributes.
func (b *GCSBackend) Stat(ctx context.Context, uri string) (int64, error) {
	bucket, key, err := ParseGCSPath(uri)
	if err != nil {
		return 0, err
	}
	attrs, err := b.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return 0, domain.ErrNotFound("gcs object %s not found", uri)
	}
	if err != nil {
		return 0, fmt.Errorf("object attrs %q: %w", uri, err)
	}
	return attrs.Size, nil
}

// Close releases the client.
func (b *GCSBackend) Close() error { return b.client.Close() }

// ParseGCSPath extracts bucket and key from a "gs://bucket/path/to/file" URI.
func ParseGCSPath(path string) (bucket, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", domain.ErrValidation("parse GCS path %q: %v", path, err)
	}
	if u.Scheme != "gs" {
		return "", "", domain.ErrValidation("expected gs:// scheme, got %q in %q", u.Scheme, path)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", domain.ErrValidation("GCS path %q needs a bucket and a key", path)
	}
	return bucket, key, nil
}
