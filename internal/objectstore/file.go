package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"toltec-dpdb/internal/domain"
)

// FileBackend stats file:// URIs and plain paths on the local filesystem.
type FileBackend struct{}

// Stat returns the size of a regular file.
func (FileBackend) Stat(_ context.Context, uri string) (int64, error) {
	path, err := LocalPath(uri)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, domain.ErrNotFound("file %s does not exist", path)
	}
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return 0, domain.ErrValidation("%s is a directory", path)
	}
	return fi.Size(), nil
}

// LocalPath converts a file:// URI to a filesystem path. Strings without a
// scheme are returned unchanged.
func LocalPath(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", domain.ErrValidation("parse uri %q: %v", uri, err)
	}
	if u.Scheme != "file" {
		return "", domain.ErrValidation("expected file:// scheme, got %q in %q", u.Scheme, uri)
	}
	return u.Path, nil
}

// HTTPBackend issues HEAD requests against http(s) URIs.
type HTTPBackend struct {
	client *http.Client
}

// NewHTTPBackend returns an HTTPBackend; timeout <= 0 means 10s.
func NewHTTPBackend(timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{client: &http.Client{Timeout: timeout}}
}

// Stat returns Content-Length, or -1 when the server omits it.
func (b *HTTPBackend) Stat(ctx context.Context, uri string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return 0, domain.ErrValidation("build request for %q: %v", uri, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return 0, domain.ErrNotFound("%s returned %d", uri, resp.StatusCode)
	case resp.StatusCode >= 300:
		return 0, fmt.Errorf("HEAD %s: status %d", uri, resp.StatusCode)
	}
	return resp.ContentLength, nil
}
