// Package objectstore checks whether a source's bytes are still retrievable
// from the backend its location points at.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"toltec-dpdb/internal/domain"
)

// Compile-time check: Verifier is the catalog's SourceVerifier.
var _ domain.SourceVerifier = (*Verifier)(nil)

// Backend stats one object. Implementations return a NotFoundError when the
// object does not exist and any other error when the backend could not answer.
type Backend interface {
	Stat(ctx context.Context, uri string) (size int64, err error)
}

// Options configures the cloud backends. Unset sections leave the backend
// unconfigured; verifying a source at such a location is a ConfigurationError.
type Options struct {
	S3    *S3Options
	GCS   *GCSOptions
	Azure *AzureOptions
	// HTTPTimeout bounds HEAD requests against http locations.
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// Verifier dispatches on the location type.
type Verifier struct {
	backends map[domain.LocationType]Backend
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a Verifier with the filesystem and http backends always present
// and cloud backends for every configured section.
func New(ctx context.Context, opts Options) (*Verifier, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{
		backends: map[domain.LocationType]Backend{
			domain.LocationFilesystem: FileBackend{},
			domain.LocationHTTP:       NewHTTPBackend(opts.HTTPTimeout),
		},
		logger: logger,
		now:    time.Now,
	}
	if opts.S3 != nil {
		b, err := NewS3Backend(*opts.S3)
		if err != nil {
			return nil, err
		}
		v.backends[domain.LocationS3] = b
	}
	if opts.GCS != nil {
		b, err := NewGCSBackend(ctx, *opts.GCS)
		if err != nil {
			return nil, err
		}
		v.backends[domain.LocationGCS] = b
	}
	if opts.Azure != nil {
		b, err := NewAzureBackend(*opts.Azure)
		if err != nil {
			return nil, err
		}
		v.backends[domain.LocationAzure] = b
	}
	return v, nil
}

// WithBackend replaces the backend for one location type.
func (v *Verifier) WithBackend(typ domain.LocationType, b Backend) *Verifier {
	v.backends[typ] = b
	return v
}

// Verify stats uri at loc. A missing object is a successful verification with
// availability MISSING; backend failures surface as TransportError.
func (v *Verifier) Verify(ctx context.Context, loc domain.Location, uri string) (domain.SourceVerification, error) {
	out := domain.SourceVerification{URI: uri}
	b, ok := v.backends[loc.Type]
	if !ok {
		return out, domain.ErrConfiguration("no %s backend configured for location %q", loc.Type, loc.Label)
	}

	size, err := b.Stat(ctx, uri)
	out.VerifiedAt = v.now().UTC()
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &nf):
		out.Availability = domain.AvailabilityMissing
		v.logger.Info("source missing", "location", loc.Label, "source_uri", uri)
		return out, nil
	case err != nil:
		var cfgErr *domain.ConfigurationError
		var valErr *domain.ValidationError
		if errors.As(err, &cfgErr) || errors.As(err, &valErr) {
			return out, err
		}
		return out, &domain.TransportError{Op: fmt.Sprintf("stat %s", uri), Attempts: 1, Err: err}
	}
	out.Availability = domain.AvailabilityAvailable
	out.Size = &size
	return out, nil
}
