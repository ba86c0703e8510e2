package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"toltec-dpdb/internal/domain"
)

// S3Options points the S3 backend at AWS or an S3-compatible endpoint.
type S3Options struct {
	Endpoint string // host[:port] or full URL; empty means AWS
	Region   string
	KeyID    string
	Secret   string
	URLStyle string // "path" (default with an endpoint) or "vhost"
}

// HeadObjectAPI is the subset of *s3.Client the backend needs.
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Backend stats s3://bucket/key URIs with HeadObject.
type S3Backend struct {
	client HeadObjectAPI
}

// NewS3Backend builds a static-credential S3 client.
func NewS3Backend(opts S3Options) (*S3Backend, error) {
	if opts.KeyID == "" || opts.Secret == "" {
		return nil, domain.ErrConfiguration("S3 key id and secret are required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	s3opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, ""),
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3opts.BaseEndpoint = aws.String(endpoint)
		s3opts.UsePathStyle = opts.URLStyle != "vhost"
	}
	return &S3Backend{client: s3.New(s3opts)}, nil
}

// NewS3BackendWithClient wraps an existing client.
func NewS3BackendWithClient(client HeadObjectAPI) *S3Backend {
	return &S3Backend{client: client}
}

// Stat returns the object's ContentLength.
func (b *S3Backend) Stat(ctx context.Context, uri string) (int64, error) {
	bucket, key, err := ParseS3Path(uri)
	if err != nil {
		return 0, err
	}
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return 0, domain.ErrNotFound("s3 object %s not found", uri)
		}
		return 0, fmt.Errorf("head object %q: %w", uri, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// ParseS3Path extracts bucket and key from an "s3://bucket/path/to/file" URI.
func ParseS3Path(s3Path string) (bucket, key string, err error) {
	u, err := url.Parse(s3Path)
	if err != nil {
		return "", "", domain.ErrValidation("parse S3 path %q: %v", s3Path, err)
	}
	if u.Scheme != "s3" {
		return "", "", domain.ErrValidation("expected s3:// scheme, got %q in %q", u.Scheme, s3Path)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", domain.ErrValidation("S3 path %q needs a bucket and a key", s3Path)
	}
	return bucket, key, nil
}
