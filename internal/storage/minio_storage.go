package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "go-photo-search/internal/errors"
)

// MinioFetcher reads images from an S3-compatible object store using
// s3://bucket/key locations.
type MinioFetcher struct {
	client   *minio.Client
	maxBytes int64
}

// MinioOptions holds connection settings for the object store.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	MaxBytes  int64
}

// NewMinioFetcher connects to the configured endpoint. No request is made
// until the first fetch.
func NewMinioFetcher(opts MinioOptions) (*MinioFetcher, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "https://"), "http://")
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &MinioFetcher{client: client, maxBytes: maxBytes}, nil
}

func (m *MinioFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseObjectLocation(location)
	if err != nil {
		return nil, apperrors.NewFetchError("invalid object location", err)
	}

	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.NewFetchError("object download failed", err)
	}
	defer obj.Close()

	data, err := readLimited(obj, m.maxBytes)
	if err != nil {
		if isMissingObject(err) {
			return nil, apperrors.NewFetchError("object not found", err)
		}
		return nil, apperrors.NewFetchError("object read failed", err)
	}
	return data, nil
}

// isMissingObject looks through wrapping for the store's not-found codes.
func isMissingObject(err error) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

// parseObjectLocation splits s3://bucket/key into its parts.
func parseObjectLocation(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("unsupported object scheme %q", u.Scheme)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("location %q must name a bucket and a key", location)
	}
	return bucket, key, nil
}
