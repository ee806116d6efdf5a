package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	apperrors "go-photo-search/internal/errors"
)

// FileImageFetcher reads images from local disk via file:/// locations.
// Paths must resolve inside root.
type FileImageFetcher struct {
	root     string
	maxBytes int64
}

func NewFileImageFetcher(root string, maxBytes int64) (*FileImageFetcher, error) {
	if root == "" {
		return nil, fmt.Errorf("local image root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve image root: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &FileImageFetcher{root: filepath.Clean(abs), maxBytes: maxBytes}, nil
}

func (f *FileImageFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewFetchError("image fetch abandoned", err)
	}

	path, err := f.resolve(location)
	if err != nil {
		return nil, apperrors.NewFetchError("invalid file location", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewFetchError("open image file", err)
	}
	defer file.Close()

	data, err := readLimited(file, f.maxBytes)
	if err != nil {
		return nil, apperrors.NewFetchError("read image file", err)
	}
	return data, nil
}

func (f *FileImageFetcher) resolve(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported file scheme %q", u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("remote file host %q", u.Host)
	}

	path := filepath.Clean(filepath.FromSlash(u.Path))
	if path != f.root && !strings.HasPrefix(path, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside %q", path, f.root)
	}
	return path, nil
}
