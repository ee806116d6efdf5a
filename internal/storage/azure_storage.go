package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-photo-search/internal/errors"
)

// AzureBlobFetcher reads report photos kept in Azure Blob Storage.
// Locations look like azblob://container/path/to/blob.jpg or
// https://<account>.blob.core.windows.net/container/path/to/blob.jpg.
type AzureBlobFetcher struct {
	client   *azblob.Client
	account  string
	maxBytes int64
}

// NewAzureBlobFetcher authenticates with a shared key.
func NewAzureBlobFetcher(accountName, accountKey string, maxBytes int64) (*AzureBlobFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &AzureBlobFetcher{client: client, account: accountName, maxBytes: maxBytes}, nil
}

// Host is the blob endpoint host for the configured account.
func (s *AzureBlobFetcher) Host() string {
	return s.account + ".blob.core.windows.net"
}

func (s *AzureBlobFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	containerName, blobName, err := parseBlobLocation(location)
	if err != nil {
		return nil, apperrors.NewFetchError("invalid blob location", err)
	}

	resp, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, apperrors.NewFetchError("blob download failed", err)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, s.maxBytes)
	if err != nil {
		return nil, apperrors.NewFetchError("blob read failed", err)
	}
	return data, nil
}

// parseBlobLocation splits a blob location into container and blob name.
func parseBlobLocation(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}

	var container, blob string
	switch u.Scheme {
	case "azblob":
		container = u.Host
		blob = strings.TrimPrefix(u.Path, "/")
	case "http", "https":
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) == 2 {
			container, blob = parts[0], parts[1]
		}
	default:
		return "", "", fmt.Errorf("unsupported blob scheme %q", u.Scheme)
	}

	if container == "" || blob == "" {
		return "", "", fmt.Errorf("location %q must name a container and a blob", location)
	}
	return container, blob, nil
}
