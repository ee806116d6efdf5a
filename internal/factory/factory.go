package factory

import (
	"context"
	"fmt"

	"go-photo-search/internal/config"
	"go-photo-search/internal/logger"
	"go-photo-search/internal/repository"
	"go-photo-search/internal/storage"
	"go-photo-search/pkg/validation"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// HTTPStorage for http(s) image URLs
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
	// MinioStorage for S3-compatible object stores
	MinioStorage StorageType = "minio"
	// LocalStorage for local file system
	LocalStorage StorageType = "local"
)

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
	// CreateRouter registers every backend the configuration enables.
	CreateRouter() (*storage.Router, error)
}

// RepositoryFactory opens the candidate corpus
type RepositoryFactory interface {
	CreateRepository(ctx context.Context) (repository.CandidateRepository, error)
}

type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageFetcher, error) {
	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPImageFetcher(
			storage.WithMaxBytes(f.cfg.MaxImageBytes),
			storage.WithRateLimit(f.cfg.FetchRateLimit),
		), nil
	case AzureStorage:
		if !f.cfg.AzureEnabled() {
			return nil, fmt.Errorf("azure storage is not configured")
		}
		blob, err := storage.NewAzureBlobFetcher(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, f.cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		return blob, nil
	case MinioStorage:
		if !f.cfg.MinioEnabled() {
			return nil, fmt.Errorf("minio storage is not configured")
		}
		objects, err := storage.NewMinioFetcher(storage.MinioOptions{
			Endpoint:  f.cfg.MinioEndpoint,
			AccessKey: f.cfg.MinioAccessKey,
			SecretKey: f.cfg.MinioSecretKey,
			UseSSL:    f.cfg.MinioUseSSL,
			MaxBytes:  f.cfg.MaxImageBytes,
		})
		if err != nil {
			return nil, err
		}
		return objects, nil
	case LocalStorage:
		if !f.cfg.LocalFilesEnabled() {
			return nil, fmt.Errorf("local storage is not configured")
		}
		files, err := storage.NewFileImageFetcher(f.cfg.LocalImageRoot, f.cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		return files, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

func (f *storageFactory) CreateRouter() (*storage.Router, error) {
	schemes := []string{validation.SchemeHTTP, validation.SchemeHTTPS}
	hosts := append([]string(nil), f.cfg.AllowedImageHosts...)
	if f.cfg.AzureEnabled() {
		schemes = append(schemes, validation.SchemeAzBlob)
		if len(hosts) > 0 {
			// blob URLs on the account host must pass the allow-list too
			hosts = append(hosts, f.cfg.AzureStorageAccount+".blob.core.windows.net")
		}
	}
	if f.cfg.MinioEnabled() {
		schemes = append(schemes, validation.SchemeS3)
	}
	if f.cfg.LocalFilesEnabled() {
		schemes = append(schemes, validation.SchemeFile)
	}

	router := storage.NewRouter(validation.NewURLValidatorWithOptions(schemes, hosts))

	web, err := f.CreateStorage(HTTPStorage)
	if err != nil {
		return nil, err
	}
	router.Register(validation.SchemeHTTP, web).Register(validation.SchemeHTTPS, web)

	if f.cfg.AzureEnabled() {
		blob, err := storage.NewAzureBlobFetcher(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, f.cfg.MaxImageBytes)
		if err != nil {
			return nil, fmt.Errorf("azure storage: %w", err)
		}
		router.Register(validation.SchemeAzBlob, blob).RegisterHost(blob.Host(), blob)
	}
	if f.cfg.MinioEnabled() {
		objects, err := f.CreateStorage(MinioStorage)
		if err != nil {
			return nil, fmt.Errorf("minio storage: %w", err)
		}
		router.Register(validation.SchemeS3, objects)
	}
	if f.cfg.LocalFilesEnabled() {
		files, err := f.CreateStorage(LocalStorage)
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		router.Register(validation.SchemeFile, files)
	}

	logger.WithField("schemes", router.Schemes()).Info("Image storage backends ready")
	return router, nil
}

type repositoryFactory struct {
	cfg *config.Config
}

// NewRepositoryFactory creates a corpus repository factory
func NewRepositoryFactory(cfg *config.Config) RepositoryFactory {
	return &repositoryFactory{cfg: cfg}
}

// CreateRepository opens the configured database. SQLite corpora get their
// tables created on first use.
func (f *repositoryFactory) CreateRepository(ctx context.Context) (repository.CandidateRepository, error) {
	repo, err := repository.OpenSQLCandidateRepository(ctx, f.cfg.CorpusDriver, f.cfg.CorpusDSN)
	if err != nil {
		return nil, err
	}
	if f.cfg.CorpusDriver == repository.DriverSQLite {
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory    StorageFactory
	RepositoryFactory RepositoryFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory:    NewStorageFactory(cfg),
		RepositoryFactory: NewRepositoryFactory(cfg),
	}
}
