package container

import (
	"context"
	"fmt"
	"net/http"

	"go-photo-search/internal/config"
	"go-photo-search/internal/factory"
	"go-photo-search/internal/logger"
	"go-photo-search/internal/observer"
	"go-photo-search/internal/ranking"
	"go-photo-search/internal/repository"
	"go-photo-search/internal/search"
	"go-photo-search/internal/similarity"
	"go-photo-search/internal/storage"
	"go-photo-search/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	fetcher    storage.ImageFetcher
	repository repository.CandidateRepository
	pool       *search.WorkerPool
	searcher   *search.Searcher
	metrics    *observer.MetricsObserver
	handler    http.Handler
}

// NewContainer builds the dependency graph from configuration
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	components := factory.NewComponentFactory(cfg)

	router, err := components.StorageFactory.CreateRouter()
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	repo, err := components.RepositoryFactory.CreateRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}

	return newContainer(cfg, router, repo), nil
}

// NewContainerWith wires the application around an existing fetcher and
// repository.
func NewContainerWith(cfg *config.Config, fetcher storage.ImageFetcher, repo repository.CandidateRepository) *Container {
	return newContainer(cfg, fetcher, repo)
}

func newContainer(cfg *config.Config, fetcher storage.ImageFetcher, repo repository.CandidateRepository) *Container {
	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	pool := search.NewWorkerPool(cfg.SearchWorkers)
	pool.Start()

	searcher := search.NewSearcher(repo, fetcher, pool, publisher, search.Config{
		Weights: similarity.Weights{Histogram: cfg.HistogramWeight, Color: cfg.ColorWeight},
		Policy: ranking.Policy{
			Floor:      cfg.SimilarityFloor,
			MaxResults: cfg.MaxResults,
		},
		FetchTimeout:   cfg.ImageFetchTimeout,
		MaxImagePixels: cfg.MaxImagePixels,
	})
	handler := transport.NewHandler(searcher, search.NewSessions(searcher), metrics, cfg)

	return &Container{
		config:     cfg,
		fetcher:    fetcher,
		repository: repo,
		pool:       pool,
		searcher:   searcher,
		metrics:    metrics,
		handler:    handler,
	}
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Searcher returns the search service
func (c *Container) Searcher() *search.Searcher {
	return c.searcher
}

// Close stops the worker pool and releases the corpus connection.
func (c *Container) Close() error {
	c.pool.Close()
	return c.repository.Close()
}
