package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-photo-search/internal/descriptor"
	apperrors "go-photo-search/internal/errors"
	"go-photo-search/internal/logger"
	"go-photo-search/internal/observer"
	"go-photo-search/internal/ranking"
	"go-photo-search/internal/repository"
	"go-photo-search/internal/similarity"
	"go-photo-search/internal/storage"
	"go-photo-search/pkg/models"
)

// Advisory messages attached to results that carry no matches.
const (
	AdvisoryNoCandidates = "no candidates to search"
	AdvisoryNoMatches    = "no matches found"
)

const defaultFetchTimeout = 10 * time.Second

// Options narrows or tunes a single search.
type Options struct {
	Categories []models.Category

	// Floor and MaxResults override the searcher's ranking policy when set.
	Floor      *float64
	MaxResults int
}

// Result is the outcome of one search. Matches is never nil.
type Result struct {
	SearchID       string
	Matches        []models.MatchResult
	CandidateCount int
	FailedCount    int
	Advisory       string
	Duration       time.Duration
}

// Config holds the tunables of a Searcher.
type Config struct {
	Weights      similarity.Weights
	Policy       ranking.Policy
	FetchTimeout time.Duration

	// MaxImagePixels rejects oversized images before decoding.
	MaxImagePixels int64
}

// DefaultConfig returns the stock weights, floor and result cap.
func DefaultConfig() Config {
	return Config{
		Weights:        similarity.DefaultWeights(),
		Policy:         ranking.DefaultPolicy(),
		FetchTimeout:   defaultFetchTimeout,
		MaxImagePixels: descriptor.DefaultMaxPixels,
	}
}

// Searcher compares a query image against every stored candidate.
type Searcher struct {
	repo      repository.CandidateRepository
	fetcher   storage.ImageFetcher
	extractor *descriptor.Extractor
	pool      *WorkerPool
	publisher observer.Subject
	cfg       Config
}

// NewSearcher wires a searcher. The pool must already be started; publisher
// may be nil.
func NewSearcher(repo repository.CandidateRepository, fetcher storage.ImageFetcher, pool *WorkerPool, publisher observer.Subject, cfg Config) *Searcher {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Policy.MaxResults <= 0 {
		cfg.Policy.MaxResults = ranking.DefaultMaxResults
	}
	if cfg.Weights.Histogram+cfg.Weights.Color <= 0 {
		cfg.Weights = similarity.DefaultWeights()
	}
	return &Searcher{
		repo:      repo,
		fetcher:   fetcher,
		extractor: descriptor.NewExtractor(cfg.MaxImagePixels),
		pool:      pool,
		publisher: publisher,
		cfg:       cfg,
	}
}

// SearchBySimilarImage ranks stored candidates by visual similarity to the
// query bytes. An undecodable query fails the whole search; a candidate that
// cannot be fetched or decoded scores zero and the search carries on.
func (s *Searcher) SearchBySimilarImage(ctx context.Context, query []byte, opts Options) (*Result, error) {
	return s.run(ctx, uuid.NewString(), func() ([]byte, error) { return query, nil }, opts)
}

// SearchByImageLocation fetches the query image first. Failing to fetch it is
// fatal, the same as failing to decode it.
func (s *Searcher) SearchByImageLocation(ctx context.Context, location string, opts Options) (*Result, error) {
	return s.run(ctx, uuid.NewString(), func() ([]byte, error) {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		return s.fetcher.Fetch(fctx, location)
	}, opts)
}

// Compare scores two images directly.
func (s *Searcher) Compare(a, b []byte) (models.ScoreBreakdown, error) {
	da, err := s.extractor.Extract(a)
	if err != nil {
		return models.ScoreBreakdown{}, err
	}
	defer s.extractor.Release(da)

	db, err := s.extractor.Extract(b)
	if err != nil {
		return models.ScoreBreakdown{}, err
	}
	defer s.extractor.Release(db)

	return similarity.Breakdown(da, db, s.cfg.Weights), nil
}

func (s *Searcher) run(ctx context.Context, searchID string, loadQuery func() ([]byte, error), opts Options) (*Result, error) {
	start := time.Now()
	log := logger.ForSearch(searchID)
	s.publish(ctx, observer.SearchEvent{EventType: observer.SearchStarted, SearchID: searchID})

	result, err := s.execute(ctx, log, searchID, loadQuery, opts)
	if err != nil {
		err = s.contextError(ctx, err)
		eventType := observer.SearchFailed
		if errors.Is(err, ErrSuperseded) {
			eventType = observer.SearchSuperseded
			log.Info("Search superseded by a newer one")
		} else {
			log.WithError(err).Warn("Search failed")
		}
		s.publish(ctx, observer.SearchEvent{
			EventType:      eventType,
			SearchID:       searchID,
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	result.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"candidates":     result.CandidateCount,
		"failed":         result.FailedCount,
		"matches":        len(result.Matches),
		"processing_sec": result.Duration.Seconds(),
	}).Info("Search completed")
	s.publish(ctx, observer.SearchEvent{
		EventType:      observer.SearchCompleted,
		SearchID:       searchID,
		ProcessingTime: result.Duration,
		Metadata: map[string]interface{}{
			"candidates": result.CandidateCount,
			"failed":     result.FailedCount,
			"matches":    len(result.Matches),
		},
	})
	return result, nil
}

func (s *Searcher) execute(ctx context.Context, log *logrus.Entry, searchID string, loadQuery func() ([]byte, error), opts Options) (*Result, error) {
	data, err := loadQuery()
	if err != nil {
		return nil, err
	}
	query, err := s.extractor.Extract(data)
	if err != nil {
		return nil, err
	}
	defer s.extractor.Release(query)

	candidates, err := s.repo.ListCandidatesWithImages(ctx, opts.Categories...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list candidate images", err)
	}

	result := &Result{
		SearchID:       searchID,
		Matches:        []models.MatchResult{},
		CandidateCount: len(candidates),
	}
	if len(candidates) == 0 {
		log.Info("Corpus is empty")
		result.Advisory = AdvisoryNoCandidates
		return result, nil
	}

	scored, failed, err := s.scoreAll(ctx, log, searchID, query, candidates)
	if err != nil {
		return nil, err
	}

	result.FailedCount = failed
	result.Matches = ranking.Rank(scored, s.policyFor(opts))
	if len(result.Matches) == 0 {
		result.Advisory = AdvisoryNoMatches
	}
	return result, nil
}

// scoreAll fans candidates out to the pool and waits for every one of them.
// Each task extracts into its own pooled grid.
func (s *Searcher) scoreAll(ctx context.Context, log *logrus.Entry, searchID string, query *descriptor.Descriptor, candidates []models.CandidateImage) ([]models.MatchResult, int, error) {
	scored := make([]models.MatchResult, len(candidates))
	var failed atomic.Int64
	var wg sync.WaitGroup

	var submitErr error
	for i := range candidates {
		i := i
		wg.Add(1)
		err := s.pool.Submit(ctx, func() {
			defer wg.Done()
			c := candidates[i]
			score, err := s.scoreCandidate(ctx, query, c)
			if err != nil {
				failed.Add(1)
				if ctx.Err() == nil {
					log.WithError(err).WithFields(logrus.Fields{
						"candidate_id":   c.ID,
						"category":       c.Category,
						"image_location": c.ImageLocation,
						"error_type":     apperrors.TypeOf(err),
					}).Warn("Candidate image could not be scored")
					s.publish(ctx, observer.SearchEvent{
						EventType:    observer.CandidateFailed,
						SearchID:     searchID,
						CandidateID:  c.ID,
						ErrorMessage: err.Error(),
					})
				}
			}
			scored[i] = models.MatchResult{CandidateImage: c, Similarity: score}
		})
		if err != nil {
			wg.Done()
			submitErr = err
			break
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}
	if submitErr != nil {
		return nil, 0, apperrors.NewInternalError("failed to schedule candidate scoring", submitErr)
	}
	return scored, int(failed.Load()), nil
}

// scoreCandidate returns zero with the cause when the candidate image cannot
// be used.
func (s *Searcher) scoreCandidate(ctx context.Context, query *descriptor.Descriptor, c models.CandidateImage) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	data, err := s.fetcher.Fetch(fctx, c.ImageLocation)
	if err != nil {
		if errors.Is(fctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, apperrors.NewTimeoutError("candidate image fetch timed out", err)
		}
		return 0, err
	}

	d, err := s.extractor.Extract(data)
	if err != nil {
		return 0, err
	}
	defer s.extractor.Release(d)

	return similarity.Score(query, d, s.cfg.Weights), nil
}

func (s *Searcher) policyFor(opts Options) ranking.Policy {
	p := s.cfg.Policy
	if opts.Floor != nil {
		p.Floor = *opts.Floor
	}
	if opts.MaxResults > 0 {
		p.MaxResults = opts.MaxResults
	}
	return p
}

// contextError reports caller cancellation and deadlines in place of the
// downstream error they caused.
func (s *Searcher) contextError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		if errors.Is(context.Cause(ctx), ErrSuperseded) {
			return ErrSuperseded
		}
		return apperrors.NewCancelledError("search cancelled", ctx.Err())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.NewTimeoutError("search timed out", ctx.Err())
	}
	return err
}

func (s *Searcher) publish(ctx context.Context, event observer.SearchEvent) {
	if s.publisher != nil {
		s.publisher.NotifyObservers(ctx, event)
	}
}
