package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	apperrors "go-photo-search/internal/errors"
)

// ImageFetcher retrieves the raw bytes stored at an image location.
// Failures are reported as fetch errors; decoding is left to the caller.
type ImageFetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

const (
	defaultAttempts      = 3
	defaultBackoff       = time.Second
	defaultMaxImageBytes = 20 * 1024 * 1024
)

// HTTPImageFetcher downloads images over http(s) with a small retry budget.
type HTTPImageFetcher struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	maxBytes int64
	limiter  *rate.Limiter
}

// HTTPOption configures an HTTPImageFetcher.
type HTTPOption func(*HTTPImageFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPImageFetcher) {
		h.client = c
	}
}

// WithBackoff sets the base delay between attempts. Attempt n waits n*d.
func WithBackoff(d time.Duration) HTTPOption {
	return func(h *HTTPImageFetcher) {
		h.backoff = d
	}
}

// WithMaxBytes caps the size of a downloaded image.
func WithMaxBytes(n int64) HTTPOption {
	return func(h *HTTPImageFetcher) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithRateLimit bounds outbound requests per second. Zero disables it.
func WithRateLimit(perSecond float64) HTTPOption {
	return func(h *HTTPImageFetcher) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts ...HTTPOption) *HTTPImageFetcher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16, // a search fans out to many images on the same storage host
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 16 * 1024,
	}

	h := &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		maxBytes: defaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch downloads the image at location. Transport errors and 5xx replies
// are retried; 4xx replies are not.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < h.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, time.Duration(attempt)*h.backoff); err != nil {
				return nil, apperrors.NewFetchError("image fetch abandoned", err)
			}
		}
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return nil, apperrors.NewFetchError("image fetch abandoned", err)
			}
		}

		data, retryable, err := h.fetchOnce(ctx, location)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}

	return nil, apperrors.NewFetchError(fmt.Sprintf("failed to fetch image after %d attempts", h.attempts), lastErr)
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, location string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Photo-Search/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, !errors.Is(err, context.Canceled), err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

// readLimited reads at most max bytes and fails if the stream is longer.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("image exceeds %d bytes", max)
	}
	return data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
