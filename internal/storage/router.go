package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	apperrors "go-photo-search/internal/errors"
	"go-photo-search/pkg/validation"
)

// LocationValidator rejects locations that must never be fetched.
type LocationValidator interface {
	ValidateImageURL(location string) error
}

// Router sends each location to the fetcher registered for its scheme.
// Web URLs that point at the configured blob host go to that backend instead.
type Router struct {
	fetchers  map[string]ImageFetcher
	hosts     map[string]ImageFetcher
	validator LocationValidator
}

func NewRouter(validator LocationValidator) *Router {
	return &Router{
		fetchers:  make(map[string]ImageFetcher),
		hosts:     make(map[string]ImageFetcher),
		validator: validator,
	}
}

// Register binds a scheme such as "https" or "s3" to a fetcher.
func (r *Router) Register(scheme string, f ImageFetcher) *Router {
	r.fetchers[strings.ToLower(scheme)] = f
	return r
}

// RegisterHost binds http(s) URLs on host to a fetcher.
func (r *Router) RegisterHost(host string, f ImageFetcher) *Router {
	r.hosts[strings.ToLower(host)] = f
	return r
}

// Schemes lists the registered schemes.
func (r *Router) Schemes() []string {
	schemes := make([]string, 0, len(r.fetchers))
	for s := range r.fetchers {
		schemes = append(schemes, s)
	}
	return schemes
}

func (r *Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	if r.validator != nil {
		if err := r.validator.ValidateImageURL(location); err != nil {
			return nil, apperrors.NewFetchError("image location rejected", err)
		}
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, apperrors.NewFetchError("invalid image location", err)
	}
	scheme := strings.ToLower(u.Scheme)

	if scheme == validation.SchemeHTTP || scheme == validation.SchemeHTTPS {
		if f, ok := r.hosts[strings.ToLower(u.Hostname())]; ok {
			return f.Fetch(ctx, location)
		}
	}

	f, ok := r.fetchers[scheme]
	if !ok {
		return nil, apperrors.NewFetchError(fmt.Sprintf("no storage backend for scheme %q", scheme), nil)
	}
	return f.Fetch(ctx, location)
}
