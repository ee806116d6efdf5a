package repository

import (
	"context"

	"go-photo-search/pkg/models"
)

// CandidateRepository lists the stored report images a query is compared
// against.
type CandidateRepository interface {
	// ListCandidatesWithImages returns every report that has a photo, limited
	// to the given categories. No categories means all of them.
	ListCandidatesWithImages(ctx context.Context, categories ...models.Category) ([]models.CandidateImage, error)

	// Close releases any underlying connection.
	Close() error
}
