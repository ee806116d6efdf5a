package repository

import (
	"context"

	"go-photo-search/pkg/models"
)

// StaticCandidateRepository serves a fixed list of candidates.
type StaticCandidateRepository struct {
	candidates []models.CandidateImage
}

func NewStaticCandidateRepository(candidates []models.CandidateImage) *StaticCandidateRepository {
	cp := make([]models.CandidateImage, len(candidates))
	copy(cp, candidates)
	return &StaticCandidateRepository{candidates: cp}
}

func (r *StaticCandidateRepository) ListCandidatesWithImages(ctx context.Context, categories ...models.Category) ([]models.CandidateImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := categorySet(categories)

	out := make([]models.CandidateImage, 0, len(r.candidates))
	for _, c := range r.candidates {
		if c.ImageLocation == "" {
			continue
		}
		if len(wanted) > 0 && !wanted[c.Category] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *StaticCandidateRepository) Close() error { return nil }

func categorySet(categories []models.Category) map[models.Category]bool {
	set := make(map[models.Category]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return set
}
