// Package ranking turns scored candidates into the final ordered match list.
package ranking

import (
	"sort"

	"go-photo-search/pkg/models"
)

const (
	// DefaultFloor is the score a candidate must strictly exceed to count as
	// a match.
	DefaultFloor = 0.3
	// DefaultMaxResults caps the number of returned matches.
	DefaultMaxResults = 10
)

// Policy controls filtering and truncation.
type Policy struct {
	Floor      float64
	MaxResults int
}

// DefaultPolicy returns the standard floor and cap.
func DefaultPolicy() Policy {
	return Policy{Floor: DefaultFloor, MaxResults: DefaultMaxResults}
}

type byScore []models.MatchResult

func (m byScore) Len() int           { return len(m) }
func (m byScore) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }
func (m byScore) Less(i, j int) bool { return m[i].Similarity > m[j].Similarity }

// Rank keeps candidates scoring strictly above the floor, sorts them by
// descending similarity (stable, so ties keep input order) and truncates to
// the result cap. The result is never nil.
func Rank(scored []models.MatchResult, p Policy) []models.MatchResult {
	kept := make([]models.MatchResult, 0, len(scored))
	for _, m := range scored {
		if m.Similarity > p.Floor {
			kept = append(kept, m)
		}
	}

	sort.Stable(byScore(kept))

	if p.MaxResults > 0 && len(kept) > p.MaxResults {
		kept = kept[:p.MaxResults]
	}
	return kept
}
