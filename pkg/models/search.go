package models

// MatchResult is a candidate together with its similarity to the query.
type MatchResult struct {
	CandidateImage
	Similarity float64 `json:"similarity"`
}

// ScoreBreakdown exposes both similarity terms and the weighted combination.
type ScoreBreakdown struct {
	Histogram float64 `json:"histogram_similarity"`
	Color     float64 `json:"color_similarity"`
	Combined  float64 `json:"similarity"`
}

// SearchRequest is the JSON body accepted by the search endpoint when the
// query image is referenced by location instead of uploaded.
type SearchRequest struct {
	ImageURL   string   `json:"image_url" binding:"required"`
	Categories []string `json:"categories,omitempty"`
}

// SearchResponse is returned for every successful search, including ones
// with no matches.
type SearchResponse struct {
	SearchID       string        `json:"search_id"`
	Matches        []MatchResult `json:"matches"`
	CandidateCount int           `json:"candidate_count"`
	FailedCount    int           `json:"failed_count"`
	Message        string        `json:"message,omitempty"`
	ProcessingMs   int64         `json:"processing_ms"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}
