// Package search implements the ranked semantic search engine over the index
// store: candidate filtering, weighted relevance scoring, phrase matching,
// pagination, suggestions, and a TTL'd result cache.
package search

import (
	"time"

	"github.com/playbacklab/vidsearch/internal/model"
)

// SearchQuery describes one search request. Every field participates in the
// result-cache key.
type SearchQuery struct {
	Text         string              `json:"text"`
	Limit        int                 `json:"limit,omitempty"`
	Threshold    float64             `json:"threshold,omitempty"`
	ContentKinds []model.ContentKind `json:"content_kinds,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	DateFrom     *time.Time          `json:"date_from,omitempty"`
	DateTo       *time.Time          `json:"date_to,omitempty"`
	BoostRecent  bool                `json:"boost_recent,omitempty"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	VideoID        string              `json:"video_id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Score          float64             `json:"score"`
	MatchedContent []model.ContentKind `json:"matched_content,omitempty"`
	Snippet        string              `json:"snippet,omitempty"`
	Tags           []string            `json:"tags,omitempty"`
	Owner          string              `json:"owner"`
	CreatedAt      time.Time           `json:"created_at"`
}

// SearchMetrics is per-call observability data. Produced for every search,
// never persisted.
type SearchMetrics struct {
	Duration               time.Duration `json:"duration"`
	CandidatesBefore       int           `json:"candidates_before"`
	CandidatesAfter        int           `json:"candidates_after"`
	SimilarityComputations int           `json:"similarity_computations"`
	CacheHit               bool          `json:"cache_hit"`
}

// PaginatedResults is one page of search results with navigation totals.
type PaginatedResults struct {
	Results      []SearchResult `json:"results"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	TotalResults int            `json:"total_results"`
	TotalPages   int            `json:"total_pages"`
	HasNext      bool           `json:"has_next"`
	HasPrevious  bool           `json:"has_previous"`
}

// Suggestion is one prefix-completion candidate with its corpus frequency.
type Suggestion struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}
