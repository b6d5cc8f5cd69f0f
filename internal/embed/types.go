// Package embed defines the text-understanding collaborator contract and its
// implementations: a remote HTTP service client, a deterministic static
// processor, and an LRU-cached wrapper.
package embed

import (
	"context"
	"math"
)

// Default sizing for the static processor and caches.
const (
	// StaticDimensions is the vector dimension of the static processor.
	StaticDimensions = 256

	// DefaultCacheSize is the default number of processed documents to cache.
	DefaultCacheSize = 1000
)

// Document is the result of processing a piece of text: tokens, lemmas, POS
// tags, entities, sentences, and an optional dense vector. Vector is nil when
// the processor has no vector for the text (out-of-vocabulary is not an
// error).
type Document struct {
	Text      string
	Tokens    []string
	Lemmas    []string
	POSTags   []string
	Entities  []string
	Sentences []string
	Vector    []float32
}

// WordMatch is one similar-word result.
type WordMatch struct {
	Word       string  `json:"word"`
	Similarity float64 `json:"similarity"`
	POS        string  `json:"pos,omitempty"`
	Lemma      string  `json:"lemma,omitempty"`
}

// Processor is the embedding collaborator contract. Implementations must
// tolerate arbitrary UTF-8 and report "no vector" rather than fail on
// out-of-vocabulary input.
type Processor interface {
	// EmbedDocument processes text into tokens, lemmas, entities, sentences,
	// and an optional document vector.
	EmbedDocument(ctx context.Context, text string) (*Document, error)

	// Similarity scores two vectors in [0,1]. Either side may be nil, which
	// scores 0.
	Similarity(a, b []float32) float64

	// FindSimilarWords ranks candidate words by similarity to the target
	// word, dropping matches below the threshold.
	FindSimilarWords(ctx context.Context, word string, candidates []string, limit int, threshold float64) ([]WordMatch, error)
}

// CosineSimilarity computes cosine similarity clamped to [0,1].
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, sim))
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
