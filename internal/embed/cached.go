package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProcessor wraps a Processor with an LRU document cache. Identical
// texts (titles repeated across manifests, re-indexed content) are processed
// once. Safe for concurrent use.
type CachedProcessor struct {
	inner Processor
	cache *lru.Cache[string, *Document]

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Processor = (*CachedProcessor)(nil)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// NewCachedProcessor wraps the inner processor with a cache of the given
// size. Size <= 0 uses DefaultCacheSize.
func NewCachedProcessor(inner Processor, size int) (*CachedProcessor, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner processor is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := lru.New[string, *Document](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}

	return &CachedProcessor{inner: inner, cache: cache}, nil
}

// EmbedDocument returns the cached document for the text, processing it on a
// miss. Cached documents are shared; callers must not mutate them.
func (p *CachedProcessor) EmbedDocument(ctx context.Context, text string) (*Document, error) {
	key := cacheKey(text)

	if doc, ok := p.cache.Get(key); ok {
		p.hits.Add(1)
		return doc, nil
	}
	p.misses.Add(1)

	doc, err := p.inner.EmbedDocument(ctx, text)
	if err != nil {
		return nil, err
	}

	p.cache.Add(key, doc)
	return doc, nil
}

// Similarity delegates to the inner processor.
func (p *CachedProcessor) Similarity(a, b []float32) float64 {
	return p.inner.Similarity(a, b)
}

// FindSimilarWords delegates to the inner processor. Word-to-word queries
// are small and varied enough that caching them is not worth the memory.
func (p *CachedProcessor) FindSimilarWords(ctx context.Context, word string, candidates []string, limit int, threshold float64) ([]WordMatch, error) {
	return p.inner.FindSimilarWords(ctx, word, candidates, limit, threshold)
}

// Stats returns cache hit/miss counts.
func (p *CachedProcessor) Stats() CacheStats {
	hits := p.hits.Load()
	misses := p.misses.Load()

	stats := CacheStats{
		Hits:   hits,
		Misses: misses,
		Size:   p.cache.Len(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Purge drops all cached documents.
func (p *CachedProcessor) Purge() {
	p.cache.Purge()
}

// cacheKey hashes the text so arbitrarily long transcripts make fixed-size
// keys.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
