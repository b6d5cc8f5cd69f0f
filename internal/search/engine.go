package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/playbacklab/vidsearch/internal/embed"
	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
	"github.com/playbacklab/vidsearch/internal/model"
	"github.com/playbacklab/vidsearch/internal/store"
)

// Defaults for the search engine.
const (
	DefaultLimit       = 10
	DefaultMaxLimit    = 100
	DefaultThreshold   = 0.5
	DefaultCacheSize   = 500
	DefaultCacheTTL    = 5 * time.Minute
	DefaultParallelism = 8
)

// Config configures the search engine.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	Threshold    float64
	CacheSize    int
	CacheTTL     time.Duration
	Parallelism  int
}

// Engine answers search queries against the index store. Results are cached
// by the full query under a TTL; candidates are scored in parallel against
// vectors precomputed at index time, so only the query text is embedded per
// call.
type Engine struct {
	store     store.IndexStore
	processor embed.Processor
	cache     *expirable.LRU[string, []SearchResult]
	config    Config
	logger    *slog.Logger

	searches    atomic.Int64
	cacheHits   atomic.Int64
	searchNanos atomic.Int64
}

// NewEngine creates a search engine over the given store and processor.
func NewEngine(s store.IndexStore, proc embed.Processor, cfg Config, logger *slog.Logger) (*Engine, error) {
	if s == nil || proc == nil {
		return nil, fmt.Errorf("store and processor are required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:     s,
		processor: proc,
		cache:     expirable.NewLRU[string, []SearchResult](cfg.CacheSize, nil, cfg.CacheTTL),
		config:    cfg,
		logger:    logger,
	}, nil
}

// Search runs a ranked search. Empty query text yields zero results.
func (e *Engine) Search(ctx context.Context, query SearchQuery) ([]SearchResult, SearchMetrics, error) {
	return e.search(ctx, query, false)
}

// SearchWithFilters runs a ranked search and rescores results with
// filter-fit confidence blending.
func (e *Engine) SearchWithFilters(ctx context.Context, query SearchQuery) ([]SearchResult, SearchMetrics, error) {
	return e.search(ctx, query, true)
}

func (e *Engine) search(ctx context.Context, query SearchQuery, rescore bool) ([]SearchResult, SearchMetrics, error) {
	start := time.Now()
	query = e.normalize(query)

	if strings.TrimSpace(query.Text) == "" {
		return nil, SearchMetrics{Duration: time.Since(start)}, nil
	}
	e.searches.Add(1)

	key := cacheKey(query, rescore)
	if cached, ok := e.cache.Get(key); ok {
		e.cacheHits.Add(1)
		duration := time.Since(start)
		e.searchNanos.Add(int64(duration))
		return copyResults(cached), SearchMetrics{
			Duration: duration,
			CacheHit: true,
		}, nil
	}

	phrases, remainder := extractPhrases(query.Text)
	if remainder == "" {
		// Pure-phrase query: still need a document for keyword scoring.
		remainder = strings.Join(phrases, " ")
	}

	queryDoc, err := e.processor.EmbedDocument(ctx, remainder)
	if err != nil {
		return nil, SearchMetrics{Duration: time.Since(start)}, idxerrors.EmbeddingError("query embedding failed", err)
	}

	// Spell-correct the unquoted words via their lemmas and re-embed when
	// anything changed. Quoted phrases are matched verbatim, never corrected.
	if corrected, changed := correctQueryWords(queryDoc); changed {
		if redone, err := e.processor.EmbedDocument(ctx, corrected); err == nil {
			queryDoc = redone
		}
	}

	candidates := e.store.ByStatus(model.StatusIndexed)
	metrics := SearchMetrics{CandidatesBefore: len(candidates)}

	candidates = e.filter(candidates, query)
	metrics.CandidatesAfter = len(candidates)

	type scored struct {
		entry   *model.VideoIndexEntry
		score   float64
		matched []model.ContentKind
	}

	var mu sync.Mutex
	var hits []scored
	totalSims := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Parallelism)
	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			score, matched, sims := e.scoreCandidate(queryDoc, query, candidate)
			if rescore {
				score = e.confidence(score, queryDoc, query, candidate)
			}

			lowerText := strings.ToLower(candidate.CombinedText())
			keep := score >= query.Threshold
			if keep && len(phrases) > 0 {
				if !containsAllPhrases(lowerText, phrases) {
					keep = false
				} else {
					score = clampScore(score * phraseBoost)
				}
			}

			mu.Lock()
			totalSims += sims
			if keep {
				hits = append(hits, scored{entry: candidate, score: score, matched: matched})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, metrics, err
	}
	metrics.SimilarityComputations = totalSims

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].entry.VideoID < hits[j].entry.VideoID
	})
	if len(hits) > query.Limit {
		hits = hits[:query.Limit]
	}

	snippetTerms := append(append([]string(nil), phrases...), significantLemmas(queryDoc)...)
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			VideoID:        h.entry.VideoID,
			Title:          h.entry.Title,
			Description:    h.entry.Description,
			Score:          h.score,
			MatchedContent: h.matched,
			Snippet:        buildSnippet(h.entry.CombinedText(), snippetTerms),
			Tags:           h.entry.Tags,
			Owner:          h.entry.Owner,
			CreatedAt:      h.entry.CreatedAt,
		})
	}

	e.cache.Add(key, copyResults(results))

	metrics.Duration = time.Since(start)
	e.searchNanos.Add(int64(metrics.Duration))
	e.logger.Debug("search complete",
		slog.String("query", query.Text),
		slog.Int("results", len(results)),
		slog.Int("candidates", metrics.CandidatesBefore),
		slog.Duration("duration", metrics.Duration))
	return results, metrics, nil
}

// SearchWithPagination over-fetches offset + pageSize×2 results so totals
// stay accurate without re-running the candidate scan per page.
func (e *Engine) SearchWithPagination(ctx context.Context, query SearchQuery, page, pageSize int) (*PaginatedResults, SearchMetrics, error) {
	if page < 1 {
		return nil, SearchMetrics{}, idxerrors.New(idxerrors.ErrCodeInvalidPage,
			fmt.Sprintf("page must be >= 1, got %d", page), nil)
	}
	if pageSize <= 0 {
		pageSize = e.config.DefaultLimit
	}
	if pageSize > e.config.MaxLimit {
		pageSize = e.config.MaxLimit
	}

	offset := (page - 1) * pageSize
	overFetch := query
	overFetch.Limit = offset + pageSize*2

	results, metrics, err := e.Search(ctx, overFetch)
	if err != nil {
		return nil, metrics, err
	}

	total := len(results)
	totalPages := (total + pageSize - 1) / pageSize

	var pageResults []SearchResult
	if offset < total {
		end := offset + pageSize
		if end > total {
			end = total
		}
		pageResults = results[offset:end]
	}

	return &PaginatedResults{
		Results:      pageResults,
		Page:         page,
		PageSize:     pageSize,
		TotalResults: total,
		TotalPages:   totalPages,
		HasNext:      page*pageSize < total,
		HasPrevious:  page > 1,
	}, metrics, nil
}

// Suggestions prefix-matches against a word-frequency table over all indexed
// entries, most frequent first.
func (e *Engine) Suggestions(prefix string, limit int) []Suggestion {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil
	}
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}

	freq := e.wordFrequencies()
	var out []Suggestion
	for word, count := range freq {
		if strings.HasPrefix(word, prefix) {
			out = append(out, Suggestion{Word: word, Frequency: count})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Word < out[j].Word
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindSimilarWords ranks the indexed vocabulary by similarity to the word.
func (e *Engine) FindSimilarWords(ctx context.Context, word string, limit int, threshold float64) ([]embed.WordMatch, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return nil, idxerrors.New(idxerrors.ErrCodeQueryEmpty, "word must not be empty", nil)
	}
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	if threshold <= 0 {
		threshold = e.config.Threshold
	}

	freq := e.wordFrequencies()
	vocabulary := make([]string, 0, len(freq))
	for w := range freq {
		vocabulary = append(vocabulary, w)
	}
	sort.Strings(vocabulary)

	return e.processor.FindSimilarWords(ctx, word, vocabulary, limit, threshold)
}

// PurgeCache drops all cached results. Called after cleanup and force
// reindex so stale hits cannot outlive their entries.
func (e *Engine) PurgeCache() {
	e.cache.Purge()
}

// Statistics aggregates the engine's counters since startup.
type Statistics struct {
	TotalSearches   int64         `json:"total_searches"`
	CacheHits       int64         `json:"cache_hits"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	CacheSize       int           `json:"cache_size"`
}

// Statistics returns aggregate counters across all searches.
func (e *Engine) Statistics() Statistics {
	searches := e.searches.Load()
	stats := Statistics{
		TotalSearches: searches,
		CacheHits:     e.cacheHits.Load(),
		TotalDuration: time.Duration(e.searchNanos.Load()),
		CacheSize:     e.cache.Len(),
	}
	if searches > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(searches)
		stats.AverageDuration = stats.TotalDuration / time.Duration(searches)
	}
	return stats
}

// wordFrequencies tokenizes every indexed entry's combined text into a
// frequency table.
func (e *Engine) wordFrequencies() map[string]int {
	freq := make(map[string]int)
	for _, entry := range e.store.ByStatus(model.StatusIndexed) {
		for _, field := range strings.Fields(strings.ToLower(entry.CombinedText())) {
			word := strings.TrimFunc(field, func(r rune) bool {
				return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
			})
			if len(word) >= 2 {
				freq[word]++
			}
		}
	}
	return freq
}

// filter narrows candidates by content kind, tags, and creation date range.
func (e *Engine) filter(candidates []*model.VideoIndexEntry, query SearchQuery) []*model.VideoIndexEntry {
	kept := candidates[:0]
	for _, c := range candidates {
		if len(query.ContentKinds) > 0 && !hasAnyKind(c, query.ContentKinds) {
			continue
		}
		if len(query.Tags) > 0 && tagOverlap(query.Tags, c.Tags) == 0 {
			continue
		}
		if query.DateFrom != nil && c.CreatedAt.Before(*query.DateFrom) {
			continue
		}
		if query.DateTo != nil && c.CreatedAt.After(*query.DateTo) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func hasAnyKind(entry *model.VideoIndexEntry, kinds []model.ContentKind) bool {
	for _, kind := range kinds {
		if entry.ContentByKind(kind) != nil {
			return true
		}
	}
	return false
}

// normalize applies configured defaults and caps to a query.
func (e *Engine) normalize(query SearchQuery) SearchQuery {
	if query.Limit <= 0 {
		query.Limit = e.config.DefaultLimit
	}
	if query.Limit > e.config.MaxLimit {
		query.Limit = e.config.MaxLimit
	}
	if query.Threshold <= 0 {
		query.Threshold = e.config.Threshold
	}
	return query
}

// cacheKey hashes every query field plus the rescore flag.
func cacheKey(query SearchQuery, rescore bool) string {
	payload, err := json.Marshal(struct {
		SearchQuery
		Rescore bool `json:"rescore"`
	}{query, rescore})
	if err != nil {
		payload = []byte(query.Text)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// copyResults deep-copies results so cached entries and caller-held slices
// never share backing arrays.
func copyResults(results []SearchResult) []SearchResult {
	out := make([]SearchResult, len(results))
	copy(out, results)
	for i := range out {
		out[i].Tags = append([]string(nil), out[i].Tags...)
		out[i].MatchedContent = append([]model.ContentKind(nil), out[i].MatchedContent...)
	}
	return out
}
