package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbacklab/vidsearch/internal/embed"
	"github.com/playbacklab/vidsearch/internal/model"
	"github.com/playbacklab/vidsearch/internal/store"
)

// fakeProcessor returns a fixed query vector and lemma set, and computes
// real cosine similarity so tests control scores through entry vectors.
type fakeProcessor struct {
	vector []float32
	lemmas []string
}

func (f *fakeProcessor) EmbedDocument(_ context.Context, text string) (*embed.Document, error) {
	return &embed.Document{
		Text:   text,
		Tokens: f.lemmas,
		Lemmas: f.lemmas,
		Vector: f.vector,
	}, nil
}

func (f *fakeProcessor) Similarity(a, b []float32) float64 {
	return embed.CosineSimilarity(a, b)
}

func (f *fakeProcessor) FindSimilarWords(_ context.Context, word string, candidates []string, limit int, _ float64) ([]embed.WordMatch, error) {
	var out []embed.WordMatch
	for _, c := range candidates {
		if c != word && len(out) < limit {
			out = append(out, embed.WordMatch{Word: c, Similarity: 0.9})
		}
	}
	return out, nil
}

// recordingProcessor captures every text it embeds, tokenizing by fields so
// the typo table drives corrections.
type recordingProcessor struct {
	mu    sync.Mutex
	texts []string
}

func (p *recordingProcessor) EmbedDocument(_ context.Context, text string) (*embed.Document, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()

	tokens := strings.Fields(strings.ToLower(text))
	return &embed.Document{Text: text, Tokens: tokens, Lemmas: tokens, Vector: []float32{1, 0}}, nil
}

func (p *recordingProcessor) Similarity(a, b []float32) float64 {
	return embed.CosineSimilarity(a, b)
}

func (p *recordingProcessor) FindSimilarWords(context.Context, string, []string, int, float64) ([]embed.WordMatch, error) {
	return nil, nil
}

func (p *recordingProcessor) embedded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func indexedEntry(id, title string, titleVector []float32) *model.VideoIndexEntry {
	e := &model.VideoIndexEntry{
		VideoID:     id,
		Title:       title,
		Description: "a video about the ocean",
		Owner:       "owner-1",
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
		UpdatedAt:   time.Now().UTC(),
		Tags:        []string{"nature"},
		TitleVector: titleVector,
	}
	e.MarkIndexed("hash")
	return e
}

func newTestEngine(t *testing.T, s store.IndexStore, proc embed.Processor) *Engine {
	t.Helper()
	engine, err := NewEngine(s, proc, Config{}, nil)
	require.NoError(t, err)
	return engine
}

func TestSearch_EmptyQueryYieldsNoResults(t *testing.T) {
	engine := newTestEngine(t, store.NewMemoryStore(), &fakeProcessor{})

	results, metrics, err := engine.Search(context.Background(), SearchQuery{Text: "   "})

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, metrics.CacheHit)
}

func TestSearch_RanksByScore(t *testing.T) {
	s := store.NewMemoryStore()
	// Cosine against query [1,0]: exact match 1.0, angled match 0.8.
	s.Put(indexedEntry("vid-exact", "whale migration", []float32{1, 0}))
	s.Put(indexedEntry("vid-angled", "whale watching", []float32{0.8, 0.6}))

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)

	results, metrics, err := engine.Search(context.Background(), SearchQuery{Text: "whale"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "vid-exact", results[0].VideoID)
	assert.Equal(t, "vid-angled", results[1].VideoID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, 2, metrics.CandidatesBefore)
	assert.Greater(t, metrics.SimilarityComputations, 0)
}

func TestSearch_MoreEvidenceNeverLowersScore(t *testing.T) {
	s := store.NewMemoryStore()

	titleOnly := indexedEntry("vid-title", "whale migration", []float32{0.8, 0.6})

	everything := indexedEntry("vid-all", "whale migration", []float32{0.8, 0.6})
	everything.DescriptionVector = []float32{0.8, 0.6}
	captions := model.NewSearchableContent(model.ContentKindCaptions, "whale captions", "captions.vtt")
	captions.Vector = []float32{0.8, 0.6}
	everything.AddContent(captions)

	s.Put(titleOnly)
	s.Put(everything)

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"zzzabsent"}}
	engine := newTestEngine(t, s, proc)

	results, _, err := engine.Search(context.Background(), SearchQuery{Text: "whale", Threshold: 0.1})

	require.NoError(t, err)
	require.Len(t, results, 2)
	byID := map[string]float64{}
	for _, r := range results {
		byID[r.VideoID] = r.Score
	}
	assert.GreaterOrEqual(t, byID["vid-all"], byID["vid-title"],
		"matching on description and captions too must not score below title-only")
}

func TestSearch_ThresholdCutsLowScores(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(indexedEntry("vid-good", "whale migration", []float32{1, 0}))
	s.Put(indexedEntry("vid-poor", "tax filing tips", []float32{0, 1}))

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)

	results, _, err := engine.Search(context.Background(), SearchQuery{Text: "whale", Threshold: 0.6})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "vid-good", results[0].VideoID)
}

func TestSearch_PhraseExcludesNonMatching(t *testing.T) {
	s := store.NewMemoryStore()
	withPhrase := indexedEntry("vid-with", "humpback whale migration", []float32{1, 0})
	withoutPhrase := indexedEntry("vid-without", "whale watching tour", []float32{1, 0})
	s.Put(withPhrase)
	s.Put(withoutPhrase)

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)

	results, _, err := engine.Search(context.Background(), SearchQuery{Text: `"humpback whale"`})

	require.NoError(t, err)
	require.Len(t, results, 1, "candidate lacking the phrase must be excluded even though its score passes")
	assert.Equal(t, "vid-with", results[0].VideoID)
}

func TestSearch_CacheHitSkipsScoring(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(indexedEntry("vid-1", "whale migration", []float32{1, 0}))

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)
	query := SearchQuery{Text: "whale"}

	first, firstMetrics, err := engine.Search(context.Background(), query)
	require.NoError(t, err)
	require.False(t, firstMetrics.CacheHit)
	require.Greater(t, firstMetrics.SimilarityComputations, 0)

	second, secondMetrics, err := engine.Search(context.Background(), query)
	require.NoError(t, err)
	assert.True(t, secondMetrics.CacheHit)
	assert.Zero(t, secondMetrics.SimilarityComputations)
	assert.Equal(t, first, second)
}

func TestSearch_CorrectsTyposBeforeEmbedding(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(indexedEntry("vid-1", "the whale", []float32{1, 0}))

	proc := &recordingProcessor{}
	engine := newTestEngine(t, s, proc)

	_, _, err := engine.Search(context.Background(), SearchQuery{Text: "teh whale"})
	require.NoError(t, err)

	embedded := proc.embedded()
	require.Len(t, embedded, 2, "corrected query must be re-embedded")
	assert.Equal(t, "teh whale", embedded[0])
	assert.Equal(t, "the whale", embedded[1])
}

func TestSearch_QuotedPhrasesNeverCorrected(t *testing.T) {
	s := store.NewMemoryStore()
	withTypo := indexedEntry("vid-typo", "footage of teh storm", []float32{1, 0})
	s.Put(withTypo)

	proc := &recordingProcessor{}
	engine := newTestEngine(t, s, proc)

	results, _, err := engine.Search(context.Background(), SearchQuery{Text: `"teh storm"`})

	require.NoError(t, err)
	require.Len(t, results, 1, "verbatim phrase must match the misspelled text")
	assert.Equal(t, "vid-typo", results[0].VideoID)
}

func TestEngine_StatisticsAggregateAcrossSearches(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(indexedEntry("vid-1", "whale migration", []float32{1, 0}))

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)
	query := SearchQuery{Text: "whale"}
	ctx := context.Background()

	_, _, err := engine.Search(ctx, query)
	require.NoError(t, err)
	_, _, err = engine.Search(ctx, query)
	require.NoError(t, err)

	stats := engine.Statistics()
	assert.EqualValues(t, 2, stats.TotalSearches)
	assert.EqualValues(t, 1, stats.CacheHits)
	assert.InDelta(t, 0.5, stats.CacheHitRate, 1e-9)
	assert.Greater(t, stats.TotalDuration, time.Duration(0))
	assert.Greater(t, stats.AverageDuration, time.Duration(0))
	assert.Equal(t, 1, stats.CacheSize)
}

func TestSearch_CachedResultsImmuneToCallerMutation(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(indexedEntry("vid-1", "whale migration", []float32{1, 0}))

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)
	query := SearchQuery{Text: "whale"}
	ctx := context.Background()

	first, _, err := engine.Search(ctx, query)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, []string{"nature"}, first[0].Tags)

	first[0].Tags[0] = "defaced"
	first[0].MatchedContent = append(first[0].MatchedContent, model.ContentKindCaptions)

	second, metrics, err := engine.Search(ctx, query)
	require.NoError(t, err)
	require.True(t, metrics.CacheHit)
	require.Len(t, second, 1)
	assert.Equal(t, []string{"nature"}, second[0].Tags)
}

func TestSearch_Filters(t *testing.T) {
	s := store.NewMemoryStore()

	tagged := indexedEntry("vid-tagged", "whale video", []float32{1, 0})
	tagged.Tags = []string{"nature", "ocean"}

	captioned := indexedEntry("vid-captioned", "whale video", []float32{1, 0})
	captioned.AddContent(model.NewSearchableContent(model.ContentKindCaptions, "whale text", "captions.vtt"))

	old := indexedEntry("vid-old", "whale video", []float32{1, 0})
	old.CreatedAt = time.Now().UTC().Add(-90 * 24 * time.Hour)

	s.Put(tagged)
	s.Put(captioned)
	s.Put(old)

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)
	ctx := context.Background()

	byTag, _, err := engine.Search(ctx, SearchQuery{Text: "whale", Tags: []string{"ocean"}})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "vid-tagged", byTag[0].VideoID)

	byKind, _, err := engine.Search(ctx, SearchQuery{Text: "whale", ContentKinds: []model.ContentKind{model.ContentKindCaptions}})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "vid-captioned", byKind[0].VideoID)

	from := time.Now().UTC().Add(-30 * 24 * time.Hour)
	recent, _, err := engine.Search(ctx, SearchQuery{Text: "whale", DateFrom: &from})
	require.NoError(t, err)
	assert.Len(t, recent, 2, "90-day-old video falls outside the date range")
}

func TestSearchWithPagination_TwentyFiveResults(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 25; i++ {
		s.Put(indexedEntry(fmt.Sprintf("vid-%02d", i), "whale video", []float32{1, 0}))
	}

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)
	ctx := context.Background()
	query := SearchQuery{Text: "whale"}

	page1, _, err := engine.SearchWithPagination(ctx, query, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page1.Results, 10)
	assert.True(t, page1.HasNext)
	assert.False(t, page1.HasPrevious)

	page2, _, err := engine.SearchWithPagination(ctx, query, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page2.Results, 10)
	assert.True(t, page2.HasNext)
	assert.True(t, page2.HasPrevious)

	page3, _, err := engine.SearchWithPagination(ctx, query, 3, 10)
	require.NoError(t, err)
	assert.Len(t, page3.Results, 5)
	assert.Equal(t, 25, page3.TotalResults)
	assert.Equal(t, 3, page3.TotalPages)
	assert.False(t, page3.HasNext)
	assert.True(t, page3.HasPrevious)

	// No overlap across pages.
	seen := map[string]bool{}
	for _, page := range []*PaginatedResults{page1, page2, page3} {
		for _, r := range page.Results {
			assert.False(t, seen[r.VideoID], "video %s appeared on two pages", r.VideoID)
			seen[r.VideoID] = true
		}
	}
	assert.Len(t, seen, 25)
}

func TestSearchWithPagination_RejectsBadPage(t *testing.T) {
	engine := newTestEngine(t, store.NewMemoryStore(), &fakeProcessor{})

	_, _, err := engine.SearchWithPagination(context.Background(), SearchQuery{Text: "whale"}, 0, 10)
	assert.Error(t, err)
}

func TestSearchWithFilters_ConfidenceStaysInRange(t *testing.T) {
	s := store.NewMemoryStore()
	entry := indexedEntry("vid-1", "whale migration", []float32{1, 0})
	entry.AddContent(model.NewSearchableContent(model.ContentKindCaptions, "whale captions text", "captions.vtt"))
	s.Put(entry)

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)

	results, _, err := engine.SearchWithFilters(context.Background(), SearchQuery{
		Text:         "whale",
		Threshold:    0.1,
		ContentKinds: []model.ContentKind{model.ContentKindCaptions},
		Tags:         []string{"nature"},
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestSuggestions_PrefixAndFrequencyOrder(t *testing.T) {
	s := store.NewMemoryStore()
	a := indexedEntry("vid-1", "whale whale whale watching", []float32{1, 0})
	b := indexedEntry("vid-2", "whale wharf", []float32{1, 0})
	s.Put(a)
	s.Put(b)

	engine := newTestEngine(t, s, &fakeProcessor{})

	suggestions := engine.Suggestions("wha", 10)

	require.NotEmpty(t, suggestions)
	assert.Equal(t, "whale", suggestions[0].Word, "most frequent word first")
	words := make([]string, 0, len(suggestions))
	for _, sug := range suggestions {
		words = append(words, sug.Word)
	}
	assert.Contains(t, words, "wharf")
	assert.NotContains(t, words, "watching")
}

func TestFindSimilarWords_UsesIndexedVocabulary(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(indexedEntry("vid-1", "whale ocean migration", []float32{1, 0}))

	engine := newTestEngine(t, s, &fakeProcessor{})

	matches, err := engine.FindSimilarWords(context.Background(), "whale", 5, 0.5)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)

	_, err = engine.FindSimilarWords(context.Background(), "  ", 5, 0.5)
	assert.Error(t, err)
}

func TestPurgeCache(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(indexedEntry("vid-1", "whale", []float32{1, 0}))

	proc := &fakeProcessor{vector: []float32{1, 0}, lemmas: []string{"whale"}}
	engine := newTestEngine(t, s, proc)
	query := SearchQuery{Text: "whale"}
	ctx := context.Background()

	_, _, err := engine.Search(ctx, query)
	require.NoError(t, err)

	engine.PurgeCache()

	_, metrics, err := engine.Search(ctx, query)
	require.NoError(t, err)
	assert.False(t, metrics.CacheHit)
}
