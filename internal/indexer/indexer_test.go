package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbacklab/vidsearch/internal/embed"
	"github.com/playbacklab/vidsearch/internal/model"
	"github.com/playbacklab/vidsearch/internal/queue"
	"github.com/playbacklab/vidsearch/internal/registry"
	"github.com/playbacklab/vidsearch/internal/store"
)

// fakeRegistry serves canned listings and manifests.
type fakeRegistry struct {
	mu        sync.Mutex
	videos    []registry.VideoMetadata
	manifests map[string]*model.Manifest

	listErr     error
	manifestErr error
}

func (f *fakeRegistry) ListVideos(context.Context) ([]registry.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]registry.VideoMetadata(nil), f.videos...), nil
}

func (f *fakeRegistry) GetManifest(_ context.Context, videoID string) (*model.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manifestErr != nil {
		return nil, f.manifestErr
	}
	m, ok := f.manifests[videoID]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return m, nil
}

// failingProcessor always fails document embedding.
type failingProcessor struct{}

func (failingProcessor) EmbedDocument(context.Context, string) (*embed.Document, error) {
	return nil, fmt.Errorf("nlp service down")
}
func (failingProcessor) Similarity(a, b []float32) float64 { return embed.CosineSimilarity(a, b) }
func (failingProcessor) FindSimilarWords(context.Context, string, []string, int, float64) ([]embed.WordMatch, error) {
	return nil, fmt.Errorf("nlp service down")
}

func videoMeta(id, title string) registry.VideoMetadata {
	now := time.Now().UTC()
	return registry.VideoMetadata{
		ID:          id,
		Title:       title,
		Description: "a nature documentary",
		Owner:       "owner-1",
		Tags:        []string{"nature"},
		CreatedAt:   now.Add(-time.Hour),
		UpdatedAt:   now,
	}
}

func captionManifest(id string) *model.Manifest {
	return &model.Manifest{
		VideoID:     id,
		CaptionsVTT: "whales migrating across the pacific",
		Scenes:      []model.Scene{{Description: "aerial shot of the ocean"}},
	}
}

func newTestIndexer(t *testing.T, reg registry.Client, proc embed.Processor) (*BackgroundIndexer, *queue.Queue, store.IndexStore) {
	t.Helper()
	q := queue.New(100)
	s := store.NewMemoryStore()
	if proc == nil {
		proc = embed.NewStaticProcessor()
	}
	idx, err := NewBackgroundIndexer(q, s, reg, proc, NewEvents(16), IndexerConfig{Workers: 2}, nil)
	require.NoError(t, err)
	return idx, q, s
}

func TestIndexVideo_Success(t *testing.T) {
	reg := &fakeRegistry{
		videos:    []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life")},
		manifests: map[string]*model.Manifest{"vid-1": captionManifest("vid-1")},
	}
	idx, _, s := newTestIndexer(t, reg, nil)

	result := idx.indexVideo(context.Background(), queue.Item{VideoID: "vid-1"})

	require.NotNil(t, result.Entry)
	assert.False(t, result.Degraded())

	entry := s.Get("vid-1")
	require.NotNil(t, entry)
	assert.Equal(t, model.StatusIndexed, entry.Status)
	assert.Equal(t, "Ocean Life", entry.Title)
	require.NotNil(t, entry.IndexedAt)
	assert.NotEmpty(t, entry.ManifestHash)
	assert.Empty(t, entry.ErrorMessage)
	assert.NotNil(t, entry.TitleVector)
	require.Len(t, entry.Content, 2)
	for _, unit := range entry.Content {
		assert.NotNil(t, unit.Vector)
	}
}

func TestIndexVideo_ManifestFetchFailureDegrades(t *testing.T) {
	reg := &fakeRegistry{
		videos:      []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life")},
		manifestErr: registry.ErrUnavailable,
	}
	idx, _, s := newTestIndexer(t, reg, nil)

	result := idx.indexVideo(context.Background(), queue.Item{VideoID: "vid-1"})

	assert.True(t, result.Degraded())

	// Metadata-only entry is still INDEXED, not ERROR.
	entry := s.Get("vid-1")
	require.NotNil(t, entry)
	assert.Equal(t, model.StatusIndexed, entry.Status)
	assert.Empty(t, entry.Content)
	assert.Empty(t, entry.ManifestHash)
}

func TestIndexVideo_InvalidManifestFails(t *testing.T) {
	reg := &fakeRegistry{
		videos: []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life")},
		manifests: map[string]*model.Manifest{
			// Scene without a description fails validation.
			"vid-1": {VideoID: "vid-1", Scenes: []model.Scene{{Description: "  "}}},
		},
	}
	idx, _, s := newTestIndexer(t, reg, nil)

	idx.indexVideo(context.Background(), queue.Item{VideoID: "vid-1"})

	entry := s.Get("vid-1")
	require.NotNil(t, entry)
	assert.Equal(t, model.StatusError, entry.Status)
	assert.NotEmpty(t, entry.ErrorMessage)
	assert.Equal(t, 1, entry.RetryCount)
}

func TestIndexVideo_UnknownVideoFails(t *testing.T) {
	reg := &fakeRegistry{videos: []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life")}}
	idx, _, s := newTestIndexer(t, reg, nil)

	idx.indexVideo(context.Background(), queue.Item{VideoID: "ghost"})

	entry := s.Get("ghost")
	require.NotNil(t, entry)
	assert.Equal(t, model.StatusError, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
}

func TestIndexVideo_EmbeddingFailureFallsBackToRawText(t *testing.T) {
	reg := &fakeRegistry{
		videos:    []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life")},
		manifests: map[string]*model.Manifest{"vid-1": captionManifest("vid-1")},
	}
	idx, _, s := newTestIndexer(t, reg, failingProcessor{})

	result := idx.indexVideo(context.Background(), queue.Item{VideoID: "vid-1"})

	assert.True(t, result.Degraded())

	entry := s.Get("vid-1")
	require.NotNil(t, entry)
	assert.Equal(t, model.StatusIndexed, entry.Status)
	assert.Nil(t, entry.TitleVector)
	require.NotEmpty(t, entry.Content)
	for _, unit := range entry.Content {
		assert.Nil(t, unit.Vector)
		assert.NotEmpty(t, unit.Text, "raw text survives embedding failure")
	}
}

func TestIndexVideo_RetryCountAccumulates(t *testing.T) {
	reg := &fakeRegistry{videos: []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life")}}
	idx, _, s := newTestIndexer(t, reg, nil)

	// No manifest in the registry, but lookup still succeeds; force total
	// failure through an unknown id instead.
	idx.indexVideo(context.Background(), queue.Item{VideoID: "ghost"})
	idx.indexVideo(context.Background(), queue.Item{VideoID: "ghost"})

	entry := s.Get("ghost")
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.RetryCount)
}

func TestTryBegin_PreventsConcurrentDuplicates(t *testing.T) {
	reg := &fakeRegistry{}
	idx, _, _ := newTestIndexer(t, reg, nil)

	require.True(t, idx.tryBegin("vid-1"))
	assert.False(t, idx.tryBegin("vid-1"))
	assert.True(t, idx.IsProcessing("vid-1"))

	idx.finish("vid-1")
	assert.False(t, idx.IsProcessing("vid-1"))
	assert.True(t, idx.tryBegin("vid-1"))
}

func TestWorkerPool_EndToEnd(t *testing.T) {
	reg := &fakeRegistry{
		videos: []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life"), videoMeta("vid-2", "Desert Winds")},
		manifests: map[string]*model.Manifest{
			"vid-1": captionManifest("vid-1"),
			"vid-2": captionManifest("vid-2"),
		},
	}
	idx, q, s := newTestIndexer(t, reg, nil)

	idx.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, idx.Stop(ctx))
	}()

	require.True(t, q.Enqueue(queue.Item{VideoID: "vid-1", Priority: queue.PriorityNew}))
	require.True(t, q.Enqueue(queue.Item{VideoID: "vid-2", Priority: queue.PriorityNew}))

	require.Eventually(t, func() bool {
		return s.CountIndexed() == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, q.Size())
	assert.Empty(t, idx.Processing())
}

func TestEvents_DropWhenBufferFull(t *testing.T) {
	events := NewEvents(1)

	events.publishStatus("vid-1", model.StatusQueued, model.StatusIndexing, "")
	events.publishStatus("vid-2", model.StatusQueued, model.StatusIndexing, "")
	events.publishStatus("vid-3", model.StatusQueued, model.StatusIndexing, "")

	droppedStatus, droppedAlerts := events.Dropped()
	assert.Equal(t, int64(2), droppedStatus)
	assert.Zero(t, droppedAlerts)

	// The buffered event is still deliverable.
	select {
	case event := <-events.Status():
		assert.Equal(t, "vid-1", event.VideoID)
		assert.NotEmpty(t, event.ID)
	default:
		t.Fatal("expected one buffered event")
	}
}

func TestIndexVideo_PublishesStatusEvents(t *testing.T) {
	reg := &fakeRegistry{
		videos:    []registry.VideoMetadata{videoMeta("vid-1", "Ocean Life")},
		manifests: map[string]*model.Manifest{"vid-1": captionManifest("vid-1")},
	}
	idx, _, _ := newTestIndexer(t, reg, nil)

	idx.indexVideo(context.Background(), queue.Item{VideoID: "vid-1"})

	var transitions []model.IndexStatus
	for {
		select {
		case event := <-idx.Events().Status():
			transitions = append(transitions, event.To)
			continue
		default:
		}
		break
	}
	require.Len(t, transitions, 2)
	assert.Equal(t, model.StatusIndexing, transitions[0])
	assert.Equal(t, model.StatusIndexed, transitions[1])
}
