package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/playbacklab/vidsearch/internal/config"
	"github.com/playbacklab/vidsearch/internal/embed"
	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
	"github.com/playbacklab/vidsearch/internal/model"
	"github.com/playbacklab/vidsearch/internal/queue"
	"github.com/playbacklab/vidsearch/internal/registry"
	"github.com/playbacklab/vidsearch/internal/search"
	"github.com/playbacklab/vidsearch/internal/store"
)

// manifestInvalidator is implemented by registry clients that cache
// manifests; force reindex uses it to bypass the cache.
type manifestInvalidator interface {
	InvalidateManifest(videoID string)
}

// Manager wires the store, queue, indexer, syncer, and search engine
// together and exposes the operations an outer surface (CLI, HTTP layer)
// calls. All components are constructed here and torn down by Shutdown.
type Manager struct {
	store    store.IndexStore
	queue    *queue.Queue
	indexer  *BackgroundIndexer
	syncer   *RegistrySyncer
	engine   *search.Engine
	registry registry.Client
	logger   *slog.Logger
}

// IndexingStatus is a best-effort snapshot of the pipeline.
type IndexingStatus struct {
	TotalVideos     int                       `json:"total_videos"`
	Indexed         int                       `json:"indexed"`
	StatusBreakdown map[model.IndexStatus]int `json:"status_breakdown"`
	ContentUnits    int                       `json:"content_units"`
	IndexedWords    int                       `json:"indexed_words"`
	QueueSize       int                       `json:"queue_size"`
	Processing      []string                  `json:"processing,omitempty"`
	LastSync        *time.Time                `json:"last_sync,omitempty"`
	DroppedEvents   int64                     `json:"dropped_events"`
	DroppedAlerts   int64                     `json:"dropped_alerts"`
}

// QueueStatus describes the queue contents.
type QueueStatus struct {
	Size     int          `json:"size"`
	Capacity int          `json:"capacity"`
	Items    []queue.Item `json:"items,omitempty"`
}

// VideoStatus describes one video's indexing state.
type VideoStatus struct {
	VideoID      string            `json:"video_id"`
	Title        string            `json:"title,omitempty"`
	Status       model.IndexStatus `json:"status"`
	IndexedAt    *time.Time        `json:"indexed_at,omitempty"`
	ContentKinds []string          `json:"content_kinds,omitempty"`
	WordCount    int               `json:"word_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
	RetryCount   int               `json:"retry_count"`
	Queued       bool              `json:"queued"`
	Processing   bool              `json:"processing"`
}

// NewManager constructs the full pipeline from configuration and the two
// external collaborators.
func NewManager(cfg *config.Config, reg registry.Client, proc embed.Processor, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if reg == nil || proc == nil {
		return nil, fmt.Errorf("registry client and processor are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := store.NewMemoryStore()
	q := queue.New(cfg.Indexing.QueueCapacity)

	idx, err := NewBackgroundIndexer(q, s, reg, proc, NewEvents(0), IndexerConfig{
		Workers:            cfg.Indexing.Workers,
		StalenessThreshold: cfg.Indexing.StalenessThreshold,
	}, logger)
	if err != nil {
		return nil, err
	}

	syncer, err := NewRegistrySyncer(reg, s, q, idx.IsProcessing, SyncerConfig{
		MinInterval: cfg.Indexing.SyncInterval,
		MaxRetries:  cfg.Indexing.MaxRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	engine, err := search.NewEngine(s, proc, search.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		Threshold:    cfg.Search.Threshold,
		CacheSize:    cfg.Search.CacheSize,
		CacheTTL:     cfg.Search.CacheTTL,
	}, logger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:    s,
		queue:    q,
		indexer:  idx,
		syncer:   syncer,
		engine:   engine,
		registry: reg,
		logger:   logger,
	}
	idx.Start()
	return m, nil
}

// Search runs a ranked search.
func (m *Manager) Search(ctx context.Context, query search.SearchQuery) ([]search.SearchResult, search.SearchMetrics, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, search.SearchMetrics{}, idxerrors.New(idxerrors.ErrCodeQueryEmpty, "query text must not be empty", nil)
	}
	return m.engine.Search(ctx, query)
}

// SearchWithFilters runs a ranked search with confidence rescoring.
func (m *Manager) SearchWithFilters(ctx context.Context, query search.SearchQuery) ([]search.SearchResult, search.SearchMetrics, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, search.SearchMetrics{}, idxerrors.New(idxerrors.ErrCodeQueryEmpty, "query text must not be empty", nil)
	}
	return m.engine.SearchWithFilters(ctx, query)
}

// SearchWithPagination returns one page of results.
func (m *Manager) SearchWithPagination(ctx context.Context, query search.SearchQuery, page, pageSize int) (*search.PaginatedResults, search.SearchMetrics, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, search.SearchMetrics{}, idxerrors.New(idxerrors.ErrCodeQueryEmpty, "query text must not be empty", nil)
	}
	return m.engine.SearchWithPagination(ctx, query, page, pageSize)
}

// SearchStatistics returns the engine's aggregate counters: total searches,
// cache hits and hit rate, and average latency.
func (m *Manager) SearchStatistics() search.Statistics {
	return m.engine.Statistics()
}

// Suggestions returns prefix completions from the indexed vocabulary.
func (m *Manager) Suggestions(prefix string, limit int) []search.Suggestion {
	return m.engine.Suggestions(prefix, limit)
}

// FindSimilarWords ranks the indexed vocabulary by similarity to the word.
func (m *Manager) FindSimilarWords(ctx context.Context, word string, limit int, threshold float64) ([]embed.WordMatch, error) {
	return m.engine.FindSimilarWords(ctx, word, limit, threshold)
}

// EnqueueVideo queues one video for indexing.
func (m *Manager) EnqueueVideo(videoID string, priority int) error {
	if strings.TrimSpace(videoID) == "" {
		return idxerrors.ValidationError("video id must not be empty", nil)
	}
	if m.indexer.IsProcessing(videoID) {
		return idxerrors.ValidationError(fmt.Sprintf("video %s is already being indexed", videoID), nil)
	}
	if !m.queue.Enqueue(queue.Item{VideoID: videoID, Priority: priority}) {
		if m.queue.Contains(videoID) {
			return idxerrors.ValidationError(fmt.Sprintf("video %s is already queued", videoID), nil)
		}
		return idxerrors.New(idxerrors.ErrCodeQueueFull,
			fmt.Sprintf("indexing queue is at capacity (%d)", m.queue.Capacity()), nil)
	}
	return nil
}

// ForceReindex drops the existing entry and any cached manifest, then queues
// the video at top priority.
func (m *Manager) ForceReindex(videoID string) error {
	if strings.TrimSpace(videoID) == "" {
		return idxerrors.ValidationError("video id must not be empty", nil)
	}

	m.store.Delete(videoID)
	if inv, ok := m.registry.(manifestInvalidator); ok {
		inv.InvalidateManifest(videoID)
	}
	m.engine.PurgeCache()

	if !m.queue.Enqueue(queue.Item{VideoID: videoID, Priority: queue.PriorityForce}) {
		if m.queue.Contains(videoID) {
			return nil
		}
		return idxerrors.New(idxerrors.ErrCodeQueueFull,
			fmt.Sprintf("indexing queue is at capacity (%d)", m.queue.Capacity()), nil)
	}

	m.logger.Info("forced reindex", slog.String("video_id", videoID))
	return nil
}

// SyncRegistry runs a registry sync pass.
func (m *Manager) SyncRegistry(ctx context.Context, force bool) (SyncStats, error) {
	return m.syncer.Sync(ctx, force)
}

// GetIndexingStatus returns a best-effort pipeline snapshot. It never fails:
// whatever can be collected is returned.
func (m *Manager) GetIndexingStatus() IndexingStatus {
	stats := m.store.Stats()
	droppedStatus, droppedAlerts := m.indexer.Events().Dropped()

	status := IndexingStatus{
		TotalVideos:     stats.TotalEntries,
		Indexed:         stats.StatusBreakdown[model.StatusIndexed],
		StatusBreakdown: stats.StatusBreakdown,
		ContentUnits:    stats.ContentUnits,
		IndexedWords:    stats.IndexedWords,
		QueueSize:       m.queue.Size(),
		Processing:      m.indexer.Processing(),
		DroppedEvents:   droppedStatus,
		DroppedAlerts:   droppedAlerts,
	}
	sort.Strings(status.Processing)

	if last := m.syncer.LastSync(); !last.IsZero() {
		status.LastSync = &last
	}
	return status
}

// GetQueueStatus returns the queue snapshot.
func (m *Manager) GetQueueStatus() QueueStatus {
	return QueueStatus{
		Size:     m.queue.Size(),
		Capacity: m.queue.Capacity(),
		Items:    m.queue.Snapshot(),
	}
}

// GetVideoStatus returns one video's indexing state.
func (m *Manager) GetVideoStatus(videoID string) (*VideoStatus, error) {
	entry := m.store.Get(videoID)
	queued := m.queue.Contains(videoID)
	processing := m.indexer.IsProcessing(videoID)

	if entry == nil {
		if !queued && !processing {
			return nil, idxerrors.New(idxerrors.ErrCodeVideoNotFound,
				fmt.Sprintf("video %s is not known to the index", videoID), nil)
		}
		status := model.StatusQueued
		if processing {
			status = model.StatusIndexing
		}
		return &VideoStatus{VideoID: videoID, Status: status, Queued: queued, Processing: processing}, nil
	}

	kinds := make([]string, 0, len(entry.Content))
	for _, unit := range entry.Content {
		kinds = append(kinds, string(unit.Kind))
	}

	return &VideoStatus{
		VideoID:      entry.VideoID,
		Title:        entry.Title,
		Status:       entry.Status,
		IndexedAt:    entry.IndexedAt,
		ContentKinds: kinds,
		WordCount:    entry.TotalWordCount(),
		ErrorMessage: entry.ErrorMessage,
		RetryCount:   entry.RetryCount,
		Queued:       queued,
		Processing:   processing,
	}, nil
}

// CleanupOlderThan removes entries last indexed more than the given number
// of days ago and purges the result cache.
func (m *Manager) CleanupOlderThan(days int) (int, error) {
	if days <= 0 {
		return 0, idxerrors.ValidationError("days must be positive", nil)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	removed := m.store.CleanupOlderThan(cutoff)
	if removed > 0 {
		m.engine.PurgeCache()
	}
	return removed, nil
}

// Events exposes the indexer's event channels to subscribers.
func (m *Manager) Events() *Events {
	return m.indexer.Events()
}

// Shutdown stops the worker pool and closes closeable collaborators.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.indexer.Stop(ctx)

	if closer, ok := m.registry.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return err
}
