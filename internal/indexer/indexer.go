// Package indexer implements the lazy indexing pipeline: a background worker
// pool draining the priority queue, the registry syncer that feeds it, and
// the manager facade tying indexing and search together.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/playbacklab/vidsearch/internal/embed"
	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
	"github.com/playbacklab/vidsearch/internal/model"
	"github.com/playbacklab/vidsearch/internal/queue"
	"github.com/playbacklab/vidsearch/internal/registry"
	"github.com/playbacklab/vidsearch/internal/store"
)

// Defaults for the background indexer.
const (
	DefaultWorkers            = 10
	DefaultStalenessThreshold = 5 * time.Minute
	DefaultDequeueTimeout     = 500 * time.Millisecond

	metadataCacheSize = 1000
	metadataCacheTTL  = time.Minute
	stalenessInterval = 30 * time.Second
)

// IndexerConfig configures the background indexer.
type IndexerConfig struct {
	Workers            int
	StalenessThreshold time.Duration
}

// IndexResult is the outcome of one indexing pass. A result may be degraded:
// the entry was still written, with the reasons carried as warnings.
type IndexResult struct {
	VideoID  string
	Entry    *model.VideoIndexEntry
	Warnings []string
	Duration time.Duration
}

// Degraded reports whether the pass succeeded with reduced content.
func (r *IndexResult) Degraded() bool {
	return len(r.Warnings) > 0
}

// BackgroundIndexer drains the queue with a fixed-size worker pool, calling
// the registry and embedding collaborators and writing entries to the store.
type BackgroundIndexer struct {
	queue     *queue.Queue
	store     store.IndexStore
	registry  registry.Client
	processor embed.Processor
	events    *Events
	logger    *slog.Logger
	config    IndexerConfig

	// metadata caches the registry listing briefly so per-item lookups do
	// not refetch it.
	metadata *expirable.LRU[string, registry.VideoMetadata]

	mu         sync.Mutex
	processing map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBackgroundIndexer creates a stopped indexer. Call Start to launch the
// worker pool.
func NewBackgroundIndexer(q *queue.Queue, s store.IndexStore, reg registry.Client, proc embed.Processor, events *Events, cfg IndexerConfig, logger *slog.Logger) (*BackgroundIndexer, error) {
	if q == nil || s == nil || reg == nil || proc == nil {
		return nil, fmt.Errorf("queue, store, registry, and processor are required")
	}
	if events == nil {
		events = NewEvents(0)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = DefaultStalenessThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BackgroundIndexer{
		queue:      q,
		store:      s,
		registry:   reg,
		processor:  proc,
		events:     events,
		logger:     logger,
		config:     cfg,
		metadata:   expirable.NewLRU[string, registry.VideoMetadata](metadataCacheSize, nil, metadataCacheTTL),
		processing: make(map[string]time.Time),
		stop:       make(chan struct{}),
	}, nil
}

// Start launches the worker pool and the staleness monitor.
func (b *BackgroundIndexer) Start() {
	for i := 0; i < b.config.Workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	b.wg.Add(1)
	go b.monitorStaleness()

	b.logger.Info("background indexer started", slog.Int("workers", b.config.Workers))
}

// Stop halts intake and waits for in-flight work, bounded by the context.
// Abandoned items keep whatever status they had; the next sync corrects them.
func (b *BackgroundIndexer) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("background indexer stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("background indexer shutdown timed out with work in flight")
		return ctx.Err()
	}
}

// Processing returns the ids currently being indexed.
func (b *BackgroundIndexer) Processing() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.processing))
	for id := range b.processing {
		ids = append(ids, id)
	}
	return ids
}

// IsProcessing reports whether the video is being indexed right now.
func (b *BackgroundIndexer) IsProcessing(videoID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.processing[videoID]
	return ok
}

// Events returns the indexer's event channels.
func (b *BackgroundIndexer) Events() *Events {
	return b.events
}

func (b *BackgroundIndexer) worker(id int) {
	defer b.wg.Done()
	logger := b.logger.With(slog.Int("worker", id))

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		item, ok := b.queue.Dequeue(DefaultDequeueTimeout)
		if !ok {
			continue
		}

		// Check-and-set in one step: if another worker already holds the
		// id, this item is a duplicate and is dropped.
		if !b.tryBegin(item.VideoID) {
			logger.Debug("skipping item already being processed", slog.String("video_id", item.VideoID))
			continue
		}

		result := b.indexVideo(context.Background(), item)
		b.finish(item.VideoID)

		if result.Entry != nil && result.Entry.Status == model.StatusError {
			logger.Warn("indexing failed",
				slog.String("video_id", item.VideoID),
				slog.String("error", result.Entry.ErrorMessage),
				slog.Int("retry_count", result.Entry.RetryCount))
		} else {
			logger.Info("indexed video",
				slog.String("video_id", item.VideoID),
				slog.Duration("duration", result.Duration),
				slog.Int("warnings", len(result.Warnings)))
		}
	}
}

// tryBegin atomically claims the processing slot for the id.
func (b *BackgroundIndexer) tryBegin(videoID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, busy := b.processing[videoID]; busy {
		return false
	}
	b.processing[videoID] = time.Now().UTC()
	return true
}

// finish releases the processing marker. Runs on every exit path.
func (b *BackgroundIndexer) finish(videoID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.processing, videoID)
}

func (b *BackgroundIndexer) monitorStaleness() {
	defer b.wg.Done()

	ticker := time.NewTicker(stalenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			now := time.Now().UTC()
			b.mu.Lock()
			for id, started := range b.processing {
				if elapsed := now.Sub(started); elapsed > b.config.StalenessThreshold {
					b.events.publishAlert(id,
						fmt.Sprintf("indexing running for %s, threshold %s", elapsed.Round(time.Second), b.config.StalenessThreshold),
						elapsed)
				}
			}
			b.mu.Unlock()
		}
	}
}

// indexVideo runs the full pipeline for one queue item: metadata lookup,
// manifest fetch (degradable), validation and hashing, embedding enrichment
// (degradable), atomic store write.
func (b *BackgroundIndexer) indexVideo(ctx context.Context, item queue.Item) IndexResult {
	start := time.Now()
	result := IndexResult{VideoID: item.VideoID}

	previous := b.store.Get(item.VideoID)
	b.transition(item.VideoID, previous, model.StatusIndexing, "")

	meta, err := b.lookupMetadata(ctx, item.VideoID)
	if err != nil {
		result.Entry = b.failEntry(item.VideoID, previous, fmt.Sprintf("metadata lookup failed: %v", err))
		result.Duration = time.Since(start)
		return result
	}

	entry := &model.VideoIndexEntry{
		VideoID:     meta.ID,
		Title:       meta.Title,
		Description: meta.Description,
		Owner:       meta.Owner,
		Tags:        meta.Tags,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
		Status:      model.StatusIndexing,
	}
	if previous != nil {
		entry.RetryCount = previous.RetryCount
	}

	manifestHash := ""
	manifest, err := b.registry.GetManifest(ctx, item.VideoID)
	if err != nil {
		// A manifest fetch failure degrades content, it does not abort
		// indexing: the entry is written with metadata only.
		result.Warnings = append(result.Warnings, fmt.Sprintf("manifest fetch failed, indexing metadata only: %v", err))
	} else if vErr := manifest.Validate(); vErr != nil {
		result.Entry = b.failEntry(item.VideoID, previous, fmt.Sprintf("manifest validation failed: %v", vErr))
		result.Duration = time.Since(start)
		return result
	} else {
		manifestHash = manifest.ContentHash()
		for _, unit := range manifest.ExtractContent() {
			entry.AddContent(unit)
		}
	}

	b.enrich(ctx, entry, &result)

	entry.MarkIndexed(manifestHash)
	b.store.Put(entry)
	b.events.publishStatus(item.VideoID, model.StatusIndexing, model.StatusIndexed, "")

	result.Entry = entry
	result.Duration = time.Since(start)
	return result
}

// enrich computes vectors for title, description, and each content unit.
// Embedding failures fall back to raw text and are carried as warnings.
func (b *BackgroundIndexer) enrich(ctx context.Context, entry *model.VideoIndexEntry, result *IndexResult) {
	if entry.Title != "" {
		if doc, err := b.processor.EmbedDocument(ctx, entry.Title); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("title embedding failed: %v", err))
		} else {
			entry.TitleVector = doc.Vector
		}
	}
	if entry.Description != "" {
		if doc, err := b.processor.EmbedDocument(ctx, entry.Description); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("description embedding failed: %v", err))
		} else {
			entry.DescriptionVector = doc.Vector
		}
	}
	for i := range entry.Content {
		doc, err := b.processor.EmbedDocument(ctx, entry.Content[i].Text)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s embedding failed, keeping raw text: %v", entry.Content[i].Kind, err))
			continue
		}
		entry.Content[i].Vector = doc.Vector
	}
}

// failEntry marks the entry ERROR and writes it back.
func (b *BackgroundIndexer) failEntry(videoID string, previous *model.VideoIndexEntry, message string) *model.VideoIndexEntry {
	entry := previous
	if entry == nil {
		entry = &model.VideoIndexEntry{
			VideoID:   videoID,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
	}
	from := entry.Status
	entry.MarkError(message)
	b.store.Put(entry)
	b.events.publishStatus(videoID, from, model.StatusError, message)
	return entry
}

// transition writes an intermediate status change for an existing entry and
// publishes the event.
func (b *BackgroundIndexer) transition(videoID string, previous *model.VideoIndexEntry, to model.IndexStatus, message string) {
	from := model.StatusNotIndexed
	if previous != nil {
		from = previous.Status
		updated := previous.Clone()
		updated.Status = to
		b.store.Put(updated)
	}
	b.events.publishStatus(videoID, from, to, message)
}

// lookupMetadata resolves a video's metadata from the briefly-cached registry
// listing.
func (b *BackgroundIndexer) lookupMetadata(ctx context.Context, videoID string) (registry.VideoMetadata, error) {
	if meta, ok := b.metadata.Get(videoID); ok {
		return meta, nil
	}

	videos, err := b.registry.ListVideos(ctx)
	if err != nil {
		return registry.VideoMetadata{}, err
	}
	for _, v := range videos {
		b.metadata.Add(v.ID, v)
	}

	if meta, ok := b.metadata.Get(videoID); ok {
		return meta, nil
	}
	return registry.VideoMetadata{}, idxerrors.New(idxerrors.ErrCodeVideoNotFound,
		fmt.Sprintf("video %s not in registry listing", videoID), nil)
}
