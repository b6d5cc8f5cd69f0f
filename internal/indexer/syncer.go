package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
	"github.com/playbacklab/vidsearch/internal/model"
	"github.com/playbacklab/vidsearch/internal/queue"
	"github.com/playbacklab/vidsearch/internal/registry"
	"github.com/playbacklab/vidsearch/internal/store"
)

// DefaultMinSyncInterval gates how often a non-forced sync may hit the
// registry.
const DefaultMinSyncInterval = 5 * time.Minute

// SyncerConfig configures the registry syncer.
type SyncerConfig struct {
	MinInterval time.Duration
	MaxRetries  int
}

// SyncStats summarizes one sync pass.
type SyncStats struct {
	Skipped      bool      `json:"skipped"`
	Listed       int       `json:"listed"`
	New          int       `json:"new"`
	Updated      int       `json:"updated"`
	Retried      int       `json:"retried"`
	Requeued     int       `json:"requeued"`
	Enqueued     int       `json:"enqueued"`
	QueueRefused int       `json:"queue_refused"`
	SyncedAt     time.Time `json:"synced_at"`
}

// RegistrySyncer diffs the registry listing against the store and enqueues
// whatever needs (re)indexing.
//
// Priority policy: new videos enqueue at priority 3, updated at 2, retries
// at 1; discovery of never-indexed content is served first, retries of
// previously failed content last.
type RegistrySyncer struct {
	registry registry.Client
	store    store.IndexStore
	queue    *queue.Queue
	logger   *slog.Logger
	config   SyncerConfig

	// isProcessing lets the syncer requeue entries stuck in INDEXING after
	// an abandoned shutdown without touching ones legitimately in flight.
	isProcessing func(videoID string) bool

	mu       sync.Mutex
	lastSync time.Time
}

// NewRegistrySyncer creates a syncer. isProcessing may be nil.
func NewRegistrySyncer(reg registry.Client, s store.IndexStore, q *queue.Queue, isProcessing func(string) bool, cfg SyncerConfig, logger *slog.Logger) (*RegistrySyncer, error) {
	if reg == nil || s == nil || q == nil {
		return nil, fmt.Errorf("registry, store, and queue are required")
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinSyncInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if isProcessing == nil {
		isProcessing = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RegistrySyncer{
		registry:     reg,
		store:        s,
		queue:        q,
		logger:       logger,
		config:       cfg,
		isProcessing: isProcessing,
	}, nil
}

// Sync runs one sync pass. Without force, passes within MinInterval of the
// previous one are skipped.
func (s *RegistrySyncer) Sync(ctx context.Context, force bool) (SyncStats, error) {
	s.mu.Lock()
	if !force && !s.lastSync.IsZero() && time.Since(s.lastSync) < s.config.MinInterval {
		s.mu.Unlock()
		s.logger.Debug("sync skipped by minimum-interval gate")
		return SyncStats{Skipped: true, SyncedAt: s.lastSync}, nil
	}
	s.mu.Unlock()

	videos, err := s.registry.ListVideos(ctx)
	if err != nil {
		// Existing entries are left untouched on registry failure.
		return SyncStats{}, idxerrors.RegistryError("registry listing failed during sync", err)
	}

	stats := SyncStats{Listed: len(videos), SyncedAt: time.Now().UTC()}

	for _, video := range videos {
		entry := s.store.Get(video.ID)

		switch {
		case entry == nil:
			// Placeholder entry so status queries see QUEUED instead of
			// nothing. Stored before the enqueue: a worker can dequeue and
			// finish immediately, and a placeholder written afterwards would
			// clobber its INDEXED entry.
			s.store.Put(&model.VideoIndexEntry{
				VideoID:     video.ID,
				Title:       video.Title,
				Description: video.Description,
				Owner:       video.Owner,
				Tags:        video.Tags,
				CreatedAt:   video.CreatedAt,
				UpdatedAt:   video.UpdatedAt,
				Status:      model.StatusQueued,
			})
			if !s.enqueue(&stats, video, queue.PriorityNew, 0) {
				s.store.Delete(video.ID)
			}
			stats.New++

		case entry.Status == model.StatusError && entry.RetryCount < s.config.MaxRetries:
			s.markQueued(entry)
			s.enqueue(&stats, video, queue.PriorityRetry, entry.RetryCount)
			stats.Retried++

		case entry.Status == model.StatusIndexing && !s.isProcessing(video.ID):
			// Left behind by an abandoned shutdown; requeue as a retry.
			s.markQueued(entry)
			s.enqueue(&stats, video, queue.PriorityRetry, entry.RetryCount)
			stats.Requeued++

		case (entry.Status == model.StatusOutdated || entry.Status == model.StatusQueued) &&
			!s.queue.Contains(video.ID) && !s.isProcessing(video.ID):
			// Enqueued previously but the item never made it through
			// (queue was full, or the process restarted). Try again.
			s.enqueue(&stats, video, queue.PriorityUpdated, entry.RetryCount)
			stats.Requeued++

		case entry.Status == model.StatusIndexed && entry.UpdatedAt.Before(video.UpdatedAt):
			outdated := entry.Clone()
			outdated.Status = model.StatusOutdated
			outdated.UpdatedAt = video.UpdatedAt
			s.store.Put(outdated)
			s.enqueue(&stats, video, queue.PriorityUpdated, 0)
			stats.Updated++
		}
	}

	s.mu.Lock()
	s.lastSync = stats.SyncedAt
	s.mu.Unlock()

	s.logger.Info("registry sync complete",
		slog.Int("listed", stats.Listed),
		slog.Int("new", stats.New),
		slog.Int("updated", stats.Updated),
		slog.Int("retried", stats.Retried),
		slog.Int("requeued", stats.Requeued),
		slog.Int("enqueued", stats.Enqueued))
	return stats, nil
}

// LastSync returns when the last completed sync finished.
func (s *RegistrySyncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *RegistrySyncer) enqueue(stats *SyncStats, video registry.VideoMetadata, priority, retryCount int) bool {
	ok := s.queue.Enqueue(queue.Item{
		VideoID:    video.ID,
		Priority:   priority,
		RetryCount: retryCount,
	})
	if !ok {
		stats.QueueRefused++
		s.logger.Warn("queue refused sync item",
			slog.String("video_id", video.ID),
			slog.Int("priority", priority))
		return false
	}
	stats.Enqueued++
	return true
}

func (s *RegistrySyncer) markQueued(entry *model.VideoIndexEntry) {
	queued := entry.Clone()
	queued.Status = model.StatusQueued
	s.store.Put(queued)
}
