// Package store provides the in-memory index store for video entries plus an
// inverted word index for fast text lookup. The store is memory-resident and
// rebuildable from the registry; a durable backend is a drop-in replacement
// behind the same contract.
package store

import (
	"time"

	"github.com/playbacklab/vidsearch/internal/model"
)

// IndexStore is the storage contract shared by the indexer and the search
// engine. All operations are safe under concurrent access. Operations never
// fail for missing ids; they report absence instead.
type IndexStore interface {
	// Put stores an entry, replacing any previous entry for the same video id
	// and rebuilding its inverted-index postings. The swap is atomic: readers
	// see either the old entry or the new one, never a mix.
	Put(entry *model.VideoIndexEntry)

	// Get returns a copy of the entry for the given id, or nil.
	Get(videoID string) *model.VideoIndexEntry

	// Delete removes the entry and all of its inverted-index postings.
	// Returns false if the id was not present.
	Delete(videoID string) bool

	// AllIDs returns every video id in the store.
	AllIDs() []string

	// ByStatus returns copies of all entries with the given status.
	ByStatus(status model.IndexStatus) []*model.VideoIndexEntry

	// Lookup returns the posting set for a word: the ids of all videos whose
	// combined text contains it.
	Lookup(word string) []string

	// CountIndexed returns the number of entries with status INDEXED.
	CountIndexed() int

	// RecentlyIndexed returns INDEXED entries with indexed_at after the given
	// time, most recent first.
	RecentlyIndexed(since time.Time) []*model.VideoIndexEntry

	// CleanupOlderThan removes entries whose last index time (indexed_at, or
	// updated_at when never indexed) is before the cutoff. Returns the number
	// removed.
	CleanupOlderThan(cutoff time.Time) int

	// Stats returns storage statistics for monitoring.
	Stats() Stats
}

// Stats describes the store's contents for status endpoints.
type Stats struct {
	TotalEntries    int                       `json:"total_entries"`
	StatusBreakdown map[model.IndexStatus]int `json:"status_breakdown"`
	ContentUnits    int                       `json:"content_units"`
	TotalWordCount  int                       `json:"total_word_count"`
	IndexedWords    int                       `json:"indexed_words"`
}
