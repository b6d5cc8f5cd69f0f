package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/playbacklab/vidsearch/internal/model"
)

// MemoryStore is the in-memory IndexStore implementation.
//
// One RWMutex guards both the entry map and the inverted index so the two can
// never disagree. Critical sections stay short: readers get entry copies and
// do their scoring outside the lock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*model.VideoIndexEntry

	// inverted maps word -> posting set of video ids.
	inverted map[string]map[string]struct{}
}

var _ IndexStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*model.VideoIndexEntry),
		inverted: make(map[string]map[string]struct{}),
	}
}

// Put stores an entry, replacing any previous entry for the same id and
// rebuilding the inverted index for it.
func (s *MemoryStore) Put(entry *model.VideoIndexEntry) {
	clone := entry.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removePostings(clone.VideoID)
	s.entries[clone.VideoID] = clone

	for word := range Tokenize(clone.CombinedText()) {
		set, ok := s.inverted[word]
		if !ok {
			set = make(map[string]struct{})
			s.inverted[word] = set
		}
		set[clone.VideoID] = struct{}{}
	}

	slog.Debug("stored index entry", slog.String("video_id", clone.VideoID), slog.String("status", string(clone.Status)))
}

// Get returns a copy of the entry, or nil when absent.
func (s *MemoryStore) Get(videoID string) *model.VideoIndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[videoID]
	if !ok {
		return nil
	}
	return entry.Clone()
}

// Delete removes the entry and its postings. Returns false when absent.
func (s *MemoryStore) Delete(videoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[videoID]; !ok {
		return false
	}

	s.removePostings(videoID)
	delete(s.entries, videoID)
	return true
}

// removePostings drops the id from every posting set it participates in,
// pruning words whose posting set becomes empty. Caller holds the write lock.
func (s *MemoryStore) removePostings(videoID string) {
	for word, set := range s.inverted {
		delete(set, videoID)
		if len(set) == 0 {
			delete(s.inverted, word)
		}
	}
}

// AllIDs returns every video id in the store.
func (s *MemoryStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// ByStatus returns copies of all entries with the given status.
func (s *MemoryStore) ByStatus(status model.IndexStatus) []*model.VideoIndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*model.VideoIndexEntry
	for _, entry := range s.entries {
		if entry.Status == status {
			results = append(results, entry.Clone())
		}
	}
	return results
}

// Lookup returns the posting set for a word.
func (s *MemoryStore) Lookup(word string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.inverted[strings.ToLower(word)]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountIndexed returns the number of INDEXED entries.
func (s *MemoryStore) CountIndexed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.entries {
		if entry.Status == model.StatusIndexed {
			count++
		}
	}
	return count
}

// RecentlyIndexed returns INDEXED entries indexed after the given time,
// most recent first.
func (s *MemoryStore) RecentlyIndexed(since time.Time) []*model.VideoIndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*model.VideoIndexEntry
	for _, entry := range s.entries {
		if entry.Status == model.StatusIndexed && entry.IndexedAt != nil && entry.IndexedAt.After(since) {
			results = append(results, entry.Clone())
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].IndexedAt.After(*results[j].IndexedAt)
	})
	return results
}

// CleanupOlderThan removes entries last indexed (or updated, if never
// indexed) before the cutoff. Returns the number removed.
func (s *MemoryStore) CleanupOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for id, entry := range s.entries {
		lastUpdate := entry.UpdatedAt
		if entry.IndexedAt != nil {
			lastUpdate = *entry.IndexedAt
		}
		if lastUpdate.Before(cutoff) {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		s.removePostings(id)
		delete(s.entries, id)
	}

	if len(stale) > 0 {
		slog.Info("cleaned up stale index entries", slog.Int("removed", len(stale)))
	}
	return len(stale)
}

// Stats returns storage statistics.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalEntries:    len(s.entries),
		StatusBreakdown: make(map[model.IndexStatus]int),
		IndexedWords:    len(s.inverted),
	}
	for _, entry := range s.entries {
		stats.StatusBreakdown[entry.Status]++
		stats.ContentUnits += len(entry.Content)
		stats.TotalWordCount += entry.TotalWordCount()
	}
	return stats
}

// Tokenize splits text into the set of lowercase alphanumeric words of
// length >= 2 used by the inverted index.
func Tokenize(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		var b strings.Builder
		for _, r := range field {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		if word := b.String(); len(word) >= 2 {
			words[word] = struct{}{}
		}
	}
	return words
}
