package model

import (
	"strings"
	"time"
)

// IndexStatus tracks where a video sits in the indexing state machine:
//
//	NOT_INDEXED -> QUEUED -> INDEXING -> {INDEXED | ERROR}
//	INDEXED -> OUTDATED   (registry reports a newer manifest)
//	ERROR -> QUEUED       (retry, bounded by max attempts)
//	OUTDATED -> QUEUED    (resync)
type IndexStatus string

const (
	StatusNotIndexed IndexStatus = "not_indexed"
	StatusQueued     IndexStatus = "queued"
	StatusIndexing   IndexStatus = "indexing"
	StatusIndexed    IndexStatus = "indexed"
	StatusError      IndexStatus = "error"
	StatusOutdated   IndexStatus = "outdated"
)

// VideoIndexEntry is the searchable record for one video.
//
// Entries are owned exclusively by the index store: the indexer builds an
// entry, then swaps it in whole. Nothing mutates a stored entry in place.
type VideoIndexEntry struct {
	VideoID     string
	Title       string
	Description string
	Owner       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IndexedAt   *time.Time
	Status      IndexStatus
	Tags        []string

	// Content holds at most one unit per content kind; adding a unit of an
	// existing kind replaces the old one.
	Content []SearchableContent

	// ManifestHash is the content hash of the last successfully indexed
	// manifest, used for change detection.
	ManifestHash string

	ErrorMessage string
	RetryCount   int

	// TitleVector and DescriptionVector are document embeddings computed at
	// index time so the search engine never re-embeds candidate text.
	TitleVector       []float32
	DescriptionVector []float32
}

// AddContent adds a searchable content unit, replacing any existing unit of
// the same kind.
func (e *VideoIndexEntry) AddContent(c SearchableContent) {
	kept := e.Content[:0]
	for _, existing := range e.Content {
		if existing.Kind != c.Kind {
			kept = append(kept, existing)
		}
	}
	e.Content = append(kept, c)
}

// ContentByKind returns the content unit of the given kind, or nil.
func (e *VideoIndexEntry) ContentByKind(kind ContentKind) *SearchableContent {
	for i := range e.Content {
		if e.Content[i].Kind == kind {
			return &e.Content[i]
		}
	}
	return nil
}

// CombinedText joins title, description, tags, and all content text into a
// single searchable string.
func (e *VideoIndexEntry) CombinedText() string {
	parts := make([]string, 0, len(e.Content)+3)
	if e.Title != "" {
		parts = append(parts, e.Title)
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if len(e.Tags) > 0 {
		parts = append(parts, strings.Join(e.Tags, " "))
	}
	for _, c := range e.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

// TotalWordCount counts words across title, description, tags, and content.
func (e *VideoIndexEntry) TotalWordCount() int {
	total := len(strings.Fields(e.Title)) + len(strings.Fields(e.Description))
	if len(e.Tags) > 0 {
		total += len(strings.Fields(strings.Join(e.Tags, " ")))
	}
	for _, c := range e.Content {
		total += c.WordCount
	}
	return total
}

// IsOutdated reports whether the entry's manifest hash differs from the given
// hash.
func (e *VideoIndexEntry) IsOutdated(manifestHash string) bool {
	return e.ManifestHash != manifestHash
}

// MarkIndexed transitions the entry to INDEXED, stamping the indexed-at time
// and manifest hash and clearing any error state.
func (e *VideoIndexEntry) MarkIndexed(manifestHash string) {
	now := time.Now().UTC()
	e.Status = StatusIndexed
	e.IndexedAt = &now
	e.ManifestHash = manifestHash
	e.ErrorMessage = ""
}

// MarkError transitions the entry to ERROR, recording the message and
// incrementing the retry count by exactly one.
func (e *VideoIndexEntry) MarkError(message string) {
	e.Status = StatusError
	e.ErrorMessage = message
	e.RetryCount++
}

// Clone returns a deep copy of the entry. The store hands out clones so
// readers never observe concurrent writes.
func (e *VideoIndexEntry) Clone() *VideoIndexEntry {
	clone := *e
	if e.IndexedAt != nil {
		t := *e.IndexedAt
		clone.IndexedAt = &t
	}
	clone.Tags = append([]string(nil), e.Tags...)
	clone.Content = append([]SearchableContent(nil), e.Content...)
	clone.TitleVector = append([]float32(nil), e.TitleVector...)
	clone.DescriptionVector = append([]float32(nil), e.DescriptionVector...)
	return &clone
}
