// Package model defines the data model for indexed video content:
// searchable content units, index entries, manifests, and queue items.
package model

import (
	"strings"
	"time"
)

// ContentKind identifies the category of searchable text extracted from a video.
type ContentKind string

const (
	ContentKindCaptions         ContentKind = "captions.vtt"
	ContentKindAudioTranscript  ContentKind = "audio-transcript.txt"
	ContentKindTTSTranscript    ContentKind = "tts-transcript.txt"
	ContentKindSceneDescription ContentKind = "scene-description"
	ContentKindMetadata         ContentKind = "metadata"
)

// AllContentKinds lists every supported content kind.
var AllContentKinds = []ContentKind{
	ContentKindCaptions,
	ContentKindAudioTranscript,
	ContentKindTTSTranscript,
	ContentKindSceneDescription,
	ContentKindMetadata,
}

// SearchableContent is one unit of extracted text tied to a content kind.
// It is immutable once produced for a given indexing pass; reindexing a video
// replaces its content wholesale.
type SearchableContent struct {
	Kind       ContentKind       `json:"kind"`
	Text       string            `json:"text"`
	SourceFile string            `json:"source_file,omitempty"`
	WordCount  int               `json:"word_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`

	// Vector is the document embedding computed at index time.
	// Nil when the embedding collaborator had no vector for the text.
	Vector []float32 `json:"-"`
}

// NewSearchableContent creates a content unit, stamping word count and timestamp.
func NewSearchableContent(kind ContentKind, text, sourceFile string) SearchableContent {
	return SearchableContent{
		Kind:       kind,
		Text:       text,
		SourceFile: sourceFile,
		WordCount:  len(strings.Fields(text)),
		Timestamp:  time.Now().UTC(),
	}
}
