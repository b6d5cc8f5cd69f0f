package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Scene is one scene description inside a manifest.
type Scene struct {
	Description string            `json:"description"`
	StartTime   float64           `json:"start_time,omitempty"`
	EndTime     float64           `json:"end_time,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Manifest is the structured description of a video's content fetched from
// the registry: scenes plus optional transcript files.
type Manifest struct {
	VideoID         string            `json:"video_id"`
	Scenes          []Scene           `json:"scenes"`
	CaptionsVTT     string            `json:"captions.vtt,omitempty"`
	AudioTranscript string            `json:"audio-transcript.txt,omitempty"`
	TTSTranscript   string            `json:"tts-transcript.txt,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Validate checks the structural invariants of a manifest.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.VideoID) == "" {
		return fmt.Errorf("manifest: video id must be a non-empty string")
	}
	for i, scene := range m.Scenes {
		if strings.TrimSpace(scene.Description) == "" {
			return fmt.Errorf("manifest: scene %d missing description", i)
		}
	}
	return nil
}

// ContentHash computes a SHA-256 hash over the normalized manifest for change
// detection. JSON field order is fixed by the struct, so equal manifests hash
// equally.
func (m *Manifest) ContentHash() string {
	normalized := struct {
		VideoID         string            `json:"video_id"`
		Scenes          []Scene           `json:"scenes"`
		CaptionsVTT     string            `json:"captions_vtt"`
		AudioTranscript string            `json:"audio_transcript"`
		TTSTranscript   string            `json:"tts_transcript"`
		Metadata        map[string]string `json:"metadata"`
	}{
		VideoID:         m.VideoID,
		Scenes:          m.Scenes,
		CaptionsVTT:     m.CaptionsVTT,
		AudioTranscript: m.AudioTranscript,
		TTSTranscript:   m.TTSTranscript,
		Metadata:        m.Metadata,
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		// Marshal of a plain struct cannot fail; hash the id as a stable fallback.
		data = []byte(m.VideoID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ExtractContent converts the manifest into searchable content units, one per
// content kind that is present.
func (m *Manifest) ExtractContent() []SearchableContent {
	var units []SearchableContent

	if m.CaptionsVTT != "" {
		units = append(units, NewSearchableContent(ContentKindCaptions, m.CaptionsVTT, "captions.vtt"))
	}
	if m.AudioTranscript != "" {
		units = append(units, NewSearchableContent(ContentKindAudioTranscript, m.AudioTranscript, "audio-transcript.txt"))
	}
	if m.TTSTranscript != "" {
		units = append(units, NewSearchableContent(ContentKindTTSTranscript, m.TTSTranscript, "tts-transcript.txt"))
	}

	if len(m.Scenes) > 0 {
		texts := make([]string, 0, len(m.Scenes))
		for i, scene := range m.Scenes {
			if scene.Description != "" {
				texts = append(texts, fmt.Sprintf("Scene %d: %s", i+1, scene.Description))
			}
		}
		if len(texts) > 0 {
			unit := NewSearchableContent(ContentKindSceneDescription, strings.Join(texts, " "), "manifest.json")
			unit.Metadata = map[string]string{"scene_count": fmt.Sprintf("%d", len(m.Scenes))}
			units = append(units, unit)
		}
	}

	if len(m.Metadata) > 0 {
		keys := make([]string, 0, len(m.Metadata))
		for k := range m.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+" "+m.Metadata[k])
		}
		units = append(units, NewSearchableContent(ContentKindMetadata, strings.Join(pairs, " "), "manifest.json"))
	}

	return units
}
