package search

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbacklab/vidsearch/internal/embed"
)

func TestExtractPhrases(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		phrases   []string
		remainder string
	}{
		{"no phrases", "whale migration", nil, "whale migration"},
		{"one phrase", `"humpback whale" migration`, []string{"humpback whale"}, "migration"},
		{"two phrases", `"deep sea" footage "coral reef"`, []string{"deep sea", "coral reef"}, "footage"},
		{"unterminated quote", `whale "migration`, nil, `whale "migration`},
		{"empty phrase", `"" whale`, nil, "whale"},
		{"phrase only", `"ocean life"`, []string{"ocean life"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phrases, remainder := extractPhrases(tt.text)
			assert.Equal(t, tt.phrases, phrases)
			assert.Equal(t, tt.remainder, remainder)
		})
	}
}

func TestContainsAllPhrases(t *testing.T) {
	text := "a documentary about the humpback whale and coral reefs"

	assert.True(t, containsAllPhrases(text, []string{"Humpback Whale"}))
	assert.True(t, containsAllPhrases(text, []string{"humpback whale", "coral"}))
	assert.False(t, containsAllPhrases(text, []string{"humpback whale", "giant squid"}))
	assert.True(t, containsAllPhrases(text, nil))
}

func TestRecencyScore(t *testing.T) {
	now := time.Now().UTC()

	assert.InDelta(t, 1.0, recencyScore(now, now), 1e-9)
	assert.InDelta(t, 0.5, recencyScore(now.Add(-15*24*time.Hour), now), 0.01)
	assert.Zero(t, recencyScore(now.Add(-31*24*time.Hour), now))
	// Future timestamps clamp to full score.
	assert.InDelta(t, 1.0, recencyScore(now.Add(time.Hour), now), 1e-9)
}

func TestTagOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, tagOverlap([]string{"nature"}, []string{"Nature", "ocean"}), 1e-9)
	assert.InDelta(t, 0.5, tagOverlap([]string{"nature", "space"}, []string{"nature"}), 1e-9)
	assert.Zero(t, tagOverlap([]string{"space"}, []string{"nature"}))
	assert.Zero(t, tagOverlap(nil, []string{"nature"}))
}

func TestBuildSnippet_WindowsAroundFirstMatch(t *testing.T) {
	text := strings.Repeat("x", 100) + " whale " + strings.Repeat("y", 200)

	snippet := buildSnippet(text, []string{"whale"})

	assert.True(t, strings.HasPrefix(snippet, "..."), "lead-in should be truncated")
	assert.True(t, strings.HasSuffix(snippet, "..."), "follow-on should be truncated")
	assert.Contains(t, snippet, "whale")
	// 50 chars before + term + up to 150 after, plus two ellipses.
	assert.LessOrEqual(t, len(snippet), 50+150+6)
}

func TestBuildSnippet_NoMatchStartsAtBeginning(t *testing.T) {
	text := strings.Repeat("abc ", 100)

	snippet := buildSnippet(text, []string{"zzz"})

	require.NotEmpty(t, snippet)
	assert.False(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}

func TestBuildSnippet_MultibyteTextStaysValid(t *testing.T) {
	text := strings.Repeat("日", 40) + " whale " + strings.Repeat("本", 80)

	snippet := buildSnippet(text, []string{"whale"})

	assert.True(t, utf8.ValidString(snippet), "window boundaries must not cut a rune")
	assert.Contains(t, snippet, "whale")
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}

func TestBuildSnippet_MultibyteTextNoMatch(t *testing.T) {
	snippet := buildSnippet(strings.Repeat("海", 100), []string{"zzz"})

	assert.True(t, utf8.ValidString(snippet))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}

func TestBuildSnippet_ShortTextUntouched(t *testing.T) {
	assert.Equal(t, "whale song", buildSnippet("whale song", []string{"whale"}))
	assert.Equal(t, "", buildSnippet("", []string{"whale"}))
}

func TestCorrectQueryWords(t *testing.T) {
	tests := []struct {
		name      string
		tokens    []string
		lemmas    []string
		corrected string
		changed   bool
	}{
		{"typo table", []string{"teh", "whale"}, []string{"teh", "whale"}, "the whale", true},
		{"lemma fallback", []string{"whales"}, []string{"whale"}, "whale", true},
		{"already correct", []string{"whale"}, []string{"whale"}, "", false},
		{"short words pass through", []string{"of", "whales"}, []string{"o", "whale"}, "of whale", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &embed.Document{Text: strings.Join(tt.tokens, " "), Tokens: tt.tokens, Lemmas: tt.lemmas}

			corrected, changed := correctQueryWords(doc)

			assert.Equal(t, tt.changed, changed)
			if tt.changed {
				assert.Equal(t, tt.corrected, corrected)
			} else {
				assert.Equal(t, doc.Text, corrected)
			}
		})
	}
}

func TestCorrectQueryWords_EmptyDocument(t *testing.T) {
	corrected, changed := correctQueryWords(&embed.Document{Text: "  "})

	assert.False(t, changed)
	assert.Equal(t, "  ", corrected)
}

func TestLengthQuality(t *testing.T) {
	assert.Zero(t, lengthQuality(0))
	assert.InDelta(t, 0.5, lengthQuality(150), 1e-9)
	assert.InDelta(t, 1.0, lengthQuality(300), 1e-9)
	assert.InDelta(t, 1.0, lengthQuality(5000), 1e-9)
}

func TestClampScore(t *testing.T) {
	assert.Zero(t, clampScore(-0.2))
	assert.Equal(t, 0.7, clampScore(0.7))
	assert.Equal(t, 1.0, clampScore(1.3))
}
