package search

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/playbacklab/vidsearch/internal/embed"
	"github.com/playbacklab/vidsearch/internal/model"
)

// Relevance weights. Each sub-score contributes its weight to both numerator
// and denominator so the blended score stays in [0,1].
const (
	weightTitle       = 3.0
	weightDescription = 2.0
	weightKeyword     = 1.0
	weightTag         = 1.0
	weightRecency     = 0.5

	phraseBoost    = 1.2
	recencyWindow  = 30 * 24 * time.Hour
	matchThreshold = 0.3
)

// contentKindWeights maps each content kind to its scoring weight.
var contentKindWeights = map[model.ContentKind]float64{
	model.ContentKindCaptions:         1.5,
	model.ContentKindAudioTranscript:  1.3,
	model.ContentKindTTSTranscript:    1.2,
	model.ContentKindSceneDescription: 1.0,
	model.ContentKindMetadata:         0.8,
}

// scoreCandidate computes the weighted relevance of one candidate against
// the query. Returns the clamped score, the content kinds that matched, and
// the number of similarity computations performed.
func (e *Engine) scoreCandidate(queryDoc *embed.Document, query SearchQuery, entry *model.VideoIndexEntry) (float64, []model.ContentKind, int) {
	var total, weights float64
	var matched []model.ContentKind
	sims := 0

	if queryDoc.Vector != nil {
		if entry.TitleVector != nil {
			total += e.processor.Similarity(queryDoc.Vector, entry.TitleVector) * weightTitle
			weights += weightTitle
			sims++
		}
		if entry.DescriptionVector != nil {
			total += e.processor.Similarity(queryDoc.Vector, entry.DescriptionVector) * weightDescription
			weights += weightDescription
			sims++
		}
		for _, unit := range entry.Content {
			if unit.Vector == nil {
				continue
			}
			weight := contentKindWeights[unit.Kind]
			if weight == 0 {
				continue
			}
			sim := e.processor.Similarity(queryDoc.Vector, unit.Vector)
			total += sim * weight
			weights += weight
			sims++
			if sim >= matchThreshold {
				matched = append(matched, unit.Kind)
			}
		}
	}

	combined := strings.ToLower(entry.CombinedText())

	if lemmas := significantLemmas(queryDoc); len(lemmas) > 0 {
		total += keywordOverlap(lemmas, combined) * weightKeyword
		weights += weightKeyword
	}

	if len(query.Tags) > 0 {
		total += tagOverlap(query.Tags, entry.Tags) * weightTag
		weights += weightTag
	}

	if query.BoostRecent {
		total += recencyScore(entry.CreatedAt, time.Now().UTC()) * weightRecency
		weights += weightRecency
	}

	if weights == 0 {
		return 0, nil, sims
	}
	return clampScore(total / weights), matched, sims
}

// confidence blends the base score with exact-match and filter-fit signals:
// base×0.7 + avg(components)×0.3.
func (e *Engine) confidence(base float64, queryDoc *embed.Document, query SearchQuery, entry *model.VideoIndexEntry) float64 {
	combined := strings.ToLower(entry.CombinedText())
	var components []float64

	if words := significantLemmas(queryDoc); len(words) > 0 {
		components = append(components, keywordOverlap(words, combined))
	}

	if len(query.ContentKinds) > 0 {
		present := 0
		for _, kind := range query.ContentKinds {
			if entry.ContentByKind(kind) != nil {
				present++
			}
		}
		components = append(components, float64(present)/float64(len(query.ContentKinds)))
	}

	if len(query.Tags) > 0 {
		components = append(components, tagOverlap(query.Tags, entry.Tags))
	}

	components = append(components, lengthQuality(entry.TotalWordCount()))

	var sum float64
	for _, c := range components {
		sum += c
	}
	avg := sum / float64(len(components))

	return clampScore(base*0.7 + avg*0.3)
}

// significantLemmas keeps query lemmas longer than two characters that are
// purely alphabetic.
func significantLemmas(doc *embed.Document) []string {
	var out []string
	for _, lemma := range doc.Lemmas {
		if len(lemma) > 2 && isAlphabetic(lemma) {
			out = append(out, strings.ToLower(lemma))
		}
	}
	return out
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

// keywordOverlap is the fraction of words found verbatim in the text.
func keywordOverlap(words []string, lowerText string) float64 {
	if len(words) == 0 {
		return 0
	}
	found := 0
	for _, w := range words {
		if strings.Contains(lowerText, w) {
			found++
		}
	}
	return float64(found) / float64(len(words))
}

// tagOverlap is the fraction of query tags present in the candidate's tags,
// case-insensitive.
func tagOverlap(queryTags, entryTags []string) float64 {
	if len(queryTags) == 0 {
		return 0
	}
	have := make(map[string]bool, len(entryTags))
	for _, t := range entryTags {
		have[strings.ToLower(t)] = true
	}
	found := 0
	for _, t := range queryTags {
		if have[strings.ToLower(t)] {
			found++
		}
	}
	return float64(found) / float64(len(queryTags))
}

// recencyScore decays linearly from 1.0 at age zero to 0.0 at thirty days.
func recencyScore(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	if age >= recencyWindow {
		return 0
	}
	return 1 - float64(age)/float64(recencyWindow)
}

// lengthQuality rewards entries with substantial text, saturating at 300
// words.
func lengthQuality(wordCount int) float64 {
	if wordCount >= 300 {
		return 1
	}
	if wordCount <= 0 {
		return 0
	}
	return float64(wordCount) / 300
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// extractPhrases pulls quoted substrings out of the query text, returning
// the phrases and the remaining unquoted text.
func extractPhrases(text string) (phrases []string, remainder string) {
	var rest strings.Builder
	for {
		open := strings.IndexByte(text, '"')
		if open < 0 {
			rest.WriteString(text)
			break
		}
		length := strings.IndexByte(text[open+1:], '"')
		if length < 0 {
			rest.WriteString(text)
			break
		}
		rest.WriteString(text[:open])
		if phrase := strings.TrimSpace(text[open+1 : open+1+length]); phrase != "" {
			phrases = append(phrases, phrase)
		}
		text = text[open+length+2:]
	}
	return phrases, strings.Join(strings.Fields(rest.String()), " ")
}

// commonTypos maps frequent misspellings to their corrections.
var commonTypos = map[string]string{
	"teh":        "the",
	"adn":        "and",
	"taht":       "that",
	"wiht":       "with",
	"thier":      "their",
	"recieve":    "receive",
	"seperate":   "separate",
	"definately": "definitely",
}

// correctQueryWords rewrites the unquoted query words using the embedded
// document: known typos are replaced from the table, and a word whose lemma
// differs and is purely alphabetic falls back to the lemma. Words shorter
// than three characters pass through. Reports whether anything changed.
func correctQueryWords(doc *embed.Document) (string, bool) {
	if len(doc.Tokens) == 0 || len(doc.Tokens) != len(doc.Lemmas) {
		return doc.Text, false
	}

	words := make([]string, len(doc.Tokens))
	changed := false
	for i, token := range doc.Tokens {
		word := token
		if len(word) >= 3 {
			if fix, ok := commonTypos[word]; ok {
				word = fix
			} else if lemma := doc.Lemmas[i]; lemma != word && isAlphabetic(lemma) {
				word = lemma
			}
		}
		if word != token {
			changed = true
		}
		words[i] = word
	}
	if !changed {
		return doc.Text, false
	}
	return strings.Join(words, " "), true
}

// containsAllPhrases reports whether every phrase occurs verbatim in the
// text, case-insensitive.
func containsAllPhrases(lowerText string, phrases []string) bool {
	for _, phrase := range phrases {
		if !strings.Contains(lowerText, strings.ToLower(phrase)) {
			return false
		}
	}
	return true
}

// buildSnippet windows the candidate text around the first occurrence of any
// search term: 50 characters of lead-in, 150 of follow-on, with ellipses
// where truncated.
func buildSnippet(text string, terms []string) string {
	if text == "" {
		return ""
	}

	lower := strings.ToLower(text)
	pos := -1
	for _, term := range terms {
		term = strings.ToLower(term)
		if term == "" {
			continue
		}
		if idx := strings.Index(lower, term); idx >= 0 && (pos < 0 || idx < pos) {
			pos = idx
		}
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - 50
	if start < 0 {
		start = 0
	}
	end := pos + 150
	if end > len(text) {
		end = len(text)
	}

	// Snap byte offsets to rune boundaries so multibyte text is never cut
	// mid-rune.
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	snippet := text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}
