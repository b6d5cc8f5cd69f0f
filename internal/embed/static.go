package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// StaticProcessor processes text using a deterministic hash-based approach.
// Works without external dependencies (no network, no model download).
// Fast and reproducible, with reduced semantic quality compared to a real
// NLP service.
type StaticProcessor struct {
	mu     sync.RWMutex
	closed bool
}

var _ Processor = (*StaticProcessor)(nil)

// englishStopWords are filtered out of vector generation; they carry no
// search signal in video titles and transcripts.
var englishStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "he": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "this": true, "these": true, "those": true,
}

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// sentenceRegex splits on terminal punctuation followed by whitespace.
var sentenceRegex = regexp.MustCompile(`[.!?]+\s+`)

// NewStaticProcessor creates a new static processor.
func NewStaticProcessor() *StaticProcessor {
	return &StaticProcessor{}
}

// EmbedDocument tokenizes, lemmatizes, and vectorizes the text locally.
func (p *StaticProcessor) EmbedDocument(ctx context.Context, text string) (*Document, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("processor is closed")
	}
	p.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &Document{Text: text}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return doc, nil
	}

	doc.Tokens = tokenizeText(trimmed)
	doc.Lemmas = make([]string, len(doc.Tokens))
	doc.POSTags = make([]string, len(doc.Tokens))
	for i, token := range doc.Tokens {
		doc.Lemmas[i] = lemmatize(token)
		doc.POSTags[i] = guessPOS(token)
	}
	doc.Sentences = splitSentences(trimmed)
	doc.Entities = extractEntities(trimmed)
	doc.Vector = normalizeVector(p.generateVector(doc))

	return doc, nil
}

// Similarity scores two vectors via cosine similarity.
func (p *StaticProcessor) Similarity(a, b []float32) float64 {
	return CosineSimilarity(a, b)
}

// FindSimilarWords embeds each candidate and ranks by vector similarity.
func (p *StaticProcessor) FindSimilarWords(ctx context.Context, word string, candidates []string, limit int, threshold float64) ([]WordMatch, error) {
	target, err := p.EmbedDocument(ctx, word)
	if err != nil {
		return nil, err
	}
	if target.Vector == nil {
		return nil, nil
	}

	var matches []WordMatch
	for _, candidate := range candidates {
		if strings.EqualFold(candidate, word) {
			continue
		}
		doc, err := p.EmbedDocument(ctx, candidate)
		if err != nil {
			return nil, err
		}
		sim := CosineSimilarity(target.Vector, doc.Vector)
		if sim >= threshold {
			matches = append(matches, WordMatch{
				Word:       candidate,
				Similarity: sim,
				Lemma:      lemmatize(strings.ToLower(candidate)),
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Close marks the processor closed. Subsequent calls fail.
func (p *StaticProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// generateVector creates a hash-based vector from the document's lemmas and
// character trigrams. Lemmas rather than raw tokens, so "running" and "runs"
// land on the same component.
func (p *StaticProcessor) generateVector(doc *Document) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, lemma := range doc.Lemmas {
		if englishStopWords[lemma] {
			continue
		}
		index := hashToIndex(lemma, StaticDimensions)
		vector[index] += tokenWeight
	}

	normalized := normalizeForNgrams(doc.Text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		index := hashToIndex(ngram, StaticDimensions)
		vector[index] += ngramWeight
	}

	return vector
}

// tokenizeText splits text into lowercase alphanumeric tokens.
func tokenizeText(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		tokens = append(tokens, strings.ToLower(word))
	}
	return tokens
}

// lemmatize applies simple English suffix stripping. Good enough for matching
// inflected forms; a remote NLP service does this properly.
func lemmatize(token string) string {
	switch {
	case len(token) > 5 && strings.HasSuffix(token, "ing"):
		return token[:len(token)-3]
	case len(token) > 4 && strings.HasSuffix(token, "ies"):
		return token[:len(token)-3] + "y"
	case len(token) > 4 && strings.HasSuffix(token, "ed"):
		return token[:len(token)-2]
	case len(token) > 4 && hasSibilantPlural(token):
		return token[:len(token)-2]
	case len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss"):
		return token[:len(token)-1]
	default:
		return token
	}
}

// hasSibilantPlural reports whether the token ends in an "-es" plural formed
// after a sibilant (boxes, matches, dishes). Plain "-es" words like "whales"
// are handled by the "-s" rule instead.
func hasSibilantPlural(token string) bool {
	for _, suffix := range []string{"ches", "shes", "sses", "xes", "zes"} {
		if strings.HasSuffix(token, suffix) {
			return true
		}
	}
	return false
}

// guessPOS assigns a coarse part-of-speech tag from surface form alone.
func guessPOS(token string) string {
	switch {
	case token == "":
		return "X"
	case unicode.IsDigit(rune(token[0])):
		return "NUM"
	case strings.HasSuffix(token, "ly"):
		return "ADV"
	case strings.HasSuffix(token, "ing") || strings.HasSuffix(token, "ed"):
		return "VERB"
	case englishStopWords[token]:
		return "DET"
	default:
		return "NOUN"
	}
}

// splitSentences breaks text into sentences on terminal punctuation.
func splitSentences(text string) []string {
	parts := sentenceRegex.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// extractEntities finds runs of capitalized words, skipping sentence-initial
// position so ordinary sentence starts are not treated as names.
func extractEntities(text string) []string {
	var entities []string
	seen := make(map[string]bool)

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		var run []string
		for i, word := range words {
			cleaned := strings.TrimFunc(word, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			})
			if cleaned != "" && unicode.IsUpper(rune(cleaned[0])) && i > 0 {
				run = append(run, cleaned)
				continue
			}
			if len(run) > 0 {
				entity := strings.Join(run, " ")
				if !seen[entity] {
					seen[entity] = true
					entities = append(entities, entity)
				}
				run = nil
			}
		}
		if len(run) > 0 {
			entity := strings.Join(run, " ")
			if !seen[entity] {
				seen[entity] = true
				entities = append(entities, entity)
			}
		}
	}
	return entities
}

// normalizeForNgrams lowercases and collapses non-alphanumerics to single
// spaces for n-gram extraction.
func normalizeForNgrams(text string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// extractNgrams produces character n-grams of the given size.
func extractNgrams(text string, n int) []string {
	runes := []rune(text)
	if len(runes) < n {
		return nil
	}
	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex maps a string to a vector index via FNV-1a.
func hashToIndex(s string, dimensions int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32()) % dimensions
}
