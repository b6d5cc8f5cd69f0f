package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
)

// HTTPConfig configures the remote NLP processor client.
type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
	PoolSize int
	Retry    idxerrors.RetryConfig
}

// Defaults for the HTTP processor.
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultPoolSize    = 8
)

// HTTPProcessor calls a remote NLP service over HTTP. The service does the
// real linguistic work (lemmatization, POS tagging, entity recognition,
// word vectors); this client handles transport, retries, and shutdown.
type HTTPProcessor struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig
	logger    *slog.Logger
}

var _ Processor = (*HTTPProcessor)(nil)

type processRequest struct {
	Text string `json:"text"`
}

type processResponse struct {
	Tokens    []string  `json:"tokens"`
	Lemmas    []string  `json:"lemmas"`
	POSTags   []string  `json:"pos_tags"`
	Entities  []string  `json:"entities"`
	Sentences []string  `json:"sentences"`
	Vector    []float32 `json:"vector"`
	HasVector bool      `json:"has_vector"`
}

type similarWordsRequest struct {
	Word       string   `json:"word"`
	Candidates []string `json:"candidates"`
	Limit      int      `json:"limit"`
	Threshold  float64  `json:"threshold"`
}

type similarWordsResponse struct {
	Matches []WordMatch `json:"matches"`
}

// NewHTTPProcessor creates a client for a remote NLP service.
func NewHTTPProcessor(cfg HTTPConfig, logger *slog.Logger) (*HTTPProcessor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("nlp endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = idxerrors.DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}

	// No client-level timeout: per-request context timeouts keep retry
	// attempts independently bounded.
	return &HTTPProcessor{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		logger:    logger,
	}, nil
}

// EmbedDocument sends the text to the remote service for processing.
// A response without a vector yields a Document with a nil Vector; only
// transport and server failures are errors.
func (p *HTTPProcessor) EmbedDocument(ctx context.Context, text string) (*Document, error) {
	resp, err := idxerrors.RetryWithResult(ctx, p.config.Retry, func() (processResponse, error) {
		return p.doProcess(ctx, text)
	})
	if err != nil {
		return nil, idxerrors.EmbeddingError("nlp service request failed", err)
	}

	doc := &Document{
		Text:      text,
		Tokens:    resp.Tokens,
		Lemmas:    resp.Lemmas,
		POSTags:   resp.POSTags,
		Entities:  resp.Entities,
		Sentences: resp.Sentences,
	}
	if resp.HasVector {
		doc.Vector = resp.Vector
	}
	return doc, nil
}

func (p *HTTPProcessor) doProcess(ctx context.Context, text string) (processResponse, error) {
	var out processResponse

	body, err := json.Marshal(processRequest{Text: text})
	if err != nil {
		return out, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.config.Endpoint+"/process", bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("nlp service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("nlp service returned %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// Similarity scores two vectors locally; vectors returned by the service are
// plain float32 slices, so there is no need for a round trip.
func (p *HTTPProcessor) Similarity(a, b []float32) float64 {
	return CosineSimilarity(a, b)
}

// FindSimilarWords asks the remote service to rank candidates against the
// target word.
func (p *HTTPProcessor) FindSimilarWords(ctx context.Context, word string, candidates []string, limit int, threshold float64) ([]WordMatch, error) {
	body, err := json.Marshal(similarWordsRequest{
		Word:       word,
		Candidates: candidates,
		Limit:      limit,
		Threshold:  threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.config.Endpoint+"/similar-words", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, idxerrors.EmbeddingError("nlp service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, idxerrors.EmbeddingError(fmt.Sprintf("nlp service returned %d: %s", resp.StatusCode, string(data)), nil)
	}

	var out similarWordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Matches, nil
}

// Close releases idle connections.
func (p *HTTPProcessor) Close() error {
	p.transport.CloseIdleConnections()
	return nil
}
