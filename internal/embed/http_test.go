package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
)

func fastRetry() idxerrors.RetryConfig {
	return idxerrors.RetryConfig{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func TestHTTPProcessor_EmbedDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/process", r.URL.Path)

		var req processRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "whale migration", req.Text)

		_ = json.NewEncoder(w).Encode(processResponse{
			Tokens:    []string{"whale", "migration"},
			Lemmas:    []string{"whale", "migration"},
			POSTags:   []string{"NOUN", "NOUN"},
			Sentences: []string{"whale migration"},
			Vector:    []float32{0.1, 0.2},
			HasVector: true,
		})
	}))
	defer server.Close()

	p, err := NewHTTPProcessor(HTTPConfig{Endpoint: server.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	doc, err := p.EmbedDocument(context.Background(), "whale migration")
	require.NoError(t, err)
	assert.Equal(t, []string{"whale", "migration"}, doc.Tokens)
	assert.Equal(t, []float32{0.1, 0.2}, doc.Vector)
}

func TestHTTPProcessor_NoVectorIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(processResponse{
			Tokens:    []string{"zxqvw"},
			HasVector: false,
		})
	}))
	defer server.Close()

	p, err := NewHTTPProcessor(HTTPConfig{Endpoint: server.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	doc, err := p.EmbedDocument(context.Background(), "zxqvw")
	require.NoError(t, err)
	assert.Nil(t, doc.Vector)
}

func TestHTTPProcessor_ServerErrorRetriesThenFails(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p, err := NewHTTPProcessor(HTTPConfig{Endpoint: server.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.EmbedDocument(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 2, calls, "initial attempt plus one retry")
	assert.True(t, idxerrors.IsRetryable(err))
}

func TestHTTPProcessor_FindSimilarWords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/similar-words", r.URL.Path)

		var req similarWordsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ocean", req.Word)
		assert.Equal(t, 5, req.Limit)

		_ = json.NewEncoder(w).Encode(similarWordsResponse{
			Matches: []WordMatch{{Word: "sea", Similarity: 0.91}},
		})
	}))
	defer server.Close()

	p, err := NewHTTPProcessor(HTTPConfig{Endpoint: server.URL, Retry: fastRetry()}, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	matches, err := p.FindSimilarWords(context.Background(), "ocean", []string{"sea", "desk"}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sea", matches[0].Word)
}

func TestHTTPProcessor_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPProcessor(HTTPConfig{}, nil)
	assert.Error(t, err)
}
