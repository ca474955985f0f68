package embedprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/queue"
)

func TestOllamaEmbedCallsOncePerText(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float32{float32(len(req.Prompt))}})
	}))
	defer srv.Close()

	e := newOllamaEmbedder(srv.URL, srv.Client())
	vecs, err := e.Embed(context.Background(), "nomic-embed-text", []string{"aa", "bbb"}, queue.EmbedOptions{})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, float32(2), vecs[0][0])
	assert.Equal(t, float32(3), vecs[1][0])
}

func TestOllamaEmbedStopsOnFirstFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newOllamaEmbedder(srv.URL, srv.Client())
	_, err := e.Embed(context.Background(), "nomic-embed-text", []string{"a", "b", "c"}, queue.EmbedOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
