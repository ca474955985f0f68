package embedprovider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/queue"
)

func TestVoyageAIEmbedReturnsVectorsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req voyageEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		resp := voyageEmbeddingResponse{}
		resp.Data = []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{
			{Embedding: []float32{0.2, 0.3}, Index: 1},
			{Embedding: []float32{0.1, 0.1}, Index: 0},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := newVoyageAIEmbedder("test-key", srv.URL, srv.Client())
	vecs, err := e.Embed(context.Background(), "voyage-3", []string{"a", "b"}, queue.EmbedOptions{})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.1}, vecs[0])
	assert.Equal(t, []float32{0.2, 0.3}, vecs[1])
}

func TestVoyageAIEmbedWrapsRateLimitAsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	e := newVoyageAIEmbedder("test-key", srv.URL, srv.Client())
	_, err := e.Embed(context.Background(), "voyage-3", []string{"a"}, queue.EmbedOptions{})
	require.Error(t, err)

	var transportErr *queue.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusTooManyRequests, transportErr.StatusCode)
}

func TestVoyageAIEmbedRejectsDeterministicClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	e := newVoyageAIEmbedder("test-key", srv.URL, srv.Client())
	_, err := e.Embed(context.Background(), "voyage-3", []string{"a"}, queue.EmbedOptions{})
	require.Error(t, err)

	var transportErr *queue.TransportError
	assert.False(t, errors.As(err, &transportErr), "a 4xx other than 429 is a deterministic error, not retriable")
}

func TestVoyageAIEmbedEmptyInputReturnsNil(t *testing.T) {
	e := newVoyageAIEmbedder("key", "http://unused.invalid", http.DefaultClient)
	vecs, err := e.Embed(context.Background(), "voyage-3", nil, queue.EmbedOptions{})
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
