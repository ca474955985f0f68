package embedprovider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/queue"
)

func TestOpenAIEmbedReturnsVectorsInIndexOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "embedding": [0.2, 0.3], "index": 1},
				{"object": "embedding", "embedding": [0.1, 0.1], "index": 0}
			],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	e := newOpenAIEmbedder("test-key", srv.URL, srv.Client())
	vecs, err := e.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"}, queue.EmbedOptions{})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDeltaSlice(t, []float32{0.1, 0.1}, vecs[0], 0.0001)
	assert.InDeltaSlice(t, []float32{0.2, 0.3}, vecs[1], 0.0001)
}

func TestOpenAIEmbedEmptyInputReturnsNil(t *testing.T) {
	e := newOpenAIEmbedder("key", "http://unused.invalid", http.DefaultClient)
	vecs, err := e.Embed(context.Background(), "text-embedding-3-small", nil, queue.EmbedOptions{})
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestClassifyOpenAIErrorWrapsNonAPIErrorsAsTransport(t *testing.T) {
	err := classifyOpenAIError(errors.New("connection reset"))

	var transportErr *queue.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 0, transportErr.StatusCode)
}
