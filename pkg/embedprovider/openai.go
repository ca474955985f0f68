package embedprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/timescale/pgvectorizer/pkg/queue"
)

// openaiEmbedder is the synchronous (non-batch) OpenAI embedding path.
type openaiEmbedder struct {
	client openai.Client
}

func newOpenAIEmbedder(apiKey, baseURL string, httpClient *http.Client) *openaiEmbedder {
	opts := []option.RequestOption{option.WithHTTPClient(httpClient)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiEmbedder{client: openai.NewClient(opts...)}
}

// Embed satisfies queue.EmbeddingProvider.
func (e *openaiEmbedder) Embed(ctx context.Context, model string, texts []string, _ queue.EmbedOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedprovider: openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// classifyOpenAIError wraps a retriable openai-go error (HTTP 429/5xx, or
// a transport failure below the HTTP layer) in queue.TransportError per
// spec.md §4.D's failure semantics table.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return &queue.TransportError{Err: err, StatusCode: apiErr.StatusCode}
		}
		return err
	}
	// Anything that isn't a well-formed API error (DNS failure, connection
	// reset, context deadline) is a transport failure by elimination.
	return &queue.TransportError{Err: err}
}
