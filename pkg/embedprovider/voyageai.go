package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/timescale/pgvectorizer/pkg/queue"
)

const defaultVoyageBaseURL = "https://api.voyageai.com/v1"

// voyageaiEmbedder calls Voyage AI's embeddings endpoint directly; no
// pack repo carries a Voyage SDK, so this follows the same raw
// net/http + encoding/json shape the retrieval pack uses for the same
// vendor (pgEdge's kbembed.generateVoyageEmbeddings).
type voyageaiEmbedder struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func newVoyageAIEmbedder(apiKey, baseURL string, client *http.Client) *voyageaiEmbedder {
	if baseURL == "" {
		baseURL = defaultVoyageBaseURL
	}
	return &voyageaiEmbedder{apiKey: apiKey, baseURL: baseURL, client: client}
}

type voyageEmbeddingRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed satisfies queue.EmbeddingProvider.
func (e *voyageaiEmbedder) Embed(ctx context.Context, model string, texts []string, opts queue.EmbedOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(voyageEmbeddingRequest{Input: texts, Model: model, InputType: opts.InputType})
	if err != nil {
		return nil, fmt.Errorf("embedprovider: marshal voyageai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedprovider: build voyageai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &queue.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &queue.TransportError{Err: fmt.Errorf("voyageai HTTP %d: %s", resp.StatusCode, msg), StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedprovider: voyageai returned HTTP %d: %s", resp.StatusCode, msg)
	}

	var parsed voyageEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedprovider: decode voyageai response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedprovider: voyageai returned %d embeddings for %d inputs", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}
