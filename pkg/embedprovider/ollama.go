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

const defaultOllamaBaseURL = "http://localhost:11434"

// ollamaEmbedder calls a local/self-hosted Ollama server's embeddings
// endpoint one prompt at a time — Ollama's /api/embeddings endpoint
// takes a single prompt, not a batch, matching the retrieval pack's own
// Ollama integration (pgEdge's kbembed.generateOllamaEmbeddings).
type ollamaEmbedder struct {
	baseURL string
	client  *http.Client
}

func newOllamaEmbedder(baseURL string, client *http.Client) *ollamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &ollamaEmbedder{baseURL: baseURL, client: client}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed satisfies queue.EmbeddingProvider.
func (e *ollamaEmbedder) Embed(ctx context.Context, model string, texts []string, _ queue.EmbedOptions) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, model, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *ollamaEmbedder) embedOne(ctx context.Context, model, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbeddingRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedprovider: marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedprovider: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &queue.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &queue.TransportError{Err: fmt.Errorf("ollama HTTP %d: %s", resp.StatusCode, msg), StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedprovider: ollama returned HTTP %d: %s", resp.StatusCode, msg)
	}

	var parsed ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedprovider: decode ollama response: %w", err)
	}
	return parsed.Embedding, nil
}
