// Package embedprovider implements spec.md §4.D step 6 and §6's
// EmbeddingProvider capability: the openai, ollama, and voyageai
// embedding backends, including OpenAI's optional batch mode.
package embedprovider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/timescale/pgvectorizer/pkg/queue"
	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

// New builds the queue.EmbeddingProvider bound to cfg.Implementation.
// apiKey is the already-resolved secret (see pkg/secret); it may be
// empty for backends (ollama) that don't require one.
func New(cfg vconfig.EmbeddingConfig, apiKey string, httpClient *http.Client, pool BatchPool) (queue.EmbeddingProvider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	switch cfg.Implementation {
	case vconfig.EmbeddingOpenAI:
		base := newOpenAIEmbedder(apiKey, cfg.BaseURL, httpClient)
		if cfg.UseBatchAPI {
			if pool == nil {
				return nil, fmt.Errorf("embedprovider: use_batch_api requires a database pool")
			}
			if cfg.BatchTableName == "" {
				return nil, fmt.Errorf("embedprovider: use_batch_api requires batch_table_name")
			}
			return newBatchEmbedder(base, pool, cfg.BatchTableName), nil
		}
		return base, nil
	case vconfig.EmbeddingOllama:
		return newOllamaEmbedder(cfg.BaseURL, httpClient), nil
	case vconfig.EmbeddingVoyageAI:
		return newVoyageAIEmbedder(apiKey, cfg.BaseURL, httpClient), nil
	default:
		return nil, fmt.Errorf("embedprovider: unsupported implementation %q", cfg.Implementation)
	}
}

// CatalogAdapter narrows a queue.EmbeddingProvider to pkg/catalog's
// smaller Embedder shape (no EmbedOptions), so the same provider
// instance backs both the vectorizer pass and the semantic catalog's
// description/SQL-example embeddings.
type CatalogAdapter struct {
	Provider queue.EmbeddingProvider
}

// Embed satisfies pkg/catalog.Embedder.
func (a CatalogAdapter) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return a.Provider.Embed(ctx, model, texts, queue.EmbedOptions{})
}
