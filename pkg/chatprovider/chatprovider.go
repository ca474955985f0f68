// Package chatprovider adapts spec.md §4.G's vendor-neutral agent.ChatProvider
// to concrete vendor SDKs, selected by the chat config's provider name.
package chatprovider

import (
	"fmt"
	"net/http"

	"github.com/timescale/pgvectorizer/pkg/agent"
)

// New builds the agent.ChatProvider named by provider ("anthropic" is the
// only implemented vendor; "openai" and "cohere" are present for
// ABI-completeness but return agent.ErrProviderNotImplemented on use, per
// spec.md §9).
func New(provider, apiKey, baseURL string, httpClient *http.Client) (agent.ChatProvider, error) {
	switch provider {
	case "anthropic":
		return newAnthropicProvider(apiKey, baseURL, httpClient), nil
	case "openai":
		return unimplementedProvider{name: provider}, nil
	case "cohere":
		return unimplementedProvider{name: provider}, nil
	default:
		return nil, fmt.Errorf("chatprovider: unsupported provider %q", provider)
	}
}
