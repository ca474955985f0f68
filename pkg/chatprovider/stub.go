package chatprovider

import (
	"context"

	"github.com/timescale/pgvectorizer/pkg/agent"
)

// unimplementedProvider stands in for a chat provider whose vendor SDK
// isn't wired up yet. Selecting it in config fails fast rather than
// silently falling back to a different vendor.
type unimplementedProvider struct {
	name string
}

func (p unimplementedProvider) Chat(context.Context, string, []agent.Message, []agent.ToolDefinition, agent.ToolChoice, agent.ChatOptions) (agent.ChatResult, error) {
	return agent.ChatResult{}, agent.ErrProviderNotImplemented
}
