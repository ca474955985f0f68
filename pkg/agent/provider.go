package agent

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrProviderNotImplemented is returned by provider adapters that exist
// for ABI-completeness (their name is a valid config.provider value) but
// whose vendor wire format spec.md §9 explicitly excludes from this
// implementation.
var ErrProviderNotImplemented = errors.New("agent: provider not implemented")

// ContentBlock is one piece of a Message, mirroring the union spec.md
// §6 describes for ChatProvider.chat's response content: a block is
// either plain text, a tool invocation, or a tool result being fed back
// to the model.
type ContentBlock struct {
	Type string // "text" | "tool_use" | "tool_result"

	// Type == "text"
	Text string

	// Type == "tool_use"
	ToolUseID string
	ToolName  string
	Input     json.RawMessage

	// Type == "tool_result"
	ToolResultFor string
	ToolResult    string
	IsError       bool
}

// Message is one turn of the conversation sent to or received from a
// ChatProvider.
type Message struct {
	Role    string // "user" | "assistant"
	Content []ContentBlock
}

// ToolDefinition describes one of the agent's two fixed tools in
// vendor-neutral form; each ChatProvider adapter maps this to its own
// wire schema.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolChoice constrains which tool(s) the model may call.
type ToolChoice struct {
	// Mode is "auto" (any tool, including none) or "any" (some tool
	// required) or "tool" (force the named tool).
	Mode string
	Name string // only when Mode == "tool"
}

// ChatOptions carries per-call knobs threaded to the provider adapter.
type ChatOptions struct {
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64
	UserID       string
}

// ChatResult is ChatProvider.chat's response, per spec.md §6.
type ChatResult struct {
	StopReason string
	Content    []ContentBlock
}

// ChatProvider is the capability spec.md §6 calls
// "ChatProvider.chat(model, messages, tools, tool_choice, options)".
// Concrete adapters live in pkg/chatprovider; this package only
// consumes the interface, per Go convention of declaring interfaces at
// the point of use.
type ChatProvider interface {
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDefinition, toolChoice ToolChoice, opts ChatOptions) (ChatResult, error)
}
