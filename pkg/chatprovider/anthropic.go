package chatprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/timescale/pgvectorizer/pkg/agent"
	"github.com/timescale/pgvectorizer/pkg/queue"
)

const defaultMaxTokens = 4096

// anthropicProvider implements agent.ChatProvider against Anthropic's
// Messages API.
type anthropicProvider struct {
	client anthropic.Client
}

func newAnthropicProvider(apiKey, baseURL string, httpClient *http.Client) *anthropicProvider {
	opts := []option.RequestOption{option.WithHTTPClient(httpClient)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...)}
}

// Chat satisfies agent.ChatProvider.
func (p *anthropicProvider) Chat(ctx context.Context, model string, messages []agent.Message, toolDefs []agent.ToolDefinition, toolChoice agent.ToolChoice, opts agent.ChatOptions) (agent.ChatResult, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  convertMessages(messages),
		Tools:     convertTools(toolDefs),
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if tc := convertToolChoice(toolChoice); tc != nil {
		params.ToolChoice = *tc
	}
	if opts.UserID != "" {
		// spec.md §9's called-out bug: earlier code sent the literal
		// string "user_id" as metadata instead of a {user_id: ...}
		// object. MetadataParam carries it as a typed field.
		params.Metadata = anthropic.MetadataParam{UserID: param.NewOpt(opts.UserID)}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return agent.ChatResult{}, classifyAnthropicError(err)
	}

	return agent.ChatResult{
		StopReason: string(msg.StopReason),
		Content:    convertResponseContent(msg.Content),
	}, nil
}

func convertMessages(messages []agent.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, c := range m.Content {
			switch c.Type {
			case "text":
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			case "tool_use":
				var input map[string]any
				_ = json.Unmarshal(c.Input, &input)
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    c.ToolUseID,
						Name:  c.ToolName,
						Input: input,
					},
				})
			case "tool_result":
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolResultFor, c.ToolResult, c.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func convertTools(defs []agent.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(defs))
	for i, d := range defs {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := d.InputSchema["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := d.InputSchema["required"].([]string); ok {
			schema.Required = req
		}
		tool := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: schema,
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return out
}

func convertToolChoice(choice agent.ToolChoice) *anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case "any":
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "tool":
		return &anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	case "auto":
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	default:
		return nil
	}
}

func convertResponseContent(blocks []anthropic.ContentBlockUnion) []agent.ContentBlock {
	out := make([]agent.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch block := b.AsAny().(type) {
		case anthropic.TextBlock:
			out = append(out, agent.ContentBlock{Type: "text", Text: block.Text})
		case anthropic.ToolUseBlock:
			raw, _ := json.Marshal(block.Input)
			out = append(out, agent.ContentBlock{
				Type:      "tool_use",
				ToolUseID: block.ID,
				ToolName:  block.Name,
				Input:     raw,
			})
		}
	}
	return out
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return &queue.TransportError{Err: err, StatusCode: apiErr.StatusCode}
		}
		return fmt.Errorf("chatprovider: anthropic request failed: %w", err)
	}
	// No status code to classify by (DNS failure, connection reset, context
	// deadline) - treat as transport-level by elimination, same as the
	// embedding providers.
	return &queue.TransportError{Err: err}
}
