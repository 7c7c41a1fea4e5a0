package types

import (
	"context"
)

// LLMClient is the synthesis collaborator. Implementations live in
// internal/llm; tests script it.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends a prompt with tool definitions and returns the
	// text answer or the tool calls the model selected.
	CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []ToolDefinition) (*LLMToolResponse, error)
}

// ToolDefinition is one callable offered to the collaborator: an
// incantation's schema or the synthetic craft tool.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCall is a selection made by the collaborator.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// UsageMetadata is the token accounting of one response.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse is either a plain answer or a set of tool selections.
type LLMToolResponse struct {
	Text       string        `json:"text"`
	ToolCalls  []ToolCall    `json:"tool_calls"`
	StopReason string        `json:"stop_reason"` // end_turn or tool_use
	Usage      UsageMetadata `json:"usage"`
}

// FirstToolCall returns the first tool call, if any. Only one selection per
// response is honoured.
func (r *LLMToolResponse) FirstToolCall() (ToolCall, bool) {
	if r == nil || len(r.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return r.ToolCalls[0], true
}
