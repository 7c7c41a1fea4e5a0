package llm

import (
	"context"
	"sync"

	"jinn/internal/types"
)

// MockLLMClient records calls and returns scripted responses.
type MockLLMClient struct {
	mu       sync.Mutex
	calls    int
	deadline bool

	CompleteWithToolsFunc func(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error)
}

func (m *MockLLMClient) record(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	_, m.deadline = ctx.Deadline()
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	m.record(ctx)
	return "ok:" + prompt, nil
}

func (m *MockLLMClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.record(ctx)
	return "ok:" + userPrompt, nil
}

func (m *MockLLMClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	m.record(ctx)
	if m.CompleteWithToolsFunc != nil {
		return m.CompleteWithToolsFunc(ctx, systemPrompt, userPrompt, tools)
	}
	return &types.LLMToolResponse{Text: "plain"}, nil
}

func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockLLMClient) SawDeadline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline
}
