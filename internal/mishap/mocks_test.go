package mishap

import (
	"context"
	"fmt"
	"sync"

	"jinn/internal/types"
)

// scriptedLLM answers CompleteWithSystem calls in order.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (m *scriptedLLM) push(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

func (m *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *scriptedLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, userPrompt)
	if len(m.responses) == 0 {
		return "", fmt.Errorf("no scripted response for call %d", len(m.prompts))
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *scriptedLLM) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return nil, fmt.Errorf("tools not scripted")
}

func (m *scriptedLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
