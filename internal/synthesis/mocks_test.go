package synthesis

import (
	"context"
	"fmt"
	"sync"

	"jinn/internal/types"
)

// scriptedLLM answers CompleteWithSystem calls from a fixed script.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	systems   []string
}

func newScriptedLLM(responses ...string) *scriptedLLM {
	return &scriptedLLM{responses: responses}
}

func (m *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *scriptedLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.prompts)
	m.prompts = append(m.prompts, userPrompt)
	m.systems = append(m.systems, systemPrompt)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return "", m.errs[idx]
	}
	if idx >= len(m.responses) {
		return "", fmt.Errorf("script exhausted after %d calls", len(m.responses))
	}
	return m.responses[idx], nil
}

func (m *scriptedLLM) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return nil, fmt.Errorf("tools not scripted")
}

func (m *scriptedLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
