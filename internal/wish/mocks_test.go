package wish

import (
	"context"
	"fmt"
	"sync"

	"jinn/internal/types"
)

// scriptedLLM replays text answers for CompleteWithSystem and tool answers
// for CompleteWithTools, recording the tool names offered on each round.
type scriptedLLM struct {
	mu      sync.Mutex
	texts   []string
	rounds  []*types.LLMToolResponse
	offered [][]string
	systems []string
	prompts int
}

func (m *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *scriptedLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts++
	if len(m.texts) == 0 {
		return "", fmt.Errorf("no scripted text response")
	}
	resp := m.texts[0]
	m.texts = m.texts[1:]
	return resp, nil
}

func (m *scriptedLLM) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	m.offered = append(m.offered, names)
	m.systems = append(m.systems, systemPrompt)
	if len(m.rounds) == 0 {
		return nil, fmt.Errorf("no scripted tool response for round %d", len(m.offered))
	}
	resp := m.rounds[0]
	m.rounds = m.rounds[1:]
	return resp, nil
}

func answer(text string) *types.LLMToolResponse {
	return &types.LLMToolResponse{Text: text, StopReason: "end_turn"}
}

func call(name string, input map[string]interface{}) *types.LLMToolResponse {
	return &types.LLMToolResponse{
		ToolCalls:  []types.ToolCall{{ID: "call-1", Name: name, Input: input}},
		StopReason: "tool_use",
	}
}
