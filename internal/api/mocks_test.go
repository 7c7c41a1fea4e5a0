package api

import (
	"context"
	"fmt"
	"sync"

	"jinn/internal/types"
)

// scriptedLLM replays text answers for CompleteWithSystem and tool answers
// for CompleteWithTools.
type scriptedLLM struct {
	mu     sync.Mutex
	texts  []string
	rounds []*types.LLMToolResponse
}

func (m *scriptedLLM) pushText(texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, texts...)
}

func (m *scriptedLLM) pushRound(rounds ...*types.LLMToolResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, rounds...)
}

func (m *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *scriptedLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	if len(m.rounds) == 0 {
		return nil, fmt.Errorf("no scripted tool response")
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

// fakeSpeech transcribes every recording to a fixed text and "speaks" by
// echoing the text as bytes.
type fakeSpeech struct {
	mu         sync.Mutex
	transcript string
	heard      []string
	spoken     []string
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heard = append(f.heard, mimeType)
	return f.transcript, nil
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return []byte(text), "audio/wav", nil
}
