// Package llm provides the synthesis collaborator clients: a Gemini client
// built on google.golang.org/genai and a rate-limited wrapper that bounds
// every call with a deadline.
package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"jinn/internal/logging"
	"jinn/internal/types"
)

// ModelResolver returns the model identifier for a call. It is consulted on
// every request so a config change takes effect without a restart.
type ModelResolver func(ctx context.Context) string

// StaticModel resolves to a fixed model.
func StaticModel(model string) ModelResolver {
	return func(context.Context) string { return model }
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey   string
	Backend  string // gemini, vertex
	Project  string
	Location string
	BaseURL  string // test override

	// ThinkingBudget caps thinking tokens: -1 dynamic, 0 off.
	ThinkingBudget int
}

// GeminiClient implements types.LLMClient for Google Gemini.
type GeminiClient struct {
	client         *genai.Client
	model          ModelResolver
	thinkingBudget int
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, model ModelResolver) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Backend == "vertex" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.APIKey = ""
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == nil {
		model = StaticModel("gemini-2.5-flash")
	}
	return &GeminiClient{client: client, model: model, thinkingBudget: cfg.ThinkingBudget}, nil
}

// Complete sends a prompt and returns the response text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a system and user prompt and returns the response text.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.generate(ctx, systemPrompt, userPrompt, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}

// CompleteWithTools sends a prompt with tool definitions. The response holds
// either text or the selected tool calls.
func (c *GeminiClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		}
	}

	var genTools []*genai.Tool
	if len(decls) > 0 {
		genTools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	resp, err := c.generate(ctx, systemPrompt, userPrompt, genTools)
	if err != nil {
		return nil, err
	}

	out := &types.LLMToolResponse{StopReason: "end_turn"}
	for i, call := range resp.FunctionCalls() {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := call.Args
		if args == nil {
			args = map[string]interface{}{}
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: id, Name: call.Name, Input: args})
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = "tool_use"
	} else {
		out.Text = strings.TrimSpace(resp.Text())
	}
	if resp.UsageMetadata != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (c *GeminiClient) generate(ctx context.Context, systemPrompt, userPrompt string, tools []*genai.Tool) (*genai.GenerateContentResponse, error) {
	model := c.model(ctx)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
		Tools:       tools,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if c.thinkingBudget >= 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(c.thinkingBudget))}
	}

	timer := logging.StartTimer(logging.CategoryLLM, "gemini "+model)
	defer timer.Stop()

	resp, err := c.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		logging.LLMError("gemini %s failed: %v", model, err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in Gemini response")
	}
	logging.LLMDebug("gemini %s: %d candidate(s), %d tool(s) offered", model, len(resp.Candidates), len(tools))
	return resp, nil
}

// GenAI exposes the underlying client for the speech services.
func (c *GeminiClient) GenAI() *genai.Client {
	return c.client
}
