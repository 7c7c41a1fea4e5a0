package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"jinn/internal/logging"
	"jinn/internal/types"
)

// LimitedClient wraps any LLMClient with a client-side rate limit and a
// per-call deadline. All collaborator calls flow through this wrapper.
type LimitedClient struct {
	underlying types.LLMClient
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewLimitedClient wraps underlying. rps <= 0 disables rate limiting and
// timeout <= 0 disables the deadline.
func NewLimitedClient(underlying types.LLMClient, rps float64, burst int, timeout time.Duration) *LimitedClient {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &LimitedClient{underlying: underlying, limiter: limiter, timeout: timeout}
}

func (c *LimitedClient) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

// Complete implements types.LLMClient.
func (c *LimitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	return c.underlying.Complete(ctx, prompt)
}

// CompleteWithSystem implements types.LLMClient.
func (c *LimitedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	return c.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

// CompleteWithTools implements types.LLMClient.
func (c *LimitedClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	resp, err := c.underlying.CompleteWithTools(ctx, systemPrompt, userPrompt, tools)
	if err == nil && resp != nil && len(resp.ToolCalls) > 1 {
		logging.Get(logging.CategoryLLM).Warn("model selected %d tools, only the first is honoured", len(resp.ToolCalls))
	}
	return resp, err
}
