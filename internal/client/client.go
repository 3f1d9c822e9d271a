// Package client wraps an LLM provider with model and token configuration.
package client

import (
	"context"

	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/provider"
)

const defaultMaxTokens = 8192

// Streamer is the model-facing surface the pipeline consumes. Client
// implements it for real providers; FakeClient implements it for tests.
type Streamer interface {
	// Stream starts a completion request and returns the event channel.
	Stream(ctx context.Context, msgs []message.Message,
		tools []provider.Tool, sysPrompt string) <-chan message.StreamEvent

	// Name returns the provider name.
	Name() string

	// ModelID returns the model identifier.
	ModelID() string
}

// TokenUsage tracks token consumption for a conversation.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Client wraps an LLM provider with model and token configuration.
type Client struct {
	Provider  provider.LLMProvider
	Model     string
	MaxTokens int // 0 means the default limit
	tokens    TokenUsage
}

// AddUsage accumulates token usage from a completed turn.
func (c *Client) AddUsage(usage message.Usage) {
	c.tokens.InputTokens += usage.InputTokens
	c.tokens.OutputTokens += usage.OutputTokens
	c.tokens.TotalTokens = c.tokens.InputTokens + c.tokens.OutputTokens
}

// Tokens returns the accumulated token usage.
func (c *Client) Tokens() TokenUsage {
	return c.tokens
}

// Stream starts a streaming completion request and returns the event channel.
func (c *Client) Stream(ctx context.Context, msgs []message.Message,
	tools []provider.Tool, sysPrompt string) <-chan message.StreamEvent {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return c.Provider.Stream(ctx, provider.CompletionOptions{
		Model:        c.Model,
		Messages:     msgs,
		MaxTokens:    maxTokens,
		Tools:        tools,
		SystemPrompt: sysPrompt,
	})
}

// Name returns the provider name (e.g., "anthropic").
func (c *Client) Name() string {
	return c.Provider.Name()
}

// ModelID returns the model identifier.
func (c *Client) ModelID() string {
	return c.Model
}

var _ Streamer = (*Client)(nil)
