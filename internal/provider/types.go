// Package provider defines the interface for interacting with LLM providers
// and a registry of the providers aide ships with.
package provider

import (
	"context"

	"github.com/rfenwick/aide/internal/message"
)

// Name identifies a provider.
type Name string

const (
	Anthropic Name = "anthropic"
	OpenAI    Name = "openai"
)

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
}

// Tool describes a tool to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// CompletionOptions contains options for a completion request.
type CompletionOptions struct {
	Model        string
	Messages     []message.Message
	MaxTokens    int
	Temperature  float64
	Tools        []Tool
	SystemPrompt string
}

// LLMProvider is implemented by each provider adapter. Stream translates the
// provider's wire protocol into the canonical event union: text and reasoning
// deltas, tool call start/delta/end triples, a usage event, then a stop event.
// The channel is closed when the stream ends; an error event is terminal.
type LLMProvider interface {
	Name() string
	Stream(ctx context.Context, opts CompletionOptions) <-chan message.StreamEvent
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Factory creates an LLMProvider.
type Factory func(ctx context.Context) (LLMProvider, error)
