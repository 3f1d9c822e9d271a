// Package anthropic implements the provider interface using the Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/rfenwick/aide/internal/log"
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/provider"
)

// Client implements provider.LLMProvider over the Anthropic Messages API.
type Client struct {
	client       anthropic.Client
	name         string
	cachedModels []provider.ModelInfo
}

// NewClient wraps an SDK client.
func NewClient(client anthropic.Client, name string) *Client {
	return &Client{client: client, name: name}
}

func (c *Client) Name() string { return c.name }

// Stream sends a completion request and translates SDK events into the
// canonical stream event union.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamEvent {
	ch := make(chan message.StreamEvent)

	go func() {
		defer close(ch)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(opts.Model),
			MaxTokens: int64(opts.MaxTokens),
			Messages:  convertMessages(opts.Messages),
		}
		if opts.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
		}
		if len(opts.Tools) > 0 {
			params.Tools = convertTools(opts.Tools)
		}

		log.LogRequest(c.name, opts.Model, len(opts.Messages), len(opts.Tools))

		stream := c.client.Messages.NewStreaming(ctx, params)

		var currentToolID string
		var usage message.Usage
		stopReason := "end_turn"

		streamStart := time.Now()
		eventCount := 0

		for stream.Next() {
			event := stream.Current()
			eventCount++

			switch event.Type {
			case "content_block_start":
				block := event.AsContentBlockStart()
				if block.ContentBlock.Type == "tool_use" {
					currentToolID = block.ContentBlock.ID
					ch <- message.ToolCallStartEvent(block.ContentBlock.ID, block.ContentBlock.Name)
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				switch delta.Delta.Type {
				case "text_delta":
					if delta.Delta.Text != "" {
						ch <- message.TextEvent(delta.Delta.Text)
					}
				case "thinking_delta":
					if delta.Delta.Thinking != "" {
						ch <- message.ReasoningEvent(delta.Delta.Thinking)
					}
				case "input_json_delta":
					if delta.Delta.PartialJSON != "" {
						ch <- message.ToolCallDeltaEvent(currentToolID, delta.Delta.PartialJSON)
					}
				}

			case "content_block_stop":
				if currentToolID != "" {
					ch <- message.ToolCallEndEvent(currentToolID)
					currentToolID = ""
				}

			case "message_start":
				msgStart := event.AsMessageStart()
				usage.InputTokens = int(msgStart.Message.Usage.InputTokens)

			case "message_delta":
				msgDelta := event.AsMessageDelta()
				if msgDelta.Delta.StopReason != "" {
					stopReason = string(msgDelta.Delta.StopReason)
				}
				usage.OutputTokens = int(msgDelta.Usage.OutputTokens)
			}
		}

		log.LogStreamDone(c.name, time.Since(streamStart), eventCount)

		if err := stream.Err(); err != nil {
			log.LogError(c.name, err)
			ch <- message.ErrorEvent(err)
			return
		}

		ch <- message.UsageEvent(usage)
		ch <- message.StopEvent(stopReason)
	}()

	return ch
}

func convertMessages(msgs []message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleUser:
			if msg.ToolResult != nil {
				out = append(out, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(
						msg.ToolResult.ToolCallID,
						msg.ToolResult.Content,
						msg.ToolResult.IsError,
					),
				))
			} else {
				out = append(out, anthropic.NewUserMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		case message.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input any
					if tc.Arguments != "" {
						if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
							input = tc.Arguments
						}
					} else {
						// Tools with no parameters need an empty object, not nil.
						input = map[string]any{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
				}
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			} else {
				out = append(out, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		}
	}
	return out
}

func convertTools(tools []provider.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{}
		if properties, ok := t.Parameters["properties"]; ok {
			inputSchema.Properties = properties
		}
		switch required := t.Parameters["required"].(type) {
		case []string:
			inputSchema.Required = required
		case []any:
			strs := make([]string, 0, len(required))
			for _, r := range required {
				if s, ok := r.(string); ok {
					strs = append(strs, s)
				}
			}
			inputSchema.Required = strs
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return out
}

var defaultModels = []provider.ModelInfo{
	{ID: "claude-opus-4-5", DisplayName: "Claude Opus 4.5"},
	{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5"},
	{ID: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5"},
}

// ListModels queries the Models API, falling back to a static list when the
// call fails.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	if len(c.cachedModels) > 0 {
		return c.cachedModels, nil
	}
	models, err := c.fetchModels(ctx)
	if err != nil {
		c.cachedModels = defaultModels
		return c.cachedModels, nil
	}
	c.cachedModels = models
	return c.cachedModels, nil
}

func (c *Client) fetchModels(ctx context.Context) ([]provider.ModelInfo, error) {
	pager := c.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})

	var models []provider.ModelInfo
	for pager.Next() {
		m := pager.Current()
		models = append(models, provider.ModelInfo{ID: m.ID, DisplayName: m.DisplayName})
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models returned from API")
	}
	return models, nil
}

var _ provider.LLMProvider = (*Client)(nil)

func init() {
	provider.Register(provider.Meta{
		Name:    provider.Anthropic,
		EnvVars: []string{"ANTHROPIC_API_KEY"},
	}, func(ctx context.Context) (provider.LLMProvider, error) {
		return NewClient(anthropic.NewClient(), string(provider.Anthropic)), nil
	})
}
