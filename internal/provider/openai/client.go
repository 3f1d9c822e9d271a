// Package openai implements the provider interface over the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/rfenwick/aide/internal/log"
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/provider"
)

// Client implements provider.LLMProvider using the OpenAI SDK.
type Client struct {
	client openai.Client
	name   string
}

// NewClient wraps an SDK client.
func NewClient(client openai.Client, name string) *Client {
	return &Client{client: client, name: name}
}

func (c *Client) Name() string { return c.name }

// Stream sends a completion request and translates streamed chunks into the
// canonical event union. Tool call deltas arrive indexed; the ID and name come
// on the first chunk for each index and arguments accumulate after.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamEvent {
	ch := make(chan message.StreamEvent)

	go func() {
		defer close(ch)

		params := openai.ChatCompletionNewParams{
			Model:    opts.Model,
			Messages: convertMessages(opts),
		}
		if opts.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		}
		if opts.Temperature > 0 {
			params.Temperature = openai.Float(opts.Temperature)
		}
		if len(opts.Tools) > 0 {
			params.Tools = convertTools(opts.Tools)
		}
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}

		log.LogRequest(c.name, opts.Model, len(opts.Messages), len(opts.Tools))

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)

		// Open tool calls by stream index.
		toolIDs := make(map[int]string)
		var usage message.Usage
		stopReason := "end_turn"

		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			chunk := stream.Current()
			chunkCount++

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					ch <- message.TextEvent(choice.Delta.Content)
				}

				for _, tc := range choice.Delta.ToolCalls {
					idx := int(tc.Index)
					if _, open := toolIDs[idx]; !open {
						toolIDs[idx] = tc.ID
						ch <- message.ToolCallStartEvent(tc.ID, tc.Function.Name)
					}
					if tc.Function.Arguments != "" {
						ch <- message.ToolCallDeltaEvent(toolIDs[idx], tc.Function.Arguments)
					}
				}

				if choice.FinishReason != "" {
					// Close any open tool calls before the stop.
					for idx := 0; idx < len(toolIDs); idx++ {
						if id, ok := toolIDs[idx]; ok {
							ch <- message.ToolCallEndEvent(id)
						}
					}
					toolIDs = make(map[int]string)

					switch choice.FinishReason {
					case "stop":
						stopReason = "end_turn"
					case "tool_calls":
						stopReason = "tool_use"
					case "length":
						stopReason = "max_tokens"
					default:
						stopReason = choice.FinishReason
					}
				}
			}

			if chunk.Usage.PromptTokens > 0 {
				usage.InputTokens = int(chunk.Usage.PromptTokens)
			}
			if chunk.Usage.CompletionTokens > 0 {
				usage.OutputTokens = int(chunk.Usage.CompletionTokens)
			}
		}

		log.LogStreamDone(c.name, time.Since(streamStart), chunkCount)

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

func convertMessages(opts provider.CompletionOptions) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(opts.Messages)+1)
	if opts.SystemPrompt != "" {
		out = append(out, openai.SystemMessage(opts.SystemPrompt))
	}
	for _, msg := range opts.Messages {
		switch msg.Role {
		case message.RoleUser:
			if msg.ToolResult != nil {
				out = append(out, openai.ToolMessage(
					msg.ToolResult.Content,
					msg.ToolResult.ToolCallID,
				))
			} else {
				out = append(out, openai.UserMessage(msg.Content))
			}
		case message.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var asstMsg openai.ChatCompletionAssistantMessageParam
				if msg.Content != "" {
					asstMsg.Content.OfString = openai.Opt(msg.Content)
				}
				asstMsg.ToolCalls = make([]openai.ChatCompletionMessageToolCallUnionParam, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					asstMsg.ToolCalls[i] = openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Arguments,
							},
						},
					}
				}
				out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asstMsg})
			} else {
				out = append(out, openai.AssistantMessage(msg.Content))
			}
		}
	}
	return out
}

func convertTools(tools []provider.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.Parameters),
				},
			},
		})
	}
	return out
}

// ListModels fetches chat-capable models from the Models API.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]provider.ModelInfo, 0)
	for _, m := range page.Data {
		id := m.ID
		if strings.HasPrefix(id, "dall-e") ||
			strings.HasPrefix(id, "tts-") ||
			strings.HasPrefix(id, "whisper-") ||
			strings.HasPrefix(id, "text-embedding") ||
			strings.HasPrefix(id, "omni-moderation") ||
			strings.Contains(id, "-tts") ||
			strings.Contains(id, "-transcribe") ||
			strings.Contains(id, "-realtime") ||
			strings.HasSuffix(id, "-instruct") {
			continue
		}
		models = append(models, provider.ModelInfo{ID: id, DisplayName: id})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

var _ provider.LLMProvider = (*Client)(nil)

func init() {
	provider.Register(provider.Meta{
		Name:    provider.OpenAI,
		EnvVars: []string{"OPENAI_API_KEY"},
	}, func(ctx context.Context) (provider.LLMProvider, error) {
		return NewClient(openai.NewClient(), string(provider.OpenAI)), nil
	})
}
