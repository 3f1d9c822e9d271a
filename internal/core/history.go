package core

import (
	"strings"

	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/store"
)

// BuildModelMessages converts persisted records into the model context. It
// reads only durable state, which is why every code path that finishes a tool
// batch forces a synchronous write first: a stale read here makes the model
// repeat tool calls it has already made.
func BuildModelMessages(records []store.Record) []message.Message {
	var msgs []message.Message
	for _, rec := range records {
		switch rec.Role {
		case message.RoleUser:
			if rec.Content != "" {
				msgs = append(msgs, message.UserMessage(rec.Content))
			}
		case message.RoleAssistant:
			msgs = append(msgs, assistantMessages(rec.Blocks)...)
		}
	}
	return msgs
}

// assistantMessages flattens one assistant record into the assistant message
// followed by one tool result message per resolved tool call.
func assistantMessages(blocks []message.Block) []message.Message {
	var (
		content   []string
		reasoning []string
		calls     []message.ToolCall
		results   []message.ToolResult
	)

	for i := range blocks {
		b := &blocks[i]
		switch b.Type {
		case message.BlockContent:
			if b.Text != "" {
				content = append(content, b.Text)
			}
		case message.BlockReasoning:
			if b.Text != "" {
				reasoning = append(reasoning, b.Text)
			}
		case message.BlockToolCall:
			if b.ToolCall == nil {
				continue
			}
			calls = append(calls, b.Call())
			result := message.ToolResult{
				ToolCallID: b.ToolCall.ID,
				ToolName:   b.ToolCall.Name,
				Content:    b.ToolCall.Result,
				IsError:    b.ToolCall.IsError,
			}
			if result.Content == "" {
				// A call that never produced a result (interrupted turn) still
				// needs a result message to keep the protocol valid.
				result.Content = "Tool call was not executed."
				result.IsError = true
			}
			results = append(results, result)
		}
	}

	if len(content) == 0 && len(calls) == 0 {
		return nil
	}

	msgs := []message.Message{message.AssistantMessage(
		strings.Join(content, "\n\n"),
		strings.Join(reasoning, "\n\n"),
		calls,
	)}
	for _, r := range results {
		msgs = append(msgs, message.ToolResultMessage(r))
	}
	return msgs
}
