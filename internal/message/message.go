// Package message defines the canonical message, block, and stream event types
// used across the codebase. All packages import from here to avoid circular
// dependencies.
package message

import (
	"encoding/json"
	"strings"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message exchanged with the model provider.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	Reasoning  string      `json:"reasoning,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall represents a tool call emitted by the model.
type ToolCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	ServerName string `json:"server_name,omitempty"`
}

// ToolResult represents the result of a tool execution as the model sees it.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// UserMessage creates a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text, reasoning string, calls []ToolCall) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   text,
		Reasoning: reasoning,
		ToolCalls: calls,
	}
}

// ToolResultMessage creates a tool result message. Providers encode these as
// user-role messages carrying a tool result block.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: RoleUser, ToolResult: &result}
}

// ErrorResult creates an error ToolResult for a tool call.
func ErrorResult(tc ToolCall, content string) ToolResult {
	return ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    content,
		IsError:    true,
	}
}

// ParseToolInput deserializes JSON tool arguments into a params map.
func ParseToolInput(arguments string) (map[string]any, error) {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(arguments), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// Usage contains token usage information for one model turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage report.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
