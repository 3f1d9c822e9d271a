// Package core implements the agent execution pipeline: the stream consumer
// that assembles model output into message blocks, the tool call processor
// with its all-or-nothing permission pause, the permission gate that resumes
// paused batches exactly once, and the execution loop that drives them.
package core

import (
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/permission"
	"github.com/rfenwick/aide/internal/tool"
)

// ProcEventType discriminates the processor event union.
type ProcEventType string

const (
	ProcToolStart          ProcEventType = "tool_start"
	ProcToolEnd            ProcEventType = "tool_end"
	ProcToolError          ProcEventType = "tool_error"
	ProcPermissionRequired ProcEventType = "permission_required"
	ProcQuestionRequired   ProcEventType = "question_required"
	ProcCapped             ProcEventType = "capped"
)

// ProcEvent is one event emitted by the tool call processor. The engine
// applies these to the in-flight message blocks.
type ProcEvent struct {
	Type ProcEventType

	// Call identifies the tool call this event belongs to. Unset for capped.
	Call message.ToolCall

	// Result is the model-visible result text for tool_end and tool_error.
	// When the raw output was offloaded this is the stub.
	Result string

	// Raw is the untruncated output, threaded for listeners that need it.
	Raw string

	// IsError marks synthesized and failed results.
	IsError bool

	// Offload is set when the raw output was moved to the offload store.
	Offload *message.OffloadStub

	// Request is set for permission_required events, never truncated.
	Request *permission.Request

	// Questions is set for question_required events.
	Questions []tool.Question
}

// EventType discriminates the renderer-facing event union.
type EventType string

const (
	EventResponse           EventType = "response"
	EventEnd                EventType = "end"
	EventError              EventType = "error"
	EventPermissionRequired EventType = "permission_required"
	EventPermissionUpdate   EventType = "permission_update"
	EventQuestionRequired   EventType = "question_required"
)

// Event is one renderer-facing pipeline event, scoped to a message.
type Event struct {
	Type           EventType
	ConversationID string
	MessageID      string

	// Blocks is a snapshot of the in-flight assistant message.
	Blocks []message.Block

	// Usage and StopReason are set on end events.
	Usage      message.Usage
	StopReason string

	// Err is set on error events.
	Err error

	// ToolCallID and Request are set on permission events.
	ToolCallID string
	Request    *permission.Request

	// Granted is set on permission_update events.
	Granted bool

	// Questions is set on question_required events.
	Questions []tool.Question
}
