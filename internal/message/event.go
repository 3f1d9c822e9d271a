package message

// EventType discriminates the low-level model stream event union. The stream
// consumer switches over these exhaustively; providers emit nothing else.
type EventType string

const (
	EventText          EventType = "text"
	EventReasoning     EventType = "reasoning"
	EventToolCallStart EventType = "tool_call_start"
	EventToolCallDelta EventType = "tool_call_delta"
	EventToolCallEnd   EventType = "tool_call_end"
	EventUsage         EventType = "usage"
	EventStop          EventType = "stop"
	EventError         EventType = "error"
)

// StreamEvent is one low-level event from a model stream.
type StreamEvent struct {
	Type EventType

	// Text carries text and reasoning deltas, and tool argument fragments
	// for tool_call_delta events.
	Text string

	// ToolID and ToolName identify the call for tool_call_* events.
	ToolID   string
	ToolName string

	// Usage is set for usage events.
	Usage *Usage

	// StopReason is set for stop events: "end_turn", "tool_use", "max_tokens".
	StopReason string

	// Err is set for error events.
	Err error
}

// TextEvent creates a text delta event.
func TextEvent(text string) StreamEvent {
	return StreamEvent{Type: EventText, Text: text}
}

// ReasoningEvent creates a reasoning delta event.
func ReasoningEvent(text string) StreamEvent {
	return StreamEvent{Type: EventReasoning, Text: text}
}

// ToolCallStartEvent creates a tool_call_start event.
func ToolCallStartEvent(id, name string) StreamEvent {
	return StreamEvent{Type: EventToolCallStart, ToolID: id, ToolName: name}
}

// ToolCallDeltaEvent creates a tool_call_delta event carrying an argument fragment.
func ToolCallDeltaEvent(id, fragment string) StreamEvent {
	return StreamEvent{Type: EventToolCallDelta, ToolID: id, Text: fragment}
}

// ToolCallEndEvent creates a tool_call_end event.
func ToolCallEndEvent(id string) StreamEvent {
	return StreamEvent{Type: EventToolCallEnd, ToolID: id}
}

// UsageEvent creates a usage event.
func UsageEvent(u Usage) StreamEvent {
	return StreamEvent{Type: EventUsage, Usage: &u}
}

// StopEvent creates a stop event.
func StopEvent(reason string) StreamEvent {
	return StreamEvent{Type: EventStop, StopReason: reason}
}

// ErrorEvent creates an error event.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}
