package message

import "time"

// BlockType discriminates the assistant message block union.
type BlockType string

const (
	BlockContent           BlockType = "content"
	BlockReasoning         BlockType = "reasoning"
	BlockToolCall          BlockType = "tool_call"
	BlockPermissionRequest BlockType = "permission_request"
	BlockError             BlockType = "error"
)

// BlockStatus is the lifecycle state of a block within a turn.
type BlockStatus string

const (
	StatusPending BlockStatus = "pending"
	StatusSuccess BlockStatus = "success"
	StatusError   BlockStatus = "error"
)

// Block is one typed segment of an assistant message. Blocks are append-only
// within a turn except for the in-place mutation of the block matching a
// resolved tool call.
type Block struct {
	Type      BlockType   `json:"type"`
	Status    BlockStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`

	// Text carries content, reasoning, and error payloads.
	Text string `json:"text,omitempty"`

	// ToolCall is set for tool_call blocks.
	ToolCall *ToolCallState `json:"tool_call,omitempty"`

	// Permission is set for permission_request blocks.
	Permission *PermissionState `json:"permission,omitempty"`
}

// ToolCallState tracks a tool call block through execution.
type ToolCallState struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	ServerName string `json:"server_name,omitempty"`

	// Result is the model-visible result text. When the raw output was
	// offloaded this is the stub, never the full payload.
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// Offload is set when the raw output exceeded the inline threshold.
	Offload *OffloadStub `json:"offload,omitempty"`
}

// PermissionState records a permission request surfaced in the message.
type PermissionState struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Type       string `json:"permission_type"`
	Granted    *bool  `json:"granted,omitempty"`
}

// OffloadStub points at an offloaded tool output.
type OffloadStub struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

// NewBlock creates a pending block of the given type.
func NewBlock(t BlockType) Block {
	return Block{Type: t, Status: StatusPending, Timestamp: time.Now()}
}

// NewToolCallBlock creates a pending tool call block.
func NewToolCallBlock(tc ToolCall) Block {
	b := NewBlock(BlockToolCall)
	b.ToolCall = &ToolCallState{
		ID:         tc.ID,
		Name:       tc.Name,
		Arguments:  tc.Arguments,
		ServerName: tc.ServerName,
	}
	return b
}

// Call returns the ToolCall described by a tool_call block.
func (b *Block) Call() ToolCall {
	if b.ToolCall == nil {
		return ToolCall{}
	}
	return ToolCall{
		ID:         b.ToolCall.ID,
		Name:       b.ToolCall.Name,
		Arguments:  b.ToolCall.Arguments,
		ServerName: b.ToolCall.ServerName,
	}
}

// FinalizePending marks every pending block in blocks with the given status.
func FinalizePending(blocks []Block, status BlockStatus) {
	for i := range blocks {
		if blocks[i].Status == StatusPending {
			blocks[i].Status = status
		}
	}
}

// FindToolCallBlock returns the index of the tool_call block with the given
// call ID, or -1.
func FindToolCallBlock(blocks []Block, toolCallID string) int {
	for i := range blocks {
		if blocks[i].Type == BlockToolCall && blocks[i].ToolCall != nil &&
			blocks[i].ToolCall.ID == toolCallID {
			return i
		}
	}
	return -1
}
