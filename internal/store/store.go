// Package store provides the durable side of a conversation: the message
// history the next model context is built from, and the offload store for
// oversized tool outputs.
package store

import (
	"errors"
	"time"

	"github.com/rfenwick/aide/internal/message"
)

var (
	// ErrNotFound is returned when a conversation or offload entry is absent.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned on a second write to the same offload key.
	ErrExists = errors.New("already exists")
)

// Record is one persisted message of a conversation. User messages carry
// Content; assistant messages carry Blocks.
type Record struct {
	MessageID string          `json:"message_id"`
	Role      message.Role    `json:"role"`
	Content   string          `json:"content,omitempty"`
	Blocks    []message.Block `json:"blocks,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Conversations is the persistence interface the pipeline writes through.
// ReadHistory must observe every completed WriteMessageContent call: the
// engine forces a synchronous write before rebuilding model context.
type Conversations interface {
	// AppendUser appends a user message and returns its message ID.
	AppendUser(conversationID, text string) (string, error)

	// WriteMessageContent upserts the block content of an assistant message.
	WriteMessageContent(conversationID, messageID string, blocks []message.Block) error

	// ReadHistory returns all records of a conversation in order.
	ReadHistory(conversationID string) ([]Record, error)
}

// Offload stores oversized tool outputs outside the conversation. Keys are
// write-once per (conversationID, toolCallID).
type Offload interface {
	// Write stores data and returns a path reference for the inline stub.
	Write(conversationID, toolCallID string, data []byte) (string, error)

	// Read returns the bytes behind a path reference.
	Read(pathRef string) ([]byte, error)
}
