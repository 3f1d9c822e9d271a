package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rfenwick/aide/internal/message"
)

// MemoryConversations is an in-memory Conversations implementation, used by
// tests and ephemeral sessions.
type MemoryConversations struct {
	mu      sync.Mutex
	records map[string][]Record
}

// NewMemoryConversations creates an empty in-memory store.
func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{records: make(map[string][]Record)}
}

// AppendUser appends a user message and returns its message ID.
func (s *MemoryConversations) AppendUser(conversationID, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messageID := uuid.NewString()
	s.records[conversationID] = append(s.records[conversationID], Record{
		MessageID: messageID,
		Role:      message.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	})
	return messageID, nil
}

// WriteMessageContent upserts the block content of an assistant message.
func (s *MemoryConversations) WriteMessageContent(conversationID, messageID string, blocks []message.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := append([]message.Block(nil), blocks...)
	records := s.records[conversationID]
	for i := range records {
		if records[i].MessageID == messageID {
			records[i].Blocks = copied
			return nil
		}
	}
	s.records[conversationID] = append(records, Record{
		MessageID: messageID,
		Role:      message.RoleAssistant,
		Blocks:    copied,
		CreatedAt: time.Now(),
	})
	return nil
}

// ReadHistory returns all records of a conversation in order.
func (s *MemoryConversations) ReadHistory(conversationID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records[conversationID]
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}
