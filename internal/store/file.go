package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rfenwick/aide/internal/message"
)

// FileConversations persists conversations as one JSON file each under a base
// directory, ~/.aide/conversations by default.
type FileConversations struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileConversations creates a file-backed conversation store.
func NewFileConversations(baseDir string) (*FileConversations, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".aide", "conversations")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}
	return &FileConversations{baseDir: baseDir}, nil
}

// conversationFile is the on-disk layout.
type conversationFile struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
	Records   []Record  `json:"records"`
}

// AppendUser appends a user message and returns its message ID.
func (s *FileConversations) AppendUser(conversationID, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(conversationID)
	if err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	conv.Records = append(conv.Records, Record{
		MessageID: messageID,
		Role:      message.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	})
	if err := s.save(conversationID, conv); err != nil {
		return "", err
	}
	return messageID, nil
}

// WriteMessageContent upserts the block content of an assistant message.
func (s *FileConversations) WriteMessageContent(conversationID, messageID string, blocks []message.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(conversationID)
	if err != nil {
		return err
	}

	updated := false
	for i := range conv.Records {
		if conv.Records[i].MessageID == messageID {
			conv.Records[i].Blocks = blocks
			updated = true
			break
		}
	}
	if !updated {
		conv.Records = append(conv.Records, Record{
			MessageID: messageID,
			Role:      message.RoleAssistant,
			Blocks:    blocks,
			CreatedAt: time.Now(),
		})
	}
	return s.save(conversationID, conv)
}

// ReadHistory returns all records of a conversation in order.
func (s *FileConversations) ReadHistory(conversationID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(conversationID)
	if err != nil {
		return nil, err
	}
	return append([]Record(nil), conv.Records...), nil
}

func (s *FileConversations) path(conversationID string) string {
	return filepath.Join(s.baseDir, conversationID+".json")
}

func (s *FileConversations) load(conversationID string) (*conversationFile, error) {
	data, err := os.ReadFile(s.path(conversationID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &conversationFile{ID: conversationID}, nil
		}
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}
	var conv conversationFile
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	return &conv, nil
}

func (s *FileConversations) save(conversationID string, conv *conversationFile) error {
	conv.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := os.WriteFile(s.path(conversationID), data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation: %w", err)
	}
	return nil
}
