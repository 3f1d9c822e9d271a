package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileOffload stores oversized tool outputs as files under a base directory,
// one file per (conversationID, toolCallID) key. Keys are write-once.
type FileOffload struct {
	baseDir string
}

// NewFileOffload creates a file-backed offload store, ~/.aide/offload by default.
func NewFileOffload(baseDir string) (*FileOffload, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".aide", "offload")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create offload directory: %w", err)
	}
	return &FileOffload{baseDir: baseDir}, nil
}

// Write stores data under the key and returns the file path as the reference.
// A second write to the same key fails with ErrExists.
func (o *FileOffload) Write(conversationID, toolCallID string, data []byte) (string, error) {
	dir := filepath.Join(o.baseDir, conversationID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create offload directory: %w", err)
	}

	path := filepath.Join(dir, toolCallID+".out")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
		return "", fmt.Errorf("failed to create offload file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to write offload file: %w", err)
	}
	return path, nil
}

// Read returns the bytes behind a path reference.
func (o *FileOffload) Read(pathRef string) ([]byte, error) {
	data, err := os.ReadFile(pathRef)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, pathRef)
		}
		return nil, fmt.Errorf("failed to read offload file: %w", err)
	}
	return data, nil
}
