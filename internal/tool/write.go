package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rfenwick/aide/internal/permission"
)

// WriteTool writes full file contents.
type WriteTool struct{}

func (t *WriteTool) Name() string { return "Write" }

func (t *WriteTool) Definition() Definition {
	return Definition{
		Name:        "Write",
		Description: "Write content to a file. Creates parent directories if needed. Overwrites existing file if present.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "The path to the file to write (absolute or relative to current directory)",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The content to write to the file",
				},
			},
			"required": []string{"file_path", "content"},
		},
	}
}

// PreparePermission builds a write-class permission request. For existing
// files the payload carries a diff against the current content.
func (t *WriteTool) PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.Request, error) {
	filePath, content, err := t.args(params, cwd)
	if err != nil {
		return nil, err
	}

	oldContent := ""
	if data, err := os.ReadFile(filePath); err == nil {
		oldContent = string(data)
	}

	return &permission.Request{
		ToolName:    t.Name(),
		Type:        permission.TypeWrite,
		Description: "Write file",
		FilePath:    filePath,
		Diff:        buildDiffMeta(filePath, oldContent, content),
	}, nil
}

func (t *WriteTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	filePath, content, err := t.args(params, cwd)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), filePath), nil
}

func (t *WriteTool) args(params map[string]any, cwd string) (string, string, error) {
	filePath, ok := params["file_path"].(string)
	if !ok || filePath == "" {
		return "", "", fmt.Errorf("file_path is required")
	}
	content, ok := params["content"].(string)
	if !ok {
		return "", "", fmt.Errorf("content is required")
	}
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(cwd, filePath)
	}
	return filePath, content, nil
}

func init() {
	Register(&WriteTool{})
}
