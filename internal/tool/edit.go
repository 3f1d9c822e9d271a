package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rfenwick/aide/internal/permission"
)

// EditTool performs string replacement edits on files.
type EditTool struct{}

func (t *EditTool) Name() string { return "Edit" }

func (t *EditTool) Definition() Definition {
	return Definition{
		Name:        "Edit",
		Description: "Edit file contents using string replacement. The old_string must be unique in the file unless replace_all is true.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "The path to the file to edit (absolute or relative to current directory)",
				},
				"old_string": map[string]any{
					"type":        "string",
					"description": "The text to replace. Must be unique in the file unless replace_all is true.",
				},
				"new_string": map[string]any{
					"type":        "string",
					"description": "The replacement text. Can be empty to delete old_string.",
				},
				"replace_all": map[string]any{
					"type":        "boolean",
					"description": "If true, replace all occurrences. Default is false.",
				},
			},
			"required": []string{"file_path", "old_string", "new_string"},
		},
	}
}

// PreparePermission builds a write-class permission request with a diff of the
// proposed change.
func (t *EditTool) PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.Request, error) {
	filePath, oldContent, newContent, err := t.plan(params, cwd)
	if err != nil {
		return nil, err
	}
	return &permission.Request{
		ToolName:    t.Name(),
		Type:        permission.TypeWrite,
		Description: "Replace text in file",
		FilePath:    filePath,
		Diff:        buildDiffMeta(filePath, oldContent, newContent),
	}, nil
}

func (t *EditTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	filePath, _, newContent, err := t.plan(params, cwd)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filePath, []byte(newContent), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("Edited %s", filePath), nil
}

// plan validates the edit parameters and computes the resulting content.
func (t *EditTool) plan(params map[string]any, cwd string) (filePath, oldContent, newContent string, err error) {
	filePath, ok := params["file_path"].(string)
	if !ok || filePath == "" {
		return "", "", "", fmt.Errorf("file_path is required")
	}
	oldString, ok := params["old_string"].(string)
	if !ok {
		return "", "", "", fmt.Errorf("old_string is required")
	}
	newString, ok := params["new_string"].(string)
	if !ok {
		return "", "", "", fmt.Errorf("new_string is required")
	}
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(cwd, filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", "", fmt.Errorf("file not found: %s", filePath)
		}
		return "", "", "", fmt.Errorf("failed to read file: %w", err)
	}
	oldContent = string(content)

	count := strings.Count(oldContent, oldString)
	if count == 0 {
		return "", "", "", fmt.Errorf("old_string not found in file")
	}
	replaceAll, _ := params["replace_all"].(bool)
	if !replaceAll && count > 1 {
		return "", "", "", fmt.Errorf("old_string is not unique in file (found %d occurrences); use replace_all=true to replace all", count)
	}

	if replaceAll {
		newContent = strings.ReplaceAll(oldContent, oldString, newString)
	} else {
		newContent = strings.Replace(oldContent, oldString, newString, 1)
	}
	return filePath, oldContent, newContent, nil
}

func init() {
	Register(&EditTool{})
}
