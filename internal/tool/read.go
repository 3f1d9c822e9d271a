package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxReadLines  = 2000
	maxLineLength = 500
)

// ReadTool reads file contents.
type ReadTool struct{}

func (t *ReadTool) Name() string { return "Read" }

func (t *ReadTool) Definition() Definition {
	return Definition{
		Name:        "Read",
		Description: "Read file contents. Use this to read source code, configuration files, or any text file.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "The path to the file to read (absolute or relative to current directory)",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "Line number to start reading from (1-based). Default is 1.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of lines to read. Default is 2000.",
				},
			},
			"required": []string{"file_path"},
		},
	}
}

func (t *ReadTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	filePath, ok := params["file_path"].(string)
	if !ok || filePath == "" {
		return "", fmt.Errorf("file_path is required")
	}
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(cwd, filePath)
	}

	offset := intParam(params, "offset", 0)
	limit := intParam(params, "limit", maxReadLines)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", filePath)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Binary sniff on the first 512 bytes.
	header := make([]byte, 512)
	n, _ := file.Read(header)
	for _, b := range header[:n] {
		if b == 0 {
			return "Binary file detected: " + filePath, nil
		}
	}
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("failed to rewind file: %w", err)
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	readCount := 0
	truncated := false

	for scanner.Scan() {
		lineNo++
		if offset > 0 && lineNo < offset {
			continue
		}
		if readCount >= limit {
			truncated = true
			break
		}
		text := scanner.Text()
		if len(text) > maxLineLength {
			text = text[:maxLineLength] + "..."
		}
		fmt.Fprintf(&sb, "%6d\t%s\n", lineNo, text)
		readCount++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}

	if truncated {
		sb.WriteString("... (output truncated)\n")
	}
	return sb.String(), nil
}

// intParam reads an integer parameter, tolerating JSON float64 decoding.
func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}

func init() {
	Register(&ReadTool{})
}
