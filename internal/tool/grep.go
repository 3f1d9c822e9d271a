package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxGrepMatches = 200

// GrepTool searches file contents with regular expressions.
type GrepTool struct{}

func (t *GrepTool) Name() string { return "Grep" }

func (t *GrepTool) Definition() Definition {
	return Definition{
		Name:        "Grep",
		Description: "Search for patterns in files using regular expressions. Returns matching lines with file paths and line numbers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Regular expression pattern to search for",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "File or directory to search in. Default is current directory.",
				},
				"include": map[string]any{
					"type":        "string",
					"description": "File pattern to include (e.g., '*.go', '*.py')",
				},
			},
			"required": []string{"pattern"},
		},
	}
}

func (t *GrepTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	pattern, ok := params["pattern"].(string)
	if !ok || pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	basePath := cwd
	if path, ok := params["path"].(string); ok && path != "" {
		if filepath.IsAbs(path) {
			basePath = path
		} else {
			basePath = filepath.Join(cwd, path)
		}
	}
	include, _ := params["include"].(string)

	var sb strings.Builder
	matches := 0
	truncated := false

	walkErr := filepath.WalkDir(basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			matched, _ := filepath.Match(include, filepath.Base(path))
			if !matched {
				return nil
			}
		}
		if matches >= maxGrepMatches {
			truncated = true
			return filepath.SkipAll
		}
		return t.grepFile(path, basePath, re, &sb, &matches)
	})
	if walkErr != nil && walkErr != context.Canceled {
		return "", fmt.Errorf("grep error: %w", walkErr)
	}

	if matches == 0 {
		return "No matches found.", nil
	}
	if truncated {
		sb.WriteString("... (matches truncated)\n")
	}
	return sb.String(), nil
}

func (t *GrepTool) grepFile(path, basePath string, re *regexp.Regexp, sb *strings.Builder, matches *int) error {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	relPath, err := filepath.Rel(basePath, path)
	if err != nil {
		relPath = path
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) > maxLineLength {
			// Skip pathological lines; likely minified or binary-ish.
			continue
		}
		if re.MatchString(line) {
			fmt.Fprintf(sb, "%s:%d:%s\n", relPath, lineNo, line)
			*matches++
			if *matches >= maxGrepMatches {
				return nil
			}
		}
	}
	return nil
}

func init() {
	Register(&GrepTool{})
}
