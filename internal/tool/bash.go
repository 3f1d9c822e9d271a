package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rfenwick/aide/internal/permission"
)

const (
	defaultBashTimeout = 120 * time.Second
	maxBashTimeout     = 600 * time.Second
	maxBashOutput      = 30000
)

// BashTool executes shell commands.
type BashTool struct{}

func (t *BashTool) Name() string { return "Bash" }

func (t *BashTool) Definition() Definition {
	return Definition{
		Name:        "Bash",
		Description: "Execute shell commands. Use for running git commands, build tools, package managers, or any system operations. Commands run in bash with the current working directory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The shell command to execute",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Brief description of what this command does (shown in permission prompt)",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Timeout in milliseconds (default: 120000, max: 600000)",
				},
			},
			"required": []string{"command"},
		},
	}
}

// PreparePermission builds a command-class permission request with the full
// command signature.
func (t *BashTool) PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.Request, error) {
	command, ok := params["command"].(string)
	if !ok || command == "" {
		return nil, fmt.Errorf("command is required")
	}
	description, _ := params["description"].(string)

	return &permission.Request{
		ToolName:    t.Name(),
		Type:        permission.TypeCommand,
		Description: description,
		Command: &permission.CommandMeta{
			Command:     command,
			Description: description,
		},
	}, nil
}

func (t *BashTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	command, ok := params["command"].(string)
	if !ok || command == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := defaultBashTimeout
	if timeoutMs, ok := params["timeout"].(float64); ok && timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	fullOutput := stdout.String()
	if errOutput := stderr.String(); errOutput != "" {
		if fullOutput != "" {
			fullOutput += "\n"
		}
		fullOutput += errOutput
	}
	if len(fullOutput) > maxBashOutput {
		fullOutput = fullOutput[:maxBashOutput] + "\n... (output truncated)"
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after %s\n%s", timeout, fullOutput)
		}
		return "", fmt.Errorf("command failed: %v\n%s", err, fullOutput)
	}

	if strings.TrimSpace(fullOutput) == "" {
		return "(no output)", nil
	}
	return fullOutput, nil
}

func init() {
	Register(&BashTool{})
}
