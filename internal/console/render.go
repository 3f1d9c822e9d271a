package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/permission"
)

const minWrapWidth = 40

func newMarkdownRenderer(width int) *glamour.TermRenderer {
	wrapWidth := width - 4
	if wrapWidth < minWrapWidth {
		wrapWidth = minWrapWidth
	}

	var compactStyle ansi.StyleConfig
	if lipgloss.HasDarkBackground() {
		compactStyle = styles.DarkStyleConfig
	} else {
		compactStyle = styles.LightStyleConfig
	}

	uintPtr := func(u uint) *uint { return &u }
	compactStyle.Document.Margin = uintPtr(0)
	compactStyle.Paragraph.Margin = uintPtr(0)
	compactStyle.CodeBlock.Margin = uintPtr(0)

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithStyles(compactStyle),
		glamour.WithWordWrap(wrapWidth),
	)
	return renderer
}

// renderMarkdown renders assistant text, falling back to plain output when the
// terminal renderer is unavailable.
func (c *Console) renderMarkdown(text string) string {
	if c.md == nil {
		return text
	}
	out, err := c.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// toolLine is the one-line summary printed when a tool call resolves.
func toolLine(tc *message.ToolCallState) string {
	summary := tc.Result
	if idx := strings.IndexByte(summary, '\n'); idx >= 0 {
		summary = summary[:idx]
	}
	if len(summary) > 80 {
		summary = summary[:80] + "…"
	}

	line := fmt.Sprintf("⏺ %s", tc.Name)
	if tc.IsError {
		return toolErrStyle.Render(line) + mutedStyle.Render(" → "+summary)
	}
	if tc.Offload != nil {
		summary = fmt.Sprintf("offloaded %d chars", tc.Offload.Size)
	}
	return toolStyle.Render(line) + mutedStyle.Render(" → "+summary)
}

// renderPermissionRequest prints the full approval payload: the command
// signature for shell requests, the diff for file changes.
func renderPermissionRequest(req *permission.Request) string {
	var sb strings.Builder
	sb.WriteString(permissionStyle.Render(fmt.Sprintf("Permission required: %s (%s)", req.ToolName, req.Type)))
	sb.WriteByte('\n')

	if req.FilePath != "" {
		sb.WriteString(mutedStyle.Render("  " + req.FilePath))
		sb.WriteByte('\n')
	}
	if req.Command != nil {
		sb.WriteString("  $ " + req.Command.Command + "\n")
		if req.Command.Description != "" {
			sb.WriteString(mutedStyle.Render("  " + req.Command.Description))
			sb.WriteByte('\n')
		}
	}
	if req.Diff != nil {
		for _, line := range strings.Split(strings.TrimRight(req.Diff.Unified, "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				sb.WriteString("  " + diffAddStyle.Render(line) + "\n")
			case strings.HasPrefix(line, "-"):
				sb.WriteString("  " + diffDelStyle.Render(line) + "\n")
			default:
				sb.WriteString("  " + mutedStyle.Render(line) + "\n")
			}
		}
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("  +%d -%d", req.Diff.Added, req.Diff.Removed)))
		sb.WriteByte('\n')
	}
	return sb.String()
}
