// Package console is the terminal frontend: a line-oriented REPL that drives
// the engine and renders its event stream.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/rfenwick/aide/internal/core"
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/tool"
)

const renderWidth = 100

// Console runs conversations against the engine from a terminal.
type Console struct {
	engine *core.Engine
	convID string
	in     *bufio.Reader
	out    io.Writer
	md     *glamour.TermRenderer

	// reported tracks tool call IDs whose result line was already printed.
	reported map[string]bool
}

// New creates a console bound to one conversation.
func New(engine *core.Engine, conversationID string) *Console {
	return &Console{
		engine:   engine,
		convID:   conversationID,
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		md:       newMarkdownRenderer(renderWidth),
		reported: make(map[string]bool),
	}
}

// Run starts the interactive REPL.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, mutedStyle.Render("aide - type a message, /exit to quit"))
	for {
		fmt.Fprint(c.out, promptStyle.Render("❯ "))
		line, err := c.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/stop":
			c.engine.Stop(c.convID)
			continue
		}
		if err := c.RunOnce(ctx, line); err != nil {
			fmt.Fprintln(c.out, errorStyle.Render("Error: "+err.Error()))
		}
	}
}

// RunOnce sends one prompt and blocks until the turn ends, answering
// permission and question pauses along the way.
func (c *Console) RunOnce(ctx context.Context, prompt string) error {
	if err := c.engine.Prompt(c.convID, prompt); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			c.engine.Stop(c.convID)
			return ctx.Err()

		case ev := <-c.engine.Events():
			if ev.ConversationID != c.convID {
				continue
			}
			done, err := c.handleEvent(ev)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func (c *Console) handleEvent(ev core.Event) (done bool, err error) {
	switch ev.Type {
	case core.EventResponse:
		c.printResolvedTools(ev.Blocks)

	case core.EventPermissionRequired:
		fmt.Fprint(c.out, renderPermissionRequest(ev.Request))
		granted, remember := c.askDecision()
		if err := c.engine.HandlePermissionResponse(c.convID, ev.MessageID, ev.ToolCallID, granted, remember); err != nil {
			return false, err
		}

	case core.EventQuestionRequired:
		answers := c.askQuestions(ev.Questions)
		if err := c.engine.HandleQuestionResponse(c.convID, ev.MessageID, answers); err != nil {
			return false, err
		}

	case core.EventEnd:
		c.printResolvedTools(ev.Blocks)
		if text := contentText(ev.Blocks); text != "" {
			fmt.Fprint(c.out, c.renderMarkdown(text))
		}
		if ev.Usage.Total() > 0 {
			fmt.Fprintln(c.out, mutedStyle.Render(fmt.Sprintf("(%d in / %d out tokens)",
				ev.Usage.InputTokens, ev.Usage.OutputTokens)))
		}
		return true, nil

	case core.EventError:
		fmt.Fprintln(c.out, errorStyle.Render("Error: "+ev.Err.Error()))
		return true, nil
	}
	return false, nil
}

func (c *Console) printResolvedTools(blocks []message.Block) {
	for i := range blocks {
		b := &blocks[i]
		if b.Type != message.BlockToolCall || b.ToolCall == nil {
			continue
		}
		if b.Status == message.StatusPending || c.reported[b.ToolCall.ID] {
			continue
		}
		if b.ToolCall.Result == "" && !b.ToolCall.IsError {
			continue
		}
		c.reported[b.ToolCall.ID] = true
		fmt.Fprintln(c.out, toolLine(b.ToolCall))
	}
}

// askDecision reads a permission decision: yes, no, or always (grant and
// remember for this session).
func (c *Console) askDecision() (granted, remember bool) {
	for {
		fmt.Fprint(c.out, permissionStyle.Render("Allow? [y]es / [n]o / [a]lways: "))
		line, err := c.in.ReadString('\n')
		if err != nil {
			return false, false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, false
		case "a", "always":
			return true, true
		case "n", "no":
			return false, false
		}
	}
}

// askQuestions prompts for each question and returns selected labels by
// question index.
func (c *Console) askQuestions(questions []tool.Question) map[int][]string {
	answers := make(map[int][]string)
	for i, q := range questions {
		fmt.Fprintln(c.out, permissionStyle.Render(q.Question))
		for j, opt := range q.Options {
			fmt.Fprintf(c.out, "  %d. %s", j+1, opt.Label)
			if opt.Description != "" {
				fmt.Fprint(c.out, mutedStyle.Render(" - "+opt.Description))
			}
			fmt.Fprintln(c.out)
		}
		hint := "choice"
		if q.MultiSelect {
			hint = "choices, comma-separated"
		}
		fmt.Fprintf(c.out, "%s ", mutedStyle.Render("("+hint+"):"))

		line, err := c.in.ReadString('\n')
		if err != nil {
			return answers
		}
		for _, part := range strings.Split(strings.TrimSpace(line), ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(q.Options) {
				continue
			}
			answers[i] = append(answers[i], q.Options[n-1].Label)
			if !q.MultiSelect {
				break
			}
		}
	}
	return answers
}

func contentText(blocks []message.Block) string {
	var parts []string
	for i := range blocks {
		if blocks[i].Type == message.BlockContent && blocks[i].Text != "" {
			parts = append(parts, blocks[i].Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
