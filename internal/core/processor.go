package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/log"
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/session"
	"github.com/rfenwick/aide/internal/store"
	"github.com/rfenwick/aide/internal/tool"
)

// DeniedResult is the synthesized tool result for a denied call. It is a
// normal error result, not an exception.
const DeniedResult = "User denied the request."

// Batch is one model turn's tool calls plus conversation context.
type Batch struct {
	ConversationID string
	MessageID      string
	Cwd            string
	Calls          []message.ToolCall
}

// Processor resolves, permission-checks, and executes tool call batches.
// A batch either executes completely (serially, in original order) or pauses
// completely: when any call needs permission, no call in the batch runs.
type Processor struct {
	catalog  tool.Catalog
	offload  store.Offload
	sessions *session.Store
	settings *config.Settings
}

// NewProcessor creates a processor.
func NewProcessor(catalog tool.Catalog, offload store.Offload, sessions *session.Store, settings *config.Settings) *Processor {
	return &Processor{
		catalog:  catalog,
		offload:  offload,
		sessions: sessions,
		settings: settings,
	}
}

// callPlan is the per-call outcome of the resolve and pre-check phases.
type callPlan struct {
	call   message.ToolCall
	tool   tool.Tool
	params map[string]any

	// failure is a call-local resolution error; siblings still run.
	failure string

	// synthesize is a result to emit without invoking the tool.
	synthesize string

	// needsPermission is set when the pre-check requires a user decision.
	needsPermission bool
}

// Process runs one batch and emits events on the returned channel. decisions
// maps toolCallID to the user's grant for a resumed batch; it is nil on the
// first pass. Calls without a decision are pre-checked (again, on resume), so
// a call freshly discovered to need approval re-pauses the batch.
func (p *Processor) Process(ctx context.Context, batch Batch, perms *config.SessionPermissions,
	decisions map[string]bool) <-chan ProcEvent {

	ch := make(chan ProcEvent)
	go func() {
		defer close(ch)
		p.run(ctx, batch, perms, decisions, ch)
	}()
	return ch
}

func (p *Processor) run(ctx context.Context, batch Batch, perms *config.SessionPermissions,
	decisions map[string]bool, ch chan<- ProcEvent) {

	// Standalone question calls pause the loop instead of executing.
	if len(batch.Calls) == 1 && batch.Calls[0].Name == tool.QuestionToolName {
		p.emitQuestion(batch.Calls[0], ch)
		return
	}

	plans := make([]callPlan, len(batch.Calls))
	for i, call := range batch.Calls {
		plans[i] = p.resolve(call)
	}

	// Pre-check every undecided call before executing any of them, so a
	// partially-executed batch can never occur.
	paused := false
	for i := range plans {
		plan := &plans[i]
		if plan.failure != "" || plan.synthesize != "" {
			continue
		}
		if _, decided := decisions[plan.call.ID]; decided {
			continue
		}
		verdict, err := p.catalog.PreCheck(ctx, plan.call.Name, plan.params, batch.Cwd, p.settings, perms)
		if err != nil {
			plan.failure = fmt.Sprintf("permission pre-check failed: %v", err)
			continue
		}
		switch {
		case verdict.Denied:
			plan.synthesize = "Permission denied by settings."
		case verdict.Required:
			plan.needsPermission = true
			paused = true
			ch <- ProcEvent{
				Type:    ProcPermissionRequired,
				Call:    plan.call,
				Request: verdict.Request,
			}
		}
	}
	if paused {
		return
	}

	callCap := p.settings.Pipeline.ToolCallCap()
	for i := range plans {
		plan := &plans[i]

		select {
		case <-ctx.Done():
			return
		default:
		}

		count, err := p.sessions.IncrementToolCallCount(batch.ConversationID)
		if err == nil && count > callCap {
			ch <- ProcEvent{Type: ProcCapped}
			return
		}

		switch {
		case plan.failure != "":
			ch <- ProcEvent{Type: ProcToolError, Call: plan.call, Result: plan.failure, IsError: true}

		case plan.synthesize != "":
			ch <- ProcEvent{Type: ProcToolError, Call: plan.call, Result: plan.synthesize, IsError: true}

		case hasDecision(decisions, plan.call.ID) && !decisions[plan.call.ID]:
			ch <- ProcEvent{Type: ProcToolError, Call: plan.call, Result: DeniedResult, IsError: true}

		default:
			p.execute(ctx, batch, plan, ch)
		}
	}
}

// resolve looks up the tool and parses its arguments. Failures are call-local.
func (p *Processor) resolve(call message.ToolCall) callPlan {
	plan := callPlan{call: call}

	if call.Name == tool.QuestionToolName {
		// Reached only when the question tool shares a batch with other calls.
		plan.failure = fmt.Sprintf("%s must be the only tool call in a message; ask again without other tool calls", tool.QuestionToolName)
		return plan
	}

	t, ok := p.catalog.Resolve(call.Name)
	if !ok {
		plan.failure = fmt.Sprintf("unknown tool: %s", call.Name)
		return plan
	}
	params, err := message.ParseToolInput(call.Arguments)
	if err != nil {
		plan.failure = fmt.Sprintf("invalid tool arguments: %v", err)
		return plan
	}
	plan.tool = t
	plan.params = params
	return plan
}

func (p *Processor) execute(ctx context.Context, batch Batch, plan *callPlan, ch chan<- ProcEvent) {
	ch <- ProcEvent{Type: ProcToolStart, Call: plan.call}

	started := time.Now()
	raw, err := plan.tool.Execute(ctx, plan.params, batch.Cwd)
	log.LogTool(plan.call.Name, plan.call.ID, time.Since(started).Milliseconds(), err == nil)

	if err != nil {
		ch <- ProcEvent{Type: ProcToolError, Call: plan.call, Result: err.Error(), IsError: true}
		return
	}

	ev := ProcEvent{Type: ProcToolEnd, Call: plan.call, Result: raw, Raw: raw}
	limit := p.settings.Pipeline.OffloadLimit()
	if len(raw) > limit {
		path, werr := p.offload.Write(batch.ConversationID, plan.call.ID, []byte(raw))
		if werr != nil {
			log.LogError("offload", werr)
		} else {
			ev.Result = offloadStubText(len(raw), path)
			ev.Offload = &message.OffloadStub{Path: path, Size: len(raw)}
		}
	}
	ch <- ev
}

func (p *Processor) emitQuestion(call message.ToolCall, ch chan<- ProcEvent) {
	params, err := message.ParseToolInput(call.Arguments)
	if err != nil {
		ch <- ProcEvent{Type: ProcToolError, Call: call, Result: fmt.Sprintf("invalid tool arguments: %v", err), IsError: true}
		return
	}
	questions, err := tool.ParseQuestions(params)
	if err != nil {
		ch <- ProcEvent{Type: ProcToolError, Call: call, Result: err.Error(), IsError: true}
		return
	}
	ch <- ProcEvent{Type: ProcQuestionRequired, Call: call, Questions: questions}
}

func hasDecision(decisions map[string]bool, id string) bool {
	_, ok := decisions[id]
	return ok
}

// offloadStubText is the inline replacement for an oversized output.
func offloadStubText(size int, path string) string {
	return fmt.Sprintf("[Output too large: %s chars. Full content stored at %s]",
		groupDigits(size), path)
}

// groupDigits formats n with thousands separators.
func groupDigits(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
