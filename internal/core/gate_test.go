package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/session"
)

// Scenario: batch of two calls where only the first needs permission. Nothing
// may execute before the decision; after a denial the denied call carries a
// synthesized error, the sibling a real result, and the continuation fires
// exactly once.
func TestGateDeniedCallSynthesizedSiblingExecuted(t *testing.T) {
	recorder := &callRecorder{}
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(
				message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")},
				message.ToolCall{ID: "r1", Name: "Read", Arguments: callArgs("r1")},
			),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder}},
		&scriptedTool{name: "Read", recorder: recorder},
	)

	if err := env.engine.Prompt(testConv, "change the file"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}

	ev := env.waitEvent(t, EventPermissionRequired)
	if ev.ToolCallID != "w1" {
		t.Fatalf("permission requested for %s, want w1", ev.ToolCallID)
	}
	if calls := recorder.list(); len(calls) != 0 {
		t.Fatalf("calls executed before decision: %v", calls)
	}
	env.waitStatus(t, session.StatusWaitingPermission)

	if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", false, false); err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}
	env.waitEvent(t, EventEnd)

	rec := env.assistantRecord(t, ev.MessageID)
	w1 := rec.Blocks[message.FindToolCallBlock(rec.Blocks, "w1")]
	r1 := rec.Blocks[message.FindToolCallBlock(rec.Blocks, "r1")]
	if !w1.ToolCall.IsError || w1.ToolCall.Result != DeniedResult {
		t.Errorf("w1 = %+v, want synthesized denial", w1.ToolCall)
	}
	if r1.ToolCall.IsError || r1.ToolCall.Result != "ok" {
		t.Errorf("r1 = %+v, want success", r1.ToolCall)
	}

	// Only the sibling ran, and the model was called exactly twice.
	if calls := recorder.list(); strings.Join(calls, ",") != "r1" {
		t.Errorf("executed calls = %v, want [r1]", calls)
	}
	if len(env.fake.Calls) != 2 {
		t.Errorf("model calls = %d, want 2", len(env.fake.Calls))
	}
}

// Duplicate responses resolving the same batch must trigger exactly one
// resume.
func TestGateIdempotentResume(t *testing.T) {
	recorder := &callRecorder{}
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")}),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder}},
	)

	if err := env.engine.Prompt(testConv, "go"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)

	for i := 0; i < 3; i++ {
		if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", true, false); err != nil {
			t.Fatalf("response %d error: %v", i, err)
		}
	}
	env.waitEvent(t, EventEnd)

	if calls := recorder.list(); len(calls) != 1 {
		t.Errorf("w1 executed %d times, want 1", len(calls))
	}
	if len(env.fake.Calls) != 2 {
		t.Errorf("model calls = %d, want 2 (one continuation)", len(env.fake.Calls))
	}
}

// Decisions may arrive in any order; resumed execution follows the original
// call order.
func TestGateResumeOrderMatchesCallOrder(t *testing.T) {
	recorder := &callRecorder{}
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(
				message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")},
				message.ToolCall{ID: "w2", Name: "Write", Arguments: callArgs("w2")},
				message.ToolCall{ID: "w3", Name: "Write", Arguments: callArgs("w3")},
			),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder}},
	)

	if err := env.engine.Prompt(testConv, "go"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)
	env.waitStatus(t, session.StatusWaitingPermission)

	// Respond in reverse order.
	for _, id := range []string{"w3", "w2", "w1"} {
		if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, id, true, false); err != nil {
			t.Fatalf("response for %s error: %v", id, err)
		}
	}
	env.waitEvent(t, EventEnd)

	if got := recorder.list(); strings.Join(got, ",") != "w1,w2,w3" {
		t.Errorf("execution order = %v, want [w1 w2 w3]", got)
	}
}

// After a resume, the continuation's model context must contain the finalized
// tool results: the history read happens strictly after the forced write.
func TestGateVisibilityBeforeContinuation(t *testing.T) {
	recorder := &callRecorder{}
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")}),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder}},
	)

	if err := env.engine.Prompt(testConv, "go"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)
	if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", true, false); err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}
	env.waitEvent(t, EventEnd)

	if len(env.fake.Calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(env.fake.Calls))
	}
	continuation := env.fake.Calls[1]

	var sawResult bool
	for _, msg := range continuation.Messages {
		if msg.ToolResult != nil && msg.ToolResult.ToolCallID == "w1" {
			sawResult = true
			if msg.ToolResult.Content != "ok" {
				t.Errorf("tool result content = %q, want finalized result", msg.ToolResult.Content)
			}
		}
	}
	if !sawResult {
		t.Error("continuation context is missing the resolved tool result")
	}
}

// A standalone question call pauses the loop; the answer becomes the tool
// result and generation continues.
func TestGateQuestionPauseAndAnswer(t *testing.T) {
	questionArgs := `{"questions":[{"question":"Which DB?","header":"DB","multiSelect":false,` +
		`"options":[{"label":"postgres","description":"pg"},{"label":"sqlite","description":"sq"}]}]}`

	env := newTestEnv(t, [][]message.StreamEvent{
		toolTurn(message.ToolCall{ID: "q1", Name: "AskUserQuestion", Arguments: questionArgs}),
		textTurn("using postgres"),
	})

	if err := env.engine.Prompt(testConv, "set up storage"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventQuestionRequired)
	if len(ev.Questions) != 1 {
		t.Fatalf("questions = %+v", ev.Questions)
	}
	env.waitStatus(t, session.StatusWaitingQuestion)

	answers := map[int][]string{0: {"postgres"}}
	if err := env.engine.HandleQuestionResponse(testConv, ev.MessageID, answers); err != nil {
		t.Fatalf("HandleQuestionResponse() error: %v", err)
	}
	env.waitEvent(t, EventEnd)

	rec := env.assistantRecord(t, ev.MessageID)
	idx := message.FindToolCallBlock(rec.Blocks, "q1")
	if idx < 0 {
		t.Fatal("question block not persisted")
	}
	if !strings.Contains(rec.Blocks[idx].ToolCall.Result, "postgres") {
		t.Errorf("question result = %q", rec.Blocks[idx].ToolCall.Result)
	}
	if len(env.fake.Calls) != 2 {
		t.Errorf("model calls = %d, want 2", len(env.fake.Calls))
	}
}

// A response for a batch that already concluded is ignored silently.
func TestGateStaleResponseIsNoOp(t *testing.T) {
	env := newTestEnv(t, [][]message.StreamEvent{textTurn("hi")})

	if err := env.engine.Prompt(testConv, "hello"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	env.waitEvent(t, EventEnd)

	if err := env.engine.HandlePermissionResponse(testConv, "msg-x", "call-x", true, false); err != nil {
		t.Errorf("stale response error = %v, want nil", err)
	}
	if len(env.fake.Calls) != 1 {
		t.Errorf("model calls = %d, want 1", len(env.fake.Calls))
	}
}

// A contradictory duplicate response arriving while the resume is executing
// must not touch the paused message's blocks: the call runs once and the
// persisted record keeps the first decision.
func TestGateDuplicateResponseDuringResume(t *testing.T) {
	recorder := &callRecorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")}),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder,
			fn: func(map[string]any) (string, error) {
				close(started)
				<-release
				return "ok", nil
			}}},
	)

	if err := env.engine.Prompt(testConv, "go"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)

	respErr := make(chan error, 1)
	go func() {
		respErr <- env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", true, false)
	}()
	<-started

	// The resume is mid-execution; fire a contradictory duplicate.
	if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", false, false); err != nil {
		t.Fatalf("duplicate response error: %v", err)
	}
	close(release)
	if err := <-respErr; err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}
	env.waitEvent(t, EventEnd)

	if calls := recorder.list(); len(calls) != 1 {
		t.Errorf("w1 executed %d times, want 1", len(calls))
	}
	rec := env.assistantRecord(t, ev.MessageID)
	w1 := rec.Blocks[message.FindToolCallBlock(rec.Blocks, "w1")]
	if w1.ToolCall.IsError || w1.ToolCall.Result != "ok" {
		t.Errorf("w1 = %+v, want executed result", w1.ToolCall)
	}
	var perm *message.PermissionState
	for i := range rec.Blocks {
		if rec.Blocks[i].Type == message.BlockPermissionRequest && rec.Blocks[i].Permission != nil {
			perm = rec.Blocks[i].Permission
		}
	}
	if perm == nil || perm.Granted == nil || !*perm.Granted {
		t.Errorf("permission block = %+v, want the original grant recorded", perm)
	}
}

// A call freshly discovered to need approval during a resume re-enters the
// waiting state without executing anything; the next full resolution resumes
// exactly once and runs the batch in original order.
func TestGateRepauseFreshPermissionResumesOnce(t *testing.T) {
	recorder := &callRecorder{}
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(
				message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")},
				message.ToolCall{ID: "d1", Name: "Deploy", Arguments: callArgs("d1")},
			),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder}},
		&scriptedTool{name: "Deploy", recorder: recorder},
	)
	env.settings.Permissions.Allow = []string{"Deploy"}

	if err := env.engine.Prompt(testConv, "ship it"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)
	if ev.ToolCallID != "w1" {
		t.Fatalf("permission requested for %s, want w1", ev.ToolCallID)
	}
	env.waitStatus(t, session.StatusWaitingPermission)

	// Narrow the rules before deciding; the resume re-checks the undecided
	// call and must pause again instead of executing.
	env.settings.Permissions.Allow = nil

	if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", true, false); err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}
	ev2 := env.waitEvent(t, EventPermissionRequired)
	if ev2.ToolCallID != "d1" {
		t.Fatalf("second permission requested for %s, want d1", ev2.ToolCallID)
	}
	if calls := recorder.list(); len(calls) != 0 {
		t.Fatalf("calls executed across the re-pause: %v", calls)
	}
	env.waitStatus(t, session.StatusWaitingPermission)

	if err := env.engine.HandlePermissionResponse(testConv, ev2.MessageID, "d1", true, false); err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}
	env.waitEvent(t, EventEnd)

	if got := recorder.list(); strings.Join(got, ",") != "w1,d1" {
		t.Errorf("execution order = %v, want [w1 d1]", got)
	}
	if len(env.fake.Calls) != 2 {
		t.Errorf("model calls = %d, want 2 (one continuation)", len(env.fake.Calls))
	}
}

// The forced write before a continuation is load-bearing: when it fails, the
// turn ends in the error state and the model is never asked again with a
// context that would repeat the tool calls.
func TestGatePersistFailureFatalToContinuation(t *testing.T) {
	recorder := &callRecorder{}
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")}),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder}},
	)

	if err := env.engine.Prompt(testConv, "go"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)

	env.conv.failWrites(errors.New("disk full"))
	if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", true, false); err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}
	errEv := env.waitEvent(t, EventError)
	if errEv.Err == nil || !strings.Contains(errEv.Err.Error(), "disk full") {
		t.Errorf("error event = %v, want the write failure", errEv.Err)
	}
	env.waitStatus(t, session.StatusError)

	if calls := recorder.list(); len(calls) != 1 {
		t.Errorf("w1 executed %d times, want 1", len(calls))
	}
	if len(env.fake.Calls) != 1 {
		t.Errorf("model calls = %d, want 1 (no continuation after failed write)", len(env.fake.Calls))
	}
}

// Pause events must reach the frontend even when the event buffer is full of
// progress events; nothing retries them.
func TestGatePauseEventSurvivesFullEventBuffer(t *testing.T) {
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")}),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write"}},
	)

	for i := 0; i < cap(env.engine.events); i++ {
		env.engine.events <- Event{Type: EventResponse, ConversationID: testConv}
	}

	if err := env.engine.Prompt(testConv, "go"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)
	if ev.ToolCallID != "w1" {
		t.Fatalf("permission requested for %s, want w1", ev.ToolCallID)
	}

	if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", true, false); err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}
	env.waitEvent(t, EventEnd)
}

// A "remember" grant widens the session permissions so the same tool skips
// the prompt on the next batch.
func TestGateRememberGrant(t *testing.T) {
	recorder := &callRecorder{}
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(message.ToolCall{ID: "w1", Name: "Write", Arguments: callArgs("w1")}),
			toolTurn(message.ToolCall{ID: "w2", Name: "Write", Arguments: callArgs("w2")}),
			textTurn("done"),
		},
		&guardedScriptedTool{scriptedTool{name: "Write", recorder: recorder}},
	)

	if err := env.engine.Prompt(testConv, "go"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	ev := env.waitEvent(t, EventPermissionRequired)
	if err := env.engine.HandlePermissionResponse(testConv, ev.MessageID, "w1", true, true); err != nil {
		t.Fatalf("HandlePermissionResponse() error: %v", err)
	}

	// The second batch must execute without a new permission event.
	env.waitEvent(t, EventEnd)
	if got := recorder.list(); strings.Join(got, ",") != "w1,w2" {
		t.Errorf("executed = %v, want [w1 w2]", got)
	}
	if len(env.fake.Calls) != 3 {
		t.Errorf("model calls = %d, want 3", len(env.fake.Calls))
	}
}
