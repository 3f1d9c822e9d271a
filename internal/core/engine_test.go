package core

import (
	"strings"
	"testing"

	"github.com/rfenwick/aide/internal/message"
)

// Stopping mid-batch persists partial results: the call that ran keeps its
// result, the calls the batch never reached are recorded as errors rather
// than empty successes.
func TestStopMidBatchPersistsSkippedCallsAsErrors(t *testing.T) {
	recorder := &callRecorder{}
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	env := newTestEnv(t,
		[][]message.StreamEvent{
			toolTurn(
				message.ToolCall{ID: "r1", Name: "Read", Arguments: callArgs("r1")},
				message.ToolCall{ID: "r2", Name: "Read", Arguments: callArgs("r2")},
			),
		},
		&scriptedTool{name: "Read", recorder: recorder,
			fn: func(map[string]any) (string, error) {
				started <- struct{}{}
				<-release
				return "ok", nil
			}},
	)

	if err := env.engine.Prompt(testConv, "read both"); err != nil {
		t.Fatalf("Prompt() error: %v", err)
	}
	<-started
	env.engine.Stop(testConv)
	close(release)

	ev := env.waitEvent(t, EventEnd)
	if ev.StopReason != "cancelled" {
		t.Fatalf("stop reason = %q, want cancelled", ev.StopReason)
	}

	rec := env.assistantRecord(t, ev.MessageID)
	r1 := rec.Blocks[message.FindToolCallBlock(rec.Blocks, "r1")]
	if r1.Status != message.StatusSuccess || r1.ToolCall.Result != "ok" {
		t.Errorf("r1 = %s %+v, want completed result", r1.Status, r1.ToolCall)
	}
	r2 := rec.Blocks[message.FindToolCallBlock(rec.Blocks, "r2")]
	if r2.Status != message.StatusError {
		t.Errorf("r2 status = %s, want error for a call that never ran", r2.Status)
	}
	if r2.ToolCall.Result != "" {
		t.Errorf("r2 result = %q, want empty (the history layer supplies the placeholder)", r2.ToolCall.Result)
	}

	if calls := recorder.list(); strings.Join(calls, ",") != "r1" {
		t.Errorf("executed calls = %v, want [r1]", calls)
	}
}
