package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rfenwick/aide/internal/client"
	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/permission"
	"github.com/rfenwick/aide/internal/session"
	"github.com/rfenwick/aide/internal/store"
	"github.com/rfenwick/aide/internal/tool"
)

const testConv = "conv-1"

// --- in-memory offload store ---

type memOffload struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemOffload() *memOffload {
	return &memOffload{data: make(map[string][]byte)}
}

func (m *memOffload) Write(conversationID, toolCallID string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := conversationID + "/" + toolCallID
	if _, ok := m.data[key]; ok {
		return "", store.ErrExists
	}
	m.data[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (m *memOffload) Read(pathRef string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[strings.TrimPrefix(pathRef, "mem://")]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

// --- conversations fake ---

// flakyConversations wraps the in-memory store with switchable write
// failures, for exercising forced-persist error paths.
type flakyConversations struct {
	*store.MemoryConversations
	mu       sync.Mutex
	writeErr error
}

func (f *flakyConversations) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *flakyConversations) WriteMessageContent(conversationID, messageID string, blocks []message.Block) error {
	f.mu.Lock()
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryConversations.WriteMessageContent(conversationID, messageID, blocks)
}

// --- scripted tools ---

// callRecorder logs tool executions in order.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *callRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// scriptedTool executes a fixed function and records each call. Named "Read"
// it is auto-allowed; any other name asks by default.
type scriptedTool struct {
	name     string
	recorder *callRecorder
	fn       func(params map[string]any) (string, error)
}

func (t *scriptedTool) Name() string { return t.name }

func (t *scriptedTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.name,
		Description: "scripted test tool",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *scriptedTool) Execute(_ context.Context, params map[string]any, _ string) (string, error) {
	if t.recorder != nil {
		if id, ok := params["id"].(string); ok {
			t.recorder.add(id)
		} else {
			t.recorder.add(t.name)
		}
	}
	if t.fn != nil {
		return t.fn(params)
	}
	return "ok", nil
}

// guardedScriptedTool adds a permission payload, like Edit/Write/Bash do.
type guardedScriptedTool struct {
	scriptedTool
}

func (t *guardedScriptedTool) PreparePermission(_ context.Context, params map[string]any, _ string) (*permission.Request, error) {
	return &permission.Request{
		ToolName:    t.name,
		Type:        permission.TypeWrite,
		Description: "scripted write",
	}, nil
}

// --- engine harness ---

type testEnv struct {
	engine   *Engine
	fake     *client.FakeClient
	conv     *flakyConversations
	offload  *memOffload
	sessions *session.Store
	settings *config.Settings
}

func newTestEnv(t *testing.T, scripts [][]message.StreamEvent, tools ...tool.Tool) *testEnv {
	t.Helper()

	registry := tool.NewRegistry()
	for _, tl := range tools {
		registry.Register(tl)
	}
	registry.Register(&tool.AskUserQuestionTool{})

	fake := &client.FakeClient{Scripts: scripts}
	settings := config.NewSettings()
	sessions := session.NewStore()
	conv := &flakyConversations{MemoryConversations: store.NewMemoryConversations()}
	offload := newMemOffload()

	engine := NewEngine(sessions, conv, offload, registry, fake, settings)
	if err := engine.Open(testConv, session.Config{Cwd: t.TempDir()}); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return &testEnv{
		engine:   engine,
		fake:     fake,
		conv:     conv,
		offload:  offload,
		sessions: sessions,
		settings: settings,
	}
}

// waitEvent drains the engine event stream until one of the wanted types
// arrives.
func (env *testEnv) waitEvent(t *testing.T, types ...EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-env.engine.Events():
			for _, ty := range types {
				if ev.Type == ty {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", types)
		}
	}
}

// waitStatus polls until the session reaches the wanted status.
func (env *testEnv) waitStatus(t *testing.T, want session.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := env.sessions.Get(testConv)
		if err == nil && sess.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	sess, _ := env.sessions.Get(testConv)
	t.Fatalf("session never reached %s (now %s)", want, sess.Status)
}

// assistantRecord returns the persisted assistant record for a message ID.
func (env *testEnv) assistantRecord(t *testing.T, messageID string) store.Record {
	t.Helper()
	records, err := env.conv.ReadHistory(testConv)
	if err != nil {
		t.Fatalf("ReadHistory() error: %v", err)
	}
	for _, rec := range records {
		if rec.MessageID == messageID {
			return rec
		}
	}
	t.Fatalf("no record for message %s", messageID)
	return store.Record{}
}

// --- stream scripts ---

func callArgs(id string) string {
	return fmt.Sprintf(`{"id":%q}`, id)
}

// toolTurn scripts one model turn that emits the given calls then stops for
// tool use.
func toolTurn(calls ...message.ToolCall) []message.StreamEvent {
	events := []message.StreamEvent{message.TextEvent("on it")}
	for _, c := range calls {
		events = append(events,
			message.ToolCallStartEvent(c.ID, c.Name),
			message.ToolCallDeltaEvent(c.ID, c.Arguments),
			message.ToolCallEndEvent(c.ID),
		)
	}
	events = append(events,
		message.UsageEvent(message.Usage{InputTokens: 20, OutputTokens: 10}),
		message.StopEvent("tool_use"),
	)
	return events
}

func textTurn(text string) []message.StreamEvent {
	return []message.StreamEvent{
		message.TextEvent(text),
		message.UsageEvent(message.Usage{InputTokens: 5, OutputTokens: 3}),
		message.StopEvent("end_turn"),
	}
}
