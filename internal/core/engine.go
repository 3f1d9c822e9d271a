package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rfenwick/aide/internal/client"
	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/log"
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/provider"
	"github.com/rfenwick/aide/internal/session"
	"github.com/rfenwick/aide/internal/store"
	"github.com/rfenwick/aide/internal/tool"
)

const defaultSystemPrompt = `You are aide, a coding agent running in the user's terminal.

Work on the task the user gives you using the available tools. Read before you
write, keep changes minimal, and report what you did concisely. When you need a
decision from the user, use the AskUserQuestion tool instead of guessing.`

// pausedTurn is a batch suspended for permission or question input, together
// with the blocks of the message being generated.
type pausedTurn struct {
	batch  Batch
	blocks []message.Block

	// questions and questionCallID are set for question pauses.
	questions      []tool.Question
	questionCallID string
}

// Engine is the top-level execution loop driver. One Engine serves many
// conversations; each conversation's loop runs as its own goroutine and
// touches only its own session state.
type Engine struct {
	sessions      *session.Store
	conversations store.Conversations
	catalog       tool.Catalog
	client        client.Streamer
	settings      *config.Settings
	processor     *Processor

	SystemPrompt string

	mu      sync.Mutex
	perms   map[string]*config.SessionPermissions // by conversation
	paused  map[string]*pausedTurn                // by message ID
	cancels map[string]context.CancelFunc         // by conversation

	events chan Event
}

// NewEngine wires the pipeline together.
func NewEngine(sessions *session.Store, conversations store.Conversations, offload store.Offload,
	catalog tool.Catalog, cl client.Streamer, settings *config.Settings) *Engine {
	return &Engine{
		sessions:      sessions,
		conversations: conversations,
		catalog:       catalog,
		client:        cl,
		settings:      settings,
		processor:     NewProcessor(catalog, offload, sessions, settings),
		SystemPrompt:  defaultSystemPrompt,
		perms:         make(map[string]*config.SessionPermissions),
		paused:        make(map[string]*pausedTurn),
		cancels:       make(map[string]context.CancelFunc),
		events:        make(chan Event, 256),
	}
}

// Events returns the renderer-facing event stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Open registers a conversation's session. Opening an existing session is a
// no-op.
func (e *Engine) Open(conversationID string, cfg session.Config) error {
	if _, err := e.sessions.Get(conversationID); err == nil {
		return nil
	}
	_, err := e.sessions.Create(conversationID, cfg)
	return err
}

// Prompt appends a user message and starts a generation loop. It returns once
// the loop is started; progress is delivered through Events.
func (e *Engine) Prompt(conversationID, text string) error {
	sess, err := e.sessions.Get(conversationID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case session.StatusGenerating, session.StatusResuming,
		session.StatusWaitingPermission, session.StatusWaitingQuestion:
		return fmt.Errorf("conversation %s is busy (%s)", conversationID, sess.Status)
	}

	if _, err := e.conversations.AppendUser(conversationID, text); err != nil {
		return err
	}
	if err := e.sessions.StartLoop(conversationID, uuid.NewString()); err != nil {
		return err
	}

	ctx := e.loopContext(conversationID)
	go e.runLoop(ctx, conversationID)
	return nil
}

// Stop requests cancellation of the running loop.
func (e *Engine) Stop(conversationID string) {
	if err := e.sessions.RequestStop(conversationID); err != nil {
		return
	}
	e.mu.Lock()
	cancel := e.cancels[conversationID]
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SessionPermissions returns the conversation's runtime permission grants,
// creating them on first use.
func (e *Engine) SessionPermissions(conversationID string) *config.SessionPermissions {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.perms[conversationID]
	if !ok {
		p = config.NewSessionPermissions()
		e.perms[conversationID] = p
	}
	return p
}

// loopContext replaces the conversation's cancel scope with a fresh one.
func (e *Engine) loopContext(conversationID string) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if old := e.cancels[conversationID]; old != nil {
		old()
	}
	e.cancels[conversationID] = cancel
	e.mu.Unlock()
	return ctx
}

// runLoop alternates between asking the model and processing tool calls until
// the turn ends, errors, pauses, or is cancelled. On a pause it returns; the
// permission gate re-enters via continueLoop.
func (e *Engine) runLoop(ctx context.Context, conversationID string) {
	for {
		again := e.generateTurn(ctx, conversationID)
		if !again {
			return
		}
	}
}

// continueLoop is the gate's continuation entry point after a resume.
func (e *Engine) continueLoop(conversationID string) {
	ctx := e.loopContext(conversationID)
	go e.runLoop(ctx, conversationID)
}

// generateTurn runs one model turn plus its tool batch. It returns true when
// the loop should ask the model again.
func (e *Engine) generateTurn(ctx context.Context, conversationID string) bool {
	sess, err := e.sessions.Get(conversationID)
	if err != nil {
		e.emit(Event{Type: EventError, ConversationID: conversationID, Err: err})
		return false
	}

	records, err := e.conversations.ReadHistory(conversationID)
	if err != nil {
		e.fail(conversationID, "", err)
		return false
	}
	msgs := BuildModelMessages(records)

	messageID := uuid.NewString()
	if err := e.sessions.UpdateRuntime(conversationID, func(rt *session.Runtime) {
		rt.LoopID = messageID
	}); err != nil {
		e.fail(conversationID, "", err)
		return false
	}

	consumer := NewConsumer(e.settings.Pipeline,
		func(blocks []message.Block) {
			e.emit(Event{Type: EventResponse, ConversationID: conversationID, MessageID: messageID, Blocks: blocks})
		},
		func(blocks []message.Block) error {
			return e.conversations.WriteMessageContent(conversationID, messageID, blocks)
		},
	)

	stream := e.client.Stream(ctx, msgs, e.toolDefs(), e.SystemPrompt)
	turn := consumer.Consume(ctx, stream)

	if c, ok := e.client.(*client.Client); ok {
		c.AddUsage(turn.Usage)
	}

	if turn.Err != nil {
		e.persistBlocks(conversationID, messageID, turn.Blocks)
		e.fail(conversationID, messageID, turn.Err)
		return false
	}
	if turn.Cancelled {
		e.persistBlocks(conversationID, messageID, turn.Blocks)
		e.sessions.SetStatus(conversationID, session.StatusCancelled)
		e.emit(Event{Type: EventEnd, ConversationID: conversationID, MessageID: messageID,
			Blocks: turn.Blocks, Usage: turn.Usage, StopReason: "cancelled"})
		return false
	}

	if len(turn.ToolCalls) == 0 {
		if err := e.persistBlocks(conversationID, messageID, turn.Blocks); err != nil {
			e.fail(conversationID, messageID, err)
			return false
		}
		e.sessions.SetStatus(conversationID, session.StatusIdle)
		e.emit(Event{Type: EventEnd, ConversationID: conversationID, MessageID: messageID,
			Blocks: turn.Blocks, Usage: turn.Usage, StopReason: turn.StopReason})
		return false
	}

	batch := Batch{
		ConversationID: conversationID,
		MessageID:      messageID,
		Cwd:            sess.Config.Cwd,
		Calls:          turn.ToolCalls,
	}
	outcome := e.runBatch(ctx, batch, turn.Blocks, nil)
	return e.settleBatch(conversationID, messageID, turn.Usage, outcome)
}

// batchOutcome is the result of draining one processor pass.
type batchOutcome struct {
	blocks []message.Block
	batch  Batch

	pausedPermission bool
	pausedQuestion   bool
	questions        []tool.Question
	questionCallID   string
	capped           bool

	// pauseEvents are emitted only after the paused batch is stored.
	pauseEvents []Event
}

// runBatch drains the processor, applying events to the message blocks and
// surfacing pauses.
func (e *Engine) runBatch(ctx context.Context, batch Batch, blocks []message.Block,
	decisions map[string]bool) batchOutcome {

	outcome := batchOutcome{blocks: blocks, batch: batch}
	perms := e.SessionPermissions(batch.ConversationID)

	for ev := range e.processor.Process(ctx, batch, perms, decisions) {
		switch ev.Type {
		case ProcToolStart:
			e.emit(Event{Type: EventResponse, ConversationID: batch.ConversationID,
				MessageID: batch.MessageID, Blocks: snapshotBlocks(outcome.blocks)})

		case ProcToolEnd, ProcToolError:
			if idx := message.FindToolCallBlock(outcome.blocks, ev.Call.ID); idx >= 0 {
				tc := outcome.blocks[idx].ToolCall
				tc.Result = ev.Result
				tc.IsError = ev.IsError
				tc.Offload = ev.Offload
				if ev.IsError {
					outcome.blocks[idx].Status = message.StatusError
				} else {
					outcome.blocks[idx].Status = message.StatusSuccess
				}
			}
			e.emit(Event{Type: EventResponse, ConversationID: batch.ConversationID,
				MessageID: batch.MessageID, Blocks: snapshotBlocks(outcome.blocks)})

		case ProcPermissionRequired:
			outcome.pausedPermission = true
			block := message.NewBlock(message.BlockPermissionRequest)
			block.Permission = &message.PermissionState{
				ToolCallID: ev.Call.ID,
				ToolName:   ev.Call.Name,
				Type:       string(ev.Request.Type),
			}
			outcome.blocks = append(outcome.blocks, block)
			e.sessions.AddPendingPermission(batch.ConversationID, session.PendingPermission{
				MessageID:  batch.MessageID,
				ToolCallID: ev.Call.ID,
				Type:       ev.Request.Type,
				Request:    ev.Request,
			})
			// Emission is deferred to settleBatch so a response can never
			// arrive before the paused batch is stored.
			outcome.pauseEvents = append(outcome.pauseEvents, Event{
				Type: EventPermissionRequired, ConversationID: batch.ConversationID,
				MessageID: batch.MessageID, ToolCallID: ev.Call.ID, Request: ev.Request,
			})

		case ProcQuestionRequired:
			outcome.pausedQuestion = true
			outcome.questions = ev.Questions
			outcome.questionCallID = ev.Call.ID
			outcome.pauseEvents = append(outcome.pauseEvents, Event{
				Type: EventQuestionRequired, ConversationID: batch.ConversationID,
				MessageID: batch.MessageID, ToolCallID: ev.Call.ID, Questions: ev.Questions,
			})

		case ProcCapped:
			outcome.capped = true
			block := message.NewBlock(message.BlockError)
			block.Status = message.StatusError
			block.Text = fmt.Sprintf("Tool call limit reached (%d); stopping this loop.",
				e.settings.Pipeline.ToolCallCap())
			outcome.blocks = append(outcome.blocks, block)
		}
	}
	return outcome
}

// settleBatch persists a concluded or paused batch and decides whether the
// loop continues. Returns true when the model should be asked again.
func (e *Engine) settleBatch(conversationID, messageID string, usage message.Usage, outcome batchOutcome) bool {
	if outcome.pausedPermission || outcome.pausedQuestion {
		if err := e.storePausedTurn(conversationID, messageID, outcome); err != nil {
			e.fail(conversationID, messageID, err)
			return false
		}
		for _, ev := range outcome.pauseEvents {
			e.emitSync(ev)
		}
		return false
	}

	sess, err := e.sessions.Get(conversationID)
	stopped := err == nil && sess.Runtime.UserStopRequested
	if stopped {
		// Calls the batch never ran keep the stop-finalize status from the
		// consumer; persist them as errors, not empty successes.
		markSkippedCalls(outcome.blocks)
	}

	// The batch concluded: force the synchronous write before anything reads
	// history to build the next model context.
	if err := e.persistBlocks(conversationID, messageID, outcome.blocks); err != nil {
		e.fail(conversationID, messageID, err)
		return false
	}

	if stopped {
		e.sessions.SetStatus(conversationID, session.StatusCancelled)
		e.emit(Event{Type: EventEnd, ConversationID: conversationID, MessageID: messageID,
			Blocks: outcome.blocks, Usage: usage, StopReason: "cancelled"})
		return false
	}
	if outcome.capped {
		e.sessions.SetStatus(conversationID, session.StatusIdle)
		e.emit(Event{Type: EventEnd, ConversationID: conversationID, MessageID: messageID,
			Blocks: outcome.blocks, Usage: usage, StopReason: "capped"})
		return false
	}
	return true
}

// storePausedTurn records a suspended batch and persists its blocks. Pause
// events are not emitted here; callers send them only once the paused state
// is reachable by a response.
func (e *Engine) storePausedTurn(conversationID, messageID string, outcome batchOutcome) error {
	e.mu.Lock()
	e.paused[messageID] = &pausedTurn{
		batch:          outcome.batch,
		blocks:         outcome.blocks,
		questions:      outcome.questions,
		questionCallID: outcome.questionCallID,
	}
	e.mu.Unlock()

	status := session.StatusWaitingPermission
	if outcome.pausedQuestion {
		status = session.StatusWaitingQuestion
	}
	e.sessions.SetStatus(conversationID, status)
	return e.persistBlocks(conversationID, messageID, outcome.blocks)
}

// markSkippedCalls flags tool calls that never produced a result, so a
// cancelled turn records them as errors.
func markSkippedCalls(blocks []message.Block) {
	for i := range blocks {
		b := &blocks[i]
		if b.Type == message.BlockToolCall && b.ToolCall != nil && b.ToolCall.Result == "" {
			b.Status = message.StatusError
		}
	}
}

func (e *Engine) toolDefs() []provider.Tool {
	defs := e.catalog.Definitions()
	out := make([]provider.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, provider.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

func (e *Engine) persistBlocks(conversationID, messageID string, blocks []message.Block) error {
	if messageID == "" {
		return nil
	}
	return e.conversations.WriteMessageContent(conversationID, messageID, blocks)
}

func (e *Engine) fail(conversationID, messageID string, err error) {
	log.LogError("engine", err)
	e.sessions.SetStatus(conversationID, session.StatusError)
	e.emit(Event{Type: EventError, ConversationID: conversationID, MessageID: messageID, Err: err})
}

// emit delivers a renderer-facing event without ever blocking the pipeline,
// dropping it when no listener keeps up. Pause events never come through
// here; they use emitSync.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		log.LogError("events", fmt.Errorf("dropped %s event for %s", ev.Type, ev.ConversationID))
	}
}

// emitSync delivers an event that has no later retry, blocking until the
// listener takes it. Pause events go through here: dropping one would leave
// the conversation suspended with nobody to answer.
func (e *Engine) emitSync(ev Event) {
	e.events <- ev
}
