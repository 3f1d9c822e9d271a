package core

import (
	"fmt"

	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/permission"
	"github.com/rfenwick/aide/internal/session"
	"github.com/rfenwick/aide/internal/tool"
)

// HandlePermissionResponse is the gating latch entry point, invoked by the
// frontend for each user decision. It records the decision, and only when
// every entry of the paused batch is resolved does it resume execution,
// exactly once, in original call order.
//
// Duplicate and rapid responses are safe: the resume lock makes the
// resume-persist-continue sequence a single critical section, and a second
// caller that finds the lock held backs off silently. The paused message's
// blocks belong to the lock holder alone; the responder path records
// decisions only in the session store, so a late duplicate can never write
// blocks a running resume is reading.
func (e *Engine) HandlePermissionResponse(conversationID, messageID, toolCallID string,
	granted, remember bool) error {

	sess, err := e.sessions.Get(conversationID)
	if err != nil {
		return err
	}

	var request *permission.Request
	for _, p := range sess.Runtime.PendingPermissions {
		if p.MessageID == messageID && p.ToolCallID == toolCallID {
			request = p.Request
			break
		}
	}
	if request == nil {
		// Stale or duplicate response for a batch that already concluded.
		return nil
	}

	if granted && remember {
		e.rememberGrant(conversationID, request)
	}

	entries, allResolved, err := e.sessions.ResolvePermission(conversationID, messageID, toolCallID, granted)
	if err != nil {
		return err
	}

	e.emit(Event{Type: EventPermissionUpdate, ConversationID: conversationID,
		MessageID: messageID, ToolCallID: toolCallID, Granted: granted})

	if !allResolved {
		// Partial update only; execution stays fully halted.
		return nil
	}

	acquired, err := e.sessions.AcquireResumeLock(conversationID, messageID)
	if err != nil {
		return err
	}
	if !acquired {
		// Another resume is in flight; duplicate response, nothing to do.
		return nil
	}

	e.sessions.SetStatus(conversationID, session.StatusResuming)

	e.mu.Lock()
	pt := e.paused[messageID]
	e.mu.Unlock()
	if pt == nil {
		e.sessions.ReleaseResumeLock(conversationID, messageID)
		return fmt.Errorf("no paused batch for message %s", messageID)
	}

	decisions := make(map[string]bool)
	for _, p := range entries {
		if p.MessageID != messageID {
			continue
		}
		decisions[p.ToolCallID] = p.Status == session.PermissionGranted
	}

	// Decisions land on the blocks here, inside the critical section, from
	// the store's entries.
	applyDecisionBlocks(pt.blocks, decisions)

	ctx := e.loopContext(conversationID)
	outcome := e.runBatch(ctx, pt.batch, pt.blocks, decisions)

	if outcome.pausedPermission || outcome.pausedQuestion {
		// A call was freshly discovered to need approval before anything ran.
		if err := e.storePausedTurn(conversationID, messageID, outcome); err != nil {
			e.sessions.ReleaseResumeLock(conversationID, messageID)
			e.fail(conversationID, messageID, err)
			return err
		}
		// Release before the pause events go out so the next full resolution
		// always finds the lock free and resumes exactly once.
		e.sessions.ReleaseResumeLock(conversationID, messageID)
		for _, ev := range outcome.pauseEvents {
			e.emitSync(ev)
		}
		return nil
	}

	again := e.settleBatch(conversationID, messageID, message.Usage{}, outcome)

	e.sessions.ClearPendingPermissions(conversationID)
	e.mu.Lock()
	delete(e.paused, messageID)
	e.mu.Unlock()

	if !again {
		// Cancelled, capped, or the forced write failed; status already set.
		e.sessions.ReleaseResumeLock(conversationID, messageID)
		return nil
	}

	e.sessions.SetStatus(conversationID, session.StatusGenerating)
	e.continueLoop(conversationID)
	e.sessions.ReleaseResumeLock(conversationID, messageID)
	return nil
}

// HandleQuestionResponse feeds the user's answers back into a loop paused on
// the question tool and continues generation.
func (e *Engine) HandleQuestionResponse(conversationID, messageID string, answers map[int][]string) error {
	acquired, err := e.sessions.AcquireResumeLock(conversationID, messageID)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer e.sessions.ReleaseResumeLock(conversationID, messageID)

	e.mu.Lock()
	pt := e.paused[messageID]
	e.mu.Unlock()
	if pt == nil || len(pt.questions) == 0 {
		return fmt.Errorf("no pending question for message %s", messageID)
	}

	result := tool.FormatAnswers(pt.questions, answers)
	if idx := message.FindToolCallBlock(pt.blocks, pt.questionCallID); idx >= 0 {
		pt.blocks[idx].ToolCall.Result = result
		pt.blocks[idx].Status = message.StatusSuccess
	}

	if err := e.persistBlocks(conversationID, messageID, pt.blocks); err != nil {
		e.fail(conversationID, messageID, err)
		return err
	}

	e.mu.Lock()
	delete(e.paused, messageID)
	e.mu.Unlock()

	e.sessions.SetStatus(conversationID, session.StatusGenerating)
	e.continueLoop(conversationID)
	return nil
}

// rememberGrant widens the session's runtime permissions. Grants never write
// back to settings files.
func (e *Engine) rememberGrant(conversationID string, request *permission.Request) {
	perms := e.SessionPermissions(conversationID)
	if request.Command != nil {
		perms.AllowPattern(config.BuildRule(request.ToolName,
			map[string]any{"command": request.Command.Command}))
		return
	}
	perms.AllowTool(request.ToolName)
}

// applyDecisionBlocks records the user's decisions on the paused message's
// permission_request blocks. Only the resume lock holder calls this.
func applyDecisionBlocks(blocks []message.Block, decisions map[string]bool) {
	for i := range blocks {
		b := &blocks[i]
		if b.Type != message.BlockPermissionRequest || b.Permission == nil {
			continue
		}
		granted, ok := decisions[b.Permission.ToolCallID]
		if !ok {
			continue
		}
		g := granted
		b.Permission.Granted = &g
		if granted {
			b.Status = message.StatusSuccess
		} else {
			b.Status = message.StatusError
		}
	}
}
