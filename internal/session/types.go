// Package session holds the in-memory per-conversation execution state: loop
// status, pending permissions, the resume lock, and tool-call counters.
// Nothing here is persisted; a session lives as long as the process.
package session

import (
	"time"

	"github.com/rfenwick/aide/internal/permission"
)

// Status is the execution state of a session.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusGenerating        Status = "generating"
	StatusWaitingPermission Status = "waiting_permission"
	StatusWaitingQuestion   Status = "waiting_question"
	StatusResuming          Status = "resuming"
	StatusError             Status = "error"
	StatusCancelled         Status = "cancelled"
)

// PermissionStatus is the decision state of one pending permission.
type PermissionStatus string

const (
	PermissionPending PermissionStatus = "pending"
	PermissionGranted PermissionStatus = "granted"
	PermissionDenied  PermissionStatus = "denied"
)

// PendingPermission is one undecided (or decided, pre-resume) permission
// request attached to a paused batch. Mutated only through the store.
type PendingPermission struct {
	MessageID  string
	ToolCallID string
	Type       permission.Type
	Request    *permission.Request
	Status     PermissionStatus
}

// ResumeLock marks an in-flight resume. At most one non-nil lock exists per
// session at any time.
type ResumeLock struct {
	LoopID    string
	StartedAt time.Time
}

// Runtime is the mutable execution state of a session, reset on every loop.
type Runtime struct {
	// LoopID is the assistant message ID currently being generated, or "".
	LoopID string

	// ToolCallCount counts tool calls executed this loop, against the cap.
	ToolCallCount int

	// UserStopRequested is set when the user asked to stop the loop.
	UserStopRequested bool

	// PendingPermissions holds the paused batch's permission entries, in
	// original call order.
	PendingPermissions []PendingPermission

	// ResumeLock is non-nil while a resume is in flight.
	ResumeLock *ResumeLock
}

// Config is the read-only conversation configuration the session was started
// with. Owned by the caller; the pipeline never mutates it.
type Config struct {
	Provider string
	Model    string
	Cwd      string
}

// Session is the in-memory state for one conversation.
type Session struct {
	ID      string
	Status  Status
	Runtime Runtime
	Config  Config
}
