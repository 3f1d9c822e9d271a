package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is a keyed in-memory session store. All operations are synchronous
// and touch only the addressed session; sessions never share mutable state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new idle session. Creating an existing ID is an error.
func (s *Store) Create(id string, cfg Config) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return nil, fmt.Errorf("session %s already exists", id)
	}
	sess := &Session{ID: id, Status: StatusIdle, Config: cfg}
	s.sessions[id] = sess
	return sess, nil
}

// Get returns a snapshot of the session state.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snapshot(sess), nil
}

// StartLoop assigns a new loop ID and resets the per-loop runtime fields.
func (s *Store) StartLoop(id, loopID string) error {
	return s.update(id, func(sess *Session) {
		sess.Status = StatusGenerating
		sess.Runtime = Runtime{LoopID: loopID}
	})
}

// SetStatus updates the session status.
func (s *Store) SetStatus(id string, status Status) error {
	return s.update(id, func(sess *Session) {
		sess.Status = status
	})
}

// UpdateRuntime applies a mutation to the session's runtime under the store
// lock. The callback must not block.
func (s *Store) UpdateRuntime(id string, fn func(*Runtime)) error {
	return s.update(id, func(sess *Session) {
		fn(&sess.Runtime)
	})
}

// IncrementToolCallCount bumps the per-loop counter and returns the new value.
func (s *Store) IncrementToolCallCount(id string) (int, error) {
	var count int
	err := s.update(id, func(sess *Session) {
		sess.Runtime.ToolCallCount++
		count = sess.Runtime.ToolCallCount
	})
	return count, err
}

// RequestStop flags the session for user-initiated cancellation.
func (s *Store) RequestStop(id string) error {
	return s.update(id, func(sess *Session) {
		sess.Runtime.UserStopRequested = true
	})
}

// AddPendingPermission appends a pending entry for a paused batch. Entries are
// never duplicated for the same (messageID, toolCallID).
func (s *Store) AddPendingPermission(id string, p PendingPermission) error {
	return s.update(id, func(sess *Session) {
		for _, existing := range sess.Runtime.PendingPermissions {
			if existing.MessageID == p.MessageID && existing.ToolCallID == p.ToolCallID {
				return
			}
		}
		p.Status = PermissionPending
		sess.Runtime.PendingPermissions = append(sess.Runtime.PendingPermissions, p)
	})
}

// ResolvePermission records a decision for one pending entry. Only the
// matching entry is touched. It returns the updated entry list and whether
// every entry for the message now carries a decision.
func (s *Store) ResolvePermission(id, messageID, toolCallID string, granted bool) ([]PendingPermission, bool, error) {
	var (
		entries     []PendingPermission
		allResolved bool
		found       bool
	)
	err := s.update(id, func(sess *Session) {
		allResolved = true
		for i := range sess.Runtime.PendingPermissions {
			p := &sess.Runtime.PendingPermissions[i]
			if p.MessageID != messageID {
				continue
			}
			if p.ToolCallID == toolCallID && p.Status == PermissionPending {
				found = true
				if granted {
					p.Status = PermissionGranted
				} else {
					p.Status = PermissionDenied
				}
			}
			if p.Status == PermissionPending {
				allResolved = false
			}
		}
		entries = append([]PendingPermission(nil), sess.Runtime.PendingPermissions...)
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		// Duplicate or stale response; the caller treats it as a no-op
		// unless everything is already resolved.
		return entries, allResolved, nil
	}
	return entries, allResolved, nil
}

// ClearPendingPermissions drops the pending entries once a batch concluded.
func (s *Store) ClearPendingPermissions(id string) error {
	return s.update(id, func(sess *Session) {
		sess.Runtime.PendingPermissions = nil
	})
}

// AcquireResumeLock atomically takes the resume lock for a loop. It returns
// false when a lock is already held, which callers treat as "another resume is
// in flight" and silently back off.
func (s *Store) AcquireResumeLock(id, loopID string) (bool, error) {
	var acquired bool
	err := s.update(id, func(sess *Session) {
		if sess.Runtime.ResumeLock != nil {
			return
		}
		sess.Runtime.ResumeLock = &ResumeLock{LoopID: loopID, StartedAt: time.Now()}
		acquired = true
	})
	return acquired, err
}

// ReleaseResumeLock drops the resume lock if it is held for the given loop.
func (s *Store) ReleaseResumeLock(id, loopID string) error {
	return s.update(id, func(sess *Session) {
		if sess.Runtime.ResumeLock != nil && sess.Runtime.ResumeLock.LoopID == loopID {
			sess.Runtime.ResumeLock = nil
		}
	})
}

func (s *Store) update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(sess)
	return nil
}

// snapshot copies a session so callers never hold a reference into the store.
func snapshot(sess *Session) Session {
	out := *sess
	out.Runtime.PendingPermissions = append([]PendingPermission(nil), sess.Runtime.PendingPermissions...)
	if sess.Runtime.ResumeLock != nil {
		lock := *sess.Runtime.ResumeLock
		out.Runtime.ResumeLock = &lock
	}
	return out
}
