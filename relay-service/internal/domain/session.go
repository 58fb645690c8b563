package domain

import (
	"sync"
	"time"
)

// SessionState is the relay-side lifecycle of one control connection.
type SessionState int

const (
	// StatePending: transport open, no announce yet.
	StatePending SessionState = iota
	// StateActive: a user id is bound.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session represents a client's control connection to the relay.
type Session struct {
	ID           string
	userID       string
	displayName  string
	state        SessionState
	alive        bool
	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

// NewSession creates a pending session for a freshly accepted transport.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		state:        StatePending,
		alive:        true,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Bind attaches an announced identity and moves the session to Active.
// It returns false if the session is already closed. Re-binding an active
// session replaces the identity.
func (s *Session) Bind(userID, displayName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.userID = userID
	s.displayName = displayName
	s.state = StateActive
	s.LastActiveAt = time.Now()
	return true
}

// Close marks the session terminal. It reports whether this call did the
// transition, so callers can run disconnect handling exactly once.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.alive = false
	return true
}

// Identity returns the bound user id and display name.
func (s *Session) Identity() (userID, displayName string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.displayName
}

// UserID returns the bound user id, empty while pending.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsActive reports whether the session has announced and is not closed.
func (s *Session) IsActive() bool {
	return s.State() == StateActive
}

// MarkAlive records a liveness probe answer.
func (s *Session) MarkAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.alive = true
	}
}

// Rearm clears the alive flag before a new probe and returns the previous
// value. A false return means the last probe went unanswered.
func (s *Session) Rearm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.alive
	s.alive = false
	return was
}

// UpdateActivity updates the last active timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
