package pty

import (
	"fmt"
	"sync"
	"time"
)

// ID identifies a session. Ids start at 1 and are never reused within a
// process lifetime.
type ID uint64

// State is a session's lifecycle state.
type State int

const (
	// StateRunning is the initial state.
	StateRunning State = iota
	// StateExited means the shell terminated and its output was drained.
	StateExited
	// StateClosed is terminal: resources released, removed from the registry.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Info is a point-in-time view of a session.
type Info struct {
	ID        ID
	State     State
	Rows      int
	Cols      int
	PID       int
	Shell     string
	CreatedAt time.Time
	ExitCode  int
}

// Session is one shell process plus its pty and lifecycle state.
type Session struct {
	id        ID
	transport *Transport
	createdAt time.Time

	// ioMu serializes writes and resizes against the transport. It is never
	// taken by the relay.
	ioMu sync.Mutex

	// mu guards state and geometry; held only for field access.
	mu    sync.Mutex
	state State
	rows  int
	cols  int

	relay *relay
}

func newSession(id ID, t *Transport, rows, cols int) *Session {
	return &Session{
		id:        id,
		transport: t,
		createdAt: time.Now(),
		state:     StateRunning,
		rows:      rows,
		cols:      cols,
	}
}

// ID returns the session id.
func (s *Session) ID() ID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		State:     s.state,
		Rows:      s.rows,
		Cols:      s.cols,
		PID:       s.transport.PID(),
		Shell:     s.transport.Shell(),
		CreatedAt: s.createdAt,
		ExitCode:  s.transport.ExitCode(),
	}
}

// Write sends data to the shell. It fails with ErrClosed unless the session
// is running.
func (s *Session) Write(data []byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if st := s.State(); st != StateRunning {
		return fmt.Errorf("%w: session %d is %s", ErrClosed, s.id, st)
	}
	_, err := s.transport.Write(data)
	return err
}

// Resize changes the pty geometry and records it on success.
func (s *Session) Resize(rows, cols int) error {
	if err := ValidateGeometry(rows, cols); err != nil {
		return err
	}
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if st := s.State(); st != StateRunning {
		return fmt.Errorf("%w: session %d is %s", ErrClosed, s.id, st)
	}
	if err := s.transport.Resize(rows, cols); err != nil {
		return err
	}
	s.mu.Lock()
	s.rows, s.cols = rows, cols
	s.mu.Unlock()
	return nil
}

// awaitIO waits up to d for an in-flight write or resize to finish. It
// reports false if one is still holding the transport.
func (s *Session) awaitIO(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for !s.ioMu.TryLock() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.ioMu.Unlock()
	return true
}

// markExited performs Running -> Exited. It reports whether this call made
// the transition.
func (s *Session) markExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	s.state = StateExited
	return true
}

// markClosed moves the session to Closed from any state and reports whether
// it was already closed.
func (s *Session) markClosed() (already bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	already = s.state == StateClosed
	s.state = StateClosed
	return already
}
