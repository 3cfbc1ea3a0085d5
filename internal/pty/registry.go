package pty

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry holds live sessions keyed by id and allocates ids. The mutex is
// held only for map edits, never across I/O.
type Registry struct {
	nextID atomic.Uint64

	mu       sync.Mutex
	sessions map[ID]*Session
	sealed   bool
}

// NewRegistry returns an empty registry whose first id is 1.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ID]*Session)}
}

// NextID allocates a fresh id.
func (r *Registry) NextID() ID {
	return ID(r.nextID.Add(1))
}

// Add registers a session. It fails with ErrManagerClosed once the registry
// is sealed.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrManagerClosed
	}
	r.sessions[s.id] = s
	return nil
}

// Get retrieves a session by id.
func (r *Registry) Get(id ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Take removes a session and marks it Closed in the same critical section,
// so only one caller ever owns its teardown.
func (r *Registry) Take(id ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	s.markClosed()
	return s, true
}

// TakeAll removes and closes every session. With seal set, later Adds fail.
func (r *Registry) TakeAll(seal bool) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seal {
		r.sealed = true
	}
	taken := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		delete(r.sessions, id)
		s.markClosed()
		taken = append(taken, s)
	}
	return taken
}

// List returns all sessions ordered by id.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	return sessions
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sealed reports whether the registry refuses new sessions.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}
