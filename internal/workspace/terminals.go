package workspace

import (
	"fmt"
	"sync"
)

// TerminalStore holds the terminal sessions and the active terminal id. It
// knows nothing about PTYs, tree nodes, or layouts; those are tied together
// by Workspace (composite.go).
type TerminalStore struct {
	mu       sync.Mutex
	sessions map[string]*TerminalSession
	// order preserves insertion order so RemoveSession's last-remaining-id
	// fallback is well-defined; a plain Go map has no iteration order
	// guarantee.
	order   []string
	active  string
	counter int
}

// ErrUnknownTerminal is returned by operations on a nonexistent session id.
var ErrUnknownTerminal = fmt.Errorf("workspace: unknown terminal id")

func newTerminalStore() *TerminalStore {
	return &TerminalStore{sessions: make(map[string]*TerminalSession)}
}

// AddSession auto-titles as "Terminal <N>" using a monotonically increasing
// counter when title is empty, and makes the new session active.
func (s *TerminalStore) AddSession(id, title, cwd string) *TerminalSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	if title == "" {
		title = fmt.Sprintf("Terminal %d", s.counter)
	}
	sess := &TerminalSession{ID: id, Title: title, Status: StatusRunning, Cwd: cwd}
	s.sessions[id] = sess
	s.order = append(s.order, id)
	s.active = id
	return sess
}

// RemoveSession deletes a session. If it was active, the active id becomes
// the last remaining id in insertion order, or empty if none remain.
func (s *TerminalStore) RemoveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.active == id {
		if len(s.order) > 0 {
			s.active = s.order[len(s.order)-1]
		} else {
			s.active = ""
		}
	}
}

func (s *TerminalStore) Get(id string) (*TerminalSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *TerminalStore) Exists(id string) bool {
	_, ok := s.Get(id)
	return ok
}

func (s *TerminalStore) ActiveTerminalID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActiveTerminal sets the active id; id == "" clears it. A non-empty id
// must identify an existing session.
func (s *TerminalStore) SetActiveTerminal(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := s.sessions[id]; !ok {
			return ErrUnknownTerminal
		}
	}
	s.active = id
	return nil
}

func (s *TerminalStore) UpdateStatus(id string, status TerminalStatus, exitCode *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrUnknownTerminal
	}
	sess.Status = status
	sess.ExitCode = exitCode
	return nil
}

func (s *TerminalStore) UpdateTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrUnknownTerminal
	}
	sess.Title = title
	return nil
}

func (s *TerminalStore) UpdateNotes(id, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrUnknownTerminal
	}
	sess.Notes = notes
	return nil
}

func (s *TerminalStore) UpdateCwd(id, cwd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Cwd = cwd
	}
}

// Snapshot returns a shallow copy of all sessions, for persistence and
// read-only listing.
func (s *TerminalStore) Snapshot() map[string]TerminalSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TerminalSession, len(s.sessions))
	for id, sess := range s.sessions {
		out[id] = *sess
	}
	return out
}
