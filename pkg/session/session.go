// Package session binds clipboards to editing sessions.
package session

import (
	"sort"
	"sync"
	"time"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/errors"
	"schemctl/pkg/geom"

	"github.com/google/uuid"
)

// Session holds at most one clipboard and its pending transform.
type Session struct {
	id      uuid.UUID
	created time.Time

	mu     sync.Mutex
	holder *clipboard.Holder
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Created() time.Time { return s.created }

// Holder returns the bound holder or an EmptyClipboard error.
func (s *Session) Holder() (*clipboard.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil || s.holder.Clipboard == nil {
		return nil, errors.EmptyClipboard()
	}
	return s.holder, nil
}

// Clipboard returns the bound clipboard without its pending transform.
func (s *Session) Clipboard() (*clipboard.Clipboard, error) {
	h, err := s.Holder()
	if err != nil {
		return nil, err
	}
	return h.Clipboard, nil
}

// SetClipboard binds h, discarding whatever was bound before. A nil h
// clears the session.
func (s *Session) SetClipboard(h *clipboard.Holder) {
	s.mu.Lock()
	s.holder = h
	s.mu.Unlock()
}

// Clear unbinds the clipboard.
func (s *Session) Clear() { s.SetClipboard(nil) }

// Transform returns the pending transform, identity when nothing is bound.
func (s *Session) Transform() geom.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil {
		return geom.Identity()
	}
	return s.holder.Transform
}

// Apply appends t to the pending transform.
func (s *Session) Apply(t geom.Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil || s.holder.Clipboard == nil {
		return errors.EmptyClipboard()
	}
	s.holder.Transform = s.holder.Transform.Combine(t)
	return nil
}

// SetTransform replaces the pending transform.
func (s *Session) SetTransform(t geom.Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil || s.holder.Clipboard == nil {
		return errors.EmptyClipboard()
	}
	s.holder.Transform = t
	return nil
}

// Reset drops the pending transform.
func (s *Session) Reset() error {
	return s.SetTransform(geom.Identity())
}

// Manager tracks live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[uuid.UUID]*Session), now: time.Now}
}

// Create starts an empty session.
func (m *Manager) Create() *Session {
	s := &Session{id: uuid.New(), created: m.now()}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Lookup parses id and returns the matching session.
func (m *Manager) Lookup(id string) (*Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.ValidationError("invalid session id: " + id)
	}
	s, ok := m.Get(parsed)
	if !ok {
		return nil, errors.ValidationError("no such session: " + id)
	}
	return s, nil
}

// Close ends a session and drops its clipboard.
func (m *Manager) Close(id uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Clear()
	}
	return ok
}

// List returns the live sessions oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].created.Equal(out[j].created) {
			return out[i].created.Before(out[j].created)
		}
		return out[i].id.String() < out[j].id.String()
	})
	return out
}
