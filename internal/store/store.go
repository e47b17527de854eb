// Package store keeps in-memory session records and a capped per-session
// event log. The log exists so a failure's state-machine trajectory can be
// reconstructed; audio frames are never persisted here.
package store

import (
	"errors"
	"sync"
	"time"
)

var ErrSessionExists = errors.New("session already exists")

// Session is the runtime record backing resumption across reconnects.
type Session struct {
	ID        string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	State     string    `json:"state"`
}

// Event is one entry of the session trajectory log.
type Event struct {
	Type      string         `json:"type"`
	Ts        time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	events   map[string][]Event
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		events:   make(map[string][]Event),
	}
}

func (s *Store) CreateSession(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	s.sessions[sess.ID] = sess
	s.events[sess.ID] = []Event{}
	return nil
}

func (s *Store) GetSession(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Touch refreshes the last-seen time, keeping the record resumable.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastSeen = time.Now().UTC()
	}
	s.mu.Unlock()
}

// SetState mirrors the state machine's view into the record.
func (s *Store) SetState(id, state string) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.State = state
		sess.LastSeen = time.Now().UTC()
	}
	s.mu.Unlock()
}

// Remove drops a closed session and its log.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	delete(s.events, id)
	s.mu.Unlock()
}

// Resumable reports whether a session can be resumed: it exists and was
// seen within the timeout window.
func (s *Store) Resumable(id string, timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	return time.Since(sess.LastSeen) <= timeout
}

// AppendEvent records one trajectory entry. The log is capped per session;
// on overflow the oldest entries give way to a single truncation marker so
// the total stays bounded.
func (s *Store) AppendEvent(sessionID, component, typ string, payload map[string]any) Event {
	evt := Event{Type: typ, Ts: time.Now().UTC(), Component: component, Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[sessionID] = append(s.events[sessionID], evt)
	const maxEvents = 200
	if l := len(s.events[sessionID]); l > maxEvents {
		keep := maxEvents - 1
		dropped := l - keep
		s.events[sessionID] = append([]Event(nil), s.events[sessionID][l-keep:]...)
		warn := Event{
			Type: "events_truncated", Ts: time.Now().UTC(), Component: "store",
			Payload: map[string]any{"dropped": dropped, "kept": keep},
		}
		s.events[sessionID] = append(s.events[sessionID], warn)
	}
	return evt
}

func (s *Store) ListEvents(sessionID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

func (s *Store) ListSessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}

// Expired returns the IDs of sessions not seen within timeout.
func (s *Store) Expired(timeout time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, sess := range s.sessions {
		if time.Since(sess.LastSeen) > timeout {
			out = append(out, id)
		}
	}
	return out
}
