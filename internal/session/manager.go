package session

import (
	"sync"
)

// Manager owns all sessions for the process and the pre-navigation buffer.
//
// The submission controller may start receiving content before the server
// has named a thread. Those fragments land in an unkeyed buffer; the first
// CreateSession call for the turn adopts them as fragments 0..k, exactly
// once, before any subsequent appends.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	buffer   []Fragment
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// CreateParams names a new session.
type CreateParams struct {
	Prompt    string
	ProjectID string
	ThreadID  string

	// AdoptBuffer transfers the pre-navigation buffer into the new session.
	AdoptBuffer bool
}

// CreateSession returns the session for (projectID, threadID), creating it
// on first call. Idempotent: a second call with the same key returns the
// existing handle and never re-applies buffered content.
func (m *Manager) CreateSession(p CreateParams) *Session {
	m.mu.Lock()
	key := Key(p.ProjectID, p.ThreadID)
	if existing, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return existing
	}

	s := &Session{
		ProjectID: p.ProjectID,
		ThreadID:  p.ThreadID,
		Prompt:    p.Prompt,
		status:    StatusBuffering,
	}
	m.sessions[key] = s

	var adopted []Fragment
	if p.AdoptBuffer {
		adopted = m.buffer
		m.buffer = nil
	}
	m.mu.Unlock()

	for _, f := range adopted {
		s.Append(Fragment{Kind: f.Kind, Text: f.Text, ToolName: f.ToolName, ReceivedAt: f.ReceivedAt})
	}
	return s
}

// Get returns the session for a key, or nil.
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key]
}

// Buffer holds a fragment received before the turn's thread is known.
func (m *Manager) Buffer(f Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, f)
}

// BufferText holds a text fragment received before the thread is known.
func (m *Manager) BufferText(text string) {
	m.Buffer(Fragment{Kind: FragmentText, Text: text})
}

// DropBuffer discards any pre-navigation fragments. Called when a turn
// terminates without ever learning its thread.
func (m *Manager) DropBuffer() []Fragment {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := m.buffer
	m.buffer = nil
	return dropped
}

// Subscribe attaches an observer to a session by key, replaying the current
// fragment sequence first. Returns an unsubscribe func, or nil if no such
// session exists.
func (m *Manager) Subscribe(key string, o Observer) func() {
	s := m.Get(key)
	if s == nil {
		return nil
	}
	return s.subscribe(o)
}
