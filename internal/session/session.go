// Package session owns the per-thread accumulation of streamed fragments
// and fans them out to subscribers with replay.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusBuffering Status = "buffering" // Created, nothing streamed yet
	StatusStreaming Status = "streaming"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
)

// FragmentKind tags what a fragment carries.
type FragmentKind string

const (
	FragmentText FragmentKind = "text"
	FragmentTool FragmentKind = "tool"
	FragmentMeta FragmentKind = "metadata"
)

// Fragment is one atomic piece of streamed output.
type Fragment struct {
	Seq        int // Strictly increasing within a session
	Kind       FragmentKind
	Text       string
	ToolName   string
	ReceivedAt time.Time
}

// Observer receives session output. Callbacks are invoked in fragment order
// while the session is locked, so any two observers of the same session see
// identical prefixes. Observers must not call back into the session
// synchronously; enqueue and return.
type Observer interface {
	OnFragment(key string, f Fragment)
	OnStatusChange(key string, s Status)
}

// Session is the durable per-thread accumulation of streamed fragments.
// Shared by reference between the dashboard submit path and the thread view.
type Session struct {
	ProjectID string
	ThreadID  string
	Prompt    string

	mu            sync.Mutex
	fragments     []Fragment
	status        Status
	failureReason string
	observers     map[int]Observer
	nextObserver  int
}

// Key returns the session's registry key.
func (s *Session) Key() string { return Key(s.ProjectID, s.ThreadID) }

// Key builds the registry key for a (project, thread) pair.
func Key(projectID, threadID string) string {
	return projectID + ":" + threadID
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// FailureReason returns the failure cause for failed sessions.
func (s *Session) FailureReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureReason
}

// Fragments returns a copy of the fragment sequence so far.
func (s *Session) Fragments() []Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Fragment(nil), s.fragments...)
}

// Transcript concatenates all text fragments.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out string
	for _, f := range s.fragments {
		if f.Kind == FragmentText {
			out += f.Text
		}
	}
	return out
}

// Append adds a fragment and delivers it to subscribers in order.
// Terminal sessions reject appends.
func (s *Session) Append(f Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusFinished || s.status == StatusFailed {
		return fmt.Errorf("session %s is %s, no further fragments accepted", s.Key(), s.status)
	}
	f.Seq = len(s.fragments)
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now()
	}
	s.fragments = append(s.fragments, f)
	s.status = StatusStreaming

	for _, o := range s.observers {
		o.OnFragment(s.Key(), f)
	}
	return nil
}

// AppendText adds a text fragment.
func (s *Session) AppendText(text string) error {
	return s.Append(Fragment{Kind: FragmentText, Text: text})
}

// Finish marks the session terminal. Idempotent. Abort also lands here: an
// aborted turn leaves a finished session with whatever was written intact.
func (s *Session) Finish() {
	s.transition(StatusFinished, "")
}

// Fail marks the session terminal with a cause. Idempotent.
func (s *Session) Fail(reason string) {
	s.transition(StatusFailed, reason)
}

func (s *Session) transition(status Status, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusFinished || s.status == StatusFailed {
		return
	}
	s.status = status
	s.failureReason = reason

	for _, o := range s.observers {
		o.OnStatusChange(s.Key(), status)
	}
}

// subscribe registers an observer, replaying the existing fragments to it
// before it sees any live appends. Returns the unsubscribe handle, which is
// always safe to call.
func (s *Session) subscribe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observers == nil {
		s.observers = make(map[int]Observer)
	}
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = o

	for _, f := range s.fragments {
		o.OnFragment(s.Key(), f)
	}
	if s.status == StatusFinished || s.status == StatusFailed {
		o.OnStatusChange(s.Key(), s.status)
	}

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}
