// Package nav carries navigation intents from the submission path to the
// surface, and the one-shot handoff that lets a thread view resume an
// adaptive run it did not start.
package nav

import (
	"sync"
)

// Intent asks the surface to switch to a thread view. The transition
// replaces history rather than pushing, and must not reload the surface;
// the thread view mounts while the stream is still open and attaches to the
// same session by key.
type Intent struct {
	ProjectID       string
	ThreadID        string
	TriggerAdaptive bool // Thread view should start (or resume) the adaptive stream
}

// URL renders the intent the way the web surface encodes it.
func (i Intent) URL() string {
	u := "/" + i.ProjectID + "/" + i.ThreadID
	if i.TriggerAdaptive {
		u += "?trigger_adaptive=true"
	}
	return u
}

// Navigator is implemented by the surface. Navigate must return quickly;
// slow surfaces should enqueue and confirm asynchronously.
type Navigator interface {
	Navigate(intent Intent) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(Intent) error

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(i Intent) error { return f(i) }

// Recorder is a Navigator that records intents. Used by tests and by
// headless surfaces that poll instead of reacting.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
}

// Navigate implements Navigator.
func (r *Recorder) Navigate(i Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, i)
	return nil
}

// Intents returns a copy of everything navigated so far.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Intent(nil), r.intents...)
}
