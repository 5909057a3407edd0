package attach

import "sync"

// Queue is the observable upload-state map shared with the input surface.
// The submission controller reads it but never mutates it directly; the
// upload collaborator owns the writes.
type Queue struct {
	mu       sync.Mutex
	states   map[string]UploadState
	onChange []func(path string, state UploadState)
}

// NewQueue creates an empty upload queue.
func NewQueue() *Queue {
	return &Queue{states: make(map[string]UploadState)}
}

// Set records the upload state for a path and notifies observers.
func (q *Queue) Set(path string, state UploadState) {
	q.mu.Lock()
	q.states[path] = state
	observers := append([]func(string, UploadState){}, q.onChange...)
	q.mu.Unlock()

	for _, fn := range observers {
		fn(path, state)
	}
}

// Get returns the state for a path. Unknown paths are pending.
func (q *Queue) Get(path string) UploadState {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.states[path]; ok {
		return s
	}
	return StatePending
}

// Remove drops a path from the queue.
func (q *Queue) Remove(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.states, path)
}

// Snapshot returns a copy of the current state map.
func (q *Queue) Snapshot() map[string]UploadState {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]UploadState, len(q.states))
	for k, v := range q.states {
		out[k] = v
	}
	return out
}

// OnChange registers an observer for state transitions.
func (q *Queue) OnChange(fn func(path string, state UploadState)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = append(q.onChange, fn)
}
