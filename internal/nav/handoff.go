package nav

import (
	"sync"

	"github.com/iris-ai/iris-go/internal/attach"
)

// Handoff is the message a dashboard submit leaves for the thread view it
// navigated to. On the web surface this rides the trigger_adaptive query
// parameter plus session storage; here it is an explicit one-shot record.
type Handoff struct {
	Prompt               string
	AgentID              string
	ModelName            string
	EnableContextManager bool
	Attachments          []attach.Attachment
}

// HandoffRegistry stores at most one pending handoff per thread.
type HandoffRegistry struct {
	mu      sync.Mutex
	pending map[string]Handoff
}

// NewHandoffRegistry creates an empty registry.
func NewHandoffRegistry() *HandoffRegistry {
	return &HandoffRegistry{pending: make(map[string]Handoff)}
}

// Put stores the handoff for a thread, replacing any previous one.
func (r *HandoffRegistry) Put(threadID string, h Handoff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[threadID] = h
}

// Take consumes the handoff for a thread. The second return is false when
// nothing was pending; a second Take for the same thread always misses.
func (r *HandoffRegistry) Take(threadID string) (Handoff, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.pending[threadID]
	if ok {
		delete(r.pending, threadID)
	}
	return h, ok
}

// Drop discards any pending handoff for a thread.
func (r *HandoffRegistry) Drop(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, threadID)
}
