// Package chat is the submission controller and mode router: it accepts a
// user turn, routes it to the right backend transport, and drives the
// session and navigation side effects while the response streams in.
package chat

import (
	"context"
	"sync"

	"github.com/iris-ai/iris-go/internal/attach"
	"github.com/iris-ai/iris-go/internal/prefs"
	"github.com/iris-ai/iris-go/internal/protocol"
)

// Mode is the routing choice for a turn.
type Mode string

const (
	ModeQuick    Mode = "quick"    // Single-shot reply, no thread
	ModeAdaptive Mode = "adaptive" // Server classifies, maybe escalates to a run
	ModeExecute  Mode = "execute"  // Full agent run
)

// ModeFromPreference maps a persisted preference onto a routing mode.
func ModeFromPreference(p prefs.ModePreference) Mode {
	switch p {
	case prefs.ModeChat:
		return ModeQuick
	case prefs.ModeExecute:
		return ModeExecute
	default:
		return ModeAdaptive
	}
}

// PreferenceFromMode is the inverse of ModeFromPreference.
func PreferenceFromMode(m Mode) prefs.ModePreference {
	switch m {
	case ModeQuick:
		return prefs.ModeChat
	case ModeExecute:
		return prefs.ModeExecute
	default:
		return prefs.ModeAdaptive
	}
}

// Turn is one immutable user submission.
type Turn struct {
	Prompt         string
	Attachments    []attach.Attachment
	AgentID        string
	ModelName      string
	Mode           Mode
	ContextManager bool
}

// SubmitOptions are per-call overrides from the input surface.
type SubmitOptions struct {
	ModelName      string
	ContextManager bool
}

// FastResponse is the single-payload answer for quick turns and the
// classification result for adaptive turns.
type FastResponse struct {
	TurnID       string
	Mode         Mode
	Answer       string // Quick mode only
	UserMessage  string // The prompt that produced this response
	AutoEscalate bool   // Adaptive classified the turn as agent work
	Decision     *protocol.DecisionFrame
}

// Status is the turn lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusStreaming  Status = "streaming"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
)

// Hooks let the surrounding surface observe the turn without the controller
// knowing anything about rendering. All fields are optional.
type Hooks struct {
	OnStateChange  func(turnID string, s Status)
	OnFastResponse func(r FastResponse)
	OnClearInput   func() // Draft and pending attachments may be cleared
	OnError        func(turnID string, err error)
}

func (h Hooks) stateChange(turnID string, s Status) {
	if h.OnStateChange != nil {
		h.OnStateChange(turnID, s)
	}
}

func (h Hooks) fastResponse(r FastResponse) {
	if h.OnFastResponse != nil {
		h.OnFastResponse(r)
	}
}

func (h Hooks) clearInput() {
	if h.OnClearInput != nil {
		h.OnClearInput()
	}
}

func (h Hooks) error(turnID string, err error) {
	if h.OnError != nil {
		h.OnError(turnID, err)
	}
}

// InFlightHandle is the caller's grip on an active turn.
type InFlightHandle struct {
	TurnID string

	cancel context.CancelFunc
	done   chan struct{}

	abortOnce sync.Once

	mu  sync.Mutex
	err error
}

// Abort cancels the turn. Idempotent; by the time the turn's Done channel
// closes, no further content is delivered and the session is finished.
func (h *InFlightHandle) Abort() {
	h.abortOnce.Do(h.cancel)
}

// Done closes when the turn reaches a terminal state.
func (h *InFlightHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the turn terminates and returns its error, if any.
// Aborting is not an error.
func (h *InFlightHandle) Wait() error {
	<-h.done
	return h.Err()
}

// Err returns the terminal error, or nil while in flight.
func (h *InFlightHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *InFlightHandle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}
