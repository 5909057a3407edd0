package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/iris-ai/iris-go/internal/api"
	"github.com/iris-ai/iris-go/internal/attach"
	"github.com/iris-ai/iris-go/internal/history"
	"github.com/iris-ai/iris-go/internal/nav"
	"github.com/iris-ai/iris-go/internal/prefs"
	"github.com/iris-ai/iris-go/internal/protocol"
	"github.com/iris-ai/iris-go/internal/session"
)

// Deps wires the controller to its collaborators. API, Sessions and
// Navigator are required; the rest are optional.
type Deps struct {
	API       *api.Client
	Sessions  *session.Manager
	Navigator nav.Navigator
	Handoffs  *nav.HandoffRegistry
	Prefs     *prefs.Store
	History   *history.Archive
	Hooks     Hooks

	// DefaultModel is used when a turn names no model.
	DefaultModel string
}

// Controller accepts user turns and drives them to completion. At most one
// turn is in flight at a time; a second Submit while one is active fails
// with ErrBusy.
type Controller struct {
	deps Deps

	mu       sync.Mutex
	inflight *InFlightHandle
}

// NewController creates a submission controller.
func NewController(deps Deps) *Controller {
	if deps.Handoffs == nil {
		deps.Handoffs = nav.NewHandoffRegistry()
	}
	return &Controller{deps: deps}
}

// InFlight reports whether a turn is currently active.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Submit validates a turn and starts routing it. Validation failures come
// back synchronously; everything after that surfaces through the handle and
// the hooks. The returned handle owns abort.
func (c *Controller) Submit(ctx context.Context, turn Turn, opts SubmitOptions) (*InFlightHandle, error) {
	if opts.ModelName != "" {
		turn.ModelName = opts.ModelName
	}
	if opts.ContextManager {
		turn.ContextManager = true
	}
	if turn.Mode == "" {
		turn.Mode = c.defaultMode(ctx)
	}
	if turn.ModelName == "" {
		turn.ModelName = c.deps.DefaultModel
	}
	attach.Normalize(turn.Attachments)

	// A turn with no prompt needs at least one attachment that is actually
	// ready to send; a still-pending upload is not submittable.
	if strings.TrimSpace(turn.Prompt) == "" && !attach.HasUploaded(turn.Attachments) {
		return nil, &SubmitError{Kind: ErrEmptyInput}
	}
	// Quick and adaptive requests inline attachments as base64; the backend
	// only accepts images there. Execute stages files into the sandbox and
	// takes anything.
	if turn.Mode != ModeExecute {
		if names := attach.NonImageNames(turn.Attachments); len(names) > 0 {
			return nil, &SubmitError{Kind: ErrUnsupportedAttachment, AttachmentNames: names}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &InFlightHandle{
		TurnID: protocol.NewTurnID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.inflight != nil {
		c.mu.Unlock()
		cancel()
		return nil, &SubmitError{Kind: ErrBusy}
	}
	c.inflight = handle
	c.mu.Unlock()

	c.deps.Hooks.stateChange(handle.TurnID, StatusSubmitting)

	go c.run(runCtx, handle, turn)
	return handle, nil
}

func (c *Controller) defaultMode(ctx context.Context) Mode {
	if c.deps.Prefs == nil {
		return ModeAdaptive
	}
	return ModeFromPreference(c.deps.Prefs.Mode(ctx))
}

// SetPreferredMode records a mode change made on the surface so later
// launches and peer surfaces default to it. Submitting a turn never writes
// the preference; only an explicit mode selection does. Best effort: a
// write failure must not block submission, so callers may ignore the error.
func (c *Controller) SetPreferredMode(ctx context.Context, m Mode) error {
	if c.deps.Prefs == nil {
		return nil
	}
	return c.deps.Prefs.SetMode(ctx, PreferenceFromMode(m))
}

func (c *Controller) run(ctx context.Context, handle *InFlightHandle, turn Turn) {
	at := &activeTurn{c: c, handle: handle, turn: turn}
	err := at.dispatch(ctx)
	at.navWG.Wait()

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		// Aborted. Sessions were finished inside the router; whatever never
		// reached a session is discarded.
		c.deps.Sessions.DropBuffer()
		c.deps.Hooks.stateChange(handle.TurnID, StatusAborted)
	case err != nil:
		se := classifyError(err)
		handle.setErr(se)
		c.deps.Sessions.DropBuffer()
		c.deps.Hooks.stateChange(handle.TurnID, StatusFailed)
		c.deps.Hooks.error(handle.TurnID, se)
	default:
		c.deps.Hooks.stateChange(handle.TurnID, StatusFinished)
	}
	close(handle.done)
}

// archive records a terminal session. Best effort.
func (c *Controller) archive(sess *session.Session, mode Mode) {
	if c.deps.History == nil || sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := history.ThreadRecord{
		ThreadID:   sess.ThreadID,
		ProjectID:  sess.ProjectID,
		Prompt:     sess.Prompt,
		Transcript: sess.Transcript(),
		Mode:       string(mode),
		CreatedAt:  time.Now().Unix(),
	}
	if err := c.deps.History.Save(ctx, rec); err != nil {
		log.Printf("chat: archive thread %s: %v", sess.ThreadID, err)
	}
}
