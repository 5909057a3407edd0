package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iris-ai/iris-go/internal/api"
	"github.com/iris-ai/iris-go/internal/attach"
	"github.com/iris-ai/iris-go/internal/nav"
	"github.com/iris-ai/iris-go/internal/protocol"
	"github.com/iris-ai/iris-go/internal/session"
	"github.com/iris-ai/iris-go/internal/stream"
)

// activeTurn is the per-turn routing state. One goroutine drives it; the
// once guards exist because metadata, decision and navigation may each
// arrive on more than one code path but must take effect at most once.
type activeTurn struct {
	c      *Controller
	handle *InFlightHandle
	turn   Turn

	navOnce    sync.Once
	navWG      sync.WaitGroup
	streamOnce sync.Once
	clearOnce  sync.Once
	fastOnce   sync.Once
}

func (at *activeTurn) dispatch(ctx context.Context) error {
	switch at.turn.Mode {
	case ModeQuick:
		return at.quick(ctx)
	case ModeExecute:
		return at.execute(ctx)
	default:
		return at.adaptive(ctx)
	}
}

// quick asks for a single-shot answer. No thread is created and no
// navigation happens; the answer goes out as a FastResponse.
func (at *activeTurn) quick(ctx context.Context) error {
	req := api.QuickRequest{
		Message: at.turn.Prompt,
		Model:   at.turn.ModelName,
	}
	for _, a := range at.turn.Attachments {
		data, err := attach.InlineBase64(ctx, a)
		if err != nil {
			return fmt.Errorf("inline attachment %s: %w", a.Name, err)
		}
		req.Attachments = append(req.Attachments, api.QuickAttachment{
			Name:     a.Name,
			MimeType: a.MimeType,
			Data:     data,
		})
	}

	answer, err := at.c.deps.API.Quick(ctx, req)
	if err != nil {
		return err
	}
	at.clearInput()
	at.fastResponse(FastResponse{
		TurnID:      at.handle.TurnID,
		Mode:        ModeQuick,
		Answer:      answer,
		UserMessage: at.turn.Prompt,
	})
	return nil
}

// execute opens a streaming agent run. The server mints the thread and
// announces it in the metadata frame; everything received before that lands
// in the pre-navigation buffer.
func (at *activeTurn) execute(ctx context.Context) error {
	files, err := toFileParts(ctx, at.turn.Attachments)
	if err != nil {
		return err
	}
	reader, err := at.c.deps.API.StartAgent(ctx, api.AgentRequest{
		Prompt:               at.turn.Prompt,
		AgentID:              at.turn.AgentID,
		ModelName:            at.turn.ModelName,
		EnableContextManager: at.turn.ContextManager,
		Files:                files,
	})
	if err != nil {
		return err
	}
	return at.consume(ctx, reader, nil)
}

// adaptive runs in two phases. Phase A creates the thread without streaming
// so the client can navigate immediately; Phase B opens the stream against
// the thread and carries the classification decision.
func (at *activeTurn) adaptive(ctx context.Context) error {
	files, err := toFileParts(ctx, at.turn.Attachments)
	if err != nil {
		return err
	}
	ref, err := at.c.deps.API.InitiateThread(ctx, api.AgentRequest{
		Prompt:               at.turn.Prompt,
		AgentID:              at.turn.AgentID,
		ModelName:            at.turn.ModelName,
		ChatMode:             "adaptive",
		EnableContextManager: at.turn.ContextManager,
		Files:                files,
	})
	if err != nil {
		return err
	}

	sess := at.c.deps.Sessions.CreateSession(session.CreateParams{
		Prompt:      at.turn.Prompt,
		ProjectID:   ref.ProjectID,
		ThreadID:    ref.ThreadID,
		AdoptBuffer: true,
	})
	at.c.deps.Handoffs.Put(ref.ThreadID, nav.Handoff{
		Prompt:               at.turn.Prompt,
		AgentID:              at.turn.AgentID,
		ModelName:            at.turn.ModelName,
		EnableContextManager: at.turn.ContextManager,
		Attachments:          at.turn.Attachments,
	})
	at.stashPendingPrompt(at.turn.Prompt)
	at.clearInput()
	at.navigate(ctx, nav.Intent{
		ProjectID:       ref.ProjectID,
		ThreadID:        ref.ThreadID,
		TriggerAdaptive: true,
	})

	// The thread view consumes the handoff when it mounts first. Here the
	// controller keeps driving the run itself; either way the handoff is
	// taken exactly once, so the stream is opened exactly once.
	h, ok := at.c.deps.Handoffs.Take(ref.ThreadID)
	if !ok {
		return nil
	}
	handoffFiles, err := toFileParts(ctx, h.Attachments)
	if err != nil {
		sess.Fail(err.Error())
		return err
	}
	reader, err := at.c.deps.API.StartThreadStream(ctx, ref.ThreadID, api.AgentRequest{
		Prompt:               h.Prompt,
		AgentID:              h.AgentID,
		ModelName:            h.ModelName,
		ChatMode:             "adaptive",
		EnableContextManager: h.EnableContextManager,
		Files:                handoffFiles,
	})
	if err != nil {
		if ctx.Err() == nil {
			sess.Fail(err.Error())
		}
		return err
	}
	at.dropPendingPrompt()
	return at.consume(ctx, reader, sess)
}

// consume drains a frame stream into the session layer. pre is non-nil when
// the session already exists (adaptive Phase B); otherwise the metadata
// frame creates it and triggers navigation.
func (at *activeTurn) consume(ctx context.Context, reader *stream.Reader, pre *session.Session) error {
	sess := pre
	frames, errCh := reader.Frames(ctx)
	var streamErr error
	sawDone := false

	for frames != nil || errCh != nil {
		select {
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			at.markStreaming()
			switch frame := f.(type) {
			case protocol.MetadataFrame:
				if sess == nil {
					sess = at.c.deps.Sessions.CreateSession(session.CreateParams{
						Prompt:      at.turn.Prompt,
						ProjectID:   frame.ProjectID,
						ThreadID:    frame.ThreadID,
						AdoptBuffer: true,
					})
					at.clearInput()
					at.navigate(ctx, nav.Intent{
						ProjectID: frame.ProjectID,
						ThreadID:  frame.ThreadID,
					})
				}
			case protocol.ContentFrame:
				at.deliver(sess, session.Fragment{Kind: session.FragmentText, Text: frame.Text})
			case protocol.ToolFrame:
				at.deliver(sess, session.Fragment{Kind: session.FragmentTool, ToolName: frame.Name})
			case protocol.DecisionFrame:
				at.fastResponse(FastResponse{
					TurnID:       at.handle.TurnID,
					Mode:         at.turn.Mode,
					UserMessage:  at.turn.Prompt,
					AutoEscalate: frame.State == protocol.DecisionAgentNeeded,
					Decision:     &frame,
				})
			case protocol.DoneFrame:
				sawDone = true
			case protocol.ErrorFrame:
				msg := frame.Message
				if frame.Code != "" {
					msg = frame.Code + ": " + msg
				}
				if sess != nil {
					sess.Fail(msg)
				}
				streamErr = fmt.Errorf("run failed: %s", msg)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			// An error frame followed by EOF also surfaces here as an
			// unexpected EOF; keep the first, more specific cause.
			if streamErr == nil {
				streamErr = err
			}
		}
	}

	if ctx.Err() != nil {
		// Abort. The run keeps going server-side; locally the session keeps
		// what it has and closes cleanly.
		if sess != nil {
			sess.Finish()
			at.c.archive(sess, at.turn.Mode)
		}
		return ctx.Err()
	}
	if streamErr != nil {
		if sess != nil && sess.Status() != session.StatusFailed {
			sess.Fail(streamErr.Error())
		}
		return streamErr
	}
	if !sawDone {
		err := fmt.Errorf("stream ended without done frame")
		if sess != nil {
			sess.Fail(err.Error())
		}
		return err
	}

	if sess == nil {
		// Done arrived before any metadata: the run produced output but the
		// server never named a thread. Keep it as a local-only session; no
		// navigation.
		sess = at.c.deps.Sessions.CreateSession(session.CreateParams{
			Prompt:      at.turn.Prompt,
			ProjectID:   "local",
			ThreadID:    at.handle.TurnID,
			AdoptBuffer: true,
		})
		at.clearInput()
	}
	sess.Finish()
	at.c.archive(sess, at.turn.Mode)
	return nil
}

// deliver routes a fragment to the session, or to the pre-navigation buffer
// when no session exists yet.
func (at *activeTurn) deliver(sess *session.Session, f session.Fragment) {
	if sess == nil {
		at.c.deps.Sessions.Buffer(f)
		return
	}
	if err := sess.Append(f); err != nil {
		log.Printf("chat: drop fragment for %s: %v", sess.Key(), err)
	}
}

// navigate fires the intent at most once per turn, off the consume loop so
// a slow surface cannot stall frame delivery. An abort that lands before
// the goroutine runs suppresses the intent.
func (at *activeTurn) navigate(ctx context.Context, intent nav.Intent) {
	at.navOnce.Do(func() {
		at.navWG.Add(1)
		go func() {
			defer at.navWG.Done()
			if ctx.Err() != nil {
				return
			}
			if err := at.c.deps.Navigator.Navigate(intent); err != nil {
				log.Printf("chat: navigate to %s: %v", intent.URL(), err)
			}
		}()
	})
}

func (at *activeTurn) markStreaming() {
	at.streamOnce.Do(func() {
		at.c.deps.Hooks.stateChange(at.handle.TurnID, StatusStreaming)
	})
}

func (at *activeTurn) clearInput() {
	at.clearOnce.Do(func() {
		at.c.deps.Hooks.clearInput()
	})
}

func (at *activeTurn) fastResponse(r FastResponse) {
	at.fastOnce.Do(func() {
		at.c.deps.Hooks.fastResponse(r)
	})
}

// stashPendingPrompt persists the prompt between adaptive phases so a
// process restart can resume the handoff. Cleared once Phase B is open.
func (at *activeTurn) stashPendingPrompt(prompt string) {
	if at.c.deps.Prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := at.c.deps.Prefs.SetPendingPrompt(ctx, prompt); err != nil {
		log.Printf("chat: stash pending prompt: %v", err)
	}
}

func (at *activeTurn) dropPendingPrompt() {
	if at.c.deps.Prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := at.c.deps.Prefs.TakePendingPrompt(ctx); err != nil {
		log.Printf("chat: clear pending prompt: %v", err)
	}
}

// toFileParts reads staged attachments into multipart payloads. Inline data
// wins over a local path.
func toFileParts(ctx context.Context, atts []attach.Attachment) ([]api.FilePart, error) {
	var parts []api.FilePart
	for _, a := range atts {
		data, err := attach.Bytes(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", a.Name, err)
		}
		parts = append(parts, api.FilePart{Name: a.Name, MimeType: a.MimeType, Data: data})
	}
	return parts, nil
}
