package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iris-ai/iris-go/internal/api"
	"github.com/iris-ai/iris-go/internal/attach"
	"github.com/iris-ai/iris-go/internal/nav"
	"github.com/iris-ai/iris-go/internal/session"
)

type hookLog struct {
	mu       sync.Mutex
	statuses []Status
	fast     []FastResponse
	clears   int
	errs     []error
}

func (l *hookLog) hooks() Hooks {
	return Hooks{
		OnStateChange: func(_ string, s Status) {
			l.mu.Lock()
			l.statuses = append(l.statuses, s)
			l.mu.Unlock()
		},
		OnFastResponse: func(r FastResponse) {
			l.mu.Lock()
			l.fast = append(l.fast, r)
			l.mu.Unlock()
		},
		OnClearInput: func() {
			l.mu.Lock()
			l.clears++
			l.mu.Unlock()
		},
		OnError: func(_ string, err error) {
			l.mu.Lock()
			l.errs = append(l.errs, err)
			l.mu.Unlock()
		},
	}
}

func (l *hookLog) lastStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.statuses) == 0 {
		return StatusIdle
	}
	return l.statuses[len(l.statuses)-1]
}

func (l *hookLog) fastResponses() []FastResponse {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FastResponse(nil), l.fast...)
}

func (l *hookLog) clearCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clears
}

func newTestController(t *testing.T, handler http.Handler) (*Controller, *session.Manager, *nav.Recorder, *hookLog) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sessions := session.NewManager()
	rec := &nav.Recorder{}
	logged := &hookLog{}
	ctrl := NewController(Deps{
		API:          api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}),
		Sessions:     sessions,
		Navigator:    rec,
		Hooks:        logged.hooks(),
		DefaultModel: "iris-default",
	})
	return ctrl, sessions, rec, logged
}

func writeLines(w http.ResponseWriter, lines ...string) {
	f, _ := w.(http.Flusher)
	for _, line := range lines {
		io.WriteString(w, line+"\n")
		if f != nil {
			f.Flush()
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQuickTurn(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/quick" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{"response":"2+2 is 4"}`)
	})
	ctrl, _, rec, logged := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{Prompt: "what is 2+2", Mode: ModeQuick}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	fast := logged.fastResponses()
	if len(fast) != 1 {
		t.Fatalf("got %d fast responses, want 1", len(fast))
	}
	if fast[0].Answer != "2+2 is 4" || fast[0].Mode != ModeQuick || fast[0].UserMessage != "what is 2+2" {
		t.Errorf("unexpected fast response: %+v", fast[0])
	}
	if fast[0].AutoEscalate {
		t.Error("quick turn must never auto-escalate")
	}
	if got := rec.Intents(); len(got) != 0 {
		t.Errorf("quick turn navigated: %v", got)
	}
	if logged.lastStatus() != StatusFinished {
		t.Errorf("last status = %s, want finished", logged.lastStatus())
	}
	if logged.clearCount() != 1 {
		t.Errorf("clear count = %d, want 1", logged.clearCount())
	}
}

func TestExecuteStreamsIntoSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/agent/initiate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeLines(w,
			`{"type":"metadata","thread_id":"t1","project_id":"p1"}`,
			`{"type":"content","text":"Hi"}`,
			`{"type":"content","text":" there"}`,
			`{"type":"done"}`,
		)
	})
	ctrl, sessions, rec, logged := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{Prompt: "greet me", Mode: ModeExecute}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	intents := rec.Intents()
	if len(intents) != 1 {
		t.Fatalf("got %d navigations, want 1", len(intents))
	}
	if got := intents[0].URL(); got != "/p1/t1" {
		t.Errorf("navigated to %s, want /p1/t1", got)
	}

	sess := sessions.Get(session.Key("p1", "t1"))
	if sess == nil {
		t.Fatal("session p1:t1 not created")
	}
	frags := sess.Fragments()
	if len(frags) != 2 || frags[0].Text != "Hi" || frags[1].Text != " there" {
		t.Fatalf("unexpected fragments: %+v", frags)
	}
	if sess.Transcript() != "Hi there" {
		t.Errorf("transcript = %q", sess.Transcript())
	}
	if sess.Status() != session.StatusFinished {
		t.Errorf("session status = %s, want finished", sess.Status())
	}
	if logged.lastStatus() != StatusFinished {
		t.Errorf("last status = %s, want finished", logged.lastStatus())
	}
}

func TestAbortMidStream(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLines(w,
			`{"type":"metadata","thread_id":"t1","project_id":"p1"}`,
			`{"type":"content","text":"partial"}`,
		)
		<-r.Context().Done()
	})
	ctrl, sessions, rec, logged := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{Prompt: "long task", Mode: ModeExecute}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "first fragment", func() bool {
		sess := sessions.Get(session.Key("p1", "t1"))
		return sess != nil && len(sess.Fragments()) >= 1
	})

	handle.Abort()
	handle.Abort() // Idempotent
	if err := handle.Wait(); err != nil {
		t.Fatalf("abort surfaced as error: %v", err)
	}

	sess := sessions.Get(session.Key("p1", "t1"))
	if sess.Status() != session.StatusFinished {
		t.Errorf("aborted session status = %s, want finished", sess.Status())
	}
	frags := sess.Fragments()
	if len(frags) != 1 || frags[0].Text != "partial" {
		t.Errorf("unexpected fragments after abort: %+v", frags)
	}
	if logged.lastStatus() != StatusAborted {
		t.Errorf("last status = %s, want aborted", logged.lastStatus())
	}
	if got := rec.Intents(); len(got) != 1 {
		t.Errorf("got %d navigations, want exactly 1", len(got))
	}
}

func TestAdaptiveEscalates(t *testing.T) {
	var sawInitiate, sawStream atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/agent/initiate":
			sawInitiate.Store(true)
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse initiate form: %v", err)
			}
			if got := r.FormValue("chat_mode"); got != "adaptive" {
				t.Errorf("chat_mode = %q, want adaptive", got)
			}
			if got := r.FormValue("stream"); got != "false" {
				t.Errorf("initiate stream = %q, want false", got)
			}
			io.WriteString(w, `{"thread_id":"t9","project_id":"p4"}`)
		case "/api/thread/t9/agent/stream":
			sawStream.Store(true)
			writeLines(w,
				`{"type":"decision","state":"agent_needed","reasoning":"multi-file change"}`,
				`{"type":"content","text":"Working on it"}`,
				`{"type":"done"}`,
			)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctrl, sessions, rec, logged := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{Prompt: "refactor the parser", Mode: ModeAdaptive}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if !sawInitiate.Load() || !sawStream.Load() {
		t.Fatal("expected both adaptive phases to hit the server")
	}

	intents := rec.Intents()
	if len(intents) != 1 {
		t.Fatalf("got %d navigations, want 1", len(intents))
	}
	if got := intents[0].URL(); got != "/p4/t9?trigger_adaptive=true" {
		t.Errorf("navigated to %s", got)
	}

	fast := logged.fastResponses()
	if len(fast) != 1 {
		t.Fatalf("got %d fast responses, want 1", len(fast))
	}
	if !fast[0].AutoEscalate {
		t.Error("agent_needed decision must auto-escalate")
	}
	if fast[0].Decision == nil || fast[0].Decision.Reasoning != "multi-file change" {
		t.Errorf("unexpected decision: %+v", fast[0].Decision)
	}

	sess := sessions.Get(session.Key("p4", "t9"))
	if sess == nil {
		t.Fatal("session p4:t9 not created")
	}
	if sess.Transcript() != "Working on it" {
		t.Errorf("transcript = %q", sess.Transcript())
	}
	if sess.Status() != session.StatusFinished {
		t.Errorf("session status = %s", sess.Status())
	}
}

func TestAdaptiveCarriesAttachments(t *testing.T) {
	checkFiles := func(r *http.Request, phase string) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("%s: parse form: %v", phase, err)
			return
		}
		parts := r.MultipartForm.File["files[]"]
		if len(parts) != 1 {
			t.Errorf("%s: got %d file parts, want 1", phase, len(parts))
			return
		}
		if parts[0].Filename != "cat.png" {
			t.Errorf("%s: filename = %q, want cat.png", phase, parts[0].Filename)
		}
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/agent/initiate":
			checkFiles(r, "phase A")
			io.WriteString(w, `{"thread_id":"t5","project_id":"p5"}`)
		case "/api/thread/t5/agent/stream":
			checkFiles(r, "phase B")
			writeLines(w,
				`{"type":"decision","state":"chat_answer"}`,
				`{"type":"content","text":"ok"}`,
				`{"type":"done"}`,
			)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctrl, _, _, _ := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{
		Prompt: "what is in this picture",
		Mode:   ModeAdaptive,
		Attachments: []attach.Attachment{
			{Name: "cat.png", MimeType: "image/png", Data: []byte("png-bytes"), State: attach.StateUploaded},
		},
	}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
}

func TestUnsupportedAttachmentRejectedLocally(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})
	ctrl, _, _, _ := newTestController(t, handler)

	_, err := ctrl.Submit(context.Background(), Turn{
		Mode: ModeQuick,
		Attachments: []attach.Attachment{
			{Name: "report.pdf", MimeType: "application/pdf", Data: []byte("%PDF")},
		},
	}, SubmitOptions{})

	var se *SubmitError
	if !errors.As(err, &se) || se.Kind != ErrUnsupportedAttachment {
		t.Fatalf("err = %v, want unsupported_attachment", err)
	}
	if len(se.AttachmentNames) != 1 || se.AttachmentNames[0] != "report.pdf" {
		t.Errorf("attachment names = %v", se.AttachmentNames)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("validation failure reached the network: %d requests", n)
	}
}

func TestEmptyInputRejected(t *testing.T) {
	ctrl, _, _, _ := newTestController(t, http.NotFoundHandler())

	tests := []struct {
		name string
		turn Turn
	}{
		{"blank prompt, no attachments", Turn{Prompt: "   ", Mode: ModeQuick}},
		{"no prompt, attachment still uploading", Turn{
			Mode: ModeQuick,
			Attachments: []attach.Attachment{
				{Name: "slow.png", MimeType: "image/png", LocalPath: "/tmp/slow.png", State: attach.StateUploading},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctrl.Submit(context.Background(), tt.turn, SubmitOptions{})
			var se *SubmitError
			if !errors.As(err, &se) || se.Kind != ErrEmptyInput {
				t.Fatalf("err = %v, want empty_input", err)
			}
		})
	}
}

func TestConcurrentRunLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"running_count":2,"running_thread_ids":["t1","t2"]}`)
	})
	ctrl, _, rec, logged := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{Prompt: "one more run", Mode: ModeExecute}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	err = handle.Wait()

	var se *SubmitError
	if !errors.As(err, &se) || se.Kind != ErrConcurrentRunLimit {
		t.Fatalf("err = %v, want concurrent_run_limit", err)
	}
	if se.RunningCount != 2 || len(se.RunningThreadIDs) != 2 {
		t.Errorf("limit detail = %+v", se)
	}
	if logged.lastStatus() != StatusFailed {
		t.Errorf("last status = %s, want failed", logged.lastStatus())
	}
	// The draft survives a failed submit.
	if logged.clearCount() != 0 {
		t.Errorf("clear count = %d, want 0", logged.clearCount())
	}
	if got := rec.Intents(); len(got) != 0 {
		t.Errorf("failed turn navigated: %v", got)
	}
}

func TestSecondSubmitWhileBusy(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, `{"response":"done"}`)
	})
	ctrl, _, _, _ := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{Prompt: "first", Mode: ModeQuick}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = ctrl.Submit(context.Background(), Turn{Prompt: "second", Mode: ModeQuick}, SubmitOptions{})
	var se *SubmitError
	if !errors.As(err, &se) || se.Kind != ErrBusy {
		t.Fatalf("err = %v, want busy", err)
	}

	close(release)
	if err := handle.Wait(); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if ctrl.InFlight() {
		t.Error("controller still in flight after completion")
	}
}

func TestServerErrorFrameFailsSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLines(w,
			`{"type":"metadata","thread_id":"t3","project_id":"p3"}`,
			`{"type":"content","text":"starting"}`,
			`{"type":"error","code":"sandbox_crash","message":"workspace died"}`,
		)
	})
	ctrl, sessions, _, logged := newTestController(t, handler)

	handle, err := ctrl.Submit(context.Background(), Turn{Prompt: "doomed", Mode: ModeExecute}, SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	err = handle.Wait()

	var se *SubmitError
	if !errors.As(err, &se) || se.Kind != ErrTransport {
		t.Fatalf("err = %v, want transport", err)
	}

	sess := sessions.Get(session.Key("p3", "t3"))
	if sess == nil {
		t.Fatal("session p3:t3 not created")
	}
	if sess.Status() != session.StatusFailed {
		t.Errorf("session status = %s, want failed", sess.Status())
	}
	if sess.FailureReason() == "" {
		t.Error("failure reason not recorded")
	}
	if logged.lastStatus() != StatusFailed {
		t.Errorf("last status = %s, want failed", logged.lastStatus())
	}
}
