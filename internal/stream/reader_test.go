package stream

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/iris-ai/iris-go/internal/protocol"
)

func collect(t *testing.T, frames <-chan protocol.Frame, errCh <-chan error) ([]protocol.Frame, error) {
	t.Helper()
	var got []protocol.Frame
	for frames != nil || errCh != nil {
		select {
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			got = append(got, f)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			return got, err
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for stream")
		}
	}
	return got, nil
}

func TestReaderDeliversFramesInOrder(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		`{"type":"metadata","thread_id":"t1","project_id":"p1"}` + "\n" +
			`{"type":"content","text":"Hi"}` + "\n" +
			`{"type":"content","text":" there"}` + "\n" +
			`{"type":"done"}` + "\n"))

	r := NewReader(body, Options{})
	frames, errCh := r.Frames(context.Background())

	got, err := collect(t, frames, errCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d frames, want 4", len(got))
	}
	wantTypes := []protocol.FrameType{
		protocol.FrameMetadata, protocol.FrameContent, protocol.FrameContent, protocol.FrameDone,
	}
	for i, w := range wantTypes {
		if got[i].GetType() != w {
			t.Errorf("frame %d type = %s, want %s", i, got[i].GetType(), w)
		}
	}
	if got[1].(protocol.ContentFrame).Text != "Hi" {
		t.Errorf("first content = %q, want Hi", got[1].(protocol.ContentFrame).Text)
	}
}

func TestReaderReassemblesSplitFrames(t *testing.T) {
	// Write a frame across multiple chunks with the boundary mid-frame.
	pr, pw := io.Pipe()
	go func() {
		io.WriteString(pw, `{"type":"content",`)
		time.Sleep(10 * time.Millisecond)
		io.WriteString(pw, `"text":"split"}`+"\n"+`{"type":"do`)
		time.Sleep(10 * time.Millisecond)
		io.WriteString(pw, `ne"}`+"\n")
		pw.Close()
	}()

	r := NewReader(pr, Options{})
	frames, errCh := r.Frames(context.Background())

	got, err := collect(t, frames, errCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[0].(protocol.ContentFrame).Text != "split" {
		t.Errorf("content = %q, want split", got[0].(protocol.ContentFrame).Text)
	}
}

func TestReaderTrailingFrameWithoutNewline(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		`{"type":"content","text":"x"}` + "\n" + `{"type":"done"}`))

	r := NewReader(body, Options{})
	frames, errCh := r.Frames(context.Background())

	got, err := collect(t, frames, errCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].GetType() != protocol.FrameDone {
		t.Fatalf("got %v, want content+done", got)
	}
}

func TestReaderUnexpectedEOF(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`{"type":"content","text":"x"}` + "\n"))

	r := NewReader(body, Options{})
	frames, errCh := r.Frames(context.Background())

	got, err := collect(t, frames, errCh)
	if err == nil {
		t.Fatal("expected network error for stream ending without done")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != KindNetwork {
		t.Errorf("error = %v, want network kind", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d frames before failure, want 1", len(got))
	}
}

func TestReaderProtocolError(t *testing.T) {
	body := io.NopCloser(strings.NewReader("this is not json\n"))

	r := NewReader(body, Options{})
	frames, errCh := r.Frames(context.Background())

	_, err := collect(t, frames, errCh)
	if !IsProtocol(err) {
		t.Errorf("error = %v, want protocol kind", err)
	}
}

func TestReaderIdleTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewReader(pr, Options{IdleTimeout: 50 * time.Millisecond})
	frames, errCh := r.Frames(context.Background())

	_, err := collect(t, frames, errCh)
	if !IsTimeout(err) {
		t.Errorf("error = %v, want timeout kind", err)
	}
}

func TestReaderAbortStopsDelivery(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		io.WriteString(pw, `{"type":"content","text":"one"}`+"\n")
	}()

	r := NewReader(pr, Options{})
	frames, errCh := r.Frames(ctx)

	select {
	case f := <-frames:
		if f.GetType() != protocol.FrameContent {
			t.Fatalf("unexpected frame %v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame before abort")
	}

	cancel()

	// After the abort both channels must close with no error reported.
	got, err := collect(t, frames, errCh)
	if err != nil {
		t.Fatalf("abort surfaced error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d frames after abort, want 0", len(got))
	}
	// Writing to a closed pipe confirms the body was torn down.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, werr := io.WriteString(pw, "late\n"); werr != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("underlying stream was never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
