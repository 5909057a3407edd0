package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/iris-ai/iris-go/internal/protocol"
)

// DefaultIdleTimeout is how long the reader waits for the next frame
// before giving up on the stream.
const DefaultIdleTimeout = 120 * time.Second

// Options configures a Reader.
type Options struct {
	IdleTimeout time.Duration // Zero means DefaultIdleTimeout
}

// Reader decodes newline-delimited JSON frames from a response body.
//
// Frame boundary integrity: a partial frame at the end of a read is carried
// into the next read by the buffered reader; no frame is ever emitted
// partially. Frames are delivered strictly in receive order, and at most one
// decoded frame is pending at a time, so a slow consumer stalls the socket
// rather than growing a buffer.
type Reader struct {
	body      io.ReadCloser
	idle      time.Duration
	closeOnce sync.Once
}

// NewReader wraps a response body. The caller must consume the channels
// returned by Frames until they close.
func NewReader(body io.ReadCloser, opts Options) *Reader {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Reader{body: body, idle: idle}
}

// Close closes the underlying stream. Safe to call more than once.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.body.Close()
	})
	return err
}

type readResult struct {
	line []byte
	err  error
}

// Frames starts the read loop and returns the frame and error channels.
// Both channels are closed when the stream terminates. Cancelling ctx closes
// the underlying stream and stops delivery without reporting an error; the
// caller owns the aborted transition.
func (r *Reader) Frames(ctx context.Context) (<-chan protocol.Frame, <-chan error) {
	frames := make(chan protocol.Frame) // unbuffered: natural backpressure
	errCh := make(chan error, 1)

	lines := make(chan readResult, 1)
	go func() {
		defer close(lines)
		br := bufio.NewReader(r.body)
		for {
			line, err := br.ReadBytes('\n')
			lines <- readResult{line: line, err: err}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer close(frames)
		defer close(errCh)
		// Unblock and drain the line reader so it can exit.
		defer func() {
			for range lines {
			}
		}()
		defer r.Close()

		timer := time.NewTimer(r.idle)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				// Unblock the line reader; no further delivery.
				r.Close()
				return
			case <-timer.C:
				errCh <- &Error{Kind: KindTimeout, Err: context.DeadlineExceeded}
				return
			case res, ok := <-lines:
				if !ok {
					return
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(r.idle)

				done, fatal := r.deliver(ctx, res.line, frames, errCh)
				if done || fatal {
					return
				}
				if res.err != nil {
					if ctx.Err() != nil {
						return
					}
					if res.err == io.EOF {
						// Stream ended without a done frame.
						errCh <- &Error{Kind: KindNetwork, Err: io.ErrUnexpectedEOF}
					} else {
						errCh <- &Error{Kind: KindNetwork, Err: res.err}
					}
					return
				}
			}
		}
	}()

	return frames, errCh
}

// deliver decodes one line and hands the frame to the consumer. It reports
// whether the stream completed normally (done frame) or failed fatally.
func (r *Reader) deliver(ctx context.Context, line []byte, frames chan<- protocol.Frame, errCh chan<- error) (done, fatal bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false, false
	}

	frame, err := protocol.DecodeFrame(line)
	if err != nil {
		errCh <- &Error{Kind: KindProtocol, Err: err}
		return false, true
	}

	select {
	case frames <- frame:
	case <-ctx.Done():
		return false, true
	}

	return frame.GetType() == protocol.FrameDone, false
}
