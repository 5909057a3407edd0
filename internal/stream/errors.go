// Package stream reads the Iris backend's newline-delimited JSON event
// stream and delivers decoded frames in receive order.
// This file contains error classification for transport failures.

package stream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"  // Socket closed unexpectedly
	KindProtocol ErrorKind = "protocol" // Malformed frame
	KindServer   ErrorKind = "server"   // Non-2xx response or error frame
	KindTimeout  ErrorKind = "timeout"  // No frame within the idle threshold
)

// Error wraps transport failures with classification metadata.
type Error struct {
	Kind ErrorKind
	Code int    // HTTP status code if applicable
	Body string // Server response body if applicable
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream %s: %v", e.Kind, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("stream %s: status=%d body=%s", e.Kind, e.Code, e.Body)
	}
	return fmt.Sprintf("stream %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified transport error.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// IsTimeout reports whether err is an idle-timeout transport error.
func IsTimeout(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindTimeout
}

// IsProtocol reports whether err is a malformed-frame transport error.
func IsProtocol(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindProtocol
}
