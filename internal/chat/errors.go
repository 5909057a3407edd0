package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iris-ai/iris-go/internal/api"
	"github.com/iris-ai/iris-go/internal/stream"
)

// ErrorKind classifies why a submit was rejected or a turn failed.
type ErrorKind string

const (
	ErrEmptyInput            ErrorKind = "empty_input"
	ErrBusy                  ErrorKind = "busy"
	ErrUnsupportedAttachment ErrorKind = "unsupported_attachment"
	ErrBillingQuota          ErrorKind = "billing_quota"
	ErrProjectLimit          ErrorKind = "project_limit"
	ErrConcurrentRunLimit    ErrorKind = "concurrent_run_limit"
	ErrTransport             ErrorKind = "transport"
)

// SubmitError is the single error type that crosses the controller boundary.
// Callers switch on Kind instead of unwrapping transport internals.
type SubmitError struct {
	Kind ErrorKind

	// Populated for ErrUnsupportedAttachment.
	AttachmentNames []string

	// Populated for ErrConcurrentRunLimit.
	RunningCount     int
	RunningThreadIDs []string

	Err error
}

func (e *SubmitError) Error() string {
	switch e.Kind {
	case ErrEmptyInput:
		return "chat: nothing to submit"
	case ErrBusy:
		return "chat: a turn is already in flight"
	case ErrUnsupportedAttachment:
		return fmt.Sprintf("chat: attachments not supported in this mode: %s",
			strings.Join(e.AttachmentNames, ", "))
	case ErrConcurrentRunLimit:
		return fmt.Sprintf("chat: concurrent run limit reached (%d running)", e.RunningCount)
	}
	if e.Err != nil {
		return fmt.Sprintf("chat: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("chat: %s", e.Kind)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// classifyError folds backend and transport errors into a SubmitError.
// A SubmitError passes through untouched.
func classifyError(err error) *SubmitError {
	var se *SubmitError
	if errors.As(err, &se) {
		return se
	}

	var billing *api.BillingQuotaError
	if errors.As(err, &billing) {
		return &SubmitError{Kind: ErrBillingQuota, Err: err}
	}
	var limit *api.ProjectLimitError
	if errors.As(err, &limit) {
		return &SubmitError{Kind: ErrProjectLimit, Err: err}
	}
	var runs *api.ConcurrentRunLimitError
	if errors.As(err, &runs) {
		return &SubmitError{
			Kind:             ErrConcurrentRunLimit,
			RunningCount:     runs.RunningCount,
			RunningThreadIDs: runs.RunningThreadIDs,
			Err:              err,
		}
	}

	// Everything else is transport: network, protocol, timeout, or an
	// unclassified server response.
	var stErr *stream.Error
	if errors.As(err, &stErr) {
		return &SubmitError{Kind: ErrTransport, Err: err}
	}
	return &SubmitError{Kind: ErrTransport, Err: err}
}
