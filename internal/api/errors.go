package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// BillingQuotaError means the account's usage quota is exhausted.
// Recoverable through the upgrade flow.
type BillingQuotaError struct {
	Message string
}

func (e *BillingQuotaError) Error() string {
	if e.Message != "" {
		return "billing quota exceeded: " + e.Message
	}
	return "billing quota exceeded"
}

// ProjectLimitError means the account hit its project cap.
// Recoverable through the upgrade flow.
type ProjectLimitError struct {
	Message string
}

func (e *ProjectLimitError) Error() string {
	if e.Message != "" {
		return "project limit reached: " + e.Message
	}
	return "project limit reached"
}

// ConcurrentRunLimitError means the server refused to start another run.
// The offending threads are included so the caller can offer to end one.
type ConcurrentRunLimitError struct {
	RunningCount     int
	RunningThreadIDs []string
}

func (e *ConcurrentRunLimitError) Error() string {
	return fmt.Sprintf("concurrent run limit: %d runs already active", e.RunningCount)
}

// ServerError is any other non-2xx response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status=%d body=%s", e.StatusCode, e.Body)
}

// errorEnvelope is the backend's error body shape. Limit errors carry their
// detail at the top level; everything else nests under "error".
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RunningCount     int      `json:"running_count"`
	RunningThreadIDs []string `json:"running_thread_ids"`
}

// decodeError maps a non-2xx response to a typed error.
func decodeError(statusCode int, body []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(body, &env)

	switch statusCode {
	case http.StatusTooManyRequests:
		if env.RunningCount > 0 || len(env.RunningThreadIDs) > 0 {
			return &ConcurrentRunLimitError{
				RunningCount:     env.RunningCount,
				RunningThreadIDs: env.RunningThreadIDs,
			}
		}
	case http.StatusPaymentRequired, http.StatusForbidden:
		if env.Error != nil {
			switch env.Error.Code {
			case "billing_quota":
				return &BillingQuotaError{Message: env.Error.Message}
			case "project_limit":
				return &ProjectLimitError{Message: env.Error.Message}
			}
		}
		if statusCode == http.StatusPaymentRequired {
			return &BillingQuotaError{}
		}
	}

	return &ServerError{StatusCode: statusCode, Body: string(body)}
}
