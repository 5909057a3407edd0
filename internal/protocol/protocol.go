// Package protocol defines the wire frames exchanged with the Iris backend
// over its newline-delimited JSON event stream.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FrameType enumerates all supported server -> client stream frames.
type FrameType string

const (
	FrameMetadata FrameType = "metadata"
	FrameContent  FrameType = "content"
	FrameDecision FrameType = "decision"
	FrameTool     FrameType = "tool"
	FrameDone     FrameType = "done"
	FrameError    FrameType = "error"
)

// Frame is a marker interface implemented by all stream frames.
type Frame interface {
	GetType() FrameType
}

// MetadataFrame announces the thread the server minted for this run.
// It is always the first frame of an execute or adaptive stream.
type MetadataFrame struct {
	Type      FrameType `json:"type"`
	ThreadID  string    `json:"thread_id"`
	ProjectID string    `json:"project_id"`
}

// GetType implements Frame.
func (f MetadataFrame) GetType() FrameType { return FrameMetadata }

// ContentFrame carries one chunk of assistant output.
type ContentFrame struct {
	Type FrameType `json:"type"`
	Text string    `json:"text"`
}

// GetType implements Frame.
func (f ContentFrame) GetType() FrameType { return FrameContent }

// DecisionState is the server-side adaptive classification outcome.
type DecisionState string

const (
	DecisionChatAnswer  DecisionState = "chat_answer"
	DecisionAgentNeeded DecisionState = "agent_needed"
)

// DecisionFrame is emitted exactly once per adaptive run.
// Unknown fields are retained in Raw for forward compatibility.
type DecisionFrame struct {
	Type      FrameType       `json:"type"`
	State     DecisionState   `json:"state"`
	Reasoning string          `json:"reasoning,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// GetType implements Frame.
func (f DecisionFrame) GetType() FrameType { return FrameDecision }

// ToolFrame reports a tool invocation inside an agent run.
type ToolFrame struct {
	Type    FrameType       `json:"type"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GetType implements Frame.
func (f ToolFrame) GetType() FrameType { return FrameTool }

// DoneFrame terminates the stream.
type DoneFrame struct {
	Type FrameType `json:"type"`
}

// GetType implements Frame.
func (f DoneFrame) GetType() FrameType { return FrameDone }

// ErrorFrame reports a server-side failure mid-stream.
type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

// GetType implements Frame.
func (f ErrorFrame) GetType() FrameType { return FrameError }

type rawFrame struct {
	Type FrameType `json:"type"`
}

// DecodeFrame converts one raw JSON line into a strongly typed frame.
func DecodeFrame(data []byte) (Frame, error) {
	var base rawFrame
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch base.Type {
	case FrameMetadata:
		var f MetadataFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if f.ThreadID == "" {
			return nil, errors.New("metadata frame requires thread_id")
		}
		return f, nil
	case FrameContent:
		var f ContentFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		return f, nil
	case FrameDecision:
		var f DecisionFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		if f.State == "" {
			return nil, errors.New("decision frame requires state")
		}
		f.Raw = append(json.RawMessage(nil), data...)
		return f, nil
	case FrameTool:
		var f ToolFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode tool: %w", err)
		}
		if err := validateToolFrame(data); err != nil {
			return nil, err
		}
		return f, nil
	case FrameDone:
		return DoneFrame{Type: FrameDone}, nil
	case FrameError:
		var f ErrorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown frame type: %q", base.Type)
	}
}

// NewTurnID generates a new opaque turn identifier.
func NewTurnID() string {
	return uuid.NewString()
}
