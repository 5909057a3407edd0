// Package api is the HTTP client for the Iris backend: the quick chat
// endpoint, agent initiation, and the streaming run endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/iris-ai/iris-go/internal/stream"
)

// Config holds client configuration.
type Config struct {
	// BaseURL of the Iris backend, without a trailing slash.
	BaseURL string

	// APIKey sent as a bearer token. Empty means unauthenticated (dev server).
	APIKey string

	// Timeout for non-streaming requests (default: 30s).
	Timeout time.Duration

	// StreamIdleTimeout is forwarded to stream readers (default: 120s).
	StreamIdleTimeout time.Duration
}

// Client talks to the Iris backend. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		// No client-level timeout: it would kill open streams. Non-streaming
		// calls get a per-request deadline instead.
		httpClient: &http.Client{},
	}
}

// QuickAttachment is an inline base64 attachment for quick mode.
type QuickAttachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// QuickRequest is the quick-mode request body.
type QuickRequest struct {
	Message     string            `json:"message"`
	Model       string            `json:"model"`
	Attachments []QuickAttachment `json:"attachments,omitempty"`
}

// Quick fires a single non-streaming conversational request.
func (c *Client) Quick(ctx context.Context, req QuickRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal quick request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat/quick", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("quick request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read quick response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp.StatusCode, respBody)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("parse quick response: %w", err)
	}
	return out.Response, nil
}

// FilePart is one multipart file for an agent request.
type FilePart struct {
	Name     string
	MimeType string
	Data     []byte
}

// AgentRequest is the multipart form for thread creation and agent runs.
type AgentRequest struct {
	Prompt               string
	AgentID              string
	ModelName            string
	ChatMode             string // "adaptive" for classified runs, empty otherwise
	EnableContextManager bool
	Files                []FilePart
}

// ThreadRef identifies a server-side thread.
type ThreadRef struct {
	ThreadID  string `json:"thread_id"`
	ProjectID string `json:"project_id"`
}

// InitiateThread creates a thread without starting a stream (adaptive
// Phase A: commit to a thread before the classification is known).
func (c *Client) InitiateThread(ctx context.Context, req AgentRequest) (ThreadRef, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.postAgentForm(ctx, c.config.BaseURL+"/api/agent/initiate", req, false)
	if err != nil {
		return ThreadRef{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ThreadRef{}, fmt.Errorf("read initiate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ThreadRef{}, decodeError(resp.StatusCode, respBody)
	}

	var ref ThreadRef
	if err := json.Unmarshal(respBody, &ref); err != nil {
		return ThreadRef{}, fmt.Errorf("parse initiate response: %w", err)
	}
	if ref.ThreadID == "" {
		return ThreadRef{}, fmt.Errorf("initiate response missing thread_id")
	}
	return ref, nil
}

// StartAgent opens a streaming agent run (execute mode). The first frame on
// the returned reader is the metadata frame naming the new thread.
func (c *Client) StartAgent(ctx context.Context, req AgentRequest) (*stream.Reader, error) {
	return c.openStream(ctx, c.config.BaseURL+"/api/agent/initiate", req)
}

// StartThreadStream opens the streaming run for an existing thread
// (adaptive Phase B).
func (c *Client) StartThreadStream(ctx context.Context, threadID string, req AgentRequest) (*stream.Reader, error) {
	return c.openStream(ctx, c.config.BaseURL+"/api/thread/"+threadID+"/agent/stream", req)
}

func (c *Client) openStream(ctx context.Context, url string, req AgentRequest) (*stream.Reader, error) {
	resp, err := c.postAgentForm(ctx, url, req, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, decodeError(resp.StatusCode, respBody)
	}
	return stream.NewReader(resp.Body, stream.Options{IdleTimeout: c.config.StreamIdleTimeout}), nil
}

func (c *Client) postAgentForm(ctx context.Context, url string, req AgentRequest, streaming bool) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"prompt":                 req.Prompt,
		"stream":                 strconv.FormatBool(streaming),
		"enable_context_manager": strconv.FormatBool(req.EnableContextManager),
	}
	if req.ChatMode != "" {
		fields["chat_mode"] = req.ChatMode
	}
	if req.AgentID != "" {
		fields["agent_id"] = req.AgentID
	}
	if req.ModelName != "" {
		fields["model_name"] = req.ModelName
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	for _, f := range req.Files {
		part, err := createFilePart(w, f)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write file %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent request: %w", err)
	}
	return resp, nil
}

func createFilePart(w *multipart.Writer, f FilePart) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[]"; filename="%s"`, escapeQuotes(f.Name)))
	if f.MimeType != "" {
		h.Set("Content-Type", f.MimeType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part %s: %w", f.Name, err)
	}
	return part, nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, `\"`).Replace(s)
}

func (c *Client) authorize(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}
