// ABOUTME: HTTP client for the outbound message-send backend
// ABOUTME: Opaque request/response API; transcripts are consumed, never mutated, by the core

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/coven-deck/internal/identity"
)

// TokenSource provides the bearer token for outgoing requests.
// The session manager satisfies it.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Client talks to the chat message backend.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a message-send client for the given backend URL.
func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger.With("component", "api"),
	}
}

// SendRequest is a message submission. ChatID empty means the backend
// starts a new chat and assigns its id.
type SendRequest struct {
	Message      string   `json:"message"`
	ChatID       string   `json:"chatId,omitempty"`
	Model        string   `json:"model,omitempty"`
	EnabledTools []string `json:"enabledTools,omitempty"`
	Attachments  []string `json:"attachments,omitempty"`
}

// Message is one entry in a chat transcript.
type Message struct {
	ID          string       `json:"id"`
	Role        string       `json:"role"` // "user" or "assistant"
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Model       string       `json:"model,omitempty"`
	ToolsUsed   []string     `json:"tools_used,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment describes a file attached to a message.
type Attachment struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	FileSize     int64  `json:"file_size"`
}

// Transcript is the backend's view of a chat after a send or fetch.
type Transcript struct {
	ChatID   string    `json:"chatId"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// apiError is the backend's error body.
type apiError struct {
	Error string `json:"error"`
}

// SendMessage submits a message and returns the updated transcript.
func (c *Client) SendMessage(ctx context.Context, req *SendRequest) (*Transcript, error) {
	var t Transcript
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetChat fetches the full transcript for a chat.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Transcript, error) {
	var t Transcript
	if err := c.do(ctx, http.MethodGet, "/api/chat/"+chatID, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteChat asks the backend to remove a chat and its messages.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/"+chatID, nil, nil)
}

// DownloadAttachment streams an attachment's bytes.
func (c *Client) DownloadAttachment(ctx context.Context, attachmentID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/attachments/"+attachmentID+"/download", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading attachment: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// do issues a JSON request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// newRequest builds a request with the current session's bearer token.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if token, ok := c.tokens.AccessToken(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// checkStatus maps non-2xx responses to errors. 401 surfaces as an
// AuthError so callers can route the user back through sign-in.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var ae apiError
	_ = json.NewDecoder(resp.Body).Decode(&ae)

	if resp.StatusCode == http.StatusUnauthorized {
		msg := ae.Error
		if msg == "" {
			msg = "backend rejected the session"
		}
		return &identity.AuthError{Code: identity.CodeSessionExpired, Message: msg}
	}
	if ae.Error != "" {
		return fmt.Errorf("backend returned %s: %s", resp.Status, ae.Error)
	}
	return fmt.Errorf("backend returned %s", resp.Status)
}
