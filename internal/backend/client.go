// Package backend is the HTTP client for the chat backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 4 << 10
)

// ErrAuthFailed is returned when the backend rejects a login or registration.
var ErrAuthFailed = errors.New("authentication failed")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the chat backend. Requests are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Chat posts one chat turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &resp); err != nil {
		return ChatResponse{}, fmt.Errorf("chat: %w", err)
	}
	return resp, nil
}

// AudioToText transcribes an audio clip. An error field in the reply is
// returned as an error.
func (c *Client) AudioToText(ctx context.Context, req AudioRequest) (AudioResponse, error) {
	var resp AudioResponse
	if err := c.do(ctx, http.MethodPost, "/audio-to-text", req, &resp); err != nil {
		return AudioResponse{}, fmt.Errorf("audio to text: %w", err)
	}
	if resp.Error != "" {
		return AudioResponse{}, fmt.Errorf("audio to text: %s", resp.Error)
	}
	return resp, nil
}

// Conversation fetches the stored messages for username in mode. Each
// returned message has Mode set.
func (c *Client) Conversation(ctx context.Context, mode, username string) ([]Message, error) {
	path := "/conversation/" + url.PathEscape(mode) + "/" + url.PathEscape(username)

	var resp ConversationResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching %s conversation: %w", mode, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("fetching %s conversation: %s", mode, resp.Error)
	}

	msgs := resp.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	for i := range msgs {
		msgs[i].Mode = mode
	}
	return msgs, nil
}

// Login verifies credentials. A rejected login returns an error wrapping
// ErrAuthFailed with the backend's message.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	return c.auth(ctx, "/api/auth/login", username, password)
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) (AuthResponse, error) {
	return c.auth(ctx, "/api/auth/register", username, password)
}

func (c *Client) auth(ctx context.Context, path, username, password string) (AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, path, Credentials{Username: username, Password: password}, &resp)

	// Rejections may come back as 4xx with a JSON body.
	var se *StatusError
	if errors.As(err, &se) && se.Code < 500 {
		if jerr := json.Unmarshal([]byte(se.Body), &resp); jerr == nil && resp.Error != "" {
			err = nil
		}
	}
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%s: %w", path, err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "rejected"
		}
		return resp, fmt.Errorf("%w: %s", ErrAuthFailed, msg)
	}
	return resp, nil
}

// LocketStatus reports whether the user's locket device is connected.
func (c *Client) LocketStatus(ctx context.Context, username string) (LocketStatus, error) {
	var resp LocketStatus
	if err := c.do(ctx, http.MethodGet, "/api/locket/status/"+url.PathEscape(username), nil, &resp); err != nil {
		return LocketStatus{}, fmt.Errorf("locket status: %w", err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, in != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "sdgchat")
}
