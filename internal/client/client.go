// Package client talks to a running chat relay over HTTP. It is used by the
// terminal chat in cmd/chat.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	RoleUser = "user"
	RoleAI   = "ai"

	// MaxHistory matches the relay's default history limit.
	MaxHistory = 50
)

// Turn is one prior message as the relay expects it on the wire.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /api/chat.
type Request struct {
	DeveloperMessage string `json:"developer_message"`
	UserMessage      string `json:"user_message"`
	ChatHistory      []Turn `json:"chat_history"`
	Model            string `json:"model,omitempty"`
	APIKey           string `json:"api_key"`
}

// APIError is a non-2xx answer from the relay.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("client: relay returned %d", e.StatusCode)
	}
	return fmt.Sprintf("client: relay returned %d %s: %s", e.StatusCode, e.Code, e.Detail)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base url must not be empty")
	}
	c := &Client{baseURL: baseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		return nil, errors.New("client: http client must not be nil")
	}
	return c, nil
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("client: decode health: %w", err)
	}
	if out.Status != "ok" {
		return fmt.Errorf("client: unexpected health status %q", out.Status)
	}
	return nil
}

// Chat sends one request and copies the streamed reply to out as it arrives.
// It returns everything received, which on error may be a partial reply.
func (c *Client) Chat(ctx context.Context, in Request, out io.Writer) (string, error) {
	if in.ChatHistory == nil {
		in.ChatHistory = []Turn{}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("client: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("client: chat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	var reply strings.Builder
	dst := io.Writer(&reply)
	if out != nil {
		dst = io.MultiWriter(&reply, out)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return reply.String(), fmt.Errorf("client: read stream: %w", err)
	}
	return reply.String(), nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
	return apiErr
}
