package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"chat-relay/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// Client is a focused OpenAI-compatible client for streaming chat
// completions. The API key is supplied per call, so one Client serves every
// caller and shares its connection pool.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sdk        openai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client. Retries are disabled: each StreamChat call is
// exactly one upstream attempt.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: defaultBaseURL,
		// No overall timeout: streams stay open for as long as the model
		// produces output. Idle detection happens in the relay.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		return nil, errors.New("openai: http client must not be nil")
	}
	c.sdk = openai.NewClient(
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	return c, nil
}

// StreamChat opens a streaming chat completion authenticated with credential.
// Errors returned by the provider before the stream starts are reported as
// *HTTPStatusError.
func (c *Client) StreamChat(ctx context.Context, model, credential string, messages []domain.ChatMessage) (domain.ChatStream, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	if strings.TrimSpace(credential) == "" {
		return nil, errors.New("openai: credential must not be empty")
	}
	if len(messages) == 0 {
		return nil, errors.New("openai: messages must not be empty")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		p, err := toMessageParam(m)
		if err != nil {
			return nil, err
		}
		params.Messages = append(params.Messages, p)
	}

	s := c.sdk.Chat.Completions.NewStreaming(ctx, params, option.WithAPIKey(credential))
	if err := s.Err(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("openai: open stream: %w", translateError(err))
	}
	return &stream{stream: s}, nil
}

func toMessageParam(m domain.ChatMessage) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case domain.RoleSystem:
		return openai.SystemMessage(m.Content), nil
	case domain.RoleUser:
		return openai.UserMessage(m.Content), nil
	case domain.RoleAssistant:
		return openai.AssistantMessage(m.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported role %q", m.Role)
	}
}

func translateError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	url := ""
	if apiErr.Request != nil && apiErr.Request.URL != nil {
		url = apiErr.Request.URL.String()
	}
	return &HTTPStatusError{
		StatusCode: apiErr.StatusCode,
		URL:        url,
		Body:       apiErr.Message,
		Err:        err,
	}
}

type stream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *stream) Next() bool {
	return s.stream.Next()
}

// Current reports HasText only when the first choice carries a non-null
// content delta.
func (s *stream) Current() domain.StreamChunk {
	chunk := s.stream.Current()
	if len(chunk.Choices) == 0 {
		return domain.StreamChunk{}
	}
	delta := chunk.Choices[0].Delta
	if !delta.JSON.Content.Valid() {
		return domain.StreamChunk{}
	}
	return domain.StreamChunk{Text: delta.Content, HasText: true}
}

func (s *stream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", translateError(err))
	}
	return nil
}

func (s *stream) Close() error {
	return s.stream.Close()
}
