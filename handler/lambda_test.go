package handler

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/usecase"
)

func makeURLEvent(method, path, body string) events.LambdaFunctionURLRequest {
	return events.LambdaFunctionURLRequest{
		RawPath: path,
		Headers: map[string]string{"content-type": "application/json"},
		Body:    body,
		RequestContext: events.LambdaFunctionURLRequestContext{
			DomainName: "abc.lambda-url.eu-west-1.on.aws",
			HTTP: events.LambdaFunctionURLRequestContextHTTPDescription{
				Method:   method,
				Path:     path,
				SourceIP: "203.0.113.7",
			},
		},
	}
}

func newTestAdapter(t *testing.T, uc ChatUseCase) *LambdaAdapter {
	t.Helper()
	h, err := NewHandler(uc, quietLogger())
	require.NoError(t, err)
	a, err := NewLambdaAdapter(h.Routes("", nil), quietLogger())
	require.NoError(t, err)
	return a
}

func TestNewLambdaAdapter_ValidatesDependency(t *testing.T) {
	_, err := NewLambdaAdapter(nil, nil)
	require.Error(t, err)
}

func TestLambda_StreamsChat(t *testing.T) {
	a := newTestAdapter(t, &stubUseCase{fragments: []string{"Hel", "lo"}})

	resp, err := a.Handle(context.Background(), makeURLEvent(http.MethodPost, "/api/chat", validBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain; charset=utf-8", resp.Headers["Content-Type"])
	require.NotEmpty(t, resp.Headers[correlationHeader])

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "Hello", string(body))
}

func TestLambda_Base64Body(t *testing.T) {
	uc := &stubUseCase{}
	a := newTestAdapter(t, uc)

	ev := makeURLEvent(http.MethodPost, "/api/chat", base64.StdEncoding.EncodeToString([]byte(validBody)))
	ev.IsBase64Encoded = true
	resp, err := a.Handle(context.Background(), ev)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)
	require.Equal(t, "hi", uc.in.UserMessage)

	ev.Body = "%%%"
	_, err = a.Handle(context.Background(), ev)
	require.Error(t, err)
}

func TestLambda_ErrorResponse(t *testing.T) {
	a := newTestAdapter(t, &stubUseCase{relayErr: &usecase.Error{
		Class: usecase.ClassUpstream, Code: usecase.ErrorRateLimited, Reason: "provider_rate_limited",
	}})

	resp, err := a.Handle(context.Background(), makeURLEvent(http.MethodPost, "/api/chat", validBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorRateLimited), out.Code)
}

func TestLambda_PartialFailureSurfacesReadError(t *testing.T) {
	a := newTestAdapter(t, &stubUseCase{
		fragments: []string{"partial"},
		relayErr: &usecase.Error{
			Class: usecase.ClassUpstream, Code: usecase.ErrorStreamInterrupted, Reason: "upstream_stream_error",
		},
	})

	resp, err := a.Handle(context.Background(), makeURLEvent(http.MethodPost, "/api/chat", validBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.ErrorIs(t, err, errStreamAborted)
	require.Equal(t, "partial", string(body))
}

func TestLambda_HealthAndUnknownRoute(t *testing.T) {
	a := newTestAdapter(t, &stubUseCase{})

	resp, err := a.Handle(context.Background(), makeURLEvent(http.MethodGet, "/api/health", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[healthResponse](t, resp.Body)
	require.Equal(t, "ok", out.Status)

	resp, err = a.Handle(context.Background(), makeURLEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLambda_Preflight(t *testing.T) {
	a := newTestAdapter(t, &stubUseCase{})

	ev := makeURLEvent(http.MethodOptions, "/api/chat", "")
	ev.Headers["origin"] = "https://app.example.com"
	ev.Headers["access-control-request-method"] = "POST"
	resp, err := a.Handle(context.Background(), ev)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Headers["Access-Control-Allow-Origin"])
}

func TestLambda_CancelledBeforeHeaders(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	a, err := NewLambdaAdapter(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-block }), quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Handle(ctx, makeURLEvent(http.MethodGet, "/", ""))
	require.ErrorIs(t, err, context.Canceled)
}
