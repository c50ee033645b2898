package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
)

// errStreamAborted is surfaced to the Lambda runtime when the handler gives
// up on a response that has already started, so the client sees a truncated
// stream instead of a clean end.
var errStreamAborted = errors.New("handler: response stream aborted")

// LambdaAdapter serves Lambda Function URL invocations through an
// http.Handler using response streaming.
type LambdaAdapter struct {
	next   http.Handler
	logger *slog.Logger
}

func NewLambdaAdapter(next http.Handler, logger *slog.Logger) (*LambdaAdapter, error) {
	if next == nil {
		return nil, errors.New("handler: http handler must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LambdaAdapter{next: next, logger: logger}, nil
}

// Handle runs the request and returns as soon as the status line is known.
// The body keeps streaming through the returned reader until the handler
// finishes.
func (a *LambdaAdapter) Handle(ctx context.Context, ev events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	req, err := toHTTPRequest(ctx, ev)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	rw := newPipeResponseWriter(pw)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				if p != http.ErrAbortHandler {
					a.logger.Error("lambda handler panicked", "panic", fmt.Sprint(p))
				}
				rw.commit(http.StatusInternalServerError)
				_ = pw.CloseWithError(errStreamAborted)
				return
			}
			rw.commit(http.StatusOK)
			_ = pw.Close()
		}()
		a.next.ServeHTTP(rw, req)
	}()

	select {
	case <-rw.ready:
	case <-ctx.Done():
		_ = pr.CloseWithError(ctx.Err())
		return nil, ctx.Err()
	}

	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: rw.status,
		Headers:    flattenHeaders(rw.snapshot),
		Body:       pr,
	}, nil
}

func toHTTPRequest(ctx context.Context, ev events.LambdaFunctionURLRequest) (*http.Request, error) {
	body := []byte(ev.Body)
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return nil, fmt.Errorf("handler: decode body: %w", err)
		}
		body = decoded
	}

	method := ev.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}
	path := ev.RawPath
	if path == "" {
		path = "/"
	}
	target := path
	if ev.RawQueryString != "" {
		target += "?" + ev.RawQueryString
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("handler: build request: %w", err)
	}
	for k, v := range ev.Headers {
		req.Header.Set(k, v)
	}
	if len(ev.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(ev.Cookies, "; "))
	}
	req.Host = ev.RequestContext.DomainName
	req.RemoteAddr = ev.RequestContext.HTTP.SourceIP
	req.ContentLength = int64(len(body))
	return req, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// pipeResponseWriter is an http.ResponseWriter whose body feeds an io.Pipe.
// ready is closed once the status line is committed.
type pipeResponseWriter struct {
	header   http.Header
	pw       *io.PipeWriter
	ready    chan struct{}
	once     sync.Once
	status   int
	snapshot http.Header
}

func newPipeResponseWriter(pw *io.PipeWriter) *pipeResponseWriter {
	return &pipeResponseWriter{header: http.Header{}, pw: pw, ready: make(chan struct{})}
}

func (w *pipeResponseWriter) Header() http.Header { return w.header }

func (w *pipeResponseWriter) WriteHeader(status int) { w.commit(status) }

func (w *pipeResponseWriter) Write(b []byte) (int, error) {
	w.commit(http.StatusOK)
	return w.pw.Write(b)
}

// Flush is a no-op; the pipe hands bytes to the runtime as they are written.
func (w *pipeResponseWriter) Flush() {}

func (w *pipeResponseWriter) commit(status int) {
	w.once.Do(func() {
		w.status = status
		w.snapshot = w.header.Clone()
		close(w.ready)
	})
}
