package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/observability"
)

const defaultIdleTimeout = 60 * time.Second

var errIdleTimeout = errors.New("no upstream chunk within idle timeout")

// ChatStreamer opens one streaming completion against the upstream provider.
type ChatStreamer interface {
	StreamChat(ctx context.Context, model, credential string, messages []domain.ChatMessage) (domain.ChatStream, error)
}

// FragmentWriter receives relayed text fragments in arrival order.
type FragmentWriter interface {
	WriteFragment(text string) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// RelayService forwards upstream completion output. It keeps no per-request
// state and is safe for concurrent use.
type RelayService struct {
	upstream    ChatStreamer
	idleTimeout time.Duration
}

// NewRelayService creates a RelayService. A non-positive idleTimeout falls
// back to 60s.
func NewRelayService(upstream ChatStreamer, idleTimeout time.Duration) (*RelayService, error) {
	if upstream == nil {
		return nil, errors.New("usecase: upstream streamer must not be nil")
	}
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &RelayService{upstream: upstream, idleTimeout: idleTimeout}, nil
}

// BuildMessages maps a validated request onto the upstream message list:
// one system message, one message per history turn, then the user message.
func BuildMessages(req domain.ChatRequest) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(req.History)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: req.SystemInstruction})
	for _, t := range req.History {
		role := domain.RoleAssistant
		if t.Speaker == domain.SpeakerUser {
			role = domain.RoleUser
		}
		messages = append(messages, domain.ChatMessage{Role: role, Content: t.Text})
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: req.UserMessage})
}

// Stream opens exactly one upstream completion and yields its text fragments
// in arrival order. Chunks without text are skipped. A failure is yielded
// once as a *Error with an empty fragment and ends the sequence. Stopping
// the iteration early closes the upstream stream and cancels its request.
// The sequence is not restartable: every range over it is a new upstream call.
func (s *RelayService) Stream(ctx context.Context, req domain.ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)

		idle := time.AfterFunc(s.idleTimeout, func() { cancel(errIdleTimeout) })
		defer idle.Stop()

		start := time.Now()
		model := req.ModelID

		stream, err := s.upstream.StreamChat(ctx, model, req.Credential, BuildMessages(req))
		if err != nil {
			uerr := classifyUpstreamError(ctx, err, 0)
			observability.UpstreamRequestsTotal.WithLabelValues(model, outcomeLabel(uerr)).Inc()
			yield("", uerr)
			return
		}
		defer func() { _ = stream.Close() }()

		forwarded := 0
		for {
			idle.Reset(s.idleTimeout)
			ok := stream.Next()
			idle.Stop()
			if !ok {
				break
			}
			chunk := stream.Current()
			if !chunk.HasText {
				continue
			}
			if forwarded == 0 {
				observability.UpstreamFirstFragmentLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
			}
			forwarded++
			observability.FragmentsTotal.WithLabelValues(model).Inc()
			if !yield(chunk.Text, nil) {
				observability.UpstreamRequestsTotal.WithLabelValues(model, "abandoned").Inc()
				return
			}
		}

		if err := stream.Err(); err != nil {
			uerr := classifyUpstreamError(ctx, err, forwarded)
			observability.UpstreamRequestsTotal.WithLabelValues(model, outcomeLabel(uerr)).Inc()
			yield("", uerr)
			return
		}
		observability.UpstreamRequestsTotal.WithLabelValues(model, "ok").Inc()
	}
}

// Relay drains Stream into w and returns the number of fragments forwarded.
// Fragments written before a failure are not rolled back; the caller decides
// how to end its response in that case.
func (s *RelayService) Relay(ctx context.Context, req domain.ChatRequest, w FragmentWriter) (int, error) {
	if w == nil {
		return 0, errors.New("usecase: fragment writer must not be nil")
	}
	n := 0
	for text, err := range s.Stream(ctx, req) {
		if err != nil {
			return n, err
		}
		if err := w.WriteFragment(text); err != nil {
			return n, fmt.Errorf("usecase: write fragment: %w", err)
		}
		n++
	}
	return n, nil
}

func classifyUpstreamError(ctx context.Context, err error, forwarded int) *Error {
	if errors.Is(context.Cause(ctx), errIdleTimeout) {
		return newUpstreamError(ErrorStreamInterrupted, "upstream_idle_timeout", errIdleTimeout)
	}
	if ctx.Err() != nil {
		return newUpstreamError(ErrorStreamInterrupted, "request_cancelled", err)
	}
	if status, ok := upstreamStatusCode(err); ok {
		switch {
		case status == 401 || status == 403:
			return newUpstreamError(ErrorAuthenticationRejected, "provider_auth_rejected", err)
		case status == 429:
			return newUpstreamError(ErrorRateLimited, "provider_rate_limited", err)
		default:
			return newUpstreamError(ErrorProviderRejected, "provider_status_"+strconv.Itoa(status), err)
		}
	}
	if forwarded > 0 {
		return newUpstreamError(ErrorStreamInterrupted, "upstream_stream_error", err)
	}
	return newUpstreamError(ErrorNetworkFailure, "upstream_unreachable", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func outcomeLabel(err *Error) string {
	return strings.ToLower(string(err.Code))
}
