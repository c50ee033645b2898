package usecase

import (
	"context"
	"errors"

	"chat-relay/internal/domain"
	"chat-relay/internal/observability"
)

// ChatService validates inbound payloads and relays upstream output. The
// relay is only reached with a request that passed validation.
type ChatService struct {
	validator *Validator
	relay     *RelayService
}

func NewChatService(v *Validator, r *RelayService) (*ChatService, error) {
	if v == nil {
		return nil, errors.New("usecase: validator must not be nil")
	}
	if r == nil {
		return nil, errors.New("usecase: relay must not be nil")
	}
	return &ChatService{validator: v, relay: r}, nil
}

func (s *ChatService) Validate(in ChatInput) (domain.ChatRequest, error) {
	req, err := s.validator.Validate(in)
	if err != nil {
		var uerr *Error
		if errors.As(err, &uerr) {
			observability.ValidationFailuresTotal.WithLabelValues(string(uerr.Code)).Inc()
		}
		return domain.ChatRequest{}, err
	}
	return req, nil
}

func (s *ChatService) Relay(ctx context.Context, req domain.ChatRequest, w FragmentWriter) (int, error) {
	return s.relay.Relay(ctx, req, w)
}
