package client

import (
	"context"
	"io"
	"strings"
)

var relayStripped = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "")

// Conversation keeps the running history for a chat session and sends it
// with every message. Only completed exchanges are recorded.
type Conversation struct {
	DeveloperMessage string
	Model            string
	APIKey           string

	turns []Turn
}

func NewConversation(developerMessage, model, apiKey string) *Conversation {
	return &Conversation{DeveloperMessage: developerMessage, Model: model, APIKey: apiKey}
}

// Send relays message with the current history. On success with a non-blank
// reply the exchange is appended, dropping the oldest turns past MaxHistory.
func (c *Conversation) Send(ctx context.Context, cl *Client, message string, out io.Writer) (string, error) {
	reply, err := cl.Chat(ctx, Request{
		DeveloperMessage: c.DeveloperMessage,
		UserMessage:      message,
		ChatHistory:      c.History(),
		Model:            c.Model,
		APIKey:           c.APIKey,
	}, out)
	if err != nil {
		return reply, err
	}
	// The relay strips these characters and rejects entries left blank.
	if strings.TrimSpace(relayStripped.Replace(reply)) == "" {
		return reply, nil
	}
	c.turns = append(c.turns, Turn{Role: RoleUser, Content: message}, Turn{Role: RoleAI, Content: reply})
	if over := len(c.turns) - MaxHistory; over > 0 {
		c.turns = append([]Turn(nil), c.turns[over:]...)
	}
	return reply, nil
}

// History returns a copy of the recorded turns, oldest first.
func (c *Conversation) History() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Reset() {
	c.turns = nil
}
