package domain

// Provider-facing message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// ChatTurn is a single sanitized turn of caller-supplied history.
type ChatTurn struct {
	Speaker Speaker
	Text    string
}

// ChatRequest is a validated chat request. Values of this type are only
// produced by the validator, so every string is sanitized and bounded, the
// model is allow-listed and the credential carries the provider prefix.
type ChatRequest struct {
	SystemInstruction string
	UserMessage       string
	History           []ChatTurn
	ModelID           string
	Credential        string
}

// ChatMessage is the provider-agnostic chat message shape sent upstream.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one fragment of upstream output. HasText is false when the
// provider sent no content for the chunk (for example a role-only delta).
type StreamChunk struct {
	Text    string
	HasText bool
}

// ChatStream is a pull-based upstream completion stream.
type ChatStream interface {
	Next() bool
	Current() StreamChunk
	Err() error
	Close() error
}
