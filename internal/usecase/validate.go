package usecase

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"chat-relay/internal/domain"
)

const (
	// MaxTextLength is the per-field character cap applied by Sanitize.
	MaxTextLength = 10000
	// MaxHistory is the default upper bound on chat_history entries.
	MaxHistory = 50

	defaultCredentialPrefix = "sk-"
	defaultModel            = "gpt-4.1-mini"
)

// DefaultAllowedModels is the built-in model allow-list.
var DefaultAllowedModels = []string{"gpt-4.1-mini", "gpt-4o-mini", "gpt-3.5-turbo"}

var forbiddenChars = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "")

// ChatInput is the untrusted chat payload as received on the wire.
type ChatInput struct {
	DeveloperMessage string      `json:"developer_message"`
	UserMessage      string      `json:"user_message"`
	ChatHistory      []TurnInput `json:"chat_history"`
	Model            *string     `json:"model"` // nil selects the default model
	APIKey           string      `json:"api_key"`
}

// TurnInput is one untrusted history entry. Role is "user" or "ai".
type TurnInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Policy holds the request limits enforced by the Validator.
type Policy struct {
	AllowedModels    []string
	DefaultModel     string
	CredentialPrefix string
	MaxHistory       int
	MaxTextLength    int
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedModels:    slices.Clone(DefaultAllowedModels),
		DefaultModel:     defaultModel,
		CredentialPrefix: defaultCredentialPrefix,
		MaxHistory:       MaxHistory,
		MaxTextLength:    MaxTextLength,
	}
}

// Validator turns ChatInput into a domain.ChatRequest. It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	policy  Policy
	allowed map[string]struct{}
}

func NewValidator(p Policy) (*Validator, error) {
	if len(p.AllowedModels) == 0 {
		return nil, errors.New("usecase: allowed models must not be empty")
	}
	allowed := make(map[string]struct{}, len(p.AllowedModels))
	for _, m := range p.AllowedModels {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, errors.New("usecase: allowed models must not contain empty entries")
		}
		allowed[m] = struct{}{}
	}
	p.DefaultModel = strings.TrimSpace(p.DefaultModel)
	if _, ok := allowed[p.DefaultModel]; !ok {
		return nil, fmt.Errorf("usecase: default model %q is not in the allow-list", p.DefaultModel)
	}
	if strings.TrimSpace(p.CredentialPrefix) == "" {
		return nil, errors.New("usecase: credential prefix must not be empty")
	}
	if p.MaxHistory <= 0 {
		p.MaxHistory = MaxHistory
	}
	if p.MaxTextLength <= 0 {
		p.MaxTextLength = MaxTextLength
	}
	p.AllowedModels = slices.Clone(p.AllowedModels)
	return &Validator{policy: p, allowed: allowed}, nil
}

// Sanitize trims surrounding whitespace, strips markup-delimiting characters
// and caps the result at MaxTextLength characters. Sanitize is idempotent.
func Sanitize(s string) string {
	return sanitize(s, MaxTextLength)
}

func sanitize(s string, limit int) string {
	out := forbiddenChars.Replace(strings.TrimSpace(s))
	if limit > 0 && utf8.RuneCountInString(out) > limit {
		out = string([]rune(out)[:limit])
	}
	// Removal and truncation can expose whitespace at either end.
	return strings.TrimSpace(out)
}

// Validate checks fields in a fixed order and reports the first violation:
// developer message, user message, history entries, history length, model,
// credential.
func (v *Validator) Validate(in ChatInput) (domain.ChatRequest, error) {
	system, err := v.requiredText("developer_message", in.DeveloperMessage)
	if err != nil {
		return domain.ChatRequest{}, err
	}
	user, err := v.requiredText("user_message", in.UserMessage)
	if err != nil {
		return domain.ChatRequest{}, err
	}

	history := make([]domain.ChatTurn, 0, len(in.ChatHistory))
	for i, t := range in.ChatHistory {
		speaker, ok := parseSpeaker(t.Role)
		if !ok {
			return domain.ChatRequest{}, newValidationError(ErrorInvalidRole, fmt.Sprintf("chat_history[%d].role", i))
		}
		text, err := v.requiredText(fmt.Sprintf("chat_history[%d].content", i), t.Content)
		if err != nil {
			return domain.ChatRequest{}, err
		}
		history = append(history, domain.ChatTurn{Speaker: speaker, Text: text})
	}
	if len(history) > v.policy.MaxHistory {
		return domain.ChatRequest{}, newValidationError(ErrorHistoryTooLong, fmt.Sprintf("max %d messages", v.policy.MaxHistory))
	}

	// Only an absent model gets the default. Present values are matched
	// exactly, so "" or padded names are rejected.
	model := v.policy.DefaultModel
	if in.Model != nil {
		model = *in.Model
	}
	if _, ok := v.allowed[model]; !ok {
		return domain.ChatRequest{}, newValidationError(ErrorUnsupportedModel, strings.Join(v.policy.AllowedModels, ", "))
	}

	// The prefix is checked on the raw value; the stored key is trimmed.
	key := strings.TrimSpace(in.APIKey)
	if key == "" {
		return domain.ChatRequest{}, newValidationError(ErrorEmptyCredential, "api_key")
	}
	if !strings.HasPrefix(in.APIKey, v.policy.CredentialPrefix) {
		return domain.ChatRequest{}, newValidationError(ErrorMalformedCredential, v.policy.CredentialPrefix)
	}

	return domain.ChatRequest{
		SystemInstruction: system,
		UserMessage:       user,
		History:           history,
		ModelID:           model,
		Credential:        key,
	}, nil
}

// requiredText rejects blank input, then sanitizes it. Input made only of
// forbidden characters is also rejected so stored text is never empty.
func (v *Validator) requiredText(field, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", newValidationError(ErrorEmptyField, field)
	}
	out := sanitize(raw, v.policy.MaxTextLength)
	if out == "" {
		return "", newValidationError(ErrorEmptyField, field)
	}
	return out, nil
}

func parseSpeaker(role string) (domain.Speaker, bool) {
	switch role {
	case "user":
		return domain.SpeakerUser, true
	case "ai":
		return domain.SpeakerAssistant, true
	default:
		return "", false
	}
}
