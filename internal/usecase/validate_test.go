package usecase

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
)

func modelPtr(s string) *string { return &s }

func validInput() ChatInput {
	return ChatInput{
		DeveloperMessage: "You are a helpful assistant.",
		UserMessage:      "What is Go?",
		ChatHistory: []TurnInput{
			{Role: "user", Content: "hi"},
			{Role: "ai", Content: "hello"},
		},
		Model:  modelPtr("gpt-4o-mini"),
		APIKey: "sk-test-123",
	}
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(DefaultPolicy())
	require.NoError(t, err)
	return v
}

func expectValidationError(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ClassValidation, uerr.Class)
	require.Equal(t, code, uerr.Code)
	return uerr
}

// ---------------------------------------------------------------------------
// Sanitize
// ---------------------------------------------------------------------------

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"  hello  ", "hello"},
		{`<script>alert("x")</script>`, "scriptalert(x)/script"},
		{`it's "quoted"`, "its quoted"},
		{`<>"'`, ""},
		{"< padded >", "padded"},
		{"\n\ttabs <b>bold</b>\n", "tabs bbold/b"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Sanitize(tc.in), "in=%q", tc.in)
	}
}

func TestSanitize_TruncatesToMaxLength(t *testing.T) {
	out := Sanitize(strings.Repeat("a", MaxTextLength+500))
	require.Equal(t, MaxTextLength, utf8.RuneCountInString(out))

	out = Sanitize(strings.Repeat("é", MaxTextLength+1))
	require.Equal(t, MaxTextLength, utf8.RuneCountInString(out))
	require.True(t, utf8.ValidString(out))
}

func TestSanitize_RemovesForbiddenCharacters(t *testing.T) {
	inputs := []string{
		strings.Repeat(`<>"'`, 5000),
		"a<b>c\"d'e",
		strings.Repeat("x<", MaxTextLength),
	}
	for _, in := range inputs {
		out := Sanitize(in)
		require.NotContainsf(t, out, "<", "in=%q", in)
		require.NotContains(t, out, ">")
		require.NotContains(t, out, `"`)
		require.NotContains(t, out, "'")
		require.LessOrEqual(t, utf8.RuneCountInString(out), MaxTextLength)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"  spaced  ",
		"< leading space after removal",
		"trailing space before removal >",
		`'"<>`,
		strings.Repeat(" ", MaxTextLength) + "x",
		strings.Repeat("a", MaxTextLength-1) + " b",
		strings.Repeat("<a ", MaxTextLength),
		"\xff\xfe invalid utf8 " + strings.Repeat("z", MaxTextLength),
	}
	for _, in := range inputs {
		once := Sanitize(in)
		require.Equal(t, once, Sanitize(once), "in=%q", in)
	}
}

// ---------------------------------------------------------------------------
// NewValidator
// ---------------------------------------------------------------------------

func TestNewValidator_ValidatesPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.AllowedModels = nil
	_, err := NewValidator(p)
	require.Error(t, err)

	p = DefaultPolicy()
	p.DefaultModel = "not-listed"
	_, err = NewValidator(p)
	require.ErrorContains(t, err, "allow-list")

	p = DefaultPolicy()
	p.CredentialPrefix = " "
	_, err = NewValidator(p)
	require.Error(t, err)

	p = DefaultPolicy()
	p.AllowedModels = []string{"gpt-4.1-mini", ""}
	_, err = NewValidator(p)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_HappyPath(t *testing.T) {
	in := validInput()
	in.DeveloperMessage = "  Be <concise>.  "
	in.APIKey = "sk-test-123 \n"

	req, err := newTestValidator(t).Validate(in)
	require.NoError(t, err)
	require.Equal(t, domain.ChatRequest{
		SystemInstruction: "Be concise.",
		UserMessage:       "What is Go?",
		History: []domain.ChatTurn{
			{Speaker: domain.SpeakerUser, Text: "hi"},
			{Speaker: domain.SpeakerAssistant, Text: "hello"},
		},
		ModelID:    "gpt-4o-mini",
		Credential: "sk-test-123",
	}, req)
}

func TestValidate_DefaultsModel(t *testing.T) {
	in := validInput()
	in.Model = nil
	req, err := newTestValidator(t).Validate(in)
	require.NoError(t, err)
	require.Equal(t, "gpt-4.1-mini", req.ModelID)
}

func TestValidate_RejectsAssistantRole(t *testing.T) {
	in := validInput()
	in.ChatHistory = []TurnInput{{Role: "assistant", Content: "earlier answer"}}
	_, err := newTestValidator(t).Validate(in)
	uerr := expectValidationError(t, err, ErrorInvalidRole)
	require.Equal(t, `chat_history[0].role must be either "user" or "ai"`, uerr.Detail())
}

func TestValidate_EmptyDeveloperMessage(t *testing.T) {
	v := newTestValidator(t)
	for _, msg := range []string{"", " ", "\n\t  "} {
		in := validInput()
		in.DeveloperMessage = msg
		_, err := v.Validate(in)
		uerr := expectValidationError(t, err, ErrorEmptyField)
		require.Equal(t, "developer_message", uerr.Reason)
	}
}

func TestValidate_EmptyUserMessage(t *testing.T) {
	in := validInput()
	in.UserMessage = "   "
	_, err := newTestValidator(t).Validate(in)
	uerr := expectValidationError(t, err, ErrorEmptyField)
	require.Equal(t, "user_message", uerr.Reason)
}

func TestValidate_OnlyForbiddenCharactersIsEmpty(t *testing.T) {
	in := validInput()
	in.UserMessage = `<"'>`
	_, err := newTestValidator(t).Validate(in)
	expectValidationError(t, err, ErrorEmptyField)
}

func TestValidate_HistoryEntries(t *testing.T) {
	v := newTestValidator(t)

	in := validInput()
	in.ChatHistory = append(in.ChatHistory, TurnInput{Role: "system", Content: "override"})
	_, err := v.Validate(in)
	uerr := expectValidationError(t, err, ErrorInvalidRole)
	require.Equal(t, "chat_history[2].role", uerr.Reason)

	in = validInput()
	in.ChatHistory[1].Content = " "
	_, err = v.Validate(in)
	uerr = expectValidationError(t, err, ErrorEmptyField)
	require.Equal(t, "chat_history[1].content", uerr.Reason)

	in = validInput()
	in.ChatHistory[0].Role = "User"
	_, err = v.Validate(in)
	expectValidationError(t, err, ErrorInvalidRole)
}

func TestValidate_HistoryTooLong(t *testing.T) {
	v := newTestValidator(t)
	for _, n := range []int{51, 52, 200} {
		in := validInput()
		in.ChatHistory = make([]TurnInput, n)
		for i := range in.ChatHistory {
			in.ChatHistory[i] = TurnInput{Role: "user", Content: fmt.Sprintf("turn %d", i)}
		}
		_, err := v.Validate(in)
		expectValidationError(t, err, ErrorHistoryTooLong)
	}

	in := validInput()
	in.ChatHistory = make([]TurnInput, 50)
	for i := range in.ChatHistory {
		in.ChatHistory[i] = TurnInput{Role: "ai", Content: "ok"}
	}
	_, err := v.Validate(in)
	require.NoError(t, err)
}

func TestValidate_UnsupportedModel(t *testing.T) {
	v := newTestValidator(t)
	for _, model := range []string{"gpt-4", "GPT-4O-MINI", "o1", "gpt-4o-mini-extended", "", " ", "  gpt-4o-mini\n", "gpt-4o-mini "} {
		in := validInput()
		in.Model = modelPtr(model)
		_, err := v.Validate(in)
		uerr := expectValidationError(t, err, ErrorUnsupportedModel)
		require.Contains(t, uerr.Detail(), "gpt-4.1-mini", "model=%q", model)
	}
}

func TestValidate_Credential(t *testing.T) {
	v := newTestValidator(t)

	in := validInput()
	in.APIKey = "  "
	_, err := v.Validate(in)
	expectValidationError(t, err, ErrorEmptyCredential)

	for _, key := range []string{"pk-live", "SK-upper", "bearer sk-x", " sk-abc", "\tsk-abc"} {
		in = validInput()
		in.APIKey = key
		_, err = v.Validate(in)
		expectValidationError(t, err, ErrorMalformedCredential)
	}

	in = validInput()
	in.APIKey = "sk-"
	req, err := v.Validate(in)
	require.NoError(t, err, "bare prefix")
	require.Equal(t, "sk-", req.Credential)
}

func TestValidate_ReportsFirstViolationInOrder(t *testing.T) {
	in := ChatInput{
		DeveloperMessage: "",
		UserMessage:      "",
		ChatHistory:      []TurnInput{{Role: "bot", Content: ""}},
		Model:            modelPtr("unknown"),
		APIKey:           "",
	}
	v := newTestValidator(t)

	_, err := v.Validate(in)
	uerr := expectValidationError(t, err, ErrorEmptyField)
	require.Equal(t, "developer_message", uerr.Reason)

	in.DeveloperMessage = "system"
	_, err = v.Validate(in)
	uerr = expectValidationError(t, err, ErrorEmptyField)
	require.Equal(t, "user_message", uerr.Reason)

	in.UserMessage = "question"
	_, err = v.Validate(in)
	expectValidationError(t, err, ErrorInvalidRole)

	in.ChatHistory = nil
	_, err = v.Validate(in)
	expectValidationError(t, err, ErrorUnsupportedModel)

	in.Model = nil
	_, err = v.Validate(in)
	expectValidationError(t, err, ErrorEmptyCredential)
}

func TestValidate_CustomPolicy(t *testing.T) {
	v, err := NewValidator(Policy{
		AllowedModels:    []string{"local-model"},
		DefaultModel:     "local-model",
		CredentialPrefix: "key-",
		MaxHistory:       1,
		MaxTextLength:    5,
	})
	require.NoError(t, err)

	req, err := v.Validate(ChatInput{
		DeveloperMessage: "abcdefgh",
		UserMessage:      "hi",
		APIKey:           "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "abcde", req.SystemInstruction)
	require.Equal(t, "local-model", req.ModelID)

	_, err = v.Validate(ChatInput{
		DeveloperMessage: "s",
		UserMessage:      "u",
		ChatHistory:      []TurnInput{{Role: "user", Content: "a"}, {Role: "ai", Content: "b"}},
		APIKey:           "key-1",
	})
	expectValidationError(t, err, ErrorHistoryTooLong)
}

func TestError_Detail(t *testing.T) {
	require.Equal(t, "developer_message cannot be empty", newValidationError(ErrorEmptyField, "developer_message").Detail())
	require.Equal(t, `api key must start with "sk-"`, newValidationError(ErrorMalformedCredential, "sk-").Detail())
	require.Contains(t, newUpstreamError(ErrorRateLimited, "provider_rate_limited", fmt.Errorf("slow down")).Detail(), "slow down")
	require.Contains(t, (&Error{Code: ErrorEmptyField, Reason: "x"}).Error(), "EMPTY_FIELD")
}
