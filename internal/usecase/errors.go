package usecase

import "fmt"

type ErrorClass string

const (
	ClassValidation ErrorClass = "VALIDATION"
	ClassUpstream   ErrorClass = "UPSTREAM"
)

type ErrorCode string

const (
	ErrorEmptyField          ErrorCode = "EMPTY_FIELD"
	ErrorInvalidRole         ErrorCode = "INVALID_ROLE"
	ErrorHistoryTooLong      ErrorCode = "HISTORY_TOO_LONG"
	ErrorUnsupportedModel    ErrorCode = "UNSUPPORTED_MODEL"
	ErrorEmptyCredential     ErrorCode = "EMPTY_CREDENTIAL"
	ErrorMalformedCredential ErrorCode = "MALFORMED_CREDENTIAL"

	ErrorAuthenticationRejected ErrorCode = "AUTHENTICATION_REJECTED"
	ErrorNetworkFailure         ErrorCode = "NETWORK_FAILURE"
	ErrorProviderRejected       ErrorCode = "PROVIDER_REJECTED"
	ErrorRateLimited            ErrorCode = "RATE_LIMITED"
	ErrorStreamInterrupted      ErrorCode = "STREAM_INTERRUPTED"
)

// Error is returned for every caller-input or upstream failure. Reason names
// the offending field for validation errors and the failure site otherwise.
type Error struct {
	Class  ErrorClass
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Detail renders a caller-facing description of the failure.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case ErrorEmptyField:
		return e.Reason + " cannot be empty"
	case ErrorInvalidRole:
		return e.Reason + ` must be either "user" or "ai"`
	case ErrorHistoryTooLong:
		return "chat history too long (" + e.Reason + ")"
	case ErrorUnsupportedModel:
		return "model must be one of: " + e.Reason
	case ErrorEmptyCredential:
		return "api key cannot be empty"
	case ErrorMalformedCredential:
		return `api key must start with "` + e.Reason + `"`
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func newValidationError(code ErrorCode, reason string) *Error {
	return &Error{Class: ClassValidation, Code: code, Reason: reason}
}

func newUpstreamError(code ErrorCode, reason string, err error) *Error {
	return &Error{Class: ClassUpstream, Code: code, Reason: reason, Err: err}
}
