// Package domainerrors defines the typed error taxonomy shared by every
// security-protocol component.
//
// Services return *Error values built with New or Wrap; callers branch on the
// code with HasCode or errors.Is against another *Error of the same code.
// Stores never return these directly: they return pkg/platform/sentinel errors
// which services translate.
package domainerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a failure. Codes are stable strings so they can be logged,
// exported as metric labels and mapped to transport status codes.
type Code string

const (
	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	CodeAuthenticationFailed  Code = "authentication_failed"
	CodeProtocolViolation     Code = "protocol_violation"
	CodeIncompatibleProtocols Code = "incompatible_protocols"
	CodeContextMismatch       Code = "context_mismatch"

	CodeTokenExpired      Code = "token_expired"
	CodeTokenRevoked      Code = "token_revoked"
	CodeInsufficientScope Code = "insufficient_scope"

	CodeChallengeExpired    Code = "challenge_expired"
	CodeSignatureInvalid    Code = "signature_invalid"
	CodeDeviceNotRecognized Code = "device_not_recognized"

	CodeTimeout                Code = "timeout"
	CodeResourceCleanupFailure Code = "resource_cleanup_failure"
)

// Error is a coded failure with optional protocol context and an enumerated
// list of details (for example every certificate validation error found).
type Error struct {
	Code     Code
	Message  string
	Protocol string
	Details  []string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Protocol != "" {
		b.WriteString(" [")
		b.WriteString(e.Protocol)
		b.WriteString("]")
	}
	if len(e.Details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Details, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails creates a coded error enumerating individual reasons.
func WithDetails(code Code, message string, details ...string) error {
	return &Error{Code: code, Message: message, Details: append([]string(nil), details...)}
}

// ProtocolViolation reports a request that breaks the rules of a protocol or of
// the registry (unknown connection, wrong state).
func ProtocolViolation(protocol, details string) error {
	return &Error{Code: CodeProtocolViolation, Message: details, Protocol: protocol}
}

// AuthenticationFailed reports a terminal credential verification failure.
func AuthenticationFailed(reason string, details ...string) error {
	return &Error{Code: CodeAuthenticationFailed, Message: reason, Details: append([]string(nil), details...)}
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the outermost code in err's chain, or "" for uncoded errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DetailsOf returns the enumerated details of the outermost coded error.
func DetailsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return append([]string(nil), e.Details...)
	}
	return nil
}

// Retryable reports whether the caller may retry with fresh material.
// Only transient transport failures qualify; cryptographic failures never do.
func Retryable(err error) bool {
	return HasCode(err, CodeTimeout)
}
