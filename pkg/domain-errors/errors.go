// Package domainerrors provides code-carrying errors for the engine.
//
// Services return these so transports and the action dispatcher can surface a
// stable machine-readable code without inspecting error strings. Infrastructure
// facts (row missing, state conflict) use pkg/platform/sentinel and are
// translated into these codes at the service boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error category surfaced to callers.
type Code string

const (
	// Dispatcher boundary.
	CodeDecodeError    Code = "decode_error"
	CodeUnauthorized   Code = "unauthorized"
	CodeActionDisabled Code = "action_disabled"

	// Compliance and lifecycle policy.
	CodeComplianceRejected Code = "compliance_rejected"
	CodeInvalidState       Code = "invalid_state"
	CodeCapExceeded        Code = "cap_exceeded"

	// Freeze and funds policy.
	CodeAccountFrozen               Code = "account_frozen"
	CodeInsufficientUnfrozenBalance Code = "insufficient_unfrozen_balance"
	CodeInsufficientFunds           Code = "insufficient_funds"

	// General.
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Wrapf attaches a code and a formatted message to an underlying error.
func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message carried by err, or an empty string when err is
// not a domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
