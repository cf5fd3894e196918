package core

import (
	"errors"
	"fmt"
)

// Error is the typed failure surfaced by the voice engine and its collaborators.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`

	// RequestID is set when the error is returned over HTTP.
	RequestID string `json:"request_id,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("%s (code: %s)", msg, e.Code)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest    ErrorType = "invalid_request_error"
	ErrInvalidState      ErrorType = "invalid_state_error"
	ErrAcquisition       ErrorType = "acquisition_error"
	ErrRemoteOpen        ErrorType = "remote_open_error"
	ErrRemoteRuntime     ErrorType = "remote_runtime_error"
	ErrDecode            ErrorType = "decode_error"
	ErrUnsupportedFormat ErrorType = "unsupported_format_error"
	ErrPersistence       ErrorType = "persistence_error"

	// HTTP surface only.
	ErrNotFound  ErrorType = "not_found_error"
	ErrRateLimit ErrorType = "rate_limit_error"
	ErrAPI       ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidStateError reports an operation attempted in the wrong lifecycle state.
func NewInvalidStateError(message string) *Error {
	return &Error{Type: ErrInvalidState, Message: message}
}

// NewAcquisitionError reports a microphone or output device that could not be opened.
func NewAcquisitionError(message string, cause error) *Error {
	return &Error{Type: ErrAcquisition, Message: message, Cause: cause}
}

// NewRemoteOpenError reports a remote session that failed before it was acknowledged.
func NewRemoteOpenError(message string, cause error) *Error {
	return &Error{Type: ErrRemoteOpen, Message: message, Cause: cause}
}

// NewRemoteRuntimeError reports a remote close or error after the session opened.
func NewRemoteRuntimeError(message, code string) *Error {
	return &Error{Type: ErrRemoteRuntime, Message: message, Code: code}
}

// NewDecodeError reports a payload that is not valid base64.
func NewDecodeError(message string, cause error) *Error {
	return &Error{Type: ErrDecode, Message: message, Cause: cause}
}

// NewUnsupportedFormatError reports PCM that does not fit the declared frame layout.
func NewUnsupportedFormatError(message string) *Error {
	return &Error{Type: ErrUnsupportedFormat, Message: message}
}

// NewPersistenceError wraps a history store failure.
func NewPersistenceError(message string, cause error) *Error {
	return &Error{Type: ErrPersistence, Message: message, Cause: cause}
}

// IsType reports whether err (or anything it wraps) is a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Type == t
}

// TypeOf returns the ErrorType of err, or the empty string when err is not a *Error.
func TypeOf(err error) ErrorType {
	var ce *Error
	if !errors.As(err, &ce) {
		return ""
	}
	return ce.Type
}
