package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for quick checks
var (
	// ErrSequenceInvalid is returned when the request target carries no
	// usable start sequence.
	ErrSequenceInvalid = errors.New("sequence invalid")

	// ErrBusUnavailable is returned when the bus cannot be reached.
	ErrBusUnavailable = errors.New("bus unavailable")

	// ErrStaleConnection is returned when a peer misses a heartbeat.
	ErrStaleConnection = errors.New("stale connection")

	// ErrClosed is returned when a write hits a socket that was already
	// closed.
	ErrClosed = errors.New("connection closed")
)

// Error is the base interface for all custom errors in the relay.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// SequenceError reports a request target without a valid start sequence.
type SequenceError struct {
	*BaseError
	Target string
	Token  string
}

// NewSequenceError creates a sequence error for target. token is the text
// that failed to parse, empty when the prefix was not found at all.
func NewSequenceError(target, token string) *SequenceError {
	message := "sequence invalid"
	if token == "" {
		message = "sequence path missing"
	}
	return &SequenceError{
		BaseError: &BaseError{
			code:    CodeSequenceInvalid,
			message: message,
		},
		Target: target,
		Token:  token,
	}
}

// Error implements the error interface.
func (e *SequenceError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("sequence %q in %q is not an integer", e.Token, e.Target)
	}
	return fmt.Sprintf("no sequence path in %q", e.Target)
}

// Is lets errors.Is(err, ErrSequenceInvalid) match.
func (e *SequenceError) Is(target error) bool {
	return target == ErrSequenceInvalid
}

// BusError reports a failed interaction with the message bus.
type BusError struct {
	*BaseError
	Op      string
	Channel string
}

// NewBusError creates a bus error for op ("connect", "subscribe", "lost").
func NewBusError(op, channel string, cause error) *BusError {
	return &BusError{
		BaseError: &BaseError{
			code:    CodeBusUnavailable,
			message: fmt.Sprintf("bus %s failed", op),
			cause:   cause,
		},
		Op:      op,
		Channel: channel,
	}
}

// Is lets errors.Is(err, ErrBusUnavailable) match.
func (e *BusError) Is(target error) bool {
	return target == ErrBusUnavailable
}

// DecodeError reports a bus payload that is not valid JSON.
type DecodeError struct {
	*BaseError
	Sequence uint64
}

// NewDecodeError creates a decode error for the message at seq.
func NewDecodeError(seq uint64, cause error) *DecodeError {
	return &DecodeError{
		BaseError: &BaseError{
			code:    CodeDecodeError,
			message: fmt.Sprintf("payload at sequence %d is not valid JSON", seq),
			cause:   cause,
		},
		Sequence: seq,
	}
}

// ValidationError represents an input validation error.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code.
// Otherwise the result carries CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	code := CodeInternal
	var e Error
	if errors.As(err, &e) {
		code = e.Code()
	}
	return &BaseError{
		code:    code,
		message: message,
		cause:   err,
	}
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
	}
}
