package errors

import (
	"context"
	"errors"
)

// IsDecode checks if an error is a per-message decode failure.
func IsDecode(err error) bool {
	if err == nil {
		return false
	}
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsCancelled checks if an error is the result of teardown cancelling an
// in-flight operation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Code()
	}

	switch {
	case errors.Is(err, ErrSequenceInvalid):
		return CodeSequenceInvalid
	case errors.Is(err, ErrBusUnavailable):
		return CodeBusUnavailable
	case errors.Is(err, ErrStaleConnection):
		return CodeStaleConnection
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

// GetErrorMessage extracts a human-readable message from an error.
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Message()
	}

	return err.Error()
}
