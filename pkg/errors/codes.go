package errors

// Error codes for categorizing relay errors.
// These codes map to HTTP status codes for the auxiliary HTTP routes.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeCancelled indicates the operation was cancelled by teardown.
	CodeCancelled = "CANCELLED"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// Relay-specific error codes

	// CodeSequenceInvalid indicates the requested start sequence was missing
	// or not a base-10 integer.
	CodeSequenceInvalid = "SEQUENCE_INVALID"

	// CodeBusUnavailable indicates the message bus could not be reached or
	// rejected the subscription.
	CodeBusUnavailable = "BUS_UNAVAILABLE"

	// CodeDecodeError indicates a bus payload was not valid JSON.
	CodeDecodeError = "DECODE_ERROR"

	// CodeStaleConnection indicates the peer failed the heartbeat.
	CodeStaleConnection = "STALE_CONNECTION"
)
