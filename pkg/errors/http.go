package errors

import "net/http"

// HTTPError represents an HTTP error response.
type HTTPError struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status code for an error.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return codeToHTTPStatus(GetErrorCode(err))
}

func codeToHTTPStatus(code string) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeCancelled:
		return 499 // Client Closed Request
	case CodeValidation, CodeSequenceInvalid, CodeDecodeError:
		return http.StatusBadRequest
	case CodeBusUnavailable:
		return http.StatusServiceUnavailable
	case CodeStaleConnection:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts an error to an HTTPError.
func ToHTTPError(err error) *HTTPError {
	if err == nil {
		return &HTTPError{Status: http.StatusOK, Code: CodeOK, Message: "success"}
	}

	httpErr := &HTTPError{
		Status:  StatusCode(err),
		Code:    GetErrorCode(err),
		Message: GetErrorMessage(err),
		Details: make(map[string]string),
	}

	var (
		validationErr *ValidationError
		busErr        *BusError
	)
	switch {
	case As(err, &validationErr):
		if validationErr.Field != "" {
			httpErr.Details["field"] = validationErr.Field
		}
	case As(err, &busErr):
		if busErr.Op != "" {
			httpErr.Details["operation"] = busErr.Op
		}
		if busErr.Channel != "" {
			httpErr.Details["channel"] = busErr.Channel
		}
	}

	return httpErr
}
