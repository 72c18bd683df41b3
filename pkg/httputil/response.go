package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
)

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json and encodes the value as JSON.
// Any encoding errors are silently ignored (best-effort).
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as {"code", "message", "details"} with the status
// its error code maps to.
func WriteError(w http.ResponseWriter, err error) {
	httpErr := errors.ToHTTPError(err)
	WriteJSON(w, httpErr.Status, httpErr)
}

// WriteStatusError writes a JSON error for a plain status code.
func WriteStatusError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, map[string]any{"code": http.StatusText(code), "message": msg})
}
