package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
)

// DefaultMaxBody bounds request bodies read by ReadJSONBody.
const DefaultMaxBody = 1 << 20

// ReadJSONBody reads the request body up to maxBytes and checks that it is
// a single JSON value. The bytes are returned unchanged.
func ReadJSONBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read request body")
	}
	if int64(len(body)) > maxBytes {
		return nil, errors.NewValidationError("body", "request body too large", len(body))
	}
	if len(body) == 0 {
		return nil, errors.NewValidationError("body", "request body is empty", nil)
	}
	if !json.Valid(body) {
		return nil, errors.NewValidationError("body", "request body is not valid JSON", nil)
	}
	return body, nil
}
