package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
)

func TestReadJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{
			name: "object",
			body: `{"key": "value"}`,
		},
		{
			name: "number keeps text",
			body: `12345678901234567890`,
		},
		{
			name:    "invalid json",
			body:    `{invalid}`,
			wantErr: true,
		},
		{
			name:    "empty",
			body:    ``,
			wantErr: true,
		},
		{
			name:    "too large",
			body:    `"` + strings.Repeat("a", 64) + `"`,
			max:     16,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			got, err := ReadJSONBody(req, tt.max)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadJSONBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Errorf("ReadJSONBody() error = %v, want a validation error", err)
				}
				return
			}
			if string(got) != tt.body {
				t.Errorf("ReadJSONBody() = %s, want %s", got, tt.body)
			}
		})
	}
}
