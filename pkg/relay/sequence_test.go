package relay

import (
	"testing"

	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
)

func TestParseSequence(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		want    uint64
		wantErr bool
	}{
		{name: "plain", target: "/subscribe/100", want: 100},
		{name: "zero", target: "/subscribe/0", want: 0},
		{name: "leading zeros", target: "/subscribe/007", want: 7},
		{name: "nested prefix uses last occurrence", target: "/feeds/subscribe/x/subscribe/42", want: 42},
		{name: "prefix only at end", target: "/subscribe/100/subscribe/", wantErr: true},
		{name: "missing prefix", target: "/other/100", wantErr: true},
		{name: "not a number", target: "/subscribe/abc", wantErr: true},
		{name: "trailing garbage", target: "/subscribe/12abc", wantErr: true},
		{name: "negative", target: "/subscribe/-1", wantErr: true},
		{name: "explicit plus", target: "/subscribe/+1", wantErr: true},
		{name: "whitespace", target: "/subscribe/ 1", wantErr: true},
		{name: "overflow", target: "/subscribe/99999999999999999999999", wantErr: true},
		{name: "empty target", target: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSequence(tt.target, "/subscribe/")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSequence(%q) error = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, errors.ErrSequenceInvalid) {
					t.Errorf("ParseSequence(%q) error = %v, want sequence invalid", tt.target, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseSequence(%q) = %d, want %d", tt.target, got, tt.want)
			}
		})
	}
}

func TestParseSequence_EmptyPrefix(t *testing.T) {
	if _, err := ParseSequence("/100", ""); !errors.Is(err, errors.ErrSequenceInvalid) {
		t.Fatalf("expected sequence invalid for empty prefix, got %v", err)
	}
}
