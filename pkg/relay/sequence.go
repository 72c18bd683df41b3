package relay

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
)

var sequenceRe = regexp.MustCompile(`^[0-9]+$`)

// ParseSequence extracts the start sequence from a request path. The token
// is everything after the last occurrence of prefix and must be a base-10
// integer with nothing else around it. Zero is a valid sequence.
func ParseSequence(target, prefix string) (uint64, error) {
	pos := -1
	if prefix != "" {
		pos = strings.LastIndex(target, prefix)
	}
	if pos < 0 {
		return 0, errors.NewSequenceError(target, "")
	}

	token := target[pos+len(prefix):]
	if !sequenceRe.MatchString(token) {
		return 0, errors.NewSequenceError(target, token)
	}

	seq, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		// Out of range for uint64.
		return 0, errors.NewSequenceError(target, token)
	}
	return seq, nil
}
