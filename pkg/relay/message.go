package relay

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/DeBrosOfficial/stream-relay/pkg/bus"
	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
)

// RelayedMessage is the frame sent to clients for every bus message.
type RelayedMessage struct {
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Translate builds the client frame for msg. The payload must be a single
// JSON value; numbers keep their exact text. A payload that does not decode
// yields a *errors.DecodeError.
func Translate(msg bus.Message) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, errors.NewDecodeError(msg.Sequence, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data after JSON value")
		}
		return nil, errors.NewDecodeError(msg.Sequence, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(RelayedMessage{
		Sequence:  msg.Sequence,
		Timestamp: msg.Timestamp,
		Data:      data,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to encode relayed message")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
