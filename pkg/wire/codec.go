package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidFrame indicates a line that does not decode as a wire message.
var ErrInvalidFrame = errors.New("invalid frame")

// EncodeRequest serializes a request as one newline-terminated JSON line.
func EncodeRequest(r *Request) ([]byte, error) {
	if r.Params == nil {
		r.Params = []any{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request %d: %w", r.ID, err)
	}
	return append(data, '\n'), nil
}

// DecodeMessage parses one inbound line into a Message.
func DecodeMessage(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrInvalidFrame)
	}
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return &m, nil
}
