// Package protocol defines the websocket frames exchanged between room
// clients and the server. Every frame is a single JSON object tagged by a
// "type" field; each direction is a closed set of variants.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the "type" tag of a frame.
type Kind string

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// Message is any frame that can be put on the wire.
type Message interface {
	Kind() Kind
}

// Encode serialises m as a flat JSON object with its "type" tag first.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("protocol.Encode: nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol.Encode %s: %w", m.Kind(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("protocol.Encode %s: not an object", m.Kind())
	}
	tag, _ := json.Marshal(m.Kind())

	out := make([]byte, 0, len(body)+len(tag)+9)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}

func peekKind(data []byte) (Kind, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return head.Type, nil
}

func decodeInto[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
