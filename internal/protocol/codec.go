package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEmptyFrame is returned for frames with no payload.
	ErrEmptyFrame = errors.New("protocol: empty frame")
	// ErrMalformedFrame is returned for frames that do not parse as an envelope.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
)

// Decode parses a text frame into an Envelope. Callers drop the frame on any
// error; nothing here is meant to reach the business layer.
func Decode(frame []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(frame)) == 0 {
		return nil, ErrEmptyFrame
	}

	var env *Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: null envelope", ErrMalformedFrame)
	}
	return env, nil
}

// Encode serializes env into an outbound text frame. A nil envelope yields no
// frame and no error.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, nil
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode envelope: %w", err)
	}
	return frame, nil
}
