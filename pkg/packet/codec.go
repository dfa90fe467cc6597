package packet

import (
	"fmt"

	"github.com/relaymesh/transit/pkg/serializer"
)

// ErrUnknownCommand is returned when Decode is asked to handle a command
// outside the closed set in this package. Encode does not check the command.
type ErrUnknownCommand struct {
	Command Command
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("packet: unknown command %q", e.Command)
}

// ErrDecodeFailed wraps a serializer error encountered while decoding a command's
// payload shape. Encode returns it too when marshalling a payload fails.
type ErrDecodeFailed struct {
	Command Command
	Cause   error
}

func (e *ErrDecodeFailed) Error() string {
	return fmt.Sprintf("packet: decode failed for %s: %v", e.Command, e.Cause)
}

func (e *ErrDecodeFailed) Unwrap() error { return e.Cause }

// Codec serializes and deserializes packets, owning the command→shape mapping.
// The bytes layer itself is delegated to a serializer.Serializer.
type Codec struct {
	ser serializer.Serializer
}

// NewCodec creates a Codec backed by ser.
func NewCodec(ser serializer.Serializer) *Codec {
	return &Codec{ser: ser}
}

// Encode serializes a payload for the given command into bytes.
func (c *Codec) Encode(cmd Command, payload any) ([]byte, error) {
	b, err := c.ser.Marshal(payload)
	if err != nil {
		return nil, &ErrDecodeFailed{Command: cmd, Cause: err}
	}
	return b, nil
}

// newPayload allocates the zero-value payload struct for a command.
func newPayload(cmd Command) (any, error) {
	switch cmd {
	case CmdEvent:
		return &EventPayload{}, nil
	case CmdRequest:
		return &RequestPayload{}, nil
	case CmdResponse:
		return &ResponsePayload{}, nil
	case CmdDiscover:
		return &DiscoverPayload{}, nil
	case CmdInfo:
		return &InfoPayload{}, nil
	case CmdDisconnect:
		return &DisconnectPayload{}, nil
	case CmdHeartbeat:
		return &HeartbeatPayload{}, nil
	case CmdPing:
		return &PingPayload{}, nil
	case CmdPong:
		return &PongPayload{}, nil
	default:
		return nil, &ErrUnknownCommand{Command: cmd}
	}
}

// Decode deserializes raw bytes into the payload shape for cmd. The returned value
// is one of the *Payload types in this package; callers type-assert on Command.
func (c *Codec) Decode(cmd Command, data []byte) (any, error) {
	payload, err := newPayload(cmd)
	if err != nil {
		return nil, err
	}

	if err := c.ser.Unmarshal(data, payload); err != nil {
		return nil, &ErrDecodeFailed{Command: cmd, Cause: err}
	}

	return payload, nil
}

// HeaderOf extracts the common Header from a decoded payload, regardless of its
// concrete command shape.
func HeaderOf(payload any) (Header, bool) {
	switch p := payload.(type) {
	case *EventPayload:
		return p.Header, true
	case *RequestPayload:
		return p.Header, true
	case *ResponsePayload:
		return p.Header, true
	case *DiscoverPayload:
		return p.Header, true
	case *InfoPayload:
		return p.Header, true
	case *DisconnectPayload:
		return p.Header, true
	case *HeartbeatPayload:
		return p.Header, true
	case *PingPayload:
		return p.Header, true
	case *PongPayload:
		return p.Header, true
	default:
		return Header{}, false
	}
}
