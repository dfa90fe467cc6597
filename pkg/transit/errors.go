package transit

import (
	"fmt"

	"github.com/relaymesh/transit/pkg/packet"
	"github.com/relaymesh/transit/pkg/pending"
)

// ErrQueueFull and ErrRequestRejected are owned by pkg/pending, the table that
// actually enforces the queue-size gate and performs peer-loss sweeps; Transit
// re-exposes them here under matching names, so
// callers needn't import pkg/pending just to errors.As against them.
type (
	ErrQueueFull       = pending.ErrQueueFull
	ErrRequestRejected = pending.ErrRequestRejected
)

// ErrMissingPacket is reported when inbound bytes are empty. OnMessage itself
// never returns it; it reaches a caller only through Config.OnDropped.
type ErrMissingPacket struct {
	Command packet.Command
}

func (e *ErrMissingPacket) Error() string {
	return fmt.Sprintf("transit: missing packet bytes for command %s", e.Command)
}

// ErrMissingPayload is reported when decode succeeds but yields no usable
// header (should not happen for well-formed input; guards against a
// serializer returning a zero value silently).
type ErrMissingPayload struct {
	Command packet.Command
}

func (e *ErrMissingPayload) Error() string {
	return fmt.Sprintf("transit: missing payload for command %s", e.Command)
}

// ErrProtocolVersionMismatch is reported when a decoded payload's Ver field
// does not match packet.ProtocolVersion.
type ErrProtocolVersionMismatch struct {
	Sender   string
	Observed string
	Expected string
}

func (e *ErrProtocolVersionMismatch) Error() string {
	return fmt.Sprintf("transit: protocol version mismatch from %s: observed=%s expected=%s",
		e.Sender, e.Observed, e.Expected)
}

// ErrRemoteFailure is the error envelope reconstructed from a peer's failed
// RESPONSE. Message carries the "(NodeID: <sender>)" suffix.
type ErrRemoteFailure struct {
	Name    string
	Message string
	Code    int
	Type    string
	NodeID  string
	Data    any
	Stack   string
}

func (e *ErrRemoteFailure) Error() string {
	return e.Message
}

func remoteFailureFrom(env *packet.ErrorEnvelope, sender string) *ErrRemoteFailure {
	if env == nil {
		return &ErrRemoteFailure{
			Name:    "Error",
			Message: fmt.Sprintf("remote failure (NodeID: %s)", sender),
			Code:    500,
			Type:    "UNKNOWN_ERROR",
			NodeID:  sender,
		}
	}
	return &ErrRemoteFailure{
		Name:    env.Name,
		Message: fmt.Sprintf("%s (NodeID: %s)", env.Message, sender),
		Code:    env.Code,
		Type:    env.Type,
		NodeID:  sender,
		Data:    env.Data,
		Stack:   env.Stack,
	}
}

// errorEnvelopeFrom builds the wire ErrorEnvelope for an outbound failing
// RESPONSE. Errors that implement EnvelopeProvider get their fields copied
// through; any other error becomes a generic 500/UNKNOWN_ERROR envelope.
type EnvelopeProvider interface {
	TransitErrorEnvelope() packet.ErrorEnvelope
}

func errorEnvelopeFrom(err error, nodeID string) *packet.ErrorEnvelope {
	if provider, ok := err.(EnvelopeProvider); ok {
		env := provider.TransitErrorEnvelope()
		env.NodeID = nodeID
		return &env
	}
	return &packet.ErrorEnvelope{
		Name:    "Error",
		Message: err.Error(),
		Code:    500,
		Type:    "UNKNOWN_ERROR",
		NodeID:  nodeID,
	}
}
