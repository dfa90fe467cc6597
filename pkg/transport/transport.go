// Package transport defines the Transporter contract Transit drives, plus two
// reference implementations: an in-process LocalTransporter for tests and
// single-process demos, and a NATSTransporter for real multi-node deployments.
// Transit never imports a transporter's concrete type; it is wired in at
// construction time through this interface.
package transport

import (
	"context"
	"fmt"

	"github.com/relaymesh/transit/pkg/packet"
)

// MessageHandler is invoked once per inbound message, already demultiplexed to
// a command and carrying its raw encoded payload. Transit's dispatcher is the
// only handler a Transporter ever calls.
type MessageHandler func(cmd packet.Command, data []byte)

// Transporter is the pluggable pub/sub collaborator Transit rides on. A
// Transporter carries bytes; it has no opinion on wire format or packet
// shape, both of which live in pkg/packet and pkg/serializer.
type Transporter interface {
	// Init wires the transporter to a node identity and the single inbound
	// message callback. It must be called before Connect.
	Init(nodeID string, onMessage MessageHandler) error

	// Connect establishes the underlying connection. It does not itself
	// subscribe to anything; Transit calls Subscribe afterward to build the
	// subscription barrier before any Publish is allowed.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Connected returns false
	// afterward, and Publish calls after Disconnect return an error.
	Disconnect() error

	// Connected reports the current connection state.
	Connected() bool

	// Subscribe registers interest in a command's topic, scoped to this node
	// unless nodeID is empty, in which case it is the command's
	// broadcast/shared topic (e.g. DISCOVER, INFO, HEARTBEAT).
	Subscribe(cmd packet.Command, nodeID string) error

	// Publish sends an already-encoded payload for cmd, addressed to nodeID
	// when targeted (REQUEST, RESPONSE, PING, PONG, DISCOVER-reply) or
	// broadcast when nodeID is empty (group-scoped EVENT, DISCOVER,
	// HEARTBEAT, DISCONNECT).
	Publish(cmd packet.Command, nodeID string, data []byte) error
}

// Topic computes the transporter-agnostic topic name for a command, optionally
// scoped to a node. Concrete transporters may prefix this with their own
// namespace (e.g. NATSTransporter prefixes with its subject root) but agree on
// this base shape so tests can assert subscription topics independent of the
// transporter in use.
func Topic(prefix string, cmd packet.Command, nodeID string) string {
	if nodeID == "" {
		return fmt.Sprintf("%s.%s", prefix, cmd)
	}
	return fmt.Sprintf("%s.%s.%s", prefix, cmd, nodeID)
}

// ErrNotConnected is returned by Publish/Subscribe when called before Connect
// or after Disconnect.
type ErrNotConnected struct{}

func (ErrNotConnected) Error() string { return "transport: not connected" }
