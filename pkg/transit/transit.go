// Package transit is the core of this module: it translates a Broker's local
// calls, events, and lifecycle signals into the wire protocol that ties many
// peer nodes into one logical mesh. Remote callers see request/response
// semantics; underneath, Transit multiplexes requests by correlation id,
// tracks pending calls, discovers peers, exchanges capability descriptors,
// and measures liveness.
//
// Transit depends only on the collaborator interfaces in pkg/transport,
// pkg/broker, and pkg/registry — never on a concrete transporter, broker, or
// registry implementation. cmd/transitd wires concrete choices together.
package transit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaymesh/transit/pkg/broker"
	"github.com/relaymesh/transit/pkg/localbus"
	"github.com/relaymesh/transit/pkg/log"
	"github.com/relaymesh/transit/pkg/packet"
	"github.com/relaymesh/transit/pkg/pending"
	"github.com/relaymesh/transit/pkg/registry"
	"github.com/relaymesh/transit/pkg/transport"
)

// State is one step of the Transit lifecycle state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateHandshaking
	StateConnected
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Config wires Transit's collaborators and tunables. NodeID, Transporter,
// Broker, Registry, Codec, and Bus are required; the rest are optional.
type Config struct {
	NodeID      string
	Transporter transport.Transporter
	Broker      broker.Broker
	Registry    registry.Registry
	Codec       *packet.Codec
	Bus         *localbus.Bus

	// MaxQueueSize caps in-flight outbound requests. <= 0 means unbounded.
	MaxQueueSize int
	// ReconnectBackoff is the fixed delay between failed connect attempts.
	// Defaults to 5s; a future revision could make this exponential with a
	// cap, but the disconnecting short-circuit matters more than the curve.
	ReconnectBackoff time.Duration
	// HandshakeGrace is how long the handshake waits after broadcasting INFO
	// before declaring itself connected. Defaults to 200ms.
	HandshakeGrace time.Duration

	// OnDropped, if set, is called synchronously from OnMessage whenever an
	// inbound packet is dropped before dispatch. It receives the typed error
	// describing the drop (ErrMissingPacket, ErrMissingPayload,
	// ErrProtocolVersionMismatch, or the codec's decode error, such as
	// *packet.ErrDecodeFailed) so callers can discriminate via errors.As
	// without OnMessage itself ever returning an error. Never called for the
	// self-echo filter, which is routine rather than exceptional.
	OnDropped func(error)
}

// Transit is the mesh transit layer: one instance per node.
type Transit struct {
	nodeID      string
	transporter transport.Transporter
	broker      broker.Broker
	registry    registry.Registry
	codec       *packet.Codec
	bus         *localbus.Bus
	logger      zerolog.Logger
	dropLogger  zerolog.Logger
	onDropped   func(error)

	reconnectBackoff time.Duration
	handshakeGrace   time.Duration

	pending *pending.Table

	mu               sync.Mutex
	state            State
	disconnecting    bool
	subscribed       bool
	subscribeBarrier chan struct{}
	connected        bool

	heartbeatStop chan struct{}

	packetsSent     uint64
	packetsReceived uint64
}

// New constructs a Transit instance. The returned value does not connect; call
// Connect to begin the lifecycle.
func New(cfg Config) (*Transit, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("transit: NodeID is required")
	}
	if cfg.Transporter == nil {
		return nil, fmt.Errorf("transit: Transporter is required")
	}
	if cfg.Broker == nil {
		return nil, fmt.Errorf("transit: Broker is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("transit: Registry is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("transit: Codec is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("transit: Bus is required")
	}

	backoff := cfg.ReconnectBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	grace := cfg.HandshakeGrace
	if grace <= 0 {
		grace = 200 * time.Millisecond
	}

	nodeLogger := log.WithNodeID(cfg.NodeID)

	t := &Transit{
		nodeID:      cfg.NodeID,
		transporter: cfg.Transporter,
		broker:      cfg.Broker,
		registry:    cfg.Registry,
		codec:       cfg.Codec,
		bus:         cfg.Bus,
		logger:      nodeLogger,
		// A hostile or misconfigured peer can flood malformed/stale packets;
		// bound the resulting warning volume instead of logging one line per
		// packet dropped.
		dropLogger:       log.Sampled(nodeLogger, 5, 50),
		onDropped:        cfg.OnDropped,
		reconnectBackoff: backoff,
		handshakeGrace:   grace,
		pending:          pending.New(cfg.MaxQueueSize),
		state:            StateDisconnected,
		subscribeBarrier: make(chan struct{}),
	}

	if err := t.transporter.Init(cfg.NodeID, t.OnMessage); err != nil {
		return nil, fmt.Errorf("transit: transporter init: %w", err)
	}

	if lr, ok := t.registry.(interface{ OnNodeLost(func(string)) }); ok {
		lr.OnNodeLost(func(nodeID string) {
			t.pending.CancelByNode(nodeID)
		})
	}

	return t, nil
}

// NodeID returns this node's identity.
func (t *Transit) NodeID() string { return t.nodeID }

// State returns the current lifecycle state.
func (t *Transit) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connected reports whether the handshake has completed and Transit considers
// itself live. Implements metrics.StatsSource.
func (t *Transit) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// PendingCount returns the number of outbound requests awaiting a response.
// Implements metrics.StatsSource.
func (t *Transit) PendingCount() int {
	return t.pending.Len()
}

// Stats is a snapshot of the packet counters.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
}

// Stats returns the current packet counters.
func (t *Transit) Stats() Stats {
	return Stats{
		PacketsSent:     atomic.LoadUint64(&t.packetsSent),
		PacketsReceived: atomic.LoadUint64(&t.packetsReceived),
	}
}

// reportDropped hands a typed drop error to the caller-supplied observer, if
// any. Never called inline with a lock held.
func (t *Transit) reportDropped(err error) {
	if t.onDropped != nil {
		t.onDropped(err)
	}
}

func (t *Transit) isDisconnecting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnecting
}

func (t *Transit) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}
