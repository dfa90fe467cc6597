package transport

import (
	"context"
	"sync"

	"github.com/relaymesh/transit/pkg/packet"
)

// busMessage is what LocalTransporter instances exchange through a shared Hub.
type busMessage struct {
	cmd    packet.Command
	nodeID string
	data   []byte
}

// LocalHub is the shared medium a set of LocalTransporter instances publish to
// and subscribe against, standing in for a real broker in tests and
// single-process demos. The zero value is ready to use.
type LocalHub struct {
	mu      sync.Mutex
	members map[string]*LocalTransporter
}

// NewLocalHub creates an empty hub.
func NewLocalHub() *LocalHub {
	return &LocalHub{members: make(map[string]*LocalTransporter)}
}

func (h *LocalHub) register(nodeID string, t *LocalTransporter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members == nil {
		h.members = make(map[string]*LocalTransporter)
	}
	h.members[nodeID] = t
}

func (h *LocalHub) unregister(nodeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, nodeID)
}

func (h *LocalHub) broadcast(from string, msg busMessage) {
	h.mu.Lock()
	targets := make([]*LocalTransporter, 0, len(h.members))
	for id, t := range h.members {
		if id == from {
			continue
		}
		targets = append(targets, t)
	}
	h.mu.Unlock()

	for _, t := range targets {
		t.deliver(msg)
	}
}

func (h *LocalHub) send(from, to string, msg busMessage) {
	h.mu.Lock()
	target := h.members[to]
	h.mu.Unlock()
	if target == nil || to == from {
		return
	}
	target.deliver(msg)
}

// LocalTransporter is an in-process Transporter backed by a LocalHub. It
// requires no network and no external broker, making it the right choice for
// package-level tests of Transit's lifecycle and dispatcher without pulling in
// NATS.
type LocalTransporter struct {
	hub       *LocalHub
	nodeID    string
	onMessage MessageHandler

	mu          sync.Mutex
	connected   bool
	subscribed  map[string]bool
	inboundCh   chan busMessage
	stopCh      chan struct{}
}

// NewLocalTransporter creates a transporter that will join hub once Connect is
// called.
func NewLocalTransporter(hub *LocalHub) *LocalTransporter {
	return &LocalTransporter{
		hub:        hub,
		subscribed: make(map[string]bool),
		inboundCh:  make(chan busMessage, 256),
	}
}

func (t *LocalTransporter) Init(nodeID string, onMessage MessageHandler) error {
	t.nodeID = nodeID
	t.onMessage = onMessage
	return nil
}

func (t *LocalTransporter) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.connected = true
	t.stopCh = make(chan struct{})
	t.mu.Unlock()

	t.hub.register(t.nodeID, t)
	go t.run()
	return nil
}

func (t *LocalTransporter) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	close(t.stopCh)
	t.mu.Unlock()

	t.hub.unregister(t.nodeID)
	return nil
}

func (t *LocalTransporter) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *LocalTransporter) Subscribe(cmd packet.Command, nodeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrNotConnected{}
	}
	t.subscribed[Topic("local", cmd, nodeID)] = true
	return nil
}

func (t *LocalTransporter) Publish(cmd packet.Command, nodeID string, data []byte) error {
	if !t.Connected() {
		return ErrNotConnected{}
	}

	msg := busMessage{cmd: cmd, nodeID: nodeID, data: data}
	if nodeID == "" {
		t.hub.broadcast(t.nodeID, msg)
	} else {
		t.hub.send(t.nodeID, nodeID, msg)
	}
	return nil
}

// deliver is called by the hub on any member's goroutine; it never blocks the
// publisher, matching the backpressure shape the rest of this codebase uses
// for fan-out (a bounded channel, dropped only if truly overwhelmed).
func (t *LocalTransporter) deliver(msg busMessage) {
	select {
	case t.inboundCh <- msg:
	default:
	}
}

func (t *LocalTransporter) run() {
	for {
		select {
		case msg := <-t.inboundCh:
			t.mu.Lock()
			interested := t.subscribed[Topic("local", msg.cmd, msg.nodeID)] ||
				t.subscribed[Topic("local", msg.cmd, "")]
			handler := t.onMessage
			t.mu.Unlock()

			if interested && handler != nil {
				handler(msg.cmd, msg.data)
			}
		case <-t.stopCh:
			return
		}
	}
}
