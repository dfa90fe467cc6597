package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/relaymesh/transit/pkg/packet"
)

// NATSTransporter is a Transporter backed by a NATS connection. Broadcast
// commands (DISCOVER, INFO, HEARTBEAT, DISCONNECT, EVENT without a target)
// publish to a bare command subject; targeted commands (REQUEST, RESPONSE,
// PING, PONG, balanced EVENT) publish to a subject suffixed with the
// recipient's node id. Subjects use "." separators, the idiomatic NATS
// hierarchy delimiter.
type NATSTransporter struct {
	url    string
	prefix string

	mu        sync.Mutex
	conn      *nats.Conn
	subs      []*nats.Subscription
	nodeID    string
	onMessage MessageHandler
}

// NewNATSTransporter creates a transporter that will dial url on Connect.
// prefix namespaces subjects (e.g. "MOL" to mirror this protocol family's
// conventional subject root) so multiple meshes can share a NATS cluster.
func NewNATSTransporter(url, prefix string) *NATSTransporter {
	if prefix == "" {
		prefix = "TRANSIT"
	}
	return &NATSTransporter{url: url, prefix: prefix}
}

func (t *NATSTransporter) Init(nodeID string, onMessage MessageHandler) error {
	t.nodeID = nodeID
	t.onMessage = onMessage
	return nil
}

func (t *NATSTransporter) Connect(ctx context.Context) error {
	conn, err := nats.Connect(t.url,
		nats.Name(fmt.Sprintf("%s-%s", t.prefix, t.nodeID)),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("transport: nats connect: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *NATSTransporter) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	t.subs = nil

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	return nil
}

func (t *NATSTransporter) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.conn.IsConnected()
}

// Subscribe registers a callback for a command's subject. When nodeID is
// non-empty it subscribes to this node's own targeted subject directly
// (REQUEST/RESPONSE/PING/PONG addressed to us); these use a plain
// subscription rather than a queue group since exactly one node owns that
// subject.
func (t *NATSTransporter) Subscribe(cmd packet.Command, nodeID string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected{}
	}

	subject := Topic(t.prefix, cmd, nodeID)
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		t.mu.Lock()
		handler := t.onMessage
		t.mu.Unlock()
		if handler != nil {
			handler(cmd, msg.Data)
		}
	})
	if err != nil {
		return fmt.Errorf("transport: nats subscribe %s: %w", subject, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return nil
}

func (t *NATSTransporter) Publish(cmd packet.Command, nodeID string, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected{}
	}

	subject := Topic(t.prefix, cmd, nodeID)
	if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("transport: nats publish %s: %w", subject, err)
	}
	return nil
}
