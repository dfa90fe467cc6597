package transit

import (
	"sync/atomic"
	"time"

	"github.com/relaymesh/transit/pkg/log"
	"github.com/relaymesh/transit/pkg/metrics"
	"github.com/relaymesh/transit/pkg/packet"
	"github.com/relaymesh/transit/pkg/pending"
)

// RequestOptions describes one outbound REQUEST.
// Timeout is advisory bookkeeping only; the caller (Broker) owns enforcing it
// and calling Table.Remove on expiry — Transit never times a request out
// itself.
type RequestOptions struct {
	ID        string
	NodeID    string
	Action    string
	Params    any
	Meta      map[string]any
	Timeout   time.Duration
	Level     int
	Metrics   bool
	ParentID  string
	RequestID string
}

// Request enforces the maxQueueSize gate, inserts a pending entry, and
// publishes REQUEST. The returned Completion is resolved by a later RESPONSE
// or by a peer-loss sweep; Cancel removes the entry without resolving it.
func (t *Transit) Request(opts RequestOptions) (*pending.Completion, error) {
	id, completion, err := t.pending.Insert(pending.Request{
		ID:     opts.ID,
		Action: opts.Action,
		NodeID: opts.NodeID,
	})
	if err != nil {
		metrics.QueueFullTotal.Inc()
		return nil, err
	}

	payload := &packet.RequestPayload{
		Header:    packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		ID:        id,
		Action:    opts.Action,
		Params:    opts.Params,
		Meta:      opts.Meta,
		Timeout:   opts.Timeout.Milliseconds(),
		Level:     opts.Level,
		Metrics:   opts.Metrics,
		ParentID:  opts.ParentID,
		RequestID: opts.RequestID,
	}

	if err := t.publish(packet.CmdRequest, opts.NodeID, payload); err != nil {
		t.pending.Remove(id)
		metrics.RequestsRejectedTotal.Inc()
		log.WithRequestID(id).Warn().Err(err).Str("action", opts.Action).Str("node_id", opts.NodeID).
			Msg("failed to publish request, pending entry removed")
		return nil, err
	}

	return completion, nil
}

// Cancel removes a pending entry without completing it — used when the
// caller's own timeout has already surfaced an error to its waiter.
func (t *Transit) Cancel(id string) {
	t.pending.Remove(id)
}

// SendResponse publishes RESPONSE for id, targeted at nodeID. callErr nil
// means success; non-nil builds the failure error envelope.
func (t *Transit) SendResponse(nodeID, id string, data any, callErr error) error {
	resp := &packet.ResponsePayload{
		Header:  packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		ID:      id,
		Success: callErr == nil,
		Data:    data,
	}
	if callErr != nil {
		resp.Error = errorEnvelopeFrom(callErr, t.nodeID)
	}
	return t.publish(packet.CmdResponse, nodeID, resp)
}

// SendEvent publishes a unicast EVENT to nodeID.
func (t *Transit) SendEvent(nodeID, name string, data any, groups []string) error {
	return t.publish(packet.CmdEvent, nodeID, &packet.EventPayload{
		Header: packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		Event:  name,
		Data:   data,
		Groups: groups,
	})
}

// SendBalancedEvent publishes one unicast EVENT per (nodeID -> groups) pair;
// each peer filters locally against the groups it was sent.
func (t *Transit) SendBalancedEvent(name string, data any, nodeGroups map[string][]string) error {
	for nodeID, groups := range nodeGroups {
		if err := t.SendEvent(nodeID, name, data, groups); err != nil {
			return err
		}
	}
	return nil
}

// SendEventToGroups broadcasts EVENT carrying an explicit groups list. If
// groups is empty it resolves via the Broker's GetEventGroups; if still
// empty, this is a no-op (nobody is listening).
func (t *Transit) SendEventToGroups(name string, data any, groups []string) error {
	if len(groups) == 0 {
		groups = t.broker.GetEventGroups(name)
	}
	if len(groups) == 0 {
		return nil
	}
	return t.publish(packet.CmdEvent, "", &packet.EventPayload{
		Header: packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		Event:  name,
		Data:   data,
		Groups: groups,
	})
}

// DiscoverNodes broadcasts DISCOVER.
func (t *Transit) DiscoverNodes() error {
	return t.publish(packet.CmdDiscover, "", &packet.DiscoverPayload{
		Header: packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
	})
}

// DiscoverNode sends a targeted DISCOVER to nodeID — used for late-peer
// discovery.
func (t *Transit) DiscoverNode(nodeID string) error {
	return t.publish(packet.CmdDiscover, nodeID, &packet.DiscoverPayload{
		Header: packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
	})
}

// SendNodeInfo publishes INFO. An empty nodeID broadcasts; in that case, if
// the transporter supports service-specific subscriptions, they are made live
// first so peers never learn of a service topic before we can receive on it.
func (t *Transit) SendNodeInfo(nodeID string) error {
	if nodeID == "" {
		if ss, ok := t.transporter.(interface{ MakeServiceSpecificSubscriptions() error }); ok {
			if err := ss.MakeServiceSpecificSubscriptions(); err != nil {
				return err
			}
		}
	}

	info := t.broker.GetLocalNodeInfo()
	return t.publish(packet.CmdInfo, nodeID, &packet.InfoPayload{
		Header:         packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		NodeDescriptor: info,
	})
}

// SendPing publishes PING stamped with the current time; broadcast if nodeID
// is empty.
func (t *Transit) SendPing(nodeID string) error {
	return t.publish(packet.CmdPing, nodeID, &packet.PingPayload{
		Header: packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		Time:   nowMillis(),
	})
}

// sendPong replies to a PING, echoing its t0 and stamping arrived = now.
func (t *Transit) sendPong(nodeID string, t0 int64) error {
	return t.publish(packet.CmdPong, nodeID, &packet.PongPayload{
		Header:  packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		Time:    t0,
		Arrived: nowMillis(),
	})
}

// SendHeartbeat broadcasts HEARTBEAT carrying the local CPU load.
func (t *Transit) SendHeartbeat(cpu float64) error {
	return t.publish(packet.CmdHeartbeat, "", &packet.HeartbeatPayload{
		Header: packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
		CPU:    cpu,
	})
}

// SendDisconnectPacket broadcasts DISCONNECT.
func (t *Transit) SendDisconnectPacket() error {
	return t.publish(packet.CmdDisconnect, "", &packet.DisconnectPayload{
		Header: packet.Header{Ver: packet.ProtocolVersion, Sender: t.nodeID},
	})
}

// publish waits on the subscription barrier (a no-op once it has resolved),
// encodes payload, delegates to the transporter, and counts the send.
func (t *Transit) publish(cmd packet.Command, nodeID string, payload any) error {
	<-t.subscribeBarrier

	data, err := t.codec.Encode(cmd, payload)
	if err != nil {
		return err
	}

	if err := t.transporter.Publish(cmd, nodeID, data); err != nil {
		return err
	}

	atomic.AddUint64(&t.packetsSent, 1)
	metrics.PacketsSent.WithLabelValues(string(cmd)).Inc()
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
