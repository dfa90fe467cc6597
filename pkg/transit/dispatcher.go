package transit

import (
	"sync/atomic"

	"github.com/relaymesh/transit/pkg/metrics"
	"github.com/relaymesh/transit/pkg/packet"
)

// OnMessage is Transit's single entry point for every inbound packet,
// regardless of transporter. It never lets a handler panic escape, never
// returns an error to the transporter, and never tears the connection down on
// a malformed or stale packet — a bad peer only ever costs us one dropped
// packet.
func (t *Transit) OnMessage(cmd packet.Command, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().
				Interface("panic", r).
				Str("command", string(cmd)).
				Msg("recovered from handler panic, dropping packet")
		}
	}()

	if len(raw) == 0 {
		err := &ErrMissingPacket{Command: cmd}
		t.dropLogger.Warn().Str("command", string(cmd)).Msg("missing packet bytes, dropping")
		metrics.PacketsDropped.WithLabelValues("missing_packet").Inc()
		t.reportDropped(err)
		return
	}

	payload, err := t.codec.Decode(cmd, raw)
	if err != nil {
		t.dropLogger.Warn().Err(err).Str("command", string(cmd)).Msg("decode failed, dropping")
		metrics.PacketsDropped.WithLabelValues("decode_error").Inc()
		t.reportDropped(err)
		return
	}

	header, ok := packet.HeaderOf(payload)
	if !ok {
		err := &ErrMissingPayload{Command: cmd}
		t.dropLogger.Warn().Str("command", string(cmd)).Msg("missing payload header, dropping")
		metrics.PacketsDropped.WithLabelValues("missing_payload").Inc()
		t.reportDropped(err)
		return
	}

	atomic.AddUint64(&t.packetsReceived, 1)
	metrics.PacketsReceived.WithLabelValues(string(cmd)).Inc()

	if header.Ver != packet.ProtocolVersion {
		err := &ErrProtocolVersionMismatch{
			Sender:   header.Sender,
			Observed: header.Ver,
			Expected: packet.ProtocolVersion,
		}
		t.dropLogger.Warn().
			Str("sender", header.Sender).
			Str("observed", header.Ver).
			Str("expected", packet.ProtocolVersion).
			Msg("protocol version mismatch, dropping")
		metrics.PacketsDropped.WithLabelValues("version_mismatch").Inc()
		t.reportDropped(err)
		return
	}

	// Self-echo filter: we never process our own discovery/heartbeat/info
	// echoes, but DO process EVENT/REQUEST/RESPONSE looped back by an
	// external balancer. Do not generalize this predicate.
	if header.Sender == t.nodeID && !selfEchoAllowed(cmd) {
		return
	}

	switch p := payload.(type) {
	case *packet.RequestPayload:
		t.handleRequest(p)
	case *packet.ResponsePayload:
		t.handleResponse(p)
	case *packet.EventPayload:
		t.handleEvent(p)
	case *packet.DiscoverPayload:
		t.handleDiscover(p)
	case *packet.InfoPayload:
		t.handleInfo(p)
	case *packet.DisconnectPayload:
		t.handleDisconnect(p)
	case *packet.HeartbeatPayload:
		t.handleHeartbeat(p)
	case *packet.PingPayload:
		t.handlePing(p)
	case *packet.PongPayload:
		t.handlePong(p)
	default:
		t.logger.Warn().Str("command", string(cmd)).Msg("unhandled payload type, dropping")
	}
}

func selfEchoAllowed(cmd packet.Command) bool {
	switch cmd {
	case packet.CmdEvent, packet.CmdRequest, packet.CmdResponse:
		return true
	default:
		return false
	}
}

func (t *Transit) handleRequest(p *packet.RequestPayload) {
	ctx, err := t.broker.CreateContextFromPayload(p)
	if err != nil {
		t.logger.Error().Err(err).Str("action", p.Action).Msg("failed to build context from request")
		return
	}

	data, callErr := t.broker.HandleRemoteRequest(ctx)
	if sendErr := t.SendResponse(p.Sender, p.ID, data, callErr); sendErr != nil {
		t.logger.Error().Err(sendErr).Str("id", p.ID).Msg("failed to send response")
	}
}

func (t *Transit) handleResponse(p *packet.ResponsePayload) {
	if p.Success {
		t.pending.CompleteSuccess(p.ID, p.Data)
		return
	}
	t.pending.CompleteFailure(p.ID, remoteFailureFrom(p.Error, p.Sender))
}

func (t *Transit) handleEvent(p *packet.EventPayload) {
	t.broker.EmitLocalServices(p.Event, p.Data, p.Groups, p.Sender)
}

func (t *Transit) handleDiscover(p *packet.DiscoverPayload) {
	if err := t.SendNodeInfo(p.Sender); err != nil {
		t.logger.Error().Err(err).Str("sender", p.Sender).Msg("failed to reply to discover")
	}
}

func (t *Transit) handleInfo(p *packet.InfoPayload) {
	t.registry.ProcessNodeInfo(p.Sender, p.Services, p.IPList, p.Client, p.Config)
}

func (t *Transit) handleDisconnect(p *packet.DisconnectPayload) {
	t.registry.NodeDisconnected(p.Sender)
	if n := t.pending.CancelByNode(p.Sender); n > 0 {
		t.logger.Info().Str("node_id", p.Sender).Int("count", n).Msg("swept pending requests for disconnected node")
	}
}

func (t *Transit) handleHeartbeat(p *packet.HeartbeatPayload) {
	t.registry.NodeHeartbeat(p.Sender, p.CPU)
}
