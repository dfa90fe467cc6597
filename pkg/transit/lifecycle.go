package transit

import (
	"context"
	"time"

	"github.com/relaymesh/transit/pkg/localbus"
	"github.com/relaymesh/transit/pkg/metrics"
)

// ConnectedNotice is emitted on the local bus once the post-connect handshake
// completes.
type ConnectedNotice struct {
	NodeID string
}

// DisconnectedNotice is emitted on the local bus when Disconnect is called.
type DisconnectedNotice struct {
	Graceful bool
}

// Connect drives the transporter connect loop and the post-connect handshake.
// It blocks until Transit reaches StateConnected or ctx is done. On transport
// connect failure it retries every ReconnectBackoff unless Disconnect has set
// the disconnecting flag, in which case it gives up immediately.
func (t *Transit) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.disconnecting = false
	firstConnect := !t.subscribed
	t.mu.Unlock()

	t.setState(StateConnecting)

	for {
		t.logger.Info().Msg("connecting to transporter")
		err := t.transporter.Connect(ctx)
		if err == nil {
			break
		}

		if t.isDisconnecting() {
			return context.Canceled
		}

		t.logger.Warn().Err(err).Dur("retry_in", t.reconnectBackoff).Msg("connect failed, scheduling retry")
		metrics.ReconnectAttemptsTotal.Inc()

		select {
		case <-time.After(t.reconnectBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return t.handshake(ctx, firstConnect)
}

// handshake runs the post-connect sequence: subscribe (first connect only),
// discover, broadcast info, a grace period, then declare connected.
func (t *Transit) handshake(ctx context.Context, firstConnect bool) error {
	timer := metrics.NewTimer()

	if firstConnect {
		t.setState(StateSubscribing)
		if err := t.subscribeAll(); err != nil {
			return err
		}
		t.openSubscribeBarrier()
	}

	t.setState(StateHandshaking)

	if err := t.DiscoverNodes(); err != nil {
		t.logger.Warn().Err(err).Msg("discover broadcast failed during handshake")
	}
	if err := t.SendNodeInfo(""); err != nil {
		t.logger.Warn().Err(err).Msg("info broadcast failed during handshake")
	}

	select {
	case <-time.After(t.handshakeGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	t.state = StateConnected
	t.connected = true
	t.mu.Unlock()

	t.bus.Emit(localbus.EventTransporterConnected, ConnectedNotice{NodeID: t.nodeID}, t.nodeID)
	metrics.HandshakeDuration.Observe(timer.Duration().Seconds())

	return nil
}

// Disconnect gracefully tears the connection down: it marks disconnecting
// (short-circuiting any in-flight reconnect loop), broadcasts DISCONNECT if
// the transporter is still up, then closes the transporter.
func (t *Transit) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.disconnecting = true
	t.state = StateDraining
	t.mu.Unlock()

	t.bus.Emit(localbus.EventTransporterDisconnected, DisconnectedNotice{Graceful: true}, t.nodeID)

	if t.transporter.Connected() {
		if err := t.SendDisconnectPacket(); err != nil {
			t.logger.Warn().Err(err).Msg("failed to send disconnect packet")
		}
		if err := t.transporter.Disconnect(); err != nil {
			return err
		}
	}

	t.setState(StateDisconnected)
	return nil
}
