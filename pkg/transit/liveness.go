package transit

import (
	"math"
	"time"

	"github.com/relaymesh/transit/pkg/localbus"
	"github.com/relaymesh/transit/pkg/metrics"
	"github.com/relaymesh/transit/pkg/packet"
)

// PongNotice is emitted on the local bus for every PONG received, carrying
// the round-trip time and estimated clock offset.
type PongNotice struct {
	NodeID      string
	ElapsedTime int64
	TimeDiff    int64
}

func (t *Transit) handlePing(p *packet.PingPayload) {
	if err := t.sendPong(p.Sender, p.Time); err != nil {
		t.logger.Warn().Err(err).Str("sender", p.Sender).Msg("failed to reply to ping")
	}
}

// handlePong computes the round trip and symmetric-latency clock-skew
// estimate, then broadcasts $node.pong locally.
func (t *Transit) handlePong(p *packet.PongPayload) {
	now := nowMillis()
	elapsed, timeDiff := computeSkew(p.Time, p.Arrived, now)

	metrics.PingRoundTrip.Observe(float64(elapsed) / 1000)

	t.bus.Emit(localbus.EventNodePong, PongNotice{
		NodeID:      p.Sender,
		ElapsedTime: elapsed,
		TimeDiff:    timeDiff,
	}, t.nodeID)
}

// computeSkew implements the round-trip and symmetric-latency clock-offset
// estimate from a PING/PONG exchange:
//
//	elapsedTime = now - t0               (round trip)
//	timeDiff    = round(now - arrived - elapsedTime/2)
func computeSkew(t0, arrived, now int64) (elapsedTime, timeDiff int64) {
	elapsedTime = now - t0
	timeDiff = int64(math.Round(float64(now) - float64(arrived) - float64(elapsedTime)/2))
	return elapsedTime, timeDiff
}

// StartHeartbeatLoop begins broadcasting HEARTBEAT every interval until
// StopHeartbeatLoop is called. Modeled on this codebase's ticker-plus-cancel
// pattern used elsewhere for periodic per-entity liveness checks, generalized
// here from "per-container health probe" to "per-node heartbeat."
func (t *Transit) StartHeartbeatLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}

	t.mu.Lock()
	t.heartbeatStop = make(chan struct{})
	stop := t.heartbeatStop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.SendHeartbeat(0); err != nil {
					t.logger.Warn().Err(err).Msg("heartbeat publish failed")
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopHeartbeatLoop ends the heartbeat loop started by StartHeartbeatLoop, if
// running.
func (t *Transit) StopHeartbeatLoop() {
	t.mu.Lock()
	stop := t.heartbeatStop
	t.heartbeatStop = nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}
