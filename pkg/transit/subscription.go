package transit

import (
	"fmt"
	"sync"

	"github.com/relaymesh/transit/pkg/packet"
)

// coreTopics is the fixed subscription set declared once at StateSubscribing
// nodeID == "" means broadcast; otherwise the
// subscription is scoped to this node ("@self").
func (t *Transit) coreTopics() []struct {
	cmd    packet.Command
	nodeID string
} {
	return []struct {
		cmd    packet.Command
		nodeID string
	}{
		{packet.CmdEvent, t.nodeID},
		{packet.CmdRequest, t.nodeID},
		{packet.CmdResponse, t.nodeID},
		{packet.CmdDiscover, ""},
		{packet.CmdDiscover, t.nodeID},
		{packet.CmdInfo, ""},
		{packet.CmdInfo, t.nodeID},
		{packet.CmdDisconnect, ""},
		{packet.CmdHeartbeat, ""},
		{packet.CmdPing, ""},
		{packet.CmdPing, t.nodeID},
		{packet.CmdPong, t.nodeID},
	}
}

// subscribeAll requests the full core topic set from the transporter in
// parallel; it waits for every subscription attempt to finish and returns the
// first error among them, if any. It does not itself open the barrier — the caller
// does that once this returns without error.
func (t *Transit) subscribeAll() error {
	topics := t.coreTopics()

	var wg sync.WaitGroup
	errCh := make(chan error, len(topics))

	for _, topic := range topics {
		wg.Add(1)
		go func(cmd packet.Command, nodeID string) {
			defer wg.Done()
			if err := t.transporter.Subscribe(cmd, nodeID); err != nil {
				errCh <- fmt.Errorf("transit: subscribe %s (node=%q): %w", cmd, nodeID, err)
			}
		}(topic.cmd, topic.nodeID)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// openSubscribeBarrier closes the barrier channel exactly once, unblocking any
// publish calls queued behind it. Safe to call more than once (reconnects
// skip subscription but must never attempt to close an already-closed
// channel).
func (t *Transit) openSubscribeBarrier() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.subscribed {
		t.subscribed = true
		close(t.subscribeBarrier)
	}
}
