// Package localbus is the in-process notice bus Transit uses to announce lifecycle
// and liveness events ($transporter.connected, $transporter.disconnected, $node.pong)
// to whatever is embedding it, without taking a hard dependency on a concrete Broker.
package localbus

import (
	"sync"
	"time"
)

// Notice is a single local event delivered to subscribers of a name.
type Notice struct {
	Name      string
	Data      any
	Sender    string
	Timestamp time.Time
}

// Handler receives notices for names it has subscribed to.
type Handler func(Notice)

// Bus distributes named local notices to registered handlers. It never blocks the
// caller of Emit: delivery happens on the bus's own goroutine, and a slow or absent
// handler never backs up a publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	noticeCh chan Notice
	stopCh   chan struct{}
}

// New creates a local notice bus. Notices are only delivered once Start has been
// called; notices emitted earlier wait in the bus's buffer.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		noticeCh: make(chan Notice, 100),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the bus's delivery loop.
func (b *Bus) Start() {
	go b.run()
}

// Stop shuts the bus down. Emit after Stop is a no-op.
func (b *Bus) Stop() {
	close(b.stopCh)
}

// On registers a handler for notices of the given name. Order of invocation across
// handlers registered for the same name is unspecified.
func (b *Bus) On(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit publishes a notice by name. sender is optional (empty string if omitted).
func (b *Bus) Emit(name string, data any, sender ...string) {
	n := Notice{Name: name, Data: data, Timestamp: time.Now()}
	if len(sender) > 0 {
		n.Sender = sender[0]
	}

	select {
	case b.noticeCh <- n:
	case <-b.stopCh:
	default:
		// Buffer full: drop the notice rather than block the caller.
	}
}

func (b *Bus) run() {
	for {
		select {
		case n := <-b.noticeCh:
			b.dispatch(n)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) dispatch(n Notice) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[n.Name]...)
	b.mu.RUnlock()

	for _, h := range hs {
		h(n)
	}
}

// HandlerCount returns the number of handlers registered for name, mostly useful in
// tests that want to assert a subscription took effect.
func (b *Bus) HandlerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}
