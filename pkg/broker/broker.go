// Package broker defines the collaborator contract Transit consumes for local
// service registration, event dispatch, and remote-request handling,
// plus a minimal reference implementation so cmd/transitd can run an actual
// two-node mesh without a full service framework.
package broker

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/relaymesh/transit/pkg/localbus"
	"github.com/relaymesh/transit/pkg/log"
	"github.com/relaymesh/transit/pkg/packet"
)

// RequestContext is the caller context rebuilt from a REQUEST payload and
// handed to HandleRemoteRequest. Transit passes the wire payload through
// verbatim; reconstructing a richer context is the Broker's job, not Transit's.
type RequestContext struct {
	RequestID string
	Action    string
	Params    any
	Meta      map[string]any
	Sender    string
	ParentID  string
}

// ActionHandler implements one locally-registered action.
type ActionHandler func(ctx RequestContext) (any, error)

// EventHandler implements one locally-registered event subscription. Group is
// empty for ungrouped (always-invoked) listeners.
type EventHandler struct {
	Group   string
	Handler func(event string, data any, sender string)
}

// Broker is the collaborator contract Transit drives: local service
// registry, event dispatcher, and context factory, kept out of Transit's own
// scope.
type Broker interface {
	NodeID() string
	Logger(name string) zerolog.Logger
	BroadcastLocal(name string, data any, sender string)
	CreateContextFromPayload(payload *packet.RequestPayload) (RequestContext, error)
	HandleRemoteRequest(ctx RequestContext) (any, error)
	EmitLocalServices(event string, data any, groups []string, sender string)
	GetLocalNodeInfo() packet.NodeDescriptor
	GetEventGroups(event string) []string
}

// ErrActionNotFound is returned by LocalBroker when a REQUEST names an action
// with no registered handler.
type ErrActionNotFound struct {
	Action string
}

func (e *ErrActionNotFound) Error() string {
	return fmt.Sprintf("broker: action not found: %s", e.Action)
}

// LocalBroker is a minimal, real Broker: an in-process action registry and
// event dispatcher wired to a localbus.Bus for broadcasting lifecycle and
// liveness notices. It is not a full service framework — no middleware, no
// versioning, no remote action proxying beyond what Transit itself provides.
type LocalBroker struct {
	nodeID   string
	bus      *localbus.Bus
	actions  map[string]ActionHandler
	events   map[string][]EventHandler
	services []string
}

// NewLocalBroker creates a broker identified by nodeID, broadcasting local
// notices onto bus.
func NewLocalBroker(nodeID string, bus *localbus.Bus) *LocalBroker {
	return &LocalBroker{
		nodeID:  nodeID,
		bus:     bus,
		actions: make(map[string]ActionHandler),
		events:  make(map[string][]EventHandler),
	}
}

// RegisterAction makes name callable by remote peers via REQUEST.
func (b *LocalBroker) RegisterAction(name string, h ActionHandler) {
	b.actions[name] = h
	b.services = appendUnique(b.services, serviceNameOf(name))
}

// RegisterEvent subscribes h to event, optionally scoped to group (empty
// group means the listener is invoked regardless of the groups an inbound
// EVENT carries).
func (b *LocalBroker) RegisterEvent(event, group string, h func(event string, data any, sender string)) {
	b.events[event] = append(b.events[event], EventHandler{Group: group, Handler: h})
}

func (b *LocalBroker) NodeID() string { return b.nodeID }

func (b *LocalBroker) Logger(name string) zerolog.Logger {
	return log.WithComponent(name)
}

func (b *LocalBroker) BroadcastLocal(name string, data any, sender string) {
	b.bus.Emit(name, data, sender)
}

func (b *LocalBroker) CreateContextFromPayload(payload *packet.RequestPayload) (RequestContext, error) {
	if payload == nil {
		return RequestContext{}, fmt.Errorf("broker: nil request payload")
	}
	return RequestContext{
		RequestID: payload.RequestID,
		Action:    payload.Action,
		Params:    payload.Params,
		Meta:      payload.Meta,
		Sender:    payload.Sender,
		ParentID:  payload.ParentID,
	}, nil
}

func (b *LocalBroker) HandleRemoteRequest(ctx RequestContext) (any, error) {
	handler, ok := b.actions[ctx.Action]
	if !ok {
		return nil, &ErrActionNotFound{Action: ctx.Action}
	}
	return handler(ctx)
}

func (b *LocalBroker) EmitLocalServices(event string, data any, groups []string, sender string) {
	handlers := b.events[event]
	if len(handlers) == 0 {
		return
	}

	for _, h := range handlers {
		if h.Group != "" && len(groups) > 0 && !contains(groups, h.Group) {
			continue
		}
		h.Handler(event, data, sender)
	}
}

func (b *LocalBroker) GetLocalNodeInfo() packet.NodeDescriptor {
	return packet.NodeDescriptor{
		Services: b.services,
	}
}

func (b *LocalBroker) GetEventGroups(event string) []string {
	var groups []string
	for _, h := range b.events[event] {
		if h.Group != "" {
			groups = appendUnique(groups, h.Group)
		}
	}
	return groups
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}

func appendUnique(items []string, v string) []string {
	if v == "" || contains(items, v) {
		return items
	}
	return append(items, v)
}

// serviceNameOf derives a service name from a dotted action name
// ("math.add" → "math"), the moleculer convention this protocol family
// follows for grouping actions into a service's capability listing.
func serviceNameOf(action string) string {
	for i, r := range action {
		if r == '.' {
			return action[:i]
		}
	}
	return action
}
