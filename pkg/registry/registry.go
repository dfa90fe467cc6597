// Package registry tracks the mesh's node table: who we have heard from, their
// capability descriptor, and when we last heard a heartbeat from them. It is a
// collaborator Transit drives (via ProcessNodeInfo/NodeDisconnected/NodeHeartbeat
// on INFO/DISCONNECT/HEARTBEAT receipt) but never owns the wire protocol itself.
package registry

import (
	"sync"
	"time"

	"github.com/relaymesh/transit/pkg/log"
)

// NodeInfo is what the registry knows about one peer.
type NodeInfo struct {
	ID            string
	Services      []string
	IPList        []string
	Client        map[string]any
	Config        map[string]any
	LastHeartbeat time.Time
	Available     bool
}

// Registry is the collaborator contract Transit's inbound dispatcher drives.
type Registry interface {
	ProcessNodeInfo(nodeID string, services, ipList []string, client, config map[string]any)
	NodeDisconnected(nodeID string)
	NodeHeartbeat(nodeID string, cpu float64)
	NodeAvailable(nodeID string) bool
	Nodes() []NodeInfo
}

// LocalRegistry is a minimal, real Registry backed by a mutex-guarded map,
// following the same ticker-plus-guarded-map shape this codebase uses for
// per-entry liveness tracking: a background sweep marks nodes unavailable once
// their heartbeat goes stale, rather than reacting only to explicit DISCONNECT.
type LocalRegistry struct {
	mu      sync.RWMutex
	nodes   map[string]*NodeInfo
	timeout time.Duration

	onLost func(nodeID string)

	stopCh chan struct{}
}

var logger = log.WithComponent("registry")

// NewLocalRegistry creates a registry that considers a node lost once timeout
// elapses since its last heartbeat or INFO. timeout <= 0 disables the sweep.
func NewLocalRegistry(timeout time.Duration) *LocalRegistry {
	return &LocalRegistry{
		nodes:   make(map[string]*NodeInfo),
		timeout: timeout,
	}
}

// OnNodeLost registers a callback invoked (on the sweep goroutine) for every
// node the liveness sweep marks unavailable — the lifecycle controller uses
// this to trigger the same pending-table sweep a DISCONNECT would.
func (r *LocalRegistry) OnNodeLost(fn func(nodeID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLost = fn
}

// Start begins the background liveness sweep. A no-op if timeout <= 0.
func (r *LocalRegistry) Start() {
	if r.timeout <= 0 {
		return
	}
	r.stopCh = make(chan struct{})
	go r.run()
}

// Stop ends the background sweep, if running.
func (r *LocalRegistry) Stop() {
	if r.stopCh != nil {
		close(r.stopCh)
	}
}

func (r *LocalRegistry) run() {
	ticker := time.NewTicker(r.timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *LocalRegistry) sweep() {
	deadline := time.Now().Add(-r.timeout)

	r.mu.Lock()
	var lost []string
	for id, n := range r.nodes {
		if n.Available && n.LastHeartbeat.Before(deadline) {
			n.Available = false
			lost = append(lost, id)
		}
	}
	cb := r.onLost
	r.mu.Unlock()

	for _, id := range lost {
		logger.Warn().Str("node_id", id).Msg("node heartbeat timeout, marking unavailable")
		if cb != nil {
			cb(id)
		}
	}
}

// ProcessNodeInfo records (or refreshes) a peer's capability descriptor.
func (r *LocalRegistry) ProcessNodeInfo(nodeID string, services, ipList []string, client, config map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		n = &NodeInfo{ID: nodeID}
		r.nodes[nodeID] = n
	}
	n.Services = services
	n.IPList = ipList
	n.Client = client
	n.Config = config
	n.Available = true
	n.LastHeartbeat = time.Now()
}

// NodeDisconnected marks a peer unavailable immediately, without waiting for
// the liveness sweep.
func (r *LocalRegistry) NodeDisconnected(nodeID string) {
	r.mu.Lock()
	n, ok := r.nodes[nodeID]
	if ok {
		n.Available = false
	}
	r.mu.Unlock()
}

// NodeHeartbeat refreshes a peer's last-seen timestamp.
func (r *LocalRegistry) NodeHeartbeat(nodeID string, cpu float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		n = &NodeInfo{ID: nodeID, Available: true}
		r.nodes[nodeID] = n
	}
	n.LastHeartbeat = time.Now()
}

// NodeAvailable reports whether nodeID is currently considered live.
func (r *LocalRegistry) NodeAvailable(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	return ok && n.Available
}

// Nodes returns a snapshot of every known node.
func (r *LocalRegistry) Nodes() []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	return out
}
