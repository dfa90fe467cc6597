// Package pending implements the pending-request table: the set of outbound calls
// awaiting a correlated RESPONSE. It is the one piece of mutable shared state in
// Transit, so every operation here takes a single mutex — there is no
// per-entry locking and no lock-free fast path, matching the ticker/mutex-guarded-map
// shape this codebase uses elsewhere for small, low-contention tables.
package pending

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Completion is the one-shot resolve/reject capability handed back to a caller when
// a request is inserted. It delivers at most one Result, carrying either data or
// an error.
type Completion struct {
	resultCh chan Result
	once     sync.Once
}

// Result is what a Completion ultimately delivers.
type Result struct {
	Data any
	Err  error
}

func newCompletion() *Completion {
	return &Completion{resultCh: make(chan Result, 1)}
}

// Wait blocks until the completion is resolved or rejected.
func (c *Completion) Wait() Result {
	return <-c.resultCh
}

func (c *Completion) deliver(r Result) {
	c.once.Do(func() {
		c.resultCh <- r
	})
}

// Request is the caller-supplied description of an outbound call; Table fills in
// bookkeeping (ID if absent) and tracks it until exactly one terminal event.
type Request struct {
	ID     string
	Action string
	NodeID string
	Ctx    any
}

// entry is the table's internal bookkeeping record.
type entry struct {
	request    Request
	completion *Completion
}

// ErrQueueFull is returned by Insert when the table is at maxQueueSize.
type ErrQueueFull struct {
	Action string
	NodeID string
	Size   int
	Limit  int
}

func (e *ErrQueueFull) Error() string {
	return fmt.Sprintf("pending: queue full: action=%s node=%s size=%d limit=%d",
		e.Action, e.NodeID, e.Size, e.Limit)
}

// ErrRequestRejected is the terminal error delivered to callers swept on peer loss.
type ErrRequestRejected struct {
	Action string
	NodeID string
}

func (e *ErrRequestRejected) Error() string {
	return fmt.Sprintf("pending: request rejected: action=%s node=%s disconnected", e.Action, e.NodeID)
}

// Table is the mutex-guarded pending-request map. The zero value is not usable;
// construct with New.
type Table struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxQueueSz int // 0 means unbounded
}

// New creates a pending-request table. maxQueueSize <= 0 means unbounded, per
// the "zero/absent ⇒ unbounded" configuration rule.
func New(maxQueueSize int) *Table {
	return &Table{
		entries:    make(map[string]entry),
		maxQueueSz: maxQueueSize,
	}
}

// Insert records a new outbound request and returns its Completion. If req.ID is
// empty, a correlation id is generated. The insertion is rejected with
// ErrQueueFull when the table is already at capacity — per the Open Question
// resolution here, capacity is checked as size >= limit, and the error
// reports the actual current size.
func (t *Table) Insert(req Request) (string, *Completion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxQueueSz > 0 && len(t.entries) >= t.maxQueueSz {
		return "", nil, &ErrQueueFull{
			Action: req.Action,
			NodeID: req.NodeID,
			Size:   len(t.entries),
			Limit:  t.maxQueueSz,
		}
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	c := newCompletion()
	t.entries[req.ID] = entry{request: req, completion: c}
	return req.ID, c, nil
}

// Remove idempotently drops an entry without completing it — used when the caller
// (e.g. a Broker-owned timeout) has already handled the outcome itself.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// CompleteSuccess removes the entry for id, if present, and resolves its
// completion with data. A miss (already removed by a sweep, timeout, or a prior
// completion) is a silent no-op (a late RESPONSE
// for a swept id is a no-op).
func (t *Table) CompleteSuccess(id string, data any) {
	e, ok := t.take(id)
	if !ok {
		return
	}
	e.completion.deliver(Result{Data: data})
}

// CompleteFailure removes the entry for id, if present, and rejects its
// completion with err.
func (t *Table) CompleteFailure(id string, err error) {
	e, ok := t.take(id)
	if !ok {
		return
	}
	e.completion.deliver(Result{Err: err})
}

func (t *Table) take(id string) (entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return e, ok
}

// CancelByNode sweeps every entry targeted at nodeID, removing each and completing
// it with ErrRequestRejected. Called by the lifecycle controller when a peer is
// observed to have disconnected.
func (t *Table) CancelByNode(nodeID string) int {
	t.mu.Lock()
	var toCancel []entry
	for id, e := range t.entries {
		if e.request.NodeID == nodeID {
			toCancel = append(toCancel, e)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, e := range toCancel {
		e.completion.deliver(Result{Err: &ErrRequestRejected{Action: e.request.Action, NodeID: nodeID}})
	}
	return len(toCancel)
}

// Len returns the current number of in-flight entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
