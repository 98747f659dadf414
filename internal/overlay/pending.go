package overlay

import (
	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// PendingOp is an outstanding request waiting for its correlated reply.
// Only the callback matching Expect is invoked.
type PendingOp struct {
	Expect protocol.Type

	OnLookResp func(from protocol.Address, nodes []ContactInfo)
	OnConack   func(id NodeID, from protocol.Address, relay *protocol.Address)
	OnMateAck  func(id NodeID, from protocol.Address)
	OnFail     func(err error)

	timer *Timer
}

// Registry maps correlation ids to pending operations.
// It is confined to the node's control context.
type Registry struct {
	ops map[string]*PendingOp
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*PendingOp)}
}

// Put registers op under id
func (r *Registry) Put(id string, op *PendingOp) error {
	if _, exists := r.ops[id]; exists {
		return mateerrors.Newf(mateerrors.KindProtocol, "register", "duplicate message id %s", id)
	}
	r.ops[id] = op
	return nil
}

// Get returns the operation registered under id
func (r *Registry) Get(id string) (*PendingOp, bool) {
	op, ok := r.ops[id]
	return op, ok
}

// Contains reports whether id is outstanding
func (r *Registry) Contains(id string) bool {
	_, ok := r.ops[id]
	return ok
}

// Remove drops id and cancels its timeout. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	op, ok := r.ops[id]
	if !ok {
		return
	}
	delete(r.ops, id)
	op.timer.Stop()
}

// Resolve removes and returns the operation for a reply of the given kind.
// Unknown ids and replies of the wrong kind leave the registry untouched.
func (r *Registry) Resolve(id string, kind protocol.Type) (*PendingOp, bool) {
	op, ok := r.ops[id]
	if !ok || op.Expect != kind {
		return nil, false
	}
	r.Remove(id)
	return op, true
}

// Drain removes every operation, cancelling their timeouts
func (r *Registry) Drain() []*PendingOp {
	ops := make([]*PendingOp, 0, len(r.ops))
	for id, op := range r.ops {
		op.timer.Stop()
		ops = append(ops, op)
		delete(r.ops, id)
	}
	return ops
}

// Len returns the number of outstanding operations
func (r *Registry) Len() int {
	return len(r.ops)
}
