package overlay

import (
	"time"

	"go.uber.org/zap"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// lookup is one iterative search for a target identifier
type lookup struct {
	target   NodeID
	queried  map[NodeID]struct{}
	hops     map[string]struct{}
	timer    *Timer
	done     func(LookupResult, error)
	finished bool
}

func (n *Node) _lookup(target NodeID, done func(LookupResult, error)) {
	if target == n.id {
		done(LookupResult{Contact: n.localInfo()}, nil)
		return
	}
	if c, ok := n.table.Get(target); ok {
		n.metrics.lookups.WithLabelValues("local").Inc()
		done(LookupResult{Contact: c.Info()}, nil)
		return
	}

	seeds := n.table.Closest(target, n.config.MaxClosestNodes)
	if len(seeds) == 0 {
		n.metrics.lookups.WithLabelValues("failure").Inc()
		done(LookupResult{}, mateerrors.Newf(mateerrors.KindUnreachable, "lookup",
			"no known contacts to ask for %s", target))
		return
	}
	if n.unreachable.Contains(target) {
		n.metrics.lookups.WithLabelValues("failure").Inc()
		done(LookupResult{}, mateerrors.Newf(mateerrors.KindUnreachable, "lookup",
			"%s was recently unreachable", target))
		return
	}

	l := &lookup{
		target:  target,
		queried: make(map[NodeID]struct{}),
		hops:    make(map[string]struct{}),
		done:    done,
	}
	n.lookups[l] = struct{}{}

	timeout := n.config.LookupTimeout
	l.timer = n.after(timeout, func() {
		n.unreachable.MarkUnreachable(target, time.Duration(n.config.MaxClosestNodes)*timeout)
		n._finishLookup(l, LookupResult{}, mateerrors.Newf(mateerrors.KindUnreachable, "lookup",
			"%s not found within %s", target, timeout))
	})

	n.logger.Debug("Starting lookup",
		zap.Stringer("target", target),
		zap.Int("seeds", len(seeds)),
	)
	for _, seed := range seeds {
		n._queryHop(l, seed.Info())
	}
}

// _queryHop sends one LOOKUP unless via was already asked by this lookup
func (n *Node) _queryHop(l *lookup, via ContactInfo) {
	if l.finished || via.ID == n.id {
		return
	}
	if _, seen := l.queried[via.ID]; seen {
		return
	}
	l.queried[via.ID] = struct{}{}

	messageID := newMessageID()
	l.hops[messageID] = struct{}{}

	n._register(messageID, &PendingOp{
		Expect: protocol.LookResp,
		OnLookResp: func(_ protocol.Address, nodes []ContactInfo) {
			delete(l.hops, messageID)
			n._lookupResponse(l, via, nodes)
		},
		OnFail: func(err error) {
			delete(l.hops, messageID)
			n.logger.Debug("Lookup hop dropped",
				zap.Stringer("target", l.target),
				zap.Stringer("peer_id", via.ID),
				zap.Error(err),
			)
		},
	}, n.config.LookupTimeout)

	n._send(&protocol.Message{
		Type:         protocol.Lookup,
		MessageID:    messageID,
		LookupNodeID: l.target.Bytes(),
	}, via.Address, nil)
}

func (n *Node) _lookupResponse(l *lookup, via ContactInfo, nodes []ContactInfo) {
	if l.finished {
		return
	}

	for _, c := range nodes {
		if c.ID == l.target {
			relay := via
			n._finishLookup(l, LookupResult{Contact: c, Relay: &relay}, nil)
			return
		}
	}

	if n.unreachable.Contains(l.target) {
		return
	}
	for _, c := range nodes {
		n._queryHop(l, c)
	}
}

// _finishLookup reports the outcome once and drops every outstanding hop
func (n *Node) _finishLookup(l *lookup, res LookupResult, err error) {
	if l.finished {
		return
	}
	l.finished = true
	l.timer.Stop()
	for messageID := range l.hops {
		n._unregister(messageID)
	}
	l.hops = nil
	delete(n.lookups, l)

	n.metrics.lookups.WithLabelValues(result(err)).Inc()
	if err == nil {
		n.logger.Debug("Lookup succeeded",
			zap.Stringer("target", l.target),
			zap.Stringer("address", res.Contact.Address),
		)
	}
	l.done(res, err)
}
