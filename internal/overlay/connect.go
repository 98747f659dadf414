package overlay

import (
	"go.uber.org/zap"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
)

func (n *Node) connectMessage() *protocol.Message {
	return &protocol.Message{
		Type:      protocol.Connect,
		MessageID: newMessageID(),
		NodeID:    n.id.Bytes(),
	}
}

// _directConnect handshakes with addr over the direct path
func (n *Node) _directConnect(addr protocol.Address, done func(NodeID, error)) {
	msg := n.connectMessage()

	n._register(msg.MessageID, &PendingOp{
		Expect: protocol.Conack,
		OnConack: func(id NodeID, from protocol.Address, _ *protocol.Address) {
			if id == n.id {
				n.metrics.connects.WithLabelValues("direct", "failure").Inc()
				done(id, mateerrors.Newf(mateerrors.KindProtocol, "connect",
					"%s answered with the local node id", addr))
				return
			}

			c, known := n.table.Get(id)
			switch {
			case !known:
				if _, err := n._admit(id, from, nil); err != nil {
					n.metrics.connects.WithLabelValues("direct", "failure").Inc()
					done(id, err)
					return
				}
			case c.State == protocol.StateRelayed:
				n._upgrade(c, from)
			default:
				n.logger.Debug("Contact reconfirmed", zap.Stringer("peer_id", id))
			}

			n.metrics.connects.WithLabelValues("direct", "success").Inc()
			done(id, nil)
		},
		OnFail: func(err error) {
			n.metrics.connects.WithLabelValues("direct", "failure").Inc()
			done(NodeID{}, err)
		},
	}, n.config.ConnectTimeout)

	n._send(msg, addr, nil)
}

// _indirectConnect handshakes with target through relay
func (n *Node) _indirectConnect(target, relay protocol.Address, done func(NodeID, error)) {
	msg := n.connectMessage()

	n._register(msg.MessageID, &PendingOp{
		Expect: protocol.Conack,
		OnConack: func(id NodeID, from protocol.Address, via *protocol.Address) {
			if id == n.id {
				n.metrics.connects.WithLabelValues("relayed", "failure").Inc()
				done(id, mateerrors.Newf(mateerrors.KindProtocol, "connect",
					"%s answered with the local node id", target))
				return
			}

			if _, known := n.table.Get(id); !known {
				r := relay
				if via != nil {
					r = *via
				}
				if _, err := n._admit(id, from, &r); err != nil {
					n.metrics.connects.WithLabelValues("relayed", "failure").Inc()
					done(id, err)
					return
				}
			}

			n.metrics.connects.WithLabelValues("relayed", "success").Inc()
			done(id, nil)
		},
		OnFail: func(err error) {
			n.metrics.connects.WithLabelValues("relayed", "failure").Inc()
			done(NodeID{}, err)
		},
	}, n.config.ConnectTimeout)

	n._send(msg, target, &relay)
}

// _admit adds a new contact and starts its liveness timers
func (n *Node) _admit(id NodeID, addr protocol.Address, relay *protocol.Address) (*Contact, error) {
	c := &Contact{
		ID:         id,
		Address:    addr,
		State:      protocol.StateDirect,
		LastActive: n.now(),
	}
	if relay != nil {
		r := *relay
		c.RelayAddress = &r
		c.State = protocol.StateRelayed
	}

	evicted, err := n.table.Add(c)
	if err != nil {
		mateerrors.Log(n.logger, err, "Contact refused", zap.Stringer("peer_id", id))
		return nil, err
	}
	if evicted != nil {
		evicted.stopTimers()
		n.metrics.evictions.WithLabelValues("bucket_full").Inc()
		n.logger.Debug("Contact displaced from full bucket",
			zap.Stringer("peer_id", evicted.ID),
			zap.Stringer("by", id),
		)
	}

	n._startLiveness(c)
	n._syncGauges()

	n.logger.Info("Contact admitted",
		zap.Stringer("peer_id", id),
		zap.Stringer("address", addr),
		zap.Stringer("state", c.State),
	)
	return c, nil
}

// _upgrade moves a relayed contact onto the direct path
func (n *Node) _upgrade(c *Contact, addr protocol.Address) {
	c.pingTimer.Stop()
	c.State = protocol.StateDirect
	c.Address = addr
	c.RelayAddress = nil
	c.LastActive = n.now()
	c.pingTimer = n.every(n.config.PingInterval, func() {
		n._ping(c)
	})

	n.logger.Info("Contact upgraded to direct",
		zap.Stringer("peer_id", c.ID),
		zap.Stringer("address", addr),
	)
}
