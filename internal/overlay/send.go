package overlay

import (
	"go.uber.org/zap"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// _sendPayload resolves target, connects to it if it was found through a
// relay, and delivers payload
func (n *Node) _sendPayload(target NodeID, payload []byte, done func(error)) {
	finish := func(err error) {
		n.metrics.sends.WithLabelValues(result(err)).Inc()
		done(err)
	}

	if len(payload) == 0 {
		finish(mateerrors.New(mateerrors.KindProtocol, "send", "empty payload"))
		return
	}
	if target == n.id {
		finish(mateerrors.New(mateerrors.KindProtocol, "send", "target is the local node"))
		return
	}

	n._lookup(target, func(res LookupResult, err error) {
		if err != nil {
			finish(err)
			return
		}

		if res.Relay == nil || res.Relay.ID == n.id {
			n._deliver(res.Contact, payload, finish)
			return
		}

		n._indirectConnect(res.Contact.Address, res.Relay.Address, func(_ NodeID, err error) {
			if err != nil {
				finish(err)
				return
			}
			n._directConnect(res.Contact.Address, func(id NodeID, err error) {
				if err != nil {
					n.logger.Debug("Direct path unavailable, staying relayed",
						zap.Stringer("peer_id", target),
						zap.Error(err),
					)
				}
			})
			n._deliver(res.Contact, payload, finish)
		})
	})
}

// _deliver sends one MESSAGE over the contact's current path and waits for
// its acknowledgment
func (n *Node) _deliver(target ContactInfo, payload []byte, done func(error)) {
	to := target.Address
	var relay *protocol.Address
	if c, ok := n.table.Get(target.ID); ok {
		to, relay = c.route()
	}

	msg := &protocol.Message{
		Type:      protocol.Mate,
		MessageID: newMessageID(),
		NodeID:    n.id.Bytes(),
		Payload:   payload,
	}

	n._register(msg.MessageID, &PendingOp{
		Expect: protocol.MateAck,
		OnMateAck: func(id NodeID, _ protocol.Address) {
			n.logger.Debug("Message acknowledged",
				zap.Stringer("peer_id", id),
				zap.String("message_id", msg.MessageID),
			)
			done(nil)
		},
		OnFail: done,
	}, n.config.MessageTimeout)

	n._send(msg, to, relay)
}
