package overlay

import (
	"go.uber.org/zap"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// netHandler posts transport callbacks onto the node's inbox
type netHandler struct {
	n *Node
}

func (h netHandler) HandleMessage(msg *protocol.Message, from protocol.Address) {
	h.n.Act(nil, func() {
		h.n._dispatch(msg, from, nil)
	})
}

func (h netHandler) HandleDecodeError(err error, from protocol.Address) {
	h.n.Act(nil, func() {
		h.n._dataError(err, from)
	})
}

func (h netHandler) HandleNetError(err error) {
	h.n.Act(nil, func() {
		h.n._emitNetError(err)
	})
}

func (h netHandler) HandleClose() {
	h.n.Act(nil, func() {
		h.n._emitNetClose()
	})
}

func (n *Node) _dataError(err error, from protocol.Address) {
	n.metrics.decodeErrors.Inc()
	mateerrors.Log(n.logger, err, "Dropping undecodable datagram", zap.Stringer("address", from))
	n._emitDataError(err)
}

// _dispatch routes one inbound message. relay is the observed address of the
// relay when the message arrived inside a relay delivery.
func (n *Node) _dispatch(msg *protocol.Message, from protocol.Address, relay *protocol.Address) {
	if n.closed {
		return
	}
	n.metrics.received(msg.Type)

	if err := msg.Validate(); err != nil {
		mateerrors.Log(n.logger, err, "Dropping invalid message",
			zap.Stringer("address", from),
			zap.Stringer("type", msg.Type),
		)
		return
	}

	if relay != nil {
		switch msg.Type {
		case protocol.Connect, protocol.Conack, protocol.Ping, protocol.Mate, protocol.MateAck:
		default:
			n.logger.Debug("Dropping message type not allowed through a relay",
				zap.Stringer("type", msg.Type),
				zap.Stringer("relay", *relay),
			)
			return
		}
	}

	var sender NodeID
	if len(msg.NodeID) == protocol.IDLength {
		sender, _ = NodeIDFromBytes(msg.NodeID)
		if c, ok := n.table.Get(sender); ok {
			c.LastActive = n.now()
		}
	}

	switch msg.Type {
	case protocol.Lookup:
		n._handleLookup(msg, from)
	case protocol.LookResp:
		n._handleLookResp(msg, from)
	case protocol.RelayForward:
		n._handleRelayForward(msg, from)
	case protocol.RelayDeliver:
		n._handleRelayDeliver(msg, from)
	case protocol.Connect:
		n._handleConnect(msg, sender, from, relay)
	case protocol.Conack:
		n._handleConack(msg, sender, from, relay)
	case protocol.Ping:
		n._handlePing(sender, from)
	case protocol.Mate:
		n._handleMate(msg, sender, from)
	case protocol.MateAck:
		n._handleMateAck(msg, sender, from)
	}
}

// _handleLookup answers with the target itself when known, then the closest
// other contacts, up to the fanout
func (n *Node) _handleLookup(msg *protocol.Message, from protocol.Address) {
	target, _ := NodeIDFromBytes(msg.LookupNodeID)

	fanout := n.config.MaxClosestNodes
	nodes := make([]protocol.NodeInfo, 0, fanout)
	if c, ok := n.table.Get(target); ok {
		nodes = append(nodes, c.Info().nodeInfo())
	}
	for _, c := range n.table.Closest(target, fanout-len(nodes)) {
		nodes = append(nodes, c.Info().nodeInfo())
	}

	n.logger.Debug("Answering lookup",
		zap.Stringer("target", target),
		zap.Stringer("address", from),
		zap.Int("returned", len(nodes)),
	)

	n._send(&protocol.Message{
		Type:         protocol.LookResp,
		MessageID:    msg.MessageID,
		ClosestNodes: &nodes,
	}, from, nil)
}

func (n *Node) _handleLookResp(msg *protocol.Message, from protocol.Address) {
	op, ok := n._resolve(msg.MessageID, protocol.LookResp)
	if !ok {
		n.logger.Debug("Ignoring unexpected lookup response",
			zap.String("message_id", msg.MessageID),
			zap.Stringer("address", from),
		)
		return
	}
	op.OnLookResp(from, contactInfosFromWire(msg.Nodes()))
}

// _handleRelayForward delivers the embedded payload on behalf of the sender
func (n *Node) _handleRelayForward(msg *protocol.Message, from protocol.Address) {
	source := from
	n.logger.Debug("Relaying message",
		zap.Stringer("from", from),
		zap.Stringer("to", *msg.ConnectAddress),
	)
	n._transmit(&protocol.Message{
		Type:          protocol.RelayDeliver,
		SourceAddress: &source,
		Payload:       msg.Payload,
	}, *msg.ConnectAddress)
}

// _handleRelayDeliver unwraps a relayed message and handles it as if it had
// come from the original sender, remembering the relay for replies
func (n *Node) _handleRelayDeliver(msg *protocol.Message, from protocol.Address) {
	inner, err := protocol.Decode(msg.Payload)
	if err != nil {
		n._dataError(err, from)
		return
	}
	relay := from
	n._dispatch(inner, *msg.SourceAddress, &relay)
}

func (n *Node) _handleConnect(msg *protocol.Message, sender NodeID, from protocol.Address, relay *protocol.Address) {
	if sender == n.id {
		n.logger.Debug("Connect carries local node id", zap.Stringer("address", from))
	} else if c, ok := n.table.Get(sender); !ok {
		n._admit(sender, from, relay)
	} else if c.State == protocol.StateRelayed && relay == nil {
		n._upgrade(c, from)
	}

	n._send(&protocol.Message{
		Type:      protocol.Conack,
		MessageID: msg.MessageID,
		NodeID:    n.id.Bytes(),
	}, from, relay)
}

func (n *Node) _handleConack(msg *protocol.Message, sender NodeID, from protocol.Address, relay *protocol.Address) {
	op, ok := n._resolve(msg.MessageID, protocol.Conack)
	if !ok {
		n.logger.Debug("Ignoring unexpected connect acknowledgment",
			zap.String("message_id", msg.MessageID),
			zap.Stringer("peer_id", sender),
		)
		return
	}
	op.OnConack(sender, from, relay)
}

func (n *Node) _handlePing(sender NodeID, from protocol.Address) {
	if _, ok := n.table.Get(sender); !ok {
		n.logger.Debug("Ping from unknown node",
			zap.Stringer("peer_id", sender),
			zap.Stringer("address", from),
		)
	}
}

func (n *Node) _handleMate(msg *protocol.Message, sender NodeID, from protocol.Address) {
	c, ok := n.table.Get(sender)
	if !ok {
		n.logger.Debug("Dropping message from unknown node",
			zap.Stringer("peer_id", sender),
			zap.Stringer("address", from),
		)
		return
	}

	n._emitMessage(c.Info(), msg.Payload)

	to, via := c.route()
	n._send(&protocol.Message{
		Type:      protocol.MateAck,
		MessageID: msg.MessageID,
		NodeID:    n.id.Bytes(),
	}, to, via)
}

func (n *Node) _handleMateAck(msg *protocol.Message, sender NodeID, from protocol.Address) {
	op, ok := n._resolve(msg.MessageID, protocol.MateAck)
	if !ok {
		n.logger.Debug("Ignoring unexpected message acknowledgment",
			zap.String("message_id", msg.MessageID),
			zap.Stringer("peer_id", sender),
		)
		return
	}
	op.OnMateAck(sender, from)
}
