package overlay

import (
	"go.uber.org/zap"

	"github.com/shizukutanaka/mate/internal/protocol"
)

func (n *Node) _startLiveness(c *Contact) {
	c.pingTimer = n.every(n.config.PingInterval, func() {
		n._ping(c)
	})
	c.checkTimer = n.every(2*n.config.PingInterval, func() {
		n._checkStale(c)
	})
}

func (n *Node) _ping(c *Contact) {
	msg := &protocol.Message{
		Type:   protocol.Ping,
		NodeID: n.id.Bytes(),
	}
	to, relay := c.route()
	n._send(msg, to, relay)
}

// _checkStale evicts c when nothing was heard from it for two ping intervals
func (n *Node) _checkStale(c *Contact) {
	silence := n.now().Sub(c.LastActive)
	if silence <= 2*n.config.PingInterval {
		return
	}

	c.stopTimers()
	if current, ok := n.table.Get(c.ID); ok && current == c {
		n.table.Remove(c.ID)
	}
	n.metrics.evictions.WithLabelValues("stale").Inc()
	n._syncGauges()

	n.logger.Info("Contact evicted",
		zap.Stringer("peer_id", c.ID),
		zap.Duration("silence", silence),
	)
}
