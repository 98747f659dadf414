package overlay

import (
	"time"

	"github.com/shizukutanaka/mate/internal/protocol"
)

// Contact is a remote node admitted to the routing table.
// It is only touched on the node's control context.
type Contact struct {
	ID           NodeID
	Address      protocol.Address
	RelayAddress *protocol.Address
	State        protocol.State
	LastActive   time.Time

	seq        uint64
	pingTimer  *Timer
	checkTimer *Timer
}

// Relayed reports whether the contact is reached through a relay
func (c *Contact) Relayed() bool {
	return c.State == protocol.StateRelayed && c.RelayAddress != nil
}

// route returns where traffic for c goes: its own address, and the relay to
// forward through while the contact is relayed
func (c *Contact) route() (protocol.Address, *protocol.Address) {
	if !c.Relayed() {
		return c.Address, nil
	}
	relay := *c.RelayAddress
	return c.Address, &relay
}

// Info returns a copy safe to hand outside the control context
func (c *Contact) Info() ContactInfo {
	info := ContactInfo{
		ID:         c.ID,
		Address:    c.Address,
		State:      c.State,
		LastActive: c.LastActive,
	}
	if c.RelayAddress != nil {
		relay := *c.RelayAddress
		info.RelayAddress = &relay
	}
	return info
}

func (c *Contact) stopTimers() {
	c.pingTimer.Stop()
	c.checkTimer.Stop()
}

// ContactInfo is an immutable view of a contact. Contacts learned from a
// lookup response carry no state.
type ContactInfo struct {
	ID           NodeID            `json:"id"`
	Address      protocol.Address  `json:"address"`
	RelayAddress *protocol.Address `json:"relay_address,omitempty"`
	State        protocol.State    `json:"state,omitempty"`
	LastActive   time.Time         `json:"last_active,omitempty"`
}

func (c ContactInfo) nodeInfo() protocol.NodeInfo {
	return protocol.NodeInfo{ID: c.ID.Bytes(), Address: c.Address}
}

func contactInfosFromWire(nodes []protocol.NodeInfo) []ContactInfo {
	infos := make([]ContactInfo, 0, len(nodes))
	for _, n := range nodes {
		id, err := NodeIDFromBytes(n.ID)
		if err != nil {
			continue
		}
		infos = append(infos, ContactInfo{ID: id, Address: n.Address})
	}
	return infos
}
