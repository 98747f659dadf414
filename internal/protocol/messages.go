package protocol

import (
	"fmt"
	"net"
	"strconv"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
)

// IDLength is the size of a node identifier on the wire
const IDLength = 16

// Type identifies a wire message
type Type int

const (
	// Lookup asks for the sender's closest known contacts to a target id
	Lookup Type = 0
	// LookResp answers a Lookup with id+address pairs
	LookResp Type = 1
	// RelayForward asks a relay to deliver an embedded payload to connectAddress
	RelayForward Type = 2
	// RelayDeliver is the relay's delivery to the final target, carrying the requester address
	RelayDeliver Type = 3
	// Connect requests a contact be established
	Connect Type = 4
	// Conack confirms a Connect with the responder's identity
	Conack Type = 5
	// Ping is a liveness probe that expects no reply
	Ping Type = 6
	// Mate carries an application payload
	Mate Type = 7
	// MateAck acknowledges delivery of a Mate message
	MateAck Type = 8
)

var typeNames = map[Type]string{
	Lookup:       "lookup",
	LookResp:     "lookresp",
	RelayForward: "relay_forward",
	RelayDeliver: "relay_deliver",
	Connect:      "connect",
	Conack:       "conack",
	Ping:         "ping",
	Mate:         "message",
	MateAck:      "msgack",
}

// String returns the mnemonic of the type
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports whether t is part of the message catalogue
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// State is the reachability code of a contact
type State int

const (
	// StateConnecting is a legacy code with no behaviour attached
	StateConnecting State = 1
	// StateRelayed means only relay-forwarded delivery is confirmed
	StateRelayed State = 2
	// StateDirect means a direct handshake succeeded
	StateDirect State = 3
)

// String returns the mnemonic of the state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRelayed:
		return "relayed"
	case StateDirect:
		return "direct"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText renders the state by name in diagnostics output
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Address is a UDP endpoint
type Address struct {
	IP   string `bencode:"ip" json:"ip"`
	Port int    `bencode:"port" json:"port"`
}

// String returns host:port
func (a Address) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// IsZero reports whether the address is unset
func (a Address) IsZero() bool {
	return a.IP == "" && a.Port == 0
}

// UDPAddr resolves the address for sending
func (a Address) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", a.String())
}

// AddressFromUDP converts a socket address into a wire address
func AddressFromUDP(addr *net.UDPAddr) Address {
	ip := addr.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return Address{IP: ip.String(), Port: addr.Port}
}

// ParseAddress parses host:port
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Address{}, fmt.Errorf("invalid port in %q", s)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return Address{IP: host, Port: port}, nil
}

// NodeInfo is one entry of a LookResp
type NodeInfo struct {
	ID      []byte  `bencode:"id"`
	Address Address `bencode:"address"`
}

// Message is the wire dictionary shared by every message type.
// Only the fields of the message's type are set.
type Message struct {
	Type           Type        `bencode:"type"`
	MessageID      string      `bencode:"messageId,omitempty"`
	NodeID         []byte      `bencode:"nodeId,omitempty"`
	LookupNodeID   []byte      `bencode:"lookupNodeId,omitempty"`
	ClosestNodes   *[]NodeInfo `bencode:"closestNodes,omitempty"`
	ConnectAddress *Address    `bencode:"connectAddress,omitempty"`
	SourceAddress  *Address    `bencode:"sourceAddress,omitempty"`
	Payload        []byte      `bencode:"payload,omitempty"`
}

// Validate checks that the fields required by the message type are present.
// Failures are protocol violations.
func (m *Message) Validate() error {
	missing := func(field string) error {
		return mateerrors.Newf(mateerrors.KindProtocol, m.Type.String(), "missing %s", field)
	}
	badID := func(field string, n int) error {
		return mateerrors.Newf(mateerrors.KindProtocol, m.Type.String(),
			"%s has %d bytes, want %d", field, n, IDLength)
	}

	switch m.Type {
	case Lookup:
		if m.MessageID == "" {
			return missing("messageId")
		}
		if len(m.LookupNodeID) == 0 {
			return missing("lookupNodeId")
		}
		if len(m.LookupNodeID) != IDLength {
			return badID("lookupNodeId", len(m.LookupNodeID))
		}
	case LookResp:
		if m.MessageID == "" {
			return missing("messageId")
		}
		if m.ClosestNodes == nil {
			return missing("closestNodes")
		}
		for _, n := range *m.ClosestNodes {
			if len(n.ID) != IDLength {
				return badID("closestNodes.id", len(n.ID))
			}
		}
	case RelayForward:
		if m.ConnectAddress == nil || m.ConnectAddress.IsZero() {
			return missing("connectAddress")
		}
		if len(m.Payload) == 0 {
			return missing("payload")
		}
	case RelayDeliver:
		if m.SourceAddress == nil || m.SourceAddress.IsZero() {
			return missing("sourceAddress")
		}
		if len(m.Payload) == 0 {
			return missing("payload")
		}
	case Connect, Conack, MateAck:
		if m.MessageID == "" {
			return missing("messageId")
		}
		if len(m.NodeID) == 0 {
			return missing("nodeId")
		}
		if len(m.NodeID) != IDLength {
			return badID("nodeId", len(m.NodeID))
		}
	case Ping:
		if len(m.NodeID) == 0 {
			return missing("nodeId")
		}
		if len(m.NodeID) != IDLength {
			return badID("nodeId", len(m.NodeID))
		}
	case Mate:
		if m.MessageID == "" {
			return missing("messageId")
		}
		if len(m.NodeID) != IDLength {
			return badID("nodeId", len(m.NodeID))
		}
		if len(m.Payload) == 0 {
			return missing("payload")
		}
	default:
		return mateerrors.Newf(mateerrors.KindProtocol, "validate", "unknown type %d", int(m.Type))
	}
	return nil
}

// Nodes returns the LookResp entries, or nil
func (m *Message) Nodes() []NodeInfo {
	if m.ClosestNodes == nil {
		return nil
	}
	return *m.ClosestNodes
}
