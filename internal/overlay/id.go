package overlay

import (
	"bytes"
	"fmt"
	"math/big"
	"math/bits"

	"github.com/google/uuid"

	"github.com/shizukutanaka/mate/internal/protocol"
)

// IDBits is the width of the identifier space
const IDBits = protocol.IDLength * 8

// NodeID identifies a node. It is a time-ordered UUID and carries no meaning
// beyond equality and XOR distance.
type NodeID [protocol.IDLength]byte

// Distance is the XOR of two identifiers, ordered as a big-endian unsigned integer
type Distance [protocol.IDLength]byte

// NewNodeID generates a fresh identifier
func NewNodeID() NodeID {
	u, err := uuid.NewUUID()
	if err != nil {
		u = uuid.New()
	}
	return NodeID(u)
}

// ParseNodeID parses the canonical UUID form of an identifier
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeID(u), nil
}

// NodeIDFromBytes converts a wire identifier
func NodeIDFromBytes(b []byte) (NodeID, error) {
	var id NodeID
	if len(b) != len(id) {
		return id, fmt.Errorf("node id has %d bytes, want %d", len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the wire form of the identifier
func (id NodeID) Bytes() []byte {
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

// String returns the canonical UUID form
func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Distance calculates the XOR distance between two identifiers
func (id NodeID) Distance(other NodeID) Distance {
	var d Distance
	for i := range id {
		d[i] = id[i] ^ other[i]
	}
	return d
}

// Cmp compares two distances as unsigned integers
func (d Distance) Cmp(other Distance) int {
	return bytes.Compare(d[:], other[:])
}

// IsZero reports whether the distance is zero, i.e. the identifiers are equal
func (d Distance) IsZero() bool {
	return d == Distance{}
}

// Big returns the distance as an integer
func (d Distance) Big() *big.Int {
	return new(big.Int).SetBytes(d[:])
}

// PrefixLen returns the number of leading zero bits, which is the length of
// the common prefix of the two identifiers that produced d.
func (d Distance) PrefixLen() int {
	for i, b := range d {
		if b != 0 {
			return i*8 + bits.LeadingZeros8(b)
		}
	}
	return IDBits
}
