package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testID builds an identifier with the given leading byte and trailing byte
func testID(first, last byte) NodeID {
	var id NodeID
	id[0] = first
	id[len(id)-1] = last
	return id
}

// TestDistance tests the XOR metric
func TestDistance(t *testing.T) {
	a := NewNodeID()
	b := NewNodeID()

	t.Run("SelfIsZero", func(t *testing.T) {
		assert.True(t, a.Distance(a).IsZero())
		assert.Equal(t, 0, a.Distance(a).Big().Sign())
	})

	t.Run("Symmetric", func(t *testing.T) {
		assert.Equal(t, a.Distance(b), b.Distance(a))
		assert.Equal(t, 0, a.Distance(b).Big().Cmp(b.Distance(a).Big()))
	})

	t.Run("Ordering", func(t *testing.T) {
		origin := testID(0, 0)
		near := testID(0, 1)
		far := testID(0x80, 0)

		assert.Equal(t, -1, origin.Distance(near).Cmp(origin.Distance(far)))
		assert.Equal(t, 1, origin.Distance(far).Cmp(origin.Distance(near)))
	})

	t.Run("PrefixLen", func(t *testing.T) {
		origin := testID(0, 0)
		assert.Equal(t, 0, origin.Distance(testID(0x80, 0)).PrefixLen())
		assert.Equal(t, 1, origin.Distance(testID(0x40, 0)).PrefixLen())
		assert.Equal(t, IDBits-1, origin.Distance(testID(0, 1)).PrefixLen())
		assert.Equal(t, IDBits, origin.Distance(origin).PrefixLen())
	})
}

// TestNodeIDEncoding tests identifier parsing and conversion
func TestNodeIDEncoding(t *testing.T) {
	t.Run("Unique", func(t *testing.T) {
		assert.NotEqual(t, NewNodeID(), NewNodeID())
	})

	t.Run("StringRoundTrip", func(t *testing.T) {
		id := NewNodeID()
		parsed, err := ParseNodeID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("InvalidString", func(t *testing.T) {
		_, err := ParseNodeID("not-an-id")
		assert.Error(t, err)
	})

	t.Run("FromBytes", func(t *testing.T) {
		id := NewNodeID()
		converted, err := NodeIDFromBytes(id.Bytes())
		require.NoError(t, err)
		assert.Equal(t, id, converted)

		_, err = NodeIDFromBytes([]byte{1, 2, 3})
		assert.Error(t, err)
	})

	t.Run("Text", func(t *testing.T) {
		id := NewNodeID()
		text, err := id.MarshalText()
		require.NoError(t, err)

		var decoded NodeID
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, id, decoded)
	})
}
