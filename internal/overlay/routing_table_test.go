package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shizukutanaka/mate/internal/protocol"
)

func testContact(id NodeID, lastActive time.Time) *Contact {
	return &Contact{
		ID:         id,
		Address:    protocol.Address{IP: "127.0.0.1", Port: 3000 + int(id[len(id)-1])},
		State:      protocol.StateDirect,
		LastActive: lastActive,
	}
}

func contactIDs(contacts []*Contact) []NodeID {
	ids := make([]NodeID, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	return ids
}

// TestRoutingTableAdd tests admission and refresh
func TestRoutingTableAdd(t *testing.T) {
	local := testID(0, 0)
	now := time.Now()

	t.Run("GetExactMatch", func(t *testing.T) {
		rt := NewRoutingTable(local, 2)
		c := testContact(testID(0x80, 1), now)

		evicted, err := rt.Add(c)
		require.NoError(t, err)
		assert.Nil(t, evicted)

		got, ok := rt.Get(c.ID)
		require.True(t, ok)
		assert.Same(t, c, got)

		_, ok = rt.Get(testID(0x80, 2))
		assert.False(t, ok)
	})

	t.Run("RefuseLocal", func(t *testing.T) {
		rt := NewRoutingTable(local, 2)
		_, err := rt.Add(testContact(local, now))
		assert.Error(t, err)
		assert.Equal(t, 0, rt.Len())
	})

	t.Run("RefreshExisting", func(t *testing.T) {
		rt := NewRoutingTable(local, 2)
		c := testContact(testID(0x80, 1), now)
		_, err := rt.Add(c)
		require.NoError(t, err)

		update := testContact(c.ID, now.Add(time.Second))
		update.Address = protocol.Address{IP: "10.0.0.1", Port: 9}
		_, err = rt.Add(update)
		require.NoError(t, err)

		assert.Equal(t, 1, rt.Len())
		got, _ := rt.Get(c.ID)
		assert.Same(t, c, got)
		assert.Equal(t, update.Address, got.Address)
		assert.Equal(t, update.LastActive, got.LastActive)
	})

	t.Run("FullBucketEvictsLeastRecentlyActive", func(t *testing.T) {
		rt := NewRoutingTable(local, 2)
		older := testContact(testID(0x80, 1), now.Add(-time.Minute))
		newer := testContact(testID(0x81, 2), now)
		_, err := rt.Add(newer)
		require.NoError(t, err)
		_, err = rt.Add(older)
		require.NoError(t, err)

		incoming := testContact(testID(0x82, 3), now)
		evicted, err := rt.Add(incoming)
		require.NoError(t, err)
		require.NotNil(t, evicted)
		assert.Equal(t, older.ID, evicted.ID)

		assert.Equal(t, 2, rt.Len())
		_, ok := rt.Get(older.ID)
		assert.False(t, ok)
		_, ok = rt.Get(incoming.ID)
		assert.True(t, ok)
	})

	t.Run("FullBucketTieEvictsEarliest", func(t *testing.T) {
		rt := NewRoutingTable(local, 2)
		first := testContact(testID(0x80, 1), now)
		second := testContact(testID(0x81, 2), now)
		_, _ = rt.Add(first)
		_, _ = rt.Add(second)

		evicted, err := rt.Add(testContact(testID(0x82, 3), now))
		require.NoError(t, err)
		require.NotNil(t, evicted)
		assert.Equal(t, first.ID, evicted.ID)
	})

	t.Run("OtherBucketsUnaffected", func(t *testing.T) {
		rt := NewRoutingTable(local, 1)
		_, _ = rt.Add(testContact(testID(0x80, 1), now))
		evicted, err := rt.Add(testContact(testID(0x40, 2), now))
		require.NoError(t, err)
		assert.Nil(t, evicted)
		assert.Equal(t, 2, rt.Len())
	})
}

// TestRoutingTableClosest tests nearest-k queries
func TestRoutingTableClosest(t *testing.T) {
	local := testID(0, 0)
	now := time.Now()

	rt := NewRoutingTable(local, 8)
	ids := []NodeID{
		testID(0x80, 1),
		testID(0x40, 2),
		testID(0x20, 3),
		testID(0x10, 4),
		testID(0x01, 5),
	}
	for _, id := range ids {
		_, err := rt.Add(testContact(id, now))
		require.NoError(t, err)
	}

	t.Run("AscendingAndBounded", func(t *testing.T) {
		target := testID(0x00, 9)
		closest := rt.Closest(target, 3)
		require.Len(t, closest, 3)

		for i := 1; i < len(closest); i++ {
			prev := closest[i-1].ID.Distance(target)
			cur := closest[i].ID.Distance(target)
			assert.Equal(t, -1, prev.Cmp(cur))
		}
		assert.Equal(t, []NodeID{ids[4], ids[3], ids[2]}, contactIDs(closest))
	})

	t.Run("ExcludesTarget", func(t *testing.T) {
		closest := rt.Closest(ids[1], 10)
		assert.Len(t, closest, len(ids)-1)
		assert.NotContains(t, contactIDs(closest), ids[1])
	})

	t.Run("ExcludesLocal", func(t *testing.T) {
		closest := rt.Closest(local, 10)
		assert.NotContains(t, contactIDs(closest), local)
		assert.Len(t, closest, len(ids))
	})

	t.Run("ZeroK", func(t *testing.T) {
		assert.Empty(t, rt.Closest(ids[0], 0))
	})
}

// TestRoutingTableRemove tests eviction
func TestRoutingTableRemove(t *testing.T) {
	local := testID(0, 0)
	rt := NewRoutingTable(local, 2)
	c := testContact(testID(0x80, 1), time.Now())
	_, err := rt.Add(c)
	require.NoError(t, err)

	assert.True(t, rt.Remove(c.ID))
	assert.False(t, rt.Remove(c.ID))
	assert.Equal(t, 0, rt.Len())
	assert.Empty(t, rt.Contacts())
	assert.Empty(t, rt.Closest(testID(0x80, 2), 2))
}

// TestRoutingTableContacts tests the insertion ordered snapshot
func TestRoutingTableContacts(t *testing.T) {
	rt := NewRoutingTable(testID(0, 0), 8)
	ids := []NodeID{testID(0x01, 1), testID(0x80, 2), testID(0x20, 3)}
	for _, id := range ids {
		_, err := rt.Add(testContact(id, time.Now()))
		require.NoError(t, err)
	}
	assert.Equal(t, ids, contactIDs(rt.Contacts()))
}
