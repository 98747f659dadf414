package overlay

import (
	"sort"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
)

// RoutingTable holds the contacts known to a node, grouped into buckets by
// the length of the prefix they share with the local identifier.
// It is not safe for concurrent use.
type RoutingTable struct {
	localID    NodeID
	bucketSize int
	buckets    [IDBits][]*Contact
	index      map[NodeID]*Contact
	seq        uint64
}

// NewRoutingTable creates an empty table for localID
func NewRoutingTable(localID NodeID, bucketSize int) *RoutingTable {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	return &RoutingTable{
		localID:    localID,
		bucketSize: bucketSize,
		index:      make(map[NodeID]*Contact),
	}
}

func (rt *RoutingTable) bucketIndex(id NodeID) int {
	idx := rt.localID.Distance(id).PrefixLen()
	if idx >= IDBits {
		idx = IDBits - 1
	}
	return idx
}

// Get returns the contact with exactly this id
func (rt *RoutingTable) Get(id NodeID) (*Contact, bool) {
	c, ok := rt.index[id]
	return c, ok
}

// Add admits c, or refreshes the entry already held for c.ID. When the bucket
// is full the least recently active contact is displaced and returned so the
// caller can release it.
func (rt *RoutingTable) Add(c *Contact) (*Contact, error) {
	if c.ID == rt.localID {
		return nil, mateerrors.New(mateerrors.KindProtocol, "add contact", "refusing local node id")
	}

	if existing, ok := rt.index[c.ID]; ok {
		existing.Address = c.Address
		existing.RelayAddress = c.RelayAddress
		existing.State = c.State
		if c.LastActive.After(existing.LastActive) {
			existing.LastActive = c.LastActive
		}
		return nil, nil
	}

	idx := rt.bucketIndex(c.ID)
	bucket := rt.buckets[idx]

	var evicted *Contact
	if len(bucket) >= rt.bucketSize {
		victim := 0
		for i, candidate := range bucket {
			current := bucket[victim]
			if candidate.LastActive.Before(current.LastActive) ||
				(candidate.LastActive.Equal(current.LastActive) && candidate.seq < current.seq) {
				victim = i
			}
		}
		evicted = bucket[victim]
		bucket = append(bucket[:victim], bucket[victim+1:]...)
		delete(rt.index, evicted.ID)
	}

	rt.seq++
	c.seq = rt.seq
	rt.buckets[idx] = append(bucket, c)
	rt.index[c.ID] = c
	return evicted, nil
}

// Remove evicts the contact with this id. It reports whether anything was removed.
func (rt *RoutingTable) Remove(id NodeID) bool {
	c, ok := rt.index[id]
	if !ok {
		return false
	}
	delete(rt.index, id)

	idx := rt.bucketIndex(id)
	bucket := rt.buckets[idx]
	for i, candidate := range bucket {
		if candidate == c {
			rt.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	return true
}

// Closest returns up to k contacts ordered by ascending distance to target.
// A contact equal to target is never returned.
func (rt *RoutingTable) Closest(target NodeID, k int) []*Contact {
	if k <= 0 {
		return nil
	}

	candidates := make([]*Contact, 0, len(rt.index))
	for _, c := range rt.index {
		if c.ID == target || c.ID == rt.localID {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		cmp := candidates[i].ID.Distance(target).Cmp(candidates[j].ID.Distance(target))
		if cmp != 0 {
			return cmp < 0
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Len returns the number of contacts
func (rt *RoutingTable) Len() int {
	return len(rt.index)
}

// Contacts returns every contact in insertion order
func (rt *RoutingTable) Contacts() []*Contact {
	contacts := make([]*Contact, 0, len(rt.index))
	for _, c := range rt.index {
		contacts = append(contacts, c)
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].seq < contacts[j].seq
	})
	return contacts
}
