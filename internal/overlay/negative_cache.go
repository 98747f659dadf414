package overlay

import "time"

// NegativeCache remembers identifiers that recently failed to resolve
type NegativeCache struct {
	sched   scheduler
	entries map[NodeID]*Timer
}

func newNegativeCache(s scheduler) *NegativeCache {
	return &NegativeCache{
		sched:   s,
		entries: make(map[NodeID]*Timer),
	}
}

// Contains reports whether id is currently marked unreachable
func (nc *NegativeCache) Contains(id NodeID) bool {
	_, ok := nc.entries[id]
	return ok
}

// MarkUnreachable records id for ttl. Marking again restarts the expiry.
func (nc *NegativeCache) MarkUnreachable(id NodeID, ttl time.Duration) {
	if existing, ok := nc.entries[id]; ok {
		existing.Stop()
	}

	var tm *Timer
	tm = nc.sched.after(ttl, func() {
		if nc.entries[id] == tm {
			delete(nc.entries, id)
		}
	})
	nc.entries[id] = tm
}

// Len returns the number of marked identifiers
func (nc *NegativeCache) Len() int {
	return len(nc.entries)
}

// Close cancels every expiry and forgets all entries
func (nc *NegativeCache) Close() {
	for id, tm := range nc.entries {
		tm.Stop()
		delete(nc.entries, id)
	}
}
