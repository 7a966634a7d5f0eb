package snapshot

import "sort"

// DefaultMaxPerScope is used when a cache is built with a non-positive cap.
const DefaultMaxPerScope = 1000

type entry struct {
	snap Snapshot
	seq  uint64
}

// candidate is one position in the cache-wide insertion order. It is stale when
// the entry it points to was popped or superseded (entry.seq != candidate.seq).
type candidate struct {
	key Key
	seq uint64
}

// Cache is a bounded store of snapshots. Capacity is counted per scope, but
// eviction walks one insertion order shared by every scope: when a scope goes
// over its cap, the oldest entries of the whole cache are dropped until it fits.
//
// Cache is not safe for concurrent use; the owner serialises access.
//
// Invariants:
//   - counts[s] == number of entries whose ScopeID is s
//   - counts[s] <= maxPerScope after every Put
//   - order holds every live entry exactly once (plus stale candidates),
//     oldest first
type Cache struct {
	maxPerScope int

	entries map[Key]entry
	order   []candidate
	counts  map[int64]int

	seq     uint64
	evicted uint64
}

// Stats is a point-in-time view for operators.
type Stats struct {
	Entries     int    `json:"entries"`
	Scopes      int    `json:"scopes"`
	MaxPerScope int    `json:"max_per_scope"`
	Evicted     uint64 `json:"evicted"`
}

func NewCache(maxPerScope int) *Cache {
	if maxPerScope <= 0 {
		maxPerScope = DefaultMaxPerScope
	}
	return &Cache{
		maxPerScope: maxPerScope,
		entries:     map[Key]entry{},
		counts:      map[int64]int{},
	}
}

// Put inserts s, replacing any snapshot under the same key. While s's scope is
// over capacity, the oldest live entry of the cache, from any scope, is evicted.
// The result counts evicted entries per scope and is nil when nothing went.
func (c *Cache) Put(s Snapshot) map[int64]int {
	k := s.Key()
	c.seq++
	if _, ok := c.entries[k]; !ok {
		c.counts[k.ScopeID]++
	}
	c.entries[k] = entry{snap: s, seq: c.seq}
	c.order = append(c.order, candidate{key: k, seq: c.seq})

	var evicted map[int64]int
	for c.counts[k.ScopeID] > c.maxPerScope && len(c.order) > 0 {
		cand := c.order[0]
		c.order = c.order[1:]
		if !c.live(cand) {
			continue
		}
		c.evict(cand.key)
		if evicted == nil {
			evicted = map[int64]int{}
		}
		evicted[cand.key.ScopeID]++
	}
	c.compact()
	return evicted
}

func (c *Cache) Get(scopeID int64, messageID int) (Snapshot, bool) {
	e, ok := c.entries[Key{ScopeID: scopeID, MessageID: messageID}]
	return e.snap, ok
}

// Pop removes and returns the entry. The order candidate is left behind and
// skipped later.
func (c *Cache) Pop(scopeID int64, messageID int) (Snapshot, bool) {
	k := Key{ScopeID: scopeID, MessageID: messageID}
	e, ok := c.entries[k]
	if !ok {
		return Snapshot{}, false
	}
	c.remove(k)
	return e.snap, true
}

// PopAllByMessageID removes every entry with the given message id, in any
// scope, and returns them oldest first.
func (c *Cache) PopAllByMessageID(messageID int) []Snapshot {
	var found []entry
	for k, e := range c.entries {
		if k.MessageID == messageID {
			found = append(found, e)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	out := make([]Snapshot, 0, len(found))
	for _, e := range found {
		c.remove(e.snap.Key())
		out = append(out, e.snap)
	}
	return out
}

// SetMaxPerScope changes the cap. Scopes over the new cap lose their own
// oldest entries; scopes within it are left alone.
func (c *Cache) SetMaxPerScope(n int) {
	if n <= 0 {
		n = DefaultMaxPerScope
	}
	c.maxPerScope = n
	for _, cand := range c.order {
		if c.counts[cand.key.ScopeID] > n && c.live(cand) {
			c.evict(cand.key)
		}
	}
	c.compact()
}

func (c *Cache) MaxPerScope() int { return c.maxPerScope }

func (c *Cache) Len() int { return len(c.entries) }

// ScopeLen returns the live count of scope.
func (c *Cache) ScopeLen(scopeID int64) int { return c.counts[scopeID] }

func (c *Cache) Stats() Stats {
	return Stats{
		Entries:     len(c.entries),
		Scopes:      len(c.counts),
		MaxPerScope: c.maxPerScope,
		Evicted:     c.evicted,
	}
}

func (c *Cache) live(cand candidate) bool {
	e, ok := c.entries[cand.key]
	return ok && e.seq == cand.seq
}

func (c *Cache) drop(k Key) {
	delete(c.entries, k)
	if c.counts[k.ScopeID]--; c.counts[k.ScopeID] <= 0 {
		delete(c.counts, k.ScopeID)
	}
}

func (c *Cache) evict(k Key) {
	c.drop(k)
	c.evicted++
}

func (c *Cache) remove(k Key) {
	c.drop(k)
	c.compact()
}

// compact drops stale candidates once they dominate the queue, so heavy
// edit/delete traffic doesn't grow it without bound.
func (c *Cache) compact() {
	if len(c.order) <= 2*len(c.entries)+16 {
		return
	}
	out := make([]candidate, 0, len(c.entries))
	for _, cand := range c.order {
		if c.live(cand) {
			out = append(out, cand)
		}
	}
	c.order = out
}

// ScopeCounts returns a copy of the live count per scope.
func (c *Cache) ScopeCounts() map[int64]int {
	out := make(map[int64]int, len(c.counts))
	for s, n := range c.counts {
		out[s] = n
	}
	return out
}
