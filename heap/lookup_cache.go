package heap

// DescriptorLookupCache maps (descriptor table, name) to a search result.
// Tables are immutable and their ids are never reused, so entries never go
// stale; the cache only needs clearing when the heap goes away.
type DescriptorLookupCache struct {
	entries []lookupEntry
	mask    uint32

	Hits   uint64
	Misses uint64
}

type lookupEntry struct {
	table uint32 // 0 means empty
	name  Value
	index int
}

// NewDescriptorLookupCache creates a cache with size entries. size must be
// a power of two.
func NewDescriptorLookupCache(size int) *DescriptorLookupCache {
	return &DescriptorLookupCache{
		entries: make([]lookupEntry, size),
		mask:    uint32(size - 1),
	}
}

func (c *DescriptorLookupCache) slot(t *DescriptorTable, name Value) *lookupEntry {
	h := t.id*2654435761 ^ uint32(name>>3)
	return &c.entries[h&c.mask]
}

// Lookup returns the cached index of name in t.
func (c *DescriptorLookupCache) Lookup(t *DescriptorTable, name Value) (int, bool) {
	e := c.slot(t, name)
	if e.table == t.id && e.name == name {
		c.Hits++
		return e.index, true
	}
	c.Misses++
	return 0, false
}

// Update records the index of name in t. Misses are cached as -1.
func (c *DescriptorLookupCache) Update(t *DescriptorTable, name Value, index int) {
	*c.slot(t, name) = lookupEntry{table: t.id, name: name, index: index}
}

// Clear empties the cache.
func (c *DescriptorLookupCache) Clear() {
	clear(c.entries)
}
