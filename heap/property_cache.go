package heap

// Property access caching
//
// A load or store site remembers the shapes it has seen and where the
// property lives for each. Because structurally identical objects share
// a shape, a hit gives the slot without a descriptor search. Only own
// fast-mode properties are cached; dictionary-mode objects always miss.

// CacheState is the state of one access site.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // no lookup yet
	CacheMonomorphic                   // one shape
	CachePolymorphic                   // 2..MaxPolymorphicEntries shapes
	CacheMegamorphic                   // too many shapes, always miss
)

// String returns the state name.
func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	default:
		return "megamorphic"
	}
}

// MaxPolymorphicEntries is the number of shapes a site tracks before going
// megamorphic.
const MaxPolymorphicEntries = 4

// PropertyCacheEntry is one cached (shape, location) pair.
type PropertyCacheEntry struct {
	Shape *Shape
	Kind  StorageKind
	Field int   // field index for field kinds
	Value Value // constant or AccessorPair
	// Transition is the target shape of a cached add, nil for loads and
	// overwrites.
	Transition *Shape
}

// PropertyCache is the cache of a single access site.
type PropertyCache struct {
	State   CacheState
	Entries [MaxPolymorphicEntries]PropertyCacheEntry
	Count   int

	Hits   uint64
	Misses uint64
}

// Lookup returns the entry for s.
func (c *PropertyCache) Lookup(s *Shape) (PropertyCacheEntry, bool) {
	if c.State == CacheMonomorphic || c.State == CachePolymorphic {
		for i := 0; i < c.Count; i++ {
			if c.Entries[i].Shape == s {
				c.Hits++
				return c.Entries[i], true
			}
		}
	}
	c.Misses++
	return PropertyCacheEntry{}, false
}

// Update records an entry, moving the site along
// empty -> monomorphic -> polymorphic -> megamorphic.
func (c *PropertyCache) Update(e PropertyCacheEntry) {
	switch c.State {
	case CacheEmpty:
		c.State = CacheMonomorphic
		c.Entries[0] = e
		c.Count = 1
	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < c.Count; i++ {
			if c.Entries[i].Shape == e.Shape {
				c.Entries[i] = e
				return
			}
		}
		if c.Count < MaxPolymorphicEntries {
			c.Entries[c.Count] = e
			c.Count++
			c.State = CachePolymorphic
			return
		}
		c.State = CacheMegamorphic
		c.Entries = [MaxPolymorphicEntries]PropertyCacheEntry{}
		c.Count = 0
	case CacheMegamorphic:
	}
}

// HitRate returns the hit percentage.
func (c *PropertyCache) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) * 100 / float64(total)
}

// Reset returns the site to the empty state.
func (c *PropertyCache) Reset() {
	*c = PropertyCache{}
}

// PropertyCacheTable holds the caches of many sites, keyed by site id.
type PropertyCacheTable struct {
	caches map[int]*PropertyCache
}

// NewPropertyCacheTable creates an empty table.
func NewPropertyCacheTable() *PropertyCacheTable {
	return &PropertyCacheTable{caches: make(map[int]*PropertyCache)}
}

// Site returns the cache for site, creating it if needed.
func (t *PropertyCacheTable) Site(site int) *PropertyCache {
	if c := t.caches[site]; c != nil {
		return c
	}
	c := &PropertyCache{}
	t.caches[site] = c
	return c
}

// Stats counts sites per state and totals hits and misses.
func (t *PropertyCacheTable) Stats() (states [4]int, hits, misses uint64) {
	for _, c := range t.caches {
		states[c.State]++
		hits += c.Hits
		misses += c.Misses
	}
	return
}

// ---------------------------------------------------------------------------
// Cached access
// ---------------------------------------------------------------------------

// LoadNamed reads an own or inherited property through cache c.
func (h *Heap) LoadNamed(c *PropertyCache, obj, name Value) (Value, bool) {
	_, s := h.expectJSObject(obj, "LoadNamed")
	if e, ok := c.Lookup(s); ok {
		if e.Kind.IsField() {
			return h.fieldGet(obj, s, e.Field), true
		}
		return e.Value, true
	}
	r := h.LookupOwnProperty(obj, name)
	if !r.Found {
		return h.GetProperty(obj, name)
	}
	if !s.dictionary {
		c.Update(PropertyCacheEntry{Shape: s, Kind: r.Kind, Field: r.Field, Value: r.Value})
	}
	return r.Value, true
}

// StoreNamed writes a property through cache c. Overwrites of writable
// fields and adds along a known transition hit the cache.
func (h *Heap) StoreNamed(c *PropertyCache, obj, name, value Value) error {
	_, s := h.expectJSObject(obj, "StoreNamed")
	if e, ok := c.Lookup(s); ok {
		switch {
		case e.Transition == nil && e.Kind.IsField():
			h.fieldSet(obj, s, e.Field, value)
			return nil
		case e.Transition != nil && e.Kind == InObjectField:
			h.setShape(obj, e.Transition)
			h.fieldSet(obj, e.Transition, e.Field, value)
			return nil
		}
	}
	r := h.LookupOwnProperty(obj, name)
	if err := h.SetProperty(obj, name, value); err != nil {
		return err
	}
	if s.dictionary {
		return nil
	}
	switch {
	case r.Found && r.Kind.IsField() && r.Attributes&ReadOnly == 0:
		c.Update(PropertyCacheEntry{Shape: s, Kind: r.Kind, Field: r.Field})
	case !r.Found:
		after := h.ShapeOf(obj)
		if after.parent == s && after.descriptors != nil {
			field := after.descriptors.fields - 1
			if field < s.inObject {
				c.Update(PropertyCacheEntry{Shape: s, Kind: InObjectField, Field: field, Transition: after})
			}
		}
	}
	return nil
}
