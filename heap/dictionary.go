package heap

import (
	"iter"
	"math/bits"

	"fortio.org/safecast"
)

// Dictionaries are open-addressed hash tables laid out on a FixedArray:
//
//	[ nElements | nDeleted | capacity | prefix | (key, value, details) * capacity ]
//
// An undefined key marks a never-used entry and ends a probe sequence; a
// the_hole key marks a deleted entry that probing continues through.
const (
	dictElementsIndex = 0
	dictDeletedIndex  = 1
	dictCapacityIndex = 2
	dictPrefixIndex   = 3
	dictEntriesStart  = 4
	dictEntrySize     = 3
)

// dictionaryKind supplies the key semantics of one dictionary type.
type dictionaryKind struct {
	tag   TypeTag
	hash  func(h *Heap, key Value) uint32
	match func(h *Heap, key, stored Value) bool
}

// dictionary is a view of a dictionary object.
type dictionary struct {
	h    *Heap
	obj  Value
	kind *dictionaryKind
}

func (d dictionary) get(i int) Value {
	return Value(d.h.mem.Word(d.obj.Address().Add(FixedArrayElementOffset(i))))
}

func (d dictionary) set(i int, v Value) {
	d.h.SetFieldAt(d.obj, FixedArrayElementOffset(i), v, writeMode(d.obj.Address()))
}

func (d dictionary) count() int    { return d.get(dictElementsIndex).smiInt() }
func (d dictionary) deleted() int  { return d.get(dictDeletedIndex).smiInt() }
func (d dictionary) capacity() int { return d.get(dictCapacityIndex).smiInt() }
func (d dictionary) prefix() int   { return d.get(dictPrefixIndex).smiInt() }

func (d dictionary) setCounts(elements, deleted int) {
	d.set(dictElementsIndex, smi(elements))
	d.set(dictDeletedIndex, smi(deleted))
}

func (d dictionary) setPrefix(n int) { d.set(dictPrefixIndex, smi(n)) }

func entryIndex(entry int) int { return dictEntriesStart + entry*dictEntrySize }

func (d dictionary) keyAt(entry int) Value   { return d.get(entryIndex(entry)) }
func (d dictionary) valueAt(entry int) Value { return d.get(entryIndex(entry) + 1) }
func (d dictionary) detailsAt(entry int) PropertyDetails {
	return detailsFromValue(d.get(entryIndex(entry) + 2))
}

func (d dictionary) setEntry(entry int, key, value Value, details PropertyDetails) {
	i := entryIndex(entry)
	d.set(i, key)
	d.set(i+1, value)
	d.set(i+2, details.asValue())
}

func (d dictionary) setValue(entry int, value Value) {
	d.set(entryIndex(entry)+1, value)
}

func (d dictionary) setDetails(entry int, details PropertyDetails) {
	d.set(entryIndex(entry)+2, details.asValue())
}

func (d dictionary) isLive(key Value) bool {
	return key != d.h.oddballs.Undefined && key != d.h.oddballs.TheHole
}

// entries yields the live entry numbers in table order.
func (d dictionary) entries() iter.Seq[int] {
	return func(yield func(int) bool) {
		for e := range d.capacity() {
			if d.isLive(d.keyAt(e)) && !yield(e) {
				return
			}
		}
	}
}

// find returns the entry holding key, or -1.
func (d dictionary) find(key Value) int {
	capacity := d.capacity()
	mask := safecast.MustConv[uint32](capacity - 1)
	entry := d.kind.hash(d.h, key) & mask
	for count := uint32(1); count <= mask+1; count++ {
		k := d.keyAt(int(entry))
		if k == d.h.oddballs.Undefined {
			return -1
		}
		if k != d.h.oddballs.TheHole && d.kind.match(d.h, key, k) {
			return int(entry)
		}
		entry = (entry + count) & mask
	}
	return -1
}

// findInsertion returns the first unused or deleted entry on the probe
// sequence of hash.
func (d dictionary) findInsertion(hash uint32) int {
	capacity := d.capacity()
	mask := safecast.MustConv[uint32](capacity - 1)
	entry := hash & mask
	for count := uint32(1); ; count++ {
		if !d.isLive(d.keyAt(int(entry))) {
			return int(entry)
		}
		entry = (entry + count) & mask
		d.h.check(count <= mask+1, CodeDictionaryBounds, "dictionary %s is full", d.obj)
	}
}

// insert stores a new entry. The caller has ensured capacity.
func (d dictionary) insert(key, value Value, details PropertyDetails) int {
	entry := d.findInsertion(d.kind.hash(d.h, key))
	deleted := d.deleted()
	if d.keyAt(entry) == d.h.oddballs.TheHole {
		deleted--
	}
	d.setEntry(entry, key, value, details)
	d.setCounts(d.count()+1, deleted)
	return entry
}

// remove deletes an entry, leaving a the_hole key behind.
func (d dictionary) remove(entry int) {
	hole := d.h.oddballs.TheHole
	d.setEntry(entry, hole, hole, 0)
	d.setCounts(d.count()-1, d.deleted()+1)
}

// ---------------------------------------------------------------------------
// Allocation and resizing
// ---------------------------------------------------------------------------

// dictionaryCapacity returns the table size for atLeast entries.
func (h *Heap) dictionaryCapacity(atLeast int) int {
	n := atLeast + atLeast>>1
	c := 1
	if n > 1 {
		c = 1 << bits.Len(uint(n-1))
	}
	return max(c, h.cfg.DictionaryMinCapacity)
}

func (h *Heap) allocateDictionary(kind *dictionaryKind, atLeast int, p Pretenure) (dictionary, error) {
	capacity := h.dictionaryCapacity(atLeast)
	obj, err := h.allocateArrayLike(h.internal[kind.tag], dictEntriesStart+capacity*dictEntrySize, p, h.oddballs.Undefined)
	if err != nil {
		return dictionary{}, err
	}
	d := dictionary{h: h, obj: obj, kind: kind}
	d.setCounts(0, 0)
	d.set(dictCapacityIndex, smi(capacity))
	d.setPrefix(0)
	return d, nil
}

func pretenureOf(v Value) Pretenure {
	if v.Address().Space() == NewSpace {
		return NotTenured
	}
	return Tenured
}

// ensureCapacity returns d if it can take n more entries, or a larger
// rehashed copy otherwise. The copy is not installed anywhere.
func (d dictionary) ensureCapacity(n int) (dictionary, error) {
	capacity := d.capacity()
	nof := d.count() + n
	nod := d.deleted()
	if nod <= (capacity-nof)>>1 && nof+nof>>1 <= capacity {
		return d, nil
	}
	return d.rehash(nof * 2)
}

// shrink returns a smaller copy of d when at most a quarter is in use.
func (d dictionary) shrink() (dictionary, error) {
	nof := d.count()
	if nof > d.capacity()>>2 || nof < 16 {
		return d, nil
	}
	if d.h.dictionaryCapacity(nof) >= d.capacity() {
		return d, nil
	}
	return d.rehash(nof)
}

func (d dictionary) rehash(atLeast int) (dictionary, error) {
	nd, err := d.h.allocateDictionary(d.kind, atLeast, pretenureOf(d.obj))
	if err != nil {
		return dictionary{}, err
	}
	nd.setPrefix(d.prefix())
	for e := range d.entries() {
		nd.insert(d.keyAt(e), d.valueAt(e), d.detailsAt(e))
	}
	log.Debugf("rehashed %s from %d to %d entries", d.kind.tag, d.capacity(), nd.capacity())
	return nd, nil
}

// DictionaryCount returns the number of live entries of a dictionary.
func (h *Heap) DictionaryCount(dict Value) int {
	return h.dictionaryView(dict).count()
}

// DictionaryCapacity returns the table size of a dictionary.
func (h *Heap) DictionaryCapacity(dict Value) int {
	return h.dictionaryView(dict).capacity()
}

func (h *Heap) dictionaryView(dict Value) dictionary {
	switch h.TypeOf(dict) {
	case PropertyDictionaryType:
		return dictionary{h: h, obj: dict, kind: &propertyDictionaryKind}
	case ElementDictionaryType:
		return dictionary{h: h, obj: dict, kind: &elementDictionaryKind}
	default:
		invariant(CodeWrongType, "%s is not a dictionary", dict)
		return dictionary{}
	}
}
