package heap

import "fortio.org/safecast"

// ElementDictionary keys are array indices stored as Numbers. The prefix
// packs the largest index seen with a requires-slow-elements flag:
//
//	[ max number key : rest ][ requires slow : 1 ]
//
// Once an index above RequiresSlowElementsLimit is stored, the flag is set,
// the maximum stops being tracked, and the elements never return to fast
// mode.

// RequiresSlowElementsLimit is the largest index tracked in the prefix.
const RequiresSlowElementsLimit = 1<<29 - 1

const requiresSlowElementsMask = 1

var elementDictionaryKind = dictionaryKind{
	tag: ElementDictionaryType,
	hash: func(h *Heap, key Value) uint32 {
		index, _ := h.NumberToUint32(key)
		return ComputeIntegerHash(index)
	},
	match: func(h *Heap, key, stored Value) bool {
		if key == stored {
			return true
		}
		a, ok1 := h.NumberToUint32(key)
		b, ok2 := h.NumberToUint32(stored)
		return ok1 && ok2 && a == b
	},
}

// ComputeIntegerHash is the index hash of element dictionaries.
func ComputeIntegerHash(key uint32) uint32 {
	hash := key
	hash = ^hash + (hash << 15)
	hash ^= hash >> 12
	hash += hash << 2
	hash ^= hash >> 4
	hash *= 2057
	hash ^= hash >> 16
	return hash
}

func (h *Heap) newElementDictionary(atLeast int, p Pretenure) (dictionary, error) {
	return h.allocateDictionary(&elementDictionaryKind, atLeast, p)
}

func (h *Heap) elementDictionary(dict Value) dictionary {
	h.expect(dict, ElementDictionaryType, "elementDictionary")
	return dictionary{h: h, obj: dict, kind: &elementDictionaryKind}
}

// requiresSlowElements reports whether the flag is set.
func (d dictionary) requiresSlowElements() bool {
	return d.prefix()&requiresSlowElementsMask != 0
}

// maxNumberKey returns the largest tracked index.
func (d dictionary) maxNumberKey() uint32 {
	return safecast.MustConv[uint32](d.prefix() >> 1)
}

func (d dictionary) updateMaxNumberKey(index uint32) {
	if d.requiresSlowElements() {
		return
	}
	if index > RequiresSlowElementsLimit {
		d.setPrefix(d.prefix() | requiresSlowElementsMask)
		return
	}
	if index > d.maxNumberKey() {
		d.setPrefix(int(index) << 1)
	}
}

// findIndex returns the entry holding index, or -1.
func (d dictionary) findIndex(index uint32) int {
	capacity := d.capacity()
	mask := safecast.MustConv[uint32](capacity - 1)
	entry := ComputeIntegerHash(index) & mask
	for count := uint32(1); count <= mask+1; count++ {
		k := d.keyAt(int(entry))
		if k == d.h.oddballs.Undefined {
			return -1
		}
		if k != d.h.oddballs.TheHole {
			if stored, ok := d.h.NumberToUint32(k); ok && stored == index {
				return int(entry)
			}
		}
		entry = (entry + count) & mask
	}
	return -1
}

// addElement inserts key, growing first if needed.
func (d dictionary) addElement(key Value, index uint32, value Value, attrs Attributes) (dictionary, error) {
	nd, err := d.ensureCapacity(1)
	if err != nil {
		return dictionary{}, err
	}
	nd.updateMaxNumberKey(index)
	nd.insert(key, value, NewPropertyDetails(attrs, Normal, 0))
	return nd, nil
}

// ElementDictionaryMaxKey returns the largest tracked index and whether
// the requires-slow-elements flag is set.
func (h *Heap) ElementDictionaryMaxKey(dict Value) (uint32, bool) {
	d := h.elementDictionary(dict)
	return d.maxNumberKey(), d.requiresSlowElements()
}
