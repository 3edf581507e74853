package heap

import "slices"

// PropertyDictionary keys are interned Strings. The prefix holds the next
// enumeration index; entry details carry each property's index so that
// enumeration order survives rehashing.

var propertyDictionaryKind = dictionaryKind{
	tag: PropertyDictionaryType,
	hash: func(h *Heap, key Value) uint32 {
		return h.StringHash(key)
	},
	match: func(_ *Heap, key, stored Value) bool {
		return key == stored
	},
}

func (h *Heap) newPropertyDictionary(atLeast int, p Pretenure) (dictionary, error) {
	d, err := h.allocateDictionary(&propertyDictionaryKind, atLeast, p)
	if err != nil {
		return dictionary{}, err
	}
	d.setPrefix(1)
	return d, nil
}

func (h *Heap) propertyDictionary(dict Value) dictionary {
	h.expect(dict, PropertyDictionaryType, "propertyDictionary")
	return dictionary{h: h, obj: dict, kind: &propertyDictionaryKind}
}

// addProperty inserts name into d, growing it first if needed. It returns
// the dictionary now holding the entry, which may be a new object.
func (d dictionary) addProperty(name, value Value, details PropertyDetails) (dictionary, error) {
	nd, err := d.ensureCapacity(1)
	if err != nil {
		return dictionary{}, err
	}
	next := nd.prefix()
	if next > nd.h.maxEnumIndex {
		next = nd.renumber()
	}
	nd.insert(name, value, details.WithIndex(next))
	nd.setPrefix(next + 1)
	return nd, nil
}

// renumber assigns dense enumeration indices 1..n in the current order and
// returns the next free index.
func (d dictionary) renumber() int {
	order := d.ordered()
	for i, e := range order {
		d.setDetails(e, d.detailsAt(e).WithIndex(i+1))
	}
	next := len(order) + 1
	d.setPrefix(next)
	log.Debugf("renumbered %d property dictionary entries", len(order))
	return next
}

// ordered returns the live entries in enumeration order.
func (d dictionary) ordered() []int {
	var out []int
	for e := range d.entries() {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b int) int {
		return d.detailsAt(a).Index() - d.detailsAt(b).Index()
	})
	return out
}

// DictionaryEntry is one live dictionary entry.
type DictionaryEntry struct {
	Key     Value
	Value   Value
	Details PropertyDetails
}

// PropertyDictionaryEntries returns the entries of a property dictionary in
// enumeration order.
func (h *Heap) PropertyDictionaryEntries(dict Value) []DictionaryEntry {
	d := h.propertyDictionary(dict)
	order := d.ordered()
	out := make([]DictionaryEntry, len(order))
	for i, e := range order {
		out[i] = DictionaryEntry{Key: d.keyAt(e), Value: d.valueAt(e), Details: d.detailsAt(e)}
	}
	return out
}
