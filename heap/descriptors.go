package heap

import (
	"fmt"
	"slices"
)

// Attributes are the property attribute bits.
type Attributes uint8

const (
	None       Attributes = 0
	ReadOnly   Attributes = 1 << 0
	DontEnum   Attributes = 1 << 1
	DontDelete Attributes = 1 << 2

	attributesMask Attributes = 7
)

// String returns the attributes as flag letters.
func (a Attributes) String() string {
	b := []byte("---")
	if a&ReadOnly != 0 {
		b[0] = 'R'
	}
	if a&DontEnum != 0 {
		b[1] = 'E'
	}
	if a&DontDelete != 0 {
		b[2] = 'D'
	}
	return string(b)
}

// StorageKind says where a property's value lives.
type StorageKind uint8

const (
	InObjectField  StorageKind = iota // slot inside the object
	OutOfLineField                    // slot in the properties array
	Constant                          // value held by the descriptor
	Accessor                          // AccessorPair held by the descriptor
	Transition                        // transition view entries only
	Normal                            // dictionary entry value
)

var storageKindNames = [...]string{"in-object", "out-of-line", "constant", "accessor", "transition", "normal"}

// String returns the kind name.
func (k StorageKind) String() string {
	if int(k) < len(storageKindNames) {
		return storageKindNames[k]
	}
	return "unknown"
}

// IsField reports whether the value lives in an object slot.
func (k StorageKind) IsField() bool {
	return k == InObjectField || k == OutOfLineField
}

// PropertyDetails packs attributes, storage kind and enumeration index:
//
//	[ index : rest ][ kind : 3 ][ attrs : 3 ]
type PropertyDetails uint32

const (
	detailsKindShift  = 3
	detailsIndexShift = 6
	detailsLowMask    = 7
)

// maxEnumerationIndex is the largest enumeration index a details word holds
// while staying a positive 31-bit integer.
const maxEnumerationIndex = 1<<(31-1-detailsIndexShift) - 1

// NewPropertyDetails packs the three fields.
func NewPropertyDetails(attrs Attributes, kind StorageKind, index int) PropertyDetails {
	return PropertyDetails(uint32(attrs&attributesMask) |
		uint32(kind&detailsLowMask)<<detailsKindShift |
		uint32(index)<<detailsIndexShift)
}

// Attributes returns the attribute bits.
func (d PropertyDetails) Attributes() Attributes {
	return Attributes(d & detailsLowMask)
}

// Kind returns the storage kind.
func (d PropertyDetails) Kind() StorageKind {
	return StorageKind(d >> detailsKindShift & detailsLowMask)
}

// Index returns the enumeration index. Indices start at 1.
func (d PropertyDetails) Index() int {
	return int(d >> detailsIndexShift)
}

// WithIndex returns d with another enumeration index.
func (d PropertyDetails) WithIndex(index int) PropertyDetails {
	return NewPropertyDetails(d.Attributes(), d.Kind(), index)
}

// WithAttributes returns d with other attributes.
func (d PropertyDetails) WithAttributes(attrs Attributes) PropertyDetails {
	return NewPropertyDetails(attrs, d.Kind(), d.Index())
}

// asValue encodes d as a tagged word for dictionary storage.
func (d PropertyDetails) asValue() Value {
	return smi(int(d))
}

func detailsFromValue(v Value) PropertyDetails {
	return PropertyDetails(v.SmiValue())
}

func (d PropertyDetails) String() string {
	return fmt.Sprintf("%s %s #%d", d.Attributes(), d.Kind(), d.Index())
}

// MaxDescriptors bounds the size of a descriptor table.
const MaxDescriptors = 1536

// Descriptor is one fast-mode property.
type Descriptor struct {
	Name    Value // interned String
	Details PropertyDetails
	Field   int   // field index for field kinds
	Value   Value // constant value or AccessorPair
	hash    uint32
}

// DescriptorTable is the immutable property table of a fast-mode shape,
// sorted by name hash. Tables are shared along transition chains only by
// copying; a published table is never modified.
type DescriptorTable struct {
	id      uint32
	entries []Descriptor
	fields  int
}

func (h *Heap) newDescriptorTable(entries []Descriptor, fields int) *DescriptorTable {
	h.nextTableID++
	return &DescriptorTable{id: h.nextTableID, entries: entries, fields: fields}
}

// Len returns the number of descriptors.
func (t *DescriptorTable) Len() int { return len(t.entries) }

// At returns descriptor i in hash order.
func (t *DescriptorTable) At(i int) Descriptor { return t.entries[i] }

// FieldCount returns the number of field descriptors.
func (t *DescriptorTable) FieldCount() int { return t.fields }

// Ordered returns the descriptors in enumeration order.
func (t *DescriptorTable) Ordered() []Descriptor {
	out := slices.Clone(t.entries)
	slices.SortFunc(out, func(a, b Descriptor) int {
		return a.Details.Index() - b.Details.Index()
	})
	return out
}

// search finds name, returning its position or -1. Small tables are
// scanned linearly; larger ones are bisected on the hash.
func (t *DescriptorTable) search(name Value, hash uint32, linearLimit int) int {
	n := len(t.entries)
	if n <= linearLimit {
		for i := range t.entries {
			if t.entries[i].Name == name {
				return i
			}
		}
		return -1
	}
	lo, _ := slices.BinarySearchFunc(t.entries, hash, func(d Descriptor, h uint32) int {
		switch {
		case d.hash < h:
			return -1
		case d.hash > h:
			return 1
		default:
			return 0
		}
	})
	for i := lo; i < n && t.entries[i].hash == hash; i++ {
		if t.entries[i].Name == name {
			return i
		}
	}
	return -1
}

// withAdded returns a new table holding t's entries plus d.
func (h *Heap) withAdded(t *DescriptorTable, d Descriptor) *DescriptorTable {
	if len(t.entries) >= MaxDescriptors {
		invariant(CodeDescriptorOverflow, "descriptor table full (%d entries)", len(t.entries))
	}
	pos, _ := slices.BinarySearchFunc(t.entries, d.hash, func(e Descriptor, h uint32) int {
		if e.hash <= h {
			return -1
		}
		return 1
	})
	entries := make([]Descriptor, 0, len(t.entries)+1)
	entries = append(entries, t.entries[:pos]...)
	entries = append(entries, d)
	entries = append(entries, t.entries[pos:]...)
	fields := t.fields
	if d.Details.Kind().IsField() {
		fields++
	}
	return h.newDescriptorTable(entries, fields)
}

// LookupDescriptor returns the index of name in t, or -1. name must be
// interned; the property operations intern on entry.
func (h *Heap) LookupDescriptor(t *DescriptorTable, name Value) int {
	if i, ok := h.lookupCache.Lookup(t, name); ok {
		return i
	}
	i := t.search(name, h.StringHash(name), h.cfg.DescriptorLinearSearchLimit)
	h.lookupCache.Update(t, name, i)
	return i
}
