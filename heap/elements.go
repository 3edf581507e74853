package heap

import (
	"math"

	"fortio.org/safecast"
)

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// NewArray allocates a young array of length zero with room for capacity
// fast elements.
func (h *Heap) NewArray(prototype Value, capacity int) (Value, error) {
	s, err := h.InitialShape(ArrayType, prototype)
	if err != nil {
		return 0, err
	}
	elements := h.emptyFixedArray
	if capacity > 0 {
		if elements, err = h.allocateFixedArray(capacity, NotTenured, h.oddballs.TheHole); err != nil {
			return 0, err
		}
	}
	arr, err := h.NewObjectFromShape(s, NotTenured)
	if err != nil {
		return 0, err
	}
	h.mem.SetWord(arr.Address().Add(ObjectElementsOffset), uint64(elements))
	return arr, nil
}

// ArrayLength returns the length of an array.
func (h *Heap) ArrayLength(arr Value) uint32 {
	addr := h.expect(arr, ArrayType, "ArrayLength")
	n, ok := h.NumberToUint32(Value(h.mem.Word(addr.Add(ArrayLengthOffset))))
	if !ok {
		invariant(CodeWrongType, "ArrayLength: %s has a bad length", arr)
	}
	return n
}

// MaxArrayIndex is the largest element index of an array. Its length must
// stay above every index and is itself at most 2^32-1, so 2^32-1 names a
// property rather than an element of an array.
const MaxArrayIndex = math.MaxUint32 - 1

// checkArrayIndex rejects an index no array can hold.
func checkArrayIndex(s *Shape, index uint32) {
	if s.tag == ArrayType && index > MaxArrayIndex {
		invariant(CodeArrayIndex, "%d is not an array index", index)
	}
}

// lengthUpdate returns the length value an array needs after storing at
// index and whether it grows. It allocates, so callers run it before
// mutating.
func (h *Heap) lengthUpdate(obj Value, s *Shape, index uint32) (Value, bool, error) {
	if s.tag != ArrayType || index < h.ArrayLength(obj) {
		return 0, false, nil
	}
	checkArrayIndex(s, index)
	length, err := h.NumberFromUint32(index + 1)
	if err != nil {
		return 0, false, err
	}
	return length, true, nil
}

func (h *Heap) setLength(obj, length Value, grows bool) {
	if grows {
		h.SetFieldAt(obj, ArrayLengthOffset, length, writeMode(obj.Address()))
	}
}

// SetArrayLength sets the length of an array, deleting elements at or
// above the new length. Elements that cannot be deleted stop the
// truncation just above them.
func (h *Heap) SetArrayLength(arr Value, length uint32) error {
	h.expect(arr, ArrayType, "SetArrayLength")
	s := h.ShapeOf(arr)
	old := h.ArrayLength(arr)
	elements := h.elementsOf(arr)

	if s.elementsKind == DictionaryElements && length < old {
		d := h.elementDictionary(elements)
		var doomed []int
		for e := range d.entries() {
			index, _ := h.NumberToUint32(d.keyAt(e))
			if index < length {
				continue
			}
			if d.detailsAt(e).Attributes()&DontDelete != 0 {
				length = max(length, index+1)
				continue
			}
			doomed = append(doomed, e)
		}
		lengthValue, err := h.NumberFromUint32(length)
		if err != nil {
			return err
		}
		for _, e := range doomed {
			if index, _ := h.NumberToUint32(d.keyAt(e)); index >= length {
				d.remove(e)
			}
		}
		if nd, err := d.shrink(); err == nil && nd.obj != d.obj {
			h.setElements(arr, nd.obj)
		}
		h.SetFieldAt(arr, ArrayLengthOffset, lengthValue, writeMode(arr.Address()))
		return nil
	}

	lengthValue, err := h.NumberFromUint32(length)
	if err != nil {
		return err
	}
	if s.elementsKind == FastElements && length < old {
		capacity := safecast.MustConv[uint32](h.FixedArrayLength(elements))
		if length == 0 {
			h.setElements(arr, h.emptyFixedArray)
		} else {
			for i := length; i < min(old, capacity); i++ {
				h.FixedArraySet(elements, int(i), h.oddballs.TheHole)
			}
		}
	}
	h.SetFieldAt(arr, ArrayLengthOffset, lengthValue, writeMode(arr.Address()))
	return nil
}

// ---------------------------------------------------------------------------
// Element access
// ---------------------------------------------------------------------------

// HasFastElements reports whether obj keeps elements in a FixedArray.
func (h *Heap) HasFastElements(obj Value) bool {
	_, s := h.expectJSObject(obj, "HasFastElements")
	return s.elementsKind == FastElements
}

// GetElement returns the element at index, if present.
func (h *Heap) GetElement(obj Value, index uint32) (Value, bool) {
	_, s := h.expectJSObject(obj, "GetElement")
	elements := h.elementsOf(obj)
	if s.elementsKind == FastElements {
		if int64(index) < int64(h.FixedArrayLength(elements)) {
			if v := h.FixedArrayGet(elements, int(index)); v != h.oddballs.TheHole {
				return v, true
			}
		}
		return h.oddballs.Undefined, false
	}
	d := h.elementDictionary(elements)
	if e := d.findIndex(index); e >= 0 {
		return d.valueAt(e), true
	}
	return h.oddballs.Undefined, false
}

// ElementCount returns the number of present elements.
func (h *Heap) ElementCount(obj Value) int {
	_, s := h.expectJSObject(obj, "ElementCount")
	elements := h.elementsOf(obj)
	if s.elementsKind == DictionaryElements {
		return h.elementDictionary(elements).count()
	}
	return h.countFastElements(elements)
}

func (h *Heap) countFastElements(elements Value) int {
	n := 0
	for i := range h.FixedArrayLength(elements) {
		if h.FixedArrayGet(elements, i) != h.oddballs.TheHole {
			n++
		}
	}
	return n
}

// SetElement stores value at index. Stores that would leave fast elements
// too sparse move obj to dictionary elements first.
func (h *Heap) SetElement(obj Value, index uint32, value Value) error {
	_, s := h.expectJSObject(obj, "SetElement")
	checkArrayIndex(s, index)
	if s.elementsKind == DictionaryElements {
		return h.setDictionaryElement(obj, s, index, value, None, false)
	}
	elements := h.elementsOf(obj)
	capacity := h.FixedArrayLength(elements)
	if int64(index) < int64(capacity) {
		length, grows, err := h.lengthUpdate(obj, s, index)
		if err != nil {
			return err
		}
		h.FixedArraySet(elements, int(index), value)
		h.setLength(obj, length, grows)
		return nil
	}

	if int64(index)-int64(capacity) < int64(h.cfg.MaxElementGap) && index < h.cfg.MaxFastElementsIndex {
		newCapacity := NewElementsCapacity(int(index) + 1)
		if !h.ShouldConvertToSlowElements(obj, newCapacity) {
			length, grows, err := h.lengthUpdate(obj, s, index)
			if err != nil {
				return err
			}
			grown, err := h.copyFixedArray(elements, newCapacity, pretenureOf(obj), h.oddballs.TheHole)
			if err != nil {
				return err
			}
			h.FixedArraySet(grown, int(index), value)
			h.setElements(obj, grown)
			h.setLength(obj, length, grows)
			return nil
		}
	}

	if err := h.NormalizeElements(obj); err != nil {
		return err
	}
	return h.setDictionaryElement(obj, h.ShapeOf(obj), index, value, None, false)
}

// DefineElement stores value at index with attributes. Elements with
// attributes always live in a dictionary.
func (h *Heap) DefineElement(obj Value, index uint32, value Value, attrs Attributes) error {
	_, s := h.expectJSObject(obj, "DefineElement")
	checkArrayIndex(s, index)
	if attrs == None && s.elementsKind == FastElements {
		return h.SetElement(obj, index, value)
	}
	if err := h.NormalizeElements(obj); err != nil {
		return err
	}
	return h.setDictionaryElement(obj, h.ShapeOf(obj), index, value, attrs, true)
}

func (h *Heap) setDictionaryElement(obj Value, s *Shape, index uint32, value Value, attrs Attributes, define bool) error {
	d := h.elementDictionary(h.elementsOf(obj))
	if e := d.findIndex(index); e >= 0 {
		details := d.detailsAt(e)
		if define {
			d.setDetails(e, details.WithAttributes(attrs))
		} else if details.Attributes()&ReadOnly != 0 {
			return nil
		}
		d.setValue(e, value)
		return nil
	}

	key, err := h.NumberFromUint32(index)
	if err != nil {
		return err
	}
	length, grows, err := h.lengthUpdate(obj, s, index)
	if err != nil {
		return err
	}
	nd, err := d.addElement(key, index, value, attrs)
	if err != nil {
		return err
	}
	if nd.obj != d.obj {
		h.setElements(obj, nd.obj)
	}
	h.setLength(obj, length, grows)

	if h.ShouldConvertToFastElements(obj) {
		// Best effort: the store already happened.
		if err := h.MigrateToFastElements(obj); err != nil {
			log.Debugf("keeping dictionary elements of %s: %s", obj, err)
		}
	}
	return nil
}

// DeleteElement removes the element at index. It reports false if the
// element is DontDelete.
func (h *Heap) DeleteElement(obj Value, index uint32) (bool, error) {
	_, s := h.expectJSObject(obj, "DeleteElement")
	elements := h.elementsOf(obj)
	if s.elementsKind == FastElements {
		if int64(index) < int64(h.FixedArrayLength(elements)) {
			h.FixedArraySet(elements, int(index), h.oddballs.TheHole)
		}
		return true, nil
	}
	d := h.elementDictionary(elements)
	e := d.findIndex(index)
	if e < 0 {
		return true, nil
	}
	if d.detailsAt(e).Attributes()&DontDelete != 0 {
		return false, nil
	}
	d.remove(e)
	if nd, err := d.shrink(); err == nil && nd.obj != d.obj {
		h.setElements(obj, nd.obj)
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Mode conversion
// ---------------------------------------------------------------------------

// NewElementsCapacity returns the fast capacity grown to hold n elements.
func NewElementsCapacity(n int) int {
	return n + n>>1 + 16
}

// ShouldConvertToSlowElements reports whether growing obj's fast elements
// to newCapacity would waste enough space that a dictionary is better.
func (h *Heap) ShouldConvertToSlowElements(obj Value, newCapacity int) bool {
	limit := h.cfg.MaxUncheckedOldFastElements
	if obj.Address().Space() == NewSpace {
		limit = h.cfg.MaxUncheckedFastElements
	}
	if newCapacity <= limit {
		return false
	}
	used := h.countFastElements(h.elementsOf(obj))
	dictionarySize := h.dictionaryCapacity(used) * dictEntrySize
	return h.cfg.SparseElementsRatio*dictionarySize <= newCapacity
}

// ShouldConvertToFastElements reports whether obj's dictionary elements
// are dense enough to go back to a FixedArray.
func (h *Heap) ShouldConvertToFastElements(obj Value) bool {
	_, s := h.expectJSObject(obj, "ShouldConvertToFastElements")
	if s.elementsKind != DictionaryElements {
		return false
	}
	d := h.elementDictionary(h.elementsOf(obj))
	if d.requiresSlowElements() || d.count() == 0 {
		return false
	}
	length := int64(d.maxNumberKey()) + 1
	if s.tag == ArrayType {
		length = max(length, int64(h.ArrayLength(obj)))
	}
	if length > int64(h.cfg.MaxFastElementsIndex) || 2*int64(d.capacity()*dictEntrySize) < length {
		return false
	}
	for e := range d.entries() {
		if d.detailsAt(e).Attributes() != None {
			return false
		}
	}
	return true
}

// NormalizeElements moves obj's elements into a dictionary.
func (h *Heap) NormalizeElements(obj Value) error {
	_, s := h.expectJSObject(obj, "NormalizeElements")
	if s.elementsKind == DictionaryElements {
		return nil
	}
	elements := h.elementsOf(obj)
	n := h.FixedArrayLength(elements)
	if s.tag == ArrayType {
		n = min(n, int(h.ArrayLength(obj)))
	}
	target, err := h.WithElementsKind(s, DictionaryElements)
	if err != nil {
		return err
	}
	d, err := h.newElementDictionary(h.countFastElements(elements), pretenureOf(obj))
	if err != nil {
		return err
	}
	for i := range n {
		v := h.FixedArrayGet(elements, i)
		if v == h.oddballs.TheHole {
			continue
		}
		d.updateMaxNumberKey(safecast.MustConv[uint32](i))
		d.insert(smi(i), v, NewPropertyDetails(None, Normal, 0))
	}

	h.setElements(obj, d.obj)
	h.setShape(obj, target)
	log.Debugf("normalized %d elements of %s", d.count(), obj)
	return nil
}

// MigrateToFastElements moves obj's dictionary elements back to a
// FixedArray. Callers check ShouldConvertToFastElements first.
func (h *Heap) MigrateToFastElements(obj Value) error {
	_, s := h.expectJSObject(obj, "MigrateToFastElements")
	if s.elementsKind == FastElements {
		return nil
	}
	d := h.elementDictionary(h.elementsOf(obj))
	capacity := int(d.maxNumberKey()) + 1
	if d.count() == 0 {
		capacity = 0
	}
	if s.tag == ArrayType {
		capacity = max(capacity, int(h.ArrayLength(obj)))
	}
	target, err := h.WithElementsKind(s, FastElements)
	if err != nil {
		return err
	}
	elements := h.emptyFixedArray
	if capacity > 0 {
		if elements, err = h.allocateFixedArray(capacity, pretenureOf(obj), h.oddballs.TheHole); err != nil {
			return err
		}
		for e := range d.entries() {
			index, _ := h.NumberToUint32(d.keyAt(e))
			h.FixedArraySet(elements, int(index), d.valueAt(e))
		}
	}

	h.setElements(obj, elements)
	h.setShape(obj, target)
	log.Debugf("migrated %d elements of %s to fast mode", d.count(), obj)
	return nil
}
