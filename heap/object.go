package heap

// ---------------------------------------------------------------------------
// Field access
// ---------------------------------------------------------------------------

// FieldAt reads the tagged field at a byte offset of obj.
func (h *Heap) FieldAt(obj Value, offset int) Value {
	addr := obj.Address()
	h.checkField(obj, offset, "FieldAt")
	return Value(h.mem.Word(addr.Add(offset)))
}

// SetFieldAt stores value into the field at a byte offset of obj. With
// UpdateWriteBarrier, an old host gaining a young reference is reported to
// the write barrier.
func (h *Heap) SetFieldAt(obj Value, offset int, value Value, mode WriteMode) {
	addr := obj.Address()
	h.checkField(obj, offset, "SetFieldAt")
	h.check(!value.IsFailure(), CodeFailureDereference, "SetFieldAt: storing %s", value)
	slot := addr.Add(offset)
	h.mem.SetWord(slot, uint64(value))
	if mode == SkipWriteBarrier {
		h.check(addr.Space() == NewSpace, CodeBadAddress, "SetFieldAt: skipped barrier on old host %s", addr)
		return
	}
	if addr.Space().IsOld() && value.IsHeapObject() && value.Address().Space() == NewSpace {
		h.barrier.RecordWrite(addr, slot, value)
	}
}

func (h *Heap) checkField(obj Value, offset int, op string) {
	if !h.cfg.DebugChecks {
		return
	}
	if offset < HeaderSize || offset%PointerSize != 0 {
		invariant(CodeFieldBounds, "%s: bad offset %d", op, offset)
	}
	if size := h.SizeOf(obj); offset >= size {
		invariant(CodeFieldBounds, "%s: offset %d beyond object size %d", op, offset, size)
	}
}

// writeMode picks the cheapest safe mode for a host.
func writeMode(host Address) WriteMode {
	if host.Space() == NewSpace {
		return SkipWriteBarrier
	}
	return UpdateWriteBarrier
}

// ---------------------------------------------------------------------------
// FixedArray
// ---------------------------------------------------------------------------

// allocateFixedArray allocates n elements set to fill.
func (h *Heap) allocateFixedArray(n int, p Pretenure, fill Value) (Value, error) {
	return h.allocateArrayLike(h.internal[FixedArrayType], n, p, fill)
}

func (h *Heap) allocateArrayLike(s *Shape, n int, p Pretenure, fill Value) (Value, error) {
	size := FixedArraySizeFor(n)
	addr, err := h.allocate(s, size, h.spaceFor(s.tag, p))
	if err != nil {
		return 0, err
	}
	h.mem.SetWord(addr.Add(FixedArrayLengthOffset), uint64(smi(n)))
	h.fill(addr, FixedArrayHeaderSize, size, fill)
	return FromAddress(addr), nil
}

// NewFixedArray allocates a fixed array of n undefined elements.
func (h *Heap) NewFixedArray(n int, p Pretenure) (Value, error) {
	if n == 0 {
		return h.emptyFixedArray, nil
	}
	return h.allocateFixedArray(n, p, h.oddballs.Undefined)
}

// FixedArrayLength returns the element count of a fixed array or
// dictionary.
func (h *Heap) FixedArrayLength(arr Value) int {
	return h.rawSmi(arr.Address().Add(FixedArrayLengthOffset))
}

// FixedArrayGet returns element i.
func (h *Heap) FixedArrayGet(arr Value, i int) Value {
	if i < 0 || i >= h.FixedArrayLength(arr) {
		invariant(CodeFieldBounds, "FixedArrayGet: index %d out of range [0, %d)", i, h.FixedArrayLength(arr))
	}
	return Value(h.mem.Word(arr.Address().Add(FixedArrayElementOffset(i))))
}

// FixedArraySet stores element i.
func (h *Heap) FixedArraySet(arr Value, i int, v Value) {
	if i < 0 || i >= h.FixedArrayLength(arr) {
		invariant(CodeFieldBounds, "FixedArraySet: index %d out of range [0, %d)", i, h.FixedArrayLength(arr))
	}
	h.SetFieldAt(arr, FixedArrayElementOffset(i), v, writeMode(arr.Address()))
}

// copyFixedArray allocates a fixed array of n elements holding the first
// min(n, len) elements of src, the rest set to fill.
func (h *Heap) copyFixedArray(src Value, n int, p Pretenure, fill Value) (Value, error) {
	dst, err := h.allocateFixedArray(n, p, fill)
	if err != nil {
		return 0, err
	}
	m := min(n, h.FixedArrayLength(src))
	mode := writeMode(dst.Address())
	for i := range m {
		h.SetFieldAt(dst, FixedArrayElementOffset(i), h.FixedArrayGet(src, i), mode)
	}
	return dst, nil
}

// ---------------------------------------------------------------------------
// AccessorPair
// ---------------------------------------------------------------------------

// NewAccessorPair allocates a getter/setter pair. Either may be undefined.
func (h *Heap) NewAccessorPair(getter, setter Value, p Pretenure) (Value, error) {
	addr, err := h.allocate(h.internal[AccessorPairType], AccessorPairSize, h.spaceFor(AccessorPairType, p))
	if err != nil {
		return 0, err
	}
	obj := FromAddress(addr)
	mode := writeMode(addr)
	h.SetFieldAt(obj, AccessorPairGetterOffset, getter, mode)
	h.SetFieldAt(obj, AccessorPairSetterOffset, setter, mode)
	return obj, nil
}

// AccessorPairGetter returns the getter of pair.
func (h *Heap) AccessorPairGetter(pair Value) Value {
	h.expect(pair, AccessorPairType, "AccessorPairGetter")
	return h.FieldAt(pair, AccessorPairGetterOffset)
}

// AccessorPairSetter returns the setter of pair.
func (h *Heap) AccessorPairSetter(pair Value) Value {
	h.expect(pair, AccessorPairType, "AccessorPairSetter")
	return h.FieldAt(pair, AccessorPairSetterOffset)
}

// ---------------------------------------------------------------------------
// ByteArray
// ---------------------------------------------------------------------------

// NewByteArray allocates a byte array holding a copy of data.
func (h *Heap) NewByteArray(data []byte, p Pretenure) (Value, error) {
	size := ByteArraySizeFor(len(data))
	addr, err := h.allocate(h.internal[ByteArrayType], size, h.spaceFor(ByteArrayType, p))
	if err != nil {
		return 0, err
	}
	h.mem.SetWord(addr.Add(ByteArrayLengthOffset), uint64(smi(len(data))))
	h.writeBytes(addr.Add(ByteArrayHeaderSize), data)
	return FromAddress(addr), nil
}

// ByteArrayBytes returns a copy of the contents of a byte array.
func (h *Heap) ByteArrayBytes(arr Value) []byte {
	addr := h.expect(arr, ByteArrayType, "ByteArrayBytes")
	n := h.rawSmi(addr.Add(ByteArrayLengthOffset))
	return h.readBytes(addr.Add(ByteArrayHeaderSize), n)
}

// writeBytes packs data eight bytes per word, little endian.
func (h *Heap) writeBytes(start Address, data []byte) {
	for i := 0; i < len(data); i += PointerSize {
		var w uint64
		for j := 0; j < PointerSize && i+j < len(data); j++ {
			w |= uint64(data[i+j]) << (8 * j)
		}
		h.mem.SetWord(start.Add(i), w)
	}
}

func (h *Heap) readBytes(start Address, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i += PointerSize {
		w := h.mem.Word(start.Add(i))
		for j := 0; j < PointerSize && i+j < n; j++ {
			out[i+j] = byte(w >> (8 * j))
		}
	}
	return out
}
