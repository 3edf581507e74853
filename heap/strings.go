package heap

// StringHashOf computes the hash stored in every String: Jenkins
// one-at-a-time over the bytes. Zero is reserved, so it maps to 27.
func StringHashOf(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h += uint32(s[i])
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	if h == 0 {
		h = 27
	}
	return h
}

// NewString allocates an uninterned string.
func (h *Heap) NewString(s string, p Pretenure) (Value, error) {
	size := StringSizeFor(len(s))
	addr, err := h.allocate(h.internal[StringType], size, h.spaceFor(StringType, p))
	if err != nil {
		return 0, err
	}
	h.mem.SetWord(addr.Add(StringLengthOffset), uint64(smi(len(s))))
	h.mem.SetWord(addr.Add(StringHashOffset), uint64(StringHashOf(s)))
	h.writeBytes(addr.Add(StringHeaderSize), []byte(s))
	return FromAddress(addr), nil
}

// StringLength returns the byte length of a string.
func (h *Heap) StringLength(str Value) int {
	addr := h.expect(str, StringType, "StringLength")
	return h.rawSmi(addr.Add(StringLengthOffset))
}

// StringHash returns the stored hash of a string.
func (h *Heap) StringHash(str Value) uint32 {
	addr := h.expect(str, StringType, "StringHash")
	return uint32(h.mem.Word(addr.Add(StringHashOffset)))
}

// StringValue returns the contents of a string as a Go string.
func (h *Heap) StringValue(str Value) string {
	addr := h.expect(str, StringType, "StringValue")
	n := h.rawSmi(addr.Add(StringLengthOffset))
	return string(h.readBytes(addr.Add(StringHeaderSize), n))
}
