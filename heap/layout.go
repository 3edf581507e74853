package heap

// Byte offsets of object fields. Every object starts with its MapWord.
const (
	HeaderOffset = 0
	HeaderSize   = PointerSize

	// HeapNumber
	HeapNumberValueOffset = HeaderSize
	HeapNumberSize        = HeapNumberValueOffset + PointerSize

	// String: bytes are packed eight per word, little endian.
	StringLengthOffset = HeaderSize
	StringHashOffset   = StringLengthOffset + PointerSize
	StringHeaderSize   = StringHashOffset + PointerSize

	// ByteArray
	ByteArrayLengthOffset = HeaderSize
	ByteArrayHeaderSize   = ByteArrayLengthOffset + PointerSize

	// Oddball
	OddballKindOffset = HeaderSize
	OddballSize       = OddballKindOffset + PointerSize

	// FixedArray, and the dictionaries laid out on top of it.
	FixedArrayLengthOffset = HeaderSize
	FixedArrayHeaderSize   = FixedArrayLengthOffset + PointerSize

	// AccessorPair
	AccessorPairGetterOffset = HeaderSize
	AccessorPairSetterOffset = AccessorPairGetterOffset + PointerSize
	AccessorPairSize         = AccessorPairSetterOffset + PointerSize

	// Shape record, allocated in MapSpace. The header points at the meta
	// shape; the Go-side Shape is found through the id.
	ShapePrototypeOffset = HeaderSize
	ShapeIDOffset        = ShapePrototypeOffset + PointerSize
	ShapeRecordSize      = ShapeIDOffset + PointerSize

	// Object
	ObjectPropertiesOffset = HeaderSize
	ObjectElementsOffset   = ObjectPropertiesOffset + PointerSize
	ObjectHeaderSize       = ObjectElementsOffset + PointerSize

	// Array: an Object with a length field before the in-object slots.
	ArrayLengthOffset = ObjectHeaderSize
	ArrayHeaderSize   = ArrayLengthOffset + PointerSize
)

// VariableSize marks shapes whose instances carry their own length.
const VariableSize = 0

// FixedArrayElementOffset returns the byte offset of element i.
func FixedArrayElementOffset(i int) int {
	return FixedArrayHeaderSize + i*PointerSize
}

// FixedArraySizeFor returns the byte size of a fixed array of n elements.
func FixedArraySizeFor(n int) int {
	return FixedArrayHeaderSize + n*PointerSize
}

func roundUpToWord(n int) int {
	return (n + alignMask) &^ alignMask
}

// StringSizeFor returns the byte size of a string of n bytes.
func StringSizeFor(n int) int {
	return StringHeaderSize + roundUpToWord(n)
}

// ByteArraySizeFor returns the byte size of a byte array of n bytes.
func ByteArraySizeFor(n int) int {
	return ByteArrayHeaderSize + roundUpToWord(n)
}
