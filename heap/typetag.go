package heap

import "io"

// TypeTag is the closed set of heap object kinds. The tag lives in the
// shape, never in the object.
type TypeTag uint8

const (
	HeapNumberType TypeTag = iota
	StringType
	ByteArrayType
	OddballType
	FixedArrayType
	PropertyDictionaryType
	ElementDictionaryType
	AccessorPairType
	ShapeType
	ObjectType
	ArrayType
	numTypeTags
)

// String returns the tag name.
func (t TypeTag) String() string {
	if t < numTypeTags {
		return typeInfos[t].name
	}
	return "unknown"
}

// IsJSObject reports whether instances carry named properties and elements.
func (t TypeTag) IsJSObject() bool {
	return t == ObjectType || t == ArrayType
}

// SlotRange is a half-open range of byte offsets holding tagged values.
type SlotRange struct {
	Start, End int
}

// typeInfo is the capability record of one type tag.
type typeInfo struct {
	name string
	// pointers is false for kinds whose body holds no references; they
	// are allocated in OldDataSpace when tenured.
	pointers bool
	// size returns the byte size of an instance of a VariableSize shape.
	size func(h *Heap, obj Address) int
	// body returns the tagged slot ranges of an instance of the given size.
	body func(obj Address, size int) []SlotRange
	print func(h *Heap, w io.Writer, obj Address)
}

var typeInfos [numTypeTags]typeInfo

func noBody(Address, int) []SlotRange { return nil }

func tailBody(start int) func(Address, int) []SlotRange {
	return func(_ Address, size int) []SlotRange {
		if size <= start {
			return nil
		}
		return []SlotRange{{Start: start, End: size}}
	}
}

func fixedBody(start, end int) func(Address, int) []SlotRange {
	return func(Address, int) []SlotRange {
		return []SlotRange{{Start: start, End: end}}
	}
}

func fixedArraySize(h *Heap, obj Address) int {
	return FixedArraySizeFor(h.rawSmi(obj.Add(FixedArrayLengthOffset)))
}

// Populated in init: the print functions reach back into the table.
func init() {
	typeInfos = [numTypeTags]typeInfo{
		HeapNumberType: {
			name:  "HeapNumber",
			body:  noBody,
			print: printHeapNumber,
		},
		StringType: {
			name: "String",
			size: func(h *Heap, obj Address) int {
				return StringSizeFor(h.rawSmi(obj.Add(StringLengthOffset)))
			},
			body:  noBody,
			print: printString,
		},
		ByteArrayType: {
			name: "ByteArray",
			size: func(h *Heap, obj Address) int {
				return ByteArraySizeFor(h.rawSmi(obj.Add(ByteArrayLengthOffset)))
			},
			body:  noBody,
			print: printByteArray,
		},
		OddballType: {
			name:  "Oddball",
			body:  noBody,
			print: printOddball,
		},
		FixedArrayType: {
			name:     "FixedArray",
			pointers: true,
			size:     fixedArraySize,
			body:     tailBody(FixedArrayHeaderSize),
			print:    printFixedArray,
		},
		PropertyDictionaryType: {
			name:     "PropertyDictionary",
			pointers: true,
			size:     fixedArraySize,
			body:     tailBody(FixedArrayHeaderSize),
			print:    printDictionary,
		},
		ElementDictionaryType: {
			name:     "ElementDictionary",
			pointers: true,
			size:     fixedArraySize,
			body:     tailBody(FixedArrayHeaderSize),
			print:    printDictionary,
		},
		AccessorPairType: {
			name:     "AccessorPair",
			pointers: true,
			body:     fixedBody(AccessorPairGetterOffset, AccessorPairSize),
			print:    printAccessorPair,
		},
		ShapeType: {
			name:     "Shape",
			pointers: true,
			body:     fixedBody(ShapePrototypeOffset, ShapeIDOffset),
			print:    printShapeRecord,
		},
		ObjectType: {
			name:     "Object",
			pointers: true,
			body:     tailBody(ObjectPropertiesOffset),
			print:    printObject,
		},
		ArrayType: {
			name:     "Array",
			pointers: true,
			body:     tailBody(ObjectPropertiesOffset),
			print:    printObject,
		},
	}
}
