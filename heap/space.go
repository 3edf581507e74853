package heap

import "fmt"

// AllocationSpace identifies one region of the managed heap.
type AllocationSpace uint8

const (
	NewSpace         AllocationSpace = iota // young generation
	OldPointerSpace                         // tenured objects that may hold references
	OldDataSpace                            // tenured objects without references
	MapSpace                                // shape records
	LargeObjectSpace                        // objects above the large object threshold
	numSpaces
)

// AllSpaces lists every space in address order.
var AllSpaces = [...]AllocationSpace{NewSpace, OldPointerSpace, OldDataSpace, MapSpace, LargeObjectSpace}

// String returns the space name.
func (s AllocationSpace) String() string {
	switch s {
	case NewSpace:
		return "new"
	case OldPointerSpace:
		return "old-pointer"
	case OldDataSpace:
		return "old-data"
	case MapSpace:
		return "map"
	case LargeObjectSpace:
		return "large-object"
	default:
		return "unknown"
	}
}

// IsOld reports whether objects in s belong to the old generation.
func (s AllocationSpace) IsOld() bool {
	return s != NewSpace
}

// Pretenure selects the generation a new object is allocated in.
type Pretenure uint8

const (
	NotTenured Pretenure = iota
	Tenured
)

// Address is a byte address in the managed heap.
//
// The space lives in the high bits so that the owning region of any address
// is known without a lookup:
//
//	[ space : 8 ][ unused : 16 ][ byte offset : 40 ]
type Address uint64

const (
	spaceShift  = 40
	offsetMask  = uint64(1)<<spaceShift - 1
	alignMask   = PointerSize - 1
	nullAddress = Address(0)
)

func makeAddress(space AllocationSpace, offset uint64) Address {
	return Address(uint64(space)<<spaceShift | offset&offsetMask)
}

// Space returns the space the address belongs to.
func (a Address) Space() AllocationSpace {
	return AllocationSpace(uint64(a) >> spaceShift)
}

// Offset returns the byte offset within the space.
func (a Address) Offset() uint64 {
	return uint64(a) & offsetMask
}

// Add returns a + offset.
func (a Address) Add(offset int) Address {
	return Address(int64(a) + int64(offset))
}

// IsAligned reports whether a is word aligned.
func (a Address) IsAligned() bool {
	return uint64(a)&alignMask == 0
}

// String formats the address as space:offset.
func (a Address) String() string {
	return fmt.Sprintf("%s:%#x", a.Space(), a.Offset())
}
