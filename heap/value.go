package heap

import "fmt"

// Value is a tagged machine word.
//
// Every runtime value is exactly one of three disjoint representations,
// selected by the low bits of the word:
//   - Smi (inline integer): low bit 0, signed payload in the upper 63 bits
//   - Heap reference:       low bits 01, address = word - 1
//   - Failure:              low bits 11, see Failure
//
// Classification never touches memory. Reading the payload of the wrong
// representation panics with an *InvariantError.
type Value uint64

// Tagging constants
const (
	smiTag        uint64 = 0
	smiTagMask    uint64 = 1
	smiTagSize           = 1
	heapObjectTag uint64 = 1
	failureTag    uint64 = 3
	tagMask       uint64 = 3

	// PointerSize is the size in bytes of one heap word.
	PointerSize = 8
)

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// IsSmi returns true if v is an inline integer.
func (v Value) IsSmi() bool {
	return uint64(v)&smiTagMask == smiTag
}

// IsHeapObject returns true if v is a reference to a heap object.
func (v Value) IsHeapObject() bool {
	return uint64(v)&tagMask == heapObjectTag
}

// IsFailure returns true if v is a failure signal.
func (v Value) IsFailure() bool {
	return uint64(v)&tagMask == failureTag
}

// ---------------------------------------------------------------------------
// Smi operations
// ---------------------------------------------------------------------------

// SmiValue returns the integer payload of v.
// Panics if v is not a Smi.
func (v Value) SmiValue() int64 {
	if !v.IsSmi() {
		invariant(CodeNotSmi, "Value.SmiValue: %s is not a small integer", v)
	}
	return int64(v) >> smiTagSize
}

// smi encodes n without a range check. Only used for lengths, counts and
// indices that are bounded well below any configured Smi width.
func smi(n int) Value {
	return Value(uint64(int64(n)) << smiTagSize)
}

// smiInt returns the payload of v as an int.
func (v Value) smiInt() int {
	return int(v.SmiValue())
}

// MaxSmiBits is the widest inline integer a 64-bit word can hold after the
// tag bit is shifted out.
const MaxSmiBits = 63

// SmiRange describes the inline integer width of a heap.
type SmiRange struct {
	Bits uint
}

// DefaultSmiRange is a 31-bit inline integer.
var DefaultSmiRange = SmiRange{Bits: 31}

// Max returns the largest representable inline integer.
func (r SmiRange) Max() int64 {
	return int64(1)<<(r.Bits-1) - 1
}

// Min returns the smallest representable inline integer.
func (r SmiRange) Min() int64 {
	return -(int64(1) << (r.Bits - 1))
}

// IsValid returns true if n fits the inline form.
func (r SmiRange) IsValid(n int64) bool {
	return n >= r.Min() && n <= r.Max()
}

// FromInt encodes n as an inline integer. If n does not fit, the result is
// a ValueTooLarge failure and the caller must box the number instead.
func (r SmiRange) FromInt(n int64) Value {
	if !r.IsValid(n) {
		return NewFailure(ValueTooLarge, NewSpace).Value()
	}
	return Value(uint64(n) << smiTagSize)
}

// FromInt encodes n using DefaultSmiRange.
func FromInt(n int64) Value {
	return DefaultSmiRange.FromInt(n)
}

// ---------------------------------------------------------------------------
// Heap references
// ---------------------------------------------------------------------------

// Address returns the address of the referenced heap object.
// Panics if v is not a heap reference; dereferencing a failure is always
// reported as such.
func (v Value) Address() Address {
	if !v.IsHeapObject() {
		if v.IsFailure() {
			invariant(CodeFailureDereference, "Value.Address: dereferencing %s", v)
		}
		invariant(CodeNotHeapObject, "Value.Address: %s is not a heap reference", v)
	}
	return Address(uint64(v) - heapObjectTag)
}

// FromAddress creates a heap reference to the object at a.
func FromAddress(a Address) Value {
	return Value(uint64(a) | heapObjectTag)
}

// ---------------------------------------------------------------------------
// Debugging
// ---------------------------------------------------------------------------

// String formats v without dereferencing it.
func (v Value) String() string {
	switch {
	case v.IsSmi():
		return fmt.Sprintf("smi(%d)", int64(v)>>smiTagSize)
	case v.IsHeapObject():
		return fmt.Sprintf("ref(%s)", Address(uint64(v)-heapObjectTag))
	default:
		return Failure(v).String()
	}
}
