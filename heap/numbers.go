package heap

import (
	"math"

	"fortio.org/safecast"
)

// NewHeapNumber allocates a boxed float64.
func (h *Heap) NewHeapNumber(f float64, p Pretenure) (Value, error) {
	addr, err := h.allocate(h.internal[HeapNumberType], HeapNumberSize, h.spaceFor(HeapNumberType, p))
	if err != nil {
		return 0, err
	}
	h.mem.SetWord(addr.Add(HeapNumberValueOffset), math.Float64bits(f))
	return FromAddress(addr), nil
}

// HeapNumberValue returns the float64 held by a HeapNumber.
func (h *Heap) HeapNumberValue(num Value) float64 {
	addr := h.expect(num, HeapNumberType, "HeapNumberValue")
	return math.Float64frombits(h.mem.Word(addr.Add(HeapNumberValueOffset)))
}

// NumberFromInt returns n inline if it fits the heap's Smi range and a
// HeapNumber box otherwise.
func (h *Heap) NumberFromInt(n int64) (Value, error) {
	if v := h.smiRange.FromInt(n); !v.IsFailure() {
		return v, nil
	}
	return h.NewHeapNumber(float64(n), NotTenured)
}

// NumberFromUint32 is NumberFromInt for unsigned 32-bit values.
func (h *Heap) NumberFromUint32(n uint32) (Value, error) {
	return h.NumberFromInt(int64(n))
}

// NumberFromFloat returns f inline when it is an integer in Smi range and
// not negative zero.
func (h *Heap) NumberFromFloat(f float64) (Value, error) {
	if f == math.Trunc(f) && !(f == 0 && math.Signbit(f)) && f >= -(1<<62) && f < 1<<62 {
		if n := int64(f); h.smiRange.IsValid(n) {
			return h.smiRange.FromInt(n), nil
		}
	}
	return h.NewHeapNumber(f, NotTenured)
}

// IsNumber reports whether v is a Smi or a HeapNumber.
func (h *Heap) IsNumber(v Value) bool {
	return v.IsSmi() || h.Is(v, HeapNumberType)
}

// NumberValue returns the numeric value of a Smi or HeapNumber.
func (h *Heap) NumberValue(v Value) (float64, bool) {
	switch {
	case v.IsSmi():
		return float64(v.SmiValue()), true
	case h.Is(v, HeapNumberType):
		return h.HeapNumberValue(v), true
	default:
		return 0, false
	}
}

// SmiAdd adds two Smis. A sum outside the Smi range is boxed, never
// wrapped.
func (h *Heap) SmiAdd(a, b Value) (Value, error) {
	return h.NumberFromInt(a.SmiValue() + b.SmiValue())
}

// NumberToUint32 converts v to an array index if it is a Smi or
// HeapNumber holding an integer in [0, 2^32-1].
func (h *Heap) NumberToUint32(v Value) (uint32, bool) {
	if v.IsSmi() {
		n, err := safecast.Conv[uint32](v.SmiValue())
		return n, err == nil
	}
	f, ok := h.NumberValue(v)
	if !ok {
		return 0, false
	}
	n, err := safecast.Convert[uint32](f)
	return n, err == nil
}
