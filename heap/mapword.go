package heap

// HeaderState names what the first word of a heap object currently holds.
type HeaderState uint8

const (
	HeaderShape      HeaderState = iota // reference to the object's shape record
	HeaderForwarding                    // forwarding address left by a moving collector
	HeaderMarked                        // shape reference with mark (and overflow) bits
)

// String returns the state name.
func (s HeaderState) String() string {
	switch s {
	case HeaderShape:
		return "shape"
	case HeaderForwarding:
		return "forwarding"
	case HeaderMarked:
		return "marked"
	default:
		return "unknown"
	}
}

// MapWord is the first word of a heap object.
//
// Shape records are word aligned, so the low three bits of the word are
// free to discriminate the three states:
//
//	xx1  shape reference (the ordinary heap object tag)
//	1x0  forwarding address
//	0o0  marked shape reference, o = overflow bit
//
// Only the collector moves a header out of the Shape state, and only while
// no mutator code can observe the object.
type MapWord uint64

const (
	markBit       uint64 = 1 << 0 // cleared when marked
	overflowBit   uint64 = 1 << 1
	forwardingBit uint64 = 1 << 2
	lowBitsMask   uint64 = 7
)

// MapWordFromShape creates a header holding a shape reference.
func MapWordFromShape(shapeRef Value) MapWord {
	if !shapeRef.IsHeapObject() {
		invariant(CodeHeaderState, "MapWordFromShape: %s is not a heap reference", shapeRef)
	}
	return MapWord(shapeRef)
}

// MapWordFromForwardingAddress creates a header holding a forwarding address.
func MapWordFromForwardingAddress(target Address) MapWord {
	if !target.IsAligned() {
		invariant(CodeHeaderState, "MapWordFromForwardingAddress: unaligned %s", target)
	}
	return MapWord(uint64(target) | forwardingBit)
}

// State decodes which variant the word holds.
func (w MapWord) State() HeaderState {
	switch {
	case uint64(w)&markBit != 0:
		return HeaderShape
	case uint64(w)&forwardingBit != 0:
		return HeaderForwarding
	default:
		return HeaderMarked
	}
}

// Shape returns the shape reference.
// Panics unless the word is in the Shape state.
func (w MapWord) Shape() Value {
	if w.State() != HeaderShape {
		invariant(CodeHeaderState, "MapWord.Shape: header is %s", w.State())
	}
	return Value(w)
}

// ShapeIgnoringMarks returns the shape reference of a header in the Shape
// or Marked state. Collectors use it to size objects mid-cycle.
func (w MapWord) ShapeIgnoringMarks() Value {
	switch w.State() {
	case HeaderShape:
		return Value(w)
	case HeaderMarked:
		return Value(uint64(w)&^lowBitsMask | heapObjectTag)
	default:
		invariant(CodeHeaderState, "MapWord.ShapeIgnoringMarks: header is forwarding")
		return 0
	}
}

// ForwardingAddress returns the forwarding target.
// Panics unless the word is in the Forwarding state.
func (w MapWord) ForwardingAddress() Address {
	if w.State() != HeaderForwarding {
		invariant(CodeHeaderState, "MapWord.ForwardingAddress: header is %s", w.State())
	}
	return Address(uint64(w) &^ lowBitsMask)
}

// IsMarked reports whether the mark bit is set.
func (w MapWord) IsMarked() bool {
	return w.State() == HeaderMarked
}

// IsOverflowed reports whether a marked object still has unvisited children.
func (w MapWord) IsOverflowed() bool {
	return w.State() == HeaderMarked && uint64(w)&overflowBit != 0
}

// WithMark returns the word in the Marked state.
func (w MapWord) WithMark() MapWord {
	if w.State() == HeaderForwarding {
		invariant(CodeHeaderState, "MapWord.WithMark: header is forwarding")
	}
	return MapWord(uint64(w) &^ markBit)
}

// WithoutMark returns the word back in the Shape state, clearing overflow.
func (w MapWord) WithoutMark() MapWord {
	if w.State() != HeaderMarked {
		return w
	}
	return MapWord(uint64(w)&^overflowBit | markBit)
}

// WithOverflow returns a marked word with the overflow bit set.
func (w MapWord) WithOverflow() MapWord {
	if w.State() != HeaderMarked {
		invariant(CodeHeaderState, "MapWord.WithOverflow: header is %s", w.State())
	}
	return MapWord(uint64(w) | overflowBit)
}

// WithoutOverflow returns a marked word with the overflow bit cleared.
func (w MapWord) WithoutOverflow() MapWord {
	return MapWord(uint64(w) &^ overflowBit)
}
