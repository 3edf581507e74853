package heap

// Marker is a mark-only tracer. It computes reachability for the weak
// handle protocol and for heap verification; it never frees or moves
// anything.
//
// Marking uses a bounded explicit stack. When the stack is full the object
// is marked and flagged as overflowed instead of pushed, and Drain rescans
// the heap for overflowed objects once the stack empties.
type Marker struct {
	h          *Heap
	stack      []Address
	limit      int
	overflowed bool
	marked     int
}

// DefaultMarkingStackLimit is the stack depth used by NewMarker when the
// limit is not positive.
const DefaultMarkingStackLimit = 4096

// NewMarker creates a marker for h.
func NewMarker(h *Heap, stackLimit int) *Marker {
	if stackLimit <= 0 {
		stackLimit = DefaultMarkingStackLimit
	}
	return &Marker{h: h, limit: stackLimit}
}

// MarkedCount returns the number of objects marked so far.
func (m *Marker) MarkedCount() int { return m.marked }

// Overflowed reports whether the stack overflowed during this cycle.
func (m *Marker) Overflowed() bool { return m.overflowed }

// MarkRoots marks every heap root.
func (m *Marker) MarkRoots() {
	m.h.IterateRoots(func(v *Value) { m.Mark(*v) })
}

// Mark marks v and schedules its children. Non-references are ignored.
func (m *Marker) Mark(v Value) {
	if !v.IsHeapObject() {
		return
	}
	addr := v.Address()
	w := MapWord(m.h.mem.Word(addr))
	if w.IsMarked() {
		return
	}
	w = w.WithMark()
	m.marked++
	if len(m.stack) >= m.limit {
		w = w.WithOverflow()
		m.overflowed = true
	} else {
		m.stack = append(m.stack, addr)
	}
	m.h.mem.SetWord(addr, uint64(w))
}

// IsMarked reports whether v is known reachable. Values that are not heap
// references are always considered reachable.
func (m *Marker) IsMarked(v Value) bool {
	if !v.IsHeapObject() {
		return true
	}
	return MapWord(m.h.mem.Word(v.Address())).IsMarked()
}

// Drain marks everything reachable from the objects marked so far.
func (m *Marker) Drain() {
	for {
		for len(m.stack) > 0 {
			addr := m.stack[len(m.stack)-1]
			m.stack = m.stack[:len(m.stack)-1]
			for child := range m.h.TraceChildren(FromAddress(addr)) {
				m.Mark(child)
			}
		}
		if !m.rescanOverflowed() {
			return
		}
	}
}

// rescanOverflowed pushes overflowed objects back on the stack. It
// reports whether it found any.
func (m *Marker) rescanOverflowed() bool {
	found := false
	for obj := range m.h.AllObjects() {
		if len(m.stack) >= m.limit {
			break
		}
		addr := obj.Address()
		w := MapWord(m.h.mem.Word(addr))
		if !w.IsOverflowed() {
			continue
		}
		m.h.mem.SetWord(addr, uint64(w.WithoutOverflow()))
		m.stack = append(m.stack, addr)
		found = true
	}
	return found
}

// ClearMarks returns every header to the Shape state.
func (m *Marker) ClearMarks() {
	for obj := range m.h.AllObjects() {
		addr := obj.Address()
		w := MapWord(m.h.mem.Word(addr))
		if w.IsMarked() {
			m.h.mem.SetWord(addr, uint64(w.WithoutMark()))
		}
	}
	m.stack = m.stack[:0]
	m.overflowed = false
	m.marked = 0
}
