package heap

import "iter"

// BodyRanges returns the byte ranges of obj that hold tagged values. The
// header is not included.
func (h *Heap) BodyRanges(obj Value) []SlotRange {
	addr := obj.Address()
	s := h.shapeIgnoringMarks(addr)
	return typeInfos[s.tag].body(addr, h.sizeOf(addr, s))
}

// IterateBody calls visit with the address of every tagged slot of obj.
func (h *Heap) IterateBody(obj Value, visit func(slot Address)) {
	addr := obj.Address()
	for _, r := range h.BodyRanges(obj) {
		for off := r.Start; off < r.End; off += PointerSize {
			visit(addr.Add(off))
		}
	}
}

// TraceChildren yields every heap object obj references, starting with its
// shape record. It works on marked objects.
func (h *Heap) TraceChildren(obj Value) iter.Seq[Value] {
	return func(yield func(Value) bool) {
		addr := obj.Address()
		if !yield(MapWord(h.mem.Word(addr)).ShapeIgnoringMarks()) {
			return
		}
		for _, r := range h.BodyRanges(obj) {
			for off := r.Start; off < r.End; off += PointerSize {
				v := Value(h.mem.Word(addr.Add(off)))
				if v.IsHeapObject() && !yield(v) {
					return
				}
			}
		}
	}
}
