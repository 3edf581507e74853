package heap

import (
	"errors"
	"fmt"
)

// Verify walks every space and checks the representation invariants that
// can be checked without a collector: headers, slot contents, backing
// store kinds and field counts. It returns every violation found.
func (h *Heap) Verify() error {
	h.checkAlive()
	starts := make(map[Address]bool)
	for obj := range h.AllObjects() {
		starts[obj.Address()] = true
	}
	var errs []error
	report := func(obj Value, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", obj, fmt.Sprintf(format, args...)))
	}
	for obj := range h.AllObjects() {
		addr := obj.Address()
		w := h.Header(obj)
		if w.State() != HeaderShape {
			report(obj, "header in %s state", w.State())
			continue
		}
		if !starts[w.Shape().Address()] || w.Shape().Address().Space() != MapSpace {
			report(obj, "header does not reference a shape record")
			continue
		}
		s := h.ShapeOf(obj)
		h.IterateBody(obj, func(slot Address) {
			v := Value(h.mem.Word(slot))
			switch {
			case v.IsFailure():
				report(obj, "slot %s holds %s", slot, v)
			case v.IsHeapObject() && !starts[v.Address()]:
				report(obj, "slot %s references %s, not an object start", slot, v)
			}
		})
		if s.tag.IsJSObject() {
			h.verifyJSObject(obj, s, report)
		}
		if s.tag == ShapeType && addr.Space() != MapSpace {
			report(obj, "shape record outside map space")
		}
	}
	return errors.Join(errs...)
}

func (h *Heap) verifyJSObject(obj Value, s *Shape, report func(Value, string, ...any)) {
	props := h.propertiesOf(obj)
	switch {
	case s.dictionary && !h.Is(props, PropertyDictionaryType):
		report(obj, "dictionary-mode shape with %s properties", h.kindOf(props))
	case !s.dictionary && !h.Is(props, FixedArrayType):
		report(obj, "fast-mode shape with %s properties", h.kindOf(props))
	case !s.dictionary && h.FixedArrayLength(props) < s.OutOfLineFieldCount():
		report(obj, "properties array holds %d of %d out-of-line fields", h.FixedArrayLength(props), s.OutOfLineFieldCount())
	}
	elements := h.elementsOf(obj)
	switch s.elementsKind {
	case FastElements:
		if !h.Is(elements, FixedArrayType) {
			report(obj, "fast elements kind with %s elements", h.kindOf(elements))
		}
	case DictionaryElements:
		if !h.Is(elements, ElementDictionaryType) {
			report(obj, "dictionary elements kind with %s elements", h.kindOf(elements))
		}
	}
	if s.tag == ArrayType {
		if _, ok := h.NumberToUint32(Value(h.mem.Word(obj.Address().Add(ArrayLengthOffset)))); !ok {
			report(obj, "array length is not an index")
		}
	}
}

// kindOf names what v is without assuming it is a heap object.
func (h *Heap) kindOf(v Value) string {
	switch {
	case v.IsSmi():
		return "smi"
	case v.IsFailure():
		return "failure"
	default:
		return h.TypeOf(v).String()
	}
}
