package heap

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Print writes a one-level description of v to w.
func (h *Heap) Print(w io.Writer, v Value) {
	switch {
	case v.IsSmi():
		fmt.Fprintf(w, "%d", v.SmiValue())
	case v.IsFailure():
		fmt.Fprint(w, v.ToFailure())
	default:
		addr := v.Address()
		s := h.shapeIgnoringMarks(addr)
		typeInfos[s.tag].print(h, w, addr)
	}
}

// Describe returns Print's output as a string.
func (h *Heap) Describe(v Value) string {
	var b strings.Builder
	h.Print(&b, v)
	return b.String()
}

// short describes v without descending into objects.
func (h *Heap) short(v Value) string {
	if !v.IsHeapObject() {
		return h.Describe(v)
	}
	s := h.shapeIgnoringMarks(v.Address())
	switch s.tag {
	case StringType, HeapNumberType, OddballType:
		return h.Describe(v)
	default:
		return fmt.Sprintf("<%s %s>", s.tag, v.Address())
	}
}

func printHeapNumber(h *Heap, w io.Writer, obj Address) {
	fmt.Fprint(w, strconv.FormatFloat(h.HeapNumberValue(FromAddress(obj)), 'g', -1, 64))
}

func printString(h *Heap, w io.Writer, obj Address) {
	fmt.Fprint(w, strconv.Quote(h.StringValue(FromAddress(obj))))
}

func printByteArray(h *Heap, w io.Writer, obj Address) {
	fmt.Fprintf(w, "<ByteArray[%d]>", h.rawSmi(obj.Add(ByteArrayLengthOffset)))
}

func printOddball(h *Heap, w io.Writer, obj Address) {
	fmt.Fprint(w, h.OddballKindOf(FromAddress(obj)))
}

func printFixedArray(h *Heap, w io.Writer, obj Address) {
	arr := FromAddress(obj)
	n := h.FixedArrayLength(arr)
	fmt.Fprintf(w, "<FixedArray[%d]>", n)
	for i := range n {
		fmt.Fprintf(w, "\n  %d: %s", i, h.short(h.FixedArrayGet(arr, i)))
	}
}

func printDictionary(h *Heap, w io.Writer, obj Address) {
	d := h.dictionaryView(FromAddress(obj))
	fmt.Fprintf(w, "<%s %d/%d>", d.kind.tag, d.count(), d.capacity())
	for e := range d.entries() {
		fmt.Fprintf(w, "\n  %s: %s (%s)", h.short(d.keyAt(e)), h.short(d.valueAt(e)), d.detailsAt(e))
	}
}

func printAccessorPair(h *Heap, w io.Writer, obj Address) {
	pair := FromAddress(obj)
	fmt.Fprintf(w, "<AccessorPair get=%s set=%s>",
		h.short(h.AccessorPairGetter(pair)), h.short(h.AccessorPairSetter(pair)))
}

func printShapeRecord(h *Heap, w io.Writer, obj Address) {
	s := h.shapeFromRecord(FromAddress(obj))
	fmt.Fprint(w, s)
	if s.descriptors != nil {
		for _, d := range s.descriptors.Ordered() {
			fmt.Fprintf(w, "\n  %s: %s", h.StringValue(d.Name), d.Details)
			if d.Details.Kind().IsField() {
				fmt.Fprintf(w, " field %d", d.Field)
			}
		}
	}
}

func printObject(h *Heap, w io.Writer, obj Address) {
	v := FromAddress(obj)
	s := h.shapeIgnoringMarks(obj)
	fmt.Fprintf(w, "<%s %s shape#%d>", s.tag, obj, s.id)
	if s.tag == ArrayType {
		fmt.Fprintf(w, " length=%d", h.ArrayLength(v))
	}
	for _, name := range h.OwnPropertyNames(v, true) {
		value, _ := h.GetOwnProperty(v, name)
		fmt.Fprintf(w, "\n  %s: %s", h.StringValue(name), h.short(value))
	}
}
