package heap

import (
	"bytes"
	"strings"
	"testing"
)

// reachableGraph builds a prototype with a chain of depth objects hanging
// off it, plus one object nothing references.
func reachableGraph(t *testing.T, h *Heap, depth int) (proto, tail, garbage Value) {
	t.Helper()
	next := intern(t, h, "next")
	proto, _ = h.NewObject(h.Null())
	// A shape with proto as prototype makes it a root.
	if _, err := h.NewObject(proto); err != nil {
		t.Fatal(err)
	}
	prev := proto
	for range depth {
		obj, err := h.NewObject(h.Null())
		if err != nil {
			t.Fatal(err)
		}
		if err := h.SetProperty(prev, next, obj); err != nil {
			t.Fatal(err)
		}
		prev = obj
	}
	garbage, _ = h.NewObject(h.Null())
	return proto, prev, garbage
}

func TestMarkerReachability(t *testing.T) {
	h := newTestHeap(t)
	proto, tail, garbage := reachableGraph(t, h, 20)
	m := NewMarker(h, 0)
	m.MarkRoots()
	m.Drain()
	for _, v := range []Value{proto, tail, h.Undefined(), h.EmptyFixedArray()} {
		if !m.IsMarked(v) {
			t.Errorf("%s not marked", v)
		}
	}
	if m.IsMarked(garbage) {
		t.Error("unreferenced object marked")
	}
	if !m.IsMarked(FromInt(5)) {
		t.Error("smis must count as reachable")
	}
	if m.Overflowed() {
		t.Error("default stack overflowed on a small graph")
	}
	m.ClearMarks()
	if m.IsMarked(proto) || m.MarkedCount() != 0 {
		t.Error("ClearMarks left marks behind")
	}
	if err := h.Verify(); err != nil {
		t.Errorf("Verify after ClearMarks: %v", err)
	}
}

func TestMarkerStackOverflow(t *testing.T) {
	h := newTestHeap(t)
	_, tail, garbage := reachableGraph(t, h, 50)

	full := NewMarker(h, 0)
	full.MarkRoots()
	full.Drain()
	want := full.MarkedCount()
	full.ClearMarks()

	tiny := NewMarker(h, 2)
	tiny.MarkRoots()
	tiny.Drain()
	if !tiny.Overflowed() {
		t.Fatal("two-entry stack did not overflow")
	}
	if got := tiny.MarkedCount(); got != want {
		t.Errorf("overflowed marking reached %d objects, want %d", got, want)
	}
	if !tiny.IsMarked(tail) || tiny.IsMarked(garbage) {
		t.Error("overflow rescan computed the wrong reachable set")
	}
	tiny.ClearMarks()
	for obj := range h.AllObjects() {
		if h.Header(obj).State() != HeaderShape {
			t.Fatalf("%s left in %s state", obj, h.Header(obj).State())
		}
	}
}

func TestTraceChildrenStartsWithShape(t *testing.T) {
	h := newTestHeap(t)
	obj, _ := h.NewObject(h.Null())
	child, _ := h.NewObject(h.Null())
	h.SetProperty(obj, intern(t, h, "c"), child)
	var children []Value
	for c := range h.TraceChildren(obj) {
		children = append(children, c)
	}
	if len(children) == 0 || children[0] != h.ShapeOf(obj).Record() {
		t.Fatal("shape record not yielded first")
	}
	found := false
	for _, c := range children {
		found = found || c == child
	}
	if !found {
		t.Error("property value not traced")
	}
}

func TestWriteBarrierRecordsOldToYoung(t *testing.T) {
	h := newTestHeap(t)
	rs := NewRememberedSet()
	h.SetWriteBarrier(rs)
	name := intern(t, h, "young")

	s, _ := h.InitialShape(ObjectType, h.Null())
	old, err := h.NewObjectFromShape(s, Tenured)
	if err != nil {
		t.Fatal(err)
	}
	young, _ := h.NewObject(h.Null())
	other, _ := h.NewObject(h.Null())

	h.SetProperty(old, name, young)
	if rs.Len() != 1 {
		t.Fatalf("old->young store recorded %d slots, want 1", rs.Len())
	}
	h.SetProperty(old, name, young)
	if rs.Len() != 1 {
		t.Error("repeated store recorded twice")
	}
	h.SetProperty(other, name, young)
	h.SetProperty(old, name, FromInt(3))
	if rs.Len() != 1 {
		t.Errorf("young host or smi store recorded: %d slots", rs.Len())
	}
	slots := rs.Drain()
	if len(slots) != 1 || !strings.HasPrefix(slots[0].String(), old.Address().Space().String()) {
		t.Errorf("drained %v", slots)
	}
	if rs.Len() != 0 || rs.Contains(slots[0]) {
		t.Error("Drain left entries")
	}
}

func TestSkippedBarrierOnOldHostPanics(t *testing.T) {
	h := newTestHeap(t)
	s, _ := h.InitialShape(ObjectType, h.Null())
	old, _ := h.NewObjectFromShape(s, Tenured)
	expectInvariant(t, CodeBadAddress, func() {
		h.SetFieldAt(old, ObjectHeaderSize, FromInt(1), SkipWriteBarrier)
	})
}

func TestFieldBoundsChecked(t *testing.T) {
	h := newTestHeap(t)
	obj, _ := h.NewObject(h.Null())
	size := h.SizeOf(obj)
	expectInvariant(t, CodeFieldBounds, func() { h.FieldAt(obj, size) })
	expectInvariant(t, CodeFieldBounds, func() { h.FieldAt(obj, 0) })
}

func TestVerifyReportsCorruption(t *testing.T) {
	h := newTestHeap(t)
	obj, _ := h.NewObject(h.Null())
	h.SetProperty(obj, intern(t, h, "p"), FromInt(1))
	if err := h.Verify(); err != nil {
		t.Fatal(err)
	}
	h.mem.SetWord(obj.Address().Add(ObjectPropertiesOffset), uint64(FromInt(9)))
	err := h.Verify()
	if err == nil || !strings.Contains(err.Error(), "properties") {
		t.Errorf("Verify = %v, want a properties complaint", err)
	}
}

func TestPrint(t *testing.T) {
	h := newTestHeap(t)
	obj, _ := h.NewObject(h.Null())
	h.SetProperty(obj, intern(t, h, "answer"), FromInt(42))
	str, _ := h.NewString("hi", NotTenured)
	h.SetProperty(obj, intern(t, h, "greeting"), str)
	var buf bytes.Buffer
	h.Print(&buf, obj)
	out := buf.String()
	for _, want := range []string{"answer: 42", `greeting: "hi"`, "Object"} {
		if !strings.Contains(out, want) {
			t.Errorf("Print output lacks %q:\n%s", want, out)
		}
	}
	if got := h.Describe(h.Undefined()); got != "undefined" {
		t.Errorf("Describe(undefined) = %q", got)
	}
}

func TestStats(t *testing.T) {
	h := newTestHeap(t)
	before := h.Stats()
	h.NewObject(h.Null())
	after := h.Stats()
	if after.Objects[ObjectType] != before.Objects[ObjectType]+1 {
		t.Errorf("object count %d -> %d", before.Objects[ObjectType], after.Objects[ObjectType])
	}
	if after.Used[NewSpace] <= before.Used[NewSpace] {
		t.Error("new space usage did not grow")
	}
}
