package heap

import (
	"math"
	"testing"
)

func newTestArray(t *testing.T, h *Heap, capacity int) Value {
	t.Helper()
	arr, err := h.NewArray(h.Null(), capacity)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	return arr
}

func TestFastElementStores(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 4)
	for i := range uint32(10) {
		if err := h.SetElement(arr, i, FromInt(int64(i*i))); err != nil {
			t.Fatal(err)
		}
	}
	if !h.HasFastElements(arr) {
		t.Fatal("dense stores left fast mode")
	}
	if got := h.ArrayLength(arr); got != 10 {
		t.Errorf("length = %d, want 10", got)
	}
	if capacity := h.FixedArrayLength(h.Elements(arr)); capacity != NewElementsCapacity(5) {
		t.Errorf("capacity = %d, want %d", capacity, NewElementsCapacity(5))
	}
	for i := range uint32(10) {
		if v, ok := h.GetElement(arr, i); !ok || v != FromInt(int64(i*i)) {
			t.Errorf("arr[%d] = %s, %v", i, v, ok)
		}
	}
	if _, ok := h.GetElement(arr, 15); ok {
		t.Error("hole inside capacity reported present")
	}
	if _, ok := h.GetElement(arr, 1000); ok {
		t.Error("index beyond capacity reported present")
	}
	if err := h.Verify(); err != nil {
		t.Error(err)
	}
}

func TestLargeGapNormalizes(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 0)
	h.SetElement(arr, 0, FromInt(1))
	index := uint32(h.FixedArrayLength(h.Elements(arr))) + h.Config().MaxElementGap
	if err := h.SetElement(arr, index, FromInt(2)); err != nil {
		t.Fatal(err)
	}
	if h.HasFastElements(arr) {
		t.Fatal("store past the gap limit stayed fast")
	}
	if h.ShapeOf(arr).ElementsKind() != DictionaryElements {
		t.Error("shape does not record dictionary elements")
	}
	if v, _ := h.GetElement(arr, 0); v != FromInt(1) {
		t.Error("existing element lost by normalization")
	}
	if v, _ := h.GetElement(arr, index); v != FromInt(2) {
		t.Error("gap store lost")
	}
	if got := h.ArrayLength(arr); got != index+1 {
		t.Errorf("length = %d, want %d", got, index+1)
	}
}

func TestSparseGrowthNormalizes(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 0)
	for _, index := range []uint32{0, 1000, 2000, 3000} {
		if err := h.SetElement(arr, index, FromInt(int64(index))); err != nil {
			t.Fatal(err)
		}
		if !h.HasFastElements(arr) {
			t.Fatalf("index %d normalized below the unchecked limit", index)
		}
	}
	if err := h.SetElement(arr, 4000, FromInt(4000)); err != nil {
		t.Fatal(err)
	}
	if h.HasFastElements(arr) {
		t.Fatal("sparse growth past the unchecked limit stayed fast")
	}
	if got := h.ElementCount(arr); got != 5 {
		t.Errorf("ElementCount = %d, want 5", got)
	}
}

func TestShouldConvertToSlowElementsLimits(t *testing.T) {
	h := newTestHeap(t)
	young := newTestArray(t, h, 0)
	h.SetElement(young, 0, FromInt(1))
	if h.ShouldConvertToSlowElements(young, h.Config().MaxUncheckedFastElements) {
		t.Error("young array converted at the unchecked limit")
	}
	if !h.ShouldConvertToSlowElements(young, h.Config().MaxUncheckedFastElements+1) {
		t.Error("nearly empty young array kept growing past the limit")
	}
	s, _ := h.InitialShape(ObjectType, h.Null())
	old, err := h.NewObjectFromShape(s, Tenured)
	if err != nil {
		t.Fatal(err)
	}
	if !h.ShouldConvertToSlowElements(old, h.Config().MaxUncheckedOldFastElements+1) {
		t.Error("old object uses the young limit")
	}
}

func TestDictionaryElementsReturnToFast(t *testing.T) {
	h := newTestHeap(t)
	obj, _ := h.NewObject(h.Null())
	if err := h.SetElement(obj, 1500, FromInt(-1)); err != nil {
		t.Fatal(err)
	}
	if h.HasFastElements(obj) {
		t.Fatal("gap store stayed fast")
	}
	var filled uint32
	for ; filled < 400 && !h.HasFastElements(obj); filled++ {
		if err := h.SetElement(obj, filled, FromInt(int64(filled))); err != nil {
			t.Fatal(err)
		}
	}
	if !h.HasFastElements(obj) {
		t.Fatal("dense dictionary never went back to fast elements")
	}
	for i := range filled {
		if v, _ := h.GetElement(obj, i); v != FromInt(int64(i)) {
			t.Fatalf("obj[%d] = %s after migration", i, v)
		}
	}
	if v, _ := h.GetElement(obj, 1500); v != FromInt(-1) {
		t.Error("high element lost by migration")
	}
}

func TestRequiresSlowElementsIsSticky(t *testing.T) {
	h := newTestHeap(t)
	obj, _ := h.NewObject(h.Null())
	huge := uint32(RequiresSlowElementsLimit + 1)
	if err := h.SetElement(obj, huge, FromInt(1)); err != nil {
		t.Fatal(err)
	}
	if _, slow := h.ElementDictionaryMaxKey(h.Elements(obj)); !slow {
		t.Fatal("flag not set")
	}
	for i := range uint32(300) {
		h.SetElement(obj, i, FromInt(int64(i)))
	}
	if h.HasFastElements(obj) || h.ShouldConvertToFastElements(obj) {
		t.Error("requires-slow dictionary went back to fast elements")
	}
}

func TestSetArrayLengthTruncates(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 0)
	for i := range uint32(10) {
		h.SetElement(arr, i, FromInt(int64(i)))
	}
	if err := h.SetArrayLength(arr, 3); err != nil {
		t.Fatal(err)
	}
	if got := h.ArrayLength(arr); got != 3 {
		t.Errorf("length = %d, want 3", got)
	}
	if _, ok := h.GetElement(arr, 5); ok {
		t.Error("element above the new length survived")
	}
	if got := h.ElementCount(arr); got != 3 {
		t.Errorf("ElementCount = %d, want 3", got)
	}
	if err := h.SetArrayLength(arr, 0); err != nil {
		t.Fatal(err)
	}
	if h.Elements(arr) != h.EmptyFixedArray() {
		t.Error("zero length kept a backing store")
	}
}

func TestLengthStaysAboveLargestIndex(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 0)
	if err := h.SetElement(arr, MaxArrayIndex, FromInt(7)); err != nil {
		t.Fatal(err)
	}
	if got := h.ArrayLength(arr); got != math.MaxUint32 {
		t.Errorf("length = %d, want %d", got, uint32(math.MaxUint32))
	}
	expectInvariant(t, CodeArrayIndex, func() { h.SetElement(arr, math.MaxUint32, FromInt(8)) })
	expectInvariant(t, CodeArrayIndex, func() { h.DefineElement(arr, math.MaxUint32, FromInt(8), ReadOnly) })
	if _, ok := h.GetElement(arr, math.MaxUint32); ok {
		t.Error("rejected store left an element behind")
	}
	if err := h.SetArrayLength(arr, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.GetElement(arr, MaxArrayIndex); ok {
		t.Error("truncation kept the element at the largest index")
	}

	// Plain objects have no length, so every uint32 is an element index.
	obj, _ := h.NewObject(h.Null())
	if err := h.SetElement(obj, math.MaxUint32, FromInt(9)); err != nil {
		t.Fatal(err)
	}
	if v, ok := h.GetElement(obj, math.MaxUint32); !ok || v != FromInt(9) {
		t.Errorf("object element = %s, %v", v, ok)
	}
}

func TestSetArrayLengthStopsAtDontDelete(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 0)
	for i := range uint32(10) {
		h.SetElement(arr, i, FromInt(int64(i)))
	}
	if err := h.DefineElement(arr, 5, FromInt(50), DontDelete); err != nil {
		t.Fatal(err)
	}
	if h.HasFastElements(arr) {
		t.Fatal("element with attributes stored in fast mode")
	}
	if err := h.SetArrayLength(arr, 2); err != nil {
		t.Fatal(err)
	}
	if got := h.ArrayLength(arr); got != 6 {
		t.Errorf("length = %d, want 6", got)
	}
	if v, _ := h.GetElement(arr, 5); v != FromInt(50) {
		t.Error("DontDelete element removed")
	}
	if _, ok := h.GetElement(arr, 7); ok {
		t.Error("element above the stop survived")
	}
	if ok, _ := h.DeleteElement(arr, 5); ok {
		t.Error("DeleteElement removed a DontDelete element")
	}
}

func TestReadOnlyElement(t *testing.T) {
	h := newTestHeap(t)
	obj, _ := h.NewObject(h.Null())
	if err := h.DefineElement(obj, 1, FromInt(1), ReadOnly); err != nil {
		t.Fatal(err)
	}
	if err := h.SetElement(obj, 1, FromInt(2)); err != nil {
		t.Fatal(err)
	}
	if v, _ := h.GetElement(obj, 1); v != FromInt(1) {
		t.Errorf("read-only element overwritten with %s", v)
	}
	if err := h.DefineElement(obj, 1, FromInt(3), None); err != nil {
		t.Fatal(err)
	}
	if v, _ := h.GetElement(obj, 1); v != FromInt(3) {
		t.Errorf("define did not replace the element: %s", v)
	}
}

func TestDeleteElement(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 0)
	for i := range uint32(4) {
		h.SetElement(arr, i, FromInt(int64(i)))
	}
	if ok, err := h.DeleteElement(arr, 2); !ok || err != nil {
		t.Fatalf("DeleteElement = %v, %v", ok, err)
	}
	if _, ok := h.GetElement(arr, 2); ok {
		t.Error("deleted fast element still present")
	}
	if got := h.ArrayLength(arr); got != 4 {
		t.Errorf("delete changed length to %d", got)
	}
	h.NormalizeElements(arr)
	if ok, _ := h.DeleteElement(arr, 1); !ok {
		t.Error("DeleteElement on dictionary failed")
	}
	if got := h.ElementCount(arr); got != 2 {
		t.Errorf("ElementCount = %d, want 2", got)
	}
}

func TestNormalizeElementsFailureLeavesObjectIntact(t *testing.T) {
	h := newTestHeap(t)
	arr := newTestArray(t, h, 0)
	h.SetElement(arr, 0, FromInt(7))
	before := h.ShapeOf(arr)
	h.SetAllocator(&limitAllocator{inner: NewBumpAllocator(h.Memory())})
	err := h.NormalizeElements(arr)
	if _, ok := AsFailure(err); !ok {
		t.Fatalf("err = %v, want failure", err)
	}
	if h.ShapeOf(arr) != before || !h.HasFastElements(arr) {
		t.Error("failed normalization changed the object")
	}
	if v, _ := h.GetElement(arr, 0); v != FromInt(7) {
		t.Error("element lost")
	}
}
