package heap

import (
	"fmt"
	"testing"
)

func TestDictionaryCapacity(t *testing.T) {
	h := newTestHeap(t)
	tests := []struct {
		atLeast, want int
	}{
		{0, 32},
		{1, 32},
		{21, 32},
		{22, 64},
		{40, 64},
		{100, 256},
	}
	for _, tt := range tests {
		if got := h.dictionaryCapacity(tt.atLeast); got != tt.want {
			t.Errorf("dictionaryCapacity(%d) = %d, want %d", tt.atLeast, got, tt.want)
		}
	}
}

func TestPropertyDictionaryRoundTrip(t *testing.T) {
	h := newTestHeap(t)
	d, err := h.newPropertyDictionary(0, NotTenured)
	if err != nil {
		t.Fatal(err)
	}
	const n = 100
	names := make([]Value, n)
	for i := range names {
		names[i] = intern(t, h, fmt.Sprintf("key%d", i))
		details := NewPropertyDetails(Attributes(i%8), Normal, 0)
		if d, err = d.addProperty(names[i], FromInt(int64(i)), details); err != nil {
			t.Fatal(err)
		}
	}
	if d.count() != n {
		t.Fatalf("count = %d, want %d", d.count(), n)
	}
	for i, name := range names {
		e := d.find(name)
		if e < 0 {
			t.Fatalf("key%d missing", i)
		}
		if d.valueAt(e) != FromInt(int64(i)) {
			t.Errorf("key%d = %s", i, d.valueAt(e))
		}
		if got := d.detailsAt(e); got.Attributes() != Attributes(i%8) || got.Index() != i+1 {
			t.Errorf("key%d details = %s", i, got)
		}
	}
	if d.find(intern(t, h, "absent")) >= 0 {
		t.Error("absent key found")
	}

	// Delete every other key; lookups probe through the holes.
	for i := 0; i < n; i += 2 {
		d.remove(d.find(names[i]))
	}
	if d.count() != n/2 || d.deleted() != n/2 {
		t.Errorf("after deletes count %d deleted %d", d.count(), d.deleted())
	}
	for i := 1; i < n; i += 2 {
		if d.find(names[i]) < 0 {
			t.Errorf("key%d lost after deleting neighbours", i)
		}
	}
	entries := h.PropertyDictionaryEntries(d.obj)
	for i, e := range entries {
		if e.Key != names[2*i+1] {
			t.Fatalf("entry %d out of enumeration order", i)
		}
	}
}

func TestDictionaryReusesDeletedEntries(t *testing.T) {
	h := newTestHeap(t)
	d, _ := h.newPropertyDictionary(0, NotTenured)
	name := intern(t, h, "churn")
	capacity := d.capacity()
	for range 200 {
		var err error
		if d, err = d.addProperty(name, FromInt(1), 0); err != nil {
			t.Fatal(err)
		}
		d.remove(d.find(name))
	}
	if d.capacity() > 2*capacity {
		t.Errorf("capacity grew to %d under churn", d.capacity())
	}
}

func TestDictionaryShrink(t *testing.T) {
	h := newTestHeap(t)
	d, _ := h.newPropertyDictionary(0, NotTenured)
	names := make([]Value, 200)
	for i := range names {
		names[i] = intern(t, h, fmt.Sprintf("s%d", i))
		d, _ = d.addProperty(names[i], FromInt(int64(i)), 0)
	}
	big := d.capacity()
	for i := 20; i < len(names); i++ {
		d.remove(d.find(names[i]))
	}
	small, err := d.shrink()
	if err != nil {
		t.Fatal(err)
	}
	if small.capacity() >= big {
		t.Fatalf("shrink kept capacity %d", small.capacity())
	}
	if small.deleted() != 0 || small.count() != 20 {
		t.Errorf("shrunk count %d deleted %d", small.count(), small.deleted())
	}
	for i := range 20 {
		if e := small.find(names[i]); e < 0 || small.valueAt(e) != FromInt(int64(i)) {
			t.Errorf("s%d lost by shrink", i)
		}
	}
	if small.prefix() != d.prefix() {
		t.Error("shrink dropped the next enumeration index")
	}
}

func TestEnumerationIndexRenumbering(t *testing.T) {
	h := newTestHeap(t)
	h.maxEnumIndex = 8
	d, _ := h.newPropertyDictionary(0, NotTenured)
	a, b := intern(t, h, "a"), intern(t, h, "b")
	d, _ = d.addProperty(a, FromInt(1), 0)
	d, _ = d.addProperty(b, FromInt(2), 0)
	tmp := intern(t, h, "tmp")
	for range 10 {
		d, _ = d.addProperty(tmp, FromInt(0), 0)
		d.remove(d.find(tmp))
	}
	if d.prefix() > h.maxEnumIndex+1 {
		t.Errorf("next index %d exceeds limit", d.prefix())
	}
	entries := h.PropertyDictionaryEntries(d.obj)
	if len(entries) != 2 || entries[0].Key != a || entries[1].Key != b {
		t.Fatalf("order lost: %v", entries)
	}
	if entries[0].Details.Index() != 1 || entries[1].Details.Index() != 2 {
		t.Errorf("indices %d,%d after renumbering", entries[0].Details.Index(), entries[1].Details.Index())
	}
}

func TestElementDictionaryKeys(t *testing.T) {
	h := newTestHeap(t)
	d, _ := h.newElementDictionary(0, NotTenured)
	indices := []uint32{0, 7, 1 << 20, 1<<31 + 5, 4294967294}
	for i, index := range indices {
		key, err := h.NumberFromUint32(index)
		if err != nil {
			t.Fatal(err)
		}
		if d, err = d.addElement(key, index, FromInt(int64(i)), None); err != nil {
			t.Fatal(err)
		}
	}
	for i, index := range indices {
		e := d.findIndex(index)
		if e < 0 || d.valueAt(e) != FromInt(int64(i)) {
			t.Errorf("index %d: entry %d", index, e)
		}
	}
	if d.findIndex(8) >= 0 {
		t.Error("absent index found")
	}
	maxKey, slow := h.ElementDictionaryMaxKey(d.obj)
	if !slow {
		t.Error("huge index did not set requires-slow")
	}
	if maxKey != 1<<20 {
		t.Errorf("max key = %d, want %d", maxKey, 1<<20)
	}
}

func TestComputeIntegerHashSpreads(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := range uint32(1000) {
		seen[ComputeIntegerHash(i)&1023] = true
	}
	if len(seen) < 400 {
		t.Errorf("only %d of 1024 buckets used by 1000 sequential keys", len(seen))
	}
}

func TestStringHash(t *testing.T) {
	if StringHashOf("") != 27 {
		t.Errorf("empty string hash = %d, want 27", StringHashOf(""))
	}
	if StringHashOf("abc") == StringHashOf("acb") {
		t.Error("hash ignores order")
	}
	h := newTestHeap(t)
	s, _ := h.NewString("property", NotTenured)
	if h.StringHash(s) != StringHashOf("property") {
		t.Error("stored hash differs from computed hash")
	}
	if h.StringValue(s) != "property" || h.StringLength(s) != 8 {
		t.Errorf("string contents %q", h.StringValue(s))
	}
}

func TestInterning(t *testing.T) {
	h := newTestHeap(t)
	a := intern(t, h, "same")
	b := intern(t, h, "same")
	if a != b {
		t.Error("interning returned two strings")
	}
	if !h.IsInterned(a) {
		t.Error("IsInterned = false")
	}
	plain, _ := h.NewString("same", NotTenured)
	if h.IsInterned(plain) {
		t.Error("uninterned copy reported interned")
	}
	if a.Address().Space() != OldDataSpace {
		t.Errorf("interned string in %s", a.Address().Space())
	}
	if v, ok := h.LookupSymbol("same"); !ok || v != a {
		t.Error("LookupSymbol")
	}
}
