package snapshot

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestHeap(t *testing.T) *heap.Heap {
	t.Helper()
	cfg := heap.DefaultConfig()
	cfg.NewSpaceSize = 1 << 20
	cfg.OldPointerSpaceSize = 1 << 20
	cfg.OldDataSpaceSize = 1 << 20
	cfg.MapSpaceSize = 256 << 10
	cfg.LargeObjectSpaceSize = 1 << 20
	h, err := heap.New(cfg)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	t.Cleanup(h.TearDown)
	return h
}

func newTestRegistry(t *testing.T) *handles.Registry {
	t.Helper()
	r, err := handles.NewRegistry(handles.DefaultConfig())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(r.TearDown)
	return r
}

type fixture struct {
	h            *heap.Heap
	r            *handles.Registry
	held, child  heap.Value
	weak, orphan heap.Value
}

// newFixture builds a strongly held object with a child, a weakly held
// object and an unreferenced one.
func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{h: newTestHeap(t), r: newTestRegistry(t)}
	var err error
	for _, v := range []*heap.Value{&f.held, &f.child, &f.weak, &f.orphan} {
		if *v, err = f.h.NewObject(f.h.Null()); err != nil {
			t.Fatal(err)
		}
	}
	name, err := f.h.Intern("child")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.h.SetProperty(f.held, name, f.child); err != nil {
		t.Fatal(err)
	}
	f.r.SetWrapperClassID(f.r.Create(f.held), 7)
	f.r.MakeWeak(f.r.Create(f.weak), nil, nil)
	return f
}

func id(v heap.Value) uint64 { return uint64(v.Address()) }

// ---------------------------------------------------------------------------
// Taking snapshots
// ---------------------------------------------------------------------------

func TestTakeRecordsGraph(t *testing.T) {
	f := newFixture(t)
	s := Take(f.h, f.r, "fixture")

	held, ok := s.Node(id(f.held))
	if !ok {
		t.Fatal("held object missing")
	}
	if held.Type != "Object" {
		t.Errorf("held type = %q, want Object", held.Type)
	}
	if len(held.Edges) == 0 || held.Edges[0].Kind != EdgeShape {
		t.Fatalf("first edge of %+v is not the shape", held)
	}
	if held.Edges[0].To != id(f.h.ShapeOf(f.held).Record()) {
		t.Error("shape edge does not point at the shape record")
	}
	found := false
	for _, e := range held.Edges[1:] {
		if e.To == id(f.child) {
			found = true
		}
	}
	if !found {
		t.Error("no edge from held to child")
	}

	for _, tc := range []struct {
		name string
		v    heap.Value
		want bool
	}{
		{"held", f.held, true},
		{"child", f.child, true},
		{"weak", f.weak, false},
		{"orphan", f.orphan, false},
	} {
		n, ok := s.Node(id(tc.v))
		if !ok {
			t.Errorf("%s missing", tc.name)
			continue
		}
		if n.Reachable != tc.want {
			t.Errorf("%s reachable = %v, want %v", tc.name, n.Reachable, tc.want)
		}
	}
	if err := f.h.Verify(); err != nil {
		t.Errorf("Take left the heap inconsistent: %v", err)
	}
}

func TestTakeRecordsRoots(t *testing.T) {
	f := newFixture(t)
	s := Take(f.h, f.r, "roots")
	counts := map[RootKind]int{}
	for _, r := range s.Roots {
		counts[r.Kind]++
		switch r.Target {
		case id(f.held):
			if r.Kind != RootStrongHandle || r.ClassID != 7 {
				t.Errorf("held root = %+v", r)
			}
		case id(f.weak):
			if r.Kind != RootWeakHandle {
				t.Errorf("weak root = %+v", r)
			}
		}
	}
	if counts[RootStrongHandle] != 1 || counts[RootWeakHandle] != 1 {
		t.Errorf("handle roots = %v", counts)
	}
	if counts[RootHeap] == 0 {
		t.Error("no heap roots")
	}

	null, ok := s.Node(id(f.h.Null()))
	if !ok || null.Name != "null" {
		t.Errorf("null node = %+v", null)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	s := Take(f.h, f.r, "summary")
	sum := s.Summary
	if sum.Objects != len(s.Nodes) {
		t.Errorf("objects = %d, want %d", sum.Objects, len(s.Nodes))
	}
	total, objects := 0, 0
	for i, ts := range sum.ByType {
		total += ts.Count
		if i > 0 && sum.ByType[i-1].Type >= ts.Type {
			t.Errorf("types not sorted at %q", ts.Type)
		}
		if ts.Type == "Object" {
			objects = ts.Count
		}
	}
	if total != sum.Objects {
		t.Errorf("type counts sum to %d, want %d", total, sum.Objects)
	}
	if objects != 4 {
		t.Errorf("%d objects, want 4", objects)
	}
	if sum.Reachable >= sum.Objects || sum.ReachableBytes >= sum.Bytes {
		t.Errorf("unreachable objects counted as reachable: %+v", sum)
	}
}

// ---------------------------------------------------------------------------
// Retained sizes and comparison
// ---------------------------------------------------------------------------

func TestRetainedSizes(t *testing.T) {
	// a -> b -> d, a -> c -> d, c -> e: a dominates everything, d is
	// shared so neither b nor c retains it.
	s := &Snapshot{
		Nodes: []Node{
			{ID: 1, Size: 1, Edges: []Edge{{To: 2}, {To: 3}}},
			{ID: 2, Size: 10, Edges: []Edge{{To: 4}}},
			{ID: 3, Size: 100, Edges: []Edge{{To: 4}, {To: 5}}},
			{ID: 4, Size: 1000},
			{ID: 5, Size: 10000, Edges: []Edge{{To: 3}}},
			{ID: 6, Size: 7},
		},
		Roots: []Root{{Kind: RootHeap, Target: 1}, {Kind: RootWeakHandle, Target: 6}},
	}
	got := s.RetainedSizes()
	want := map[uint64]int{1: 11111, 2: 10, 3: 10100, 4: 1000, 5: 10000}
	if len(got) != len(want) {
		t.Fatalf("retained = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("retained[%d] = %d, want %d", k, got[k], v)
		}
	}
}

func TestRetainedSizesOfHeap(t *testing.T) {
	f := newFixture(t)
	s := Take(f.h, f.r, "retained")
	sizes := s.RetainedSizes()
	held, _ := s.Node(id(f.held))
	child, _ := s.Node(id(f.child))
	if got := sizes[held.ID]; got < held.Size+child.Size {
		t.Errorf("held retains %d bytes, want at least %d", got, held.Size+child.Size)
	}
	if _, ok := sizes[id(f.orphan)]; ok {
		t.Error("unreachable object has a retained size")
	}
}

func TestCompare(t *testing.T) {
	f := newFixture(t)
	before := Take(f.h, f.r, "before")
	for range 3 {
		if _, err := f.h.NewObject(f.h.Null()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.h.NewString("fresh", heap.NotTenured); err != nil {
		t.Fatal(err)
	}
	after := Take(f.h, f.r, "after")

	deltas := Compare(before, after)
	got := map[string]int{}
	for _, d := range deltas {
		if d.Removed != 0 {
			t.Errorf("%s: %d removed, want 0", d.Type, d.Removed)
		}
		got[d.Type] = d.Added
	}
	if got["Object"] != 3 || got["String"] != 1 {
		t.Errorf("added = %v, want 3 objects and 1 string", got)
	}
	if back := Compare(after, before); len(back) != len(deltas) || back[0].Removed != deltas[0].Added {
		t.Errorf("reverse comparison = %+v", back)
	}
}

// ---------------------------------------------------------------------------
// Wire formats and store
// ---------------------------------------------------------------------------

func TestWireFormats(t *testing.T) {
	f := newFixture(t)
	s := Take(f.h, f.r, "wire")
	for _, format := range []Format{CBOR, Msgpack} {
		t.Run(format.String(), func(t *testing.T) {
			data, err := Marshal(s, format)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Unmarshal(data, format)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Title != s.Title || got.TakenAt != s.TakenAt {
				t.Errorf("header = %q %d, want %q %d", got.Title, got.TakenAt, s.Title, s.TakenAt)
			}
			if len(got.Nodes) != len(s.Nodes) || len(got.Roots) != len(s.Roots) {
				t.Fatalf("decoded %d nodes %d roots, want %d %d", len(got.Nodes), len(got.Roots), len(s.Nodes), len(s.Roots))
			}
			n, ok := got.Node(id(f.held))
			if !ok || !n.Reachable || len(n.Edges) == 0 {
				t.Errorf("held node decoded as %+v", n)
			}
			if got.Summary.Objects != s.Summary.Objects || len(got.Summary.ByType) != len(s.Summary.ByType) {
				t.Errorf("summary = %+v", got.Summary)
			}
		})
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	f := newFixture(t)
	s := Take(f.h, f.r, "stable")
	a, err := Marshal(s, CBOR)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(s, CBOR)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding the same snapshot twice gave different bytes")
	}
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"cbor", "msgpack"} {
		f, err := ParseFormat(name)
		if err != nil || f.String() != name {
			t.Errorf("ParseFormat(%q) = %v, %v", name, f, err)
		}
	}
	if _, err := ParseFormat("json"); err == nil {
		t.Error("ParseFormat accepted json")
	}
	if _, err := Unmarshal([]byte{0}, Format(9)); err == nil {
		t.Error("Unmarshal accepted an unknown format")
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	st, err := OpenStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()

	f := newFixture(t)
	first := Take(f.h, f.r, "first")
	if _, err := f.h.NewObject(f.h.Null()); err != nil {
		t.Fatal(err)
	}
	second := Take(f.h, f.r, "second")

	id1, err := st.Save(ctx, first, CBOR)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	id2, err := st.Save(ctx, second, Msgpack)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != id1 || entries[1].Format != Msgpack {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].Objects != second.Summary.Objects {
		t.Errorf("stored objects = %d, want %d", entries[1].Objects, second.Summary.Objects)
	}

	loaded, err := st.Load(ctx, id2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Title != "second" || len(loaded.Nodes) != len(second.Nodes) {
		t.Errorf("loaded %q with %d nodes", loaded.Title, len(loaded.Nodes))
	}

	history, err := st.History(ctx, "Object")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[1].Count != history[0].Count+1 {
		t.Errorf("object history = %+v", history)
	}

	if err := st.Delete(ctx, id1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Load(ctx, id1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete: %v, want ErrNotFound", err)
	}
	if err := st.Delete(ctx, id1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: %v, want ErrNotFound", err)
	}
	if history, _ := st.History(ctx, "Object"); len(history) != 1 {
		t.Errorf("history after delete has %d samples", len(history))
	}
}
