package snapshot

import (
	"cmp"
	"slices"
	"time"

	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
)

// ---------------------------------------------------------------------------
// Graph records
// ---------------------------------------------------------------------------

// EdgeKind classifies a reference.
type EdgeKind uint8

const (
	EdgeShape EdgeKind = iota // the header's shape record
	EdgeSlot                  // a tagged body slot
)

func (k EdgeKind) String() string {
	if k == EdgeShape {
		return "shape"
	}
	return "slot"
}

// Edge is one reference from a node.
type Edge struct {
	Kind EdgeKind `cbor:"1,keyasint" msgpack:"k"`
	To   uint64   `cbor:"2,keyasint" msgpack:"t"`
}

// Node is one heap object. ID is its address.
type Node struct {
	ID        uint64 `cbor:"1,keyasint" msgpack:"id"`
	Type      string `cbor:"2,keyasint" msgpack:"type"`
	Space     string `cbor:"3,keyasint" msgpack:"space"`
	Size      int    `cbor:"4,keyasint" msgpack:"size"`
	Name      string `cbor:"5,keyasint,omitempty" msgpack:"name,omitempty"`
	Reachable bool   `cbor:"6,keyasint" msgpack:"reachable"`
	Edges     []Edge `cbor:"7,keyasint,omitempty" msgpack:"edges,omitempty"`
}

// RootKind says what holds a root.
type RootKind uint8

const (
	RootHeap         RootKind = iota // canonical objects, shapes, symbols
	RootStrongHandle                 // a Normal handle slot
	RootWeakHandle                   // a Weak, Pending or NearDeath handle slot
)

func (k RootKind) String() string {
	switch k {
	case RootHeap:
		return "heap"
	case RootStrongHandle:
		return "strong"
	case RootWeakHandle:
		return "weak"
	default:
		return "unknown"
	}
}

// Root is one reference held from outside the heap.
type Root struct {
	Kind    RootKind `cbor:"1,keyasint" msgpack:"k"`
	Target  uint64   `cbor:"2,keyasint" msgpack:"t"`
	ClassID uint16   `cbor:"3,keyasint,omitempty" msgpack:"c,omitempty"`
}

// TypeSummary totals the nodes of one type.
type TypeSummary struct {
	Type  string `cbor:"1,keyasint" msgpack:"type"`
	Count int    `cbor:"2,keyasint" msgpack:"count"`
	Bytes int    `cbor:"3,keyasint" msgpack:"bytes"`
}

// Summary totals a snapshot.
type Summary struct {
	Objects        int           `cbor:"1,keyasint" msgpack:"objects"`
	Bytes          int           `cbor:"2,keyasint" msgpack:"bytes"`
	Reachable      int           `cbor:"3,keyasint" msgpack:"reachable"`
	ReachableBytes int           `cbor:"4,keyasint" msgpack:"reachable_bytes"`
	ByType         []TypeSummary `cbor:"5,keyasint" msgpack:"by_type"`
}

// Snapshot is the object graph of one heap at one point in time.
type Snapshot struct {
	Title   string  `cbor:"1,keyasint" msgpack:"title"`
	TakenAt int64   `cbor:"2,keyasint" msgpack:"taken_at"` // unix nanoseconds
	Nodes   []Node  `cbor:"3,keyasint" msgpack:"nodes"`
	Roots   []Root  `cbor:"4,keyasint" msgpack:"roots"`
	Summary Summary `cbor:"5,keyasint" msgpack:"summary"`

	index map[uint64]int
}

// Time returns when the snapshot was taken.
func (s *Snapshot) Time() time.Time { return time.Unix(0, s.TakenAt) }

// Node returns the node with the given id.
func (s *Snapshot) Node(id uint64) (*Node, bool) {
	if s.index == nil {
		s.index = make(map[uint64]int, len(s.Nodes))
		for i := range s.Nodes {
			s.index[s.Nodes[i].ID] = i
		}
	}
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Nodes[i], true
}

// ---------------------------------------------------------------------------
// Taking a snapshot
// ---------------------------------------------------------------------------

// Take records the object graph of h. Handle roots come from r, which may
// be nil. A node is reachable when a heap root or a strong handle retains
// it; weak handles do not count.
//
// Take marks the heap and clears the marks again before returning, so it
// must not run during a mark cycle.
func Take(h *heap.Heap, r *handles.Registry, title string) *Snapshot {
	s := &Snapshot{Title: title, TakenAt: time.Now().UnixNano()}

	var objects []heap.Value
	for obj := range h.AllObjects() {
		n := Node{
			ID:    nodeID(obj),
			Type:  h.TypeOf(obj).String(),
			Space: obj.Address().Space().String(),
			Size:  h.SizeOf(obj),
			Name:  label(h, obj),
		}
		first := true
		for child := range h.TraceChildren(obj) {
			kind := EdgeSlot
			if first {
				kind, first = EdgeShape, false
			}
			n.Edges = append(n.Edges, Edge{Kind: kind, To: nodeID(child)})
		}
		s.Nodes = append(s.Nodes, n)
		objects = append(objects, obj)
	}

	addRoot := func(kind RootKind, v heap.Value, class uint16) {
		if v.IsHeapObject() {
			s.Roots = append(s.Roots, Root{Kind: kind, Target: nodeID(v), ClassID: class})
		}
	}
	h.IterateRoots(func(v *heap.Value) { addRoot(RootHeap, *v, 0) })
	if r != nil {
		classes := make(map[*heap.Value]uint16)
		r.IterateAllRootsWithClassIDs(func(v *heap.Value, id uint16) { classes[v] = id })
		r.IterateStrongRoots(func(v *heap.Value) { addRoot(RootStrongHandle, *v, classes[v]) })
		r.IterateWeakRoots(func(v *heap.Value) { addRoot(RootWeakHandle, *v, classes[v]) })
	}

	m := heap.NewMarker(h, 0)
	m.MarkRoots()
	if r != nil {
		r.IterateStrongRoots(func(v *heap.Value) { m.Mark(*v) })
	}
	m.Drain()
	for i, obj := range objects {
		s.Nodes[i].Reachable = m.IsMarked(obj)
	}
	m.ClearMarks()

	s.Summary = s.summarize()
	log.Debugf("snapshot %q: %d nodes, %d roots", title, len(s.Nodes), len(s.Roots))
	return s
}

func nodeID(v heap.Value) uint64 { return uint64(v.Address()) }

// label names the objects that have a printable value.
func label(h *heap.Heap, obj heap.Value) string {
	switch h.TypeOf(obj) {
	case heap.StringType, heap.HeapNumberType, heap.OddballType:
		return h.Describe(obj)
	}
	return ""
}

func (s *Snapshot) summarize() Summary {
	var sum Summary
	byType := make(map[string]*TypeSummary)
	for _, n := range s.Nodes {
		sum.Objects++
		sum.Bytes += n.Size
		if n.Reachable {
			sum.Reachable++
			sum.ReachableBytes += n.Size
		}
		ts := byType[n.Type]
		if ts == nil {
			ts = &TypeSummary{Type: n.Type}
			byType[n.Type] = ts
		}
		ts.Count++
		ts.Bytes += n.Size
	}
	for _, ts := range byType {
		sum.ByType = append(sum.ByType, *ts)
	}
	slices.SortFunc(sum.ByType, func(a, b TypeSummary) int { return cmp.Compare(a.Type, b.Type) })
	return sum
}
