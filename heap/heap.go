package heap

import (
	"fmt"
	"iter"
)

// Heap is one managed heap instance: its memory, allocator, shapes and
// canonical objects. A Heap is owned by a single execution context and is
// not safe for concurrent use.
//
// The canonical tables (oddballs, empty arrays, the shape transition
// cache, the descriptor lookup cache) are built by New and released by
// TearDown. Nothing here is process-global.
type Heap struct {
	cfg      Config
	smiRange SmiRange
	mem      *Memory
	alloc    Allocator
	barrier  WriteBarrier

	shapes     []*Shape // indexed by shape id
	metaShape  *Shape
	internal   [numTypeTags]*Shape
	rootShapes map[rootShapeKey]*Shape
	dictShapes map[dictShapeKey]*Shape

	oddballs         Oddballs
	emptyFixedArray  Value
	emptyDescriptors *DescriptorTable
	nextTableID      uint32

	symbols     map[string]int // name -> index into symbolList
	symbolList  []Value
	lookupCache *DescriptorLookupCache

	// maxEnumIndex bounds property dictionary enumeration indices before
	// they are renumbered.
	maxEnumIndex int

	tornDown bool
}

type rootShapeKey struct {
	tag       TypeTag
	prototype Value
	inObject  int
}

// New creates and bootstraps a heap.
func New(cfg Config) (*Heap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("heap config: %w", err)
	}
	mem := NewMemory(cfg.spaceCapacities())
	h := &Heap{
		cfg:          cfg,
		smiRange:     SmiRange{Bits: cfg.SmiBits},
		mem:          mem,
		alloc:        NewBumpAllocator(mem),
		barrier:      NewRememberedSet(),
		rootShapes:   make(map[rootShapeKey]*Shape),
		dictShapes:   make(map[dictShapeKey]*Shape),
		symbols:      make(map[string]int),
		lookupCache:  NewDescriptorLookupCache(cfg.DescriptorLookupCacheSize),
		maxEnumIndex: maxEnumerationIndex,
	}
	if err := h.bootstrap(); err != nil {
		return nil, fmt.Errorf("heap bootstrap: %w", err)
	}
	log.Debugf("heap created: smi bits %d, in-object properties %d", cfg.SmiBits, cfg.InObjectProperties)
	return h, nil
}

func (h *Heap) bootstrap() error {
	// The meta shape describes shape records, including its own.
	raw := h.alloc.AllocateRaw(ShapeRecordSize, MapSpace)
	if raw.IsFailure() {
		return raw.ToFailure()
	}
	metaAddr := raw.Address()
	h.mem.SetWord(metaAddr, uint64(MapWordFromShape(raw)))
	h.metaShape = h.registerShape(&Shape{
		tag:          ShapeType,
		instanceSize: ShapeRecordSize,
		prototype:    smi(0),
	}, raw)
	h.internal[ShapeType] = h.metaShape

	sizes := []struct {
		tag  TypeTag
		size int
	}{
		{HeapNumberType, HeapNumberSize},
		{StringType, VariableSize},
		{ByteArrayType, VariableSize},
		{OddballType, OddballSize},
		{FixedArrayType, VariableSize},
		{PropertyDictionaryType, VariableSize},
		{ElementDictionaryType, VariableSize},
		{AccessorPairType, AccessorPairSize},
	}
	for _, s := range sizes {
		shape, err := h.newShape(Shape{tag: s.tag, instanceSize: s.size, prototype: smi(0)})
		if err != nil {
			return err
		}
		h.internal[s.tag] = shape
	}

	if err := h.createOddballs(); err != nil {
		return err
	}
	// Prototypes could not point at null before null existed.
	for _, s := range h.shapes {
		s.prototype = h.oddballs.Null
		h.mem.SetWord(s.record.Address().Add(ShapePrototypeOffset), uint64(s.prototype))
	}

	empty, err := h.allocateFixedArray(0, Tenured, h.oddballs.Undefined)
	if err != nil {
		return err
	}
	h.emptyFixedArray = empty
	h.emptyDescriptors = h.newDescriptorTable(nil, 0)

	if _, err := h.InitialShape(ObjectType, h.oddballs.Null); err != nil {
		return err
	}
	if _, err := h.InitialShape(ArrayType, h.oddballs.Null); err != nil {
		return err
	}
	return nil
}

// TearDown releases the heap's memory and canonical tables. The heap must
// not be used afterwards.
func (h *Heap) TearDown() {
	if h.tornDown {
		return
	}
	h.mem.Release()
	h.shapes = nil
	h.rootShapes = nil
	h.dictShapes = nil
	h.symbols = nil
	h.symbolList = nil
	h.lookupCache.Clear()
	h.tornDown = true
	log.Debug("heap torn down")
}

func (h *Heap) checkAlive() {
	if h.tornDown {
		invariant(CodeTornDown, "heap used after TearDown")
	}
}

// Config returns the heap's configuration.
func (h *Heap) Config() Config {
	return h.cfg
}

// SmiRange returns the inline integer range of the heap.
func (h *Heap) SmiRange() SmiRange {
	return h.smiRange
}

// Memory returns the backing store.
func (h *Heap) Memory() *Memory {
	return h.mem
}

// SetAllocator replaces the allocator. The allocator must hand out storage
// from the heap's Memory.
func (h *Heap) SetAllocator(a Allocator) {
	h.alloc = a
}

// WriteBarrier returns the current write notification sink.
func (h *Heap) WriteBarrier() WriteBarrier {
	return h.barrier
}

// SetWriteBarrier replaces the write notification sink.
func (h *Heap) SetWriteBarrier(b WriteBarrier) {
	h.barrier = b
}

// EmptyFixedArray returns the canonical zero-length fixed array.
func (h *Heap) EmptyFixedArray() Value {
	return h.emptyFixedArray
}

// EmptyDescriptors returns the canonical empty descriptor table.
func (h *Heap) EmptyDescriptors() *DescriptorTable {
	return h.emptyDescriptors
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// spaceFor selects the space of a new object.
func (h *Heap) spaceFor(tag TypeTag, p Pretenure) AllocationSpace {
	switch {
	case tag == ShapeType:
		return MapSpace
	case p == NotTenured:
		return NewSpace
	case typeInfos[tag].pointers:
		return OldPointerSpace
	default:
		return OldDataSpace
	}
}

// allocate reserves size bytes and stamps the header with shape. Objects
// above the large object threshold go to LargeObjectSpace.
func (h *Heap) allocate(shape *Shape, size int, space AllocationSpace) (Address, error) {
	h.checkAlive()
	if size > h.cfg.LargeObjectThreshold {
		space = LargeObjectSpace
	}
	raw := h.alloc.AllocateRaw(size, space)
	if raw.IsFailure() {
		return nullAddress, raw.ToFailure()
	}
	addr := raw.Address()
	h.mem.SetWord(addr, uint64(MapWordFromShape(shape.record)))
	return addr, nil
}

// fill writes v into every word of [from, to).
func (h *Heap) fill(obj Address, from, to int, v Value) {
	for off := from; off < to; off += PointerSize {
		h.mem.SetWord(obj.Add(off), uint64(v))
	}
}

// rawSmi reads an internal length or count field.
func (h *Heap) rawSmi(a Address) int {
	return Value(h.mem.Word(a)).smiInt()
}

// ---------------------------------------------------------------------------
// Shapes of objects
// ---------------------------------------------------------------------------

// Header returns the header word of obj.
func (h *Heap) Header(obj Value) MapWord {
	return MapWord(h.mem.Word(obj.Address()))
}

// SetHeader overwrites the header word of obj. Only collectors call this.
func (h *Heap) SetHeader(obj Value, w MapWord) {
	h.mem.SetWord(obj.Address(), uint64(w))
}

func (h *Heap) shapeFromRecord(record Value) *Shape {
	id := h.rawSmi(record.Address().Add(ShapeIDOffset))
	if id < 0 || id >= len(h.shapes) {
		invariant(CodeShapeMismatch, "shape record %s has unknown id %d", record, id)
	}
	return h.shapes[id]
}

// ShapeOf returns the shape of a heap object.
// Panics if the header is not in the Shape state.
func (h *Heap) ShapeOf(obj Value) *Shape {
	return h.shapeFromRecord(h.Header(obj).Shape())
}

// shapeIgnoringMarks returns the shape of an object that may be marked.
func (h *Heap) shapeIgnoringMarks(obj Address) *Shape {
	return h.shapeFromRecord(MapWord(h.mem.Word(obj)).ShapeIgnoringMarks())
}

// TypeOf returns the type tag of a heap object.
func (h *Heap) TypeOf(obj Value) TypeTag {
	return h.ShapeOf(obj).tag
}

// Is reports whether v is a heap object of the given type.
func (h *Heap) Is(v Value, tag TypeTag) bool {
	return v.IsHeapObject() && h.TypeOf(v) == tag
}

func (h *Heap) expect(v Value, tag TypeTag, op string) Address {
	if !v.IsHeapObject() {
		invariant(CodeWrongType, "%s: %s is not a %s", op, v, tag)
	}
	if got := h.TypeOf(v); got != tag {
		invariant(CodeWrongType, "%s: %s is a %s, not a %s", op, v, got, tag)
	}
	return v.Address()
}

func (h *Heap) expectJSObject(v Value, op string) (Address, *Shape) {
	if !v.IsHeapObject() {
		invariant(CodeWrongType, "%s: %s is not an object", op, v)
	}
	s := h.ShapeOf(v)
	if !s.tag.IsJSObject() {
		invariant(CodeWrongType, "%s: %s is a %s, not an object", op, v, s.tag)
	}
	return v.Address(), s
}

// SizeOf returns the byte size of obj, dispatching on its type tag.
func (h *Heap) SizeOf(obj Value) int {
	return h.sizeOf(obj.Address(), h.shapeIgnoringMarks(obj.Address()))
}

func (h *Heap) sizeOf(obj Address, s *Shape) int {
	if s.instanceSize != VariableSize {
		return s.instanceSize
	}
	return typeInfos[s.tag].size(h, obj)
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// Objects walks space linearly in allocation order. Marked objects are
// visited too.
func (h *Heap) Objects(space AllocationSpace) iter.Seq[Value] {
	return func(yield func(Value) bool) {
		top := h.mem.Top(space)
		for a := h.mem.Start(space); a < top; {
			s := h.shapeIgnoringMarks(a)
			size := h.sizeOf(a, s)
			if !yield(FromAddress(a)) {
				return
			}
			a = a.Add(size)
		}
	}
}

// AllObjects walks every space.
func (h *Heap) AllObjects() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		for _, space := range AllSpaces {
			for obj := range h.Objects(space) {
				if !yield(obj) {
					return
				}
			}
		}
	}
}

// IterateRoots visits every strong reference held outside the managed
// memory: canonical objects, shape records and prototypes, descriptor
// values and interned strings. Shapes are never reclaimed.
func (h *Heap) IterateRoots(visit func(*Value)) {
	h.checkAlive()
	visit(&h.oddballs.Undefined)
	visit(&h.oddballs.Null)
	visit(&h.oddballs.TheHole)
	visit(&h.oddballs.True)
	visit(&h.oddballs.False)
	visit(&h.emptyFixedArray)
	for _, s := range h.shapes {
		visit(&s.record)
		visit(&s.prototype)
		if s.descriptors != nil {
			for i := range s.descriptors.entries {
				d := &s.descriptors.entries[i]
				visit(&d.Name)
				if d.Details.Kind() == Constant || d.Details.Kind() == Accessor {
					visit(&d.Value)
				}
			}
		}
	}
	for i := range h.symbolList {
		visit(&h.symbolList[i])
	}
}

// Stats summarizes space usage.
type Stats struct {
	Used     [numSpaces]int
	Capacity [numSpaces]int
	Objects  [numTypeTags]int
	Shapes   int
	Symbols  int
}

// Stats counts objects per type and bytes per space.
func (h *Heap) Stats() Stats {
	var st Stats
	for _, space := range AllSpaces {
		st.Used[space] = h.mem.Used(space)
		st.Capacity[space] = h.mem.Capacity(space)
	}
	for obj := range h.AllObjects() {
		st.Objects[h.shapeIgnoringMarks(obj.Address()).tag]++
	}
	st.Shapes = len(h.shapes)
	st.Symbols = len(h.symbolList)
	return st
}
