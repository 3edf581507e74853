package heap

import "fmt"

// ElementsKind selects the storage of indexed elements.
type ElementsKind uint8

const (
	FastElements       ElementsKind = iota // FixedArray, holes are the_hole
	DictionaryElements                     // ElementDictionary
)

// String returns the kind name.
func (k ElementsKind) String() string {
	if k == DictionaryElements {
		return "dictionary"
	}
	return "fast"
}

// Shape (hidden class) describes the layout of every object that points
// at it. A published shape never changes; adding a property moves the
// object to another shape along a transition.
//
// Each Shape is mirrored by a record in MapSpace that objects reference
// from their header. The Go struct carries what the record does not.
type Shape struct {
	id           int
	record       Value
	tag          TypeTag
	instanceSize int
	headerSize   int // offset of the first in-object slot
	inObject     int

	descriptors  *DescriptorTable // nil in dictionary mode
	dictionary   bool
	elementsKind ElementsKind
	prototype    Value

	parent      *Shape
	transitions map[transitionKey]*Shape
	variants    map[ElementsKind]*Shape
}

// ID returns the shape's index in its heap.
func (s *Shape) ID() int { return s.id }

// Record returns the reference to the shape's MapSpace record.
func (s *Shape) Record() Value { return s.record }

// Tag returns the type tag of instances.
func (s *Shape) Tag() TypeTag { return s.tag }

// InstanceSize returns the byte size of instances, or VariableSize.
func (s *Shape) InstanceSize() int { return s.instanceSize }

// Prototype returns the prototype reference shared by instances.
func (s *Shape) Prototype() Value { return s.prototype }

// Parent returns the shape this one transitioned from, or nil for a root.
func (s *Shape) Parent() *Shape { return s.parent }

// IsDictionaryMode reports whether instances keep named properties in a
// PropertyDictionary.
func (s *Shape) IsDictionaryMode() bool { return s.dictionary }

// ElementsKind returns the element storage of instances.
func (s *Shape) ElementsKind() ElementsKind { return s.elementsKind }

// Descriptors returns the descriptor table, or nil in dictionary mode.
func (s *Shape) Descriptors() *DescriptorTable { return s.descriptors }

// InObjectSlotCount returns the number of property slots inside the object.
func (s *Shape) InObjectSlotCount() int { return s.inObject }

// SlotCount returns the number of tagged words after the header.
func (s *Shape) SlotCount() int {
	if s.instanceSize == VariableSize {
		return 0
	}
	return (s.instanceSize - HeaderSize) / PointerSize
}

// FieldCount returns the number of property fields in use.
func (s *Shape) FieldCount() int {
	if s.descriptors == nil {
		return 0
	}
	return s.descriptors.fields
}

// OutOfLineFieldCount returns the number of fields stored in the
// properties array.
func (s *Shape) OutOfLineFieldCount() int {
	return max(0, s.FieldCount()-s.inObject)
}

// TransitionCount returns the number of cached outgoing transitions.
func (s *Shape) TransitionCount() int { return len(s.transitions) }

// inObjectOffset returns the byte offset of in-object field i.
func (s *Shape) inObjectOffset(i int) int {
	return s.headerSize + i*PointerSize
}

func (s *Shape) String() string {
	mode := "fast"
	if s.dictionary {
		mode = "dictionary"
	}
	return fmt.Sprintf("Shape#%d(%s, %s properties, %s elements, %d fields)",
		s.id, s.tag, mode, s.elementsKind, s.FieldCount())
}

// ---------------------------------------------------------------------------
// Creation
// ---------------------------------------------------------------------------

func (h *Heap) registerShape(s *Shape, record Value) *Shape {
	s.id = len(h.shapes)
	s.record = record
	h.shapes = append(h.shapes, s)
	addr := record.Address()
	h.mem.SetWord(addr.Add(ShapePrototypeOffset), uint64(s.prototype))
	h.mem.SetWord(addr.Add(ShapeIDOffset), uint64(smi(s.id)))
	return s
}

// newShape publishes a copy of tmpl with a fresh MapSpace record. On
// failure nothing is registered.
func (h *Heap) newShape(tmpl Shape) (*Shape, error) {
	addr, err := h.allocate(h.metaShape, ShapeRecordSize, MapSpace)
	if err != nil {
		return nil, err
	}
	s := &tmpl
	s.transitions = nil
	s.variants = nil
	h.registerShape(s, FromAddress(addr))
	log.Debugf("new shape %s", s)
	return s, nil
}

// InitialShape returns the canonical root shape of fresh objects or arrays
// with the given prototype.
func (h *Heap) InitialShape(tag TypeTag, prototype Value) (*Shape, error) {
	return h.rootShape(tag, prototype, h.cfg.InObjectProperties)
}

// NewRootShape creates an unshared root shape with its own in-object slot
// count. Objects built from it share transitions with each other only.
func (h *Heap) NewRootShape(tag TypeTag, prototype Value, inObject int) (*Shape, error) {
	if !tag.IsJSObject() {
		invariant(CodeWrongType, "NewRootShape: %s instances have no properties", tag)
	}
	headerSize := ObjectHeaderSize
	if tag == ArrayType {
		headerSize = ArrayHeaderSize
	}
	return h.newShape(Shape{
		tag:          tag,
		instanceSize: headerSize + inObject*PointerSize,
		headerSize:   headerSize,
		inObject:     inObject,
		descriptors:  h.emptyDescriptors,
		prototype:    prototype,
	})
}

func (h *Heap) rootShape(tag TypeTag, prototype Value, inObject int) (*Shape, error) {
	key := rootShapeKey{tag: tag, prototype: prototype, inObject: inObject}
	if s, ok := h.rootShapes[key]; ok {
		return s, nil
	}
	s, err := h.NewRootShape(tag, prototype, inObject)
	if err != nil {
		return nil, err
	}
	h.rootShapes[key] = s
	return s, nil
}

// rootOf follows parent links to the root shape.
func (s *Shape) rootOf() *Shape {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// ---------------------------------------------------------------------------
// Mode variants
// ---------------------------------------------------------------------------

type dictShapeKey struct {
	tag          TypeTag
	prototype    Value
	instanceSize int
	inObject     int
	elementsKind ElementsKind
}

// ToDictionaryMode returns the canonical dictionary-mode shape matching s.
// Dictionary-mode shapes carry no descriptors and are shared by every
// object with the same type, prototype, size and elements kind.
func (h *Heap) ToDictionaryMode(s *Shape) (*Shape, error) {
	return h.dictionaryShape(s, s.elementsKind)
}

func (h *Heap) dictionaryShape(s *Shape, kind ElementsKind) (*Shape, error) {
	key := dictShapeKey{
		tag:          s.tag,
		prototype:    s.prototype,
		instanceSize: s.instanceSize,
		inObject:     s.inObject,
		elementsKind: kind,
	}
	if d, ok := h.dictShapes[key]; ok {
		return d, nil
	}
	d, err := h.newShape(Shape{
		tag:          s.tag,
		instanceSize: s.instanceSize,
		headerSize:   s.headerSize,
		inObject:     s.inObject,
		dictionary:   true,
		elementsKind: kind,
		prototype:    s.prototype,
	})
	if err != nil {
		return nil, err
	}
	h.dictShapes[key] = d
	return d, nil
}

// WithElementsKind returns the variant of s whose instances use the given
// element storage. Variants are cached in both directions.
func (h *Heap) WithElementsKind(s *Shape, kind ElementsKind) (*Shape, error) {
	if s.elementsKind == kind {
		return s, nil
	}
	if s.dictionary {
		return h.dictionaryShape(s, kind)
	}
	if v, ok := s.variants[kind]; ok {
		return v, nil
	}
	tmpl := *s
	tmpl.elementsKind = kind
	tmpl.parent = nil
	v, err := h.newShape(tmpl)
	if err != nil {
		return nil, err
	}
	if s.variants == nil {
		s.variants = make(map[ElementsKind]*Shape)
	}
	v.variants = map[ElementsKind]*Shape{s.elementsKind: s}
	s.variants[kind] = v
	return v, nil
}
