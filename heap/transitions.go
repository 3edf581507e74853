package heap

import (
	"iter"
	"slices"
)

// transitionKey identifies an outgoing edge of the transition graph.
// Constant and accessor transitions include the value, so two objects
// only share the target when they agree on it.
type transitionKey struct {
	name  Value
	attrs Attributes
	kind  StorageKind
	value Value
}

// TransitionAddProperty returns the shape reached from s by adding a field
// property. Equal requests on the same shape return the same target.
func (h *Heap) TransitionAddProperty(s *Shape, name Value, attrs Attributes) (*Shape, error) {
	return h.transition(s, transitionKey{name: name, attrs: attrs, kind: InObjectField})
}

// TransitionAddConstant returns the shape reached by adding a property
// whose value is held by the descriptor.
func (h *Heap) TransitionAddConstant(s *Shape, name, value Value, attrs Attributes) (*Shape, error) {
	return h.transition(s, transitionKey{name: name, attrs: attrs, kind: Constant, value: value})
}

// TransitionAddAccessor returns the shape reached by adding an accessor
// property backed by pair.
func (h *Heap) TransitionAddAccessor(s *Shape, name, pair Value, attrs Attributes) (*Shape, error) {
	h.expect(pair, AccessorPairType, "TransitionAddAccessor")
	return h.transition(s, transitionKey{name: name, attrs: attrs, kind: Accessor, value: pair})
}

func (h *Heap) transition(s *Shape, key transitionKey) (*Shape, error) {
	if s.dictionary {
		invariant(CodeShapeMismatch, "transition from dictionary-mode %s", s)
	}
	name, err := h.propertyKey(key.name)
	if err != nil {
		return nil, err
	}
	key.name = name
	if t, ok := s.transitions[key]; ok {
		return t, nil
	}
	h.check(h.LookupDescriptor(s.descriptors, key.name) < 0, CodeShapeMismatch,
		"transition adds existing property %q to %s", h.StringValue(key.name), s)

	d := Descriptor{Name: key.name, Value: key.value, Field: -1, hash: h.StringHash(key.name)}
	kind := key.kind
	if kind == InObjectField {
		d.Field = s.descriptors.fields
		if d.Field >= s.inObject {
			kind = OutOfLineField
		}
		d.Value = 0
	}
	d.Details = NewPropertyDetails(key.attrs, kind, s.descriptors.Len()+1)

	tmpl := *s
	tmpl.descriptors = h.withAdded(s.descriptors, d)
	tmpl.parent = s
	child, err := h.newShape(tmpl)
	if err != nil {
		return nil, err
	}
	if s.transitions == nil {
		s.transitions = make(map[transitionKey]*Shape)
	}
	s.transitions[key] = child
	return child, nil
}

// Transitions lists the outgoing edges of s as Transition descriptors, in
// name hash order. Field is the target shape id.
func (h *Heap) Transitions(s *Shape) []Descriptor {
	out := make([]Descriptor, 0, len(s.transitions))
	for key, target := range s.transitions {
		out = append(out, Descriptor{
			Name:    key.name,
			Details: NewPropertyDetails(key.attrs, Transition, 0),
			Field:   target.id,
			Value:   key.value,
			hash:    h.StringHash(key.name),
		})
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		if a.hash != b.hash {
			if a.hash < b.hash {
				return -1
			}
			return 1
		}
		return a.Field - b.Field
	})
	return out
}

// TransitionTree walks every shape reachable from root by transitions,
// root first.
func (h *Heap) TransitionTree(root *Shape) iter.Seq[*Shape] {
	return func(yield func(*Shape) bool) {
		stack := []*Shape{root}
		for len(stack) > 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(s) {
				return
			}
			for _, d := range h.Transitions(s) {
				stack = append(stack, h.shapes[d.Field])
			}
		}
	}
}
