package handles

import "github.com/chazu/protoheap/heap"

// ---------------------------------------------------------------------------
// Object groups and implicit references
// ---------------------------------------------------------------------------

// Groups are declared by the embedder before each mark phase and consumed
// by it. They never outlive the cycle they were added for.

// RetainedInfo describes the embedder object behind a group. Dispose is
// called when the group is dropped.
type RetainedInfo interface {
	Dispose()
}

// ObjectGroup is a set of slots whose values live or die together.
type ObjectGroup struct {
	Slots []*Slot
	Info  RetainedInfo
}

// ImplicitRefGroup declares that Parent's value keeps the children's
// values alive.
type ImplicitRefGroup struct {
	Parent   *Slot
	Children []*Slot
}

// AddObjectGroup declares that the values of slots share a fate. An empty
// group is dropped immediately.
func (r *Registry) AddObjectGroup(slots []*Slot, info RetainedInfo) {
	r.checkAlive()
	if len(slots) == 0 {
		if info != nil {
			info.Dispose()
		}
		return
	}
	r.objectGroups = append(r.objectGroups, &ObjectGroup{Slots: slots, Info: info})
}

// AddImplicitReferences declares that parent keeps children alive.
func (r *Registry) AddImplicitReferences(parent *Slot, children []*Slot) {
	r.checkAlive()
	if len(children) == 0 {
		return
	}
	r.implicitRefs = append(r.implicitRefs, &ImplicitRefGroup{Parent: parent, Children: children})
}

// ObjectGroups returns the groups declared for this cycle.
func (r *Registry) ObjectGroups() []*ObjectGroup { return r.objectGroups }

// ImplicitRefGroups returns the implicit references declared for this
// cycle.
func (r *Registry) ImplicitRefGroups() []*ImplicitRefGroup { return r.implicitRefs }

// ProcessObjectGroups marks every member of each group that has at least
// one marked member, then drops that group. It reports whether anything
// was marked. Unmarked groups stay for the next round.
func (r *Registry) ProcessObjectGroups(isMarked func(heap.Value) bool, mark func(heap.Value)) bool {
	changed := false
	kept := r.objectGroups[:0]
	for _, g := range r.objectGroups {
		live := false
		for _, s := range g.Slots {
			if s.state != Destroyed && isMarked(s.value) {
				live = true
				break
			}
		}
		if !live {
			kept = append(kept, g)
			continue
		}
		for _, s := range g.Slots {
			if s.state != Destroyed && !isMarked(s.value) {
				mark(s.value)
				changed = true
			}
		}
		if g.Info != nil {
			g.Info.Dispose()
		}
	}
	clear(r.objectGroups[len(kept):])
	r.objectGroups = kept
	return changed
}

// ProcessImplicitReferences marks the children of every group whose
// parent is marked, then drops that group. It reports whether anything was
// marked.
func (r *Registry) ProcessImplicitReferences(isMarked func(heap.Value) bool, mark func(heap.Value)) bool {
	changed := false
	kept := r.implicitRefs[:0]
	for _, g := range r.implicitRefs {
		if g.Parent.state == Destroyed || !isMarked(g.Parent.value) {
			kept = append(kept, g)
			continue
		}
		for _, s := range g.Children {
			if s.state != Destroyed && !isMarked(s.value) {
				mark(s.value)
				changed = true
			}
		}
	}
	clear(r.implicitRefs[len(kept):])
	r.implicitRefs = kept
	return changed
}

// RemoveObjectGroups drops every remaining object group.
func (r *Registry) RemoveObjectGroups() {
	for _, g := range r.objectGroups {
		if g.Info != nil {
			g.Info.Dispose()
		}
	}
	r.objectGroups = nil
}

// RemoveImplicitRefGroups drops every remaining implicit reference group.
func (r *Registry) RemoveImplicitRefGroups() {
	r.implicitRefs = nil
}
