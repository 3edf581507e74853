package handles

import (
	"fmt"
	"slices"

	"github.com/chazu/protoheap/heap"
)

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry owns the slots of one heap. Slots are kept on a live chain in
// reverse creation order; destroyed slots stay on the chain until the
// next post-processing pass unlinks them.
type Registry struct {
	cfg  Config
	pool *pool

	head      *Slot
	firstFree *Slot

	weakCount int

	// processing counts post-processing passes; a pass aborts when a
	// finalizer starts another one.
	processing uint64
	depth      int
	epoch      uint64 // outermost post-processing passes
	freeSeq    uint64

	objectGroups []*ObjectGroup
	implicitRefs []*ImplicitRefGroup

	tornDown bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("handle registry config: %w", err)
	}
	return &Registry{cfg: cfg, pool: newPool(cfg.BlockSize)}, nil
}

// Config returns the registry's settings.
func (r *Registry) Config() Config { return r.cfg }

func (r *Registry) checkAlive() {
	if r.tornDown {
		panic(&ProtocolError{Code: CodeTornDown, Message: "registry used after TearDown"})
	}
}

// Create returns a Normal slot holding v. It reuses a free slot unless a
// post-processing pass is running, then tries the most recently
// decommissioned block, then the current block.
func (r *Registry) Create(v heap.Value) *Slot {
	r.checkAlive()
	var s *Slot
	if r.firstFree != nil && r.depth == 0 {
		s = r.firstFree
		r.firstFree = s.nextFree
	} else {
		s = r.pool.allocate()
	}
	if !s.linked {
		s.next = r.head
		r.head = s
		s.linked = true
	}
	s.initialize(v)
	return s
}

// Destroy releases s. Its memory is not reused until no traversal can
// still be looking at it.
func (r *Registry) Destroy(s *Slot) {
	r.checkAlive()
	r.check(s.state != Destroyed, CodeDestroyed, "Destroy: %s already destroyed", s)
	if s.countsAsWeak() {
		r.weakCount--
	}
	s.state = Destroyed
	s.finalizer = nil
	s.param = nil
	if r.depth > 0 {
		s.diedIn = r.epoch
	}
	s.nextFree = r.firstFree
	r.firstFree = s
	log.Debugf("destroyed %s", s)
}

// MakeWeak makes s weak with a finalizer and its context. A nil finalizer
// means the slot is destroyed outright once its value is unreachable.
func (r *Registry) MakeWeak(s *Slot, param any, fn Finalizer) {
	r.checkAlive()
	r.check(s.state != Destroyed, CodeDestroyed, "MakeWeak: %s is destroyed", s)
	if !s.countsAsWeak() {
		r.weakCount++
	}
	s.state = Weak
	s.param = param
	s.finalizer = fn
	log.Debugf("made weak %s", s)
}

// ClearWeakness returns s to Normal and forgets its finalizer.
func (r *Registry) ClearWeakness(s *Slot) {
	r.checkAlive()
	r.check(s.state != Destroyed, CodeDestroyed, "ClearWeakness: %s is destroyed", s)
	if s.countsAsWeak() {
		r.weakCount--
	}
	s.state = Normal
	s.param = nil
	s.finalizer = nil
	log.Debugf("cleared weakness of %s", s)
}

// SetWrapperClassID tags s with an embedder class id.
func (r *Registry) SetWrapperClassID(s *Slot, id uint16) {
	r.check(s.state != Destroyed, CodeDestroyed, "SetWrapperClassID: %s is destroyed", s)
	s.classID = id
}

// WeakCount returns the number of slots that are Weak, Pending or
// NearDeath.
func (r *Registry) WeakCount() int { return r.weakCount }

// FirstFree returns the head of the free list, or nil.
func (r *Registry) FirstFree() *Slot { return r.firstFree }

// ---------------------------------------------------------------------------
// Root iteration
// ---------------------------------------------------------------------------

func (r *Registry) each(want func(*Slot) bool, visit func(*heap.Value)) {
	for s := r.head; s != nil; s = s.next {
		if want(s) {
			visit(&s.value)
		}
	}
}

// IterateStrongRoots visits the values of Normal slots.
func (r *Registry) IterateStrongRoots(visit func(*heap.Value)) {
	r.each(func(s *Slot) bool { return s.state == Normal }, visit)
}

// IterateWeakRoots visits the values of Weak, Pending and NearDeath slots.
func (r *Registry) IterateWeakRoots(visit func(*heap.Value)) {
	r.each((*Slot).countsAsWeak, visit)
}

// IterateAllRoots visits every slot that is not destroyed.
func (r *Registry) IterateAllRoots(visit func(*heap.Value)) {
	r.each(func(s *Slot) bool { return s.state != Destroyed }, visit)
}

// IterateAllRootsWithClassIDs visits slots carrying a wrapper class id that
// can still retain their value.
func (r *Registry) IterateAllRootsWithClassIDs(visit func(*heap.Value, uint16)) {
	for s := r.head; s != nil; s = s.next {
		if s.classID != NoClassID && s.canBeRetainer() {
			visit(&s.value, s.classID)
		}
	}
}

// Slots returns the linked slots in chain order.
func (r *Registry) Slots() []*Slot {
	var out []*Slot
	for s := r.head; s != nil; s = s.next {
		out = append(out, s)
	}
	return out
}

// ---------------------------------------------------------------------------
// Weak protocol
// ---------------------------------------------------------------------------

// IdentifyWeakHandles moves every Weak slot whose value the collector
// reports unreachable to Pending. It runs during the mark phase.
func (r *Registry) IdentifyWeakHandles(isUnreachable func(heap.Value) bool) int {
	r.checkAlive()
	n := 0
	for s := r.head; s != nil; s = s.next {
		if s.state == Weak && isUnreachable(s.value) {
			s.state = Pending
			n++
			log.Debugf("pending %s", s)
		}
	}
	return n
}

// PostGarbageCollectionProcessing runs the finalizers of Pending slots,
// destroys Pending slots without one, and unlinks destroyed slots. It
// reports whether the next collection is likely to reclaim more.
//
// A finalizer may start another pass. The outer pass notices the changed
// pass count and stops instead of walking a chain it no longer owns.
func (r *Registry) PostGarbageCollectionProcessing() bool {
	r.checkAlive()
	r.processing++
	pass := r.processing
	if r.depth == 0 {
		r.epoch++
	}
	r.depth++
	defer func() {
		r.depth--
		if r.depth == 0 {
			r.reclaim()
		}
	}()

	// link is re-read after every finalizer: a slot created by one is
	// pushed at the head and may now sit where the finalized slot was.
	likely := false
	link := &r.head
	for *link != nil {
		if r.finalize(*link) && pass != r.processing {
			log.Debugf("post-processing pass %d aborted by a nested pass", pass)
			break
		}
		s := *link
		if s.state != Destroyed {
			link = &s.next
			continue
		}
		*link = s.next
		s.next = nil
		s.linked = false
		r.freeSeq++
		s.freedAt = r.freeSeq
		likely = true
	}
	return likely
}

// finalize handles one slot. It reports whether a finalizer ran.
func (r *Registry) finalize(s *Slot) bool {
	if s.state != Pending {
		return false
	}
	fn := s.finalizer
	if fn == nil {
		r.weakCount--
		s.state = Destroyed
		s.param = nil
		s.diedIn = r.epoch
		log.Debugf("destroyed unreachable %s", s)
		return false
	}
	param := s.param
	s.state = NearDeath
	s.param = nil
	log.Debugf("finalizing %s", s)
	fn(r, s, param)
	if s.state == NearDeath {
		if r.cfg.DebugChecks {
			panic(&ProtocolError{Code: CodeLeftNearDeath, Message: fmt.Sprintf("finalizer left %s near death", s)})
		}
		log.Errorf("finalizer left %s near death, destroying it", s)
		r.weakCount--
		s.state = Destroyed
		s.finalizer = nil
		s.diedIn = r.epoch
	}
	return true
}

// reclaim rebuilds the free list from unlinked destroyed slots and
// decommissions blocks with nothing left in them. The current block is
// never decommissioned, nor is a block holding a slot this pass destroyed.
func (r *Registry) reclaim() {
	var free []*Slot
	for _, b := range r.pool.blocks {
		if b != r.pool.current && b.used > 0 && b.reclaimable() && !b.destroyedIn(r.epoch) {
			r.pool.decommission(b)
			log.Debugf("decommissioned a block of %d slots", len(b.slots))
			continue
		}
		for i := range b.used {
			if s := &b.slots[i]; s.state == Destroyed && !s.linked {
				free = append(free, s)
			}
		}
	}
	slices.SortFunc(free, func(a, b *Slot) int {
		switch {
		case a.freedAt < b.freedAt:
			return -1
		case a.freedAt > b.freedAt:
			return 1
		default:
			return 0
		}
	})
	r.firstFree = nil
	for _, s := range free {
		s.nextFree = r.firstFree
		r.firstFree = s
	}
}

// TearDown drops every slot and block. The registry cannot be used
// afterwards.
func (r *Registry) TearDown() {
	if r.tornDown {
		return
	}
	r.head = nil
	r.firstFree = nil
	r.RemoveObjectGroups()
	r.RemoveImplicitRefGroups()
	r.pool.release()
	r.tornDown = true
}
