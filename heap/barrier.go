package heap

// WriteMode selects whether a store notifies the write barrier.
type WriteMode uint8

const (
	// UpdateWriteBarrier notifies when an old host gains a young reference.
	UpdateWriteBarrier WriteMode = iota
	// SkipWriteBarrier is only valid for hosts allocated in NewSpace since
	// the last collection.
	SkipWriteBarrier
)

// WriteBarrier receives notification that an old-generation host now
// references a young object through slot.
type WriteBarrier interface {
	RecordWrite(host, slot Address, value Value)
}

// RememberedSet is the default WriteBarrier: a deduplicated set of slot
// addresses, drained by the collector.
type RememberedSet struct {
	slots map[Address]struct{}
	order []Address
}

// NewRememberedSet creates an empty set.
func NewRememberedSet() *RememberedSet {
	return &RememberedSet{slots: make(map[Address]struct{})}
}

// RecordWrite implements WriteBarrier.
func (r *RememberedSet) RecordWrite(_, slot Address, _ Value) {
	if _, ok := r.slots[slot]; ok {
		return
	}
	r.slots[slot] = struct{}{}
	r.order = append(r.order, slot)
}

// Len returns the number of recorded slots.
func (r *RememberedSet) Len() int {
	return len(r.order)
}

// Contains reports whether slot was recorded.
func (r *RememberedSet) Contains(slot Address) bool {
	_, ok := r.slots[slot]
	return ok
}

// Drain returns the recorded slots in recording order and empties the set.
func (r *RememberedSet) Drain() []Address {
	out := r.order
	r.order = nil
	clear(r.slots)
	return out
}
