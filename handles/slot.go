package handles

import (
	"fmt"

	"github.com/chazu/protoheap/heap"
)

// ---------------------------------------------------------------------------
// Slot state machine
// ---------------------------------------------------------------------------

// State is the lifecycle state of a slot:
//
//	Normal <-> Weak -> Pending -> NearDeath -> {Normal, Weak, Destroyed}
type State uint8

const (
	Destroyed State = iota // free, or waiting to be unlinked
	Normal                 // strong root
	Weak                   // does not keep its value alive
	Pending                // value found unreachable, finalizer not yet run
	NearDeath              // finalizer running
)

var stateNames = [...]string{"destroyed", "normal", "weak", "pending", "near-death"}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// NoClassID is the wrapper class id of a slot that has none.
const NoClassID uint16 = 0

// Finalizer runs once a weak slot's value has been found unreachable. The
// value is still valid while it runs. It must leave the slot Normal, Weak
// or Destroyed.
type Finalizer func(r *Registry, s *Slot, param any)

// Slot is a registry cell. Its address is stable for the life of the
// registry, so callers hold *Slot as the handle.
type Slot struct {
	value     heap.Value
	state     State
	finalizer Finalizer
	param     any
	classID   uint16

	next     *Slot // live chain
	nextFree *Slot // free list, Destroyed only
	linked   bool  // on the live chain
	freedAt  uint64
	diedIn   uint64 // post-processing epoch that destroyed it, 0 if none
	block    *block
}

func (s *Slot) initialize(v heap.Value) {
	s.value = v
	s.state = Normal
	s.diedIn = 0
	s.finalizer = nil
	s.param = nil
	s.classID = NoClassID
	s.nextFree = nil
}

// Value returns the referenced value.
func (s *Slot) Value() heap.Value { return s.value }

// Location returns the address of the stored value so that a collector can
// update it when the object moves.
func (s *Slot) Location() *heap.Value { return &s.value }

// State returns the slot's state.
func (s *Slot) State() State { return s.state }

// ClassID returns the wrapper class id.
func (s *Slot) ClassID() uint16 { return s.classID }

// Parameter returns the context recorded by MakeWeak.
func (s *Slot) Parameter() any { return s.param }

// IsWeak reports whether the slot is Weak.
func (s *Slot) IsWeak() bool { return s.state == Weak }

// IsNearDeath reports whether the slot's value has been found unreachable.
// Pending counts so that the answer is right while finalizers run.
func (s *Slot) IsNearDeath() bool {
	return s.state == Pending || s.state == NearDeath
}

// canBeRetainer reports whether the slot can keep its value alive for
// snapshot and class id purposes.
func (s *Slot) canBeRetainer() bool {
	return s.state != Destroyed && s.state != NearDeath
}

// countsAsWeak reports whether the slot contributes to the weak count.
func (s *Slot) countsAsWeak() bool {
	return s.state == Weak || s.IsNearDeath()
}

func (s *Slot) String() string {
	return fmt.Sprintf("slot(%s %s)", s.state, s.value)
}
