package handles

import (
	"time"

	"github.com/chazu/protoheap/heap"
)

// ---------------------------------------------------------------------------
// Mark cycle
// ---------------------------------------------------------------------------

// CycleStats holds statistics from a single mark cycle.
type CycleStats struct {
	Marked     int
	Pending    int  // weak slots found unreachable
	Overflowed bool // the marking stack overflowed at least once
	LikelyMore bool // post-processing destroyed slots
	Handles    Stats
	Duration   time.Duration
	Timestamp  time.Time
}

// CycleOptions tune RunMarkCycle.
type CycleOptions struct {
	// StackLimit bounds the marking stack; zero uses the marker default.
	StackLimit int
	// ExtraRoots are marked along with the heap and strong handle roots.
	ExtraRoots []heap.Value
}

// RunMarkCycle drives one collection cycle over h and r without freeing or
// moving anything:
//
//  1. mark from heap roots, strong handles and extra roots
//  2. extend marking through object groups and implicit references
//  3. move unreachable weak slots to Pending
//  4. mark through weak slots so finalizers see intact objects
//  5. drop the cycle's groups and clear the mark bits
//  6. run post-processing
//
// Finalizers run after the marks are cleared, so they may allocate or
// start another cycle.
func RunMarkCycle(h *heap.Heap, r *Registry, opts CycleOptions) CycleStats {
	start := time.Now()
	stats := CycleStats{Timestamp: start}

	m := heap.NewMarker(h, opts.StackLimit)
	markSlot := func(v *heap.Value) { m.Mark(*v) }
	m.MarkRoots()
	r.IterateStrongRoots(markSlot)
	for _, v := range opts.ExtraRoots {
		m.Mark(v)
	}
	m.Drain()

	for {
		changed := r.ProcessObjectGroups(m.IsMarked, m.Mark)
		changed = r.ProcessImplicitReferences(m.IsMarked, m.Mark) || changed
		if !changed {
			break
		}
		m.Drain()
	}

	stats.Pending = r.IdentifyWeakHandles(func(v heap.Value) bool { return !m.IsMarked(v) })
	r.IterateWeakRoots(markSlot)
	m.Drain()
	stats.Marked = m.MarkedCount()
	stats.Overflowed = m.Overflowed()

	r.RemoveObjectGroups()
	r.RemoveImplicitRefGroups()
	m.ClearMarks()

	stats.LikelyMore = r.PostGarbageCollectionProcessing()
	stats.Handles = r.RecordStats()
	stats.Duration = time.Since(start)
	log.Debugf("mark cycle: %d marked, %d pending, %d live handles", stats.Marked, stats.Pending, stats.Handles.Total-stats.Handles.Destroyed)
	return stats
}
