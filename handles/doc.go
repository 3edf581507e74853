// Package handles implements the root registry: long-lived slots that
// hold heap values on behalf of code outside the heap, and the weak
// reference protocol a collector drives through them.
//
// This package contains:
//   - Slot, a fixed-address cell with a small state machine
//   - Registry, which pools slots in blocks and keeps a free list
//   - The two-pass weak protocol (identify, then post-process)
//   - Object groups and implicit references that extend reachability
//   - RunMarkCycle, which drives one mark-only cycle over a heap.Heap
//
// A Registry is single-threaded and belongs to exactly one heap.
// Finalizers run during post-processing and may create, destroy or
// revive slots, or start another cycle.
package handles
