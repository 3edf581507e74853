// Package heap implements the object memory of a prototype-based scripting
// runtime.
//
// This package contains:
//   - Tagged values: inline integers, heap references and failures
//   - Spaces, the word arena and the allocator contract
//   - The header word and the type tag capability table
//   - Shapes, descriptor tables and the transition graph
//   - Fast and dictionary storage for named properties and elements
//   - Write notification, body iteration and a mark-only tracer
//
// A Heap is single-threaded. Allocation failures are returned as Failure
// errors; representation invariant violations panic with *InvariantError.
package heap
