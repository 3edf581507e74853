package heap

// Allocator supplies raw storage for heap objects.
//
// AllocateRaw returns a heap reference to sizeInBytes of zeroed storage in
// the requested space, or a RetryAfterGC failure when the space is
// exhausted. It never panics on exhaustion. The returned storage has no
// header; the heap stamps the shape before anything else can observe it.
type Allocator interface {
	AllocateRaw(sizeInBytes int, space AllocationSpace) Value
}

// BumpAllocator allocates linearly from a Memory.
type BumpAllocator struct {
	mem *Memory
}

// NewBumpAllocator creates an allocator over mem.
func NewBumpAllocator(mem *Memory) *BumpAllocator {
	return &BumpAllocator{mem: mem}
}

// AllocateRaw implements Allocator.
func (a *BumpAllocator) AllocateRaw(sizeInBytes int, space AllocationSpace) Value {
	addr, ok := a.mem.allocate(space, sizeInBytes)
	if !ok {
		return RetryAfterGCFailure(space)
	}
	return FromAddress(addr)
}
