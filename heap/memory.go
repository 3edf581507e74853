package heap

// Memory is the backing store of a managed heap: one bump-allocated word
// slab per space. Slabs grow lazily up to their configured capacity and are
// never resized in place once an object lives in them; growth appends.
type Memory struct {
	spaces [numSpaces]spaceMemory
}

type spaceMemory struct {
	words    []uint64
	top      int // next free word index
	capacity int // in words
}

// firstWord is skipped in every space so that offset 0 never names an object.
const firstWord = 1

// NewMemory creates a memory with the given per-space byte capacities.
func NewMemory(capacities [numSpaces]int) *Memory {
	m := &Memory{}
	for i := range m.spaces {
		words := capacities[i] / PointerSize
		m.spaces[i] = spaceMemory{
			words:    make([]uint64, firstWord, min(words, 1024)+firstWord),
			top:      firstWord,
			capacity: words + firstWord,
		}
	}
	return m
}

// allocate reserves size bytes in space and returns the address of the
// zeroed block, or false if the space is exhausted.
func (m *Memory) allocate(space AllocationSpace, size int) (Address, bool) {
	sm := &m.spaces[space]
	n := (size + alignMask) / PointerSize
	if sm.top+n > sm.capacity {
		return nullAddress, false
	}
	start := sm.top
	sm.top += n
	if sm.top > len(sm.words) {
		if sm.top > cap(sm.words) {
			grown := make([]uint64, len(sm.words), min(max(2*cap(sm.words), sm.top), sm.capacity))
			copy(grown, sm.words)
			sm.words = grown
		}
		sm.words = sm.words[:sm.top]
	}
	return makeAddress(space, uint64(start*PointerSize)), true
}

func (m *Memory) index(a Address) (*spaceMemory, int) {
	space := a.Space()
	if space >= numSpaces || !a.IsAligned() {
		invariant(CodeBadAddress, "Memory: invalid address %s", a)
	}
	sm := &m.spaces[space]
	i := int(a.Offset() / PointerSize)
	if i < firstWord || i >= sm.top {
		invariant(CodeBadAddress, "Memory: address %s outside allocated region", a)
	}
	return sm, i
}

// Word reads the raw word at a.
func (m *Memory) Word(a Address) uint64 {
	sm, i := m.index(a)
	return sm.words[i]
}

// SetWord writes the raw word at a.
func (m *Memory) SetWord(a Address, w uint64) {
	sm, i := m.index(a)
	sm.words[i] = w
}

// Contains reports whether a lies inside the allocated part of its space.
func (m *Memory) Contains(a Address) bool {
	space := a.Space()
	if space >= numSpaces || !a.IsAligned() {
		return false
	}
	i := int(a.Offset() / PointerSize)
	return i >= firstWord && i < m.spaces[space].top
}

// Start returns the address of the first object in space.
func (m *Memory) Start(space AllocationSpace) Address {
	return makeAddress(space, firstWord*PointerSize)
}

// Top returns the address one past the last allocated word in space.
func (m *Memory) Top(space AllocationSpace) Address {
	return makeAddress(space, uint64(m.spaces[space].top*PointerSize))
}

// Used returns the allocated byte count of space.
func (m *Memory) Used(space AllocationSpace) int {
	return (m.spaces[space].top - firstWord) * PointerSize
}

// Capacity returns the byte capacity of space.
func (m *Memory) Capacity(space AllocationSpace) int {
	return (m.spaces[space].capacity - firstWord) * PointerSize
}

// Release drops every slab.
func (m *Memory) Release() {
	for i := range m.spaces {
		m.spaces[i] = spaceMemory{}
	}
}
