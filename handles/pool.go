package handles

// ---------------------------------------------------------------------------
// Block pool
// ---------------------------------------------------------------------------

// block is a fixed array of slots handed out in order. Slot addresses
// never change; a block's memory is kept for reuse once every slot in it
// is destroyed and unlinked.
type block struct {
	slots          []Slot
	used           int // slots handed out
	decommissioned bool
}

func newBlock(size int) *block {
	b := &block{slots: make([]Slot, size)}
	for i := range b.slots {
		b.slots[i].block = b
	}
	return b
}

// reclaimable reports whether every handed-out slot is destroyed and off
// the live chain.
func (b *block) reclaimable() bool {
	for i := range b.used {
		s := &b.slots[i]
		if s.state != Destroyed || s.linked {
			return false
		}
	}
	return true
}

// destroyedIn reports whether a slot of b was destroyed by post-processing in
// epoch. Such a block stays put until the next pass so that its slots
// reach the free list first.
func (b *block) destroyedIn(epoch uint64) bool {
	for i := range b.used {
		if b.slots[i].diedIn == epoch {
			return true
		}
	}
	return false
}

func (b *block) reset() {
	for i := range b.slots {
		b.slots[i] = Slot{block: b}
	}
	b.used = 0
}

// pool allocates slots: first from the most recently decommissioned
// block, then from the current block, then from a new one.
type pool struct {
	blockSize      int
	blocks         []*block
	current        *block
	decommissioned []*block // stack, top is most recent
}

func newPool(blockSize int) *pool {
	p := &pool{blockSize: blockSize}
	p.grow()
	return p
}

func (p *pool) grow() {
	b := newBlock(p.blockSize)
	p.blocks = append(p.blocks, b)
	p.current = b
}

func (p *pool) allocate() *Slot {
	if n := len(p.decommissioned); n > 0 {
		b := p.decommissioned[n-1]
		s := &b.slots[b.used]
		b.used++
		if b.used == len(b.slots) {
			b.decommissioned = false
			p.decommissioned = p.decommissioned[:n-1]
		}
		return s
	}
	if p.current.used == len(p.current.slots) {
		p.grow()
	}
	s := &p.current.slots[p.current.used]
	p.current.used++
	return s
}

// decommission resets b and makes it the first choice for allocation.
func (p *pool) decommission(b *block) {
	b.reset()
	if b.decommissioned {
		return
	}
	b.decommissioned = true
	p.decommissioned = append(p.decommissioned, b)
}

func (p *pool) release() {
	p.blocks = nil
	p.current = nil
	p.decommissioned = nil
}
