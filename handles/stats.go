package handles

import (
	"fmt"
	"io"
)

// Stats counts linked slots per state and describes the pool.
type Stats struct {
	Total     int
	Normal    int
	Weak      int
	Pending   int
	NearDeath int
	Destroyed int

	Free           int // free list length
	Blocks         int
	Decommissioned int
}

// RecordStats walks the live chain and the pool.
func (r *Registry) RecordStats() Stats {
	var st Stats
	for s := r.head; s != nil; s = s.next {
		st.Total++
		switch s.state {
		case Normal:
			st.Normal++
		case Weak:
			st.Weak++
		case Pending:
			st.Pending++
		case NearDeath:
			st.NearDeath++
		case Destroyed:
			st.Destroyed++
		}
	}
	for s := r.firstFree; s != nil; s = s.nextFree {
		st.Free++
	}
	st.Blocks = len(r.pool.blocks)
	st.Decommissioned = len(r.pool.decommissioned)
	return st
}

// Print writes the statistics in a short table.
func (st Stats) Print(w io.Writer) {
	fmt.Fprintf(w, "handles:\n")
	fmt.Fprintf(w, "  # normal     = %d\n", st.Normal)
	fmt.Fprintf(w, "  # weak       = %d\n", st.Weak)
	fmt.Fprintf(w, "  # pending    = %d\n", st.Pending)
	fmt.Fprintf(w, "  # near_death = %d\n", st.NearDeath)
	fmt.Fprintf(w, "  # destroyed  = %d\n", st.Destroyed)
	fmt.Fprintf(w, "  # total      = %d\n", st.Total)
	fmt.Fprintf(w, "  free list %d, blocks %d (%d decommissioned)\n", st.Free, st.Blocks, st.Decommissioned)
}
