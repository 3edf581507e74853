package snapshot

import (
	"cmp"
	"slices"
)

// TypeDelta counts the nodes of one type that appeared or disappeared
// between two snapshots of the same heap. Objects never move, so a node is
// identified by its address.
type TypeDelta struct {
	Type         string
	Added        int
	Removed      int
	AddedBytes   int
	RemovedBytes int
}

// Compare returns the per-type differences from before to after, sorted by
// type name. Types with no change are omitted.
func Compare(before, after *Snapshot) []TypeDelta {
	deltas := make(map[string]*TypeDelta)
	delta := func(typ string) *TypeDelta {
		d := deltas[typ]
		if d == nil {
			d = &TypeDelta{Type: typ}
			deltas[typ] = d
		}
		return d
	}
	for _, n := range after.Nodes {
		if old, ok := before.Node(n.ID); ok && old.Type == n.Type {
			continue
		}
		d := delta(n.Type)
		d.Added++
		d.AddedBytes += n.Size
	}
	for _, n := range before.Nodes {
		if cur, ok := after.Node(n.ID); ok && cur.Type == n.Type {
			continue
		}
		d := delta(n.Type)
		d.Removed++
		d.RemovedBytes += n.Size
	}
	out := make([]TypeDelta, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b TypeDelta) int { return cmp.Compare(a.Type, b.Type) })
	return out
}
