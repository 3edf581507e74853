package snapshot

// RetainedSizes returns, for every node reachable from the heap roots and
// strong handles, the bytes that would become unreachable if that node were
// removed: its own size plus the sizes of every node it dominates.
//
// Dominators are computed with the iterative algorithm of Cooper, Harvey
// and Kennedy over a synthetic root that points at every retaining root.
func (s *Snapshot) RetainedSizes() map[uint64]int {
	// Node i of the snapshot is vertex i+1; vertex 0 is the synthetic root.
	n := len(s.Nodes) + 1
	vertex := func(id uint64) (int, bool) {
		if _, ok := s.Node(id); !ok {
			return 0, false
		}
		return s.index[id] + 1, true
	}
	succ := make([][]int, n)
	for _, r := range s.Roots {
		if r.Kind == RootWeakHandle {
			continue
		}
		if v, ok := vertex(r.Target); ok {
			succ[0] = append(succ[0], v)
		}
	}
	for i, node := range s.Nodes {
		for _, e := range node.Edges {
			if v, ok := vertex(e.To); ok {
				succ[i+1] = append(succ[i+1], v)
			}
		}
	}

	post := postorder(succ)
	order := make([]int, n) // vertex -> postorder number, -1 if unreachable
	for i := range order {
		order[i] = -1
	}
	for i, v := range post {
		order[v] = i
	}
	preds := make([][]int, n)
	for v, ws := range succ {
		if order[v] < 0 {
			continue
		}
		for _, w := range ws {
			preds[w] = append(preds[w], v)
		}
	}

	idom := make([]int, n)
	for i := range idom {
		idom[i] = -1
	}
	idom[0] = 0
	intersect := func(a, b int) int {
		for a != b {
			for order[a] < order[b] {
				a = idom[a]
			}
			for order[b] < order[a] {
				b = idom[b]
			}
		}
		return a
	}
	for changed := true; changed; {
		changed = false
		// Reverse postorder, skipping the root.
		for i := len(post) - 2; i >= 0; i-- {
			v := post[i]
			next := -1
			for _, p := range preds[v] {
				if idom[p] < 0 {
					continue
				}
				if next < 0 {
					next = p
				} else {
					next = intersect(p, next)
				}
			}
			if next >= 0 && idom[v] != next {
				idom[v] = next
				changed = true
			}
		}
	}

	retained := make([]int, n)
	for _, v := range post {
		if v != 0 {
			retained[v] += s.Nodes[v-1].Size
		}
	}
	out := make(map[uint64]int)
	// A vertex precedes its dominator in postorder.
	for _, v := range post {
		if v == 0 {
			continue
		}
		retained[idom[v]] += retained[v]
		out[s.Nodes[v-1].ID] = retained[v]
	}
	return out
}

// postorder walks succ depth-first from vertex 0.
func postorder(succ [][]int) []int {
	type frame struct{ v, next int }
	visited := make([]bool, len(succ))
	var out []int
	stack := []frame{{v: 0}}
	visited[0] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(succ[top.v]) {
			w := succ[top.v][top.next]
			top.next++
			if !visited[w] {
				visited[w] = true
				stack = append(stack, frame{v: w})
			}
			continue
		}
		out = append(out, top.v)
		stack = stack[:len(stack)-1]
	}
	return out
}
