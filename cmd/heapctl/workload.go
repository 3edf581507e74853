package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
)

// workload allocates a seeded mix of objects, arrays, strings and numbers
// and holds some of them through strong and weak handles.
type workload struct {
	h   *heap.Heap
	r   *handles.Registry
	rng *rand.Rand

	names  []heap.Value
	strong []*handles.Slot
	last   heap.Value

	allocated int
	finalized int
	revived   int
}

const workloadNames = 48

func newWorkload(h *heap.Heap, r *handles.Registry, seed uint64) (*workload, error) {
	w := &workload{h: h, r: r, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), last: h.Null()}
	for i := range workloadNames {
		name, err := h.Intern(fmt.Sprintf("k%d", i))
		if err != nil {
			return nil, err
		}
		w.names = append(w.names, name)
	}
	return w, nil
}

// round allocates n values, then releases about a quarter of the strong
// handles. An allocation failure is returned as is.
func (w *workload) round(n int) error {
	for range n {
		v, err := w.allocate()
		if err != nil {
			return err
		}
		w.allocated++
		w.hold(v)
	}
	kept := w.strong[:0]
	for _, s := range w.strong {
		if w.rng.IntN(4) == 0 {
			w.r.Destroy(s)
			continue
		}
		kept = append(kept, s)
	}
	clear(w.strong[len(kept):])
	w.strong = kept
	return nil
}

func (w *workload) allocate() (heap.Value, error) {
	h := w.h
	switch w.rng.IntN(5) {
	case 0, 1:
		obj, err := h.NewObject(h.Null())
		if err != nil {
			return 0, err
		}
		for range w.rng.IntN(10) {
			name := w.names[w.rng.IntN(len(w.names))]
			if err := h.SetProperty(obj, name, heap.FromInt(w.rng.Int64N(1000))); err != nil {
				return 0, err
			}
		}
		// Chain objects so that some are only reachable through others.
		if w.rng.IntN(2) == 0 {
			if err := h.SetProperty(obj, w.names[0], w.last); err != nil {
				return 0, err
			}
		}
		w.last = obj
		return obj, nil
	case 2:
		arr, err := h.NewArray(h.Null(), 4)
		if err != nil {
			return 0, err
		}
		stride := uint32(1 + w.rng.IntN(3000))
		for i := range uint32(w.rng.IntN(8)) {
			if err := h.SetElement(arr, i*stride, heap.FromInt(int64(i))); err != nil {
				return 0, err
			}
		}
		return arr, nil
	case 3:
		return h.NewString(fmt.Sprintf("str-%d", w.rng.Uint32()), heap.NotTenured)
	default:
		return h.NumberFromFloat(w.rng.Float64() * 1e6)
	}
}

// hold decides how v is referenced from outside the heap.
func (w *workload) hold(v heap.Value) {
	switch p := w.rng.IntN(10); {
	case p < 3:
		w.strong = append(w.strong, w.r.Create(v))
	case p < 6:
		s := w.r.Create(v)
		w.r.MakeWeak(s, nil, w.finalize)
		if p == 5 {
			w.r.SetWrapperClassID(s, uint16(1+w.rng.IntN(3)))
		}
	case p < 7:
		w.r.MakeWeak(w.r.Create(v), nil, nil)
	}
}

// finalize revives a third of the handles it sees and destroys the rest.
func (w *workload) finalize(r *handles.Registry, s *handles.Slot, _ any) {
	w.finalized++
	if w.rng.IntN(3) == 0 {
		r.ClearWeakness(s)
		w.strong = append(w.strong, s)
		w.revived++
		return
	}
	r.Destroy(s)
}
