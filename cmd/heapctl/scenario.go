package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
	"github.com/chazu/protoheap/manifest"
)

// scenario is a named end-to-end check of the heap.
type scenario struct {
	name string
	desc string
	run  func(m *manifest.Manifest) error
}

var scenarios = []scenario{
	{"shapes", "same property additions share one shape", scenarioShapes},
	{"dictionary", "the fast-property cap moves an object to dictionary mode", scenarioDictionary},
	{"revive", "a finalizer can revive its weak handle", scenarioRevive},
	{"collect", "a weak handle without finalizer is destroyed and freed", scenarioCollect},
	{"overflow", "smi overflow boxes the result", scenarioOverflow},
}

func newScenarioCmd(a *app) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "scenario [name...]",
		Short: "Run the reference heap scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if list {
				for _, s := range scenarios {
					fmt.Fprintf(w, "%-12s %s\n", s.name, s.desc)
				}
				return nil
			}
			selected, err := selectScenarios(args)
			if err != nil {
				return err
			}
			failed := 0
			for _, s := range selected {
				err := s.run(a.manifest)
				detail := s.desc
				if err != nil {
					detail = err.Error()
					failed++
				}
				printStatus(w, err == nil, s.name, detail)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(selected))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list scenarios without running them")
	return cmd
}

func selectScenarios(names []string) ([]scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}
	var out []scenario
	for _, name := range names {
		i := slices.IndexFunc(scenarios, func(s scenario) bool { return s.name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, scenarios[i])
	}
	return out, nil
}

// newHeap creates a heap from the manifest, with optional tweaks.
func newHeap(m *manifest.Manifest, tweak ...func(*heap.Config)) (*heap.Heap, error) {
	cfg := m.HeapConfig()
	for _, f := range tweak {
		f(&cfg)
	}
	return heap.New(cfg)
}

func scenarioShapes(m *manifest.Manifest) error {
	h, err := newHeap(m, func(c *heap.Config) { c.InObjectProperties = max(c.InObjectProperties, 2) })
	if err != nil {
		return err
	}
	defer h.TearDown()

	a, err := h.Intern("a")
	if err != nil {
		return err
	}
	b, err := h.Intern("b")
	if err != nil {
		return err
	}
	build := func() (*heap.Shape, error) {
		obj, err := h.NewObject(h.Null())
		if err != nil {
			return nil, err
		}
		for i, name := range []heap.Value{a, b} {
			if err := h.SetProperty(obj, name, heap.FromInt(int64(i))); err != nil {
				return nil, err
			}
		}
		return h.ShapeOf(obj), nil
	}
	first, err := build()
	if err != nil {
		return err
	}
	ordered := first.Descriptors().Ordered()
	if len(ordered) != 2 || ordered[0].Name != a || ordered[1].Name != b {
		return fmt.Errorf("descriptor order %v, want [a b]", ordered)
	}
	for i, d := range ordered {
		if d.Details.Kind() != heap.InObjectField || d.Field != i {
			return fmt.Errorf("%s stored as %s field %d, want in-object field %d", h.StringValue(d.Name), d.Details.Kind(), d.Field, i)
		}
	}
	second, err := build()
	if err != nil {
		return err
	}
	if second != first {
		return fmt.Errorf("second object has %s, want shared %s", second, first)
	}
	return nil
}

func scenarioDictionary(m *manifest.Manifest) error {
	const limit = 32
	h, err := newHeap(m, func(c *heap.Config) { c.MaxFastProperties = limit })
	if err != nil {
		return err
	}
	defer h.TearDown()

	obj, err := h.NewObject(h.Null())
	if err != nil {
		return err
	}
	names := make([]heap.Value, 200)
	for i := range names {
		if names[i], err = h.Intern(fmt.Sprintf("p%d", i)); err != nil {
			return err
		}
		if err := h.SetProperty(obj, names[i], heap.FromInt(int64(i))); err != nil {
			return fmt.Errorf("adding property %d: %w", i, err)
		}
		if i == limit {
			if h.HasFastProperties(obj) {
				return fmt.Errorf("still fast after %d additions", i+1)
			}
			for j := 0; j <= i; j++ {
				if v, ok := h.GetOwnProperty(obj, names[j]); !ok || v != heap.FromInt(int64(j)) {
					return fmt.Errorf("p%d lost on conversion", j)
				}
			}
		}
	}
	return h.Verify()
}

// weakScenario registers a weak handle on an otherwise unreachable object
// and runs one mark cycle.
func weakScenario(m *manifest.Manifest, fn handles.Finalizer) (*handles.Registry, *handles.Slot, heap.Value, func(), error) {
	h, err := newHeap(m)
	if err != nil {
		return nil, nil, 0, nil, err
	}
	r, err := handles.NewRegistry(m.HandlesConfig())
	if err != nil {
		h.TearDown()
		return nil, nil, 0, nil, err
	}
	cleanup := func() {
		r.TearDown()
		h.TearDown()
	}
	obj, err := h.NewObject(h.Null())
	if err != nil {
		cleanup()
		return nil, nil, 0, nil, err
	}
	s := r.Create(obj)
	r.MakeWeak(s, nil, fn)
	stats := handles.RunMarkCycle(h, r, handles.CycleOptions{})
	if stats.Pending != 1 {
		cleanup()
		return nil, nil, 0, nil, fmt.Errorf("%d handles went pending, want 1", stats.Pending)
	}
	return r, s, obj, cleanup, nil
}

func scenarioRevive(m *manifest.Manifest) error {
	_, s, obj, cleanup, err := weakScenario(m, func(r *handles.Registry, s *handles.Slot, _ any) {
		r.ClearWeakness(s)
	})
	if err != nil {
		return err
	}
	defer cleanup()
	if s.State() != handles.Normal || s.Value() != obj {
		return fmt.Errorf("handle is %s, want normal holding %s", s, obj)
	}
	return nil
}

func scenarioCollect(m *manifest.Manifest) error {
	r, s, _, cleanup, err := weakScenario(m, nil)
	if err != nil {
		return err
	}
	defer cleanup()
	if s.State() != handles.Destroyed {
		return fmt.Errorf("handle is %s, want destroyed", s)
	}
	if r.FirstFree() != s {
		return errors.New("destroyed handle is not the head of the free list")
	}
	return nil
}

func scenarioOverflow(m *manifest.Manifest) error {
	h, err := newHeap(m)
	if err != nil {
		return err
	}
	defer h.TearDown()

	maxSmi := h.SmiRange().Max()
	sum, err := h.SmiAdd(heap.FromInt(maxSmi), heap.FromInt(1))
	if err != nil {
		return err
	}
	if sum.IsSmi() {
		return fmt.Errorf("%d+1 stayed inline", maxSmi)
	}
	if !h.Is(sum, heap.HeapNumberType) {
		return fmt.Errorf("%d+1 is a %s, want a heap number", maxSmi, h.TypeOf(sum))
	}
	if got := h.HeapNumberValue(sum); got != float64(maxSmi)+1 {
		return fmt.Errorf("boxed value %v, want %v", got, float64(maxSmi)+1)
	}
	return nil
}
