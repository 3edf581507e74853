package main

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
	"github.com/chazu/protoheap/manifest"
)

type stressOptions struct {
	heaps   int
	rounds  int
	objects int
	jobs    int
	seed    uint64
}

// stressResult is the outcome of one heap's run.
type stressResult struct {
	heap      int
	seed      uint64
	rounds    int
	allocated int
	finalized int
	revived   int
	exhausted bool
	handles   handles.Stats
	usedBytes int
	duration  time.Duration
}

func newStressCmd(a *app) *cobra.Command {
	var opts stressOptions
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a seeded workload on independent heaps in parallel",
		Long: `stress gives each heap its own registry and goroutine. Every round
allocates values, holds some of them through strong and weak handles, runs a
mark cycle and verifies the heap. A heap stops early when a space is full.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := runStress(cmd.Context(), a.manifest, opts)
			if err != nil {
				return err
			}
			printStressResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.heaps, "heaps", 4, "number of independent heaps")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 20, "mark cycles per heap")
	cmd.Flags().IntVar(&opts.objects, "objects", 200, "values allocated per round")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "heaps run at once (0 means GOMAXPROCS)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "seed of the first heap; heap i uses seed+i")
	return cmd
}

// runStress runs one workload per heap. Heaps share nothing, so each runs
// on its own goroutine. The first verification failure cancels the rest.
func runStress(ctx context.Context, m *manifest.Manifest, opts stressOptions) ([]stressResult, error) {
	if opts.heaps < 1 || opts.rounds < 1 || opts.objects < 1 {
		return nil, fmt.Errorf("heaps, rounds and objects must be positive")
	}
	jobs := opts.jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Indices are unique per goroutine, no lock needed.
	results := make([]stressResult, opts.heaps)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, opts.heaps))
	for i := range opts.heaps {
		g.Go(func() error {
			res, err := stressHeap(gctx, m, i, opts.seed+uint64(i), opts)
			if err != nil {
				return fmt.Errorf("heap %d (seed %d): %w", i, opts.seed+uint64(i), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func stressHeap(ctx context.Context, m *manifest.Manifest, index int, seed uint64, opts stressOptions) (stressResult, error) {
	start := time.Now()
	res := stressResult{heap: index, seed: seed}

	h, err := heap.New(m.HeapConfig())
	if err != nil {
		return res, err
	}
	defer h.TearDown()
	r, err := handles.NewRegistry(m.HandlesConfig())
	if err != nil {
		return res, err
	}
	defer r.TearDown()

	w, err := newWorkload(h, r, seed)
	if err != nil {
		return res, err
	}
	for range opts.rounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := w.round(opts.objects); err != nil {
			if f, ok := heap.AsFailure(err); ok && f.IsRetryAfterGC() {
				log.Noticef("heap %d: %s full after %d rounds", index, f.Space(), res.rounds)
				res.exhausted = true
				break
			}
			return res, err
		}
		handles.RunMarkCycle(h, r, handles.CycleOptions{})
		if err := h.Verify(); err != nil {
			return res, fmt.Errorf("round %d: %w", res.rounds, err)
		}
		res.rounds++
	}

	res.allocated = w.allocated
	res.finalized = w.finalized
	res.revived = w.revived
	res.handles = r.RecordStats()
	st := h.Stats()
	for _, space := range heap.AllSpaces {
		res.usedBytes += st.Used[space]
	}
	res.duration = time.Since(start)
	log.Infof("heap %d: %d rounds, %d values, %d finalized in %s", index, res.rounds, res.allocated, res.finalized, res.duration)
	return res, nil
}

func printStressResults(cmd *cobra.Command, results []stressResult) {
	w := cmd.OutOrStdout()
	rows := [][]string{{"HEAP", "SEED", "ROUNDS", "VALUES", "FINALIZED", "REVIVED", "LIVE", "WEAK", "USED", "TIME", ""}}
	for _, res := range results {
		note := ""
		if res.exhausted {
			note = "space exhausted"
		}
		live := res.handles.Total - res.handles.Destroyed
		rows = append(rows, []string{
			strconv.Itoa(res.heap),
			strconv.FormatUint(res.seed, 10),
			strconv.Itoa(res.rounds),
			strconv.Itoa(res.allocated),
			strconv.Itoa(res.finalized),
			strconv.Itoa(res.revived),
			strconv.Itoa(live),
			strconv.Itoa(res.handles.Weak),
			strconv.Itoa(res.usedBytes),
			res.duration.Round(time.Millisecond).String(),
			note,
		})
	}
	printTable(w, rows)
}
