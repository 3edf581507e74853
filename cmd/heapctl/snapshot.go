package main

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
	"github.com/chazu/protoheap/snapshot"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Take, store and compare heap snapshots",
	}
	cmd.AddCommand(
		newSnapshotTakeCmd(a),
		newSnapshotListCmd(a),
		newSnapshotShowCmd(a),
		newSnapshotDiffCmd(a),
		newSnapshotHistoryCmd(a),
		newSnapshotExportCmd(a),
		newSnapshotRemoveCmd(a),
	)
	return cmd
}

// withStore opens the configured store for the duration of fn.
func (a *app) withStore(fn func(st *snapshot.Store) error) error {
	st, err := snapshot.OpenStore(a.manifest.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snapshot id %q", arg)
	}
	return id, nil
}

func newSnapshotTakeCmd(a *app) *cobra.Command {
	var (
		title   string
		rounds  int
		objects int
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Run the seeded workload and store a snapshot after every mark cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := snapshot.ParseFormat(a.manifest.Snapshot.Format)
			if err != nil {
				return err
			}
			h, err := heap.New(a.manifest.HeapConfig())
			if err != nil {
				return err
			}
			defer h.TearDown()
			r, err := handles.NewRegistry(a.manifest.HandlesConfig())
			if err != nil {
				return err
			}
			defer r.TearDown()
			wl, err := newWorkload(h, r, seed)
			if err != nil {
				return err
			}

			return a.withStore(func(st *snapshot.Store) error {
				for i := range rounds {
					if err := wl.round(objects); err != nil {
						return err
					}
					handles.RunMarkCycle(h, r, handles.CycleOptions{})
					s := snapshot.Take(h, r, fmt.Sprintf("%s #%d", title, i+1))
					id, err := st.Save(cmd.Context(), s, format)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d  %s  %d objects, %d bytes, %d reachable\n",
						id, s.Title, s.Summary.Objects, s.Summary.Bytes, s.Summary.Reachable)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "workload", "snapshot title prefix")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "workload rounds, one snapshot each")
	cmd.Flags().IntVar(&objects, "objects", 200, "values allocated per round")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "workload seed")
	return cmd
}

func newSnapshotListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(st *snapshot.Store) error {
				entries, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{{"ID", "TITLE", "TAKEN", "FORMAT", "OBJECTS", "BYTES"}}
				for _, e := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(e.ID, 10),
						e.Title,
						e.TakenAt.Format(time.DateTime),
						e.Format.String(),
						strconv.Itoa(e.Objects),
						strconv.Itoa(e.Bytes),
					})
				}
				printTable(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
}

func newSnapshotShowCmd(a *app) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Summarize a snapshot and list its largest retainers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(st *snapshot.Store) error {
				s, err := st.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				printSnapshot(cmd, s, top)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of retainers to list")
	return cmd
}

func printSnapshot(cmd *cobra.Command, s *snapshot.Snapshot, top int) {
	w := cmd.OutOrStdout()
	sum := s.Summary
	printTitle(w, "%s (%s)", s.Title, s.Time().Format(time.DateTime))
	fmt.Fprintf(w, "%d objects, %d bytes; %d reachable objects, %d bytes; %d roots\n\n",
		sum.Objects, sum.Bytes, sum.Reachable, sum.ReachableBytes, len(s.Roots))

	rows := [][]string{{"TYPE", "COUNT", "BYTES"}}
	for _, ts := range sum.ByType {
		rows = append(rows, []string{ts.Type, strconv.Itoa(ts.Count), strconv.Itoa(ts.Bytes)})
	}
	printTable(w, rows)

	if top <= 0 {
		return
	}
	type retainer struct {
		id   uint64
		size int
	}
	var retainers []retainer
	for id, size := range s.RetainedSizes() {
		retainers = append(retainers, retainer{id, size})
	}
	slices.SortFunc(retainers, func(a, b retainer) int {
		if c := cmp.Compare(b.size, a.size); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	fmt.Fprintln(w)
	rows = [][]string{{"ADDRESS", "TYPE", "SIZE", "RETAINED", "NAME"}}
	for _, r := range retainers[:min(top, len(retainers))] {
		n, _ := s.Node(r.id)
		rows = append(rows, []string{
			fmt.Sprintf("%#x", n.ID), n.Type, strconv.Itoa(n.Size), strconv.Itoa(r.size), n.Name,
		})
	}
	printTable(w, rows)
}

func newSnapshotDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff BEFORE AFTER",
		Short: "Show the objects added and removed between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := parseID(args[0])
			if err != nil {
				return err
			}
			after, err := parseID(args[1])
			if err != nil {
				return err
			}
			return a.withStore(func(st *snapshot.Store) error {
				b, err := st.Load(cmd.Context(), before)
				if err != nil {
					return fmt.Errorf("snapshot %d: %w", before, err)
				}
				aft, err := st.Load(cmd.Context(), after)
				if err != nil {
					return fmt.Errorf("snapshot %d: %w", after, err)
				}
				rows := [][]string{{"TYPE", "ADDED", "REMOVED", "+BYTES", "-BYTES"}}
				for _, d := range snapshot.Compare(b, aft) {
					rows = append(rows, []string{
						d.Type,
						strconv.Itoa(d.Added),
						strconv.Itoa(d.Removed),
						strconv.Itoa(d.AddedBytes),
						strconv.Itoa(d.RemovedBytes),
					})
				}
				printTable(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
}

func newSnapshotHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history TYPE",
		Short: "Show how one object type grew across stored snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(st *snapshot.Store) error {
				samples, err := st.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				rows := [][]string{{"ID", "TAKEN", "COUNT", "BYTES"}}
				for _, ts := range samples {
					rows = append(rows, []string{
						strconv.FormatInt(ts.SnapshotID, 10),
						ts.TakenAt.Format(time.DateTime),
						strconv.Itoa(ts.Count),
						strconv.Itoa(ts.Bytes),
					})
				}
				printTable(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
}

func newSnapshotExportCmd(a *app) *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a stored snapshot to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if format == "" {
				format = a.manifest.Snapshot.Format
			}
			f, err := snapshot.ParseFormat(format)
			if err != nil {
				return err
			}
			return a.withStore(func(st *snapshot.Store) error {
				s, err := st.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				data, err := snapshot.Marshal(s, f)
				if err != nil {
					return err
				}
				if output == "" {
					output = fmt.Sprintf("snapshot-%d.%s", id, f)
				}
				if err := os.WriteFile(output, data, 0644); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default snapshot-ID.FORMAT)")
	cmd.Flags().StringVar(&format, "format", "", "cbor or msgpack (default from config)")
	return cmd
}

func newSnapshotRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID...",
		Short: "Delete stored snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(st *snapshot.Store) error {
				for _, arg := range args {
					id, err := parseID(arg)
					if err != nil {
						return err
					}
					if err := st.Delete(cmd.Context(), id); err != nil {
						return fmt.Errorf("snapshot %d: %w", id, err)
					}
				}
				return nil
			})
		},
	}
}
