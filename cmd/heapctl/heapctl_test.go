package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/protoheap/manifest"
	"github.com/chazu/protoheap/snapshot"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// writeConfig writes a heap.toml into a fresh directory and returns it.
func writeConfig(t *testing.T, text string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// run executes heapctl with args against the config in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", dir, "--color", "off"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestScenariosPass(t *testing.T) {
	m := manifest.Default()
	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			if err := s.run(m); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestScenariosPassWithNarrowConfig(t *testing.T) {
	m, err := manifest.Parse(`
[heap]
smi-bits = 16
[properties]
in-object = 0
[elements]
max-fast-index = 16384
[handles]
block-size = 1
`)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range scenarios {
		if err := s.run(m); err != nil {
			t.Errorf("%s: %v", s.name, err)
		}
	}
}

func TestScenarioCommand(t *testing.T) {
	dir := writeConfig(t, "")
	out, err := run(t, dir, "scenario")
	if err != nil {
		t.Fatalf("scenario: %v\n%s", err, out)
	}
	if got := strings.Count(out, "PASS"); got != len(scenarios) {
		t.Errorf("%d passes, want %d:\n%s", got, len(scenarios), out)
	}

	out, err = run(t, dir, "scenario", "overflow", "revive")
	if err != nil || strings.Count(out, "PASS") != 2 {
		t.Errorf("selected scenarios: %v\n%s", err, out)
	}
	if _, err := run(t, dir, "scenario", "nope"); err == nil || !strings.Contains(err.Error(), `unknown scenario "nope"`) {
		t.Errorf("unknown scenario: %v", err)
	}
	out, err = run(t, dir, "scenario", "--list")
	if err != nil || strings.Count(out, "\n") != len(scenarios) {
		t.Errorf("--list: %v\n%s", err, out)
	}
}

// ---------------------------------------------------------------------------
// Stress
// ---------------------------------------------------------------------------

func TestStressIsDeterministic(t *testing.T) {
	m := manifest.Default()
	opts := stressOptions{heaps: 3, rounds: 4, objects: 60, jobs: 3, seed: 11}
	first, err := runStress(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("runStress: %v", err)
	}
	opts.jobs = 1
	second, err := runStress(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("runStress: %v", err)
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.seed != opts.seed+uint64(i) || a.rounds != opts.rounds {
			t.Errorf("heap %d: seed %d rounds %d", i, a.seed, a.rounds)
		}
		if a.allocated != b.allocated || a.finalized != b.finalized || a.handles != b.handles || a.usedBytes != b.usedBytes {
			t.Errorf("heap %d differs between runs: %+v vs %+v", i, a, b)
		}
		if a.finalized == 0 {
			t.Errorf("heap %d ran no finalizers", i)
		}
	}
	if first[0].allocated == first[1].allocated && first[0].usedBytes == first[1].usedBytes {
		t.Error("different seeds gave identical runs")
	}
}

func TestStressStopsWhenSpaceIsFull(t *testing.T) {
	m, err := manifest.Parse("[heap]\nnew-space-size = 16384\n")
	if err != nil {
		t.Fatal(err)
	}
	results, err := runStress(context.Background(), m, stressOptions{heaps: 2, rounds: 50, objects: 100, seed: 3})
	if err != nil {
		t.Fatalf("runStress: %v", err)
	}
	for _, res := range results {
		if !res.exhausted || res.rounds >= 50 {
			t.Errorf("heap %d: exhausted %v after %d rounds", res.heap, res.exhausted, res.rounds)
		}
	}
}

func TestStressRejectsBadOptions(t *testing.T) {
	if _, err := runStress(context.Background(), manifest.Default(), stressOptions{heaps: 0, rounds: 1, objects: 1}); err == nil {
		t.Error("zero heaps accepted")
	}
}

func TestStressCommand(t *testing.T) {
	dir := writeConfig(t, "")
	out, err := run(t, dir, "stress", "--heaps", "2", "--rounds", "2", "--objects", "20")
	if err != nil {
		t.Fatalf("stress: %v\n%s", err, out)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 || !strings.HasPrefix(lines[0], "HEAP") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// Snapshots and config
// ---------------------------------------------------------------------------

func TestSnapshotCommands(t *testing.T) {
	dir := writeConfig(t, "[snapshot]\nstore = \"snaps.db\"\nformat = \"msgpack\"\n")

	out, err := run(t, dir, "snapshot", "take", "--rounds", "2", "--objects", "40", "--title", "test")
	if err != nil {
		t.Fatalf("take: %v\n%s", err, out)
	}
	if !strings.Contains(out, "test #2") {
		t.Errorf("take output:\n%s", out)
	}

	st, err := snapshot.OpenStore(filepath.Join(dir, "snaps.db"))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := st.List(context.Background())
	st.Close()
	if err != nil || len(entries) != 2 || entries[0].Format != snapshot.Msgpack {
		t.Fatalf("stored entries = %+v, %v", entries, err)
	}

	for _, args := range [][]string{
		{"snapshot", "list"},
		{"snapshot", "show", "1", "--top", "3"},
		{"snapshot", "diff", "1", "2"},
		{"snapshot", "history", "Object"},
	} {
		out, err := run(t, dir, args...)
		if err != nil {
			t.Errorf("%v: %v\n%s", args, err, out)
		}
	}

	out, err = run(t, dir, "snapshot", "show", "1", "--top", "3")
	if err != nil || !strings.Contains(out, "RETAINED") || !strings.Contains(out, "test #1") {
		t.Errorf("show output:\n%s", out)
	}

	export := filepath.Join(t.TempDir(), "one.cbor")
	if _, err := run(t, dir, "snapshot", "export", "1", "-o", export, "--format", "cbor"); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(export)
	if err != nil {
		t.Fatal(err)
	}
	s, err := snapshot.Unmarshal(data, snapshot.CBOR)
	if err != nil || s.Title != "test #1" {
		t.Errorf("exported snapshot %v, %v", s, err)
	}

	if _, err := run(t, dir, "snapshot", "rm", "1"); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if _, err := run(t, dir, "snapshot", "show", "1"); err == nil {
		t.Error("show of a deleted snapshot succeeded")
	}
	if _, err := run(t, dir, "snapshot", "show", "x"); err == nil {
		t.Error("show accepted a bad id")
	}
}

func TestConfigCommands(t *testing.T) {
	dir := writeConfig(t, "[handles]\nblock-size = 77\n")
	out, err := run(t, dir, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "block-size = 77") {
		t.Errorf("config output:\n%s", out)
	}

	fresh := t.TempDir()
	if _, err := run(t, dir, "config", "init", fresh); err != nil {
		t.Fatalf("config init: %v", err)
	}
	m, err := manifest.Load(fresh)
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if m.HeapConfig() != manifest.Default().HeapConfig() {
		t.Error("written config does not hold the defaults")
	}
	if _, err := run(t, dir, "config", "init", fresh); err == nil {
		t.Error("config init overwrote without --force")
	}
	if _, err := run(t, dir, "config", "init", "--force", fresh); err != nil {
		t.Errorf("config init --force: %v", err)
	}
}

func TestSetupRejectsBadFlags(t *testing.T) {
	dir := writeConfig(t, "")
	if _, err := run(t, dir, "--log-level", "loud", "config"); err == nil {
		t.Error("bad log level accepted")
	}
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", dir, "--color", "rainbow", "config"})
	if err := cmd.Execute(); err == nil {
		t.Error("bad color mode accepted")
	}
}
