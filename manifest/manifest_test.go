package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[heap]
smi-bits = 16
new-space-size = 65536
debug-checks = false

[properties]
in-object = 0
max-fast = 6
lookup-cache-size = 128

[elements]
max-gap = 64
max-fast-index = 16384
sparse-ratio = 2

[dictionary]
min-capacity = 16

[handles]
block-size = 32

[snapshot]
store = "snaps/heap.db"
format = "msgpack"

[log]
level = "debug"
file = "heap.log"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.HeapConfig()
	if cfg.SmiBits != 16 {
		t.Errorf("smi bits = %d, want 16", cfg.SmiBits)
	}
	if cfg.NewSpaceSize != 65536 {
		t.Errorf("new space size = %d, want 65536", cfg.NewSpaceSize)
	}
	if cfg.DebugChecks {
		t.Error("heap debug checks = true, want false")
	}
	if cfg.InObjectProperties != 0 || cfg.MaxFastProperties != 6 {
		t.Errorf("property limits = %d/%d, want 0/6", cfg.InObjectProperties, cfg.MaxFastProperties)
	}
	if cfg.DescriptorLookupCacheSize != 128 {
		t.Errorf("lookup cache size = %d, want 128", cfg.DescriptorLookupCacheSize)
	}
	if cfg.MaxElementGap != 64 || cfg.MaxFastElementsIndex != 16384 || cfg.SparseElementsRatio != 2 {
		t.Errorf("elements = %d/%d/%d", cfg.MaxElementGap, cfg.MaxFastElementsIndex, cfg.SparseElementsRatio)
	}
	if cfg.DictionaryMinCapacity != 16 {
		t.Errorf("dictionary min capacity = %d, want 16", cfg.DictionaryMinCapacity)
	}

	hc := m.HandlesConfig()
	if hc.BlockSize != 32 {
		t.Errorf("block size = %d, want 32", hc.BlockSize)
	}
	if hc.DebugChecks != handles.DefaultConfig().DebugChecks {
		t.Error("handles debug checks did not keep its default")
	}

	if got, want := m.StorePath(), filepath.Join(m.Dir, "snaps", "heap.db"); got != want {
		t.Errorf("store path = %q, want %q", got, want)
	}
	if m.Snapshot.Format != "msgpack" {
		t.Errorf("snapshot format = %q, want msgpack", m.Snapshot.Format)
	}
	if m.Log.Verbosity() != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity())
	}
	if p := m.LogPath(); p == nil || *p != filepath.Join(m.Dir, "heap.log") {
		t.Errorf("log path = %v", p)
	}

	if _, err := heap.New(cfg); err != nil {
		t.Errorf("heap from manifest: %v", err)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[handles]
block-size = 64
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := heap.DefaultConfig()
	if got := m.HeapConfig(); got != want {
		t.Errorf("heap config = %+v, want defaults %+v", got, want)
	}
	if m.Snapshot.Format != "cbor" || m.Log.Level != "notice" {
		t.Errorf("snapshot format %q, log level %q", m.Snapshot.Format, m.Log.Level)
	}
	if m.LogPath() != nil {
		t.Error("log path set without a file")
	}
}

func TestDefaultMatchesPackages(t *testing.T) {
	m := Default()
	want := heap.DefaultConfig()
	if got := m.HeapConfig(); got != want {
		t.Errorf("heap config = %+v, want %+v", got, want)
	}
	if got := m.HandlesConfig(); got != handles.DefaultConfig() {
		t.Errorf("handles config = %+v, want %+v", got, handles.DefaultConfig())
	}
	if err := m.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"syntax", "[heap\n", "parse error"},
		{"unknown key", "[heap]\nsmi-width = 3\n", "unknown keys: heap.smi-width"},
		{"unknown section", "[gc]\nenabled = true\n", "unknown keys"},
		{"bad smi width", "[heap]\nsmi-bits = 4\n", "smi bits 4 out of range"},
		{"bad cache size", "[properties]\nlookup-cache-size = 100\n", "not a power of two"},
		{"bad block size", "[handles]\nblock-size = -1\n", "handles:"},
		{"bad level", "[log]\nlevel = \"loud\"\n", `unknown level "loud"`},
		{"bad format", "[snapshot]\nformat = \"json\"\n", `unknown format "json"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := Default()
	m.Handles.BlockSize = 99
	m.Log.Level = "info"
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Parse(buf.String())
	if err != nil {
		t.Fatalf("Parse of encoded manifest: %v\n%s", err, buf.String())
	}
	if got.Handles.BlockSize != 99 || got.Log.Level != "info" {
		t.Errorf("decoded block size %d, level %q", got.Handles.BlockSize, got.Log.Level)
	}
	if got.HeapConfig() != m.HeapConfig() {
		t.Error("heap config changed across encoding")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[handles]\nblock-size = 8\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Handles.BlockSize != 8 {
		t.Errorf("block size = %d, want 8", m.Handles.BlockSize)
	}
	abs, _ := filepath.Abs(root)
	if m.Dir != abs {
		t.Errorf("dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest")
	}
}
