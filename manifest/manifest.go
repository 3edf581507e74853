// Package manifest handles heap.toml configuration.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/protoheap/handles"
	"github.com/chazu/protoheap/heap"
	"github.com/chazu/protoheap/snapshot"
)

// FileName is the name of the configuration file.
const FileName = "heap.toml"

// Manifest represents a heap.toml configuration. Keys left out of the file
// keep their defaults.
type Manifest struct {
	Heap       Heap          `toml:"heap"`
	Properties Properties    `toml:"properties"`
	Elements   Elements      `toml:"elements"`
	Dictionary Dictionary    `toml:"dictionary"`
	Handles    Handles       `toml:"handles"`
	Snapshot   SnapshotStore `toml:"snapshot"`
	Log        Log           `toml:"log"`

	// Dir is the directory containing the heap.toml file (set at load time).
	Dir string `toml:"-"`
}

// Heap configures value representation and space sizes. Sizes are bytes.
type Heap struct {
	SmiBits              uint  `toml:"smi-bits"`
	NewSpaceSize         int   `toml:"new-space-size"`
	OldPointerSpaceSize  int   `toml:"old-pointer-space-size"`
	OldDataSpaceSize     int   `toml:"old-data-space-size"`
	MapSpaceSize         int   `toml:"map-space-size"`
	LargeObjectSpaceSize int   `toml:"large-object-space-size"`
	LargeObjectThreshold int   `toml:"large-object-threshold"`
	DebugChecks          *bool `toml:"debug-checks"`
}

// Properties configures named property storage.
type Properties struct {
	InObject                    *int `toml:"in-object"`
	MaxFast                     int  `toml:"max-fast"`
	FieldsAdded                 int  `toml:"fields-added"`
	DescriptorLinearSearchLimit int  `toml:"descriptor-linear-search-limit"`
	LookupCacheSize             int  `toml:"lookup-cache-size"`
}

// Elements configures indexed element storage.
type Elements struct {
	MaxGap              uint32 `toml:"max-gap"`
	MaxFastIndex        uint32 `toml:"max-fast-index"`
	MaxUncheckedFast    int    `toml:"max-unchecked-fast"`
	MaxUncheckedOldFast int    `toml:"max-unchecked-old-fast"`
	SparseRatio         int    `toml:"sparse-ratio"`
}

// Dictionary configures hash tables.
type Dictionary struct {
	MinCapacity int `toml:"min-capacity"`
}

// Handles configures the root registry.
type Handles struct {
	BlockSize   int   `toml:"block-size"`
	DebugChecks *bool `toml:"debug-checks"`
}

// SnapshotStore configures where heapctl keeps snapshots.
type SnapshotStore struct {
	Store  string `toml:"store"`
	Format string `toml:"format"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Default returns a manifest holding every default.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a heap.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes heap.toml text. Unknown keys are an error.
func Parse(text string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(text, &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a heap.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func orInt[T int | uint | uint32](v *T, def T) {
	if *v == 0 {
		*v = def
	}
}

func orDefault[T any](v **T, def T) {
	if *v == nil {
		*v = &def
	}
}

func (m *Manifest) applyDefaults() {
	d := heap.DefaultConfig()
	orInt(&m.Heap.SmiBits, d.SmiBits)
	orInt(&m.Heap.NewSpaceSize, d.NewSpaceSize)
	orInt(&m.Heap.OldPointerSpaceSize, d.OldPointerSpaceSize)
	orInt(&m.Heap.OldDataSpaceSize, d.OldDataSpaceSize)
	orInt(&m.Heap.MapSpaceSize, d.MapSpaceSize)
	orInt(&m.Heap.LargeObjectSpaceSize, d.LargeObjectSpaceSize)
	orInt(&m.Heap.LargeObjectThreshold, d.LargeObjectThreshold)
	orDefault(&m.Heap.DebugChecks, d.DebugChecks)

	orDefault(&m.Properties.InObject, d.InObjectProperties)
	orInt(&m.Properties.MaxFast, d.MaxFastProperties)
	orInt(&m.Properties.FieldsAdded, d.FieldsAdded)
	orInt(&m.Properties.DescriptorLinearSearchLimit, d.DescriptorLinearSearchLimit)
	orInt(&m.Properties.LookupCacheSize, d.DescriptorLookupCacheSize)

	orInt(&m.Elements.MaxGap, d.MaxElementGap)
	orInt(&m.Elements.MaxFastIndex, d.MaxFastElementsIndex)
	orInt(&m.Elements.MaxUncheckedFast, d.MaxUncheckedFastElements)
	orInt(&m.Elements.MaxUncheckedOldFast, d.MaxUncheckedOldFastElements)
	orInt(&m.Elements.SparseRatio, d.SparseElementsRatio)

	orInt(&m.Dictionary.MinCapacity, d.DictionaryMinCapacity)

	hd := handles.DefaultConfig()
	orInt(&m.Handles.BlockSize, hd.BlockSize)
	orDefault(&m.Handles.DebugChecks, hd.DebugChecks)

	if m.Snapshot.Store == "" {
		m.Snapshot.Store = "snapshots.db"
	}
	if m.Snapshot.Format == "" {
		m.Snapshot.Format = "cbor"
	}
	if m.Log.Level == "" {
		m.Log.Level = "notice"
	}
}

// HeapConfig returns the heap tuning described by m.
func (m *Manifest) HeapConfig() heap.Config {
	return heap.Config{
		SmiBits:                     m.Heap.SmiBits,
		NewSpaceSize:                m.Heap.NewSpaceSize,
		OldPointerSpaceSize:         m.Heap.OldPointerSpaceSize,
		OldDataSpaceSize:            m.Heap.OldDataSpaceSize,
		MapSpaceSize:                m.Heap.MapSpaceSize,
		LargeObjectSpaceSize:        m.Heap.LargeObjectSpaceSize,
		LargeObjectThreshold:        m.Heap.LargeObjectThreshold,
		InObjectProperties:          *m.Properties.InObject,
		MaxFastProperties:           m.Properties.MaxFast,
		FieldsAdded:                 m.Properties.FieldsAdded,
		DescriptorLinearSearchLimit: m.Properties.DescriptorLinearSearchLimit,
		DescriptorLookupCacheSize:   m.Properties.LookupCacheSize,
		DictionaryMinCapacity:       m.Dictionary.MinCapacity,
		MaxElementGap:               m.Elements.MaxGap,
		MaxFastElementsIndex:        m.Elements.MaxFastIndex,
		MaxUncheckedFastElements:    m.Elements.MaxUncheckedFast,
		MaxUncheckedOldFastElements: m.Elements.MaxUncheckedOldFast,
		SparseElementsRatio:         m.Elements.SparseRatio,
		DebugChecks:                 *m.Heap.DebugChecks,
	}
}

// HandlesConfig returns the registry settings described by m.
func (m *Manifest) HandlesConfig() handles.Config {
	return handles.Config{
		BlockSize:   m.Handles.BlockSize,
		DebugChecks: *m.Handles.DebugChecks,
	}
}

// logLevels maps level names to commonlog verbosity.
var logLevels = map[string]int{
	"none":     -4,
	"critical": -3,
	"error":    -2,
	"warning":  -1,
	"notice":   0,
	"info":     1,
	"debug":    2,
}

// Verbosity returns the commonlog verbosity for the configured level.
func (l Log) Verbosity() int {
	return logLevels[l.Level]
}

// LogPath returns the log file path, or nil for stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) && m.Dir != "" {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}

// StorePath returns the snapshot store path, resolved against Dir.
func (m *Manifest) StorePath() string {
	if filepath.IsAbs(m.Snapshot.Store) || m.Dir == "" || m.Snapshot.Store == ":memory:" {
		return m.Snapshot.Store
	}
	return filepath.Join(m.Dir, m.Snapshot.Store)
}

// Validate reports every inconsistent setting.
func (m *Manifest) Validate() error {
	var errs []error
	if err := m.HeapConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("heap: %w", err))
	}
	if err := m.HandlesConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("handles: %w", err))
	}
	if _, ok := logLevels[m.Log.Level]; !ok {
		errs = append(errs, fmt.Errorf("log: unknown level %q", m.Log.Level))
	}
	if _, err := snapshot.ParseFormat(m.Snapshot.Format); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Encode writes m as heap.toml text.
func (m *Manifest) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(m)
}
