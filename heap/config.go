package heap

import (
	"errors"
	"fmt"
)

// Config holds the tuning constants of a heap. None of them is a
// correctness contract; they trade memory for speed.
type Config struct {
	// SmiBits is the inline integer width.
	SmiBits uint

	// Space capacities in bytes.
	NewSpaceSize         int
	OldPointerSpaceSize  int
	OldDataSpaceSize     int
	MapSpaceSize         int
	LargeObjectSpaceSize int

	// LargeObjectThreshold is the object size above which allocation
	// goes to the large object space.
	LargeObjectThreshold int

	// InObjectProperties is the in-object slot count of the initial
	// object and array shapes.
	InObjectProperties int

	// MaxFastProperties caps the number of fast named properties before
	// an object is moved to dictionary mode. An object whose shape has
	// more in-object slots than this may use all of them.
	MaxFastProperties int

	// FieldsAdded is the number of spare slots added when the out-of-line
	// property array grows.
	FieldsAdded int

	// DescriptorLinearSearchLimit is the table size below which descriptor
	// search is linear.
	DescriptorLinearSearchLimit int

	// DescriptorLookupCacheSize is the number of (table, name) entries in
	// the descriptor lookup cache. Must be a power of two.
	DescriptorLookupCacheSize int

	// DictionaryMinCapacity is the smallest hash table capacity.
	// Must be a power of two.
	DictionaryMinCapacity int

	// MaxElementGap is the largest hole a store may open past the end of
	// fast elements before they become a dictionary.
	MaxElementGap uint32

	// MaxFastElementsIndex is the first index that cannot live in fast
	// elements.
	MaxFastElementsIndex uint32

	// MaxUncheckedFastElements and MaxUncheckedOldFastElements bound the
	// fast capacity that is never checked for density, for young and old
	// objects respectively.
	MaxUncheckedFastElements    int
	MaxUncheckedOldFastElements int

	// SparseElementsRatio: fast elements become a dictionary when the
	// dictionary would be at least this many times smaller.
	SparseElementsRatio int

	// DebugChecks enables representation invariant assertions.
	DebugChecks bool
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		SmiBits:                     31,
		NewSpaceSize:                4 << 20,
		OldPointerSpaceSize:         16 << 20,
		OldDataSpaceSize:            8 << 20,
		MapSpaceSize:                1 << 20,
		LargeObjectSpaceSize:        64 << 20,
		LargeObjectThreshold:        64 << 10,
		InObjectProperties:          4,
		MaxFastProperties:           12,
		FieldsAdded:                 3,
		DescriptorLinearSearchLimit: 8,
		DescriptorLookupCacheSize:   64,
		DictionaryMinCapacity:       32,
		MaxElementGap:               1024,
		MaxFastElementsIndex:        1 << 24,
		MaxUncheckedFastElements:    5000,
		MaxUncheckedOldFastElements: 500,
		SparseElementsRatio:         3,
		DebugChecks:                 true,
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate reports every inconsistent setting.
func (c Config) Validate() error {
	var errs []error
	if c.SmiBits < 8 || c.SmiBits > MaxSmiBits {
		errs = append(errs, fmt.Errorf("smi bits %d out of range [8, %d]", c.SmiBits, MaxSmiBits))
	}
	sizes := []struct {
		name string
		size int
	}{
		{"new space", c.NewSpaceSize},
		{"old pointer space", c.OldPointerSpaceSize},
		{"old data space", c.OldDataSpaceSize},
		{"map space", c.MapSpaceSize},
		{"large object space", c.LargeObjectSpaceSize},
	}
	for _, sz := range sizes {
		if sz.size <= 0 || sz.size > int(offsetMask) {
			errs = append(errs, fmt.Errorf("%s size %d out of range", sz.name, sz.size))
		}
	}
	if c.LargeObjectThreshold < 16*PointerSize {
		errs = append(errs, fmt.Errorf("large object threshold %d too small", c.LargeObjectThreshold))
	}
	if c.InObjectProperties < 0 || c.MaxFastProperties < 0 || c.FieldsAdded < 1 {
		errs = append(errs, errors.New("property limits must be non-negative and fields added at least 1"))
	}
	if c.DescriptorLinearSearchLimit < 0 {
		errs = append(errs, errors.New("descriptor linear search limit must be non-negative"))
	}
	if !isPowerOfTwo(c.DescriptorLookupCacheSize) {
		errs = append(errs, fmt.Errorf("descriptor lookup cache size %d is not a power of two", c.DescriptorLookupCacheSize))
	}
	if !isPowerOfTwo(c.DictionaryMinCapacity) {
		errs = append(errs, fmt.Errorf("dictionary min capacity %d is not a power of two", c.DictionaryMinCapacity))
	}
	if c.MaxFastElementsIndex == 0 || c.SparseElementsRatio < 1 {
		errs = append(errs, errors.New("elements limits must be positive"))
	}
	if c.SmiBits >= 8 && c.SmiBits <= MaxSmiBits && int64(c.MaxFastElementsIndex) > (SmiRange{Bits: c.SmiBits}).Max() {
		errs = append(errs, fmt.Errorf("max fast elements index %d does not fit a %d-bit smi", c.MaxFastElementsIndex, c.SmiBits))
	}
	if c.MaxFastProperties > MaxDescriptors || c.InObjectProperties > MaxDescriptors {
		errs = append(errs, fmt.Errorf("property limits exceed %d descriptors", MaxDescriptors))
	}
	return errors.Join(errs...)
}

func (c Config) spaceCapacities() [numSpaces]int {
	return [numSpaces]int{
		NewSpace:         c.NewSpaceSize,
		OldPointerSpace:  c.OldPointerSpaceSize,
		OldDataSpace:     c.OldDataSpaceSize,
		MapSpace:         c.MapSpaceSize,
		LargeObjectSpace: c.LargeObjectSpaceSize,
	}
}
