package heap

import (
	"errors"
	"fmt"
)

// FailureType classifies a failure signal.
type FailureType uint8

const (
	RetryAfterGC  FailureType = iota // allocation space exhausted, collect and retry
	Exception                        // an exception is pending in the caller
	InternalError                    // unrecoverable runtime error
	OutOfMemory                      // process-wide memory exhausted
	ValueTooLarge                    // integer does not fit the inline form
)

// String returns the failure type name.
func (t FailureType) String() string {
	switch t {
	case RetryAfterGC:
		return "retry-after-gc"
	case Exception:
		return "exception"
	case InternalError:
		return "internal-error"
	case OutOfMemory:
		return "out-of-memory"
	case ValueTooLarge:
		return "value-too-large"
	default:
		return "unknown"
	}
}

// Failure word layout:
//
//	+-------------------------+---+---+--+
//	|.........unused..........|sss|ttt|11|
//	+-------------------------+---+---+--+
//	                          7 5 4 2 1 0
//
// ttt is the FailureType and sss the AllocationSpace (RetryAfterGC only).
const (
	failureTypeShift  = 2
	failureTypeMask   = 7
	failureSpaceShift = 5
	failureSpaceMask  = 7
)

// Failure is a Value carrying the failure tag. It implements error so that
// allocation failures travel through ordinary Go error returns.
type Failure Value

// NewFailure encodes a failure signal. The space is only recorded for
// RetryAfterGC.
func NewFailure(t FailureType, space AllocationSpace) Failure {
	w := failureTag | uint64(t&failureTypeMask)<<failureTypeShift
	if t == RetryAfterGC {
		w |= uint64(space&failureSpaceMask) << failureSpaceShift
	}
	return Failure(w)
}

// RetryAfterGCFailure returns the failure word for an exhausted space.
func RetryAfterGCFailure(space AllocationSpace) Value {
	return NewFailure(RetryAfterGC, space).Value()
}

// ToFailure views v as a Failure.
// Panics if v is not a failure signal.
func (v Value) ToFailure() Failure {
	if !v.IsFailure() {
		invariant(CodeNotFailure, "Value.ToFailure: %s is not a failure", v)
	}
	return Failure(v)
}

// Value returns the tagged word.
func (f Failure) Value() Value {
	return Value(f)
}

// Type returns the failure type.
func (f Failure) Type() FailureType {
	return FailureType(uint64(f) >> failureTypeShift & failureTypeMask)
}

// Space returns the space that must be collected for RetryAfterGC failures.
func (f Failure) Space() AllocationSpace {
	return AllocationSpace(uint64(f) >> failureSpaceShift & failureSpaceMask)
}

// IsRetryAfterGC reports whether the caller should collect and retry.
func (f Failure) IsRetryAfterGC() bool {
	return f.Type() == RetryAfterGC
}

// Error implements error.
func (f Failure) Error() string {
	return f.String()
}

// String formats the failure.
func (f Failure) String() string {
	if f.Type() == RetryAfterGC {
		return fmt.Sprintf("failure(%s, %s)", f.Type(), f.Space())
	}
	return fmt.Sprintf("failure(%s)", f.Type())
}

// AsFailure extracts a Failure from an error chain.
func AsFailure(err error) (Failure, bool) {
	var f Failure
	if errors.As(err, &f) {
		return f, true
	}
	return 0, false
}
