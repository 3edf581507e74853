package heap

import "fmt"

// InvariantCode classifies a representation invariant violation.
type InvariantCode uint8

const (
	CodeNotSmi InvariantCode = iota + 1
	CodeNotHeapObject
	CodeNotFailure
	CodeFailureDereference
	CodeHeaderState
	CodeBadAddress
	CodeFieldBounds
	CodeWrongType
	CodeShapeMismatch
	CodeDescriptorOverflow
	CodeDictionaryBounds
	CodeArrayIndex
	CodeTornDown
)

var invariantCodeNames = map[InvariantCode]string{
	CodeNotSmi:             "not-smi",
	CodeNotHeapObject:      "not-heap-object",
	CodeNotFailure:         "not-failure",
	CodeFailureDereference: "failure-dereference",
	CodeHeaderState:        "header-state",
	CodeBadAddress:         "bad-address",
	CodeFieldBounds:        "field-bounds",
	CodeWrongType:          "wrong-type",
	CodeShapeMismatch:      "shape-mismatch",
	CodeDescriptorOverflow: "descriptor-overflow",
	CodeDictionaryBounds:   "dictionary-bounds",
	CodeArrayIndex:         "array-index",
	CodeTornDown:           "torn-down",
}

// String returns the code name.
func (c InvariantCode) String() string {
	if name, ok := invariantCodeNames[c]; ok {
		return name
	}
	return "unknown"
}

// InvariantError is the panic value for a violated representation
// invariant. These are programming errors in the host, never recoverable
// conditions.
type InvariantError struct {
	Code    InvariantCode
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("heap invariant violated (%s): %s", e.Code, e.Message)
}

func invariant(code InvariantCode, format string, args ...any) {
	panic(&InvariantError{Code: code, Message: fmt.Sprintf(format, args...)})
}

// check panics when debug checks are enabled and cond is false. With debug
// checks off the condition is not evaluated beyond the caller's argument.
func (h *Heap) check(cond bool, code InvariantCode, format string, args ...any) {
	if h.cfg.DebugChecks && !cond {
		invariant(code, format, args...)
	}
}
