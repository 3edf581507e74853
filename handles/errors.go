package handles

import "fmt"

// ProtocolCode classifies a violation of the slot protocol.
type ProtocolCode uint8

const (
	CodeDestroyed ProtocolCode = iota + 1
	CodeLeftNearDeath
	CodeTornDown
)

// String returns the code name.
func (c ProtocolCode) String() string {
	switch c {
	case CodeDestroyed:
		return "destroyed-slot"
	case CodeLeftNearDeath:
		return "left-near-death"
	case CodeTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// ProtocolError is the panic value for a misuse of the registry, such as a
// finalizer that leaves its slot NearDeath. It would corrupt the next
// cycle's traversal, so it is never returned as an error.
type ProtocolError struct {
	Code    ProtocolCode
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("handle protocol violated (%s): %s", e.Code, e.Message)
}

func (r *Registry) check(cond bool, code ProtocolCode, format string, args ...any) {
	if r.cfg.DebugChecks && !cond {
		panic(&ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)})
	}
}
