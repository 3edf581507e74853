package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Format is a snapshot wire encoding.
type Format uint8

const (
	// CBOR is canonical CBOR: the same snapshot always encodes to the same
	// bytes.
	CBOR Format = iota + 1
	// Msgpack is MessagePack with string keys.
	Msgpack
)

func (f Format) String() string {
	switch f {
	case CBOR:
		return "cbor"
	case Msgpack:
		return "msgpack"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "cbor":
		return CBOR, nil
	case "msgpack":
		return Msgpack, nil
	default:
		return 0, fmt.Errorf("snapshot: unknown format %q", name)
	}
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes s in format f.
func Marshal(s *Snapshot, f Format) ([]byte, error) {
	switch f {
	case CBOR:
		return cborEncMode.Marshal(s)
	case Msgpack:
		return msgpack.Marshal(s)
	default:
		return nil, fmt.Errorf("snapshot: marshal: unknown %s", f)
	}
}

// Unmarshal decodes a snapshot encoded in format f.
func Unmarshal(data []byte, f Format) (*Snapshot, error) {
	var s Snapshot
	var err error
	switch f {
	case CBOR:
		err = cbor.Unmarshal(data, &s)
	case Msgpack:
		err = msgpack.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("snapshot: unmarshal: unknown %s", f)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal %s: %w", f, err)
	}
	return &s, nil
}
