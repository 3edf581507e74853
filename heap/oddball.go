package heap

// OddballKind distinguishes the singleton oddballs.
type OddballKind uint8

const (
	UndefinedKind OddballKind = iota
	NullKind
	TheHoleKind
	TrueKind
	FalseKind
)

var oddballNames = [...]string{"undefined", "null", "the_hole", "true", "false"}

// String returns the oddball's name.
func (k OddballKind) String() string {
	if int(k) < len(oddballNames) {
		return oddballNames[k]
	}
	return "unknown"
}

// Oddballs holds the canonical singletons of a heap.
type Oddballs struct {
	Undefined Value
	Null      Value
	TheHole   Value // absent element in fast arrays and deleted dictionary key
	True      Value
	False     Value
}

func (h *Heap) createOddballs() error {
	slots := [...]*Value{&h.oddballs.Undefined, &h.oddballs.Null, &h.oddballs.TheHole, &h.oddballs.True, &h.oddballs.False}
	for kind, slot := range slots {
		addr, err := h.allocate(h.internal[OddballType], OddballSize, OldDataSpace)
		if err != nil {
			return err
		}
		h.mem.SetWord(addr.Add(OddballKindOffset), uint64(smi(kind)))
		*slot = FromAddress(addr)
	}
	return nil
}

// Oddballs returns the canonical singletons.
func (h *Heap) Oddballs() Oddballs { return h.oddballs }

// Undefined returns the undefined oddball.
func (h *Heap) Undefined() Value { return h.oddballs.Undefined }

// Null returns the null oddball.
func (h *Heap) Null() Value { return h.oddballs.Null }

// TheHole returns the hole sentinel.
func (h *Heap) TheHole() Value { return h.oddballs.TheHole }

// Boolean returns the true or false oddball.
func (h *Heap) Boolean(b bool) Value {
	if b {
		return h.oddballs.True
	}
	return h.oddballs.False
}

// OddballKindOf returns the kind of an oddball.
func (h *Heap) OddballKindOf(v Value) OddballKind {
	addr := h.expect(v, OddballType, "OddballKindOf")
	return OddballKind(h.rawSmi(addr.Add(OddballKindOffset)))
}
