package heap

// ---------------------------------------------------------------------------
// Interned strings
// ---------------------------------------------------------------------------

// Property names are interned so that name comparison is identity
// comparison. Interned strings live in OldDataSpace and are roots.

// Intern returns the unique String for name, allocating it on first use.
func (h *Heap) Intern(name string) (Value, error) {
	h.checkAlive()
	if i, ok := h.symbols[name]; ok {
		return h.symbolList[i], nil
	}
	str, err := h.NewString(name, Tenured)
	if err != nil {
		return 0, err
	}
	h.symbols[name] = len(h.symbolList)
	h.symbolList = append(h.symbolList, str)
	return str, nil
}

// LookupSymbol returns the interned String for name without allocating.
func (h *Heap) LookupSymbol(name string) (Value, bool) {
	i, ok := h.symbols[name]
	if !ok {
		return 0, false
	}
	return h.symbolList[i], true
}

// IsInterned reports whether str is the interned String for its contents.
func (h *Heap) IsInterned(str Value) bool {
	i, ok := h.symbols[h.StringValue(str)]
	return ok && h.symbolList[i] == str
}

// SymbolCount returns the number of interned strings.
func (h *Heap) SymbolCount() int {
	return len(h.symbolList)
}

// Symbols returns the interned strings in interning order.
func (h *Heap) Symbols() []Value {
	out := make([]Value, len(h.symbolList))
	copy(out, h.symbolList)
	return out
}

// propertyKey returns the interned String with the contents of name,
// interning them on first use. Every property store goes through here, so
// descriptor and dictionary search can compare names by identity.
func (h *Heap) propertyKey(name Value) (Value, error) {
	if key, ok := h.lookupKey(name); ok {
		return key, nil
	}
	return h.Intern(h.StringValue(name))
}

// lookupKey returns the interned String with the contents of name. When
// there is none, no property is named by it.
func (h *Heap) lookupKey(name Value) (Value, bool) {
	h.expect(name, StringType, "property name")
	return h.LookupSymbol(h.StringValue(name))
}
