package heap

// ---------------------------------------------------------------------------
// Object creation
// ---------------------------------------------------------------------------

// NewObject allocates a young object with no properties whose shape is the
// initial shape for prototype.
func (h *Heap) NewObject(prototype Value) (Value, error) {
	s, err := h.InitialShape(ObjectType, prototype)
	if err != nil {
		return 0, err
	}
	return h.NewObjectFromShape(s, NotTenured)
}

// NewObjectFromShape allocates an object laid out by s. Backing stores are
// allocated first, so a failure leaves nothing behind to observe.
func (h *Heap) NewObjectFromShape(s *Shape, p Pretenure) (Value, error) {
	if !s.tag.IsJSObject() {
		invariant(CodeWrongType, "NewObjectFromShape: %s has no properties", s)
	}
	props := h.emptyFixedArray
	switch {
	case s.dictionary:
		d, err := h.newPropertyDictionary(0, p)
		if err != nil {
			return 0, err
		}
		props = d.obj
	case s.OutOfLineFieldCount() > 0:
		arr, err := h.allocateFixedArray(s.OutOfLineFieldCount(), p, h.oddballs.Undefined)
		if err != nil {
			return 0, err
		}
		props = arr
	}
	elements := h.emptyFixedArray
	if s.elementsKind == DictionaryElements {
		d, err := h.newElementDictionary(0, p)
		if err != nil {
			return 0, err
		}
		elements = d.obj
	}
	addr, err := h.allocate(s, s.instanceSize, h.spaceFor(s.tag, p))
	if err != nil {
		return 0, err
	}
	h.mem.SetWord(addr.Add(ObjectPropertiesOffset), uint64(props))
	h.mem.SetWord(addr.Add(ObjectElementsOffset), uint64(elements))
	if s.tag == ArrayType {
		h.mem.SetWord(addr.Add(ArrayLengthOffset), uint64(smi(0)))
	}
	h.fill(addr, s.headerSize, s.instanceSize, h.oddballs.Undefined)
	return FromAddress(addr), nil
}

// ---------------------------------------------------------------------------
// Backing stores
// ---------------------------------------------------------------------------

func (h *Heap) propertiesOf(obj Value) Value {
	return Value(h.mem.Word(obj.Address().Add(ObjectPropertiesOffset)))
}

func (h *Heap) setProperties(obj, props Value) {
	h.SetFieldAt(obj, ObjectPropertiesOffset, props, writeMode(obj.Address()))
}

func (h *Heap) elementsOf(obj Value) Value {
	return Value(h.mem.Word(obj.Address().Add(ObjectElementsOffset)))
}

func (h *Heap) setElements(obj, elements Value) {
	h.SetFieldAt(obj, ObjectElementsOffset, elements, writeMode(obj.Address()))
}

// setShape installs s in the header of obj. Shape records are never young,
// so no barrier is needed.
func (h *Heap) setShape(obj Value, s *Shape) {
	h.mem.SetWord(obj.Address(), uint64(MapWordFromShape(s.record)))
}

// Properties returns the properties backing store of obj: a FixedArray of
// out-of-line fields or a PropertyDictionary.
func (h *Heap) Properties(obj Value) Value {
	h.expectJSObject(obj, "Properties")
	return h.propertiesOf(obj)
}

// Elements returns the elements backing store of obj.
func (h *Heap) Elements(obj Value) Value {
	h.expectJSObject(obj, "Elements")
	return h.elementsOf(obj)
}

func (h *Heap) fieldGet(obj Value, s *Shape, field int) Value {
	if field < s.inObject {
		return Value(h.mem.Word(obj.Address().Add(s.inObjectOffset(field))))
	}
	return h.FixedArrayGet(h.propertiesOf(obj), field-s.inObject)
}

func (h *Heap) fieldSet(obj Value, s *Shape, field int, v Value) {
	if field < s.inObject {
		h.SetFieldAt(obj, s.inObjectOffset(field), v, writeMode(obj.Address()))
		return
	}
	h.FixedArraySet(h.propertiesOf(obj), field-s.inObject, v)
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// PropertyResult describes a found property.
type PropertyResult struct {
	Found      bool
	Holder     Value
	Value      Value // AccessorPair for accessors
	Attributes Attributes
	Kind       StorageKind
	Field      int // field index for fast fields, -1 otherwise
}

// LookupOwnProperty finds name on obj itself.
func (h *Heap) LookupOwnProperty(obj, name Value) PropertyResult {
	_, s := h.expectJSObject(obj, "LookupOwnProperty")
	name, ok := h.lookupKey(name)
	if !ok {
		return PropertyResult{Field: -1}
	}
	if s.dictionary {
		d := h.propertyDictionary(h.propertiesOf(obj))
		e := d.find(name)
		if e < 0 {
			return PropertyResult{Field: -1}
		}
		details := d.detailsAt(e)
		return PropertyResult{
			Found:      true,
			Holder:     obj,
			Value:      d.valueAt(e),
			Attributes: details.Attributes(),
			Kind:       details.Kind(),
			Field:      -1,
		}
	}
	i := h.LookupDescriptor(s.descriptors, name)
	if i < 0 {
		return PropertyResult{Field: -1}
	}
	desc := s.descriptors.entries[i]
	r := PropertyResult{
		Found:      true,
		Holder:     obj,
		Attributes: desc.Details.Attributes(),
		Kind:       desc.Details.Kind(),
		Field:      -1,
	}
	if r.Kind.IsField() {
		r.Field = desc.Field
		r.Value = h.fieldGet(obj, s, desc.Field)
	} else {
		r.Value = desc.Value
	}
	return r
}

// LookupProperty finds name on obj or along its prototype chain.
func (h *Heap) LookupProperty(obj, name Value) PropertyResult {
	for holder := obj; ; {
		r := h.LookupOwnProperty(holder, name)
		if r.Found {
			return r
		}
		proto := h.ShapeOf(holder).prototype
		if !proto.IsHeapObject() || !h.ShapeOf(proto).tag.IsJSObject() {
			return PropertyResult{Field: -1}
		}
		holder = proto
	}
}

// GetProperty returns the value of name found on obj or its prototypes.
// Accessor properties yield their AccessorPair; calling the getter is the
// interpreter's job.
func (h *Heap) GetProperty(obj, name Value) (Value, bool) {
	r := h.LookupProperty(obj, name)
	if !r.Found {
		return h.oddballs.Undefined, false
	}
	return r.Value, true
}

// GetOwnProperty returns the value of an own property.
func (h *Heap) GetOwnProperty(obj, name Value) (Value, bool) {
	r := h.LookupOwnProperty(obj, name)
	if !r.Found {
		return h.oddballs.Undefined, false
	}
	return r.Value, true
}

// HasFastProperties reports whether obj keeps named properties in fields.
func (h *Heap) HasFastProperties(obj Value) bool {
	_, s := h.expectJSObject(obj, "HasFastProperties")
	return !s.dictionary
}

// OwnPropertyNames returns the names of obj's own properties in
// enumeration order. DontEnum properties are skipped unless all is set.
func (h *Heap) OwnPropertyNames(obj Value, all bool) []Value {
	_, s := h.expectJSObject(obj, "OwnPropertyNames")
	var names []Value
	if s.dictionary {
		for _, e := range h.PropertyDictionaryEntries(h.propertiesOf(obj)) {
			if all || e.Details.Attributes()&DontEnum == 0 {
				names = append(names, e.Key)
			}
		}
		return names
	}
	for _, d := range s.descriptors.Ordered() {
		if all || d.Details.Attributes()&DontEnum == 0 {
			names = append(names, d.Name)
		}
	}
	return names
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

// SetProperty stores value under name, adding a plain property if obj has
// none. Stores to read-only properties and accessors are ignored; the
// interpreter decides how to report them.
func (h *Heap) SetProperty(obj, name, value Value) error {
	_, s := h.expectJSObject(obj, "SetProperty")
	name, err := h.propertyKey(name)
	if err != nil {
		return err
	}
	r := h.LookupOwnProperty(obj, name)
	if !r.Found {
		return h.addProperty(obj, s, transitionKey{name: name, kind: InObjectField}, value)
	}
	if r.Attributes&ReadOnly != 0 || r.Kind == Accessor {
		return nil
	}
	return h.writeOwn(obj, s, name, r, value)
}

// writeOwn overwrites the value of an existing own property.
func (h *Heap) writeOwn(obj Value, s *Shape, name Value, r PropertyResult, value Value) error {
	switch {
	case r.Kind.IsField():
		h.fieldSet(obj, s, r.Field, value)
		return nil
	case r.Kind == Constant:
		if r.Value == value {
			return nil
		}
		// The constant lives in the shared shape; the object needs its own.
		if err := h.NormalizeProperties(obj); err != nil {
			return err
		}
		fallthrough
	default:
		d := h.propertyDictionary(h.propertiesOf(obj))
		d.setValue(d.find(name), value)
		return nil
	}
}

// DefineProperty adds or reconfigures a plain property. Changing the
// attributes of an existing property moves obj to dictionary mode.
func (h *Heap) DefineProperty(obj, name, value Value, attrs Attributes) error {
	_, s := h.expectJSObject(obj, "DefineProperty")
	name, err := h.propertyKey(name)
	if err != nil {
		return err
	}
	r := h.LookupOwnProperty(obj, name)
	if !r.Found {
		return h.addProperty(obj, s, transitionKey{name: name, attrs: attrs, kind: InObjectField}, value)
	}
	if r.Attributes == attrs && (r.Kind.IsField() || r.Kind == Normal) {
		return h.writeOwn(obj, s, name, r, value)
	}
	return h.reconfigure(obj, name, value, NewPropertyDetails(attrs, Normal, 0))
}

// DefineConstant adds a property whose value is held by the shape, so that
// objects sharing the shape share the value.
func (h *Heap) DefineConstant(obj, name, value Value, attrs Attributes) error {
	_, s := h.expectJSObject(obj, "DefineConstant")
	name, err := h.propertyKey(name)
	if err != nil {
		return err
	}
	if r := h.LookupOwnProperty(obj, name); r.Found {
		return h.reconfigure(obj, name, value, NewPropertyDetails(attrs, Normal, 0))
	}
	return h.addProperty(obj, s, transitionKey{name: name, attrs: attrs, kind: Constant, value: value}, value)
}

// DefineAccessor installs a getter/setter pair under name.
func (h *Heap) DefineAccessor(obj, name, getter, setter Value, attrs Attributes) error {
	_, s := h.expectJSObject(obj, "DefineAccessor")
	name, err := h.propertyKey(name)
	if err != nil {
		return err
	}
	pair, err := h.NewAccessorPair(getter, setter, pretenureOf(obj))
	if err != nil {
		return err
	}
	if r := h.LookupOwnProperty(obj, name); r.Found {
		return h.reconfigure(obj, name, pair, NewPropertyDetails(attrs, Accessor, 0))
	}
	return h.addProperty(obj, s, transitionKey{name: name, attrs: attrs, kind: Accessor, value: pair}, pair)
}

// reconfigure replaces an existing property's value and details in
// dictionary mode, keeping its enumeration index.
func (h *Heap) reconfigure(obj, name, value Value, details PropertyDetails) error {
	if err := h.NormalizeProperties(obj); err != nil {
		return err
	}
	d := h.propertyDictionary(h.propertiesOf(obj))
	e := d.find(name)
	d.setValue(e, value)
	d.setDetails(e, details.WithIndex(d.detailsAt(e).Index()))
	return nil
}

// fastPropertyLimit is the descriptor count at which adding another
// property moves s to dictionary mode.
func (h *Heap) fastPropertyLimit(s *Shape) int {
	return max(h.cfg.MaxFastProperties, s.inObject)
}

// addProperty adds a new own property described by key.
func (h *Heap) addProperty(obj Value, s *Shape, key transitionKey, value Value) error {
	if !s.dictionary && s.descriptors.Len() >= h.fastPropertyLimit(s) {
		if err := h.NormalizeProperties(obj); err != nil {
			return err
		}
		s = h.ShapeOf(obj)
	}
	if s.dictionary {
		kind := Normal
		if key.kind == Accessor {
			kind = Accessor
		}
		return h.addDictionaryProperty(obj, key.name, value, NewPropertyDetails(key.attrs, kind, 0))
	}

	child, err := h.transition(s, key)
	if err != nil {
		return err
	}
	if key.kind != InObjectField {
		h.setShape(obj, child)
		return nil
	}
	field := child.descriptors.fields - 1
	if field >= s.inObject {
		props := h.propertiesOf(obj)
		if n := h.FixedArrayLength(props); field-s.inObject >= n {
			grown, err := h.copyFixedArray(props, n+h.cfg.FieldsAdded, pretenureOf(obj), h.oddballs.Undefined)
			if err != nil {
				return err
			}
			h.setProperties(obj, grown)
		}
	}
	h.setShape(obj, child)
	h.fieldSet(obj, child, field, value)
	return nil
}

func (h *Heap) addDictionaryProperty(obj, name, value Value, details PropertyDetails) error {
	d := h.propertyDictionary(h.propertiesOf(obj))
	nd, err := d.addProperty(name, value, details)
	if err != nil {
		return err
	}
	if nd.obj != d.obj {
		h.setProperties(obj, nd.obj)
	}
	return nil
}

// DeleteProperty removes an own property. It reports false if the
// property is DontDelete. Deleting moves obj to dictionary mode.
func (h *Heap) DeleteProperty(obj, name Value) (bool, error) {
	h.expectJSObject(obj, "DeleteProperty")
	name, ok := h.lookupKey(name)
	if !ok {
		return true, nil
	}
	r := h.LookupOwnProperty(obj, name)
	if !r.Found {
		return true, nil
	}
	if r.Attributes&DontDelete != 0 {
		return false, nil
	}
	if err := h.NormalizeProperties(obj); err != nil {
		return false, err
	}
	d := h.propertyDictionary(h.propertiesOf(obj))
	d.remove(d.find(name))
	// Shrinking is an optimization; on failure the larger table stays.
	if nd, err := d.shrink(); err == nil && nd.obj != d.obj {
		h.setProperties(obj, nd.obj)
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Mode conversion
// ---------------------------------------------------------------------------

// NormalizeProperties moves obj's named properties into a dictionary.
// The dictionary and shape are built before obj is touched.
func (h *Heap) NormalizeProperties(obj Value) error {
	_, s := h.expectJSObject(obj, "NormalizeProperties")
	if s.dictionary {
		return nil
	}
	target, err := h.ToDictionaryMode(s)
	if err != nil {
		return err
	}
	ordered := s.descriptors.Ordered()
	d, err := h.newPropertyDictionary(len(ordered), pretenureOf(obj))
	if err != nil {
		return err
	}
	for _, desc := range ordered {
		kind, value := Normal, desc.Value
		switch desc.Details.Kind() {
		case InObjectField, OutOfLineField:
			value = h.fieldGet(obj, s, desc.Field)
		case Accessor:
			kind = Accessor
		}
		d.insert(desc.Name, value, NewPropertyDetails(desc.Details.Attributes(), kind, desc.Details.Index()))
	}
	d.setPrefix(len(ordered) + 1)

	h.setProperties(obj, d.obj)
	h.fill(obj.Address(), s.headerSize, s.instanceSize, h.oddballs.Undefined)
	h.setShape(obj, target)
	log.Debugf("normalized %d properties of %s", len(ordered), obj)
	return nil
}

// MigrateToFastProperties moves a dictionary-mode object back to fast
// mode by replaying its properties from the root shape. It reports false,
// leaving obj alone, if there are too many properties for fast mode.
func (h *Heap) MigrateToFastProperties(obj Value) (bool, error) {
	_, s := h.expectJSObject(obj, "MigrateToFastProperties")
	if !s.dictionary {
		return true, nil
	}
	entries := h.PropertyDictionaryEntries(h.propertiesOf(obj))
	if len(entries) > h.fastPropertyLimit(s) {
		return false, nil
	}
	target, err := h.rootShape(s.tag, s.prototype, s.inObject)
	if err != nil {
		return false, err
	}
	if target, err = h.WithElementsKind(target, s.elementsKind); err != nil {
		return false, err
	}
	for _, e := range entries {
		attrs := e.Details.Attributes()
		if e.Details.Kind() == Accessor {
			target, err = h.TransitionAddAccessor(target, e.Key, e.Value, attrs)
		} else {
			target, err = h.TransitionAddProperty(target, e.Key, attrs)
		}
		if err != nil {
			return false, err
		}
	}
	props := h.emptyFixedArray
	if n := target.OutOfLineFieldCount(); n > 0 {
		if props, err = h.allocateFixedArray(n, pretenureOf(obj), h.oddballs.Undefined); err != nil {
			return false, err
		}
	}

	h.setProperties(obj, props)
	h.setShape(obj, target)
	for _, e := range entries {
		if e.Details.Kind() == Accessor {
			continue
		}
		desc := target.descriptors.entries[h.LookupDescriptor(target.descriptors, e.Key)]
		h.fieldSet(obj, target, desc.Field, e.Value)
	}
	log.Debugf("migrated %d properties of %s to fast mode", len(entries), obj)
	return true, nil
}
