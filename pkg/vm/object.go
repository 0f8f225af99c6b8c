package vm

import (
	"strconv"
	"unsafe"
)

// ObjectKind tags the builtin family an object belongs to. Runtime type
// checks read this byte instead of walking a hierarchy.
type ObjectKind uint8

const (
	KindPlain ObjectKind = iota
	KindGlobal
	KindArray
	KindFunction       // interpreted function (closure over a code block)
	KindNativeFunction // builtin implemented in Go
	KindBoundFunction
	KindArguments
	KindStringObject
	KindNumberObject
	KindBooleanObject
	KindSymbolObject
	KindError
	KindRegExp
	KindArrayIterator
	KindStringIterator
	KindPromise
	KindModuleNamespace
)

// Accessor is the boxed get/set pair stored in the slot of an accessor
// property. Either function may be Undefined.
type Accessor struct {
	Getter Value
	Setter Value
}

// typeAccessorBox is the internal value tag for a boxed Accessor held in a
// property slot. It never escapes the object model.
const typeAccessorBox ValueType = 0xFE

func accessorValue(a *Accessor) Value {
	return Value{typ: typeAccessorBox, obj: unsafe.Pointer(a)}
}

func (v Value) isAccessorBox() bool { return v.typ == typeAccessorBox }
func (v Value) asAccessor() *Accessor {
	return (*Accessor)(v.obj)
}

// PropertyDescriptor carries a data or accessor descriptor with presence
// flags for partial descriptors passed to defineOwnProperty.
type PropertyDescriptor struct {
	Value  Value
	Getter Value
	Setter Value

	HasValue        bool
	HasGetter       bool
	HasSetter       bool
	HasWritable     bool
	HasEnumerable   bool
	HasConfigurable bool

	Writable     bool
	Enumerable   bool
	Configurable bool
}

// DataDescriptor builds a complete data descriptor from attribute bits.
func DataDescriptor(v Value, attrs PropertyAttributes) PropertyDescriptor {
	return PropertyDescriptor{
		Value: v, HasValue: true,
		HasWritable: true, Writable: attrs&AttrWritable != 0,
		HasEnumerable: true, Enumerable: attrs&AttrEnumerable != 0,
		HasConfigurable: true, Configurable: attrs&AttrConfigurable != 0,
	}
}

// AccessorDescriptor builds a complete accessor descriptor.
func AccessorDescriptor(getter, setter Value, attrs PropertyAttributes) PropertyDescriptor {
	return PropertyDescriptor{
		Getter: getter, HasGetter: true,
		Setter: setter, HasSetter: true,
		HasEnumerable: true, Enumerable: attrs&AttrEnumerable != 0,
		HasConfigurable: true, Configurable: attrs&AttrConfigurable != 0,
	}
}

// IsAccessor reports whether the descriptor describes an accessor property.
func (d *PropertyDescriptor) IsAccessor() bool { return d.HasGetter || d.HasSetter }

// IsData reports whether the descriptor describes a data property.
func (d *PropertyDescriptor) IsData() bool { return d.HasValue || d.HasWritable }

// IsGeneric reports a descriptor with neither data nor accessor fields.
func (d *PropertyDescriptor) IsGeneric() bool { return !d.IsAccessor() && !d.IsData() }

func (d *PropertyDescriptor) attrs() PropertyAttributes {
	var a PropertyAttributes
	if d.Writable {
		a |= AttrWritable
	}
	if d.Enumerable {
		a |= AttrEnumerable
	}
	if d.Configurable {
		a |= AttrConfigurable
	}
	return a
}

// completed fills absent fields with their defaults (false / undefined).
func (d PropertyDescriptor) completed() PropertyDescriptor {
	if d.IsAccessor() {
		d.HasGetter, d.HasSetter = true, true
	} else {
		d.HasValue, d.HasWritable = true, true
	}
	d.HasEnumerable, d.HasConfigurable = true, true
	return d
}

// Object is the engine object: a shape describing its named slots, the slot
// array itself, a prototype, and optional builtin internal state. Arrays
// additionally carry dense indexed storage (see array.go).
type Object struct {
	kind       ObjectKind
	shape      *Shape
	slots      []Value
	prototype  Value // object or Null
	extensible bool
	array      *ArrayStorage
	internal   any // kind-specific internal slot record
}

// NewObject creates a plain object with the given prototype.
func NewObject(proto Value) *Object {
	return &Object{
		kind:       KindPlain,
		shape:      nil, // filled by the caller's context root shape
		prototype:  proto,
		extensible: true,
	}
}

// NewObjectWithShape creates an object rooted at the given shape tree.
func NewObjectWithShape(root *Shape, proto Value) *Object {
	return &Object{kind: KindPlain, shape: root, prototype: proto, extensible: true}
}

func (o *Object) Kind() ObjectKind { return o.kind }

// SetKind stamps the builtin family tag. Called once at construction.
func (o *Object) SetKind(k ObjectKind) { o.kind = k }

// Internal returns the kind-specific internal slot record.
func (o *Object) Internal() any { return o.internal }

// SetInternal installs the kind-specific internal slot record.
func (o *Object) SetInternal(data any) { o.internal = data }

// IsCallable reports whether the object can be called.
func (o *Object) IsCallable() bool {
	switch o.kind {
	case KindFunction, KindNativeFunction, KindBoundFunction:
		return true
	}
	return false
}

// GetPrototype returns the object's prototype (object or Null).
func (o *Object) GetPrototype() Value { return o.prototype }

// SetPrototype installs a new prototype. It fails when the object is
// non-extensible or the assignment would create a cycle.
func (o *Object) SetPrototype(proto Value) bool {
	if StrictEquals(proto, o.prototype) {
		return true
	}
	if !o.extensible {
		return false
	}
	// Cycle check: walk the candidate chain looking for o.
	p := proto
	for p.IsObject() {
		if p.AsObject() == o {
			return false
		}
		p = p.AsObject().prototype
	}
	o.prototype = proto
	return true
}

// IsExtensible reports whether new properties may be added.
func (o *Object) IsExtensible() bool { return o.extensible }

// PreventExtensions makes the object non-extensible. Irreversible.
func (o *Object) PreventExtensions() { o.extensible = false }

// indexFromAtom reports whether the atom is a canonical array index
// ("0", "17", but not "01", "-3", or "4294967295").
func indexFromAtom(a *Atom) (uint32, bool) {
	s := a.String()
	if len(s) == 0 || len(s) > 10 {
		return 0, false
	}
	if s == "0" {
		return 0, true
	}
	if s[0] == '0' || s[0] < '0' || s[0] > '9' {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n >= 0xFFFFFFFF {
		return 0, false
	}
	return uint32(n), true
}

// IndexFromKey reports whether key is a canonical array index.
func IndexFromKey(key PropertyKey) (uint32, bool) {
	if key.sym != nil {
		return 0, false
	}
	return indexFromAtom(key.atom)
}

// GetOwnProperty returns the own property descriptor for key, without
// walking the prototype chain and without invoking accessors.
func (o *Object) GetOwnProperty(ctx *Context, key PropertyKey) (PropertyDescriptor, bool) {
	if o.array != nil {
		if desc, handled, found := o.arrayOwnProperty(ctx, key); handled {
			if !found {
				return PropertyDescriptor{}, false
			}
			return desc, true
		}
	}
	if o.kind == KindStringObject {
		if desc, found := o.stringWrapperOwnProperty(ctx, key); found {
			return desc, true
		}
	}
	f, ok := o.shape.Lookup(key)
	if !ok {
		return PropertyDescriptor{}, false
	}
	slot := o.slots[f.Offset]
	if f.Attrs&attrAccessor != 0 {
		acc := slot.asAccessor()
		return AccessorDescriptor(acc.Getter, acc.Setter, f.Attrs), true
	}
	return DataDescriptor(slot, f.Attrs), true
}

// HasOwnProperty reports whether key is an own property.
func (o *Object) HasOwnProperty(ctx *Context, key PropertyKey) bool {
	_, ok := o.GetOwnProperty(ctx, key)
	return ok
}

// Has walks the prototype chain looking for key.
func (o *Object) Has(ctx *Context, key PropertyKey) bool {
	cur := o
	for {
		if cur.HasOwnProperty(ctx, key) {
			return true
		}
		if !cur.prototype.IsObject() {
			return false
		}
		cur = cur.prototype.AsObject()
	}
}

// Get implements ordinary [[Get]]: own lookup, prototype walk, accessor
// invocation with the original receiver.
func (o *Object) Get(ctx *Context, key PropertyKey, receiver Value) (Value, error) {
	cur := o
	for {
		if desc, ok := cur.GetOwnProperty(ctx, key); ok {
			if desc.IsAccessor() {
				if !desc.Getter.IsCallable() {
					return Undefined, nil
				}
				return ctx.Call(desc.Getter, receiver, nil)
			}
			return desc.Value, nil
		}
		if !cur.prototype.IsObject() {
			return Undefined, nil
		}
		cur = cur.prototype.AsObject()
	}
}

// Set implements ordinary [[Set]] (ES2017 9.1.9): assignment consults the
// prototype chain for accessors and read-only conflicts before creating an
// own property on the receiver. Returns false when the write is rejected;
// the caller decides between a strict-mode TypeError and a sloppy no-op.
func (o *Object) Set(ctx *Context, key PropertyKey, val Value, receiver Value) (bool, error) {
	cur := o
	for {
		if desc, ok := cur.GetOwnProperty(ctx, key); ok {
			if desc.IsAccessor() {
				if !desc.Setter.IsCallable() {
					return false, nil
				}
				if _, err := ctx.Call(desc.Setter, receiver, []Value{val}); err != nil {
					return false, err
				}
				return true, nil
			}
			if !desc.Writable {
				return false, nil
			}
			// Data property found: create/overwrite on the receiver.
			if !receiver.IsObject() {
				return false, nil
			}
			recv := receiver.AsObject()
			if existing, ok := recv.GetOwnProperty(ctx, key); ok {
				if existing.IsAccessor() || !existing.Writable {
					return false, nil
				}
				return recv.DefineOwnProperty(ctx, key, PropertyDescriptor{Value: val, HasValue: true})
			}
			return recv.CreateDataProperty(ctx, key, val)
		}
		if !cur.prototype.IsObject() {
			// Not found anywhere: plain create on the receiver.
			if !receiver.IsObject() {
				return false, nil
			}
			return receiver.AsObject().CreateDataProperty(ctx, key, val)
		}
		cur = cur.prototype.AsObject()
	}
}

// CreateDataProperty adds a new own data property with default attributes.
func (o *Object) CreateDataProperty(ctx *Context, key PropertyKey, val Value) (bool, error) {
	return o.DefineOwnProperty(ctx, key, DataDescriptor(val, AttrDefault))
}

// DefineOwn is the install helper used by builtins: it defines a data
// property with explicit attributes and ignores the (impossible) failure.
func (o *Object) DefineOwn(ctx *Context, key PropertyKey, val Value, attrs PropertyAttributes) {
	o.defineOwnFast(ctx, key, val, attrs)
}

// DefineAccessor installs an accessor property with explicit attributes.
func (o *Object) DefineAccessor(ctx *Context, key PropertyKey, getter, setter Value, attrs PropertyAttributes) {
	if f, ok := o.shape.Lookup(key); ok {
		o.shape = o.shape.Reconfigured(key, attrs|attrAccessor)
		o.slots[f.Offset] = accessorValue(&Accessor{Getter: getter, Setter: setter})
		return
	}
	o.shape = o.shape.Transition(key, attrs|attrAccessor)
	o.slots = append(o.slots, accessorValue(&Accessor{Getter: getter, Setter: setter}))
}

// defineOwnFast adds or overwrites a data property without descriptor
// validation. Internal installs only.
func (o *Object) defineOwnFast(ctx *Context, key PropertyKey, val Value, attrs PropertyAttributes) {
	if o.array != nil {
		if idx, ok := IndexFromKey(key); ok && o.array.fast {
			if o.arrayFastSet(idx, val) {
				return
			}
			o.demoteArray(ctx)
		}
	}
	if f, ok := o.shape.Lookup(key); ok {
		if f.Attrs != attrs {
			o.shape = o.shape.Reconfigured(key, attrs)
		}
		o.slots[f.Offset] = val
		return
	}
	o.shape = o.shape.Transition(key, attrs)
	o.slots = append(o.slots, val)
}

// DefineOwnProperty implements ordinary [[DefineOwnProperty]] with the
// validation rules of ES2017 9.1.6.3. A failed definition leaves the object
// unchanged.
func (o *Object) DefineOwnProperty(ctx *Context, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if o.array != nil {
		return o.arrayDefineOwnProperty(ctx, key, desc)
	}
	return o.ordinaryDefineOwnProperty(ctx, key, desc)
}

func (o *Object) ordinaryDefineOwnProperty(ctx *Context, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	current, exists := o.GetOwnProperty(ctx, key)
	if !exists {
		if !o.extensible {
			return false, nil
		}
		d := desc.completed()
		if d.IsAccessor() {
			attrs := d.attrs() | attrAccessor
			o.shape = o.shape.Transition(key, attrs)
			o.slots = append(o.slots, accessorValue(&Accessor{Getter: d.Getter, Setter: d.Setter}))
		} else {
			o.shape = o.shape.Transition(key, d.attrs())
			o.slots = append(o.slots, d.Value)
		}
		return true, nil
	}

	// Validate against the current descriptor.
	if desc.IsGeneric() && !desc.HasEnumerable && !desc.HasConfigurable {
		return true, nil
	}
	if !current.Configurable {
		if desc.HasConfigurable && desc.Configurable {
			return false, nil
		}
		if desc.HasEnumerable && desc.Enumerable != current.Enumerable {
			return false, nil
		}
		if desc.IsAccessor() != current.IsAccessor() && !desc.IsGeneric() {
			return false, nil
		}
		if current.IsAccessor() && desc.IsAccessor() {
			if desc.HasGetter && !StrictEquals(desc.Getter, current.Getter) {
				return false, nil
			}
			if desc.HasSetter && !StrictEquals(desc.Setter, current.Setter) {
				return false, nil
			}
		} else if !current.IsAccessor() {
			if !current.Writable {
				if desc.HasWritable && desc.Writable {
					return false, nil
				}
				if desc.HasValue && !SameValue(desc.Value, current.Value) {
					return false, nil
				}
			}
		}
	}

	// Apply: merge desc over current.
	merged := current
	if desc.HasEnumerable {
		merged.Enumerable = desc.Enumerable
	}
	if desc.HasConfigurable {
		merged.Configurable = desc.Configurable
	}
	if desc.IsAccessor() {
		if !current.IsAccessor() {
			merged.HasValue, merged.HasWritable = false, false
			merged.Getter, merged.Setter = Undefined, Undefined
		}
		if desc.HasGetter {
			merged.Getter = desc.Getter
		}
		if desc.HasSetter {
			merged.Setter = desc.Setter
		}
		merged.HasGetter, merged.HasSetter = true, true
	} else if desc.IsData() {
		if current.IsAccessor() {
			merged.HasGetter, merged.HasSetter = false, false
			merged.Value = Undefined
			merged.Writable = false
		}
		if desc.HasValue {
			merged.Value = desc.Value
		}
		if desc.HasWritable {
			merged.Writable = desc.Writable
		}
		merged.HasValue, merged.HasWritable = true, true
	}

	f, _ := o.shape.Lookup(key)
	if merged.IsAccessor() {
		attrs := merged.attrs() | attrAccessor
		if f.Attrs != attrs {
			o.shape = o.shape.Reconfigured(key, attrs)
		}
		o.slots[f.Offset] = accessorValue(&Accessor{Getter: merged.Getter, Setter: merged.Setter})
	} else {
		attrs := merged.attrs()
		if f.Attrs != attrs {
			o.shape = o.shape.Reconfigured(key, attrs)
		}
		o.slots[f.Offset] = merged.Value
	}
	return true, nil
}

// DeleteOwnProperty removes an own property. Returns false for
// non-configurable properties.
func (o *Object) DeleteOwnProperty(ctx *Context, key PropertyKey) bool {
	if o.array != nil {
		if idx, ok := IndexFromKey(key); ok && o.array.fast {
			return o.arrayFastDelete(idx)
		}
		if key == ctx.Instance().lengthKey() {
			return false
		}
	}
	f, ok := o.shape.Lookup(key)
	if !ok {
		return true
	}
	if f.Attrs&AttrConfigurable == 0 {
		return false
	}
	newShape, removed := o.shape.Without(key)
	o.shape = newShape
	o.slots = append(o.slots[:removed], o.slots[removed+1:]...)
	return true
}

// OwnKeys returns own property keys in spec order: integer-index keys
// ascending, then string keys in insertion order, then symbol keys in
// insertion order.
func (o *Object) OwnKeys(ctx *Context) []PropertyKey {
	var indexKeys []uint32
	var stringKeys []PropertyKey
	var symbolKeys []PropertyKey

	if o.array != nil && o.array.fast {
		for i, v := range o.array.dense {
			if !v.IsEmpty() {
				indexKeys = append(indexKeys, uint32(i))
			}
		}
	}
	if o.kind == KindStringObject {
		str := o.internal.(*PrimitiveData).Value.AsString()
		for i := 0; i < str.Length(); i++ {
			indexKeys = append(indexKeys, uint32(i))
		}
	}
	for _, f := range o.shape.Fields() {
		if f.Key.IsSymbol() {
			symbolKeys = append(symbolKeys, f.Key)
			continue
		}
		if idx, ok := indexFromAtom(f.Key.atom); ok {
			indexKeys = append(indexKeys, idx)
			continue
		}
		stringKeys = append(stringKeys, f.Key)
	}
	sortUint32(indexKeys)

	keys := make([]PropertyKey, 0, len(indexKeys)+len(stringKeys)+len(symbolKeys)+1)
	for _, idx := range indexKeys {
		keys = append(keys, AtomKey(ctx.Instance().InternIndex(idx)))
	}
	if o.array != nil {
		keys = append(keys, ctx.Instance().lengthKey())
	}
	keys = append(keys, stringKeys...)
	keys = append(keys, symbolKeys...)
	return keys
}

func sortUint32(a []uint32) {
	// Insertion sort; index key lists are short and usually presorted.
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}

// Enumerate yields the for-in key sequence: own and inherited enumerable
// string-keyed properties, with shadowed names visited once at their
// shallowest occurrence.
func (o *Object) Enumerate(ctx *Context) []PropertyKey {
	var keys []PropertyKey
	seen := make(map[PropertyKey]bool)
	cur := o
	for {
		for _, key := range cur.OwnKeys(ctx) {
			if key.IsSymbol() || seen[key] {
				continue
			}
			seen[key] = true
			if desc, ok := cur.GetOwnProperty(ctx, key); ok && desc.Enumerable {
				keys = append(keys, key)
			}
		}
		if !cur.prototype.IsObject() {
			return keys
		}
		cur = cur.prototype.AsObject()
	}
}

// stringWrapperOwnProperty virtualizes the indexed characters and length of
// a String wrapper object.
func (o *Object) stringWrapperOwnProperty(ctx *Context, key PropertyKey) (PropertyDescriptor, bool) {
	str := o.internal.(*PrimitiveData).Value.AsString()
	if key == ctx.Instance().lengthKey() {
		return DataDescriptor(Integer(int32(str.Length())), 0), true
	}
	if idx, ok := IndexFromKey(key); ok && int(idx) < str.Length() {
		ch := str.Substring(int(idx), int(idx)+1)
		return DataDescriptor(NewStringValue(ch), AttrEnumerable), true
	}
	return PropertyDescriptor{}, false
}

// PrimitiveData is the internal slot record of the Number, String, Boolean
// and Symbol wrapper objects.
type PrimitiveData struct {
	Value Value
}
