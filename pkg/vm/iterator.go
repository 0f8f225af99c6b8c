package vm

// IterKind selects what the array iterator yields.
type IterKind uint8

const (
	IterKeys IterKind = iota
	IterValues
	IterEntries
)

// IteratorData is the internal slot record of the builtin array and string
// iterators: the immutable receiver plus a mutable cursor and the kind tag.
type IteratorData struct {
	Target Value
	Kind   IterKind
	Index  int
	Done   bool
}

// EnumeratorData backs the for-in opcode pair. The key list is snapshotted
// at loop entry; keys deleted mid-loop are re-checked before being yielded.
type EnumeratorData struct {
	Target *Object
	Keys   []PropertyKey
	Index  int
}

// GetIterator retrieves and invokes v's @@iterator method.
func (ctx *Context) GetIterator(v Value) (Value, error) {
	method, err := ctx.GetProperty(v, SymbolKey(ctx.instance.wellKnown.Iterator))
	if err != nil {
		return Undefined, err
	}
	if !method.IsCallable() {
		return Undefined, ctx.NewTypeError("%s is not iterable", v.TypeOf())
	}
	iter, err := ctx.Call(method, v, nil)
	if err != nil {
		return Undefined, err
	}
	if !iter.IsObject() {
		return Undefined, ctx.NewTypeError("Result of the Symbol.iterator method is not an object")
	}
	return iter, nil
}

// IteratorStep calls iter.next() and unpacks the result object. done=true
// means exhaustion; value is Undefined in that case.
func (ctx *Context) IteratorStep(iter Value) (value Value, done bool, err error) {
	next, err := ctx.GetProperty(iter, AtomKey(ctx.instance.Intern("next")))
	if err != nil {
		return Undefined, false, err
	}
	result, err := ctx.Call(next, iter, nil)
	if err != nil {
		return Undefined, false, err
	}
	if !result.IsObject() {
		return Undefined, false, ctx.NewTypeError("Iterator result is not an object")
	}
	doneVal, err := ctx.GetProperty(result, AtomKey(ctx.instance.Intern("done")))
	if err != nil {
		return Undefined, false, err
	}
	if ToBoolean(doneVal) {
		return Undefined, true, nil
	}
	value, err = ctx.GetProperty(result, AtomKey(ctx.instance.Intern("value")))
	if err != nil {
		return Undefined, false, err
	}
	return value, false, nil
}

// IteratorClose calls iter.return() on abrupt completion, preserving the
// original error.
func (ctx *Context) IteratorClose(iter Value, original error) error {
	ret, err := ctx.GetProperty(iter, AtomKey(ctx.instance.Intern("return")))
	if err != nil {
		return original
	}
	if ret.IsCallable() {
		ctx.Call(ret, iter, nil)
	}
	return original
}

// NewEnumerator snapshots the for-in key sequence of v. Nullish bases
// enumerate nothing.
func (ctx *Context) NewEnumerator(v Value) (Value, error) {
	enum := ctx.NewPlainObject()
	if v.IsNullish() {
		enum.internal = &EnumeratorData{}
		return ObjectValue(enum), nil
	}
	obj, err := ctx.ToObject(v)
	if err != nil {
		return Undefined, err
	}
	enum.internal = &EnumeratorData{Target: obj, Keys: obj.Enumerate(ctx)}
	return ObjectValue(enum), nil
}

// EnumeratorNext yields the next still-present key as a string, or
// done=true.
func (ctx *Context) EnumeratorNext(enum Value) (key Value, done bool) {
	data := enum.AsObject().internal.(*EnumeratorData)
	for data.Index < len(data.Keys) {
		k := data.Keys[data.Index]
		data.Index++
		// A key deleted while the loop ran is skipped.
		if data.Target.Has(ctx, k) {
			return AtomValue(k.Atom()), false
		}
	}
	return Undefined, true
}

// NewArrayIterator creates a keys/values/entries iterator over target.
func (ctx *Context) NewArrayIterator(target Value, kind IterKind) *Object {
	return &Object{
		kind:       KindArrayIterator,
		shape:      ctx.instance.rootShape,
		prototype:  ObjectValue(ctx.intrinsics.ArrayIteratorProto),
		extensible: true,
		internal:   &IteratorData{Target: target, Kind: kind},
	}
}

// NewStringIterator creates a code-point iterator over target.
func (ctx *Context) NewStringIterator(target Value) *Object {
	return &Object{
		kind:       KindStringIterator,
		shape:      ctx.instance.rootShape,
		prototype:  ObjectValue(ctx.intrinsics.StringIteratorProto),
		extensible: true,
		internal:   &IteratorData{Target: target, Kind: IterValues},
	}
}
