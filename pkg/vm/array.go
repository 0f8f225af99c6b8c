package vm

// ArrayStorage is the indexed part of an array object. In fast mode the
// dense vector backs indices [0, length) directly, with holes represented by
// the Empty sentinel. Once an array leaves fast mode its indexed entries
// live as named properties under their decimal atoms; the transition is
// permanent for the object's lifetime.
type ArrayStorage struct {
	dense          []Value
	length         uint32
	fast           bool
	lengthWritable bool
}

// NewArray creates a fast-mode array of the given length with all holes.
func (ctx *Context) NewArray(length uint32) *Object {
	o := &Object{
		kind:       KindArray,
		shape:      ctx.Instance().RootShape(),
		prototype:  ctx.ArrayPrototype(),
		extensible: true,
		array: &ArrayStorage{
			dense:          makeHoles(int(length)),
			length:         length,
			fast:           true,
			lengthWritable: true,
		},
	}
	return o
}

// NewArrayFromValues creates a fast-mode array over the given elements.
// Holes are passed as Empty.
func (ctx *Context) NewArrayFromValues(values []Value) *Object {
	o := ctx.NewArray(0)
	o.array.dense = values
	o.array.length = uint32(len(values))
	return o
}

func makeHoles(n int) []Value {
	holes := make([]Value, n)
	for i := range holes {
		holes[i] = Empty
	}
	return holes
}

// IsArray reports whether the object is an array (fast or slow mode).
func (o *Object) IsArray() bool { return o.array != nil }

// ArrayLength returns the logical length.
func (o *Object) ArrayLength() uint32 { return o.array.length }

// IsFastArray reports whether the indexed entries still live in the dense
// vector.
func (o *Object) IsFastArray() bool { return o.array != nil && o.array.fast }

// ArrayFastGet reads index idx from the dense vector. Returns (Empty, true)
// for a hole and (_, false) when idx is out of the fast range.
func (o *Object) ArrayFastGet(idx uint32) (Value, bool) {
	if !o.array.fast || idx >= o.array.length {
		return Empty, false
	}
	return o.array.dense[idx], true
}

// arrayFastSet writes index idx, extending length by one for an append.
// Returns false when the write would violate the fast-mode invariants and
// the caller must demote first.
func (o *Object) arrayFastSet(idx uint32, val Value) bool {
	a := o.array
	if idx < a.length {
		a.dense[idx] = val
		return true
	}
	if idx == a.length && a.lengthWritable {
		a.dense = append(a.dense, val)
		a.length++
		return true
	}
	return false
}

// arrayFastDelete holes out index idx. Deleting stays within fast mode.
func (o *Object) arrayFastDelete(idx uint32) bool {
	a := o.array
	if idx < a.length {
		a.dense[idx] = Empty
	}
	return true
}

// demoteArray permanently moves the indexed entries into generic named
// storage. Named index properties keep default attributes.
func (o *Object) demoteArray(ctx *Context) {
	a := o.array
	if !a.fast {
		return
	}
	a.fast = false
	dense := a.dense
	a.dense = nil
	for i, v := range dense {
		if v.IsEmpty() {
			continue
		}
		key := AtomKey(ctx.Instance().InternIndex(uint32(i)))
		o.shape = o.shape.Transition(key, AttrDefault)
		o.slots = append(o.slots, v)
	}
}

// arrayOwnProperty intercepts "length" and, in fast mode, index keys.
// handled=false means the caller should fall through to named lookup.
func (o *Object) arrayOwnProperty(ctx *Context, key PropertyKey) (desc PropertyDescriptor, handled, found bool) {
	a := o.array
	if key == ctx.Instance().lengthKey() {
		attrs := PropertyAttributes(0)
		if a.lengthWritable {
			attrs |= AttrWritable
		}
		return DataDescriptor(uint32Value(a.length), attrs), true, true
	}
	if a.fast {
		if idx, ok := IndexFromKey(key); ok {
			if idx < a.length && !a.dense[idx].IsEmpty() {
				return DataDescriptor(a.dense[idx], AttrDefault), true, true
			}
			return PropertyDescriptor{}, true, false
		}
	}
	return PropertyDescriptor{}, false, false
}

func uint32Value(n uint32) Value {
	if n <= 0x7FFFFFFF {
		return Integer(int32(n))
	}
	return Number(float64(n))
}

// arrayDefineOwnProperty implements ArrayDefineOwnProperty: the length
// property's truncation semantics plus index writes that may demote the
// array out of fast mode.
func (o *Object) arrayDefineOwnProperty(ctx *Context, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	a := o.array
	if key == ctx.Instance().lengthKey() {
		return o.arrayDefineLength(ctx, desc)
	}
	if idx, ok := IndexFromKey(key); ok {
		if idx >= a.length && !a.lengthWritable {
			return false, nil
		}
		if a.fast {
			if isPlainDataDescriptor(&desc) && idx <= a.length {
				if o.arrayFastSet(idx, desc.Value) {
					return true, nil
				}
			}
			o.demoteArray(ctx)
		}
		ok, err := o.ordinaryDefineOwnProperty(ctx, key, desc)
		if err != nil || !ok {
			return ok, err
		}
		if idx >= a.length {
			a.length = idx + 1
		}
		return true, nil
	}
	return o.ordinaryDefineOwnProperty(ctx, key, desc)
}

// isPlainDataDescriptor reports a data descriptor whose present attributes
// are all true, i.e. one that keeps an array in fast mode.
func isPlainDataDescriptor(d *PropertyDescriptor) bool {
	if d.IsAccessor() || !d.HasValue {
		return false
	}
	if d.HasWritable && !d.Writable {
		return false
	}
	if d.HasEnumerable && !d.Enumerable {
		return false
	}
	if d.HasConfigurable && !d.Configurable {
		return false
	}
	return true
}

func (o *Object) arrayDefineLength(ctx *Context, desc PropertyDescriptor) (bool, error) {
	a := o.array
	if desc.IsAccessor() {
		return false, nil
	}
	if desc.HasEnumerable && desc.Enumerable {
		return false, nil
	}
	if desc.HasConfigurable && desc.Configurable {
		return false, nil
	}
	if desc.HasValue {
		newLen, err := ctx.toArrayLength(desc.Value)
		if err != nil {
			return false, err
		}
		if !a.lengthWritable && newLen != a.length {
			return false, nil
		}
		if ok := o.setArrayLength(ctx, newLen); !ok {
			return false, nil
		}
	}
	if desc.HasWritable && !desc.Writable {
		a.lengthWritable = false
	} else if desc.HasWritable && desc.Writable && !a.lengthWritable {
		return false, nil
	}
	return true, nil
}

// setArrayLength truncates or extends the array to newLen. Truncation in
// slow mode deletes configurable indices from the top down and stops at the
// first non-configurable one, reporting failure per the spec.
func (o *Object) setArrayLength(ctx *Context, newLen uint32) bool {
	a := o.array
	if a.fast {
		if newLen < a.length {
			a.dense = a.dense[:newLen]
		} else if newLen > a.length {
			for i := a.length; i < newLen; i++ {
				a.dense = append(a.dense, Empty)
			}
		}
		a.length = newLen
		return true
	}
	if newLen >= a.length {
		a.length = newLen
		return true
	}
	// Collect present indices >= newLen and delete them descending.
	var present []uint32
	for _, f := range o.shape.Fields() {
		if f.Key.IsSymbol() {
			continue
		}
		if idx, ok := indexFromAtom(f.Key.atom); ok && idx >= newLen {
			present = append(present, idx)
		}
	}
	sortUint32(present)
	for i := len(present) - 1; i >= 0; i-- {
		idx := present[i]
		key := AtomKey(ctx.Instance().InternIndex(idx))
		if !o.DeleteOwnProperty(ctx, key) {
			a.length = idx + 1
			return false
		}
	}
	a.length = newLen
	return true
}

// ArraySet is the common a[i] = v path used by the interpreter and the
// builtins. It preserves fast mode when possible and demotes otherwise.
func (o *Object) ArraySet(ctx *Context, idx uint32, val Value) (bool, error) {
	if o.array.fast {
		if o.arrayFastSet(idx, val) {
			return true, nil
		}
		if !o.array.lengthWritable && idx >= o.array.length {
			return false, nil
		}
		o.demoteArray(ctx)
	}
	key := AtomKey(ctx.Instance().InternIndex(idx))
	ok, err := o.ordinaryDefineOwnProperty(ctx, key, DataDescriptor(val, AttrDefault))
	if err != nil || !ok {
		return ok, err
	}
	if idx >= o.array.length {
		o.array.length = idx + 1
	}
	return true, nil
}
