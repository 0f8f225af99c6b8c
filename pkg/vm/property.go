package vm

// GetProperty reads base[key] for any base value: objects dispatch through
// the object model, primitives read through their wrapper prototype with
// the primitive itself as receiver, and nullish bases fail with the
// TypeError kind.
func (ctx *Context) GetProperty(base Value, key PropertyKey) (Value, error) {
	switch base.Type() {
	case TypeUndefined, TypeNull:
		return Undefined, ctx.NewTypeError("Cannot read property '%s' of %s", key.String(), base.TypeOf())
	case TypeObject:
		obj := base.AsObject()
		if obj.array != nil && obj.array.fast {
			if idx, ok := IndexFromKey(key); ok {
				if v, hit := obj.ArrayFastGet(idx); hit {
					if v.IsEmpty() {
						return ctx.protoChainGet(obj.prototype, key, base)
					}
					return v, nil
				}
				// Beyond the fast range: holes defer to the prototype.
				return ctx.protoChainGet(obj.prototype, key, base)
			}
		}
		return obj.Get(ctx, key, base)
	case TypeString:
		str := base.AsString()
		if key == ctx.instance.lengthKey() {
			return Integer(int32(str.Length())), nil
		}
		if idx, ok := IndexFromKey(key); ok {
			if int(idx) < str.Length() {
				return NewStringValue(str.Substring(int(idx), int(idx)+1)), nil
			}
			return Undefined, nil
		}
		return ctx.intrinsics.StringProto.Get(ctx, key, base)
	case TypeBoolean:
		return ctx.intrinsics.BooleanProto.Get(ctx, key, base)
	case TypeInteger, TypeFloat:
		return ctx.intrinsics.NumberProto.Get(ctx, key, base)
	case TypeSymbol:
		return ctx.intrinsics.SymbolProto.Get(ctx, key, base)
	}
	return Undefined, nil
}

func (ctx *Context) protoChainGet(proto Value, key PropertyKey, receiver Value) (Value, error) {
	if !proto.IsObject() {
		return Undefined, nil
	}
	return proto.AsObject().Get(ctx, key, receiver)
}

// GetIndexed reads base[idx] where idx is an arbitrary value, taking the
// dense-vector fast path for int-indexed fast arrays.
func (ctx *Context) GetIndexed(base Value, idx Value) (Value, error) {
	if base.IsObject() && idx.IsInteger() && idx.AsInteger() >= 0 {
		obj := base.AsObject()
		if obj.array != nil && obj.array.fast {
			if v, hit := obj.ArrayFastGet(uint32(idx.AsInteger())); hit && !v.IsEmpty() {
				return v, nil
			}
		}
	}
	key, err := ctx.ToPropertyKey(idx)
	if err != nil {
		return Undefined, err
	}
	return ctx.GetProperty(base, key)
}

// SetProperty writes base[key]. A rejected write throws in strict mode and
// silently no-ops in sloppy mode.
func (ctx *Context) SetProperty(base Value, key PropertyKey, val Value, strict bool) error {
	switch base.Type() {
	case TypeUndefined, TypeNull:
		return ctx.NewTypeError("Cannot set property '%s' of %s", key.String(), base.TypeOf())
	case TypeObject:
		obj := base.AsObject()
		if obj.array != nil && obj.array.fast {
			if idx, ok := IndexFromKey(key); ok {
				ok, err := obj.ArraySet(ctx, idx, val)
				if err != nil {
					return err
				}
				if !ok && strict {
					return ctx.NewTypeError("Cannot assign to read only property '%s'", key.String())
				}
				return nil
			}
		}
		ok, err := obj.Set(ctx, key, val, base)
		if err != nil {
			return err
		}
		if !ok && strict {
			return ctx.NewTypeError("Cannot assign to read only property '%s'", key.String())
		}
		return nil
	default:
		// Primitive receiver: the write may still hit a prototype setter.
		proto := ctx.wrapperPrototype(base)
		if proto != nil {
			if desc, obj := findAccessor(ctx, proto, key); obj != nil {
				if desc.Setter.IsCallable() {
					_, err := ctx.Call(desc.Setter, base, []Value{val})
					return err
				}
			}
		}
		if strict {
			return ctx.NewTypeError("Cannot create property '%s' on %s", key.String(), base.TypeOf())
		}
		return nil
	}
}

// SetIndexed writes base[idx] for an arbitrary index value.
func (ctx *Context) SetIndexed(base Value, idx Value, val Value, strict bool) error {
	if base.IsObject() && idx.IsInteger() && idx.AsInteger() >= 0 {
		obj := base.AsObject()
		if obj.array != nil && obj.array.fast {
			i := uint32(idx.AsInteger())
			if i < obj.array.length {
				obj.array.dense[i] = val
				return nil
			}
		}
	}
	key, err := ctx.ToPropertyKey(idx)
	if err != nil {
		return err
	}
	return ctx.SetProperty(base, key, val, strict)
}

func (ctx *Context) wrapperPrototype(v Value) *Object {
	switch v.Type() {
	case TypeString:
		return ctx.intrinsics.StringProto
	case TypeBoolean:
		return ctx.intrinsics.BooleanProto
	case TypeInteger, TypeFloat:
		return ctx.intrinsics.NumberProto
	case TypeSymbol:
		return ctx.intrinsics.SymbolProto
	}
	return nil
}

func findAccessor(ctx *Context, start *Object, key PropertyKey) (PropertyDescriptor, *Object) {
	cur := start
	for cur != nil {
		if desc, ok := cur.GetOwnProperty(ctx, key); ok {
			if desc.IsAccessor() {
				return desc, cur
			}
			return PropertyDescriptor{}, nil
		}
		if !cur.prototype.IsObject() {
			return PropertyDescriptor{}, nil
		}
		cur = cur.prototype.AsObject()
	}
	return PropertyDescriptor{}, nil
}

// HasProperty implements the in operator. The right operand must be an
// object.
func (ctx *Context) HasProperty(key Value, base Value) (bool, error) {
	if !base.IsObject() {
		return false, ctx.NewTypeError("Cannot use 'in' operator to search in %s", base.TypeOf())
	}
	k, err := ctx.ToPropertyKey(key)
	if err != nil {
		return false, err
	}
	return base.AsObject().Has(ctx, k), nil
}

// DeleteProperty implements the delete operator on base[key].
func (ctx *Context) DeleteProperty(base Value, key Value, strict bool) (bool, error) {
	if !base.IsObject() {
		// delete on primitives succeeds vacuously (and nullish bases throw).
		if base.IsNullish() {
			return false, ctx.NewTypeError("Cannot convert undefined or null to object")
		}
		return true, nil
	}
	k, err := ctx.ToPropertyKey(key)
	if err != nil {
		return false, err
	}
	ok := base.AsObject().DeleteOwnProperty(ctx, k)
	if !ok && strict {
		return false, ctx.NewTypeError("Cannot delete property '%s'", k.String())
	}
	return ok, nil
}
