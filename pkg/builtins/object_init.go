package builtins

import (
	"escargot/pkg/vm"
)

type ObjectInitializer struct{}

func (o *ObjectInitializer) Name() string  { return "Object" }
func (o *ObjectInitializer) Priority() int { return PriorityObject }

func (o *ObjectInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().ObjectProto

	ctor := ctx.NewNativeConstructor("Object", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			v := arg(args, 0)
			if v.IsNullish() {
				return vm.ObjectValue(ctx.NewPlainObject()), nil
			}
			obj, err := ctx.ToObject(v)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(obj), nil
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			v := arg(args, 0)
			if v.IsNullish() {
				return vm.ObjectValue(ctx.NewPlainObject()), nil
			}
			obj, err := ctx.ToObject(v)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(obj), nil
		})
	ctx.Intrinsics().ObjectCtor = vm.ObjectValue(ctor)
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("Object", vm.ObjectValue(ctor))

	defineMethod(ctx, proto, "hasOwnProperty", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		k, err := ctx.ToPropertyKey(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(obj.HasOwnProperty(ctx, k)), nil
	})

	defineMethod(ctx, proto, "isPrototypeOf", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		if !v.IsObject() {
			return vm.False, nil
		}
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		cur := v.AsObject().GetPrototype()
		for cur.IsObject() {
			if cur.AsObject() == obj {
				return vm.True, nil
			}
			cur = cur.AsObject().GetPrototype()
		}
		return vm.False, nil
	})

	defineMethod(ctx, proto, "propertyIsEnumerable", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		k, err := ctx.ToPropertyKey(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		desc, ok := obj.GetOwnProperty(ctx, k)
		return vm.Boolean(ok && desc.Enumerable), nil
	})

	defineMethod(ctx, proto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		switch this.Type() {
		case vm.TypeUndefined:
			return vm.StringValue("[object Undefined]"), nil
		case vm.TypeNull:
			return vm.StringValue("[object Null]"), nil
		}
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		tag := "Object"
		switch obj.Kind() {
		case vm.KindArray:
			tag = "Array"
		case vm.KindFunction, vm.KindNativeFunction, vm.KindBoundFunction:
			tag = "Function"
		case vm.KindError:
			tag = "Error"
		case vm.KindBooleanObject:
			tag = "Boolean"
		case vm.KindNumberObject:
			tag = "Number"
		case vm.KindStringObject:
			tag = "String"
		case vm.KindArguments:
			tag = "Arguments"
		case vm.KindRegExp:
			tag = "RegExp"
		}
		if custom, err := obj.Get(ctx, vm.SymbolKey(ctx.Instance().WellKnown().ToStringTag), this); err == nil && custom.IsString() {
			tag = custom.AsString().String()
		}
		return vm.StringValue("[object " + tag + "]"), nil
	})

	defineMethod(ctx, proto, "toLocaleString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := ctx.GetProperty(this, key(ctx, "toString"))
		if err != nil {
			return vm.Undefined, err
		}
		return ctx.Call(m, this, nil)
	})

	defineMethod(ctx, proto, "valueOf", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(obj), nil
	})

	defineMethod(ctx, ctor, "getPrototypeOf", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return obj.GetPrototype(), nil
	})

	defineMethod(ctx, ctor, "setPrototypeOf", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := arg(args, 0)
		proto := arg(args, 1)
		if target.IsNullish() {
			return vm.Undefined, ctx.NewTypeError("Object.setPrototypeOf called on null or undefined")
		}
		if !proto.IsObject() && !proto.IsNull() {
			return vm.Undefined, ctx.NewTypeError("Object prototype may only be an Object or null")
		}
		if !target.IsObject() {
			return target, nil
		}
		if !target.AsObject().SetPrototype(proto) {
			return vm.Undefined, ctx.NewTypeError("Cannot set prototype of non-extensible object or create a prototype cycle")
		}
		return target, nil
	})

	defineMethod(ctx, ctor, "create", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		protoArg := arg(args, 0)
		if !protoArg.IsObject() && !protoArg.IsNull() {
			return vm.Undefined, ctx.NewTypeError("Object prototype may only be an Object or null")
		}
		obj := vm.NewObjectWithShape(ctx.Instance().RootShape(), protoArg)
		if props := arg(args, 1); !props.IsUndefined() {
			if err := defineProperties(ctx, obj, props); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(obj), nil
	})

	defineMethod(ctx, ctor, "defineProperty", 3, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := arg(args, 0)
		if !target.IsObject() {
			return vm.Undefined, ctx.NewTypeError("Object.defineProperty called on non-object")
		}
		k, err := ctx.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		desc, err := toPropertyDescriptor(ctx, arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := target.AsObject().DefineOwnProperty(ctx, k, desc)
		if err != nil {
			return vm.Undefined, err
		}
		if !ok {
			return vm.Undefined, ctx.NewTypeError("Cannot redefine property: %s", k.String())
		}
		return target, nil
	})

	defineMethod(ctx, ctor, "defineProperties", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := arg(args, 0)
		if !target.IsObject() {
			return vm.Undefined, ctx.NewTypeError("Object.defineProperties called on non-object")
		}
		if err := defineProperties(ctx, target.AsObject(), arg(args, 1)); err != nil {
			return vm.Undefined, err
		}
		return target, nil
	})

	defineMethod(ctx, ctor, "getOwnPropertyDescriptor", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		k, err := ctx.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		desc, ok := obj.GetOwnProperty(ctx, k)
		if !ok {
			return vm.Undefined, nil
		}
		return fromPropertyDescriptor(ctx, desc), nil
	})

	defineMethod(ctx, ctor, "getOwnPropertyNames", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := ctx.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		var names []vm.Value
		for _, k := range obj.OwnKeys(ctx) {
			if !k.IsSymbol() {
				names = append(names, vm.AtomValue(k.Atom()))
			}
		}
		return vm.ObjectValue(ctx.NewArrayFromValues(names)), nil
	})

	defineMethod(ctx, ctor, "keys", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return objectEnumerableSlice(ctx, arg(args, 0), func(k vm.PropertyKey, v vm.Value) vm.Value {
			return vm.AtomValue(k.Atom())
		})
	})

	defineMethod(ctx, ctor, "values", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return objectEnumerableSlice(ctx, arg(args, 0), func(k vm.PropertyKey, v vm.Value) vm.Value {
			return v
		})
	})

	defineMethod(ctx, ctor, "entries", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return objectEnumerableSlice(ctx, arg(args, 0), func(k vm.PropertyKey, v vm.Value) vm.Value {
			pair := ctx.NewArrayFromValues([]vm.Value{vm.AtomValue(k.Atom()), v})
			return vm.ObjectValue(pair)
		})
	})

	defineMethod(ctx, ctor, "assign", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := ctx.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		for _, src := range args[1:] {
			if src.IsNullish() {
				continue
			}
			srcObj, err := ctx.ToObject(src)
			if err != nil {
				return vm.Undefined, err
			}
			for _, k := range srcObj.OwnKeys(ctx) {
				desc, ok := srcObj.GetOwnProperty(ctx, k)
				if !ok || !desc.Enumerable {
					continue
				}
				v, err := srcObj.Get(ctx, k, src)
				if err != nil {
					return vm.Undefined, err
				}
				if err := ctx.SetProperty(vm.ObjectValue(target), k, v, true); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return vm.ObjectValue(target), nil
	})

	defineMethod(ctx, ctor, "freeze", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		if !v.IsObject() {
			return v, nil
		}
		obj := v.AsObject()
		obj.PreventExtensions()
		for _, k := range obj.OwnKeys(ctx) {
			desc, ok := obj.GetOwnProperty(ctx, k)
			if !ok {
				continue
			}
			update := vm.PropertyDescriptor{HasConfigurable: true, Configurable: false}
			if !desc.IsAccessor() {
				update.HasWritable = true
				update.Writable = false
			}
			obj.DefineOwnProperty(ctx, k, update)
		}
		return v, nil
	})

	defineMethod(ctx, ctor, "isFrozen", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		if !v.IsObject() {
			return vm.True, nil
		}
		obj := v.AsObject()
		if obj.IsExtensible() {
			return vm.False, nil
		}
		for _, k := range obj.OwnKeys(ctx) {
			desc, ok := obj.GetOwnProperty(ctx, k)
			if !ok {
				continue
			}
			if desc.Configurable || (!desc.IsAccessor() && desc.Writable) {
				return vm.False, nil
			}
		}
		return vm.True, nil
	})

	defineMethod(ctx, ctor, "preventExtensions", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if v := arg(args, 0); v.IsObject() {
			v.AsObject().PreventExtensions()
		}
		return arg(args, 0), nil
	})

	defineMethod(ctx, ctor, "isExtensible", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		return vm.Boolean(v.IsObject() && v.AsObject().IsExtensible()), nil
	})

	return nil
}

func objectEnumerableSlice(ctx *vm.Context, v vm.Value, pick func(vm.PropertyKey, vm.Value) vm.Value) (vm.Value, error) {
	obj, err := ctx.ToObject(v)
	if err != nil {
		return vm.Undefined, err
	}
	var out []vm.Value
	for _, k := range obj.OwnKeys(ctx) {
		if k.IsSymbol() {
			continue
		}
		desc, ok := obj.GetOwnProperty(ctx, k)
		if !ok || !desc.Enumerable {
			continue
		}
		val, err := obj.Get(ctx, k, vm.ObjectValue(obj))
		if err != nil {
			return vm.Undefined, err
		}
		out = append(out, pick(k, val))
	}
	return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
}

func defineProperties(ctx *vm.Context, target *vm.Object, propsVal vm.Value) error {
	props, err := ctx.ToObject(propsVal)
	if err != nil {
		return err
	}
	for _, k := range props.OwnKeys(ctx) {
		d, ok := props.GetOwnProperty(ctx, k)
		if !ok || !d.Enumerable {
			continue
		}
		descVal, err := props.Get(ctx, k, propsVal)
		if err != nil {
			return err
		}
		desc, err := toPropertyDescriptor(ctx, descVal)
		if err != nil {
			return err
		}
		ok2, err := target.DefineOwnProperty(ctx, k, desc)
		if err != nil {
			return err
		}
		if !ok2 {
			return ctx.NewTypeError("Cannot redefine property: %s", k.String())
		}
	}
	return nil
}

// toPropertyDescriptor implements ES2017 6.2.5.5.
func toPropertyDescriptor(ctx *vm.Context, v vm.Value) (vm.PropertyDescriptor, error) {
	var desc vm.PropertyDescriptor
	if !v.IsObject() {
		return desc, ctx.NewTypeError("Property description must be an object")
	}
	obj := v.AsObject()
	read := func(name string) (vm.Value, bool, error) {
		k := key(ctx, name)
		if !obj.Has(ctx, k) {
			return vm.Undefined, false, nil
		}
		val, err := obj.Get(ctx, k, v)
		return val, true, err
	}
	if val, has, err := read("value"); err != nil {
		return desc, err
	} else if has {
		desc.Value, desc.HasValue = val, true
	}
	if val, has, err := read("writable"); err != nil {
		return desc, err
	} else if has {
		desc.Writable, desc.HasWritable = vm.ToBoolean(val), true
	}
	if val, has, err := read("enumerable"); err != nil {
		return desc, err
	} else if has {
		desc.Enumerable, desc.HasEnumerable = vm.ToBoolean(val), true
	}
	if val, has, err := read("configurable"); err != nil {
		return desc, err
	} else if has {
		desc.Configurable, desc.HasConfigurable = vm.ToBoolean(val), true
	}
	if val, has, err := read("get"); err != nil {
		return desc, err
	} else if has {
		if !val.IsCallable() && !val.IsUndefined() {
			return desc, ctx.NewTypeError("Getter must be a function")
		}
		desc.Getter, desc.HasGetter = val, true
	}
	if val, has, err := read("set"); err != nil {
		return desc, err
	} else if has {
		if !val.IsCallable() && !val.IsUndefined() {
			return desc, ctx.NewTypeError("Setter must be a function")
		}
		desc.Setter, desc.HasSetter = val, true
	}
	if desc.IsAccessor() && (desc.HasValue || desc.HasWritable) {
		return desc, ctx.NewTypeError("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute")
	}
	return desc, nil
}

func fromPropertyDescriptor(ctx *vm.Context, desc vm.PropertyDescriptor) vm.Value {
	obj := ctx.NewPlainObject()
	if desc.IsAccessor() {
		obj.DefineOwn(ctx, key(ctx, "get"), desc.Getter, vm.AttrDefault)
		obj.DefineOwn(ctx, key(ctx, "set"), desc.Setter, vm.AttrDefault)
	} else {
		obj.DefineOwn(ctx, key(ctx, "value"), desc.Value, vm.AttrDefault)
		obj.DefineOwn(ctx, key(ctx, "writable"), vm.Boolean(desc.Writable), vm.AttrDefault)
	}
	obj.DefineOwn(ctx, key(ctx, "enumerable"), vm.Boolean(desc.Enumerable), vm.AttrDefault)
	obj.DefineOwn(ctx, key(ctx, "configurable"), vm.Boolean(desc.Configurable), vm.AttrDefault)
	return vm.ObjectValue(obj)
}
