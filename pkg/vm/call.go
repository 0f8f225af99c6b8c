package vm

// Call invokes callee with the given this binding and arguments. Dispatch
// is on the callee kind: native builtins call straight into Go, interpreted
// functions get a frame, everything else raises the TypeError kind.
func (ctx *Context) Call(callee, this Value, args []Value) (Value, error) {
	if !callee.IsObject() {
		return Undefined, ctx.NewTypeError("%s is not a function", callee.TypeOf())
	}
	obj := callee.AsObject()
	switch obj.kind {
	case KindNativeFunction:
		return obj.internal.(*NativeData).Fn(ctx, this, args)
	case KindFunction:
		data := obj.internal.(*FunctionData)
		if data.HasThis {
			// Arrow: this is lexical, the caller's binding is ignored.
			this = data.This
		}
		return ctx.vm.CallFunction(obj, this, args)
	case KindBoundFunction:
		data := obj.internal.(*BoundData)
		merged := append(append([]Value{}, data.BoundArgs...), args...)
		return ctx.Call(data.Target, data.BoundThis, merged)
	}
	return Undefined, ctx.NewTypeError("object is not a function")
}

// Construct implements the new operator: allocate this from the callee's
// prototype property, run the body, and keep an explicit object return over
// the allocated instance.
func (ctx *Context) Construct(callee Value, args []Value) (Value, error) {
	if !callee.IsObject() {
		return Undefined, ctx.NewTypeError("%s is not a constructor", callee.TypeOf())
	}
	obj := callee.AsObject()
	switch obj.kind {
	case KindNativeFunction:
		data := obj.internal.(*NativeData)
		if data.Ctor == nil {
			return Undefined, ctx.NewTypeError("%s is not a constructor", data.Name)
		}
		return data.Ctor(ctx, callee, args)
	case KindBoundFunction:
		data := obj.internal.(*BoundData)
		merged := append(append([]Value{}, data.BoundArgs...), args...)
		return ctx.Construct(data.Target, merged)
	case KindFunction:
		data := obj.internal.(*FunctionData)
		if data.Block.IsArrow {
			return Undefined, ctx.NewTypeError("%s is not a constructor", obj.FunctionName())
		}
		protoVal, err := obj.Get(ctx, AtomKey(ctx.instance.Intern("prototype")), callee)
		if err != nil {
			return Undefined, err
		}
		proto := ctx.ObjectPrototype()
		if protoVal.IsObject() {
			proto = protoVal
		}
		this := &Object{kind: KindPlain, shape: ctx.instance.rootShape, prototype: proto, extensible: true}
		result, err := ctx.vm.CallFunction(obj, ObjectValue(this), args)
		if err != nil {
			return Undefined, err
		}
		if result.IsObject() {
			return result, nil
		}
		return ObjectValue(this), nil
	}
	return Undefined, ctx.NewTypeError("object is not a constructor")
}

// InstanceOf implements the instanceof operator, honoring @@hasInstance.
func (ctx *Context) InstanceOf(v Value, target Value) (bool, error) {
	if !target.IsObject() {
		return false, ctx.NewTypeError("Right-hand side of 'instanceof' is not an object")
	}
	hasInstance, err := target.AsObject().Get(ctx, SymbolKey(ctx.instance.wellKnown.HasInstance), target)
	if err != nil {
		return false, err
	}
	if hasInstance.IsCallable() {
		res, err := ctx.Call(hasInstance, target, []Value{v})
		if err != nil {
			return false, err
		}
		return ToBoolean(res), nil
	}
	if !target.IsCallable() {
		return false, ctx.NewTypeError("Right-hand side of 'instanceof' is not callable")
	}
	if !v.IsObject() {
		return false, nil
	}
	protoVal, err := target.AsObject().Get(ctx, AtomKey(ctx.instance.Intern("prototype")), target)
	if err != nil {
		return false, err
	}
	if !protoVal.IsObject() {
		return false, ctx.NewTypeError("Function has non-object prototype in instanceof")
	}
	proto := protoVal.AsObject()
	cur := v.AsObject().prototype
	for cur.IsObject() {
		if cur.AsObject() == proto {
			return true, nil
		}
		cur = cur.AsObject().prototype
	}
	return false, nil
}
