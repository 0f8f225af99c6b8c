package builtins

import (
	"escargot/pkg/vm"
)

type FunctionInitializer struct{}

func (f *FunctionInitializer) Name() string  { return "Function" }
func (f *FunctionInitializer) Priority() int { return PriorityFunction }

func (f *FunctionInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().FunctionProto

	ctor := ctx.NewNativeFunction("Function", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Undefined, ctx.NewTypeError("Function constructor is not supported")
	})
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("Function", vm.ObjectValue(ctor))

	defineMethod(ctx, proto, "call", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, ctx.NewTypeError("Function.prototype.call called on non-callable")
		}
		thisArg := arg(args, 0)
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return ctx.Call(this, thisArg, rest)
	})

	defineMethod(ctx, proto, "apply", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, ctx.NewTypeError("Function.prototype.apply called on non-callable")
		}
		thisArg := arg(args, 0)
		list := arg(args, 1)
		if list.IsNullish() {
			return ctx.Call(this, thisArg, nil)
		}
		callArgs, err := createListFromArrayLike(ctx, list)
		if err != nil {
			return vm.Undefined, err
		}
		return ctx.Call(this, thisArg, callArgs)
	})

	defineMethod(ctx, proto, "bind", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, ctx.NewTypeError("Function.prototype.bind called on non-callable")
		}
		var bound []vm.Value
		if len(args) > 1 {
			bound = append(bound, args[1:]...)
		}
		fn := vm.NewObjectWithShape(ctx.Instance().RootShape(), ctx.FunctionPrototype())
		fn.SetKind(vm.KindBoundFunction)
		fn.SetInternal(&vm.BoundData{Target: this, BoundThis: arg(args, 0), BoundArgs: bound})
		name := "bound " + this.AsObject().FunctionName()
		fn.DefineOwn(ctx, key(ctx, "name"), vm.StringValue(name), vm.AttrConfigurable)
		return vm.ObjectValue(fn), nil
	})

	defineMethod(ctx, proto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, ctx.NewTypeError("Function.prototype.toString called on non-callable")
		}
		name := this.AsObject().FunctionName()
		return vm.StringValue("function " + name + "() { [native code] }"), nil
	})

	return nil
}

// createListFromArrayLike reads an array-like into a Go slice.
func createListFromArrayLike(ctx *vm.Context, v vm.Value) ([]vm.Value, error) {
	if !v.IsObject() {
		return nil, ctx.NewTypeError("CreateListFromArrayLike called on non-object")
	}
	lenVal, err := ctx.GetProperty(v, key(ctx, "length"))
	if err != nil {
		return nil, err
	}
	n, err := ctx.ToLength(lenVal)
	if err != nil {
		return nil, err
	}
	out := make([]vm.Value, 0, n)
	for i := int64(0); i < n; i++ {
		el, err := ctx.GetProperty(v, vm.AtomKey(ctx.Instance().InternIndex(uint32(i))))
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}
