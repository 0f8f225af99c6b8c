package builtins

import (
	"escargot/pkg/vm"
)

type BooleanInitializer struct{}

func (b *BooleanInitializer) Name() string  { return "Boolean" }
func (b *BooleanInitializer) Priority() int { return PriorityBoolean }

func thisBoolean(ctx *vm.Context, this vm.Value, method string) (bool, error) {
	if this.IsBoolean() {
		return this.AsBoolean(), nil
	}
	if this.IsObject() && this.AsObject().Kind() == vm.KindBooleanObject {
		return this.AsObject().Internal().(*vm.PrimitiveData).Value.AsBoolean(), nil
	}
	return false, ctx.NewTypeError("Boolean.prototype.%s requires that 'this' be a Boolean", method)
}

func (b *BooleanInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().BooleanProto

	ctor := ctx.NewNativeConstructor("Boolean", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Boolean(vm.ToBoolean(arg(args, 0))), nil
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			obj := vm.NewObjectWithShape(ctx.Instance().RootShape(), ctx.BooleanPrototype())
			obj.SetKind(vm.KindBooleanObject)
			obj.SetInternal(&vm.PrimitiveData{Value: vm.Boolean(vm.ToBoolean(arg(args, 0)))})
			return vm.ObjectValue(obj), nil
		})
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("Boolean", vm.ObjectValue(ctor))

	defineMethod(ctx, proto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, err := thisBoolean(ctx, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		if v {
			return vm.StringValue("true"), nil
		}
		return vm.StringValue("false"), nil
	})

	defineMethod(ctx, proto, "valueOf", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, err := thisBoolean(ctx, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(v), nil
	})

	return nil
}
