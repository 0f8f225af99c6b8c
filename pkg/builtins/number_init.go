package builtins

import (
	"math"
	"strconv"

	"escargot/pkg/vm"
)

type NumberInitializer struct{}

func (n *NumberInitializer) Name() string  { return "Number" }
func (n *NumberInitializer) Priority() int { return PriorityNumber }

func thisNumber(ctx *vm.Context, this vm.Value, method string) (float64, error) {
	if this.IsNumber() {
		return this.NumberValue(), nil
	}
	if this.IsObject() && this.AsObject().Kind() == vm.KindNumberObject {
		return this.AsObject().Internal().(*vm.PrimitiveData).Value.NumberValue(), nil
	}
	return 0, ctx.NewTypeError("Number.prototype.%s requires that 'this' be a Number", method)
}

func (n *NumberInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().NumberProto

	ctor := ctx.NewNativeConstructor("Number", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return vm.Integer(0), nil
			}
			f, err := ctx.ToNumber(args[0])
			if err != nil {
				return vm.Undefined, err
			}
			return vm.Number(f), nil
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			f := 0.0
			if len(args) > 0 {
				var err error
				if f, err = ctx.ToNumber(args[0]); err != nil {
					return vm.Undefined, err
				}
			}
			obj := vm.NewObjectWithShape(ctx.Instance().RootShape(), ctx.NumberPrototype())
			obj.SetKind(vm.KindNumberObject)
			obj.SetInternal(&vm.PrimitiveData{Value: vm.Number(f)})
			return vm.ObjectValue(obj), nil
		})
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("Number", vm.ObjectValue(ctor))

	defineConstant(ctx, ctor, "MAX_SAFE_INTEGER", vm.Number(float64(vm.MaxSafeInteger)))
	defineConstant(ctx, ctor, "MIN_SAFE_INTEGER", vm.Number(-float64(vm.MaxSafeInteger)))
	defineConstant(ctx, ctor, "MAX_VALUE", vm.Number(math.MaxFloat64))
	defineConstant(ctx, ctor, "MIN_VALUE", vm.Number(5e-324))
	defineConstant(ctx, ctor, "EPSILON", vm.Number(2.220446049250313e-16))
	defineConstant(ctx, ctor, "POSITIVE_INFINITY", vm.Number(math.Inf(1)))
	defineConstant(ctx, ctor, "NEGATIVE_INFINITY", vm.Number(math.Inf(-1)))
	defineConstant(ctx, ctor, "NaN", vm.NaN)

	defineMethod(ctx, ctor, "isNaN", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		return vm.Boolean(v.IsNumber() && math.IsNaN(v.NumberValue())), nil
	})
	defineMethod(ctx, ctor, "isFinite", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		if !v.IsNumber() {
			return vm.False, nil
		}
		f := v.NumberValue()
		return vm.Boolean(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
	})
	defineMethod(ctx, ctor, "isInteger", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		if !v.IsNumber() {
			return vm.False, nil
		}
		f := v.NumberValue()
		return vm.Boolean(!math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)), nil
	})
	defineMethod(ctx, ctor, "isSafeInteger", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		if !v.IsNumber() {
			return vm.False, nil
		}
		f := v.NumberValue()
		ok := !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f) && math.Abs(f) <= float64(vm.MaxSafeInteger)
		return vm.Boolean(ok), nil
	})

	defineMethod(ctx, proto, "valueOf", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(ctx, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Number(f), nil
	})

	defineMethod(ctx, proto, "toString", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(ctx, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		radix := 10
		if r := arg(args, 0); !r.IsUndefined() {
			rf, err := ctx.ToInteger(r)
			if err != nil {
				return vm.Undefined, err
			}
			radix = int(rf)
		}
		if radix < 2 || radix > 36 {
			return vm.Undefined, ctx.NewRangeError("toString() radix must be between 2 and 36")
		}
		return vm.StringValue(vm.NumberToStringRadix(f, radix)), nil
	})

	defineMethod(ctx, proto, "toLocaleString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(ctx, this, "toLocaleString")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(vm.NumberToString(f)), nil
	})

	defineMethod(ctx, proto, "toFixed", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(ctx, this, "toFixed")
		if err != nil {
			return vm.Undefined, err
		}
		dF, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		digits := int(dF)
		if digits < 0 || digits > 100 {
			return vm.Undefined, ctx.NewRangeError("toFixed() digits argument must be between 0 and 100")
		}
		if math.IsNaN(f) {
			return vm.StringValue("NaN"), nil
		}
		if math.Abs(f) >= 1e21 {
			return vm.StringValue(vm.NumberToString(f)), nil
		}
		return vm.StringValue(strconv.FormatFloat(f, 'f', digits, 64)), nil
	})

	defineMethod(ctx, proto, "toPrecision", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(ctx, this, "toPrecision")
		if err != nil {
			return vm.Undefined, err
		}
		p := arg(args, 0)
		if p.IsUndefined() {
			return vm.StringValue(vm.NumberToString(f)), nil
		}
		pF, err := ctx.ToInteger(p)
		if err != nil {
			return vm.Undefined, err
		}
		precision := int(pF)
		if precision < 1 || precision > 100 {
			return vm.Undefined, ctx.NewRangeError("toPrecision() argument must be between 1 and 100")
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return vm.StringValue(vm.NumberToString(f)), nil
		}
		out := strconv.FormatFloat(f, 'g', precision, 64)
		return vm.StringValue(out), nil
	})

	return nil
}
