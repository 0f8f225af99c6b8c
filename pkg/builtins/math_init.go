package builtins

import (
	"math"
	"math/rand"

	"escargot/pkg/vm"
)

type MathInitializer struct{}

func (m *MathInitializer) Name() string  { return "Math" }
func (m *MathInitializer) Priority() int { return PriorityMath }

func mathUnary(fn func(float64) float64) vm.NativeFunc {
	return func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := ctx.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Number(fn(f)), nil
	}
}

func (m *MathInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	obj := ctx.NewPlainObject()
	rc.DefineGlobal("Math", vm.ObjectValue(obj))

	defineConstant(ctx, obj, "PI", vm.Number(math.Pi))
	defineConstant(ctx, obj, "E", vm.Number(math.E))
	defineConstant(ctx, obj, "LN2", vm.Number(math.Ln2))
	defineConstant(ctx, obj, "LN10", vm.Number(math.Log(10)))
	defineConstant(ctx, obj, "LOG2E", vm.Number(1/math.Ln2))
	defineConstant(ctx, obj, "LOG10E", vm.Number(1/math.Log(10)))
	defineConstant(ctx, obj, "SQRT2", vm.Number(math.Sqrt2))
	defineConstant(ctx, obj, "SQRT1_2", vm.Number(math.Sqrt(0.5)))

	defineMethod(ctx, obj, "abs", 1, mathUnary(math.Abs))
	defineMethod(ctx, obj, "floor", 1, mathUnary(math.Floor))
	defineMethod(ctx, obj, "ceil", 1, mathUnary(math.Ceil))
	defineMethod(ctx, obj, "trunc", 1, mathUnary(math.Trunc))
	defineMethod(ctx, obj, "sqrt", 1, mathUnary(math.Sqrt))
	defineMethod(ctx, obj, "cbrt", 1, mathUnary(math.Cbrt))
	defineMethod(ctx, obj, "sin", 1, mathUnary(math.Sin))
	defineMethod(ctx, obj, "cos", 1, mathUnary(math.Cos))
	defineMethod(ctx, obj, "tan", 1, mathUnary(math.Tan))
	defineMethod(ctx, obj, "asin", 1, mathUnary(math.Asin))
	defineMethod(ctx, obj, "acos", 1, mathUnary(math.Acos))
	defineMethod(ctx, obj, "atan", 1, mathUnary(math.Atan))
	defineMethod(ctx, obj, "sinh", 1, mathUnary(math.Sinh))
	defineMethod(ctx, obj, "cosh", 1, mathUnary(math.Cosh))
	defineMethod(ctx, obj, "tanh", 1, mathUnary(math.Tanh))
	defineMethod(ctx, obj, "log", 1, mathUnary(math.Log))
	defineMethod(ctx, obj, "log2", 1, mathUnary(math.Log2))
	defineMethod(ctx, obj, "log10", 1, mathUnary(math.Log10))
	defineMethod(ctx, obj, "log1p", 1, mathUnary(math.Log1p))
	defineMethod(ctx, obj, "exp", 1, mathUnary(math.Exp))
	defineMethod(ctx, obj, "expm1", 1, mathUnary(math.Expm1))
	defineMethod(ctx, obj, "sign", 1, mathUnary(func(f float64) float64 {
		switch {
		case math.IsNaN(f) || f == 0:
			return f
		case f > 0:
			return 1
		}
		return -1
	}))

	defineMethod(ctx, obj, "round", 1, mathUnary(func(f float64) float64 {
		// JS rounds half toward +Infinity.
		return math.Floor(f + 0.5)
	}))

	defineMethod(ctx, obj, "atan2", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		y, err := ctx.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		x, err := ctx.ToNumber(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Number(math.Atan2(y, x)), nil
	})

	defineMethod(ctx, obj, "pow", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := ctx.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		y, err := ctx.ToNumber(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Number(math.Pow(x, y)), nil
	})

	defineMethod(ctx, obj, "hypot", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		sum := 0.0
		for _, a := range args {
			f, err := ctx.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			sum += f * f
		}
		return vm.Number(math.Sqrt(sum)), nil
	})

	defineMethod(ctx, obj, "max", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		best := math.Inf(-1)
		for _, a := range args {
			f, err := ctx.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			if math.IsNaN(f) {
				return vm.NaN, nil
			}
			if f > best || (f == 0 && best == 0 && !math.Signbit(f)) {
				best = f
			}
		}
		return vm.Number(best), nil
	})

	defineMethod(ctx, obj, "min", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		best := math.Inf(1)
		for _, a := range args {
			f, err := ctx.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			if math.IsNaN(f) {
				return vm.NaN, nil
			}
			if f < best || (f == 0 && best == 0 && math.Signbit(f)) {
				best = f
			}
		}
		return vm.Number(best), nil
	})

	defineMethod(ctx, obj, "random", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Number(rand.Float64()), nil
	})

	return nil
}
