package builtins

import (
	"escargot/pkg/vm"
)

type SymbolInitializer struct{}

func (s *SymbolInitializer) Name() string  { return "Symbol" }
func (s *SymbolInitializer) Priority() int { return PrioritySymbol }

func (s *SymbolInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().SymbolProto
	wk := ctx.Instance().WellKnown()

	ctor := ctx.NewNativeConstructor("Symbol", 0,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			var desc *vm.String
			if d := arg(args, 0); !d.IsUndefined() {
				var err error
				if desc, err = ctx.ToString(d); err != nil {
					return vm.Undefined, err
				}
			}
			return vm.SymbolValue(&vm.Symbol{Description: desc}), nil
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Undefined, ctx.NewTypeError("Symbol is not a constructor")
		})
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("Symbol", vm.ObjectValue(ctor))

	defineConstant(ctx, ctor, "iterator", vm.SymbolValue(wk.Iterator))
	defineConstant(ctx, ctor, "toPrimitive", vm.SymbolValue(wk.ToPrimitive))
	defineConstant(ctx, ctor, "toStringTag", vm.SymbolValue(wk.ToStringTag))
	defineConstant(ctx, ctor, "species", vm.SymbolValue(wk.Species))
	defineConstant(ctx, ctor, "isConcatSpreadable", vm.SymbolValue(wk.IsConcatSpreadable))
	defineConstant(ctx, ctor, "split", vm.SymbolValue(wk.Split))
	defineConstant(ctx, ctor, "hasInstance", vm.SymbolValue(wk.HasInstance))
	defineConstant(ctx, ctor, "unscopables", vm.SymbolValue(wk.Unscopables))

	defineMethod(ctx, ctor, "for", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		k, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.SymbolValue(ctx.Instance().SymbolFor(k.String())), nil
	})

	symbolOf := func(ctx *vm.Context, this vm.Value, method string) (*vm.Symbol, error) {
		if this.IsSymbol() {
			return this.AsSymbol(), nil
		}
		if this.IsObject() && this.AsObject().Kind() == vm.KindSymbolObject {
			return this.AsObject().Internal().(*vm.PrimitiveData).Value.AsSymbol(), nil
		}
		return nil, ctx.NewTypeError("Symbol.prototype.%s requires that 'this' be a Symbol", method)
	}

	defineMethod(ctx, proto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym, err := symbolOf(ctx, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		desc := ""
		if sym.Description != nil {
			desc = sym.Description.String()
		}
		return vm.StringValue("Symbol(" + desc + ")"), nil
	})

	defineMethod(ctx, proto, "valueOf", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym, err := symbolOf(ctx, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.SymbolValue(sym), nil
	})

	return nil
}
