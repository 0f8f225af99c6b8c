package builtins

import (
	"escargot/pkg/vm"
)

type IteratorInitializer struct{}

func (i *IteratorInitializer) Name() string  { return "Iterator" }
func (i *IteratorInitializer) Priority() int { return PriorityIterator }

func iterResult(ctx *vm.Context, value vm.Value, done bool) vm.Value {
	obj := ctx.NewPlainObject()
	obj.DefineOwn(ctx, key(ctx, "value"), value, vm.AttrDefault)
	obj.DefineOwn(ctx, key(ctx, "done"), vm.Boolean(done), vm.AttrDefault)
	return vm.ObjectValue(obj)
}

func (i *IteratorInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	wk := ctx.Instance().WellKnown()
	iterProto := ctx.Intrinsics().IteratorProto

	// %IteratorPrototype%[@@iterator] returns the receiver.
	defineSymbolMethod(ctx, iterProto, wk.Iterator, "[Symbol.iterator]", 0,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			return this, nil
		})

	arrayIterProto := ctx.Intrinsics().ArrayIteratorProto
	defineMethod(ctx, arrayIterProto, "next", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsObject() || this.AsObject().Kind() != vm.KindArrayIterator {
			return vm.Undefined, ctx.NewTypeError("next called on incompatible receiver")
		}
		data := this.AsObject().Internal().(*vm.IteratorData)
		if data.Done {
			return iterResult(ctx, vm.Undefined, true), nil
		}
		length, err := lengthOf(ctx, data.Target)
		if err != nil {
			return vm.Undefined, err
		}
		if int64(data.Index) >= length {
			data.Done = true
			return iterResult(ctx, vm.Undefined, true), nil
		}
		idx := int64(data.Index)
		data.Index++
		switch data.Kind {
		case vm.IterKeys:
			return iterResult(ctx, vm.Number(float64(idx)), false), nil
		case vm.IterValues:
			v, err := getElement(ctx, data.Target, idx)
			if err != nil {
				return vm.Undefined, err
			}
			return iterResult(ctx, v, false), nil
		default:
			v, err := getElement(ctx, data.Target, idx)
			if err != nil {
				return vm.Undefined, err
			}
			pair := ctx.NewArrayFromValues([]vm.Value{vm.Number(float64(idx)), v})
			return iterResult(ctx, vm.ObjectValue(pair), false), nil
		}
	})

	stringIterProto := ctx.Intrinsics().StringIteratorProto
	defineMethod(ctx, stringIterProto, "next", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsObject() || this.AsObject().Kind() != vm.KindStringIterator {
			return vm.Undefined, ctx.NewTypeError("next called on incompatible receiver")
		}
		data := this.AsObject().Internal().(*vm.IteratorData)
		str := data.Target.AsString()
		if data.Done || data.Index >= str.Length() {
			data.Done = true
			return iterResult(ctx, vm.Undefined, true), nil
		}
		// Advance by code point: surrogate pairs yield as one element.
		start := data.Index
		first := str.CharCodeAt(start)
		size := 1
		if first >= 0xD800 && first <= 0xDBFF && start+1 < str.Length() {
			second := str.CharCodeAt(start + 1)
			if second >= 0xDC00 && second <= 0xDFFF {
				size = 2
			}
		}
		data.Index += size
		return iterResult(ctx, vm.NewStringValue(str.Substring(start, start+size)), false), nil
	})

	return nil
}
