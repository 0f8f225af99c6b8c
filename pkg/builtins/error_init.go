package builtins

import (
	"strings"

	"escargot/pkg/vm"
)

type ErrorInitializer struct{}

func (e *ErrorInitializer) Name() string  { return "Error" }
func (e *ErrorInitializer) Priority() int { return PriorityError }

var errorKinds = []vm.ErrorKind{
	vm.ErrorKindError,
	vm.ErrorKindSyntaxError,
	vm.ErrorKindReferenceError,
	vm.ErrorKindTypeError,
	vm.ErrorKindRangeError,
	vm.ErrorKindURIError,
	vm.ErrorKindEvalError,
}

func (e *ErrorInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx

	for _, kind := range errorKinds {
		kind := kind
		proto := ctx.Intrinsics().ErrorProtos[kind]
		name := kind.Name()

		build := func(ctx *vm.Context, args []vm.Value) (vm.Value, error) {
			obj := ctx.NewErrorObject(kind, "")
			if m := arg(args, 0); !m.IsUndefined() {
				msg, err := ctx.ToString(m)
				if err != nil {
					return vm.Undefined, err
				}
				obj.DefineOwn(ctx, key(ctx, "message"), vm.NewStringValue(msg), vm.AttrWritable|vm.AttrConfigurable)
			}
			return vm.ObjectValue(obj), nil
		}
		ctor := ctx.NewNativeConstructor(name, 1,
			func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
				return build(ctx, args)
			},
			func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
				return build(ctx, args)
			})
		ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
		defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
		defineValue(ctx, proto, "name", vm.StringValue(name))
		defineValue(ctx, proto, "message", vm.StringValue(""))
		ctx.Intrinsics().ErrorCtors[kind] = vm.ObjectValue(ctor)
		rc.DefineGlobal(name, vm.ObjectValue(ctor))
	}

	errProto := ctx.Intrinsics().ErrorProtos[vm.ErrorKindError]
	defineMethod(ctx, errProto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsObject() {
			return vm.Undefined, ctx.NewTypeError("Error.prototype.toString called on non-object")
		}
		obj := this.AsObject()
		name := "Error"
		if v, err := ctx.GetProperty(this, key(ctx, "name")); err == nil && !v.IsUndefined() {
			if s, err := ctx.ToString(v); err == nil {
				name = s.String()
			}
		}
		msg := ""
		if v, err := obj.Get(ctx, key(ctx, "message"), this); err == nil && !v.IsUndefined() {
			if s, err := ctx.ToString(v); err == nil {
				msg = s.String()
			}
		}
		switch {
		case name == "":
			return vm.StringValue(msg), nil
		case msg == "":
			return vm.StringValue(name), nil
		}
		return vm.StringValue(name + ": " + msg), nil
	})

	// stack renders the trace captured when the error object was created.
	defineGetterProp(ctx, errProto, "stack", func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsObject() || this.AsObject().Kind() != vm.KindError {
			return vm.Undefined, nil
		}
		data, ok := this.AsObject().Internal().(*vm.ErrorData)
		if !ok {
			return vm.Undefined, nil
		}
		header := "Error"
		if ts, err := ctx.GetProperty(this, key(ctx, "toString")); err == nil && ts.IsCallable() {
			if res, err := ctx.Call(ts, this, nil); err == nil && res.IsString() {
				header = res.AsString().String()
			}
		}
		var b strings.Builder
		b.WriteString(header)
		for _, site := range data.Stack {
			b.WriteString("\n    at ")
			b.WriteString(site.Src)
			b.WriteString(":")
			b.WriteString(vm.NumberToString(float64(site.Line)))
			b.WriteString(":")
			b.WriteString(vm.NumberToString(float64(site.Column)))
		}
		return vm.StringValue(b.String()), nil
	})

	return nil
}
