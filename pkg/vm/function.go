package vm

// FunctionData is the internal slot record of an interpreted function: the
// compiled code block plus the environment chain it closed over.
type FunctionData struct {
	Block *CodeBlock
	Env   *Environment
	// Arrows capture the this binding of their defining frame.
	This    Value
	HasThis bool
}

// NativeFunc is the Go signature of a builtin. A non-nil error is always a
// *Thrown carrying the script-visible exception value.
type NativeFunc func(ctx *Context, this Value, args []Value) (Value, error)

// NativeData is the internal slot record of a builtin function.
type NativeData struct {
	Name   string
	Length int
	Fn     NativeFunc
	// Ctor is the construct behavior; nil means not a constructor.
	Ctor func(ctx *Context, newTarget Value, args []Value) (Value, error)
}

// BoundData is the internal slot record of a Function.prototype.bind result.
type BoundData struct {
	Target    Value
	BoundThis Value
	BoundArgs []Value
}

// NewFunction creates a function object closing block over env.
func (ctx *Context) NewFunction(block *CodeBlock, env *Environment, capturedThis Value, hasThis bool) *Object {
	fn := &Object{
		kind:       KindFunction,
		shape:      ctx.Instance().RootShape(),
		prototype:  ctx.FunctionPrototype(),
		extensible: true,
		internal:   &FunctionData{Block: block, Env: env, This: capturedThis, HasThis: hasThis},
	}
	name := ""
	if block.FunctionName != nil {
		name = block.FunctionName.String()
	}
	inst := ctx.Instance()
	fn.DefineOwn(ctx, AtomKey(inst.Intern("name")), StringValue(name), AttrConfigurable)
	fn.DefineOwn(ctx, AtomKey(inst.Intern("length")), Integer(int32(block.ParamCount)), AttrConfigurable)
	if !block.IsArrow {
		proto := ctx.NewPlainObject()
		proto.DefineOwn(ctx, AtomKey(inst.Intern("constructor")), ObjectValue(fn), AttrWritable|AttrConfigurable)
		fn.DefineOwn(ctx, AtomKey(inst.Intern("prototype")), ObjectValue(proto), AttrWritable)
	}
	return fn
}

// NewNativeFunction creates a builtin function object.
func (ctx *Context) NewNativeFunction(name string, length int, fn NativeFunc) *Object {
	obj := &Object{
		kind:       KindNativeFunction,
		shape:      ctx.Instance().RootShape(),
		prototype:  ctx.FunctionPrototype(),
		extensible: true,
		internal:   &NativeData{Name: name, Length: length, Fn: fn},
	}
	inst := ctx.Instance()
	obj.DefineOwn(ctx, AtomKey(inst.Intern("name")), StringValue(name), AttrConfigurable)
	obj.DefineOwn(ctx, AtomKey(inst.Intern("length")), Integer(int32(length)), AttrConfigurable)
	return obj
}

// NewNativeConstructor creates a builtin that is both callable and
// constructible.
func (ctx *Context) NewNativeConstructor(name string, length int, call NativeFunc, construct func(ctx *Context, newTarget Value, args []Value) (Value, error)) *Object {
	obj := ctx.NewNativeFunction(name, length, call)
	obj.internal.(*NativeData).Ctor = construct
	return obj
}

// FunctionName returns the display name for stack traces.
func (o *Object) FunctionName() string {
	switch d := o.internal.(type) {
	case *FunctionData:
		if d.Block.FunctionName != nil {
			return d.Block.FunctionName.String()
		}
		return "<anonymous>"
	case *NativeData:
		return d.Name
	case *BoundData:
		if d.Target.IsObject() {
			return "bound " + d.Target.AsObject().FunctionName()
		}
	}
	return "<anonymous>"
}
