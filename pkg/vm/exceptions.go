package vm

import "fmt"

// StackSite is one frame of a captured stack trace.
type StackSite struct {
	Src    string
	Line   int
	Column int
}

// Thrown wraps a script-level thrown value for propagation through Go error
// returns. The interpreter never relies on Go panics for script throws:
// frames are unwound explicitly against each code block's handler table.
type Thrown struct {
	Value Value
	Stack []StackSite
}

func (t *Thrown) Error() string {
	return "uncaught exception: " + inspectThrown(t.Value)
}

func inspectThrown(v Value) string {
	if v.IsString() {
		return v.AsString().String()
	}
	if v.IsObject() && v.AsObject().Kind() == KindError {
		return v.AsObject().errorDisplay()
	}
	if v.IsNumber() {
		return NumberToString(v.NumberValue())
	}
	return v.TypeOf()
}

// Throw wraps a value for propagation.
func Throw(v Value) error { return &Thrown{Value: v} }

// ErrorData is the internal slot record of error objects.
type ErrorData struct {
	Stack []StackSite
}

func (o *Object) errorDisplay() string {
	name := "Error"
	msg := ""
	for _, f := range o.shape.Fields() {
		if f.Key.IsSymbol() {
			continue
		}
		switch f.Key.Atom().String() {
		case "name":
			if v := o.slots[f.Offset]; v.IsString() {
				name = v.AsString().String()
			}
		case "message":
			if v := o.slots[f.Offset]; v.IsString() {
				msg = v.AsString().String()
			}
		}
	}
	if msg == "" {
		return name
	}
	return name + ": " + msg
}

// NewErrorObject builds an error object of the given kind without invoking
// script-visible constructors.
func (ctx *Context) NewErrorObject(kind ErrorKind, message string) *Object {
	obj := &Object{
		kind:       KindError,
		shape:      ctx.Instance().RootShape(),
		prototype:  ObjectValue(ctx.intrinsics.ErrorProtos[kind]),
		extensible: true,
		internal:   &ErrorData{Stack: ctx.CaptureStack()},
	}
	inst := ctx.Instance()
	obj.DefineOwn(ctx, AtomKey(inst.Intern("message")), StringValue(message), AttrWritable|AttrConfigurable)
	return obj
}

// ThrowError builds and wraps an error of the given kind.
func (ctx *Context) ThrowError(kind ErrorKind, format string, args ...interface{}) error {
	obj := ctx.NewErrorObject(kind, fmt.Sprintf(format, args...))
	return &Thrown{Value: ObjectValue(obj), Stack: obj.internal.(*ErrorData).Stack}
}

// NewTypeError wraps a TypeError exception for builtin helpers to return.
func (ctx *Context) NewTypeError(format string, args ...interface{}) error {
	return ctx.ThrowError(ErrorKindTypeError, format, args...)
}

// NewRangeError wraps a RangeError exception.
func (ctx *Context) NewRangeError(format string, args ...interface{}) error {
	return ctx.ThrowError(ErrorKindRangeError, format, args...)
}

// NewReferenceError wraps a ReferenceError exception.
func (ctx *Context) NewReferenceError(format string, args ...interface{}) error {
	return ctx.ThrowError(ErrorKindReferenceError, format, args...)
}

// NewSyntaxErrorValue wraps a SyntaxError exception.
func (ctx *Context) NewSyntaxErrorValue(format string, args ...interface{}) error {
	return ctx.ThrowError(ErrorKindSyntaxError, format, args...)
}

// NewURIError wraps a URIError exception.
func (ctx *Context) NewURIError(format string, args ...interface{}) error {
	return ctx.ThrowError(ErrorKindURIError, format, args...)
}
