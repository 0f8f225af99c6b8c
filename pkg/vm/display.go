package vm

import "strings"

// Inspect renders a value for the interactive shell. Unlike ToString it
// reads slots directly; script code runs only for RegExp and primitive
// wrapper objects, whose toString is called. If that call throws or returns
// a non-string, the object prints as [object Object].
func (ctx *Context) Inspect(v Value) string {
	return ctx.inspect(v, 0)
}

func (ctx *Context) inspect(v Value, depth int) string {
	switch v.Type() {
	case TypeUndefined, TypeEmpty:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.AsBoolean() {
			return "true"
		}
		return "false"
	case TypeInteger, TypeFloat:
		return NumberToString(v.NumberValue())
	case TypeString:
		if depth > 0 {
			return "\"" + v.AsString().String() + "\""
		}
		return v.AsString().String()
	case TypeSymbol:
		desc := ""
		if d := v.AsSymbol().Description; d != nil {
			desc = d.String()
		}
		return "Symbol(" + desc + ")"
	case TypeObject:
		return ctx.inspectObject(v.AsObject(), depth)
	}
	return "unknown"
}

func (ctx *Context) inspectObject(o *Object, depth int) string {
	if depth > 2 {
		return "..."
	}
	switch o.kind {
	case KindFunction, KindNativeFunction, KindBoundFunction:
		return "function " + o.FunctionName() + "() { ... }"
	case KindError:
		return o.errorDisplay()
	case KindArray:
		var b strings.Builder
		b.WriteByte('[')
		n := o.array.length
		shown := n
		if shown > 32 {
			shown = 32
		}
		for i := uint32(0); i < shown; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			if o.array.fast {
				el := o.array.dense[i]
				if el.IsEmpty() {
					continue
				}
				b.WriteString(ctx.inspect(el, depth+1))
			} else {
				if desc, ok := o.GetOwnProperty(ctx, AtomKey(ctx.instance.InternIndex(i))); ok && desc.HasValue {
					b.WriteString(ctx.inspect(desc.Value, depth+1))
				}
			}
		}
		if shown < n {
			b.WriteString(", ...")
		}
		b.WriteByte(']')
		return b.String()
	case KindRegExp, KindStringObject, KindNumberObject, KindBooleanObject:
		if ts, err := o.Get(ctx, AtomKey(ctx.instance.Intern("toString")), ObjectValue(o)); err == nil && ts.IsCallable() {
			if res, err := ctx.Call(ts, ObjectValue(o), nil); err == nil && res.IsString() {
				return res.AsString().String()
			}
		}
		return "[object Object]"
	default:
		var b strings.Builder
		b.WriteByte('{')
		first := true
		for _, f := range o.shape.Fields() {
			if f.Key.IsSymbol() || f.Attrs&AttrEnumerable == 0 {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(f.Key.String())
			b.WriteString(": ")
			slot := o.slots[f.Offset]
			if slot.isAccessorBox() {
				b.WriteString("[getter/setter]")
			} else {
				b.WriteString(ctx.inspect(slot, depth+1))
			}
		}
		b.WriteByte('}')
		return b.String()
	}
}
