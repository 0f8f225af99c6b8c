package builtins

import (
	"github.com/dlclark/regexp2"

	"escargot/pkg/vm"
)

// RegExpData is the internal slot record of a RegExp object. The pattern
// compiles through regexp2 in ECMAScript mode, which covers the
// backreference and lookaround forms Go's stdlib engine rejects.
type RegExpData struct {
	Pattern    string
	Flags      string
	Re         *regexp2.Regexp
	Global     bool
	IgnoreCase bool
	Multiline  bool
	DotAll     bool
	Sticky     bool
	Unicode    bool
	LastIndex  int64
}

type RegExpInitializer struct{}

func (r *RegExpInitializer) Name() string  { return "RegExp" }
func (r *RegExpInitializer) Priority() int { return PriorityRegExp }

func compileRegExp(ctx *vm.Context, pattern, flags string) (*RegExpData, error) {
	data := &RegExpData{Pattern: pattern, Flags: flags}
	var opts regexp2.RegexOptions = regexp2.ECMAScript
	for _, f := range flags {
		switch f {
		case 'g':
			data.Global = true
		case 'i':
			data.IgnoreCase = true
			opts |= regexp2.IgnoreCase
		case 'm':
			data.Multiline = true
			opts |= regexp2.Multiline
		case 's':
			data.DotAll = true
			opts |= regexp2.Singleline
		case 'y':
			data.Sticky = true
		case 'u':
			data.Unicode = true
			opts |= regexp2.Unicode
		default:
			return nil, ctx.NewSyntaxErrorValue("Invalid regular expression flags")
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, ctx.NewSyntaxErrorValue("Invalid regular expression: %s", err)
	}
	data.Re = re
	return data, nil
}

// newRegExpObject builds a RegExp instance.
func newRegExpObject(ctx *vm.Context, pattern, flags string) (*vm.Object, error) {
	data, err := compileRegExp(ctx, pattern, flags)
	if err != nil {
		return nil, err
	}
	obj := vm.NewObjectWithShape(ctx.Instance().RootShape(), vm.ObjectValue(ctx.Intrinsics().RegExpProto))
	obj.SetKind(vm.KindRegExp)
	obj.SetInternal(data)
	obj.DefineOwn(ctx, key(ctx, "lastIndex"), vm.Integer(0), vm.AttrWritable)
	return obj, nil
}

func regExpDataOf(ctx *vm.Context, v vm.Value) (*RegExpData, *vm.Object, error) {
	if !v.IsObject() || v.AsObject().Kind() != vm.KindRegExp {
		return nil, nil, ctx.NewTypeError("Receiver is not a RegExp object")
	}
	return v.AsObject().Internal().(*RegExpData), v.AsObject(), nil
}

// matchAt runs the pattern at or after start, honoring sticky anchoring.
func (d *RegExpData) matchAt(subject string, start int) (*regexp2.Match, error) {
	if start > len(subject) {
		return nil, nil
	}
	m, err := d.Re.FindStringMatchStartingAt(subject, start)
	if err != nil || m == nil {
		return nil, err
	}
	if d.Sticky && m.Index != start {
		return nil, nil
	}
	return m, nil
}

func regExpLastIndex(ctx *vm.Context, obj *vm.Object) (int64, error) {
	v, err := obj.Get(ctx, key(ctx, "lastIndex"), vm.ObjectValue(obj))
	if err != nil {
		return 0, err
	}
	return ctx.ToLength(v)
}

func setRegExpLastIndex(ctx *vm.Context, obj *vm.Object, n int64) error {
	return ctx.SetProperty(vm.ObjectValue(obj), key(ctx, "lastIndex"), vm.Number(float64(n)), true)
}

// execRegExp is the shared exec/test/match driver. Returns nil when there is
// no match.
func execRegExp(ctx *vm.Context, obj *vm.Object, subject string) (*regexp2.Match, error) {
	data := obj.Internal().(*RegExpData)
	start := int64(0)
	if data.Global || data.Sticky {
		var err error
		if start, err = regExpLastIndex(ctx, obj); err != nil {
			return nil, err
		}
	}
	if start > int64(len(subject)) {
		if data.Global || data.Sticky {
			if err := setRegExpLastIndex(ctx, obj, 0); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	m, err := data.matchAt(subject, int(start))
	if err != nil {
		return nil, ctx.NewSyntaxErrorValue("regular expression execution failed: %s", err)
	}
	if m == nil {
		if data.Global || data.Sticky {
			if err := setRegExpLastIndex(ctx, obj, 0); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	if data.Global || data.Sticky {
		if err := setRegExpLastIndex(ctx, obj, int64(m.Index+m.Length)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func matchToArray(ctx *vm.Context, m *regexp2.Match, subject string) vm.Value {
	groups := m.Groups()
	elems := make([]vm.Value, len(groups))
	for i, g := range groups {
		if len(g.Captures) == 0 {
			elems[i] = vm.Undefined
			continue
		}
		elems[i] = vm.StringValue(g.String())
	}
	arr := ctx.NewArrayFromValues(elems)
	arr.DefineOwn(ctx, key(ctx, "index"), vm.Integer(int32(m.Index)), vm.AttrDefault)
	arr.DefineOwn(ctx, key(ctx, "input"), vm.StringValue(subject), vm.AttrDefault)
	return vm.ObjectValue(arr)
}

func (r *RegExpInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().RegExpProto

	ctorFn := func(ctx *vm.Context, args []vm.Value) (vm.Value, error) {
		patternArg := arg(args, 0)
		flagsArg := arg(args, 1)
		pattern := ""
		flags := ""
		if patternArg.IsObject() && patternArg.AsObject().Kind() == vm.KindRegExp {
			data := patternArg.AsObject().Internal().(*RegExpData)
			pattern = data.Pattern
			flags = data.Flags
		} else if !patternArg.IsUndefined() {
			s, err := ctx.ToString(patternArg)
			if err != nil {
				return vm.Undefined, err
			}
			pattern = s.String()
		}
		if !flagsArg.IsUndefined() {
			s, err := ctx.ToString(flagsArg)
			if err != nil {
				return vm.Undefined, err
			}
			flags = s.String()
		}
		obj, err := newRegExpObject(ctx, pattern, flags)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(obj), nil
	}
	ctor := ctx.NewNativeConstructor("RegExp", 2,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			return ctorFn(ctx, args)
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			return ctorFn(ctx, args)
		})
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("RegExp", vm.ObjectValue(ctor))

	defineGetterProp(ctx, proto, "source", func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, _, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		if data.Pattern == "" {
			return vm.StringValue("(?:)"), nil
		}
		return vm.StringValue(data.Pattern), nil
	})
	defineGetterProp(ctx, proto, "flags", func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, _, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(data.Flags), nil
	})
	defineGetterProp(ctx, proto, "global", func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, _, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(data.Global), nil
	})
	defineGetterProp(ctx, proto, "ignoreCase", func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, _, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(data.IgnoreCase), nil
	})
	defineGetterProp(ctx, proto, "multiline", func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, _, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(data.Multiline), nil
	})

	defineMethod(ctx, proto, "exec", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		_, obj, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		s, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		subject := s.String()
		m, err := execRegExp(ctx, obj, subject)
		if err != nil {
			return vm.Undefined, err
		}
		if m == nil {
			return vm.Null, nil
		}
		return matchToArray(ctx, m, subject), nil
	})

	defineMethod(ctx, proto, "test", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		_, obj, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		s, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		m, err := execRegExp(ctx, obj, s.String())
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(m != nil), nil
	})

	defineMethod(ctx, proto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, _, err := regExpDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		src := data.Pattern
		if src == "" {
			src = "(?:)"
		}
		return vm.StringValue("/" + src + "/" + data.Flags), nil
	})

	// The builtin @@split drives the legacy fast path String.prototype.split
	// recognizes.
	defineSymbolMethod(ctx, proto, ctx.Instance().WellKnown().Split, "[Symbol.split]", 2,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			_, obj, err := regExpDataOf(ctx, this)
			if err != nil {
				return vm.Undefined, err
			}
			s, err := ctx.ToString(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return regExpSplit(ctx, obj, s.String(), arg(args, 1))
		})

	return nil
}

// regExpSplit implements the RegExp split semantics over a Go string.
func regExpSplit(ctx *vm.Context, re *vm.Object, subject string, limitVal vm.Value) (vm.Value, error) {
	limit := int64(0xFFFFFFFF)
	if !limitVal.IsUndefined() {
		u, err := ctx.ToUint32(limitVal)
		if err != nil {
			return vm.Undefined, err
		}
		limit = int64(u)
	}
	var out []vm.Value
	if limit == 0 {
		return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
	}
	data := re.Internal().(*RegExpData)
	if subject == "" {
		m, err := data.matchAt(subject, 0)
		if err == nil && m == nil {
			out = append(out, vm.StringValue(""))
		}
		return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
	}
	last := 0
	pos := 0
	for pos < len(subject) {
		m, err := data.matchAt(subject, pos)
		if err != nil || m == nil {
			break
		}
		end := m.Index + m.Length
		if end == last && m.Length == 0 {
			pos++
			continue
		}
		if m.Index >= len(subject) {
			break
		}
		out = append(out, vm.StringValue(subject[last:m.Index]))
		if int64(len(out)) >= limit {
			return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
		}
		groups := m.Groups()
		for _, g := range groups[1:] {
			if len(g.Captures) == 0 {
				out = append(out, vm.Undefined)
			} else {
				out = append(out, vm.StringValue(g.String()))
			}
			if int64(len(out)) >= limit {
				return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
			}
		}
		last = end
		if m.Length == 0 {
			pos = end + 1
		} else {
			pos = end
		}
	}
	out = append(out, vm.StringValue(subject[last:]))
	return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
}
