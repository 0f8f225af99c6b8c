package builtins

import (
	"math"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"escargot/pkg/vm"
)

type StringInitializer struct{}

func (s *StringInitializer) Name() string  { return "String" }
func (s *StringInitializer) Priority() int { return PriorityString }

func newStringWrapper(ctx *vm.Context, s *vm.String) *vm.Object {
	obj := vm.NewObjectWithShape(ctx.Instance().RootShape(), ctx.StringPrototype())
	obj.SetKind(vm.KindStringObject)
	obj.SetInternal(&vm.PrimitiveData{Value: vm.NewStringValue(s)})
	return obj
}

func (s *StringInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().StringProto
	wk := ctx.Instance().WellKnown()

	ctor := ctx.NewNativeConstructor("String", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return vm.StringValue(""), nil
			}
			if args[0].IsSymbol() {
				desc := "Symbol()"
				if d := args[0].AsSymbol().Description; d != nil {
					desc = "Symbol(" + d.String() + ")"
				}
				return vm.StringValue(desc), nil
			}
			str, err := ctx.ToString(args[0])
			if err != nil {
				return vm.Undefined, err
			}
			return vm.NewStringValue(str), nil
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			str := vm.NewStringFromGo("")
			if len(args) > 0 {
				var err error
				if str, err = ctx.ToString(args[0]); err != nil {
					return vm.Undefined, err
				}
			}
			return vm.ObjectValue(newStringWrapper(ctx, str)), nil
		})
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("String", vm.ObjectValue(ctor))

	defineMethod(ctx, ctor, "fromCharCode", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		units := make([]uint16, 0, len(args))
		for _, a := range args {
			n, err := ctx.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			units = append(units, uint16(vm.ToUint32Float(n)))
		}
		return vm.NewStringValue(vm.NewStringFromUnits(units)), nil
	})

	defineMethod(ctx, ctor, "fromCodePoint", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		var runes []rune
		for _, a := range args {
			n, err := ctx.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			if n != math.Trunc(n) || n < 0 || n > 0x10FFFF {
				return vm.Undefined, ctx.NewRangeError("Invalid code point %s", vm.NumberToString(n))
			}
			runes = append(runes, rune(n))
		}
		return vm.NewStringValue(vm.NewStringFromUnits(utf16.Encode(runes))), nil
	})

	defineMethod(ctx, proto, "toString", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return stringWrapperValue(ctx, this)
	})
	defineMethod(ctx, proto, "valueOf", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return stringWrapperValue(ctx, this)
	})

	defineMethod(ctx, proto, "charAt", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "charAt")
		if err != nil {
			return vm.Undefined, err
		}
		pos, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		i := int(pos)
		if i < 0 || i >= str.Length() {
			return vm.StringValue(""), nil
		}
		return vm.NewStringValue(str.Substring(i, i+1)), nil
	})

	defineMethod(ctx, proto, "charCodeAt", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "charCodeAt")
		if err != nil {
			return vm.Undefined, err
		}
		pos, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		i := int(pos)
		if i < 0 || i >= str.Length() {
			return vm.NaN, nil
		}
		return vm.Integer(int32(str.CharCodeAt(i))), nil
	})

	defineMethod(ctx, proto, "codePointAt", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "codePointAt")
		if err != nil {
			return vm.Undefined, err
		}
		pos, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		i := int(pos)
		if i < 0 || i >= str.Length() {
			return vm.Undefined, nil
		}
		first := str.CharCodeAt(i)
		if first >= 0xD800 && first <= 0xDBFF && i+1 < str.Length() {
			second := str.CharCodeAt(i + 1)
			if second >= 0xDC00 && second <= 0xDFFF {
				cp := 0x10000 + (int32(first)-0xD800)<<10 + (int32(second) - 0xDC00)
				return vm.Integer(cp), nil
			}
		}
		return vm.Integer(int32(first)), nil
	})

	defineMethod(ctx, proto, "indexOf", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "indexOf")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		from := 0.0
		if len(args) > 1 {
			if from, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.Integer(int32(stringIndexOf(str, search, int(from)))), nil
	})

	defineMethod(ctx, proto, "lastIndexOf", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "lastIndexOf")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		from := str.Length()
		if len(args) > 1 {
			n, err := ctx.ToNumber(arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			if !math.IsNaN(n) {
				from = int(vm.ToIntegerFloat(n))
			}
		}
		return vm.Integer(int32(stringLastIndexOf(str, search, from))), nil
	})

	defineMethod(ctx, proto, "includes", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "includes")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		from := 0.0
		if len(args) > 1 {
			if from, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.Boolean(stringIndexOf(str, search, int(from)) >= 0), nil
	})

	defineMethod(ctx, proto, "startsWith", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "startsWith")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		from := 0.0
		if len(args) > 1 {
			if from, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		start := int(from)
		if start < 0 {
			start = 0
		}
		if start+search.Length() > str.Length() {
			return vm.False, nil
		}
		return vm.Boolean(str.Substring(start, start+search.Length()).Equals(search)), nil
	})

	defineMethod(ctx, proto, "endsWith", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "endsWith")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		end := str.Length()
		if len(args) > 1 && !arg(args, 1).IsUndefined() {
			n, err := ctx.ToInteger(arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			end = int(n)
			if end > str.Length() {
				end = str.Length()
			}
		}
		start := end - search.Length()
		if start < 0 {
			return vm.False, nil
		}
		return vm.Boolean(str.Substring(start, end).Equals(search)), nil
	})

	defineMethod(ctx, proto, "slice", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "slice")
		if err != nil {
			return vm.Undefined, err
		}
		length := int64(str.Length())
		startF := 0.0
		if !arg(args, 0).IsUndefined() {
			if startF, err = ctx.ToInteger(arg(args, 0)); err != nil {
				return vm.Undefined, err
			}
		}
		endF := float64(length)
		if len(args) > 1 && !arg(args, 1).IsUndefined() {
			if endF, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		start := relativeIndex(startF, length)
		end := relativeIndex(endF, length)
		if start >= end {
			return vm.StringValue(""), nil
		}
		return vm.NewStringValue(str.Substring(int(start), int(end))), nil
	})

	defineMethod(ctx, proto, "substring", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "substring")
		if err != nil {
			return vm.Undefined, err
		}
		length := str.Length()
		clamp := func(v vm.Value, dflt int) (int, error) {
			if v.IsUndefined() {
				return dflt, nil
			}
			n, err := ctx.ToInteger(v)
			if err != nil {
				return 0, err
			}
			// Negative and NaN inputs clamp to 0.
			i := int(n)
			if i < 0 {
				i = 0
			}
			if i > length {
				i = length
			}
			return i, nil
		}
		start, err := clamp(arg(args, 0), 0)
		if err != nil {
			return vm.Undefined, err
		}
		end, err := clamp(arg(args, 1), length)
		if err != nil {
			return vm.Undefined, err
		}
		if start > end {
			start, end = end, start
		}
		return vm.NewStringValue(str.Substring(start, end)), nil
	})

	defineMethod(ctx, proto, "substr", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "substr")
		if err != nil {
			return vm.Undefined, err
		}
		length := str.Length()
		startF, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		start := int(startF)
		if start < 0 {
			// Negative start counts back from the end, clamped to 0.
			start = length + start
			if start < 0 {
				start = 0
			}
		}
		count := math.Inf(1)
		if len(args) > 1 && !arg(args, 1).IsUndefined() {
			if count, err = ctx.ToInteger(arg(args, 1)); err != nil {
				return vm.Undefined, err
			}
		}
		if start >= length || count <= 0 {
			return vm.StringValue(""), nil
		}
		end := length
		if !math.IsInf(count, 1) && start+int(count) < length {
			end = start + int(count)
		}
		return vm.NewStringValue(str.Substring(start, end)), nil
	})

	defineMethod(ctx, proto, "concat", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "concat")
		if err != nil {
			return vm.Undefined, err
		}
		for _, a := range args {
			part, err := ctx.ToString(a)
			if err != nil {
				return vm.Undefined, err
			}
			if str = vm.ConcatStrings(str, part); str == nil {
				return vm.Undefined, ctx.NewRangeError("Invalid string length")
			}
		}
		return vm.NewStringValue(str), nil
	})

	defineMethod(ctx, proto, "repeat", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "repeat")
		if err != nil {
			return vm.Undefined, err
		}
		n, err := ctx.ToInteger(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if n < 0 || math.IsInf(n, 1) {
			return vm.Undefined, ctx.NewRangeError("Invalid count value")
		}
		count := int(n)
		if int64(str.Length())*int64(count) > int64(vm.MaxStringLength) {
			return vm.Undefined, ctx.NewRangeError("Invalid string length")
		}
		out := vm.NewStringFromGo("")
		for i := 0; i < count; i++ {
			out = vm.ConcatStrings(out, str)
		}
		return vm.NewStringValue(out), nil
	})

	pad := func(atStart bool) vm.NativeFunc {
		return func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			str, err := thisString(ctx, this, "pad")
			if err != nil {
				return vm.Undefined, err
			}
			targetF, err := ctx.ToLength(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			target := int(targetF)
			if target <= str.Length() {
				return vm.NewStringValue(str), nil
			}
			if target > vm.MaxStringLength {
				return vm.Undefined, ctx.NewRangeError("Invalid string length")
			}
			filler := vm.NewStringFromGo(" ")
			if len(args) > 1 && !arg(args, 1).IsUndefined() {
				if filler, err = ctx.ToString(arg(args, 1)); err != nil {
					return vm.Undefined, err
				}
			}
			if filler.Length() == 0 {
				return vm.NewStringValue(str), nil
			}
			padLen := target - str.Length()
			padStr := vm.NewStringFromGo("")
			for padStr.Length() < padLen {
				padStr = vm.ConcatStrings(padStr, filler)
			}
			padStr = padStr.Substring(0, padLen)
			if atStart {
				return vm.NewStringValue(vm.ConcatStrings(padStr, str)), nil
			}
			return vm.NewStringValue(vm.ConcatStrings(str, padStr)), nil
		}
	}
	defineMethod(ctx, proto, "padStart", 1, pad(true))
	defineMethod(ctx, proto, "padEnd", 1, pad(false))

	defineMethod(ctx, proto, "trim", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "trim")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewStringValue(trimString(str, true, true)), nil
	})
	defineMethod(ctx, proto, "trimStart", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "trimStart")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewStringValue(trimString(str, true, false)), nil
	})
	defineMethod(ctx, proto, "trimEnd", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "trimEnd")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NewStringValue(trimString(str, false, true)), nil
	})

	defineMethod(ctx, proto, "toLowerCase", 0, caseMethod(strings.ToLower))
	defineMethod(ctx, proto, "toUpperCase", 0, caseMethod(strings.ToUpper))
	defineMethod(ctx, proto, "toLocaleLowerCase", 0, localeCaseMethod(false))
	defineMethod(ctx, proto, "toLocaleUpperCase", 0, localeCaseMethod(true))

	defineMethod(ctx, proto, "normalize", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "normalize")
		if err != nil {
			return vm.Undefined, err
		}
		form := "NFC"
		if f := arg(args, 0); !f.IsUndefined() {
			fs, err := ctx.ToString(f)
			if err != nil {
				return vm.Undefined, err
			}
			form = fs.String()
		}
		var n norm.Form
		switch form {
		case "NFC":
			n = norm.NFC
		case "NFD":
			n = norm.NFD
		case "NFKC":
			n = norm.NFKC
		case "NFKD":
			n = norm.NFKD
		default:
			return vm.Undefined, ctx.NewRangeError("The normalization form should be one of NFC, NFD, NFKC, NFKD.")
		}
		return vm.StringValue(n.String(str.String())), nil
	})

	defineMethod(ctx, proto, "localeCompare", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "localeCompare")
		if err != nil {
			return vm.Undefined, err
		}
		other, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		c := collate.New(language.Und)
		return vm.Integer(int32(c.CompareString(str.String(), other.String()))), nil
	})

	defineMethod(ctx, proto, "split", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return stringSplit(ctx, this, args)
	})

	defineMethod(ctx, proto, "replace", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		return stringReplace(ctx, this, args)
	})

	defineMethod(ctx, proto, "match", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "match")
		if err != nil {
			return vm.Undefined, err
		}
		re, err := coerceToRegExp(ctx, arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		data := re.Internal().(*RegExpData)
		subject := str.String()
		if !data.Global {
			m, err := execRegExp(ctx, re, subject)
			if err != nil {
				return vm.Undefined, err
			}
			if m == nil {
				return vm.Null, nil
			}
			return matchToArray(ctx, m, subject), nil
		}
		if err := setRegExpLastIndex(ctx, re, 0); err != nil {
			return vm.Undefined, err
		}
		var out []vm.Value
		for {
			m, err := execRegExp(ctx, re, subject)
			if err != nil {
				return vm.Undefined, err
			}
			if m == nil {
				break
			}
			out = append(out, vm.StringValue(m.String()))
			if m.Length == 0 {
				li, err := regExpLastIndex(ctx, re)
				if err != nil {
					return vm.Undefined, err
				}
				if err := setRegExpLastIndex(ctx, re, li+1); err != nil {
					return vm.Undefined, err
				}
			}
		}
		if len(out) == 0 {
			return vm.Null, nil
		}
		return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
	})

	defineMethod(ctx, proto, "search", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "search")
		if err != nil {
			return vm.Undefined, err
		}
		re, err := coerceToRegExp(ctx, arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		data := re.Internal().(*RegExpData)
		m, err := data.matchAt(str.String(), 0)
		if err != nil || m == nil {
			return vm.Integer(-1), nil
		}
		return vm.Integer(int32(m.Index)), nil
	})

	defineSymbolMethod(ctx, proto, wk.Iterator, "[Symbol.iterator]", 0,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			str, err := thisString(ctx, this, "[Symbol.iterator]")
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(ctx.NewStringIterator(vm.NewStringValue(str))), nil
		})

	return nil
}

func stringWrapperValue(ctx *vm.Context, this vm.Value) (vm.Value, error) {
	if this.IsString() {
		return this, nil
	}
	if this.IsObject() && this.AsObject().Kind() == vm.KindStringObject {
		return this.AsObject().Internal().(*vm.PrimitiveData).Value, nil
	}
	return vm.Undefined, ctx.NewTypeError("String.prototype.toString requires that 'this' be a String")
}

func caseMethod(conv func(string) string) vm.NativeFunc {
	return func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "toCase")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(conv(str.String())), nil
	}
}

// localeCaseMethod maps through x/text casers so locale-aware one-to-many
// mappings apply.
func localeCaseMethod(upper bool) vm.NativeFunc {
	return func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(ctx, this, "toLocaleCase")
		if err != nil {
			return vm.Undefined, err
		}
		tag := language.Und
		if len(args) > 0 && !args[0].IsUndefined() {
			ls, err := ctx.ToString(args[0])
			if err != nil {
				return vm.Undefined, err
			}
			if parsed, err := language.Parse(ls.String()); err == nil {
				tag = parsed
			}
		}
		var c cases.Caser
		if upper {
			c = cases.Upper(tag)
		} else {
			c = cases.Lower(tag)
		}
		return vm.StringValue(c.String(str.String())), nil
	}
}

// coerceToRegExp accepts a RegExp object or compiles a string pattern.
func coerceToRegExp(ctx *vm.Context, v vm.Value) (*vm.Object, error) {
	if v.IsObject() && v.AsObject().Kind() == vm.KindRegExp {
		return v.AsObject(), nil
	}
	pattern := ""
	if !v.IsUndefined() {
		s, err := ctx.ToString(v)
		if err != nil {
			return nil, err
		}
		pattern = s.String()
	}
	return newRegExpObject(ctx, pattern, "")
}

// stringSplit implements String.prototype.split: the separator's @@split
// wins; a RegExp separator carrying the exact builtin @@split takes the
// legacy path directly.
func stringSplit(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
	if err := requireObjectCoercible(ctx, this, "split"); err != nil {
		return vm.Undefined, err
	}
	separator := arg(args, 0)
	limitVal := arg(args, 1)
	wk := ctx.Instance().WellKnown()

	if separator.IsObject() {
		splitter, err := ctx.GetProperty(separator, vm.SymbolKey(wk.Split))
		if err != nil {
			return vm.Undefined, err
		}
		if splitter.IsCallable() {
			if separator.AsObject().Kind() == vm.KindRegExp && isBuiltinSplit(ctx, splitter) {
				str, err := thisString(ctx, this, "split")
				if err != nil {
					return vm.Undefined, err
				}
				return regExpSplit(ctx, separator.AsObject(), str.String(), limitVal)
			}
			return ctx.Call(splitter, separator, []vm.Value{this, limitVal})
		}
	}

	str, err := thisString(ctx, this, "split")
	if err != nil {
		return vm.Undefined, err
	}
	limit := int64(0xFFFFFFFF)
	if !limitVal.IsUndefined() {
		u, err := ctx.ToUint32(limitVal)
		if err != nil {
			return vm.Undefined, err
		}
		limit = int64(u)
	}
	if separator.IsUndefined() {
		if limit == 0 {
			return vm.ObjectValue(ctx.NewArray(0)), nil
		}
		return vm.ObjectValue(ctx.NewArrayFromValues([]vm.Value{vm.NewStringValue(str)})), nil
	}
	sep, err := ctx.ToString(separator)
	if err != nil {
		return vm.Undefined, err
	}
	var out []vm.Value
	if limit == 0 {
		return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
	}
	if sep.Length() == 0 {
		for i := 0; i < str.Length() && int64(len(out)) < limit; i++ {
			out = append(out, vm.NewStringValue(str.Substring(i, i+1)))
		}
		return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
	}
	start := 0
	for {
		idx := stringIndexOf(str, sep, start)
		if idx < 0 {
			break
		}
		out = append(out, vm.NewStringValue(str.Substring(start, idx)))
		if int64(len(out)) >= limit {
			return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
		}
		start = idx + sep.Length()
	}
	out = append(out, vm.NewStringValue(str.Substring(start, str.Length())))
	return vm.ObjectValue(ctx.NewArrayFromValues(out)), nil
}

func isBuiltinSplit(ctx *vm.Context, fn vm.Value) bool {
	expected, err := ctx.GetProperty(vm.ObjectValue(ctx.Intrinsics().RegExpProto), vm.SymbolKey(ctx.Instance().WellKnown().Split))
	return err == nil && vm.StrictEquals(fn, expected)
}

// stringReplace branches on whether the search value is a regular
// expression, then on whether the replacer is callable or a $-pattern
// string.
func stringReplace(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
	if err := requireObjectCoercible(ctx, this, "replace"); err != nil {
		return vm.Undefined, err
	}
	search := arg(args, 0)
	replacer := arg(args, 1)
	str, err := thisString(ctx, this, "replace")
	if err != nil {
		return vm.Undefined, err
	}
	subject := str.String()

	if search.IsObject() && search.AsObject().Kind() == vm.KindRegExp {
		return regExpReplace(ctx, search.AsObject(), subject, replacer)
	}

	searchStr, err := ctx.ToString(search)
	if err != nil {
		return vm.Undefined, err
	}
	pos := stringIndexOf(str, searchStr, 0)
	if pos < 0 {
		return vm.NewStringValue(str), nil
	}
	matched := searchStr.String()
	posBytes := len(str.Substring(0, pos).String())

	var replacement string
	if replacer.IsCallable() {
		res, err := ctx.Call(replacer, vm.Undefined, []vm.Value{
			vm.NewStringValue(searchStr), vm.Integer(int32(pos)), vm.NewStringValue(str),
		})
		if err != nil {
			return vm.Undefined, err
		}
		rs, err := ctx.ToString(res)
		if err != nil {
			return vm.Undefined, err
		}
		replacement = rs.String()
	} else {
		rs, err := ctx.ToString(replacer)
		if err != nil {
			return vm.Undefined, err
		}
		// A plain-string search has no capture groups: $1 and friends pass
		// through verbatim.
		replacement = expandReplacement(rs.String(), matched, posBytes, subject, nil)
	}
	out := subject[:posBytes] + replacement + subject[posBytes+len(matched):]
	return vm.StringValue(out), nil
}

func regExpReplace(ctx *vm.Context, re *vm.Object, subject string, replacer vm.Value) (vm.Value, error) {
	data := re.Internal().(*RegExpData)
	var b strings.Builder
	last := 0
	pos := 0
	for {
		m, err := data.matchAt(subject, pos)
		if err != nil {
			return vm.Undefined, ctx.NewSyntaxErrorValue("regular expression execution failed: %s", err)
		}
		if m == nil {
			break
		}
		groups := m.Groups()
		captures := make([]vm.Value, 0, len(groups)-1)
		for _, g := range groups[1:] {
			if len(g.Captures) == 0 {
				captures = append(captures, vm.Undefined)
			} else {
				captures = append(captures, vm.StringValue(g.String()))
			}
		}
		b.WriteString(subject[last:m.Index])
		if replacer.IsCallable() {
			callArgs := []vm.Value{vm.StringValue(m.String())}
			callArgs = append(callArgs, captures...)
			callArgs = append(callArgs, vm.Integer(int32(m.Index)), vm.StringValue(subject))
			res, err := ctx.Call(replacer, vm.Undefined, callArgs)
			if err != nil {
				return vm.Undefined, err
			}
			rs, err := ctx.ToString(res)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteString(rs.String())
		} else {
			rs, err := ctx.ToString(replacer)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteString(expandReplacement(rs.String(), m.String(), m.Index, subject, captures))
		}
		last = m.Index + m.Length
		pos = last
		if m.Length == 0 {
			pos++
		}
		if !data.Global {
			break
		}
	}
	b.WriteString(subject[last:])
	return vm.StringValue(b.String()), nil
}
