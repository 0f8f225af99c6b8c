package vm

import (
	"math"
	"strconv"
	"strings"
)

// MaxSafeInteger is 2^53 - 1, the ToLength cap.
const MaxSafeInteger = 1<<53 - 1

// ToBoolean implements ES2017 7.1.2. Pure.
func ToBoolean(v Value) bool {
	switch v.Type() {
	case TypeUndefined, TypeNull, TypeEmpty:
		return false
	case TypeBoolean:
		return v.AsBoolean()
	case TypeInteger:
		return v.AsInteger() != 0
	case TypeFloat:
		f := v.AsFloat()
		return f != 0 && !math.IsNaN(f)
	case TypeString:
		return v.AsString().Length() != 0
	}
	return true
}

// ToPrimitive implements ES2017 7.1.1 with hint "default", "number" or
// "string". @@toPrimitive is consulted first, then valueOf/toString in
// hint order.
func (ctx *Context) ToPrimitive(v Value, hint string) (Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	obj := v.AsObject()
	exotic, err := obj.Get(ctx, SymbolKey(ctx.instance.wellKnown.ToPrimitive), v)
	if err != nil {
		return Undefined, err
	}
	if exotic.IsCallable() {
		if hint == "" {
			hint = "default"
		}
		res, err := ctx.Call(exotic, v, []Value{StringValue(hint)})
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() {
			return res, nil
		}
		return Undefined, ctx.NewTypeError("Cannot convert object to primitive value")
	}
	methods := []string{"valueOf", "toString"}
	if hint == "string" {
		methods = []string{"toString", "valueOf"}
	}
	for _, name := range methods {
		m, err := obj.Get(ctx, AtomKey(ctx.instance.Intern(name)), v)
		if err != nil {
			return Undefined, err
		}
		if !m.IsCallable() {
			continue
		}
		res, err := ctx.Call(m, v, nil)
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() {
			return res, nil
		}
	}
	return Undefined, ctx.NewTypeError("Cannot convert object to primitive value")
}

// ToNumber implements ES2017 7.1.3.
func (ctx *Context) ToNumber(v Value) (float64, error) {
	switch v.Type() {
	case TypeUndefined:
		return math.NaN(), nil
	case TypeNull:
		return 0, nil
	case TypeBoolean:
		if v.AsBoolean() {
			return 1, nil
		}
		return 0, nil
	case TypeInteger:
		return float64(v.AsInteger()), nil
	case TypeFloat:
		return v.AsFloat(), nil
	case TypeString:
		return StringToNumber(v.AsString()), nil
	case TypeSymbol:
		return 0, ctx.NewTypeError("Cannot convert a Symbol value to a number")
	case TypeObject:
		prim, err := ctx.ToPrimitive(v, "number")
		if err != nil {
			return 0, err
		}
		return ctx.ToNumber(prim)
	}
	return math.NaN(), nil
}

// ToIntegerFloat is the pure tail of ToInteger: NaN becomes 0, ±0 and ±∞
// pass through, everything else truncates toward zero.
func ToIntegerFloat(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	if f == 0 || math.IsInf(f, 0) {
		return f
	}
	return math.Trunc(f)
}

// ToInteger implements ES2017 7.1.4.
func (ctx *Context) ToInteger(v Value) (float64, error) {
	f, err := ctx.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return ToIntegerFloat(f), nil
}

// ToLength implements ES2017 7.1.15: negatives clamp to 0, the result caps
// at 2^53-1.
func (ctx *Context) ToLength(v Value) (int64, error) {
	f, err := ctx.ToInteger(v)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, nil
	}
	if f > MaxSafeInteger {
		return MaxSafeInteger, nil
	}
	return int64(f), nil
}

// ToUint32Float is modulo 2^32 after ToInteger, treated unsigned.
func ToUint32Float(f float64) uint32 {
	f = ToIntegerFloat(f)
	if math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(math.Mod(f, 4294967296)))
}

// ToInt32Float is the signed counterpart.
func ToInt32Float(f float64) int32 {
	return int32(ToUint32Float(f))
}

// ToUint32 implements ES2017 7.1.6.
func (ctx *Context) ToUint32(v Value) (uint32, error) {
	if v.IsInteger() && v.AsInteger() >= 0 {
		return uint32(v.AsInteger()), nil
	}
	f, err := ctx.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return ToUint32Float(f), nil
}

// ToInt32 implements ES2017 7.1.5.
func (ctx *Context) ToInt32(v Value) (int32, error) {
	if v.IsInteger() {
		return v.AsInteger(), nil
	}
	f, err := ctx.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return ToInt32Float(f), nil
}

// toArrayLength validates an array length value: ToUint32 must equal
// ToNumber or the assignment fails with a RangeError.
func (ctx *Context) toArrayLength(v Value) (uint32, error) {
	n, err := ctx.ToNumber(v)
	if err != nil {
		return 0, err
	}
	u := ToUint32Float(n)
	if float64(u) != n {
		return 0, ctx.NewRangeError("Invalid array length")
	}
	return u, nil
}

// ToString implements ES2017 7.1.12.
func (ctx *Context) ToString(v Value) (*String, error) {
	switch v.Type() {
	case TypeUndefined:
		return NewStringFromGo("undefined"), nil
	case TypeNull:
		return NewStringFromGo("null"), nil
	case TypeBoolean:
		if v.AsBoolean() {
			return NewStringFromGo("true"), nil
		}
		return NewStringFromGo("false"), nil
	case TypeInteger:
		return NewStringFromGo(strconv.FormatInt(int64(v.AsInteger()), 10)), nil
	case TypeFloat:
		return NewStringFromGo(NumberToString(v.AsFloat())), nil
	case TypeString:
		return v.AsString(), nil
	case TypeSymbol:
		return nil, ctx.NewTypeError("Cannot convert a Symbol value to a string")
	case TypeObject:
		prim, err := ctx.ToPrimitive(v, "string")
		if err != nil {
			return nil, err
		}
		return ctx.ToString(prim)
	}
	return NewStringFromGo("undefined"), nil
}

// ToObject implements ES2017 7.1.13: scalars wrap in their object wrapper,
// undefined and null fail with the TypeError kind.
func (ctx *Context) ToObject(v Value) (*Object, error) {
	switch v.Type() {
	case TypeUndefined, TypeNull:
		return nil, ctx.NewTypeError("Cannot convert undefined or null to object")
	case TypeObject:
		return v.AsObject(), nil
	case TypeBoolean:
		return ctx.newWrapper(KindBooleanObject, ctx.BooleanPrototype(), v), nil
	case TypeInteger, TypeFloat:
		return ctx.newWrapper(KindNumberObject, ctx.NumberPrototype(), v), nil
	case TypeString:
		return ctx.newWrapper(KindStringObject, ctx.StringPrototype(), v), nil
	case TypeSymbol:
		return ctx.newWrapper(KindSymbolObject, ctx.SymbolPrototype(), v), nil
	}
	return nil, ctx.NewTypeError("Cannot convert to object")
}

func (ctx *Context) newWrapper(kind ObjectKind, proto Value, prim Value) *Object {
	return &Object{
		kind:       kind,
		shape:      ctx.instance.rootShape,
		prototype:  proto,
		extensible: true,
		internal:   &PrimitiveData{Value: prim},
	}
}

// ToPropertyKey implements ES2017 7.1.14.
func (ctx *Context) ToPropertyKey(v Value) (PropertyKey, error) {
	if v.IsSymbol() {
		return SymbolKey(v.AsSymbol()), nil
	}
	if v.IsObject() {
		prim, err := ctx.ToPrimitive(v, "string")
		if err != nil {
			return PropertyKey{}, err
		}
		v = prim
		if v.IsSymbol() {
			return SymbolKey(v.AsSymbol()), nil
		}
	}
	s, err := ctx.ToString(v)
	if err != nil {
		return PropertyKey{}, err
	}
	return AtomKey(ctx.instance.Atoms().InternString(s)), nil
}

// LooseEquals implements the == operator (ES2017 7.2.13).
func (ctx *Context) LooseEquals(a, b Value) (bool, error) {
	if a.Type() == b.Type() || (a.IsNumber() && b.IsNumber()) {
		return StrictEquals(a, b), nil
	}
	switch {
	case a.IsNullish() && b.IsNullish():
		return true, nil
	case a.IsNullish() || b.IsNullish():
		return false, nil
	case a.IsNumber() && b.IsString():
		return a.NumberValue() == StringToNumber(b.AsString()), nil
	case a.IsString() && b.IsNumber():
		return StringToNumber(a.AsString()) == b.NumberValue(), nil
	case a.IsBoolean():
		n := 0.0
		if a.AsBoolean() {
			n = 1
		}
		return ctx.LooseEquals(Number(n), b)
	case b.IsBoolean():
		n := 0.0
		if b.AsBoolean() {
			n = 1
		}
		return ctx.LooseEquals(a, Number(n))
	case (a.IsNumber() || a.IsString() || a.IsSymbol()) && b.IsObject():
		prim, err := ctx.ToPrimitive(b, "default")
		if err != nil {
			return false, err
		}
		return ctx.LooseEquals(a, prim)
	case a.IsObject() && (b.IsNumber() || b.IsString() || b.IsSymbol()):
		prim, err := ctx.ToPrimitive(a, "default")
		if err != nil {
			return false, err
		}
		return ctx.LooseEquals(prim, b)
	}
	return false, nil
}

// StringToNumber implements ES2017 7.1.3.1, including the hex, octal and
// binary literal forms and the Infinity spellings.
func StringToNumber(s *String) float64 {
	str := strings.TrimFunc(s.String(), isStrWhiteSpace)
	if str == "" {
		return 0
	}
	if len(str) > 2 && str[0] == '0' {
		switch str[1] {
		case 'x', 'X':
			if n, err := strconv.ParseUint(str[2:], 16, 64); err == nil {
				return float64(n)
			}
			return math.NaN()
		case 'o', 'O':
			if n, err := strconv.ParseUint(str[2:], 8, 64); err == nil {
				return float64(n)
			}
			return math.NaN()
		case 'b', 'B':
			if n, err := strconv.ParseUint(str[2:], 2, 64); err == nil {
				return float64(n)
			}
			return math.NaN()
		}
	}
	body := str
	sign := 1.0
	if len(body) > 0 && (body[0] == '+' || body[0] == '-') {
		if body[0] == '-' {
			sign = -1
		}
		body = body[1:]
	}
	if body == "Infinity" {
		return sign * math.Inf(1)
	}
	// strconv also accepts spellings such as "inf" and "nan"; here only a
	// digit or '.' may start a decimal literal.
	if body == "" || (body[0] != '.' && (body[0] < '0' || body[0] > '9')) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		// An out-of-range literal keeps strconv's rounded value (±Infinity).
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func isStrWhiteSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', 0x00A0, 0xFEFF, 0x2028, 0x2029:
		return true
	}
	return r >= 0x2000 && r <= 0x200A
}

// cleanExponentialFormat removes leading zeros from the exponent so that
// "1e-07" renders as "1e-7" the way JS formats it.
func cleanExponentialFormat(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' || s[i] == 'E' {
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				sign := s[i+1]
				j := i + 2
				for j < len(s) && s[j] == '0' {
					j++
				}
				if j >= len(s) {
					return s[:i+2] + "0"
				}
				return s[:i+1] + string(sign) + s[j:]
			}
			break
		}
	}
	return s
}

// NumberToString implements ES2017 7.1.12.1 for doubles: fixed notation in
// [1e-6, 1e21), exponential outside, special spellings for NaN and the
// infinities, and "0" for negative zero.
func NumberToString(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == 0 {
		return "0"
	}
	if i := int64(f); float64(i) == f && math.Abs(f) < 1e21 {
		return strconv.FormatInt(i, 10)
	}
	abs := math.Abs(f)
	if abs < 1e-6 || abs >= 1e21 {
		return cleanExponentialFormat(strconv.FormatFloat(f, 'e', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NumberToStringRadix renders f in radix r. For non-integer values the
// fractional expansion carries enough digits to round-trip.
func NumberToStringRadix(f float64, radix int) string {
	if radix == 10 {
		return NumberToString(f)
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	neg := false
	if f < 0 {
		neg = true
		f = -f
	}
	intPart := math.Floor(f)
	frac := f - intPart

	var intDigits []byte
	if intPart == 0 {
		intDigits = []byte{'0'}
	}
	for intPart >= 1 {
		d := int(math.Mod(intPart, float64(radix)))
		intDigits = append([]byte{digits[d]}, intDigits...)
		intPart = math.Floor(intPart / float64(radix))
	}

	out := string(intDigits)
	if frac > 0 {
		var fracDigits []byte
		// Emit until the expansion round-trips or the precision of a
		// double is exhausted.
		for i := 0; i < 1100 && frac > 0; i++ {
			frac *= float64(radix)
			d := int(math.Floor(frac))
			if d >= radix {
				d = radix - 1
			}
			fracDigits = append(fracDigits, digits[d])
			frac -= math.Floor(frac)
			if len(fracDigits) > 52 {
				break
			}
		}
		out += "." + string(fracDigits)
	}
	if neg {
		return "-" + out
	}
	return out
}
