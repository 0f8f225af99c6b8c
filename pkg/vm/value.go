package vm

import (
	"math"
	"unsafe"
)

// ValueType discriminates the variants of the tagged value cell.
type ValueType uint8

const (
	// TypeEmpty is the internal sentinel used for array holes and
	// uninitialized (TDZ) bindings. It is never user-observable.
	TypeEmpty ValueType = iota
	TypeUndefined
	TypeNull
	TypeBoolean
	TypeInteger // int32 fast path
	TypeFloat   // IEEE-754 double
	TypeString
	TypeSymbol
	TypeObject
)

// Value is the engine's tagged cell. Scalars live in payload; strings,
// symbols and objects are handles in obj.
type Value struct {
	typ     ValueType
	payload uint64
	obj     unsafe.Pointer
}

// Symbol is a unique property key with an optional description. Identity is
// pointer identity.
type Symbol struct {
	Description *String
}

var (
	Empty     = Value{typ: TypeEmpty}
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, payload: 1}
	False     = Value{typ: TypeBoolean, payload: 0}
	NaN       = Value{typ: TypeFloat, payload: math.Float64bits(math.NaN())}
)

// Integer builds a small-integer value.
func Integer(i int32) Value {
	return Value{typ: TypeInteger, payload: uint64(int64(i))}
}

// Number builds a numeric value, canonicalizing to the int32 encoding when
// the double is exactly a small integer. -0 stays a double so that its sign
// is preserved.
func Number(f float64) Value {
	if i := int32(f); float64(i) == f && !(f == 0 && math.Signbit(f)) {
		return Integer(i)
	}
	return Value{typ: TypeFloat, payload: math.Float64bits(f)}
}

// Boolean builds a boolean value.
func Boolean(b bool) Value {
	if b {
		return True
	}
	return False
}

// NewStringValue wraps an engine string.
func NewStringValue(s *String) Value {
	return Value{typ: TypeString, obj: unsafe.Pointer(s)}
}

// StringValue builds a string value from a Go string.
func StringValue(s string) Value {
	return NewStringValue(NewStringFromGo(s))
}

// AtomValue wraps an atom's canonical string.
func AtomValue(a *Atom) Value {
	return NewStringValue(a.str)
}

// SymbolValue wraps a symbol handle.
func SymbolValue(s *Symbol) Value {
	return Value{typ: TypeSymbol, obj: unsafe.Pointer(s)}
}

// ObjectValue wraps an object handle.
func ObjectValue(o *Object) Value {
	return Value{typ: TypeObject, obj: unsafe.Pointer(o)}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsEmpty() bool     { return v.typ == TypeEmpty }
func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeNull || v.typ == TypeUndefined }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsNumber() bool    { return v.typ == TypeInteger || v.typ == TypeFloat }
func (v Value) IsInteger() bool   { return v.typ == TypeInteger }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsSymbol() bool    { return v.typ == TypeSymbol }
func (v Value) IsObject() bool    { return v.typ == TypeObject }

// IsCallable reports whether the value is a function object.
func (v Value) IsCallable() bool {
	return v.typ == TypeObject && v.AsObject().IsCallable()
}

func (v Value) AsBoolean() bool { return v.payload != 0 }

func (v Value) AsInteger() int32 { return int32(int64(v.payload)) }

func (v Value) AsFloat() float64 { return math.Float64frombits(v.payload) }

// NumberValue returns the value as a float64. Valid only for numeric values.
func (v Value) NumberValue() float64 {
	if v.typ == TypeInteger {
		return float64(v.AsInteger())
	}
	return v.AsFloat()
}

func (v Value) AsString() *String { return (*String)(v.obj) }

func (v Value) AsSymbol() *Symbol { return (*Symbol)(v.obj) }

func (v Value) AsObject() *Object { return (*Object)(v.obj) }

// StrictEquals implements the === operator. int32 and double encodings of the
// same real value compare equal, +0 === -0, and NaN !== NaN.
func StrictEquals(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.NumberValue() == b.NumberValue()
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return a.payload == b.payload
	case TypeString:
		return a.AsString().Equals(b.AsString())
	case TypeSymbol, TypeObject:
		return a.obj == b.obj
	}
	return false
}

// SameValueZero is StrictEquals except that NaN equals NaN. Used by includes
// and the keyed collections.
func SameValueZero(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.NumberValue(), b.NumberValue()
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	}
	return StrictEquals(a, b)
}

// SameValue distinguishes +0 from -0 and treats NaN as equal to itself.
// Used when comparing property descriptor values.
func SameValue(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.NumberValue(), b.NumberValue()
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		if x == 0 && y == 0 {
			return math.Signbit(x) == math.Signbit(y)
		}
		return x == y
	}
	return StrictEquals(a, b)
}

// TypeOf implements the typeof operator.
func (v Value) TypeOf() string {
	switch v.typ {
	case TypeUndefined, TypeEmpty:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeInteger, TypeFloat:
		return "number"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		if v.AsObject().IsCallable() {
			return "function"
		}
		return "object"
	}
	return "undefined"
}
