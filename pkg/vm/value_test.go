package vm

import (
	"math"
	"testing"
)

func TestStrictEqualsCrossRepresentation(t *testing.T) {
	// int32 and double encodings of the same real value compare equal.
	if !StrictEquals(Integer(5), Value{typ: TypeFloat, payload: math.Float64bits(5)}) {
		t.Errorf("5 (int) === 5.0 (double) should hold")
	}
	if !StrictEquals(Number(0), Number(math.Copysign(0, -1))) {
		t.Errorf("+0 === -0 should hold")
	}
	if StrictEquals(NaN, NaN) {
		t.Errorf("NaN === NaN should not hold")
	}
	if StrictEquals(Integer(1), StringValue("1")) {
		t.Errorf("1 === \"1\" should not hold")
	}
}

func TestSameValueZero(t *testing.T) {
	if !SameValueZero(NaN, NaN) {
		t.Errorf("SameValueZero(NaN, NaN) should hold")
	}
	if !SameValueZero(Number(0), Number(math.Copysign(0, -1))) {
		t.Errorf("SameValueZero(+0, -0) should hold")
	}
}

func TestSameValueDistinguishesZeroes(t *testing.T) {
	if SameValue(Number(0), Number(math.Copysign(0, -1))) {
		t.Errorf("SameValue(+0, -0) should not hold")
	}
	if !SameValue(NaN, NaN) {
		t.Errorf("SameValue(NaN, NaN) should hold")
	}
}

func TestNumberCanonicalization(t *testing.T) {
	if Number(7).Type() != TypeInteger {
		t.Errorf("7.0 should canonicalize to the int32 encoding")
	}
	if Number(7.5).Type() != TypeFloat {
		t.Errorf("7.5 must stay a double")
	}
	negZero := Number(math.Copysign(0, -1))
	if negZero.Type() != TypeFloat || !math.Signbit(negZero.AsFloat()) {
		t.Errorf("-0 must stay a double to preserve its sign")
	}
}

func TestNumberToString(t *testing.T) {
	cases := map[float64]string{
		0:        "0",
		42:       "42",
		-1.5:     "-1.5",
		1e21:     "1e+21",
		0.000001: "0.000001",
		1e-7:     "1e-7",
	}
	for in, want := range cases {
		if got := NumberToString(in); got != want {
			t.Errorf("NumberToString(%v) = %q, want %q", in, got, want)
		}
	}
	if NumberToString(math.NaN()) != "NaN" {
		t.Errorf("NaN spelling")
	}
	if NumberToString(math.Inf(-1)) != "-Infinity" {
		t.Errorf("-Infinity spelling")
	}
}

func TestNumberToStringRadix(t *testing.T) {
	if got := NumberToStringRadix(255, 16); got != "ff" {
		t.Errorf("255 radix 16 = %q", got)
	}
	if got := NumberToStringRadix(-8, 2); got != "-1000" {
		t.Errorf("-8 radix 2 = %q", got)
	}
	if got := NumberToStringRadix(3.5, 2); got != "11.1" {
		t.Errorf("3.5 radix 2 = %q", got)
	}
}

func TestStringToNumber(t *testing.T) {
	cases := map[string]float64{
		"":         0,
		"  42  ":   42,
		"0x10":     16,
		"0b101":    5,
		"0o17":     15,
		"-3.5":     -3.5,
		"Infinity": math.Inf(1),
		"1e3":      1000,
	}
	for in, want := range cases {
		if got := StringToNumber(NewStringFromGo(in)); got != want {
			t.Errorf("StringToNumber(%q) = %v, want %v", in, got, want)
		}
	}
	if !math.IsNaN(StringToNumber(NewStringFromGo("12abc"))) {
		t.Errorf("trailing garbage should produce NaN")
	}
}

func TestToIntegerAndUint32(t *testing.T) {
	if ToIntegerFloat(math.NaN()) != 0 {
		t.Errorf("ToInteger(NaN) = 0")
	}
	if ToIntegerFloat(-2.7) != -2 {
		t.Errorf("ToInteger truncates toward zero")
	}
	if ToUint32Float(-1) != 0xFFFFFFFF {
		t.Errorf("ToUint32(-1) wraps")
	}
	if ToInt32Float(0x80000000) != math.MinInt32 {
		t.Errorf("ToInt32 wraps at 2^31")
	}
}

func TestTypeOf(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{True, "boolean"},
		{Integer(1), "number"},
		{Number(1.5), "number"},
		{StringValue("x"), "string"},
		{SymbolValue(&Symbol{}), "symbol"},
	}
	for _, tc := range cases {
		if got := tc.v.TypeOf(); got != tc.want {
			t.Errorf("TypeOf(%v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestAtomInterning(t *testing.T) {
	table := NewAtomTable()
	a := table.Intern("foo")
	b := table.Intern("foo")
	if a != b {
		t.Errorf("same text must intern to a pointer-equal atom")
	}
	if c := table.Intern("bar"); c == a {
		t.Errorf("different text must intern to different atoms")
	}
}
