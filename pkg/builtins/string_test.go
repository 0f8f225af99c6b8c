package builtins

import (
	"testing"

	"escargot/pkg/vm"
)

func TestExpandReplacement(t *testing.T) {
	captures := []vm.Value{vm.StringValue("one"), vm.StringValue("two")}
	cases := []struct {
		replacement string
		want        string
	}{
		{"$$", "$"},
		{"$&", "mid"},
		{"$`", "pre"},
		{"$'", "post"},
		{"$1", "one"},
		{"$2", "two"},
		{"$02", "two"},
		{"$3", "$3"},    // out of range: verbatim
		{"$12", "one2"}, // 12 out of range, falls back to one digit
		{"x$&y", "xmidy"},
	}
	for _, tc := range cases {
		got := expandReplacement(tc.replacement, "mid", 3, "premidpost", captures)
		if got != tc.want {
			t.Errorf("expandReplacement(%q) = %q, want %q", tc.replacement, got, tc.want)
		}
	}
}

func TestExpandReplacementNoCaptures(t *testing.T) {
	// A plain-string search has no groups; $1 passes through verbatim.
	if got := expandReplacement("$01", "a", 0, "a", nil); got != "$01" {
		t.Errorf("expandReplacement($01) = %q", got)
	}
}

func TestStringSearchHelpers(t *testing.T) {
	hay := vm.NewStringFromGo("abcabc")
	needle := vm.NewStringFromGo("bc")
	if got := stringIndexOf(hay, needle, 0); got != 1 {
		t.Errorf("indexOf = %d", got)
	}
	if got := stringIndexOf(hay, needle, 2); got != 4 {
		t.Errorf("indexOf from 2 = %d", got)
	}
	if got := stringLastIndexOf(hay, needle, hay.Length()); got != 4 {
		t.Errorf("lastIndexOf = %d", got)
	}
	if got := stringIndexOf(hay, vm.NewStringFromGo("zz"), 0); got != -1 {
		t.Errorf("missing needle = %d", got)
	}
}

func TestTrimStringHelper(t *testing.T) {
	s := vm.NewStringFromGo("\t x \n")
	if got := trimString(s, true, true).String(); got != "x" {
		t.Errorf("trim both = %q", got)
	}
	if got := trimString(s, true, false).String(); got != "x \n" {
		t.Errorf("trim start = %q", got)
	}
}
