package builtins

import (
	"strings"

	"escargot/pkg/vm"
)

// requireObjectCoercible rejects nullish receivers for the String.prototype
// methods.
func requireObjectCoercible(ctx *vm.Context, v vm.Value, method string) error {
	if v.IsNullish() {
		return ctx.NewTypeError("String.prototype.%s called on null or undefined", method)
	}
	return nil
}

// thisString coerces the receiver, unwrapping String wrapper objects.
func thisString(ctx *vm.Context, this vm.Value, method string) (*vm.String, error) {
	if err := requireObjectCoercible(ctx, this, method); err != nil {
		return nil, err
	}
	if this.IsObject() && this.AsObject().Kind() == vm.KindStringObject {
		return this.AsObject().Internal().(*vm.PrimitiveData).Value.AsString(), nil
	}
	return ctx.ToString(this)
}

// expandReplacement interprets the $-patterns of a plain-string replacer:
// $$, $&, $`, $', $n and $nn, with the two-digit capture index falling back
// to one digit when it is out of range (ES2017 21.1.3.14.1).
func expandReplacement(replacement, matched string, position int, subject string, captures []vm.Value) string {
	var b strings.Builder
	for i := 0; i < len(replacement); i++ {
		ch := replacement[i]
		if ch != '$' || i+1 >= len(replacement) {
			b.WriteByte(ch)
			continue
		}
		next := replacement[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '&':
			b.WriteString(matched)
			i++
		case next == '`':
			b.WriteString(subject[:position])
			i++
		case next == '\'':
			b.WriteString(subject[position+len(matched):])
			i++
		case next >= '0' && next <= '9':
			idx := int(next - '0')
			consumed := 1
			if i+2 < len(replacement) && replacement[i+2] >= '0' && replacement[i+2] <= '9' {
				twoDigit := idx*10 + int(replacement[i+2]-'0')
				if twoDigit >= 1 && twoDigit <= len(captures) {
					idx = twoDigit
					consumed = 2
				}
			}
			if idx >= 1 && idx <= len(captures) {
				cap := captures[idx-1]
				if cap.IsString() {
					b.WriteString(cap.AsString().String())
				}
				i += consumed
			} else {
				// No such capture group: the text passes through verbatim.
				b.WriteByte(ch)
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// stringIndexOf searches by UTF-16 code units from a given unit offset.
func stringIndexOf(haystack, needle *vm.String, from int) int {
	n, m := haystack.Length(), needle.Length()
	if from < 0 {
		from = 0
	}
	for i := from; i+m <= n; i++ {
		found := true
		for j := 0; j < m; j++ {
			if haystack.CharCodeAt(i+j) != needle.CharCodeAt(j) {
				found = false
				break
			}
		}
		if found {
			return i
		}
	}
	return -1
}

func stringLastIndexOf(haystack, needle *vm.String, from int) int {
	n, m := haystack.Length(), needle.Length()
	if from > n-m {
		from = n - m
	}
	for i := from; i >= 0; i-- {
		found := true
		for j := 0; j < m; j++ {
			if haystack.CharCodeAt(i+j) != needle.CharCodeAt(j) {
				found = false
				break
			}
		}
		if found {
			return i
		}
	}
	return -1
}

func isTrimWhiteSpace(c uint16) bool {
	switch c {
	case ' ', '\t', '\n', '\r', 0x0B, 0x0C, 0x00A0, 0xFEFF, 0x2028, 0x2029:
		return true
	}
	return c >= 0x2000 && c <= 0x200A
}

func trimString(s *vm.String, start, end bool) *vm.String {
	lo, hi := 0, s.Length()
	if start {
		for lo < hi && isTrimWhiteSpace(s.CharCodeAt(lo)) {
			lo++
		}
	}
	if end {
		for hi > lo && isTrimWhiteSpace(s.CharCodeAt(hi-1)) {
			hi--
		}
	}
	return s.Substring(lo, hi)
}
