package vm

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// MaxStringLength is the engine-wide cap on string length in UTF-16 code
// units. Any operation that would produce a longer string fails with the
// RangeError kind.
const MaxStringLength = (1 << 30) - 1

// String is the engine's immutable string. It is stored either as Latin-1
// bytes (when every code unit fits in a byte), as UTF-16 code units, or as a
// rope of two children that is flattened on first random access.
type String struct {
	latin1 []byte
	utf16  []uint16
	left   *String // rope children; both nil once flat
	right  *String
	length int // length in UTF-16 code units
}

var emptyString = &String{latin1: []byte{}}

// NewStringFromGo builds a String from a Go (UTF-8) string, choosing Latin-1
// storage when possible.
func NewStringFromGo(s string) *String {
	if s == "" {
		return emptyString
	}
	// ASCII fast path: bytes are code units.
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return &String{latin1: []byte(s), length: len(s)}
	}
	units := utf16.Encode([]rune(s))
	latin1 := true
	for _, u := range units {
		if u > 0xFF {
			latin1 = false
			break
		}
	}
	if latin1 {
		b := make([]byte, len(units))
		for i, u := range units {
			b[i] = byte(u)
		}
		return &String{latin1: b, length: len(b)}
	}
	return &String{utf16: units, length: len(units)}
}

// NewStringFromUnits builds a String from raw UTF-16 code units.
func NewStringFromUnits(units []uint16) *String {
	latin1 := true
	for _, u := range units {
		if u > 0xFF {
			latin1 = false
			break
		}
	}
	if latin1 {
		b := make([]byte, len(units))
		for i, u := range units {
			b[i] = byte(u)
		}
		return &String{latin1: b, length: len(b)}
	}
	own := make([]uint16, len(units))
	copy(own, units)
	return &String{utf16: own, length: len(units)}
}

// ConcatStrings builds a rope over a and b. Returns nil when the combined
// length would exceed MaxStringLength.
func ConcatStrings(a, b *String) *String {
	if a.length == 0 {
		return b
	}
	if b.length == 0 {
		return a
	}
	total := a.length + b.length
	if total > MaxStringLength {
		return nil
	}
	// Small pieces are cheaper to merge eagerly than to chase as rope nodes.
	if total <= 24 {
		return sliceConcat(a, b)
	}
	return &String{left: a, right: b, length: total}
}

func sliceConcat(a, b *String) *String {
	a.flatten()
	b.flatten()
	if a.latin1 != nil && b.latin1 != nil {
		buf := make([]byte, 0, a.length+b.length)
		buf = append(buf, a.latin1...)
		buf = append(buf, b.latin1...)
		return &String{latin1: buf, length: len(buf)}
	}
	buf := make([]uint16, 0, a.length+b.length)
	buf = appendUnits(buf, a)
	buf = appendUnits(buf, b)
	return &String{utf16: buf, length: len(buf)}
}

func appendUnits(dst []uint16, s *String) []uint16 {
	if s.latin1 != nil {
		for _, c := range s.latin1 {
			dst = append(dst, uint16(c))
		}
		return dst
	}
	return append(dst, s.utf16...)
}

// flatten collapses a rope into contiguous storage. Random-access operations
// call it before touching code units.
func (s *String) flatten() {
	if s.left == nil {
		return
	}
	latin1 := true
	stack := []*String{s}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.left != nil {
			stack = append(stack, n.left, n.right)
			continue
		}
		if n.utf16 != nil {
			latin1 = false
		}
	}
	if latin1 {
		buf := make([]byte, 0, s.length)
		var emit func(*String)
		emit = func(n *String) {
			if n.left != nil {
				emit(n.left)
				emit(n.right)
				return
			}
			buf = append(buf, n.latin1...)
		}
		emit(s)
		s.latin1 = buf
	} else {
		buf := make([]uint16, 0, s.length)
		var emit func(*String)
		emit = func(n *String) {
			if n.left != nil {
				emit(n.left)
				emit(n.right)
				return
			}
			buf = appendUnits(buf, n)
		}
		emit(s)
		s.utf16 = buf
	}
	s.left = nil
	s.right = nil
}

// Length returns the string length in UTF-16 code units.
func (s *String) Length() int { return s.length }

// IsLatin1 reports whether the flattened storage is Latin-1.
func (s *String) IsLatin1() bool {
	s.flatten()
	return s.latin1 != nil
}

// CharCodeAt returns the UTF-16 code unit at index i. The caller guarantees
// 0 <= i < Length().
func (s *String) CharCodeAt(i int) uint16 {
	s.flatten()
	if s.latin1 != nil {
		return uint16(s.latin1[i])
	}
	return s.utf16[i]
}

// Substring returns the half-open code-unit range [start, end).
func (s *String) Substring(start, end int) *String {
	if start < 0 {
		start = 0
	}
	if end > s.length {
		end = s.length
	}
	if start >= end {
		return emptyString
	}
	s.flatten()
	if s.latin1 != nil {
		return &String{latin1: s.latin1[start:end], length: end - start}
	}
	return &String{utf16: s.utf16[start:end], length: end - start}
}

// Units returns the string as UTF-16 code units.
func (s *String) Units() []uint16 {
	s.flatten()
	if s.latin1 != nil {
		units := make([]uint16, len(s.latin1))
		for i, c := range s.latin1 {
			units[i] = uint16(c)
		}
		return units
	}
	return s.utf16
}

// String converts to a Go (UTF-8) string.
func (s *String) String() string {
	s.flatten()
	if s.latin1 != nil {
		// Latin-1 bytes above 0x7F need re-encoding as runes.
		ascii := true
		for _, c := range s.latin1 {
			if c >= utf8.RuneSelf {
				ascii = false
				break
			}
		}
		if ascii {
			return string(s.latin1)
		}
		var b strings.Builder
		b.Grow(len(s.latin1))
		for _, c := range s.latin1 {
			b.WriteRune(rune(c))
		}
		return b.String()
	}
	return string(utf16.Decode(s.utf16))
}

// Equals compares code-unit sequences.
func (s *String) Equals(o *String) bool {
	if s == o {
		return true
	}
	if s.length != o.length {
		return false
	}
	s.flatten()
	o.flatten()
	if s.latin1 != nil && o.latin1 != nil {
		return string(s.latin1) == string(o.latin1)
	}
	for i := 0; i < s.length; i++ {
		if s.CharCodeAt(i) != o.CharCodeAt(i) {
			return false
		}
	}
	return true
}

// Compare orders strings by code units: -1, 0 or 1.
func (s *String) Compare(o *String) int {
	n := s.length
	if o.length < n {
		n = o.length
	}
	for i := 0; i < n; i++ {
		a, b := s.CharCodeAt(i), o.CharCodeAt(i)
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
	}
	switch {
	case s.length < o.length:
		return -1
	case s.length > o.length:
		return 1
	}
	return 0
}
