package builtins

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"escargot/pkg/vm"
)

type JSONInitializer struct{}

func (j *JSONInitializer) Name() string  { return "JSON" }
func (j *JSONInitializer) Priority() int { return PriorityJSON }

func (j *JSONInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	obj := ctx.NewPlainObject()
	rc.DefineGlobal("JSON", vm.ObjectValue(obj))

	defineMethod(ctx, obj, "parse", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		text, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		p := &jsonParser{ctx: ctx, src: text.String()}
		v, err := p.parseValue()
		if err != nil {
			return vm.Undefined, err
		}
		p.skipWhitespace()
		if p.pos != len(p.src) {
			return vm.Undefined, ctx.NewSyntaxErrorValue("Unexpected token in JSON at position %d", p.pos)
		}
		return v, nil
	})

	defineMethod(ctx, obj, "stringify", 3, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		s := &jsonStringifier{ctx: ctx, seen: make(map[*vm.Object]bool)}
		if r := arg(args, 1); r.IsCallable() {
			s.replacer = r
		}
		if sp := arg(args, 2); !sp.IsUndefined() {
			if sp.IsNumber() {
				n := int(sp.NumberValue())
				if n > 10 {
					n = 10
				}
				s.indent = strings.Repeat(" ", max(0, n))
			} else if sp.IsString() {
				s.indent = sp.AsString().String()
				if len(s.indent) > 10 {
					s.indent = s.indent[:10]
				}
			}
		}
		out, present, err := s.stringify(arg(args, 0), vm.StringValue(""))
		if err != nil {
			return vm.Undefined, err
		}
		if !present {
			return vm.Undefined, nil
		}
		return vm.StringValue(out), nil
	})

	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type jsonParser struct {
	ctx *vm.Context
	src string
	pos int
}

func (p *jsonParser) skipWhitespace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *jsonParser) fail() error {
	return p.ctx.NewSyntaxErrorValue("Unexpected token in JSON at position %d", p.pos)
}

func (p *jsonParser) parseValue() (vm.Value, error) {
	p.skipWhitespace()
	if p.pos >= len(p.src) {
		return vm.Undefined, p.ctx.NewSyntaxErrorValue("Unexpected end of JSON input")
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(s), nil
	case c == 't':
		if strings.HasPrefix(p.src[p.pos:], "true") {
			p.pos += 4
			return vm.True, nil
		}
		return vm.Undefined, p.fail()
	case c == 'f':
		if strings.HasPrefix(p.src[p.pos:], "false") {
			p.pos += 5
			return vm.False, nil
		}
		return vm.Undefined, p.fail()
	case c == 'n':
		if strings.HasPrefix(p.src[p.pos:], "null") {
			p.pos += 4
			return vm.Null, nil
		}
		return vm.Undefined, p.fail()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	}
	return vm.Undefined, p.fail()
}

func (p *jsonParser) parseNumber() (vm.Value, error) {
	start := p.pos
	if p.pos < len(p.src) && p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9') {
		p.pos++
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9') {
			p.pos++
		}
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9') {
			p.pos++
		}
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return vm.Undefined, p.fail()
	}
	return vm.Number(f), nil
}

func (p *jsonParser) parseString() (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			return b.String(), nil
		case c == '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.fail()
			}
			switch p.src[p.pos] {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '/':
				b.WriteByte('/')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'u':
				if p.pos+4 >= len(p.src) {
					return "", p.fail()
				}
				n, err := strconv.ParseUint(p.src[p.pos+1:p.pos+5], 16, 32)
				if err != nil {
					return "", p.fail()
				}
				p.pos += 4
				r := rune(n)
				// Combine a surrogate pair when one follows.
				if utf16.IsSurrogate(r) && p.pos+6 < len(p.src) && p.src[p.pos+1] == '\\' && p.src[p.pos+2] == 'u' {
					if n2, err := strconv.ParseUint(p.src[p.pos+3:p.pos+7], 16, 32); err == nil {
						if combined := utf16.DecodeRune(r, rune(n2)); combined != utf8.RuneError {
							r = combined
							p.pos += 6
						}
					}
				}
				b.WriteRune(r)
			default:
				return "", p.fail()
			}
			p.pos++
		case c < 0x20:
			return "", p.fail()
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.ctx.NewSyntaxErrorValue("Unexpected end of JSON input")
}

func (p *jsonParser) parseObject() (vm.Value, error) {
	p.pos++ // {
	obj := p.ctx.NewPlainObject()
	p.skipWhitespace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return vm.ObjectValue(obj), nil
	}
	for {
		p.skipWhitespace()
		if p.pos >= len(p.src) || p.src[p.pos] != '"' {
			return vm.Undefined, p.fail()
		}
		name, err := p.parseString()
		if err != nil {
			return vm.Undefined, err
		}
		p.skipWhitespace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return vm.Undefined, p.fail()
		}
		p.pos++
		v, err := p.parseValue()
		if err != nil {
			return vm.Undefined, err
		}
		obj.DefineOwn(p.ctx, key(p.ctx, name), v, vm.AttrDefault)
		p.skipWhitespace()
		if p.pos >= len(p.src) {
			return vm.Undefined, p.fail()
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return vm.ObjectValue(obj), nil
		default:
			return vm.Undefined, p.fail()
		}
	}
}

func (p *jsonParser) parseArray() (vm.Value, error) {
	p.pos++ // [
	var elems []vm.Value
	p.skipWhitespace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return vm.ObjectValue(p.ctx.NewArrayFromValues(elems)), nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return vm.Undefined, err
		}
		elems = append(elems, v)
		p.skipWhitespace()
		if p.pos >= len(p.src) {
			return vm.Undefined, p.fail()
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return vm.ObjectValue(p.ctx.NewArrayFromValues(elems)), nil
		default:
			return vm.Undefined, p.fail()
		}
	}
}

type jsonStringifier struct {
	ctx      *vm.Context
	replacer vm.Value
	indent   string
	depth    int
	seen     map[*vm.Object]bool
}

// stringify returns (text, present, err); present=false maps to the
// undefined result for unserializable values.
func (s *jsonStringifier) stringify(v vm.Value, k vm.Value) (string, bool, error) {
	ctx := s.ctx
	if v.IsObject() {
		toJSON, err := ctx.GetProperty(v, key(ctx, "toJSON"))
		if err != nil {
			return "", false, err
		}
		if toJSON.IsCallable() {
			if v, err = ctx.Call(toJSON, v, []vm.Value{k}); err != nil {
				return "", false, err
			}
		}
	}
	if s.replacer.IsCallable() {
		var err error
		if v, err = ctx.Call(s.replacer, vm.Undefined, []vm.Value{k, v}); err != nil {
			return "", false, err
		}
	}
	switch v.Type() {
	case vm.TypeNull:
		return "null", true, nil
	case vm.TypeBoolean:
		if v.AsBoolean() {
			return "true", true, nil
		}
		return "false", true, nil
	case vm.TypeInteger, vm.TypeFloat:
		f := v.NumberValue()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "null", true, nil
		}
		return vm.NumberToString(f), true, nil
	case vm.TypeString:
		return quoteJSON(v.AsString().String()), true, nil
	case vm.TypeObject:
		obj := v.AsObject()
		if obj.IsCallable() {
			return "", false, nil
		}
		if s.seen[obj] {
			return "", false, ctx.NewTypeError("Converting circular structure to JSON")
		}
		s.seen[obj] = true
		defer delete(s.seen, obj)
		if obj.IsArray() {
			return s.stringifyArray(v)
		}
		return s.stringifyObject(v)
	}
	return "", false, nil
}

// wrap lays out the collected entries with the configured indentation.
// depth is the nesting level of the brackets themselves.
func (s *jsonStringifier) wrap(open, close byte, parts []string) string {
	if len(parts) == 0 {
		return string(open) + string(close)
	}
	if s.indent == "" {
		return string(open) + strings.Join(parts, ",") + string(close)
	}
	inner := strings.Repeat(s.indent, s.depth+1)
	outer := strings.Repeat(s.indent, s.depth)
	return string(open) + "\n" + inner + strings.Join(parts, ",\n"+inner) + "\n" + outer + string(close)
}

func (s *jsonStringifier) stringifyArray(v vm.Value) (string, bool, error) {
	ctx := s.ctx
	length, err := lengthOf(ctx, v)
	if err != nil {
		return "", false, err
	}
	s.depth++
	var parts []string
	for i := int64(0); i < length; i++ {
		el, err := getElement(ctx, v, i)
		if err != nil {
			return "", false, err
		}
		text, present, err := s.stringify(el, vm.Number(float64(i)))
		if err != nil {
			return "", false, err
		}
		if !present {
			text = "null"
		}
		parts = append(parts, text)
	}
	s.depth--
	return s.wrap('[', ']', parts), true, nil
}

func (s *jsonStringifier) stringifyObject(v vm.Value) (string, bool, error) {
	ctx := s.ctx
	obj := v.AsObject()
	s.depth++
	var parts []string
	for _, k := range obj.OwnKeys(ctx) {
		if k.IsSymbol() {
			continue
		}
		desc, ok := obj.GetOwnProperty(ctx, k)
		if !ok || !desc.Enumerable {
			continue
		}
		el, err := obj.Get(ctx, k, v)
		if err != nil {
			return "", false, err
		}
		text, present, err := s.stringify(el, vm.AtomValue(k.Atom()))
		if err != nil {
			return "", false, err
		}
		if !present {
			continue
		}
		colon := ":"
		if s.indent != "" {
			colon = ": "
		}
		parts = append(parts, quoteJSON(k.Atom().String())+colon+text)
	}
	s.depth--
	return s.wrap('{', '}', parts), true, nil
}

func quoteJSON(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if r < 0x20 {
				b.WriteString("\\u")
				hex := strconv.FormatInt(int64(r), 16)
				for len(hex) < 4 {
					hex = "0" + hex
				}
				b.WriteString(hex)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
