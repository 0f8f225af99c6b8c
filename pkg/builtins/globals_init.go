package builtins

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"escargot/pkg/compiler"
	"escargot/pkg/parser"
	"escargot/pkg/source"
	"escargot/pkg/vm"
)

type GlobalsInitializer struct{}

func (g *GlobalsInitializer) Name() string  { return "Globals" }
func (g *GlobalsInitializer) Priority() int { return PriorityGlobals }

func (g *GlobalsInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	global := ctx.Global()

	global.DefineOwn(ctx, key(ctx, "undefined"), vm.Undefined, 0)
	global.DefineOwn(ctx, key(ctx, "NaN"), vm.NaN, 0)
	global.DefineOwn(ctx, key(ctx, "Infinity"), vm.Number(math.Inf(1)), 0)
	global.DefineOwn(ctx, key(ctx, "globalThis"), vm.ObjectValue(global), vm.AttrWritable|vm.AttrConfigurable)

	rc.DefineGlobal("parseInt", vm.ObjectValue(ctx.NewNativeFunction("parseInt", 2, parseIntImpl)))
	rc.DefineGlobal("parseFloat", vm.ObjectValue(ctx.NewNativeFunction("parseFloat", 1, parseFloatImpl)))

	defineMethod(ctx, global, "isNaN", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := ctx.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(math.IsNaN(f)), nil
	})

	defineMethod(ctx, global, "isFinite", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := ctx.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.Boolean(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
	})

	// eval runs with indirect semantics: the program executes in the global
	// scope regardless of the call site.
	defineMethod(ctx, global, "eval", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		src := arg(args, 0)
		if !src.IsString() {
			return src, nil
		}
		file := source.NewEvalSource(src.AsString().String())
		p := parser.New(file)
		program := p.ParseProgram(false)
		if len(p.Errors()) > 0 {
			return vm.Undefined, ctx.NewSyntaxErrorValue("%s", p.Errors()[0].Message())
		}
		comp := compiler.New(ctx.Instance())
		block, errs := comp.Compile(program, file)
		if len(errs) > 0 {
			return vm.Undefined, ctx.NewSyntaxErrorValue("%s", errs[0].Message())
		}
		return ctx.VM().RunProgram(block)
	})

	defineMethod(ctx, global, "encodeURIComponent", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		out := url.QueryEscape(s.String())
		// QueryEscape space handling and the unreserved marks differ from
		// the URI component rules.
		out = strings.ReplaceAll(out, "+", "%20")
		for _, keep := range []string{"!", "'", "(", ")", "*", "~"} {
			out = strings.ReplaceAll(out, url.QueryEscape(keep), keep)
		}
		return vm.StringValue(out), nil
	})

	defineMethod(ctx, global, "decodeURIComponent", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		out, uerr := url.QueryUnescape(strings.ReplaceAll(s.String(), "+", "%2B"))
		if uerr != nil {
			return vm.Undefined, ctx.NewURIError("URI malformed")
		}
		return vm.StringValue(out), nil
	})

	defineMethod(ctx, global, "encodeURI", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		out := &strings.Builder{}
		for _, b := range []byte(s.String()) {
			if isURIUnescaped(b) || strings.IndexByte(";/?:@&=+$,#", b) >= 0 {
				out.WriteByte(b)
			} else {
				out.WriteString("%" + strings.ToUpper(strconv.FormatInt(int64(b), 16)))
			}
		}
		return vm.StringValue(out.String()), nil
	})

	defineMethod(ctx, global, "decodeURI", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := ctx.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		out, uerr := url.PathUnescape(s.String())
		if uerr != nil {
			return vm.Undefined, ctx.NewURIError("URI malformed")
		}
		return vm.StringValue(out), nil
	})

	return nil
}

func isURIUnescaped(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') ||
		strings.IndexByte("-_.!~*'()", b) >= 0
}

func parseIntImpl(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := ctx.ToString(arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	str := strings.TrimSpace(s.String())
	radix := 0
	if r := arg(args, 1); !r.IsUndefined() {
		ri, err := ctx.ToInt32(r)
		if err != nil {
			return vm.Undefined, err
		}
		radix = int(ri)
	}
	sign := 1.0
	if len(str) > 0 && (str[0] == '+' || str[0] == '-') {
		if str[0] == '-' {
			sign = -1
		}
		str = str[1:]
	}
	stripPrefix := radix == 0 || radix == 16
	if stripPrefix && len(str) >= 2 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X') {
		str = str[2:]
		radix = 16
	} else if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return vm.NaN, nil
	}
	// Consume the longest valid digit prefix.
	end := 0
	for end < len(str) {
		if digitValue(str[end]) >= radix {
			break
		}
		end++
	}
	if end == 0 {
		return vm.NaN, nil
	}
	result := 0.0
	for i := 0; i < end; i++ {
		result = result*float64(radix) + float64(digitValue(str[i]))
	}
	return vm.Number(sign * result), nil
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

func parseFloatImpl(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := ctx.ToString(arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	str := strings.TrimSpace(s.String())
	// Longest prefix that parses as a decimal literal.
	end := len(str)
	for end > 0 {
		if _, err := strconv.ParseFloat(str[:end], 64); err == nil {
			break
		}
		end--
	}
	if end == 0 {
		if strings.HasPrefix(str, "Infinity") || strings.HasPrefix(str, "+Infinity") {
			return vm.Number(math.Inf(1)), nil
		}
		if strings.HasPrefix(str, "-Infinity") {
			return vm.Number(math.Inf(-1)), nil
		}
		return vm.NaN, nil
	}
	f, _ := strconv.ParseFloat(str[:end], 64)
	return vm.Number(f), nil
}
