package parser

import (
	"testing"

	"escargot/pkg/source"
)

func parseProgram(t *testing.T, src string) *Program {
	t.Helper()
	p := New(source.NewEvalSource(src))
	program := p.ParseProgram(false)
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors for %q: %v", src, p.Errors()[0])
	}
	return program
}

func TestUnparseRoundTrip(t *testing.T) {
	// parse(unparse(ast)) must reproduce the same tree; String() is the
	// unparser, so comparing its output across a reparse checks structural
	// equality.
	sources := []string{
		"let x = 1;",
		"var a = 1, b = 2;",
		"const c = [1, 2, 3];",
		"x = y + z * 2;",
		"f(a, b)(c);",
		"a.b.c[d];",
		"function f(a, b) { return a + b; }",
		"if (x) { f(); } else { g(); }",
		"while (x < 10) { x = x + 1; }",
		"do { x(); } while (y);",
		"for (let i = 0; i < 3; i = i + 1) { body(); }",
		"for (k in o) { use(k); }",
		"for (const v of xs) { use(v); }",
		"try { f(); } catch (e) { g(e); } finally { h(); }",
		"switch (x) { case 1: a(); default: b(); }",
		"throw new Error(\"m\");",
		"let o = {a: 1, b: [2], c: function() { return 3; }};",
		"let f = (a, b) => a + b;",
		"let g = x => x;",
		"x ? y : z;",
		"!(-a);",
		"(typeof x);",
		"(delete o.p);",
		"a && b || c;",
		"with (o) { p(); }",
		"outer: for (k in o) { continue outer; }",
		"done: { break done; }",
	}
	for _, src := range sources {
		first := parseProgram(t, src)
		unparsed := first.String()
		second := parseProgram(t, unparsed)
		if second.String() != unparsed {
			t.Errorf("round-trip diverged for %q:\n  first:  %q\n  second: %q", src, unparsed, second.String())
		}
	}
}

func TestPrecedence(t *testing.T) {
	cases := map[string]string{
		"1 + 2 * 3;":      "(1 + (2 * 3));",
		"1 * 2 + 3;":      "((1 * 2) + 3);",
		"a = b = c;":      "(a = (b = c));",
		"2 ** 3 ** 2;":    "(2 ** (3 ** 2));",
		"1 < 2 === true;": "((1 < 2) === true);",
		"-a * b;":         "((-a) * b);",
		"!a && b;":        "((!a) && b);",
		"a + b < c | d;":  "(((a + b) < c) | d);",
	}
	for src, want := range cases {
		got := parseProgram(t, src).String()
		if got != want {
			t.Errorf("%q parsed as %q, want %q", src, got, want)
		}
	}
}

func TestASI(t *testing.T) {
	program := parseProgram(t, "let a = 1\nlet b = 2\na + b")
	if len(program.Statements) != 3 {
		t.Fatalf("ASI should yield 3 statements, got %d", len(program.Statements))
	}
	// A newline after return terminates the statement.
	fn := parseProgram(t, "function f() { return\n1; }")
	decl := fn.Statements[0].(*FunctionDeclaration)
	ret := decl.Function.Body.Statements[0].(*ReturnStatement)
	if ret.Value != nil {
		t.Fatalf("return followed by a newline must not take an argument")
	}
}

func TestArrayHoles(t *testing.T) {
	program := parseProgram(t, "[1, , 3];")
	arr := program.Statements[0].(*ExpressionStatement).Expression.(*ArrayLiteral)
	if len(arr.Elements) != 3 {
		t.Fatalf("elements = %d, want 3", len(arr.Elements))
	}
	if arr.Elements[1] != nil {
		t.Fatalf("the elision should parse as a nil hole")
	}
}

func TestTemplateLiteralShape(t *testing.T) {
	program := parseProgram(t, "`a${x}b${y}c`;")
	tl := program.Statements[0].(*ExpressionStatement).Expression.(*TemplateLiteral)
	if len(tl.Quasis) != 3 || len(tl.Expressions) != 2 {
		t.Fatalf("quasis=%d exprs=%d", len(tl.Quasis), len(tl.Expressions))
	}
	if tl.Quasis[0] != "a" || tl.Quasis[1] != "b" || tl.Quasis[2] != "c" {
		t.Fatalf("quasis = %v", tl.Quasis)
	}
}

func TestRegexLiteral(t *testing.T) {
	program := parseProgram(t, "let r = /ab+c/gi;")
	decl := program.Statements[0].(*VariableStatement)
	re := decl.Declarators[0].Init.(*RegexLiteral)
	if re.Pattern != "ab+c" || re.Flags != "gi" {
		t.Fatalf("regex = /%s/%s", re.Pattern, re.Flags)
	}
	// Division in operand position stays division.
	div := parseProgram(t, "let q = a / b / c;")
	if _, ok := div.Statements[0].(*VariableStatement).Declarators[0].Init.(*InfixExpression); !ok {
		t.Fatalf("a / b / c must parse as division")
	}
}

func TestArrowDisambiguation(t *testing.T) {
	program := parseProgram(t, "let f = (a, b) => a + b; let g = (a + b);")
	first := program.Statements[0].(*VariableStatement).Declarators[0].Init
	if fn, ok := first.(*FunctionLiteral); !ok || !fn.IsArrow || len(fn.Params) != 2 {
		t.Fatalf("(a, b) => ... must parse as an arrow function, got %T", first)
	}
	second := program.Statements[1].(*VariableStatement).Declarators[0].Init
	if _, ok := second.(*InfixExpression); !ok {
		t.Fatalf("(a + b) must stay a parenthesized expression, got %T", second)
	}
}

func TestGetterSetterProperties(t *testing.T) {
	program := parseProgram(t, "let o = { get x() { return 1; }, set x(v) { }, get: 5 };")
	obj := program.Statements[0].(*VariableStatement).Declarators[0].Init.(*ObjectLiteral)
	if len(obj.Properties) != 3 {
		t.Fatalf("properties = %d", len(obj.Properties))
	}
	if obj.Properties[0].Kind != PropertyGet || obj.Properties[1].Kind != PropertySet {
		t.Fatalf("accessor kinds wrong")
	}
	if obj.Properties[2].Kind != PropertyInit {
		t.Fatalf("'get' as a key must parse as a plain property")
	}
}

func TestModuleGoal(t *testing.T) {
	p := New(source.NewEvalSource("import { a, b as c } from \"dep\";\nexport function f() { return a; }\nexport default 1;"))
	program := p.ParseProgram(true)
	if len(p.Errors()) > 0 {
		t.Fatalf("parse errors: %v", p.Errors()[0])
	}
	if !program.IsModule || !program.Strict {
		t.Fatalf("module goal implies strict")
	}
	imp := program.Statements[0].(*ImportDeclaration)
	if imp.Source != "dep" || len(imp.Specifiers) != 2 {
		t.Fatalf("import = %+v", imp)
	}
	if imp.Specifiers[1].Imported != "b" || imp.Specifiers[1].Local.Value != "c" {
		t.Fatalf("renamed import = %+v", imp.Specifiers[1])
	}
	if _, ok := program.Statements[1].(*ExportDeclaration); !ok {
		t.Fatalf("export declaration expected")
	}
}

func TestLabeledStatements(t *testing.T) {
	program := parseProgram(t, "outer: for (;;) { inner: for (;;) { break outer; continue inner; } }")
	outer := program.Statements[0].(*LabeledStatement)
	if outer.Label.Value != "outer" {
		t.Fatalf("outer label = %q", outer.Label.Value)
	}
	outerFor := outer.Body.(*ForStatement)
	inner := outerFor.Body.(*BlockStatement).Statements[0].(*LabeledStatement)
	if inner.Label.Value != "inner" {
		t.Fatalf("inner label = %q", inner.Label.Value)
	}
	body := inner.Body.(*ForStatement).Body.(*BlockStatement)
	brk := body.Statements[0].(*BreakStatement)
	cont := body.Statements[1].(*ContinueStatement)
	if brk.Label != "outer" || cont.Label != "inner" {
		t.Fatalf("break label = %q, continue label = %q", brk.Label, cont.Label)
	}
}

func TestBreakLabelRestrictedProduction(t *testing.T) {
	// A newline between break and the identifier ends the statement; the
	// identifier starts its own expression statement.
	program := parseProgram(t, "for (;;) { break\nx; }")
	body := program.Statements[0].(*ForStatement).Body.(*BlockStatement)
	if len(body.Statements) != 2 {
		t.Fatalf("statements = %d, want 2", len(body.Statements))
	}
	if brk := body.Statements[0].(*BreakStatement); brk.Label != "" {
		t.Fatalf("break must not take a label across a newline, got %q", brk.Label)
	}
}

func TestTernaryIsNotALabel(t *testing.T) {
	program := parseProgram(t, "a ? b : c;")
	if _, ok := program.Statements[0].(*ExpressionStatement); !ok {
		t.Fatalf("conditional expression misparsed as %T", program.Statements[0])
	}
}

func TestSyntaxErrors(t *testing.T) {
	bad := []string{
		"let = 1;",
		"if (x { }",
		"const c;",
		"try { }",
	}
	for _, src := range bad {
		p := New(source.NewEvalSource(src))
		p.ParseProgram(false)
		if len(p.Errors()) == 0 {
			t.Errorf("%q should not parse", src)
		}
	}
}
