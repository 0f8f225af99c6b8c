package lexer

import "testing"

func collect(input string) []Token {
	l := New(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks
		}
	}
}

func TestBasicTokens(t *testing.T) {
	toks := collect(`let x = 10 + 2.5; // comment
x === "str";`)
	want := []TokenType{LET, IDENT, ASSIGN, NUMBER, PLUS, NUMBER, SEMICOLON, IDENT, STRICT_EQ, STRING, SEMICOLON, EOF}
	if len(toks) != len(want) {
		t.Fatalf("token count = %d, want %d: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("tok[%d] = %s, want %s", i, toks[i].Type, w)
		}
	}
}

func TestOperatorMaximalMunch(t *testing.T) {
	toks := collect(">>> >>>= >> >= > === ==")
	want := []TokenType{USHR, USHR_ASSIGN, SHR, GE, GT, STRICT_EQ, EQ, EOF}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("tok[%d] = %s, want %s", i, toks[i].Type, w)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks := collect(`"a\nbA\x41"`)
	if toks[0].Type != STRING || toks[0].Literal != "a\nbAA" {
		t.Fatalf("decoded literal = %q", toks[0].Literal)
	}
}

func TestNewlineBeforeFlag(t *testing.T) {
	toks := collect("a\nb")
	if toks[0].NewlineBefore {
		t.Errorf("first token has no preceding newline")
	}
	if !toks[1].NewlineBefore {
		t.Errorf("b follows a line terminator; ASI depends on this flag")
	}
}

func TestPositions(t *testing.T) {
	toks := collect("let\n  x")
	if toks[0].Line != 1 || toks[0].Column != 1 {
		t.Errorf("let at %d:%d", toks[0].Line, toks[0].Column)
	}
	if toks[1].Line != 2 || toks[1].Column != 3 {
		t.Errorf("x at %d:%d, want 2:3", toks[1].Line, toks[1].Column)
	}
}

func TestNumericForms(t *testing.T) {
	toks := collect("0x1f 0b101 0o17 1e-3 .5")
	for i := 0; i < 5; i++ {
		if toks[i].Type != NUMBER {
			t.Errorf("tok[%d] = %s, want NUMBER (%q)", i, toks[i].Type, toks[i].Literal)
		}
	}
}

func TestRegexRescan(t *testing.T) {
	l := New("/ab+c/gi")
	slash := l.NextToken()
	if slash.Type != SLASH {
		t.Fatalf("initial scan sees a slash, got %s", slash.Type)
	}
	re := l.ReScanAsRegex(slash)
	if re.Type != REGEX || re.Literal != "/ab+c/gi" {
		t.Fatalf("rescan = %s %q", re.Type, re.Literal)
	}
	if l.NextToken().Type != EOF {
		t.Fatalf("regex should consume to the end")
	}
}

func TestRegexWithClass(t *testing.T) {
	l := New("/a[/]b/ x")
	re := l.ReScanAsRegex(l.NextToken())
	if re.Type != REGEX || re.Literal != "/a[/]b/" {
		t.Fatalf("slash inside a class must not terminate: %q", re.Literal)
	}
}

func TestTemplatePieces(t *testing.T) {
	l := New("`a${x}b`")
	head := l.NextToken()
	if head.Type != TEMPLATE_HEAD || head.Literal != "a" {
		t.Fatalf("head = %s %q", head.Type, head.Literal)
	}
	ident := l.NextToken()
	if ident.Type != IDENT || ident.Literal != "x" {
		t.Fatalf("substitution expr = %s", ident.Type)
	}
	closeBrace := l.NextToken()
	if closeBrace.Type != RBRACE {
		t.Fatalf("expected '}', got %s", closeBrace.Type)
	}
	tail := l.ContinueTemplate(closeBrace.StartPos)
	if tail.Type != TEMPLATE_TAIL || tail.Literal != "b" {
		t.Fatalf("tail = %s %q", tail.Type, tail.Literal)
	}
}

func TestTemplateFull(t *testing.T) {
	toks := collect("`plain`")
	if toks[0].Type != TEMPLATE_FULL || toks[0].Literal != "plain" {
		t.Fatalf("full template = %s %q", toks[0].Type, toks[0].Literal)
	}
}

func TestScanAheadDoesNotDisturb(t *testing.T) {
	l := New("(a, b) => a")
	first := l.NextToken()
	ahead := l.ScanAheadFrom(first.StartPos, 16)
	if ahead[0].Type != LPAREN || ahead[5].Type != ARROW {
		t.Fatalf("lookahead tokens wrong: %v", ahead)
	}
	// The main stream continues where it left off.
	if tok := l.NextToken(); tok.Type != IDENT || tok.Literal != "a" {
		t.Fatalf("stream disturbed, got %s %q", tok.Type, tok.Literal)
	}
}
