package parser

import (
	"fmt"
	"strconv"
	"strings"

	"escargot/pkg/errors"
	"escargot/pkg/lexer"
	"escargot/pkg/source"
)

// Operator precedence levels, lowest first.
const (
	LOWEST         int = iota + 1
	SEQUENCE           // ,
	ASSIGNMENT         // = += ...
	TERNARY            // ?:
	LOGICAL_OR         // ||
	LOGICAL_AND        // &&
	BITWISE_OR         // |
	BITWISE_XOR        // ^
	BITWISE_AND        // &
	EQUALITY           // == != === !==
	RELATIONAL         // < > <= >= in instanceof
	SHIFT              // << >> >>>
	ADDITIVE           // + -
	MULTIPLICATIVE     // * / %
	EXPONENT           // **
	UNARY              // !x -x typeof x
	POSTFIX            // x++ x--
	CALL               // foo(x) foo.bar foo[x]
)

var precedences = map[lexer.TokenType]int{
	lexer.COMMA:           SEQUENCE,
	lexer.ASSIGN:          ASSIGNMENT,
	lexer.PLUS_ASSIGN:     ASSIGNMENT,
	lexer.MINUS_ASSIGN:    ASSIGNMENT,
	lexer.ASTERISK_ASSIGN: ASSIGNMENT,
	lexer.SLASH_ASSIGN:    ASSIGNMENT,
	lexer.PERCENT_ASSIGN:  ASSIGNMENT,
	lexer.POWER_ASSIGN:    ASSIGNMENT,
	lexer.AND_ASSIGN:      ASSIGNMENT,
	lexer.OR_ASSIGN:       ASSIGNMENT,
	lexer.XOR_ASSIGN:      ASSIGNMENT,
	lexer.SHL_ASSIGN:      ASSIGNMENT,
	lexer.SHR_ASSIGN:      ASSIGNMENT,
	lexer.USHR_ASSIGN:     ASSIGNMENT,
	lexer.QUESTION:        TERNARY,
	lexer.LOGICAL_OR:      LOGICAL_OR,
	lexer.LOGICAL_AND:     LOGICAL_AND,
	lexer.BIT_OR:          BITWISE_OR,
	lexer.BIT_XOR:         BITWISE_XOR,
	lexer.BIT_AND:         BITWISE_AND,
	lexer.EQ:              EQUALITY,
	lexer.NOT_EQ:          EQUALITY,
	lexer.STRICT_EQ:       EQUALITY,
	lexer.STRICT_NOT_EQ:   EQUALITY,
	lexer.LT:              RELATIONAL,
	lexer.GT:              RELATIONAL,
	lexer.LE:              RELATIONAL,
	lexer.GE:              RELATIONAL,
	lexer.IN:              RELATIONAL,
	lexer.INSTANCEOF:      RELATIONAL,
	lexer.SHL:             SHIFT,
	lexer.SHR:             SHIFT,
	lexer.USHR:            SHIFT,
	lexer.PLUS:            ADDITIVE,
	lexer.MINUS:           ADDITIVE,
	lexer.ASTERISK:        MULTIPLICATIVE,
	lexer.SLASH:           MULTIPLICATIVE,
	lexer.PERCENT:         MULTIPLICATIVE,
	lexer.POWER:           EXPONENT,
	lexer.INC:             POSTFIX,
	lexer.DEC:             POSTFIX,
	lexer.LPAREN:          CALL,
	lexer.DOT:             CALL,
	lexer.LBRACKET:        CALL,
}

// Parser turns tokens into the AST the emitter consumes. It is a Pratt
// parser with one token of lookahead; regex literals and template
// continuations re-enter the lexer because their grammar depends on
// expression position.
type Parser struct {
	l      *lexer.Lexer
	src    *source.SourceFile
	errors []errors.EngineError

	curToken  lexer.Token
	peekToken lexer.Token

	// noIn suppresses the `in` operator inside for-statement headers.
	noIn bool
}

// New creates a parser over the source file.
func New(src *source.SourceFile) *Parser {
	p := &Parser{l: lexer.New(src.Content), src: src}
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the syntax errors encountered.
func (p *Parser) Errors() []errors.EngineError { return p.errors }

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) addError(tok lexer.Token, format string, args ...interface{}) {
	p.errors = append(p.errors, &errors.SyntaxError{
		Position: p.pos(tok),
		Msg:      fmt.Sprintf(format, args...),
	})
}

func (p *Parser) pos(tok lexer.Token) errors.Position {
	return errors.Position{
		Line: tok.Line, Column: tok.Column,
		StartPos: tok.StartPos, EndPos: tok.EndPos,
		Source: p.src,
	}
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curToken.Type == t {
		p.nextToken()
		return true
	}
	p.addError(p.curToken, "expected '%s' but found '%s'", t, p.curToken.Literal)
	return false
}

// consumeSemicolon applies automatic semicolon insertion: an explicit ';',
// a '}' or EOF ahead, or a newline before the current token all terminate
// the statement.
func (p *Parser) consumeSemicolon() {
	if p.curToken.Type == lexer.SEMICOLON {
		p.nextToken()
		return
	}
	if p.curToken.Type == lexer.RBRACE || p.curToken.Type == lexer.EOF {
		return
	}
	if p.curToken.NewlineBefore {
		return
	}
	p.addError(p.curToken, "unexpected token '%s'", p.curToken.Literal)
	p.nextToken()
}

// ParseProgram parses the whole source with script or module goal.
func (p *Parser) ParseProgram(isModule bool) *Program {
	program := &Program{IsModule: isModule}
	program.Strict = isModule || p.leadingUseStrict()
	for p.curToken.Type != lexer.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		if len(p.errors) > 32 {
			break
		}
	}
	return program
}

func (p *Parser) leadingUseStrict() bool {
	return p.curToken.Type == lexer.STRING && p.curToken.Literal == "use strict"
}

// --- Statements ---

func (p *Parser) parseStatement() Statement {
	switch p.curToken.Type {
	case lexer.VAR, lexer.LET, lexer.CONST:
		return p.parseVariableStatement()
	case lexer.LBRACE:
		return p.parseBlockStatement()
	case lexer.IF:
		return p.parseIfStatement()
	case lexer.WHILE:
		return p.parseWhileStatement()
	case lexer.DO:
		return p.parseDoWhileStatement()
	case lexer.FOR:
		return p.parseForStatement()
	case lexer.RETURN:
		return p.parseReturnStatement()
	case lexer.THROW:
		return p.parseThrowStatement()
	case lexer.TRY:
		return p.parseTryStatement()
	case lexer.SWITCH:
		return p.parseSwitchStatement()
	case lexer.BREAK:
		tok := p.curToken
		p.nextToken()
		label := p.parseOptionalLabel()
		p.consumeSemicolon()
		return &BreakStatement{Token: tok, Label: label}
	case lexer.CONTINUE:
		tok := p.curToken
		p.nextToken()
		label := p.parseOptionalLabel()
		p.consumeSemicolon()
		return &ContinueStatement{Token: tok, Label: label}
	case lexer.WITH:
		return p.parseWithStatement()
	case lexer.FUNCTION:
		return p.parseFunctionDeclaration()
	case lexer.SEMICOLON:
		tok := p.curToken
		p.nextToken()
		return &EmptyStatement{Token: tok}
	case lexer.DEBUGGER:
		tok := p.curToken
		p.nextToken()
		p.consumeSemicolon()
		return &DebuggerStatement{Token: tok}
	case lexer.IMPORT:
		return p.parseImportDeclaration()
	case lexer.EXPORT:
		return p.parseExportDeclaration()
	case lexer.ILLEGAL:
		p.addError(p.curToken, "%s", p.curToken.Literal)
		p.nextToken()
		return nil
	default:
		// label: stmt. No expression statement starts IDENT ':', so the
		// two-token check is unambiguous.
		if p.curToken.Type == lexer.IDENT && p.peekToken.Type == lexer.COLON {
			return p.parseLabeledStatement()
		}
		return p.parseExpressionStatement()
	}
}

// parseOptionalLabel reads the label of a break/continue. The restricted
// production: a newline before the identifier ends the statement instead.
func (p *Parser) parseOptionalLabel() string {
	if p.curToken.Type != lexer.IDENT || p.curToken.NewlineBefore {
		return ""
	}
	label := p.curToken.Literal
	p.nextToken()
	return label
}

func (p *Parser) parseLabeledStatement() Statement {
	stmt := &LabeledStatement{
		Token: p.curToken,
		Label: &Identifier{Token: p.curToken, Value: p.curToken.Literal},
	}
	p.nextToken() // onto ':'
	p.nextToken() // past ':'
	stmt.Body = p.parseStatement()
	if stmt.Body == nil {
		p.addError(stmt.Token, "labeled statement requires a body")
		return nil
	}
	return stmt
}

func (p *Parser) parseVariableStatement() *VariableStatement {
	stmt := &VariableStatement{Token: p.curToken}
	switch p.curToken.Type {
	case lexer.LET:
		stmt.Kind = DeclLet
	case lexer.CONST:
		stmt.Kind = DeclConst
	default:
		stmt.Kind = DeclVar
	}
	p.nextToken()
	for {
		if p.curToken.Type != lexer.IDENT {
			p.addError(p.curToken, "expected binding identifier, found '%s'", p.curToken.Literal)
			p.nextToken()
			return stmt
		}
		d := &Declarator{Name: &Identifier{Token: p.curToken, Value: p.curToken.Literal}}
		p.nextToken()
		if p.curToken.Type == lexer.ASSIGN {
			p.nextToken()
			d.Init = p.parseExpression(ASSIGNMENT)
		} else if stmt.Kind == DeclConst {
			p.addError(p.curToken, "missing initializer in const declaration")
		}
		stmt.Declarators = append(stmt.Declarators, d)
		if p.curToken.Type != lexer.COMMA {
			break
		}
		p.nextToken()
	}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Token: p.curToken}
	p.expect(lexer.LBRACE)
	for p.curToken.Type != lexer.RBRACE && p.curToken.Type != lexer.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
	}
	p.expect(lexer.RBRACE)
	return block
}

func (p *Parser) parseIfStatement() Statement {
	stmt := &IfStatement{Token: p.curToken}
	p.nextToken()
	p.expect(lexer.LPAREN)
	stmt.Condition = p.parseExpression(LOWEST)
	p.expect(lexer.RPAREN)
	stmt.Consequence = p.parseStatement()
	if p.curToken.Type == lexer.ELSE {
		p.nextToken()
		stmt.Alternative = p.parseStatement()
	}
	return stmt
}

func (p *Parser) parseWhileStatement() Statement {
	stmt := &WhileStatement{Token: p.curToken}
	p.nextToken()
	p.expect(lexer.LPAREN)
	stmt.Condition = p.parseExpression(LOWEST)
	p.expect(lexer.RPAREN)
	stmt.Body = p.parseStatement()
	return stmt
}

func (p *Parser) parseDoWhileStatement() Statement {
	stmt := &DoWhileStatement{Token: p.curToken}
	p.nextToken()
	stmt.Body = p.parseStatement()
	if p.curToken.Type != lexer.WHILE {
		p.addError(p.curToken, "expected 'while' after do body")
		return stmt
	}
	p.nextToken()
	p.expect(lexer.LPAREN)
	stmt.Condition = p.parseExpression(LOWEST)
	p.expect(lexer.RPAREN)
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseForStatement() Statement {
	forTok := p.curToken
	p.nextToken()
	p.expect(lexer.LPAREN)

	// for (in/of forms: [decl] name in/of expr
	var declKind DeclarationKind
	declared := false
	switch p.curToken.Type {
	case lexer.VAR, lexer.LET, lexer.CONST:
		if p.peekToken.Type == lexer.IDENT {
			declared = true
			switch p.curToken.Type {
			case lexer.LET:
				declKind = DeclLet
			case lexer.CONST:
				declKind = DeclConst
			default:
				declKind = DeclVar
			}
		}
	}
	if declared {
		after := p.l.PeekTokenAfter(p.peekToken)
		if after.Type == lexer.IN || (after.Type == lexer.OF && !after.NewlineBefore) {
			p.nextToken() // onto the identifier
			name := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
			p.nextToken()
			isOf := p.curToken.Type == lexer.OF
			p.nextToken()
			obj := p.parseExpression(ASSIGNMENT)
			p.expect(lexer.RPAREN)
			body := p.parseStatement()
			return &ForInStatement{Token: forTok, Kind: declKind, Declare: true, Name: name, Object: obj, Body: body, IsOf: isOf}
		}
	} else if p.curToken.Type == lexer.IDENT &&
		(p.peekToken.Type == lexer.IN || p.peekToken.Type == lexer.OF) {
		name := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
		p.nextToken()
		isOf := p.curToken.Type == lexer.OF
		p.nextToken()
		obj := p.parseExpression(ASSIGNMENT)
		p.expect(lexer.RPAREN)
		body := p.parseStatement()
		return &ForInStatement{Token: forTok, Name: name, Object: obj, Body: body, IsOf: isOf}
	}

	// Classic three-clause form.
	stmt := &ForStatement{Token: forTok}
	if p.curToken.Type != lexer.SEMICOLON {
		switch p.curToken.Type {
		case lexer.VAR, lexer.LET, lexer.CONST:
			stmt.Init = p.parseVariableStatement() // consumes the ';'
		default:
			p.noIn = true
			expr := p.parseExpression(LOWEST)
			p.noIn = false
			stmt.Init = &ExpressionStatement{Token: forTok, Expression: expr}
			p.expect(lexer.SEMICOLON)
		}
	} else {
		p.nextToken()
	}
	if p.curToken.Type != lexer.SEMICOLON {
		stmt.Condition = p.parseExpression(LOWEST)
	}
	p.expect(lexer.SEMICOLON)
	if p.curToken.Type != lexer.RPAREN {
		stmt.Update = p.parseExpression(LOWEST)
	}
	p.expect(lexer.RPAREN)
	stmt.Body = p.parseStatement()
	return stmt
}

func (p *Parser) parseReturnStatement() Statement {
	stmt := &ReturnStatement{Token: p.curToken}
	p.nextToken()
	if p.curToken.Type != lexer.SEMICOLON && p.curToken.Type != lexer.RBRACE &&
		p.curToken.Type != lexer.EOF && !p.curToken.NewlineBefore {
		stmt.Value = p.parseExpression(LOWEST)
	}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseThrowStatement() Statement {
	stmt := &ThrowStatement{Token: p.curToken}
	p.nextToken()
	if p.curToken.NewlineBefore {
		p.addError(p.curToken, "illegal newline after throw")
	}
	stmt.Value = p.parseExpression(LOWEST)
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseTryStatement() Statement {
	stmt := &TryStatement{Token: p.curToken}
	p.nextToken()
	stmt.Block = p.parseBlockStatement()
	if p.curToken.Type == lexer.CATCH {
		p.nextToken()
		if p.curToken.Type == lexer.LPAREN {
			p.nextToken()
			if p.curToken.Type == lexer.IDENT {
				stmt.CatchParam = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
				p.nextToken()
			}
			p.expect(lexer.RPAREN)
		}
		stmt.Catch = p.parseBlockStatement()
	}
	if p.curToken.Type == lexer.FINALLY {
		p.nextToken()
		stmt.Finally = p.parseBlockStatement()
	}
	if stmt.Catch == nil && stmt.Finally == nil {
		p.addError(stmt.Token, "missing catch or finally after try")
	}
	return stmt
}

func (p *Parser) parseSwitchStatement() Statement {
	stmt := &SwitchStatement{Token: p.curToken}
	p.nextToken()
	p.expect(lexer.LPAREN)
	stmt.Discriminant = p.parseExpression(LOWEST)
	p.expect(lexer.RPAREN)
	p.expect(lexer.LBRACE)
	sawDefault := false
	for p.curToken.Type != lexer.RBRACE && p.curToken.Type != lexer.EOF {
		c := &SwitchCase{}
		if p.curToken.Type == lexer.CASE {
			p.nextToken()
			c.Test = p.parseExpression(LOWEST)
		} else if p.curToken.Type == lexer.DEFAULT {
			if sawDefault {
				p.addError(p.curToken, "more than one default clause in switch statement")
			}
			sawDefault = true
			p.nextToken()
		} else {
			p.addError(p.curToken, "expected 'case' or 'default'")
			p.nextToken()
			continue
		}
		p.expect(lexer.COLON)
		for p.curToken.Type != lexer.CASE && p.curToken.Type != lexer.DEFAULT &&
			p.curToken.Type != lexer.RBRACE && p.curToken.Type != lexer.EOF {
			s := p.parseStatement()
			if s != nil {
				c.Body = append(c.Body, s)
			}
		}
		stmt.Cases = append(stmt.Cases, c)
	}
	p.expect(lexer.RBRACE)
	return stmt
}

func (p *Parser) parseWithStatement() Statement {
	stmt := &WithStatement{Token: p.curToken}
	p.nextToken()
	p.expect(lexer.LPAREN)
	stmt.Object = p.parseExpression(LOWEST)
	p.expect(lexer.RPAREN)
	stmt.Body = p.parseStatement()
	return stmt
}

func (p *Parser) parseFunctionDeclaration() Statement {
	tok := p.curToken
	fn := p.parseFunctionLiteral()
	if fn.Name == nil {
		p.addError(tok, "function declaration requires a name")
		return nil
	}
	return &FunctionDeclaration{Token: tok, Name: fn.Name, Function: fn}
}

func (p *Parser) parseImportDeclaration() Statement {
	stmt := &ImportDeclaration{Token: p.curToken}
	p.nextToken()
	switch p.curToken.Type {
	case lexer.STRING:
		// Bare import "mod"; no bindings.
		stmt.Source = p.curToken.Literal
		p.nextToken()
		p.consumeSemicolon()
		return stmt
	case lexer.IDENT:
		stmt.Specifiers = append(stmt.Specifiers, &ImportSpecifier{
			Imported: "default",
			Local:    &Identifier{Token: p.curToken, Value: p.curToken.Literal},
		})
		p.nextToken()
		if p.curToken.Type == lexer.COMMA {
			p.nextToken()
		}
	}
	if p.curToken.Type == lexer.ASTERISK {
		p.nextToken()
		if p.curToken.Type != lexer.AS {
			p.addError(p.curToken, "expected 'as' after import *")
		}
		p.nextToken()
		stmt.Specifiers = append(stmt.Specifiers, &ImportSpecifier{
			Imported: "*",
			Local:    &Identifier{Token: p.curToken, Value: p.curToken.Literal},
		})
		p.nextToken()
	} else if p.curToken.Type == lexer.LBRACE {
		p.nextToken()
		for p.curToken.Type != lexer.RBRACE && p.curToken.Type != lexer.EOF {
			imported := p.curToken.Literal
			local := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
			p.nextToken()
			if p.curToken.Type == lexer.AS {
				p.nextToken()
				local = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
				p.nextToken()
			}
			stmt.Specifiers = append(stmt.Specifiers, &ImportSpecifier{Imported: imported, Local: local})
			if p.curToken.Type == lexer.COMMA {
				p.nextToken()
			}
		}
		p.expect(lexer.RBRACE)
	}
	if p.curToken.Type != lexer.FROM {
		p.addError(p.curToken, "expected 'from' in import declaration")
	} else {
		p.nextToken()
	}
	if p.curToken.Type == lexer.STRING {
		stmt.Source = p.curToken.Literal
		p.nextToken()
	} else {
		p.addError(p.curToken, "expected module specifier string")
	}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseExportDeclaration() Statement {
	stmt := &ExportDeclaration{Token: p.curToken}
	p.nextToken()
	switch p.curToken.Type {
	case lexer.DEFAULT:
		p.nextToken()
		stmt.IsDefault = true
		stmt.Default = p.parseExpression(ASSIGNMENT)
		p.consumeSemicolon()
	case lexer.VAR, lexer.LET, lexer.CONST:
		stmt.Declaration = p.parseVariableStatement()
	case lexer.FUNCTION:
		stmt.Declaration = p.parseFunctionDeclaration()
	case lexer.LBRACE:
		p.nextToken()
		for p.curToken.Type != lexer.RBRACE && p.curToken.Type != lexer.EOF {
			stmt.Names = append(stmt.Names, &Identifier{Token: p.curToken, Value: p.curToken.Literal})
			p.nextToken()
			if p.curToken.Type == lexer.COMMA {
				p.nextToken()
			}
		}
		p.expect(lexer.RBRACE)
		p.consumeSemicolon()
	default:
		p.addError(p.curToken, "unexpected token after export")
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseExpressionStatement() Statement {
	stmt := &ExpressionStatement{Token: p.curToken}
	stmt.Expression = p.parseExpression(LOWEST)
	if stmt.Expression == nil {
		return nil
	}
	p.consumeSemicolon()
	return stmt
}

// --- Expressions ---

func (p *Parser) curPrecedence() int {
	if p.noIn && p.curToken.Type == lexer.IN {
		return LOWEST
	}
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) parseExpression(minPrec int) Expression {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}
	for {
		prec := p.curPrecedence()
		if prec <= LOWEST || prec < minPrec {
			return left
		}
		switch p.curToken.Type {
		case lexer.INC, lexer.DEC:
			// Postfix update: restricted production, no newline before.
			if p.curToken.NewlineBefore {
				return left
			}
			left = &UpdateExpression{Token: p.curToken, Operator: p.curToken.Literal, Operand: left}
			p.nextToken()
		case lexer.LPAREN:
			left = p.parseCallExpression(left)
		case lexer.DOT:
			tok := p.curToken
			p.nextToken()
			if p.curToken.Type != lexer.IDENT && lexer.LookupIdent(p.curToken.Literal) == lexer.IDENT {
				p.addError(p.curToken, "expected property name after '.'")
				return left
			}
			prop := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
			p.nextToken()
			left = &MemberExpression{Token: tok, Object: left, Property: prop}
		case lexer.LBRACKET:
			tok := p.curToken
			p.nextToken()
			idx := p.parseExpression(LOWEST)
			p.expect(lexer.RBRACKET)
			left = &IndexExpression{Token: tok, Object: left, Index: idx}
		case lexer.QUESTION:
			tok := p.curToken
			p.nextToken()
			cons := p.parseExpression(ASSIGNMENT)
			p.expect(lexer.COLON)
			alt := p.parseExpression(ASSIGNMENT)
			left = &ConditionalExpression{Token: tok, Condition: left, Consequence: cons, Alternative: alt}
		case lexer.LOGICAL_AND, lexer.LOGICAL_OR:
			tok := p.curToken
			op := p.curToken.Literal
			p.nextToken()
			right := p.parseExpression(prec + 1)
			left = &LogicalExpression{Token: tok, Operator: op, Left: left, Right: right}
		case lexer.ASSIGN, lexer.PLUS_ASSIGN, lexer.MINUS_ASSIGN, lexer.ASTERISK_ASSIGN,
			lexer.SLASH_ASSIGN, lexer.PERCENT_ASSIGN, lexer.POWER_ASSIGN, lexer.AND_ASSIGN,
			lexer.OR_ASSIGN, lexer.XOR_ASSIGN, lexer.SHL_ASSIGN, lexer.SHR_ASSIGN, lexer.USHR_ASSIGN:
			tok := p.curToken
			op := p.curToken.Literal
			p.nextToken()
			// Right-associative.
			value := p.parseExpression(ASSIGNMENT)
			left = &AssignmentExpression{Token: tok, Operator: op, Target: left, Value: value}
		case lexer.COMMA:
			if minPrec > SEQUENCE {
				return left
			}
			tok := p.curToken
			seq := &SequenceExpression{Token: tok, Expressions: []Expression{left}}
			for p.curToken.Type == lexer.COMMA {
				p.nextToken()
				seq.Expressions = append(seq.Expressions, p.parseExpression(ASSIGNMENT))
			}
			left = seq
		default:
			tok := p.curToken
			op := p.curToken.Literal
			p.nextToken()
			var right Expression
			if tok.Type == lexer.POWER {
				// ** is right-associative.
				right = p.parseExpression(prec)
			} else {
				right = p.parseExpression(prec + 1)
			}
			left = &InfixExpression{Token: tok, Operator: op, Left: left, Right: right}
		}
	}
}

func (p *Parser) parsePrefix() Expression {
	switch p.curToken.Type {
	case lexer.IDENT, lexer.OF, lexer.FROM, lexer.AS:
		if p.peekToken.Type == lexer.ARROW {
			return p.parseSingleParamArrow()
		}
		e := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
		p.nextToken()
		return e
	case lexer.NUMBER:
		return p.parseNumberLiteral()
	case lexer.STRING:
		e := &StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
		p.nextToken()
		return e
	case lexer.TEMPLATE_FULL, lexer.TEMPLATE_HEAD:
		return p.parseTemplateLiteral()
	case lexer.TRUE:
		e := &BooleanLiteral{Token: p.curToken, Value: true}
		p.nextToken()
		return e
	case lexer.FALSE:
		e := &BooleanLiteral{Token: p.curToken, Value: false}
		p.nextToken()
		return e
	case lexer.NULL:
		e := &NullLiteral{Token: p.curToken}
		p.nextToken()
		return e
	case lexer.THIS:
		e := &ThisExpression{Token: p.curToken}
		p.nextToken()
		return e
	case lexer.LBRACKET:
		return p.parseArrayLiteral()
	case lexer.LBRACE:
		return p.parseObjectLiteral()
	case lexer.FUNCTION:
		return p.parseFunctionLiteral()
	case lexer.NEW:
		return p.parseNewExpression()
	case lexer.BANG, lexer.MINUS, lexer.PLUS, lexer.BIT_NOT:
		tok := p.curToken
		op := p.curToken.Literal
		p.nextToken()
		right := p.parseExpression(UNARY)
		return &PrefixExpression{Token: tok, Operator: op, Right: right}
	case lexer.TYPEOF, lexer.VOID, lexer.DELETE:
		tok := p.curToken
		op := strings.ToLower(string(p.curToken.Type))
		p.nextToken()
		right := p.parseExpression(UNARY)
		return &PrefixExpression{Token: tok, Operator: op, Right: right}
	case lexer.INC, lexer.DEC:
		tok := p.curToken
		op := p.curToken.Literal
		p.nextToken()
		operand := p.parseExpression(UNARY)
		return &UpdateExpression{Token: tok, Operator: op, Operand: operand, Prefix: true}
	case lexer.SLASH, lexer.SLASH_ASSIGN:
		// A slash in expression position is a regex literal.
		return p.parseRegexLiteral()
	case lexer.LPAREN:
		return p.parseParenOrArrow()
	default:
		p.addError(p.curToken, "unexpected token '%s'", p.curToken.Literal)
		p.nextToken()
		return nil
	}
}

func (p *Parser) parseNumberLiteral() Expression {
	tok := p.curToken
	lit := tok.Literal
	var value float64
	var err error
	if len(lit) > 2 && lit[0] == '0' {
		switch lit[1] {
		case 'x', 'X':
			var n uint64
			n, err = strconv.ParseUint(lit[2:], 16, 64)
			value = float64(n)
		case 'o', 'O':
			var n uint64
			n, err = strconv.ParseUint(lit[2:], 8, 64)
			value = float64(n)
		case 'b', 'B':
			var n uint64
			n, err = strconv.ParseUint(lit[2:], 2, 64)
			value = float64(n)
		default:
			value, err = strconv.ParseFloat(lit, 64)
		}
	} else {
		value, err = strconv.ParseFloat(lit, 64)
	}
	if err != nil {
		p.addError(tok, "invalid numeric literal %q", lit)
	}
	p.nextToken()
	return &NumberLiteral{Token: tok, Value: value}
}

func (p *Parser) parseTemplateLiteral() Expression {
	tl := &TemplateLiteral{Token: p.curToken}
	if p.curToken.Type == lexer.TEMPLATE_FULL {
		tl.Quasis = append(tl.Quasis, p.curToken.Literal)
		p.nextToken()
		return tl
	}
	tl.Quasis = append(tl.Quasis, p.curToken.Literal)
	p.nextToken()
	for {
		expr := p.parseExpression(LOWEST)
		tl.Expressions = append(tl.Expressions, expr)
		if p.curToken.Type != lexer.RBRACE {
			p.addError(p.curToken, "expected '}' in template literal")
			return tl
		}
		// Resynchronize the lexer: the '}' closes a substitution hole.
		piece := p.l.ContinueTemplate(p.curToken.StartPos)
		p.curToken = piece
		p.peekToken = p.l.NextToken()
		tl.Quasis = append(tl.Quasis, piece.Literal)
		done := piece.Type == lexer.TEMPLATE_TAIL || piece.Type == lexer.ILLEGAL
		p.nextToken()
		if done {
			return tl
		}
	}
}

func (p *Parser) parseRegexLiteral() Expression {
	tok := p.l.ReScanAsRegex(p.curToken)
	p.curToken = tok
	p.peekToken = p.l.NextToken()
	if tok.Type != lexer.REGEX {
		p.addError(tok, "%s", tok.Literal)
		p.nextToken()
		return nil
	}
	body := tok.Literal
	lastSlash := strings.LastIndexByte(body, '/')
	rl := &RegexLiteral{Token: tok, Pattern: body[1:lastSlash], Flags: body[lastSlash+1:]}
	p.nextToken()
	return rl
}

func (p *Parser) parseArrayLiteral() Expression {
	al := &ArrayLiteral{Token: p.curToken}
	p.nextToken()
	for p.curToken.Type != lexer.RBRACKET && p.curToken.Type != lexer.EOF {
		if p.curToken.Type == lexer.COMMA {
			// Elision: a hole.
			al.Elements = append(al.Elements, nil)
			p.nextToken()
			continue
		}
		al.Elements = append(al.Elements, p.parseExpression(ASSIGNMENT))
		if p.curToken.Type == lexer.COMMA {
			p.nextToken()
			if p.curToken.Type == lexer.RBRACKET {
				break // trailing comma
			}
		}
	}
	p.expect(lexer.RBRACKET)
	return al
}

func (p *Parser) parseObjectLiteral() Expression {
	ol := &ObjectLiteral{Token: p.curToken}
	p.nextToken()
	for p.curToken.Type != lexer.RBRACE && p.curToken.Type != lexer.EOF {
		prop := p.parseObjectProperty()
		if prop != nil {
			ol.Properties = append(ol.Properties, prop)
		}
		if p.curToken.Type == lexer.COMMA {
			p.nextToken()
		}
	}
	p.expect(lexer.RBRACE)
	return ol
}

func (p *Parser) parseObjectProperty() *ObjectProperty {
	// get/set accessors, unless 'get' is itself the key (get: v, get() {}).
	if (p.curToken.Literal == "get" || p.curToken.Literal == "set") &&
		p.peekToken.Type != lexer.COLON && p.peekToken.Type != lexer.COMMA &&
		p.peekToken.Type != lexer.LPAREN && p.peekToken.Type != lexer.RBRACE {
		kind := PropertyGet
		if p.curToken.Literal == "set" {
			kind = PropertySet
		}
		p.nextToken()
		prop := &ObjectProperty{Kind: kind}
		prop.Key, prop.Computed = p.parsePropertyKey()
		fn := p.parseMethodTail(nil)
		prop.Value = fn
		return prop
	}

	prop := &ObjectProperty{Kind: PropertyInit}
	prop.Key, prop.Computed = p.parsePropertyKey()
	switch p.curToken.Type {
	case lexer.COLON:
		p.nextToken()
		prop.Value = p.parseExpression(ASSIGNMENT)
	case lexer.LPAREN:
		// Shorthand method.
		var name *Identifier
		if id, ok := prop.Key.(*Identifier); ok && !prop.Computed {
			name = id
		}
		prop.Value = p.parseMethodTail(name)
	default:
		// Shorthand property {x}.
		if id, ok := prop.Key.(*Identifier); ok && !prop.Computed {
			prop.Value = &Identifier{Token: id.Token, Value: id.Value}
		} else {
			p.addError(p.curToken, "expected ':' in object literal")
		}
	}
	return prop
}

func (p *Parser) parsePropertyKey() (Expression, bool) {
	switch p.curToken.Type {
	case lexer.LBRACKET:
		p.nextToken()
		key := p.parseExpression(ASSIGNMENT)
		p.expect(lexer.RBRACKET)
		return key, true
	case lexer.STRING:
		key := &StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
		p.nextToken()
		return key, false
	case lexer.NUMBER:
		key := p.parseNumberLiteral()
		return key, false
	default:
		// Identifiers and keywords are valid property names.
		key := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
		p.nextToken()
		return key, false
	}
}

// parseMethodTail parses (params) { body } after a method or accessor name.
func (p *Parser) parseMethodTail(name *Identifier) *FunctionLiteral {
	fn := &FunctionLiteral{Token: p.curToken, Name: name}
	p.expect(lexer.LPAREN)
	fn.Params = p.parseParameterList()
	fn.Body = p.parseBlockStatement()
	return fn
}

func (p *Parser) parseFunctionLiteral() *FunctionLiteral {
	fn := &FunctionLiteral{Token: p.curToken}
	p.nextToken()
	if p.curToken.Type == lexer.IDENT {
		fn.Name = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
		p.nextToken()
	}
	p.expect(lexer.LPAREN)
	fn.Params = p.parseParameterList()
	fn.Body = p.parseBlockStatement()
	return fn
}

func (p *Parser) parseParameterList() []*Identifier {
	var params []*Identifier
	for p.curToken.Type != lexer.RPAREN && p.curToken.Type != lexer.EOF {
		if p.curToken.Type != lexer.IDENT {
			p.addError(p.curToken, "expected parameter name, found '%s'", p.curToken.Literal)
			p.nextToken()
			continue
		}
		params = append(params, &Identifier{Token: p.curToken, Value: p.curToken.Literal})
		p.nextToken()
		if p.curToken.Type == lexer.COMMA {
			p.nextToken()
		}
	}
	p.expect(lexer.RPAREN)
	return params
}

func (p *Parser) parseSingleParamArrow() Expression {
	param := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	fn := &FunctionLiteral{Token: p.curToken, IsArrow: true, Params: []*Identifier{param}}
	p.nextToken() // onto =>
	p.nextToken() // past =>
	return p.parseArrowBody(fn)
}

func (p *Parser) parseArrowBody(fn *FunctionLiteral) Expression {
	if p.curToken.Type == lexer.LBRACE {
		fn.Body = p.parseBlockStatement()
	} else {
		fn.ExprBody = p.parseExpression(ASSIGNMENT)
	}
	return fn
}

// parseParenOrArrow disambiguates (expr) from (params) => body by
// scanning ahead for the arrow after the matching close paren.
func (p *Parser) parseParenOrArrow() Expression {
	if p.arrowAhead() {
		fn := &FunctionLiteral{Token: p.curToken, IsArrow: true}
		p.nextToken() // past (
		fn.Params = p.parseParameterList()
		p.expect(lexer.ARROW)
		return p.parseArrowBody(fn)
	}
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	p.expect(lexer.RPAREN)
	return expr
}

// arrowAhead reports whether the current '(' opens an arrow parameter list.
// It scans raw tokens to the matching ')' and checks for '=>'.
func (p *Parser) arrowAhead() bool {
	depth := 0
	tok := p.curToken
	// Walk tokens without disturbing parser state.
	toks := p.l.ScanAheadFrom(tok.StartPos, 256)
	for i, t := range toks {
		switch t.Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			depth--
			if depth == 0 {
				return i+1 < len(toks) && toks[i+1].Type == lexer.ARROW
			}
		case lexer.EOF:
			return false
		}
	}
	return false
}

func (p *Parser) parseCallExpression(callee Expression) Expression {
	ce := &CallExpression{Token: p.curToken, Callee: callee}
	p.nextToken()
	for p.curToken.Type != lexer.RPAREN && p.curToken.Type != lexer.EOF {
		ce.Arguments = append(ce.Arguments, p.parseExpression(ASSIGNMENT))
		if p.curToken.Type == lexer.COMMA {
			p.nextToken()
		}
	}
	p.expect(lexer.RPAREN)
	return ce
}

func (p *Parser) parseNewExpression() Expression {
	ne := &NewExpression{Token: p.curToken}
	p.nextToken()
	// Parse the callee at CALL precedence minus call arguments so that
	// `new a.b.C(x)` binds the member chain to the constructor.
	callee := p.parsePrefix()
	for {
		switch p.curToken.Type {
		case lexer.DOT:
			tok := p.curToken
			p.nextToken()
			prop := &Identifier{Token: p.curToken, Value: p.curToken.Literal}
			p.nextToken()
			callee = &MemberExpression{Token: tok, Object: callee, Property: prop}
			continue
		case lexer.LBRACKET:
			tok := p.curToken
			p.nextToken()
			idx := p.parseExpression(LOWEST)
			p.expect(lexer.RBRACKET)
			callee = &IndexExpression{Token: tok, Object: callee, Index: idx}
			continue
		}
		break
	}
	ne.Callee = callee
	if p.curToken.Type == lexer.LPAREN {
		p.nextToken()
		for p.curToken.Type != lexer.RPAREN && p.curToken.Type != lexer.EOF {
			ne.Arguments = append(ne.Arguments, p.parseExpression(ASSIGNMENT))
			if p.curToken.Type == lexer.COMMA {
				p.nextToken()
			}
		}
		p.expect(lexer.RPAREN)
	}
	return ne
}
