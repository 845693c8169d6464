// Package parser turns a token sequence into unlinked syntax trees.
// Expressions are parsed with operator precedence (Pratt) parsing; the
// conditional operator and the postfix call/index forms are infix parse
// functions like any other operator.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zurustar/clamb/pkg/compiler/ast"
	"github.com/zurustar/clamb/pkg/compiler/lexer"
)

// Precedence levels for operators.
const (
	_ int = iota
	LOWEST
	ASSIGN      // = += -=
	TERNARY     // ?:
	OR          // ||
	AND         // &&
	BITOR       // |
	BITXOR      // ^
	BITAND      // &
	EQUALS      // == !=
	LESSGREATER // > or <
	SHIFT       // << >>
	SUM         // + -
	PRODUCT     // * / %
	PREFIX      // -X !X ~X &X *X
	CALL        // f(X) and a[i]
)

var operatorPrecedences = map[string]int{
	"=": ASSIGN, "+=": ASSIGN, "-=": ASSIGN, "*=": ASSIGN, "/=": ASSIGN, "%=": ASSIGN,
	"||": OR,
	"&&": AND,
	"|":  BITOR,
	"^":  BITXOR,
	"&":  BITAND,
	"==": EQUALS, "!=": EQUALS,
	"<": LESSGREATER, "<=": LESSGREATER, ">": LESSGREATER, ">=": LESSGREATER,
	"<<": SHIFT, ">>": SHIFT,
	"+": SUM, "-": SUM,
	"*": PRODUCT, "/": PRODUCT, "%": PRODUCT,
}

var prefixOperators = map[string]bool{"-": true, "!": true, "~": true, "&": true, "*": true}

// Error is a syntax error. Token is the furthest token the parser reached.
type Error struct {
	Message string
	Token   lexer.Token
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at line %d, column %d", e.Message, e.Token.Line, e.Token.Column)
}

// Parser parses script source code into an AST.
type Parser struct {
	tokens []lexer.Token
	pos    int
	err    *Error

	curToken  lexer.Token
	peekToken lexer.Token

	isType      func(string) bool
	precedences map[string]int

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

// Option configures a Parser.
type Option func(*Parser)

// WithTypeNames tells the parser which identifiers name types, which is
// what separates declarations from expression statements.
func WithTypeNames(isType func(string) bool) Option {
	return func(p *Parser) {
		p.isType = isType
	}
}

// WithOperators adds host-registered binary operator symbols with their
// precedence (0 means the level of + and -).
func WithOperators(ops map[string]int) Option {
	return func(p *Parser) {
		for sym, prec := range ops {
			if prec <= 0 {
				prec = SUM
			}
			p.precedences[sym] = prec
		}
	}
}

// New creates a new Parser over a token sequence ending with EOF.
func New(tokens []lexer.Token, opts ...Option) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != lexer.TOKEN_EOF {
		end := lexer.Token{Type: lexer.TOKEN_EOF}
		if len(tokens) > 0 {
			last := tokens[len(tokens)-1]
			end.Offset, end.Line, end.Column = last.Offset+len(last.Literal), last.Line, last.Column+len(last.Literal)
		}
		tokens = append(tokens, end)
	}

	p := &Parser{
		tokens:      tokens,
		isType:      func(string) bool { return false },
		precedences: make(map[string]int, len(operatorPrecedences)),
	}
	for sym, prec := range operatorPrecedences {
		p.precedences[sym] = prec
	}
	for _, opt := range opts {
		opt(p)
	}

	p.prefixParseFns = map[lexer.TokenType]prefixParseFn{
		lexer.TOKEN_IDENT:    p.parseIdentifier,
		lexer.TOKEN_INT:      p.parseIntegerLiteral,
		lexer.TOKEN_FLOAT:    p.parseFloatLiteral,
		lexer.TOKEN_STRING:   p.parseStringLiteral,
		lexer.TOKEN_TRUE:     p.parseBooleanLiteral,
		lexer.TOKEN_FALSE:    p.parseBooleanLiteral,
		lexer.TOKEN_OPERATOR: p.parsePrefixExpression,
		lexer.TOKEN_LPAREN:   p.parseGroupedExpression,
	}
	p.infixParseFns = map[lexer.TokenType]infixParseFn{
		lexer.TOKEN_OPERATOR: p.parseOperator,
		lexer.TOKEN_QUESTION: p.parseConditionalExpression,
		lexer.TOKEN_LPAREN:   p.parseCallExpression,
		lexer.TOKEN_LBRACKET: p.parseIndexExpression,
	}

	// Read two tokens to initialize curToken and peekToken
	p.pos = -1
	p.nextToken()
	return p
}

// Err returns the first syntax error, or nil.
func (p *Parser) Err() *Error {
	return p.err
}

func (p *Parser) nextToken() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.curToken = p.tokens[p.pos]
	if p.pos+1 < len(p.tokens) {
		p.peekToken = p.tokens[p.pos+1]
	} else {
		p.peekToken = p.curToken
	}
}

func (p *Parser) tokenAt(n int) lexer.Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) failed() bool { return p.err != nil }

func (p *Parser) errorf(tok lexer.Token, format string, args ...any) {
	if p.err == nil {
		p.err = &Error{Message: fmt.Sprintf(format, args...), Token: tok}
	}
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t lexer.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t lexer.TokenType) {
	got := p.peekToken.Literal
	if p.peekToken.Type == lexer.TOKEN_EOF {
		got = "end of input"
	}
	p.errorf(p.peekToken, "expected '%s', got '%s'", t, got)
}

func (p *Parser) peekPrecedence() int {
	switch p.peekToken.Type {
	case lexer.TOKEN_OPERATOR:
		return p.precedences[p.peekToken.Literal]
	case lexer.TOKEN_QUESTION:
		return TERNARY
	case lexer.TOKEN_LPAREN, lexer.TOKEN_LBRACKET:
		return CALL
	}
	return LOWEST
}

// ----------------------------------------------------------------------------
// Expressions

// ParseExpressionList parses the whole token sequence as a comma separated
// expression list, optionally followed by a single ';'.
func (p *Parser) ParseExpressionList() []ast.Expression {
	list := p.parseCommaList()
	if p.failed() {
		return nil
	}
	if p.peekTokenIs(lexer.TOKEN_SEMICOLON) {
		p.nextToken()
	}
	if !p.peekTokenIs(lexer.TOKEN_EOF) {
		p.unexpected(p.peekToken)
		return nil
	}
	return list
}

// parseCommaList parses "e1, e2, ..." starting at curToken.
func (p *Parser) parseCommaList() []ast.Expression {
	var list []ast.Expression
	for {
		exp := p.parseExpression(LOWEST)
		if exp == nil {
			return nil
		}
		list = append(list, exp)
		if !p.peekTokenIs(lexer.TOKEN_COMMA) {
			return list
		}
		p.nextToken()
		p.nextToken()
	}
}

func (p *Parser) unexpected(tok lexer.Token) {
	switch tok.Type {
	case lexer.TOKEN_RPAREN:
		p.errorf(tok, "unbalanced ')'")
	case lexer.TOKEN_EOF:
		p.errorf(tok, "unexpected end of input")
	default:
		p.errorf(tok, "unexpected '%s'", tok.Literal)
	}
}

func (p *Parser) parseExpression(precedence int) ast.Expression {
	if p.failed() {
		return nil
	}
	var prefix prefixParseFn
	if p.curTokenIs(lexer.TOKEN_OPERATOR) && !prefixOperators[p.curToken.Literal] {
		prefix = nil
	} else {
		prefix = p.prefixParseFns[p.curToken.Type]
	}
	if prefix == nil {
		p.unexpected(p.curToken)
		return nil
	}
	leftExp := prefix()

	for leftExp != nil && !p.peekTokenIs(lexer.TOKEN_EOF) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}
	if p.failed() {
		return nil
	}
	return leftExp
}

func (p *Parser) parseIdentifier() ast.Expression {
	return &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseIntegerLiteral() ast.Expression {
	lit := &ast.IntegerLiteral{Token: p.curToken}

	literal := p.curToken.Literal
	if strings.HasSuffix(literal, "L") || strings.HasSuffix(literal, "l") {
		lit.Long = true
		literal = literal[:len(literal)-1]
	}

	// Detect base: 0x/0X for hex, otherwise decimal
	base := 10
	if len(literal) > 2 && literal[0] == '0' && (literal[1] == 'x' || literal[1] == 'X') {
		base = 16
		literal = literal[2:]
	}

	value, err := strconv.ParseInt(literal, base, 64)
	if err != nil {
		p.errorf(p.curToken, "could not parse %q as integer", p.curToken.Literal)
		return nil
	}
	if value > 1<<31-1 || value < -(1<<31) {
		lit.Long = true
	}

	lit.Value = value
	return lit
}

func (p *Parser) parseFloatLiteral() ast.Expression {
	lit := &ast.FloatLiteral{Token: p.curToken}

	literal := p.curToken.Literal
	if strings.HasSuffix(literal, "f") || strings.HasSuffix(literal, "F") {
		lit.Single = true
		literal = literal[:len(literal)-1]
	}

	value, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		p.errorf(p.curToken, "could not parse %q as float", p.curToken.Literal)
		return nil
	}

	lit.Value = value
	return lit
}

func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBooleanLiteral() ast.Expression {
	return &ast.BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(lexer.TOKEN_TRUE)}
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	expression := &ast.PrefixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
	}

	p.nextToken()
	expression.Right = p.parseExpression(PREFIX)
	if expression.Right == nil {
		return nil
	}

	return expression
}

// parseOperator handles every binary operator symbol, including assignments.
func (p *Parser) parseOperator(left ast.Expression) ast.Expression {
	tok := p.curToken
	precedence := p.precedences[tok.Literal]

	if precedence == ASSIGN {
		// right associative
		p.nextToken()
		value := p.parseExpression(ASSIGN - 1)
		if value == nil {
			return nil
		}
		return &ast.AssignExpression{Token: tok, Target: left, Operator: tok.Literal, Value: value}
	}

	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	return &ast.InfixExpression{Token: tok, Left: left, Operator: tok.Literal, Right: right}
}

// parseConditionalExpression parses "cond ? a : b". The middle operand is a
// full expression; the last one binds at conditional level so that nested
// conditionals on the false branch associate to the right while a following
// binary operator stays inside the false branch.
func (p *Parser) parseConditionalExpression(condition ast.Expression) ast.Expression {
	exp := &ast.ConditionalExpression{Token: p.curToken, Condition: condition}

	p.nextToken()
	exp.Consequence = p.parseExpression(LOWEST)
	if exp.Consequence == nil {
		return nil
	}
	if !p.expectPeek(lexer.TOKEN_COLON) {
		return nil
	}

	p.nextToken()
	exp.Alternative = p.parseExpression(TERNARY - 1)
	if exp.Alternative == nil {
		return nil
	}
	return exp
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	open := p.curToken
	p.nextToken()

	exp := p.parseExpression(LOWEST)
	if exp == nil {
		return nil
	}

	if !p.peekTokenIs(lexer.TOKEN_RPAREN) {
		p.errorf(p.peekToken, "unbalanced '(' opened at line %d, column %d", open.Line, open.Column)
		return nil
	}
	p.nextToken()

	return exp
}

func (p *Parser) parseCallExpression(function ast.Expression) ast.Expression {
	exp := &ast.CallExpression{Token: p.curToken, Function: function}
	args, ok := p.parseArguments(lexer.TOKEN_RPAREN)
	if !ok {
		return nil
	}
	exp.Arguments = args
	return exp
}

func (p *Parser) parseIndexExpression(left ast.Expression) ast.Expression {
	exp := &ast.IndexExpression{Token: p.curToken, Left: left}

	p.nextToken()
	exp.Index = p.parseExpression(LOWEST)
	if exp.Index == nil {
		return nil
	}

	if !p.expectPeek(lexer.TOKEN_RBRACKET) {
		return nil
	}

	return exp
}

func (p *Parser) parseArguments(end lexer.TokenType) ([]ast.Expression, bool) {
	list := []ast.Expression{}

	if p.peekTokenIs(end) {
		p.nextToken()
		return list, true
	}

	p.nextToken()
	list = p.parseCommaList()
	if list == nil {
		return nil, false
	}

	if !p.expectPeek(end) {
		return nil, false
	}

	return list, true
}
