// Package lexer provides lexical analysis for scripts.
package lexer

import "fmt"

// TokenType represents the type of a token.
type TokenType int

// Token types
const (
	// Special tokens
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Literals
	TOKEN_IDENT  // identifier or type name
	TOKEN_INT    // integer literal, optional L suffix
	TOKEN_FLOAT  // floating point literal, optional f suffix
	TOKEN_STRING // string literal, escapes already resolved

	// Operators: the literal carries the symbol
	TOKEN_OPERATOR

	// Delimiters
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_LBRACE    // {
	TOKEN_RBRACE    // }
	TOKEN_LBRACKET  // [
	TOKEN_RBRACKET  // ]
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_QUESTION  // ?
	TOKEN_COLON     // :

	// Keywords
	TOKEN_IF
	TOKEN_ELSE
	TOKEN_FOR
	TOKEN_WHILE
	TOKEN_BREAK
	TOKEN_CONTINUE
	TOKEN_RETURN
	TOKEN_REF
	TOKEN_TRUE
	TOKEN_FALSE
)

// Token represents a lexical token.
// Offset is the byte offset of the first character in the source; Line and
// Column are 1-indexed.
type Token struct {
	Type    TokenType
	Literal string
	Offset  int
	Line    int
	Column  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Literal, t.Line, t.Column)
}

// Is reports whether t is the operator symbol op.
func (t Token) Is(op string) bool {
	return t.Type == TOKEN_OPERATOR && t.Literal == op
}

var tokenTypeNames = map[TokenType]string{
	TOKEN_ILLEGAL: "ILLEGAL",
	TOKEN_EOF:     "EOF",

	TOKEN_IDENT:  "IDENT",
	TOKEN_INT:    "INT",
	TOKEN_FLOAT:  "FLOAT",
	TOKEN_STRING: "STRING",

	TOKEN_OPERATOR: "OPERATOR",

	TOKEN_LPAREN:    "(",
	TOKEN_RPAREN:    ")",
	TOKEN_LBRACE:    "{",
	TOKEN_RBRACE:    "}",
	TOKEN_LBRACKET:  "[",
	TOKEN_RBRACKET:  "]",
	TOKEN_COMMA:     ",",
	TOKEN_SEMICOLON: ";",
	TOKEN_QUESTION:  "?",
	TOKEN_COLON:     ":",

	TOKEN_IF:       "if",
	TOKEN_ELSE:     "else",
	TOKEN_FOR:      "for",
	TOKEN_WHILE:    "while",
	TOKEN_BREAK:    "break",
	TOKEN_CONTINUE: "continue",
	TOKEN_RETURN:   "return",
	TOKEN_REF:      "ref",
	TOKEN_TRUE:     "true",
	TOKEN_FALSE:    "false",
}

// String returns a string representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsKeyword returns true if the token type is a keyword.
func (t TokenType) IsKeyword() bool {
	return t >= TOKEN_IF && t <= TOKEN_FALSE
}

// IsLiteral returns true if the token type is a literal.
func (t TokenType) IsLiteral() bool {
	return t >= TOKEN_INT && t <= TOKEN_STRING || t == TOKEN_TRUE || t == TOKEN_FALSE
}

// keywords are case sensitive.
var keywords = map[string]TokenType{
	"if":       TOKEN_IF,
	"else":     TOKEN_ELSE,
	"for":      TOKEN_FOR,
	"while":    TOKEN_WHILE,
	"break":    TOKEN_BREAK,
	"continue": TOKEN_CONTINUE,
	"return":   TOKEN_RETURN,
	"ref":      TOKEN_REF,
	"true":     TOKEN_TRUE,
	"false":    TOKEN_FALSE,
}

// LookupIdent returns the keyword type of ident, or TOKEN_IDENT.
func LookupIdent(ident string) TokenType {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return TOKEN_IDENT
}

// builtinOperators are the operator symbols known without registration.
var builtinOperators = []string{
	"+", "-", "*", "/", "%",
	"=", "+=", "-=", "*=", "/=", "%=",
	"==", "!=", "<", ">", "<=", ">=",
	"&&", "||", "!",
	"&", "|", "^", "~", "<<", ">>",
}
