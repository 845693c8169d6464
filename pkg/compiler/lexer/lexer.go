package lexer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Error is a lexical error at a source position.
type Error struct {
	Message string
	Offset  int
	Line    int
	Column  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at line %d, column %d", e.Message, e.Line, e.Column)
}

// Lexer tokenizes script source code.
type Lexer struct {
	input        string
	position     int  // current position in input
	readPosition int  // current reading position (after current char)
	ch           byte // current char
	line         int  // current line number
	column       int  // current column number

	operators []string // longest first
	errMsg    string   // reason for the last ILLEGAL token
}

// Option configures a Lexer.
type Option func(*Lexer)

// WithOperators adds host-registered operator symbols.
func WithOperators(symbols ...string) Option {
	return func(l *Lexer) {
		for _, s := range symbols {
			if s != "" {
				l.operators = append(l.operators, s)
			}
		}
	}
}

// New creates a new Lexer.
func New(input string, opts ...Option) *Lexer {
	l := &Lexer{
		input:     input,
		line:      1,
		column:    0,
		operators: append([]string(nil), builtinOperators...),
	}
	for _, opt := range opts {
		opt(l)
	}
	sort.SliceStable(l.operators, func(i, j int) bool {
		return len(l.operators[i]) > len(l.operators[j])
	})
	l.readChar()
	return l
}

// Tokenize scans the whole input. The returned slice always ends with an
// EOF token when err is nil.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TOKEN_ILLEGAL {
			msg := l.errMsg
			if msg == "" {
				msg = fmt.Sprintf("unrecognized character sequence '%s'", tok.Literal)
			}
			return tokens, &Error{
				Message: msg,
				Offset:  tok.Offset,
				Line:    tok.Line,
				Column:  tok.Column,
			}
		}
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF {
			return tokens, nil
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	l.errMsg = ""

	tok := Token{Offset: l.position, Line: l.line, Column: l.column}

	switch l.ch {
	case 0:
		if l.position >= len(l.input) {
			tok.Type = TOKEN_EOF
			return tok
		}
		tok.Type = TOKEN_ILLEGAL
		tok.Literal = "\\x00"
		l.readChar()
		return tok
	case '(':
		return l.single(tok, TOKEN_LPAREN)
	case ')':
		return l.single(tok, TOKEN_RPAREN)
	case '{':
		return l.single(tok, TOKEN_LBRACE)
	case '}':
		return l.single(tok, TOKEN_RBRACE)
	case '[':
		return l.single(tok, TOKEN_LBRACKET)
	case ']':
		return l.single(tok, TOKEN_RBRACKET)
	case ',':
		return l.single(tok, TOKEN_COMMA)
	case ';':
		return l.single(tok, TOKEN_SEMICOLON)
	case '?':
		return l.single(tok, TOKEN_QUESTION)
	case ':':
		return l.single(tok, TOKEN_COLON)
	case '"':
		lit, ok := l.readString()
		if !ok {
			tok.Type = TOKEN_ILLEGAL
			tok.Literal = lit
			l.errMsg = "unterminated string literal"
			return tok
		}
		tok.Type = TOKEN_STRING
		tok.Literal = lit
		return tok
	}

	if _, ok := l.identRune(true); ok {
		tok.Literal = l.readIdentifier()
		tok.Type = LookupIdent(tok.Literal)
		return tok
	}
	if isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
		return l.readNumber(tok)
	}
	if op := l.matchOperator(); op != "" {
		for i := 0; i < len(op); i++ {
			l.readChar()
		}
		tok.Type = TOKEN_OPERATOR
		tok.Literal = op
		return tok
	}

	tok.Type = TOKEN_ILLEGAL
	tok.Literal = string(l.ch)
	if l.ch >= utf8.RuneSelf {
		r, size := utf8.DecodeRuneInString(l.input[l.position:])
		if r == utf8.RuneError && size <= 1 {
			tok.Literal = fmt.Sprintf("\\x%02x", l.ch)
			l.errMsg = fmt.Sprintf("invalid UTF-8 byte 0x%02x", l.ch)
		} else {
			tok.Literal = string(r)
		}
		l.advance(size)
		return tok
	}
	l.readChar()
	return tok
}

func (l *Lexer) single(tok Token, t TokenType) Token {
	tok.Type = t
	tok.Literal = string(l.ch)
	l.readChar()
	return tok
}

// matchOperator returns the longest operator symbol at the current position.
func (l *Lexer) matchOperator() string {
	rest := l.input[l.position:]
	for _, op := range l.operators {
		if strings.HasPrefix(rest, op) {
			return op
		}
	}
	return ""
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// readIdentifier reads an identifier.
func (l *Lexer) readIdentifier() string {
	position := l.position
	for {
		size, ok := l.identRune(position == l.position)
		if !ok {
			break
		}
		l.advance(size)
	}
	return l.input[position:l.position]
}

// identRune reports whether the character at the current position can start
// (or, when start is false, continue) an identifier, and its size in bytes.
// Letters and digits outside ASCII count; invalid UTF-8 never does.
func (l *Lexer) identRune(start bool) (int, bool) {
	if l.ch < utf8.RuneSelf {
		return 1, isLetter(l.ch) || (!start && isDigit(l.ch))
	}
	r, size := utf8.DecodeRuneInString(l.input[l.position:])
	if r == utf8.RuneError && size <= 1 {
		return 0, false
	}
	if unicode.IsLetter(r) || (!start && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r))) {
		return size, true
	}
	return 0, false
}

func (l *Lexer) advance(n int) {
	for i := 0; i < n; i++ {
		l.readChar()
	}
}

// readNumber reads an integer (decimal or hexadecimal) or a floating point number.
func (l *Lexer) readNumber(tok Token) Token {
	position := l.position
	tok.Type = TOKEN_INT

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
	} else {
		for isDigit(l.ch) {
			l.readChar()
		}
		if l.ch == '.' && isDigit(l.peekChar()) {
			tok.Type = TOKEN_FLOAT
			l.readChar()
			for isDigit(l.ch) {
				l.readChar()
			}
		}
		if l.ch == 'e' || l.ch == 'E' {
			next := l.peekChar()
			if isDigit(next) || next == '+' || next == '-' {
				tok.Type = TOKEN_FLOAT
				l.readChar()
				if l.ch == '+' || l.ch == '-' {
					l.readChar()
				}
				for isDigit(l.ch) {
					l.readChar()
				}
			}
		}
	}

	switch {
	case tok.Type == TOKEN_INT && (l.ch == 'L' || l.ch == 'l'):
		l.readChar()
	case tok.Type == TOKEN_FLOAT && (l.ch == 'f' || l.ch == 'F'):
		l.readChar()
	}
	if _, ok := l.identRune(true); ok {
		// 12abc
		l.readIdentifier()
		tok.Type = TOKEN_ILLEGAL
		l.errMsg = fmt.Sprintf("malformed number '%s'", l.input[position:l.position])
	}

	tok.Literal = l.input[position:l.position]
	return tok
}

// readString reads a string literal and resolves escapes.
func (l *Lexer) readString() (string, bool) {
	var b strings.Builder
	l.readChar() // opening quote
	for {
		switch l.ch {
		case '"':
			l.readChar()
			return b.String(), true
		case '\n':
			return b.String(), false
		case 0:
			if l.position >= len(l.input) {
				return b.String(), false
			}
			b.WriteByte(0)
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			default:
				if l.position >= len(l.input) {
					return b.String(), false
				}
				b.WriteByte(l.ch)
			}
		default:
			b.WriteByte(l.ch)
		}
		l.readChar()
	}
}

// skipWhitespaceAndComments skips blanks, // comments and /* */ comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.position < len(l.input) {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.position < len(l.input) && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.position < len(l.input) {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

// isLetter checks if an ASCII character is a letter or underscore.
func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

// isDigit checks if a character is a digit.
func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// isHexDigit checks if a character is a hexadecimal digit.
func isHexDigit(ch byte) bool {
	return ('0' <= ch && ch <= '9') || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}

// Source returns the source code being tokenized.
func (l *Lexer) Source() string {
	return l.input
}
