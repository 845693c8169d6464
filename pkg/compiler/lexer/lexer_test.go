package lexer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNextToken(t *testing.T) {
	input := `
	int x = 10, y;
	long big = 3000000000;
	String s = "a\tb";
	x += y << 2 ? 1.5f : .25e1;
	if (x >= y && !done) { return ref_count[0]; }
	`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{TOKEN_IDENT, "int"},
		{TOKEN_IDENT, "x"},
		{TOKEN_OPERATOR, "="},
		{TOKEN_INT, "10"},
		{TOKEN_COMMA, ","},
		{TOKEN_IDENT, "y"},
		{TOKEN_SEMICOLON, ";"},

		{TOKEN_IDENT, "long"},
		{TOKEN_IDENT, "big"},
		{TOKEN_OPERATOR, "="},
		{TOKEN_INT, "3000000000"},
		{TOKEN_SEMICOLON, ";"},

		{TOKEN_IDENT, "String"},
		{TOKEN_IDENT, "s"},
		{TOKEN_OPERATOR, "="},
		{TOKEN_STRING, "a\tb"},
		{TOKEN_SEMICOLON, ";"},

		{TOKEN_IDENT, "x"},
		{TOKEN_OPERATOR, "+="},
		{TOKEN_IDENT, "y"},
		{TOKEN_OPERATOR, "<<"},
		{TOKEN_INT, "2"},
		{TOKEN_QUESTION, "?"},
		{TOKEN_FLOAT, "1.5f"},
		{TOKEN_COLON, ":"},
		{TOKEN_FLOAT, ".25e1"},
		{TOKEN_SEMICOLON, ";"},

		{TOKEN_IF, "if"},
		{TOKEN_LPAREN, "("},
		{TOKEN_IDENT, "x"},
		{TOKEN_OPERATOR, ">="},
		{TOKEN_IDENT, "y"},
		{TOKEN_OPERATOR, "&&"},
		{TOKEN_OPERATOR, "!"},
		{TOKEN_IDENT, "done"},
		{TOKEN_RPAREN, ")"},
		{TOKEN_LBRACE, "{"},
		{TOKEN_RETURN, "return"},
		{TOKEN_IDENT, "ref_count"},
		{TOKEN_LBRACKET, "["},
		{TOKEN_INT, "0"},
		{TOKEN_RBRACKET, "]"},
		{TOKEN_SEMICOLON, ";"},
		{TOKEN_RBRACE, "}"},
		{TOKEN_EOF, ""},
	}

	l := New(input)

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (literal=%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}

		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestTokenPositions(t *testing.T) {
	input := "a\n  bb + 1"
	tokens, err := New(input).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}

	type pos struct{ Offset, Line, Column int }
	var got []pos
	for _, tok := range tokens {
		got = append(got, pos{tok.Offset, tok.Line, tok.Column})
	}
	want := []pos{
		{0, 1, 1},  // a
		{4, 2, 3},  // bb
		{7, 2, 6},  // +
		{9, 2, 8},  // 1
		{10, 2, 9}, // EOF
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestComments(t *testing.T) {
	input := `
	// line comment
	a /* block
	comment */ b
	`
	tokens, err := New(input).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got=%d (%v)", len(tokens), tokens)
	}
	if tokens[0].Literal != "a" || tokens[1].Literal != "b" {
		t.Errorf("unexpected tokens %v", tokens)
	}
}

func TestLexicalErrors(t *testing.T) {
	tests := []struct {
		input   string
		message string
		offset  int
	}{
		{"a = $;", "unrecognized character sequence '$'", 4},
		{`s = "abc`, "unterminated string literal", 4},
		{"x = 12abc;", "malformed number '12abc'", 4},
		{"int a;\n @", "unrecognized character sequence '@'", 8},
		{"a = \xff;", "invalid UTF-8 byte 0xff", 4},
		{"ab\xc3(", "invalid UTF-8 byte 0xc3", 2},
		{"x = 1 → 2;", "unrecognized character sequence '→'", 6},
	}

	for _, tt := range tests {
		_, err := New(tt.input).Tokenize()
		if err == nil {
			t.Errorf("%q: expected error", tt.input)
			continue
		}
		lexErr, ok := err.(*Error)
		if !ok {
			t.Fatalf("error is not *Error. got=%T", err)
		}
		if lexErr.Message != tt.message {
			t.Errorf("%q: message = %q, want %q", tt.input, lexErr.Message, tt.message)
		}
		if lexErr.Offset != tt.offset {
			t.Errorf("%q: offset = %d, want %d", tt.input, lexErr.Offset, tt.offset)
		}
	}
}

func TestUnicodeIdentifiers(t *testing.T) {
	tokens, err := New("größe = 変数1 + x_é;").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	var idents []string
	for _, tok := range tokens {
		if tok.Type == TOKEN_IDENT {
			idents = append(idents, tok.Literal)
		}
	}
	if diff := cmp.Diff([]string{"größe", "変数1", "x_é"}, idents); diff != "" {
		t.Errorf("identifiers mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisteredOperators(t *testing.T) {
	tokens, err := New("a <=> b ** c", WithOperators("<=>", "**")).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	var ops []string
	for _, tok := range tokens {
		if tok.Type == TOKEN_OPERATOR {
			ops = append(ops, tok.Literal)
		}
	}
	if diff := cmp.Diff([]string{"<=>", "**"}, ops); diff != "" {
		t.Errorf("operators mismatch (-want +got):\n%s", diff)
	}

	// without registration "<=>" splits into "<=" and ">"
	tokens, err = New("a <=> b").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if tokens[1].Literal != "<=" || tokens[2].Literal != ">" {
		t.Errorf("unexpected split: %v", tokens)
	}
}

func TestKeywordLookup(t *testing.T) {
	for word, typ := range keywords {
		if got := LookupIdent(word); got != typ {
			t.Errorf("LookupIdent(%q) = %s, want %s", word, got, typ)
		}
		if !typ.IsKeyword() {
			t.Errorf("%s.IsKeyword() = false", typ)
		}
	}
	if LookupIdent("If") != TOKEN_IDENT {
		t.Error("keywords must be case sensitive")
	}
}

func TestPropertyIdentifierSequenceRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("identifiers separated by blanks tokenize back to themselves", prop.ForAll(
		func(names []string) bool {
			tokens, err := New(strings.Join(names, " \n\t")).Tokenize()
			if err != nil {
				return false
			}
			if len(tokens) != len(names)+1 {
				return false
			}
			for i, name := range names {
				if tokens[i].Literal != name {
					return false
				}
				if tokens[i].Type != LookupIdent(name) {
					return false
				}
			}
			return tokens[len(names)].Type == TOKEN_EOF
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("offsets point at the token text", prop.ForAll(
		func(names []string) bool {
			src := strings.Join(names, " + ")
			tokens, err := New(src).Tokenize()
			if err != nil {
				return false
			}
			for _, tok := range tokens {
				if tok.Type == TOKEN_EOF {
					continue
				}
				if !strings.HasPrefix(src[tok.Offset:], tok.Literal) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
