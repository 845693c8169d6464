package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zurustar/clamb/pkg/compiler/lexer"
	"github.com/zurustar/clamb/pkg/compiler/linker"
	"github.com/zurustar/clamb/pkg/compiler/parser"
)

// Compilation phases reported in CompileError.Phase.
const (
	PhaseLexer   = "lexer"
	PhaseParser  = "parser"
	PhaseLinker  = "linker"
	PhaseCodegen = "codegen"
)

// CompileError is the single error a failed compilation reports.
type CompileError struct {
	Phase   string
	Message string

	// Offset is the 0-based byte offset into the source, -1 when the
	// error has no position (e.g. a function declared but never defined).
	Offset int
	Line   int // 1-based, 0 when unknown
	Column int // 1-based, 0 when unknown

	// Context shows the source lines around the error with a caret under
	// the column.
	Context string
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString(e.Phase)
	b.WriteString(" error")
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d, column %d", e.Line, e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Context != "" {
		b.WriteString("\n")
		b.WriteString(e.Context)
	}
	return b.String()
}

// newCompileError converts the error of a pipeline phase.
func newCompileError(phase string, err error, source string) *CompileError {
	ce := &CompileError{Phase: phase, Message: err.Error(), Offset: -1}

	var (
		lexErr   *lexer.Error
		parseErr *parser.Error
		linkErr  *linker.Error
	)
	switch {
	case errors.As(err, &lexErr):
		ce.Message, ce.Offset, ce.Line, ce.Column = lexErr.Message, lexErr.Offset, lexErr.Line, lexErr.Column
	case errors.As(err, &parseErr):
		tok := parseErr.Token
		ce.Message, ce.Offset, ce.Line, ce.Column = parseErr.Message, tok.Offset, tok.Line, tok.Column
	case errors.As(err, &linkErr):
		tok := linkErr.Token
		ce.Message, ce.Offset, ce.Line, ce.Column = linkErr.Message, tok.Offset, tok.Line, tok.Column
	}
	ce.Context = ErrorContext(source, ce.Line, ce.Column)
	return ce
}

// ErrorContext renders up to two lines before and after line with a caret
// under column:
//
//	  2 | int x = 5;
//	> 3 | int z = ;
//	    |         ^
//	  4 | int w = 20;
func ErrorContext(source string, line, column int) string {
	if source == "" || line <= 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}

	first := max(line-2, 1)
	last := min(line+2, len(lines))
	width := len(fmt.Sprint(last))

	var b strings.Builder
	for n := first; n <= last; n++ {
		text := strings.TrimRight(lines[n-1], "\r")
		if n != line {
			fmt.Fprintf(&b, "  %*d | %s\n", width, n, text)
			continue
		}
		fmt.Fprintf(&b, "> %*d | %s\n", width, n, text)
		fmt.Fprintf(&b, "  %*s | %s^\n", width, "", strings.Repeat(" ", max(column-1, 0)))
	}
	return b.String()
}
