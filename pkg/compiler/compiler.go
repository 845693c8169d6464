// Package compiler drives the pipeline from source text to a runnable
// program:
//  1. lexer: tokens with source offsets
//  2. parser: unlinked trees
//  3. linker: scopes, overloads and implicit casts
//  4. codegen: vm segments with deferred calls bound
//
// A Compiler keeps the last program it built, so that expressions compiled
// later can read its globals and call its functions.
package compiler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/zurustar/clamb/pkg/compiler/ast"
	"github.com/zurustar/clamb/pkg/compiler/codegen"
	"github.com/zurustar/clamb/pkg/compiler/lexer"
	"github.com/zurustar/clamb/pkg/compiler/linker"
	"github.com/zurustar/clamb/pkg/compiler/parser"
	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/logger"
	"github.com/zurustar/clamb/pkg/vm"
)

// Compiler compiles programs and expressions against one registry.
// It is not safe for concurrent use.
type Compiler struct {
	reg    *types.Registry
	vmOpts []vm.Option
	log    *slog.Logger

	prog    *vm.Program
	global  *linker.Scope
	lastErr *CompileError
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Compiler) {
		c.log = log
	}
}

// WithRuntimeOptions sets the options of the programs the compiler builds,
// e.g. vm.WithCapacity.
func WithRuntimeOptions(opts ...vm.Option) Option {
	return func(c *Compiler) {
		c.vmOpts = append(c.vmOpts, opts...)
	}
}

// New creates a compiler. Types, natives and conversions must be
// registered on reg before the first compilation.
func New(reg *types.Registry, opts ...Option) *Compiler {
	c := &Compiler{reg: reg, log: logger.GetLogger()}
	for _, opt := range opts {
		opt(c)
	}
	c.vmOpts = append([]vm.Option{vm.WithLogger(c.log)}, c.vmOpts...)
	return c
}

// Registry returns the registry the compiler links against.
func (c *Compiler) Registry() *types.Registry { return c.reg }

// Program returns the program built by the last CompileProgram, or nil
// when it failed.
func (c *Compiler) Program() *vm.Program { return c.prog }

// LastError returns the message of the last compile error, "" after a
// successful compilation.
func (c *Compiler) LastError() string {
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Message
}

// LastPosition returns the 1-based line and column of the last compile
// error, or 0, 0 when it has none.
func (c *Compiler) LastPosition() (line, column int) {
	if c.lastErr == nil {
		return 0, 0
	}
	return c.lastErr.Line, c.lastErr.Column
}

// LastOffset returns the source offset of the last compile error, -1 when it
// has none.
func (c *Compiler) LastOffset() int {
	if c.lastErr == nil {
		return -1
	}
	return c.lastErr.Offset
}

func (c *Compiler) fail(phase string, err error, source string) error {
	c.lastErr = newCompileError(phase, err, source)
	c.log.Debug("compilation failed", "phase", phase, "error", c.lastErr.Message,
		"line", c.lastErr.Line, "column", c.lastErr.Column)
	return c.lastErr
}

func (c *Compiler) tokenize(source string) ([]lexer.Token, error) {
	ops := c.reg.OperatorSymbols()
	symbols := make([]string, 0, len(ops))
	for s := range ops {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return lexer.New(source, lexer.WithOperators(symbols...)).Tokenize()
}

func (c *Compiler) newParser(tokens []lexer.Token) *parser.Parser {
	return parser.New(tokens,
		parser.WithTypeNames(c.reg.IsTypeName),
		parser.WithOperators(c.reg.OperatorSymbols()))
}

// CompileProgram compiles a whole program. Script functions and user-lib
// natives of the previous program are forgotten first, and so is the
// previous program itself: after a failure, expressions compile against an
// empty program. Expressions compiled earlier keep running on their own
// program.
func (c *Compiler) CompileProgram(source string) (*vm.Program, error) {
	c.lastErr = nil
	c.reg.ResetUserLib()
	c.prog, c.global = nil, nil
	start := time.Now()

	tokens, err := c.tokenize(source)
	if err != nil {
		return nil, c.fail(PhaseLexer, err, source)
	}
	c.log.Debug("tokenized", "tokens", len(tokens), "elapsed", time.Since(start))

	p := c.newParser(tokens)
	tree := p.ParseProgram()
	if perr := p.Err(); perr != nil {
		return nil, c.fail(PhaseParser, perr, source)
	}
	c.log.Debug("parsed", "statements", len(tree.Statements), "elapsed", time.Since(start))

	unit, err := linker.New(c.reg, linker.WithLogger(c.log)).LinkProgram(tree)
	if err != nil {
		return nil, c.fail(PhaseLinker, err, source)
	}
	c.log.Debug("linked", "functions", len(unit.Functions), "elapsed", time.Since(start))

	prog, err := c.assemble(unit)
	if err != nil {
		return nil, c.fail(PhaseCodegen, err, source)
	}
	c.prog, c.global = prog, unit.Global
	c.log.Debug("program compiled", "program", prog.ID, "elapsed", time.Since(start))
	return prog, nil
}

func (c *Compiler) assemble(unit *linker.Unit) (*vm.Program, error) {
	x := codegen.New(c.reg, codegen.WithLogger(c.log))
	global, teardown, functions, err := x.Program(unit)
	if err != nil {
		return nil, err
	}
	return vm.NewProgram(global, teardown, functions, unit.GlobalSize, c.vmOpts...)
}

// Expression is a compiled standalone expression list bound to the program
// whose globals it reads.
type Expression struct {
	Source string
	Type   types.ScriptType // type of the last expression

	seg  *vm.Segment
	prog *vm.Program
}

// Segment returns the compiled code.
func (e *Expression) Segment() *vm.Segment { return e.seg }

// Eval runs the expression on its program's global context and returns the
// value of the last expression (nil for void).
func (e *Expression) Eval(ctx context.Context) (vm.Value, error) {
	return e.prog.Eval(ctx, e.seg)
}

// CompileExpression compiles a comma separated expression list against the
// last compiled program. expected names the type the last expression is
// converted to, e.g. "int" or "ref String"; "" accepts any type.
func (c *Compiler) CompileExpression(source, expected string) (*Expression, error) {
	c.lastErr = nil
	if c.prog == nil {
		if err := c.emptyProgram(); err != nil {
			return nil, c.fail(PhaseCodegen, err, source)
		}
	}

	want := types.Unknown
	if expected != "" {
		t, err := c.reg.ParseType(expected)
		if err != nil {
			return nil, c.fail(PhaseLinker, err, source)
		}
		want = t
	}

	tokens, err := c.tokenize(source)
	if err != nil {
		return nil, c.fail(PhaseLexer, err, source)
	}
	p := c.newParser(tokens)
	exprs := p.ParseExpressionList()
	if perr := p.Err(); perr != nil {
		return nil, c.fail(PhaseParser, perr, source)
	}

	linked, err := linker.New(c.reg, linker.WithLogger(c.log)).LinkExpression(c.global, exprs, want)
	if err != nil {
		return nil, c.fail(PhaseLinker, err, source)
	}

	x := codegen.New(c.reg, codegen.WithLogger(c.log), codegen.WithProgram(c.prog.Function))
	seg, err := x.Expression(linked)
	if err != nil {
		return nil, c.fail(PhaseCodegen, err, source)
	}

	e := &Expression{Source: source, Type: c.reg.Void(), seg: seg, prog: c.prog}
	if r := linked.Result(); r != nil {
		e.Type = r.Type()
	}
	return e, nil
}

// emptyProgram gives expressions compiled before any program a global
// context to run on.
func (c *Compiler) emptyProgram() error {
	unit := &linker.Unit{Global: linker.NewGlobalScope()}
	prog, err := c.assemble(unit)
	if err != nil {
		return err
	}
	c.prog, c.global = prog, unit.Global
	return nil
}

// Parse parses source into an unlinked program without linking it.
func (c *Compiler) Parse(source string) (*ast.Program, error) {
	tokens, err := c.tokenize(source)
	if err != nil {
		return nil, c.fail(PhaseLexer, err, source)
	}
	p := c.newParser(tokens)
	tree := p.ParseProgram()
	if perr := p.Err(); perr != nil {
		return nil, c.fail(PhaseParser, perr, source)
	}
	return tree, nil
}
