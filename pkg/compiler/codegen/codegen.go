// Package codegen flattens linked trees into vm segments.
//
// Calls to natives are bound as soon as they are emitted. Calls to script
// functions are recorded in a patch table keyed by command and bound by
// Resolve once every function segment exists, which is what lets bodies call
// functions defined later in the program, including mutually recursive ones.
package codegen

import (
	"fmt"
	"log/slog"

	"github.com/zurustar/clamb/pkg/compiler/linker"
	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/logger"
	"github.com/zurustar/clamb/pkg/opcode"
	"github.com/zurustar/clamb/pkg/vm"
)

// command identifies one emitted instruction.
type command struct {
	seg *vm.Segment
	pc  int
}

// Extractor lowers linked code. One Extractor is used per compilation.
type Extractor struct {
	reg      *types.Registry
	segments map[int]*vm.Segment // script function id -> segment
	natives  map[int]*vm.NativeFunction
	extern   func(id int) (*vm.Segment, bool)

	patches map[command]int // deferred call -> script function id
	order   []command

	log *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(x *Extractor) {
		x.log = log
	}
}

// WithProgram lets Resolve bind calls to the functions of an already built
// program, for expressions compiled after it.
func WithProgram(lookup func(id int) (*vm.Segment, bool)) Option {
	return func(x *Extractor) {
		x.extern = lookup
	}
}

// New creates an Extractor.
func New(reg *types.Registry, opts ...Option) *Extractor {
	x := &Extractor{
		reg:      reg,
		segments: make(map[int]*vm.Segment),
		natives:  make(map[int]*vm.NativeFunction),
		patches:  make(map[command]int),
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Pending returns the number of calls waiting for Resolve.
func (x *Extractor) Pending() int { return len(x.order) }

// Program lowers a linked program into its global segment, its teardown
// segment (global destructors) and one segment per function. Calls are
// resolved before it returns.
func (x *Extractor) Program(unit *linker.Unit) (global, teardown *vm.Segment, functions []*vm.Segment, err error) {
	for _, fn := range unit.Functions {
		seg := vm.NewSegment(fn.Fn.Name, fn.Fn.ID)
		seg.Signature = x.reg.Signature(fn.Fn.Params)
		seg.Params = len(fn.Params)
		seg.ReturnsValue = fn.Fn.Return != x.reg.Void()
		x.segments[fn.Fn.ID] = seg
		functions = append(functions, seg)
	}

	for i, fn := range unit.Functions {
		x.function(functions[i], fn)
	}

	global = vm.NewSegment("<global>", opcode.NoFunc)
	teardown = vm.NewSegment("<teardown>", opcode.NoFunc)
	g := x.newGen(global, unit.InitFrame)
	g.teardown = teardown
	g.block(&linker.Block{Scope: unit.Global, Stmts: unit.Init})
	g.emit(opcode.OpCode{Cmd: opcode.Return})
	g.finish()
	teardown.Emit(opcode.OpCode{Cmd: opcode.Return, Func: opcode.NoFunc})

	if err := x.Resolve(); err != nil {
		return nil, nil, nil, err
	}
	return global, teardown, functions, nil
}

// Expression lowers a standalone expression list into a segment returning
// the value of the last expression.
func (x *Extractor) Expression(e *linker.Expression) (*vm.Segment, error) {
	seg := vm.NewSegment("<expression>", opcode.NoFunc)
	result := e.Result()
	seg.ReturnsValue = result != nil && result.Type() != x.reg.Void()

	g := x.newGen(seg, e.Frame)
	g.scopes = append(g.scopes, e.Scope)
	var ret opcode.Operand
	for _, n := range e.Exprs {
		g.reset()
		ret = g.expr(n)
	}
	if seg.ReturnsValue {
		g.ret(ret)
	} else {
		g.ret(opcode.Discard)
	}
	g.finish()

	if err := x.Resolve(); err != nil {
		return nil, err
	}
	return seg, nil
}

// Resolve binds every deferred call to its function segment.
func (x *Extractor) Resolve() error {
	for _, cmd := range x.order {
		id := x.patches[cmd]
		target, ok := x.segments[id]
		if !ok && x.extern != nil {
			target, ok = x.extern(id)
		}
		if !ok {
			name := fmt.Sprintf("#%d", id)
			if f := x.reg.Function(id); f != nil {
				name = f.Name + "(" + x.reg.Signature(f.Params) + ")"
			}
			return fmt.Errorf("function '%s' is declared but never defined", name)
		}
		cmd.seg.Bind(cmd.pc, target)
	}
	x.log.Debug("calls resolved", "patched", len(x.order))
	x.patches = make(map[command]int)
	x.order = nil
	return nil
}

func (x *Extractor) function(seg *vm.Segment, fn *linker.Function) {
	g := x.newGen(seg, fn.Frame)
	g.scopes = append(g.scopes, fn.Scope)
	g.stmts(fn.Body)
	g.destroy(fn.Scope)
	if !seg.ReturnsValue {
		g.emit(opcode.OpCode{Cmd: opcode.Return})
	}
	g.finish()
}

// bindCall attaches fn to the command at pc, now for natives and through the
// patch table for script functions.
func (x *Extractor) bindCall(seg *vm.Segment, pc int, fn *types.Function) {
	if fn.Native != nil {
		nf, ok := x.natives[fn.ID]
		if !ok {
			nf = &vm.NativeFunction{Name: fn.Name, Fn: fn.Native}
			x.natives[fn.ID] = nf
		}
		seg.Bind(pc, nf)
		return
	}
	cmd := command{seg: seg, pc: pc}
	x.patches[cmd] = fn.ID
	x.order = append(x.order, cmd)
}
