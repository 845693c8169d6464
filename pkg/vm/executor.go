package vm

import (
	"context"
	"log/slog"

	"github.com/zurustar/clamb/pkg/opcode"
)

// MaxStackDepth is the default maximum call depth before a stack overflow fault.
const MaxStackDepth = 1000

// Executor walks the command sequence of a segment against a Context.
// Script calls recurse on the Go stack; each call carves its frame from the
// local context and releases it on return.
type Executor struct {
	local    *Context
	globals  *Context
	maxDepth int
	depth    int
	goctx    context.Context
	log      *slog.Logger
}

func newExecutor(goctx context.Context, local, globals *Context, o *options) *Executor {
	if goctx == nil {
		goctx = context.Background()
	}
	return &Executor{
		local:    local,
		globals:  globals,
		maxDepth: o.maxDepth,
		goctx:    goctx,
		log:      o.log,
	}
}

// Depth returns the current call depth.
func (e *Executor) Depth() int { return e.depth }

// run executes seg as the entry point of a strand. On a fault the frames
// pushed by this run are dropped without running destructors.
func (e *Executor) run(seg *Segment, args []Value) (Value, error) {
	floor := e.local.top
	e.local.state = StateRunning
	v, err := e.call(seg, args)
	if err != nil {
		e.local.unwind(floor)
		e.log.Debug("strand faulted", "segment", seg.Name, "error", err)
		return nil, err
	}
	e.local.state = StateCompleted
	return v, nil
}

func (e *Executor) call(seg *Segment, args []Value) (Value, error) {
	if e.depth >= e.maxDepth {
		return nil, NewStackOverflowError(e.depth+1, e.maxDepth)
	}
	if err := e.goctx.Err(); err != nil {
		return nil, &RuntimeError{Type: ErrorCancelled, Message: err.Error(), Function: seg.Name, cause: err}
	}
	if len(args) != seg.Params {
		return nil, NewRuntimeErrorf(ErrorInvalidOperation, "%s expects %d arguments, got %d", seg.Name, seg.Params, len(args))
	}

	base, err := e.local.alloc(seg.FrameSize)
	if err != nil {
		return nil, asRuntimeError(err, seg.Name)
	}
	for i, a := range args {
		e.local.declare(base+i, a)
	}

	e.depth++
	v, err := e.exec(seg, base)
	e.depth--
	if err != nil {
		return nil, err
	}
	e.local.release(base)
	return v, nil
}

func (e *Executor) exec(seg *Segment, base int) (Value, error) {
	code := seg.Code
	pc := 0
	for pc < len(code) {
		op := &code[pc]
		switch op.Cmd {
		case opcode.Move:
			v, err := e.read(seg, base, op.Args[0])
			if err != nil {
				return nil, e.fault(err, seg)
			}
			e.write(base, op.Dst, v)

		case opcode.Declare:
			v, err := e.read(seg, base, op.Args[0])
			if err != nil {
				return nil, e.fault(err, seg)
			}
			ctx, i := e.addr(base, op.Dst)
			ctx.declare(i, v)

		case opcode.Assign:
			v, err := e.read(seg, base, op.Args[0])
			if err != nil {
				return nil, e.fault(err, seg)
			}
			ctx, i := e.addr(base, op.Dst)
			if _, live := ctx.get(i); !live {
				return nil, e.fault(NewRuntimeErrorf(ErrorInvalidOperation, "assignment to undeclared slot %s", op.Dst), seg)
			}
			ctx.set(i, v)

		case opcode.Call:
			target := seg.targets[pc]
			if target == nil {
				return nil, e.fault(NewRuntimeErrorf(ErrorUndefinedFunc, "call to unresolved function #%d", op.Func), seg)
			}
			args := make([]Value, len(op.Args))
			for i, a := range op.Args {
				v, err := e.read(seg, base, a)
				if err != nil {
					return nil, e.fault(err, seg)
				}
				args[i] = v
			}
			v, err := target.invoke(e, args)
			if err != nil {
				return nil, err
			}
			e.write(base, op.Dst, v)

		case opcode.AddrOf:
			ctx, i := e.addr(base, op.Args[0])
			e.write(base, op.Dst, ctx.ref(i))

		case opcode.Load:
			r, err := e.readRef(seg, base, op.Args[0])
			if err != nil {
				return nil, e.fault(err, seg)
			}
			v, err := r.Load()
			if err != nil {
				return nil, e.fault(err, seg)
			}
			e.write(base, op.Dst, v)

		case opcode.Store:
			r, err := e.readRef(seg, base, op.Args[0])
			if err != nil {
				return nil, e.fault(err, seg)
			}
			v, err := e.read(seg, base, op.Args[1])
			if err != nil {
				return nil, e.fault(err, seg)
			}
			if err := r.Store(v); err != nil {
				return nil, e.fault(err, seg)
			}

		case opcode.Jump:
			if op.Jump <= pc {
				if err := e.goctx.Err(); err != nil {
					return nil, &RuntimeError{Type: ErrorCancelled, Message: err.Error(), Function: seg.Name, cause: err}
				}
			}
			pc = op.Jump
			continue

		case opcode.JumpIfFalse, opcode.JumpIfTrue:
			v, err := e.read(seg, base, op.Args[0])
			if err != nil {
				return nil, e.fault(err, seg)
			}
			b, ok := v.(bool)
			if !ok {
				return nil, e.fault(NewRuntimeErrorf(ErrorInvalidOperation, "condition is %T, not bool", v), seg)
			}
			if b == (op.Cmd == opcode.JumpIfTrue) {
				pc = op.Jump
				continue
			}

		case opcode.Return:
			if len(op.Args) == 0 {
				return nil, nil
			}
			return e.read(seg, base, op.Args[0])

		case opcode.Destroy:
			ctx, i := e.addr(base, op.Dst)
			if dtor := seg.targets[pc]; dtor != nil {
				if _, live := ctx.get(i); live {
					if _, err := dtor.invoke(e, []Value{ctx.ref(i)}); err != nil {
						return nil, err
					}
				}
			}
			ctx.kill(i)

		default:
			return nil, e.fault(NewRuntimeErrorf(ErrorInvalidOperation, "unknown command %q", op.Cmd), seg)
		}
		pc++
	}

	if seg.ReturnsValue {
		return nil, e.fault(NewRuntimeErrorf(ErrorInvalidOperation, "%s ended without returning a value", seg.Name), seg)
	}
	return nil, nil
}

func (e *Executor) fault(err error, seg *Segment) error {
	return asRuntimeError(err, seg.Name)
}

func (e *Executor) addr(base int, o opcode.Operand) (*Context, int) {
	if o.Space == opcode.Global {
		return e.globals, o.Index
	}
	return e.local, base + o.Index
}

func (e *Executor) read(seg *Segment, base int, o opcode.Operand) (Value, error) {
	switch o.Space {
	case opcode.Const:
		return seg.Consts[o.Index], nil
	case opcode.Local, opcode.Global:
		ctx, i := e.addr(base, o)
		v, live := ctx.get(i)
		if !live {
			return nil, NewRuntimeErrorf(ErrorUninitialized, "read of uninitialized slot %s", o)
		}
		return v, nil
	}
	return nil, NewRuntimeErrorf(ErrorInvalidOperation, "cannot read operand %s", o)
}

func (e *Executor) readRef(seg *Segment, base int, o opcode.Operand) (Ref, error) {
	v, err := e.read(seg, base, o)
	if err != nil {
		return Ref{}, err
	}
	r, ok := v.(Ref)
	if !ok {
		return Ref{}, NewRuntimeErrorf(ErrorInvalidOperation, "operand %s holds %T, not a reference", o, v)
	}
	return r, nil
}

func (e *Executor) write(base int, o opcode.Operand, v Value) {
	if o.Space == opcode.None {
		return
	}
	ctx, i := e.addr(base, o)
	ctx.set(i, v)
}
