package vm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ParamBuffer packs the arguments of a function run by a Task.
type ParamBuffer struct {
	params []Value
}

// NewParamBuffer creates a buffer holding the given arguments.
func NewParamBuffer(params ...Value) *ParamBuffer {
	return &ParamBuffer{params: params}
}

// AddParam appends an argument.
func (b *ParamBuffer) AddParam(v Value) *ParamBuffer {
	b.params = append(b.params, v)
	return b
}

// Params returns the packed arguments.
func (b *ParamBuffer) Params() []Value {
	if b == nil {
		return nil
	}
	return b.params
}

// Task runs script functions of a shared Program on its own Context.
// One Task belongs to one strand.
type Task struct {
	ID uuid.UUID

	prog      *Program
	ctx       *Context
	opts      *options
	result    Value
	hasResult bool
}

// NewTask creates a task with a fresh context.
func NewTask(prog *Program, opts ...Option) *Task {
	all := append([]Option{WithCapacity(prog.opts.capacity), WithMaxCallDepth(prog.opts.maxDepth), WithLogger(prog.opts.log)}, opts...)
	o := newOptions(all)
	return &Task{
		ID:   uuid.New(),
		prog: prog,
		ctx:  NewContext(o.capacity),
		opts: o,
	}
}

// Context returns the task's memory region.
func (t *Task) Context() *Context { return t.ctx }

// RunFunction runs the script function id with the given arguments.
// A nil params buffer means no arguments.
func (t *Task) RunFunction(ctx context.Context, id int, params *ParamBuffer) error {
	seg, ok := t.prog.Function(id)
	if !ok {
		return NewRuntimeErrorf(ErrorUndefinedFunc, "function #%d is not part of the program", id)
	}
	t.result, t.hasResult = nil, false

	t.opts.log.Debug("task started", "task", t.ID, "program", t.prog.ID, "function", seg.Name)
	v, err := newExecutor(ctx, t.ctx, t.prog.globals, t.opts).run(seg, params.Params())
	if err != nil {
		t.opts.log.Warn("task faulted", "task", t.ID, "function", seg.Name, "error", err)
		return fmt.Errorf("run %s: %w", seg.Name, err)
	}
	t.result, t.hasResult = v, seg.ReturnsValue
	return nil
}

// Result returns the value returned by the last successful run and whether
// the function produces one. The caller interprets it according to the
// function's declared return type.
func (t *Task) Result() (Value, bool) {
	return t.result, t.hasResult
}
