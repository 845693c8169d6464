// Package vm provides the runtime for compiled scripts.
// It implements:
// - Context: a reserved arena of typed slots addressed by frame-relative offsets
// - Executor: the command walker with its call-frame discipline
// - Program: the immutable set of code segments plus the global context
// - Task: a per-strand context running one function of a shared Program
package vm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/zurustar/clamb/pkg/logger"
)

// Option is a functional option for configuring programs and tasks.
type Option func(*options)

type options struct {
	log      *slog.Logger
	capacity int
	maxDepth int
}

func newOptions(opts []Option) *options {
	o := &options{
		log:      logger.GetLogger(),
		capacity: DefaultCapacity,
		maxDepth: MaxStackDepth,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithCapacity sets the slot capacity of the contexts created with this option.
func WithCapacity(slots int) Option {
	return func(o *options) {
		if slots > 0 {
			o.capacity = slots
		}
	}
}

// WithMaxCallDepth sets the maximum script call depth.
func WithMaxCallDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

// Program is the result of a successful compilation.
// Its segments are immutable and may be executed by many tasks at once. The
// global context is the only shared mutable state; each read or write of a
// global slot is atomic, but a compound update such as "g += 1" spans two
// commands and is not.
type Program struct {
	ID uuid.UUID

	global     *Segment
	teardown   *Segment
	functions  map[int]*Segment
	globalSize int

	opts    *options
	mu      sync.Mutex // serializes RunGlobalCode/CleanupGlobalMemory/Eval
	globals *Context
}

// NewProgram assembles a program. The global variable region occupies the
// first globalSize slots of the global context.
func NewProgram(global, teardown *Segment, functions []*Segment, globalSize int, opts ...Option) (*Program, error) {
	o := newOptions(opts)
	p := &Program{
		ID:         uuid.New(),
		global:     global,
		teardown:   teardown,
		functions:  make(map[int]*Segment, len(functions)),
		globalSize: globalSize,
		opts:       o,
		globals:    newSharedContext(o.capacity),
	}
	for _, seg := range functions {
		p.functions[seg.FuncID] = seg
	}
	if _, err := p.globals.alloc(globalSize); err != nil {
		return nil, fmt.Errorf("global variables do not fit: %w", err)
	}
	o.log.Debug("program assembled", "program", p.ID, "functions", len(functions), "globals", globalSize)
	return p, nil
}

// Function returns the segment of a script function.
func (p *Program) Function(id int) (*Segment, bool) {
	seg, ok := p.functions[id]
	return seg, ok
}

// Functions returns the script function segments ordered by id.
func (p *Program) Functions() []*Segment {
	segs := make([]*Segment, 0, len(p.functions))
	for _, seg := range p.functions {
		segs = append(segs, seg)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].FuncID < segs[j].FuncID })
	return segs
}

// FindFunction returns the id of the script function with the given name and
// parameter signature (e.g. "long" or "int,ref String"), or -1.
func (p *Program) FindFunction(name, signature string) int {
	for _, seg := range p.Functions() {
		if seg.Name == name && seg.Signature == signature {
			return seg.FuncID
		}
	}
	return -1
}

// GlobalSegment returns the segment holding the global-scope code.
func (p *Program) GlobalSegment() *Segment { return p.global }

// GlobalContext returns the context holding global variables.
func (p *Program) GlobalContext() *Context { return p.globals }

// RunGlobalCode runs the global-scope code once on the global context.
// Its variables stay alive until CleanupGlobalMemory.
func (p *Program) RunGlobalCode(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := newExecutor(ctx, p.globals, p.globals, p.opts).run(p.global, nil)
	return err
}

// Eval runs an extra segment (a compiled expression) on the global context.
func (p *Program) Eval(ctx context.Context, seg *Segment) (Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return newExecutor(ctx, p.globals, p.globals, p.opts).run(seg, nil)
}

// CleanupGlobalMemory destroys global variables in reverse declaration order.
func (p *Program) CleanupGlobalMemory(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.teardown != nil {
		_, err = newExecutor(ctx, p.globals, p.globals, p.opts).run(p.teardown, nil)
	}
	p.globals.release(p.globalSize)
	for i := 0; i < p.globalSize; i++ {
		p.globals.kill(i)
	}
	return err
}
