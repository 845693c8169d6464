package vm

import (
	"fmt"
	"strings"

	"github.com/zurustar/clamb/pkg/opcode"
)

// Native is the signature of host functions callable from scripts.
// Reference parameters arrive as Ref values.
type Native func(args []Value) (Value, error)

// Callable is the target bound to a Call or Destroy command.
// It is implemented by *Segment (script functions) and *NativeFunction.
type Callable interface {
	invoke(e *Executor, args []Value) (Value, error)
	name() string
}

// NativeFunction binds a host function to its script-visible name.
type NativeFunction struct {
	Name string
	Fn   Native
}

func (n *NativeFunction) name() string { return n.Name }

func (n *NativeFunction) invoke(e *Executor, args []Value) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewRuntimeErrorf(ErrorNativeFault, "native function %s panicked: %v", n.Name, r)
		}
	}()
	v, err = n.Fn(args)
	if err != nil {
		return nil, asRuntimeError(err, n.Name)
	}
	return v, nil
}

// Segment is the code of one script function (or of the global scope).
// Call commands are bound to their targets through Bind; a segment is
// immutable once its Program has been assembled.
type Segment struct {
	Name         string
	FuncID       int    // opcode.NoFunc for the global and teardown segments
	Signature    string // comma separated parameter types, e.g. "long,ref String"
	Params       int    // number of parameter slots at the start of the frame
	FrameSize    int    // parameters + variables + temporaries
	ReturnsValue bool
	Code         []opcode.OpCode
	Consts       []Value

	targets []Callable
}

// NewSegment creates an empty segment.
func NewSegment(name string, funcID int) *Segment {
	return &Segment{Name: name, FuncID: funcID}
}

func (s *Segment) name() string { return s.Name }

func (s *Segment) invoke(e *Executor, args []Value) (Value, error) {
	return e.call(s, args)
}

// Emit appends an instruction and returns its index.
func (s *Segment) Emit(op opcode.OpCode) int {
	s.Code = append(s.Code, op)
	s.targets = append(s.targets, nil)
	return len(s.Code) - 1
}

// AddConst appends a constant and returns its pool index.
func (s *Segment) AddConst(v Value) int {
	for i, c := range s.Consts {
		if c == v {
			return i
		}
	}
	s.Consts = append(s.Consts, v)
	return len(s.Consts) - 1
}

// Bind attaches the callee of the command at pc.
func (s *Segment) Bind(pc int, target Callable) {
	s.targets[pc] = target
}

// Target returns the callee bound to the command at pc.
func (s *Segment) Target(pc int) Callable {
	if pc < 0 || pc >= len(s.targets) {
		return nil
	}
	return s.targets[pc]
}

// Unbound lists the commands that reference a function but have no callee yet.
func (s *Segment) Unbound() []int {
	var pcs []int
	for pc, op := range s.Code {
		if op.Cmd == opcode.Call && s.targets[pc] == nil {
			pcs = append(pcs, pc)
		}
	}
	return pcs
}

// Listing renders the segment for debugging.
func (s *Segment) Listing() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s) frame=%d\n", s.Name, s.Signature, s.FrameSize)
	for pc, op := range s.Code {
		target := ""
		if t := s.targets[pc]; t != nil {
			target = " -> " + t.name()
		}
		fmt.Fprintf(&b, "%4d  %s%s\n", pc, op, target)
	}
	return b.String()
}
