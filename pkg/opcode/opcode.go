// Package opcode defines the instruction set shared by the code extractor and the executor.
// The compiler lowers linked expression trees into OpCode sequences and the VM executes them.
// Every operand is a fixed slot address resolved at compile time.
package opcode

import (
	"fmt"
	"strings"
)

// Cmd represents an OpCode command type.
type Cmd string

const (
	// Move copies a value into a slot.
	// Dst: destination, Args: [source]
	Move Cmd = "Move"

	// Declare starts the lifetime of a variable slot (declaration-aware assignment).
	// The slot receives a fresh generation so references taken from a previous
	// occupant no longer resolve.
	// Dst: variable, Args: [initial value]
	Declare Cmd = "Declare"

	// Assign overwrites a live variable slot (plain assignment).
	// Dst: variable, Args: [value]
	Assign Cmd = "Assign"

	// Call invokes a native function or a script function segment.
	// The callee is bound per command after extraction (see vm.Segment.Bind).
	// Dst: result slot or None, Args: actual arguments, Func: function id
	Call Cmd = "Call"

	// AddrOf takes a reference to a variable slot.
	// Dst: result, Args: [variable]
	AddrOf Cmd = "AddrOf"

	// Load reads through a reference.
	// Dst: result, Args: [reference]
	Load Cmd = "Load"

	// Store writes through a reference.
	// Args: [reference, value]
	Store Cmd = "Store"

	// Jump transfers control unconditionally.
	Jump Cmd = "Jump"

	// JumpIfFalse transfers control when Args[0] is false.
	JumpIfFalse Cmd = "JumpIfFalse"

	// JumpIfTrue transfers control when Args[0] is true.
	JumpIfTrue Cmd = "JumpIfTrue"

	// Return leaves the current segment, optionally with Args[0] as the result.
	Return Cmd = "Return"

	// Destroy ends the lifetime of a variable slot, running the destructor
	// bound to the command first when one exists.
	// Dst: variable, Func: destructor function id or NoFunc
	Destroy Cmd = "Destroy"
)

// NoFunc marks an OpCode that does not reference a function.
const NoFunc = -1

// Space identifies the memory region an operand addresses.
type Space uint8

const (
	// None is an operand that addresses nothing (discarded results).
	None Space = iota
	// Local addresses a slot relative to the current frame base.
	Local
	// Global addresses a slot in the program's global context.
	Global
	// Const addresses the segment's constant pool.
	Const
)

var spaceNames = [...]string{
	None:   "none",
	Local:  "local",
	Global: "global",
	Const:  "const",
}

func (s Space) String() string {
	if int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("space(%d)", s)
}

// Operand addresses a single slot.
type Operand struct {
	Space Space
	Index int
}

// Discard is the operand used when a result is not needed.
var Discard = Operand{Space: None}

// L returns a frame-relative operand.
func L(index int) Operand { return Operand{Space: Local, Index: index} }

// G returns a global operand.
func G(index int) Operand { return Operand{Space: Global, Index: index} }

// K returns a constant pool operand.
func K(index int) Operand { return Operand{Space: Const, Index: index} }

func (o Operand) String() string {
	switch o.Space {
	case None:
		return "_"
	case Local:
		return fmt.Sprintf("L%d", o.Index)
	case Global:
		return fmt.Sprintf("G%d", o.Index)
	case Const:
		return fmt.Sprintf("K%d", o.Index)
	}
	return o.Space.String()
}

// OpCode represents a single instruction.
type OpCode struct {
	Cmd  Cmd
	Dst  Operand
	Args []Operand
	Func int // function id for Call and Destroy, NoFunc otherwise
	Jump int // target index for jumps
}

// String renders the instruction for listings and debug logs.
func (op OpCode) String() string {
	var b strings.Builder
	b.WriteString(string(op.Cmd))
	if op.Dst.Space != None {
		fmt.Fprintf(&b, " %s", op.Dst)
	}
	if len(op.Args) > 0 {
		args := make([]string, len(op.Args))
		for i, a := range op.Args {
			args[i] = a.String()
		}
		fmt.Fprintf(&b, " <- %s", strings.Join(args, ", "))
	}
	if op.Func != NoFunc {
		fmt.Fprintf(&b, " fn#%d", op.Func)
	}
	switch op.Cmd {
	case Jump, JumpIfFalse, JumpIfTrue:
		fmt.Fprintf(&b, " @%d", op.Jump)
	}
	return b.String()
}
