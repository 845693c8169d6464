package linker

import (
	"fmt"
	"strings"

	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/vm"
)

// Node is a linked, type-checked expression. The set of implementations is
// closed; the code extractor switches over all of them.
type Node interface {
	Type() types.ScriptType
	linked()
}

// Const is a literal or a zero value.
type Const struct {
	Value vm.Value
	T     types.ScriptType
}

// VarRef names a variable slot.
type VarRef struct {
	Var *Variable
}

// Call invokes a registered native or script function.
type Call struct {
	Fn   *types.Function
	Args []Node
}

// Cast wraps a unit in the casting function converting it to To.
type Cast struct {
	Fn  *types.Function
	Arg Node
	To  types.ScriptType
}

// Construct builds an object of Temp's type in Temp with a constructor.
// Args exclude the object reference.
type Construct struct {
	Ctor *types.Function
	Temp *Variable
	Args []Node
}

// AddrOf takes a reference to an addressable unit.
type AddrOf struct {
	X Node
}

// Deref reads through a reference.
type Deref struct {
	X Node
}

// Cond is the conditional operator; only the selected branch runs.
type Cond struct {
	Cond, Then, Else Node
	T                types.ScriptType
}

// Logical is a short-circuit && (And) or ||.
type Logical struct {
	And         bool
	Left, Right Node
	T           types.ScriptType
}

// Assign stores Value into Target. Decl marks the declaration-aware form
// that starts the variable's lifetime; Ctor, when set, constructs the
// declared object from Value (copy) or from nothing (default).
type Assign struct {
	Target Node
	Value  Node
	Decl   bool
	Ctor   *types.Function
	Zero   vm.Value
}

func (*Const) linked()     {}
func (*VarRef) linked()    {}
func (*Call) linked()      {}
func (*Cast) linked()      {}
func (*Construct) linked() {}
func (*AddrOf) linked()    {}
func (*Deref) linked()     {}
func (*Cond) linked()      {}
func (*Logical) linked()   {}
func (*Assign) linked()    {}

func (n *Const) Type() types.ScriptType     { return n.T }
func (n *VarRef) Type() types.ScriptType    { return n.Var.Type }
func (n *Call) Type() types.ScriptType      { return n.Fn.Return }
func (n *Cast) Type() types.ScriptType      { return n.To }
func (n *Construct) Type() types.ScriptType { return n.Temp.Type }
func (n *AddrOf) Type() types.ScriptType    { return n.X.Type().MakeRef() }
func (n *Deref) Type() types.ScriptType     { return n.X.Type().Deref() }
func (n *Cond) Type() types.ScriptType      { return n.T }
func (n *Logical) Type() types.ScriptType   { return n.T }
func (n *Assign) Type() types.ScriptType    { return n.Target.Type() }

// Addressable reports whether n denotes a slot a reference can point to.
func Addressable(n Node) bool {
	switch n := n.(type) {
	case *VarRef, *Deref, *Construct:
		return true
	case *Assign:
		return Addressable(n.Target)
	}
	return false
}

// Dump renders a linked tree for debugging and tests.
func Dump(n Node) string {
	switch n := n.(type) {
	case *Const:
		if s, ok := n.Value.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return vm.Format(n.Value)
	case *VarRef:
		if n.Var.Temp {
			return fmt.Sprintf("$t%d", n.Var.Offset)
		}
		return n.Var.Name
	case *Call:
		return n.Fn.Name + "(" + dumpList(n.Args) + ")"
	case *Cast:
		return "cast:" + n.Fn.Name + "(" + Dump(n.Arg) + ")"
	case *Construct:
		return "new:" + n.Ctor.Name + "(" + dumpList(n.Args) + ")"
	case *AddrOf:
		return "&" + Dump(n.X)
	case *Deref:
		return "*" + Dump(n.X)
	case *Cond:
		return "(" + Dump(n.Cond) + " ? " + Dump(n.Then) + " : " + Dump(n.Else) + ")"
	case *Logical:
		op := "||"
		if n.And {
			op = "&&"
		}
		return "(" + Dump(n.Left) + " " + op + " " + Dump(n.Right) + ")"
	case *Assign:
		op := "="
		if n.Decl {
			op = ":="
		}
		value := "<zero>"
		if n.Value != nil {
			value = Dump(n.Value)
		}
		return "(" + Dump(n.Target) + " " + op + " " + value + ")"
	case nil:
		return "<nil>"
	}
	panic(fmt.Sprintf("linker: unknown node %T", n))
}

func dumpList(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, a := range nodes {
		parts[i] = Dump(a)
	}
	return strings.Join(parts, ", ")
}

// Stmt is a linked statement.
type Stmt interface {
	stmt()
}

// ExprStmt evaluates expressions for their effects.
type ExprStmt struct {
	Exprs []Node
}

// Block runs statements in a scope and destroys the scope's variables at its end.
type Block struct {
	Scope *Scope
	Stmts []Stmt
}

// If is a two-way branch; Else may be nil.
type If struct {
	Cond Node
	Then Stmt
	Else Stmt
}

// Loop covers while and for. Init and Post may be empty, Cond may be nil.
// Scope holds the variables declared by Init and is nil for while loops.
type Loop struct {
	Scope *Scope
	Init  []Stmt
	Cond  Node
	Post  []Node
	Body  Stmt
}

// Return leaves the function; Value is nil in void functions.
type Return struct {
	Value Node
}

// Break leaves the innermost loop.
type Break struct{}

// Continue jumps to the next iteration of the innermost loop.
type Continue struct{}

func (*ExprStmt) stmt() {}
func (*Block) stmt()    {}
func (*If) stmt()       {}
func (*Loop) stmt()     {}
func (*Return) stmt()   {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}

// Function is a linked script function definition.
type Function struct {
	Fn     *types.Function
	Scope  *Scope
	Params []*Variable
	Body   []Stmt
	Frame  int // variable slots, valid after CommitOffsets
}

// Unit is the linked form of a whole program.
type Unit struct {
	Global     *Scope
	Init       []Stmt // global code in program order
	Functions  []*Function
	GlobalSize int
	InitFrame  int // local slots needed by nested blocks of global code
}

// Expression is the linked form of a standalone expression list compiled
// against a program's globals.
type Expression struct {
	Scope *Scope
	Exprs []Node
	Frame int
}

// Result returns the last expression, whose value the list yields.
func (e *Expression) Result() Node {
	if len(e.Exprs) == 0 {
		return nil
	}
	return e.Exprs[len(e.Exprs)-1]
}
