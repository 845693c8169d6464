// Package linker binds parsed trees to variables and functions, resolves
// overloads and implicit conversions, and lays out variables in scopes.
package linker

import (
	"fmt"
	"log/slog"

	"github.com/zurustar/clamb/pkg/compiler/ast"
	"github.com/zurustar/clamb/pkg/compiler/lexer"
	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/logger"
)

// Error is a type-resolution or declaration error at a source position.
type Error struct {
	Message string
	Token   lexer.Token
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at line %d, column %d", e.Message, e.Token.Line, e.Token.Column)
}

// Linker turns ast trees into linked trees. It keeps the active scope and
// stops at the first error.
type Linker struct {
	reg      *types.Registry
	scope    *Scope
	fn       *types.Function // function being linked, nil in global code
	loops    int
	declType types.ScriptType

	castSearches int
	log          *slog.Logger
}

// Option configures a Linker.
type Option func(*Linker)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Linker) {
		l.log = log
	}
}

// New creates a Linker over a registry.
func New(reg *types.Registry, opts ...Option) *Linker {
	l := &Linker{reg: reg, log: logger.GetLogger()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func errorAt(node ast.Node, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Token: node.Pos()}
}

// wrap attaches a position to an error from the resolver unless it has one.
func wrap(node ast.Node, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Message: err.Error(), Token: node.Pos()}
}

// LinkExpression links a standalone expression list in a new block scope of
// global. Only the last expression is converted to expected, which may be
// types.Unknown. The block is detached from global afterwards, so linking
// expressions does not grow the program's scope tree.
func (l *Linker) LinkExpression(global *Scope, exprs []ast.Expression, expected types.ScriptType) (*Expression, error) {
	l.scope = global.NewScope(BlockScope)
	defer l.scope.Detach()
	l.fn = nil
	nodes, err := l.linkList(exprs, expected)
	if err != nil {
		return nil, err
	}
	e := &Expression{Scope: l.scope, Exprs: nodes}
	e.Frame = l.scope.CommitOffsets()
	return e, nil
}

// linkList links a comma separated expression list. Errors are reported with
// the text of the expression that failed.
func (l *Linker) linkList(exprs []ast.Expression, expected types.ScriptType) ([]Node, error) {
	nodes := make([]Node, 0, len(exprs))
	for i, e := range exprs {
		want := types.Unknown
		if i == len(exprs)-1 {
			want = expected
		}
		n, err := l.linkExpr(e, want)
		if err != nil {
			le := err.(*Error)
			return nil, &Error{
				Message: fmt.Sprintf("compile '%s' failed with error:%s", e.String(), le.Message),
				Token:   le.Token,
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// linkExpr links e and converts the result to expected.
func (l *Linker) linkExpr(e ast.Expression, expected types.ScriptType) (Node, error) {
	cands, err := l.candidates(e, expected)
	if err != nil {
		return nil, err
	}
	n, err := l.chooseCandidate(cands, expected)
	return n, wrap(e, err)
}

// value links e without an expectation.
func (l *Linker) value(e ast.Expression) (Node, error) {
	return l.linkExpr(e, types.Unknown)
}

// candidates links e into one or more alternatives that differ only in
// the overload chosen for the root.
func (l *Linker) candidates(e ast.Expression, expected types.ScriptType) ([]Node, error) {
	switch e := e.(type) {
	case *ast.Identifier:
		v := l.scope.Lookup(e.Value)
		if v == nil {
			if l.reg.HasFunction(e.Value) {
				return nil, errorAt(e, "function '%s' used as a value", e.Value)
			}
			return nil, errorAt(e, "undefined identifier '%s'", e.Value)
		}
		return []Node{&VarRef{Var: v}}, nil

	case *ast.IntegerLiteral:
		if e.Long {
			return l.literal(e, "long", e.Value)
		}
		return l.literal(e, "int", int32(e.Value))

	case *ast.FloatLiteral:
		if e.Single {
			return l.literal(e, "float", float32(e.Value))
		}
		return l.literal(e, "double", e.Value)

	case *ast.StringLiteral:
		return l.literal(e, "String", e.Value)

	case *ast.BooleanLiteral:
		return []Node{&Const{Value: e.Value, T: l.reg.Bool()}}, nil

	case *ast.PrefixExpression:
		return l.prefix(e)

	case *ast.InfixExpression:
		if e.Operator == "&&" || e.Operator == "||" {
			return l.logical(e)
		}
		left, err := l.value(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.value(e.Right)
		if err != nil {
			return nil, err
		}
		cands, err := l.resolveCall(e.Operator, l.reg.Overloads(e.Operator), []Node{left, right})
		return cands, wrap(e, err)

	case *ast.AssignExpression:
		n, err := l.assign(e)
		if err != nil {
			return nil, err
		}
		return []Node{n}, nil

	case *ast.ConditionalExpression:
		n, err := l.conditional(e, expected)
		if err != nil {
			return nil, err
		}
		return []Node{n}, nil

	case *ast.CallExpression:
		return l.call(e)

	case *ast.IndexExpression:
		left, err := l.value(e.Left)
		if err != nil {
			return nil, err
		}
		index, err := l.value(e.Index)
		if err != nil {
			return nil, err
		}
		cands, err := l.resolveCall("[]", l.reg.Overloads("[]"), []Node{left, index})
		return cands, wrap(e, err)
	}
	return nil, errorAt(e, "unsupported expression %s", e.String())
}

func (l *Linker) literal(e ast.Expression, typeName string, v any) ([]Node, error) {
	id, ok := l.reg.Lookup(typeName)
	if !ok {
		return nil, errorAt(e, "unknown data type '%s'", typeName)
	}
	return []Node{&Const{Value: v, T: types.ScriptType{ID: id}}}, nil
}

func (l *Linker) prefix(e *ast.PrefixExpression) ([]Node, error) {
	right, err := l.value(e.Right)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case "&":
		if !Addressable(right) {
			return nil, errorAt(e, "cannot take the address of '%s'", e.Right.String())
		}
		if right.Type().Ref >= types.MaxRefLevel {
			return nil, errorAt(e, "too many reference levels in '%s'", e.String())
		}
		return []Node{&AddrOf{X: right}}, nil
	case "*":
		if !right.Type().IsRef() {
			return nil, errorAt(e, "cannot dereference '%s' of type '%s'", e.Right.String(), l.reg.TypeName(right.Type()))
		}
		return []Node{&Deref{X: right}}, nil
	}
	cands, err := l.resolveCall(e.Operator, l.reg.Overloads(e.Operator), []Node{right})
	return cands, wrap(e, err)
}

func (l *Linker) logical(e *ast.InfixExpression) ([]Node, error) {
	left, err := l.linkExpr(e.Left, l.reg.Bool())
	if err != nil {
		return nil, err
	}
	right, err := l.linkExpr(e.Right, l.reg.Bool())
	if err != nil {
		return nil, err
	}
	return []Node{&Logical{And: e.Operator == "&&", Left: left, Right: right, T: l.reg.Bool()}}, nil
}

// conditional links c ? a : b. The branches are brought to one type: the
// expected one when known, else the type of one branch cast from the other.
func (l *Linker) conditional(e *ast.ConditionalExpression, expected types.ScriptType) (Node, error) {
	cond, err := l.linkExpr(e.Condition, l.reg.Bool())
	if err != nil {
		return nil, err
	}
	then, err := l.linkExpr(e.Consequence, expected)
	if err != nil {
		return nil, err
	}
	alt, err := l.linkExpr(e.Alternative, expected)
	if err != nil {
		return nil, err
	}

	t := then.Type()
	if alt.Type() != t {
		if converted, _, ok := l.convert(alt, t, true); ok {
			alt = converted
		} else if converted, _, ok := l.convert(then, alt.Type(), true); ok {
			then, t = converted, alt.Type()
		} else {
			return nil, errorAt(e, "incompatible branch types '%s' and '%s'",
				l.reg.TypeName(then.Type()), l.reg.TypeName(alt.Type()))
		}
	}
	return &Cond{Cond: cond, Then: then, Else: alt, T: t}, nil
}

// call links f(args). A name that resolves to a variable, and any other
// callee expression, is called through the function operator of its type.
func (l *Linker) call(e *ast.CallExpression) ([]Node, error) {
	args := make([]Node, 0, len(e.Arguments)+1)

	var callee Node
	if ident, ok := e.Function.(*ast.Identifier); ok {
		if v := l.scope.Lookup(ident.Value); v != nil {
			callee = &VarRef{Var: v}
		} else if !l.reg.HasFunction(ident.Value) {
			return nil, errorAt(ident, "undefined function '%s'", ident.Value)
		} else {
			for _, a := range e.Arguments {
				n, err := l.value(a)
				if err != nil {
					return nil, err
				}
				args = append(args, n)
			}
			cands, err := l.resolveCall(ident.Value, l.callable(ident.Value), args)
			return cands, wrap(e, err)
		}
	} else {
		n, err := l.value(e.Function)
		if err != nil {
			return nil, err
		}
		callee = n
	}

	ops := l.reg.FunctionOperators(callee.Type().ID)
	if len(ops) == 0 {
		return nil, errorAt(e, "'%s' of type '%s' is not callable", e.Function.String(), l.reg.TypeName(callee.Type()))
	}
	args = append(args, callee)
	for _, a := range e.Arguments {
		n, err := l.value(a)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}
	cands, err := l.resolveCall(e.Function.String(), ops, args)
	return cands, wrap(e, err)
}

// callable returns the overloads of name that can be called by name.
func (l *Linker) callable(name string) []*types.Function {
	all := l.reg.Overloads(name)
	fns := all[:0:0]
	for _, f := range all {
		if !f.Operator {
			fns = append(fns, f)
		}
	}
	return fns
}

// assign links "=" and the compound forms. On the target of a declaration
// (MaskDeclTarget) it declares the variable and yields the
// declaration-aware form instead of a plain assignment.
func (l *Linker) assign(e *ast.AssignExpression) (Node, error) {
	if ident, ok := e.Target.(*ast.Identifier); ok && ident.Mask&ast.MaskDeclTarget != 0 {
		return l.declAssign(ident, e.Value)
	}

	target, err := l.value(e.Target)
	if err != nil {
		return nil, err
	}
	if target.Type().IsRef() {
		// assigning to a reference writes the referenced object
		target = &Deref{X: target}
	}
	if !Addressable(target) {
		return nil, errorAt(e, "cannot assign to '%s'", e.Target.String())
	}

	var value Node
	if e.Operator == "=" {
		value, err = l.linkExpr(e.Value, target.Type())
		if err != nil {
			return nil, err
		}
	} else {
		op := e.Operator[:len(e.Operator)-1]
		right, err := l.value(e.Value)
		if err != nil {
			return nil, err
		}
		cands, err := l.resolveCall(op, l.reg.Overloads(op), []Node{target, right})
		if err != nil {
			return nil, wrap(e, err)
		}
		value, err = l.chooseCandidate(cands, target.Type())
		if err != nil {
			return nil, wrap(e, err)
		}
	}

	if l.reg.HasFunction("=") {
		if cands, err := l.resolveCall("=", l.reg.Overloads("="), []Node{target, value}); err == nil {
			return cands[0], nil
		}
	}
	return &Assign{Target: target, Value: value}, nil
}

// declare links one declarator of a declaration of type t. An initializer
// must be a plain assignment to the declared name.
func (l *Linker) declare(d ast.Expression, t types.ScriptType) (Node, error) {
	l.declType = t
	switch d := d.(type) {
	case *ast.Identifier:
		return l.declAssign(d, nil)
	case *ast.AssignExpression:
		if id, ok := d.Target.(*ast.Identifier); ok && d.Operator == "=" {
			id.Mask |= ast.MaskDeclTarget
			return l.assign(d)
		}
		return nil, errorAt(d, "declaration of '%s' must be an assignment", d.Target.String())
	}
	return nil, errorAt(d, "declaration of '%s' must be an assignment", d.String())
}

// declAssign declares ident with the type of the declaration being linked.
// The initializer is linked before the name becomes visible.
func (l *Linker) declAssign(ident *ast.Identifier, init ast.Expression) (Node, error) {
	t := l.declType
	decl := &Assign{Decl: true, Zero: l.zero(t)}
	if init != nil {
		value, err := l.linkExpr(init, t)
		if err != nil {
			return nil, err
		}
		decl.Value = value
		if !t.IsRef() {
			decl.Ctor = l.copyConstructor(t)
		}
	} else {
		if t.IsRef() {
			return nil, errorAt(ident, "reference '%s' must be initialized", ident.Value)
		}
		decl.Ctor = l.reg.DefaultConstructor(t.ID)
		if decl.Ctor == nil {
			decl.Value = &Const{Value: decl.Zero, T: t}
		}
	}

	v, err := l.scope.Declare(ident.Value, t)
	if err != nil {
		return nil, wrap(ident, err)
	}
	decl.Target = &VarRef{Var: v}
	return decl, nil
}

func (l *Linker) copyConstructor(t types.ScriptType) *types.Function {
	for _, ctor := range l.reg.Constructors(t.ID) {
		if len(ctor.Params) == 2 && ctor.Params[1] == t {
			return ctor
		}
	}
	return nil
}
