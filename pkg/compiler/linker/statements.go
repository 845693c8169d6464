package linker

import (
	"github.com/zurustar/clamb/pkg/compiler/ast"
	"github.com/zurustar/clamb/pkg/compiler/types"
)

// LinkProgram links a whole program. Script function signatures are
// declared before any body is linked, so calls may precede definitions.
func (l *Linker) LinkProgram(prog *ast.Program) (*Unit, error) {
	global := NewGlobalScope()
	unit := &Unit{Global: global}
	l.scope, l.fn, l.loops = global, nil, 0

	ids := make(map[*ast.FunctionDeclaration]int)
	for _, s := range prog.Statements {
		decl, ok := s.(*ast.FunctionDeclaration)
		if !ok {
			continue
		}
		id, err := l.declareFunction(decl)
		if err != nil {
			return nil, err
		}
		ids[decl] = id
	}

	defined := make(map[int]bool)
	for _, s := range prog.Statements {
		if decl, ok := s.(*ast.FunctionDeclaration); ok {
			if decl.Body == nil {
				continue
			}
			id := ids[decl]
			if defined[id] {
				return nil, errorAt(decl, "redefinition of function '%s'", decl.Name.Value)
			}
			defined[id] = true
			fn, err := l.linkFunction(decl, id)
			if err != nil {
				return nil, err
			}
			unit.Functions = append(unit.Functions, fn)
			continue
		}

		stmt, err := l.linkStmt(s)
		if err != nil {
			return nil, err
		}
		unit.Init = append(unit.Init, stmt)
	}

	unit.GlobalSize = global.CommitOffsets()
	unit.InitFrame = global.FrameSize()
	l.log.Debug("program linked",
		"functions", len(unit.Functions),
		"globals", unit.GlobalSize,
		"cast_searches", l.castSearches)
	return unit, nil
}

func (l *Linker) typeOf(spec *ast.TypeSpec) (types.ScriptType, error) {
	id, ok := l.reg.Lookup(spec.Name)
	if !ok {
		return types.Unknown, &Error{Message: "unknown data type '" + spec.Name + "'", Token: spec.Token}
	}
	if spec.Ref > types.MaxRefLevel {
		return types.Unknown, &Error{Message: "too many reference levels in '" + spec.String() + "'", Token: spec.Token}
	}
	return types.ScriptType{ID: id, Ref: spec.Ref}, nil
}

func (l *Linker) declareFunction(decl *ast.FunctionDeclaration) (int, error) {
	ret, err := l.typeOf(decl.ReturnType)
	if err != nil {
		return -1, err
	}
	params := make([]types.ScriptType, len(decl.Parameters))
	for i, p := range decl.Parameters {
		if params[i], err = l.typeOf(p.Type); err != nil {
			return -1, err
		}
		if params[i] == l.reg.Void() {
			return -1, errorAt(p.Name, "parameter '%s' declared void", p.Name.Value)
		}
	}
	id, err := l.reg.DeclareScriptFunction(decl.Name.Value, params, ret)
	if err != nil {
		return -1, wrap(decl.Name, err)
	}
	return id, nil
}

func (l *Linker) linkFunction(decl *ast.FunctionDeclaration, id int) (*Function, error) {
	fn := l.reg.Function(id)
	scope := l.scope.NewScope(FunctionScope)
	out := &Function{Fn: fn, Scope: scope}

	for i, p := range decl.Parameters {
		v, err := scope.Declare(p.Name.Value, fn.Params[i])
		if err != nil {
			return nil, wrap(p.Name, err)
		}
		out.Params = append(out.Params, v)
	}

	outer := l.scope
	l.scope, l.fn, l.loops = scope, fn, 0
	defer func() { l.scope, l.fn = outer, nil }()

	for _, s := range decl.Body.Statements {
		stmt, err := l.linkStmt(s)
		if err != nil {
			return nil, err
		}
		out.Body = append(out.Body, stmt)
	}

	l.reg.MarkDefined(id)
	out.Frame = scope.CommitOffsets()
	return out, nil
}

func (l *Linker) linkStmt(s ast.Statement) (Stmt, error) {
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		nodes, err := l.linkList(s.Expressions, types.Unknown)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Exprs: nodes}, nil

	case *ast.VarDeclaration:
		t, err := l.typeOf(s.Type)
		if err != nil {
			return nil, err
		}
		if t == l.reg.Void() {
			return nil, errorAt(s, "variable declared void")
		}
		stmt := &ExprStmt{}
		for _, d := range s.Declarators {
			n, err := l.declare(d, t)
			if err != nil {
				return nil, err
			}
			stmt.Exprs = append(stmt.Exprs, n)
		}
		return stmt, nil

	case *ast.BlockStatement:
		return l.block(s.Statements)

	case *ast.IfStatement:
		cond, err := l.linkExpr(s.Condition, l.reg.Bool())
		if err != nil {
			return nil, err
		}
		stmt := &If{Cond: cond}
		if stmt.Then, err = l.linkStmt(s.Consequence); err != nil {
			return nil, err
		}
		if s.Alternative != nil {
			if stmt.Else, err = l.linkStmt(s.Alternative); err != nil {
				return nil, err
			}
		}
		return stmt, nil

	case *ast.WhileStatement:
		cond, err := l.linkExpr(s.Condition, l.reg.Bool())
		if err != nil {
			return nil, err
		}
		body, err := l.loopBody(s.Body)
		if err != nil {
			return nil, err
		}
		return &Loop{Cond: cond, Body: body}, nil

	case *ast.ForStatement:
		return l.forLoop(s)

	case *ast.ReturnStatement:
		if l.fn == nil {
			return nil, errorAt(s, "return outside of a function")
		}
		if l.fn.Return == l.reg.Void() {
			if s.Value != nil {
				return nil, errorAt(s, "void function '%s' cannot return a value", l.fn.Name)
			}
			return &Return{}, nil
		}
		if s.Value == nil {
			return nil, errorAt(s, "function '%s' must return a value", l.fn.Name)
		}
		v, err := l.linkExpr(s.Value, l.fn.Return)
		if err != nil {
			return nil, err
		}
		return &Return{Value: v}, nil

	case *ast.BreakStatement:
		if l.loops == 0 {
			return nil, errorAt(s, "break outside of a loop")
		}
		return &Break{}, nil

	case *ast.ContinueStatement:
		if l.loops == 0 {
			return nil, errorAt(s, "continue outside of a loop")
		}
		return &Continue{}, nil

	case *ast.FunctionDeclaration:
		return nil, errorAt(s, "function '%s' must be declared at the top level", s.Name.Value)
	}
	return nil, errorAt(s, "unsupported statement %s", s.String())
}

func (l *Linker) block(stmts []ast.Statement) (*Block, error) {
	outer := l.scope
	l.scope = outer.NewScope(BlockScope)
	defer func() { l.scope = outer }()

	b := &Block{Scope: l.scope}
	for _, s := range stmts {
		stmt, err := l.linkStmt(s)
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, stmt)
	}
	return b, nil
}

func (l *Linker) loopBody(s ast.Statement) (Stmt, error) {
	l.loops++
	defer func() { l.loops-- }()
	return l.linkStmt(s)
}

func (l *Linker) forLoop(s *ast.ForStatement) (Stmt, error) {
	outer := l.scope
	l.scope = outer.NewScope(BlockScope)
	defer func() { l.scope = outer }()

	loop := &Loop{Scope: l.scope}
	if s.Init != nil {
		init, err := l.linkStmt(s.Init)
		if err != nil {
			return nil, err
		}
		loop.Init = []Stmt{init}
	}
	if s.Condition != nil {
		cond, err := l.linkExpr(s.Condition, l.reg.Bool())
		if err != nil {
			return nil, err
		}
		loop.Cond = cond
	}
	if len(s.Post) > 0 {
		post, err := l.linkList(s.Post, types.Unknown)
		if err != nil {
			return nil, err
		}
		loop.Post = post
	}
	body, err := l.loopBody(s.Body)
	if err != nil {
		return nil, err
	}
	loop.Body = body
	return loop, nil
}
