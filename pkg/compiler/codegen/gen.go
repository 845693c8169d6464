package codegen

import (
	"github.com/zurustar/clamb/pkg/compiler/linker"
	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/opcode"
	"github.com/zurustar/clamb/pkg/vm"
)

// loop tracks the pending jumps of one enclosing loop.
type loop struct {
	depth     int // len(scopes) inside the loop
	breaks    []int
	continues []int
}

// gen emits the code of one segment. Scratch slots for intermediate results
// follow the variables of the frame; they are reused from statement to
// statement and the frame is sized for the largest need.
type gen struct {
	x        *Extractor
	seg      *vm.Segment
	teardown *vm.Segment // global destructors go here instead of the segment

	base, next, peak int

	scopes []*linker.Scope
	loops  []*loop
}

func (x *Extractor) newGen(seg *vm.Segment, vars int) *gen {
	return &gen{x: x, seg: seg, base: vars, next: vars, peak: vars}
}

func (g *gen) finish() {
	g.seg.FrameSize = g.peak
}

func (g *gen) emit(op opcode.OpCode) int {
	if op.Func == 0 && op.Cmd != opcode.Call && op.Cmd != opcode.Destroy {
		op.Func = opcode.NoFunc
	}
	return g.seg.Emit(op)
}

func (g *gen) reset() { g.next = g.base }

func (g *gen) scratch() opcode.Operand {
	o := opcode.L(g.next)
	g.next++
	g.peak = max(g.peak, g.next)
	return o
}

func (g *gen) here() int { return len(g.seg.Code) }

// jumpForward emits a jump whose target is patched later.
func (g *gen) jumpForward(cmd opcode.Cmd, args ...opcode.Operand) int {
	return g.emit(opcode.OpCode{Cmd: cmd, Args: args, Jump: -1})
}

// patchForward points the jump at mark to the current position.
func (g *gen) patchForward(mark int) {
	g.seg.Code[mark].Jump = g.here()
}

func (g *gen) jumpTo(target int) {
	g.emit(opcode.OpCode{Cmd: opcode.Jump, Jump: target})
}

func (g *gen) konst(v vm.Value) opcode.Operand {
	return opcode.K(g.seg.AddConst(v))
}

func varOperand(v *linker.Variable) opcode.Operand {
	if v.Global {
		return opcode.G(v.Offset)
	}
	return opcode.L(v.Offset)
}

// ----------------------------------------------------------------------------
// Statements

func (g *gen) stmts(list []linker.Stmt) {
	for _, s := range list {
		g.stmt(s)
	}
}

func (g *gen) stmt(s linker.Stmt) {
	g.reset()
	switch s := s.(type) {
	case *linker.ExprStmt:
		for _, n := range s.Exprs {
			g.reset()
			g.expr(n)
		}

	case *linker.Block:
		g.block(s)

	case *linker.If:
		jf := g.jumpForward(opcode.JumpIfFalse, g.expr(s.Cond))
		g.stmt(s.Then)
		if s.Else == nil {
			g.patchForward(jf)
			return
		}
		end := g.jumpForward(opcode.Jump)
		g.patchForward(jf)
		g.stmt(s.Else)
		g.patchForward(end)

	case *linker.Loop:
		g.loop(s)

	case *linker.Return:
		ret := opcode.Discard
		if s.Value != nil {
			ret = g.expr(s.Value)
		}
		g.ret(ret)

	case *linker.Break:
		l := g.loops[len(g.loops)-1]
		g.unwindTo(l.depth)
		l.breaks = append(l.breaks, g.jumpForward(opcode.Jump))

	case *linker.Continue:
		l := g.loops[len(g.loops)-1]
		g.unwindTo(l.depth)
		l.continues = append(l.continues, g.jumpForward(opcode.Jump))

	default:
		panic("codegen: unknown statement")
	}
}

func (g *gen) block(b *linker.Block) {
	g.scopes = append(g.scopes, b.Scope)
	g.stmts(b.Stmts)
	g.scopes = g.scopes[:len(g.scopes)-1]
	if g.teardown != nil && b.Scope.Kind() == linker.GlobalScope {
		g.destroyInto(g.teardown, b.Scope)
		return
	}
	g.destroy(b.Scope)
}

func (g *gen) loop(s *linker.Loop) {
	if s.Scope != nil {
		g.scopes = append(g.scopes, s.Scope)
	}
	for _, init := range s.Init {
		g.stmt(init)
	}

	l := &loop{depth: len(g.scopes)}
	g.loops = append(g.loops, l)

	start := g.here()
	exit := -1
	if s.Cond != nil {
		g.reset()
		exit = g.jumpForward(opcode.JumpIfFalse, g.expr(s.Cond))
	}
	g.stmt(s.Body)

	for _, c := range l.continues {
		g.patchForward(c)
	}
	for _, n := range s.Post {
		g.reset()
		g.expr(n)
	}
	g.jumpTo(start)

	if exit >= 0 {
		g.patchForward(exit)
	}
	for _, b := range l.breaks {
		g.patchForward(b)
	}
	g.loops = g.loops[:len(g.loops)-1]

	if s.Scope != nil {
		g.scopes = g.scopes[:len(g.scopes)-1]
		g.destroy(s.Scope)
	}
}

// ret leaves the segment after destroying every active scope. The result is
// moved out of the frame's variables first.
func (g *gen) ret(v opcode.Operand) {
	if v.Space != opcode.None && g.hasVariables(0) {
		tmp := g.scratch()
		g.emit(opcode.OpCode{Cmd: opcode.Move, Dst: tmp, Args: []opcode.Operand{v}})
		v = tmp
	}
	g.unwindTo(0)
	op := opcode.OpCode{Cmd: opcode.Return}
	if v.Space != opcode.None {
		op.Args = []opcode.Operand{v}
	}
	g.emit(op)
}

func (g *gen) hasVariables(depth int) bool {
	for _, sc := range g.scopes[depth:] {
		if len(sc.Variables()) > 0 {
			return true
		}
	}
	return false
}

// unwindTo destroys the active scopes above depth, innermost first, without
// popping them.
func (g *gen) unwindTo(depth int) {
	for i := len(g.scopes) - 1; i >= depth; i-- {
		if g.scopes[i].Kind() == linker.GlobalScope {
			continue
		}
		g.destroy(g.scopes[i])
	}
}

func (g *gen) destroy(sc *linker.Scope) {
	g.destroyInto(g.seg, sc)
}

// destroyInto ends the lifetimes of sc's variables in reverse declaration order.
func (g *gen) destroyInto(seg *vm.Segment, sc *linker.Scope) {
	vars := sc.Variables()
	for i := len(vars) - 1; i >= 0; i-- {
		g.destroyVar(seg, vars[i], g.destructor(vars[i]))
	}
}

func (g *gen) destructor(v *linker.Variable) *types.Function {
	if v.Type.IsRef() {
		return nil
	}
	return g.x.reg.Destructor(v.Type.ID)
}

func (g *gen) destroyVar(seg *vm.Segment, v *linker.Variable, dtor *types.Function) {
	op := opcode.OpCode{Cmd: opcode.Destroy, Dst: varOperand(v), Func: opcode.NoFunc}
	if dtor != nil {
		op.Func = dtor.ID
	}
	pc := seg.Emit(op)
	if dtor != nil {
		g.x.bindCall(seg, pc, dtor)
	}
}

// redeclare destroys the previous occupant of a temporary before it is
// declared again. Temporaries belong to the enclosing scope, so one built in
// a loop condition or post expression is declared once per iteration.
// Destroy skips a slot that is not live.
func (g *gen) redeclare(v *linker.Variable) {
	if !v.Temp {
		return
	}
	if dtor := g.destructor(v); dtor != nil {
		g.destroyVar(g.seg, v, dtor)
	}
}

// ----------------------------------------------------------------------------
// Expressions

// expr emits n and returns the operand holding its value.
func (g *gen) expr(n linker.Node) opcode.Operand {
	switch n := n.(type) {
	case *linker.Const:
		return g.konst(n.Value)

	case *linker.VarRef:
		return varOperand(n.Var)

	case *linker.Call:
		args := make([]opcode.Operand, len(n.Args))
		for i, a := range n.Args {
			args[i] = g.expr(a)
		}
		return g.call(n.Fn.ID, n.Fn.Return != g.x.reg.Void(), args, func(pc int) { g.x.bindCall(g.seg, pc, n.Fn) })

	case *linker.Cast:
		arg := g.expr(n.Arg)
		return g.call(n.Fn.ID, true, []opcode.Operand{arg}, func(pc int) { g.x.bindCall(g.seg, pc, n.Fn) })

	case *linker.Construct:
		obj := varOperand(n.Temp)
		args := make([]opcode.Operand, 0, len(n.Args)+1)
		args = append(args, opcode.Discard)
		for _, a := range n.Args {
			args = append(args, g.expr(a))
		}
		g.redeclare(n.Temp)
		g.emit(opcode.OpCode{Cmd: opcode.Declare, Dst: obj, Args: []opcode.Operand{g.konst(g.x.zero(n.Temp))}})
		args[0] = g.addrOf(obj)
		g.call(n.Ctor.ID, false, args, func(pc int) { g.x.bindCall(g.seg, pc, n.Ctor) })
		return obj

	case *linker.AddrOf:
		return g.ref(n.X)

	case *linker.Deref:
		r := g.expr(n.X)
		dst := g.scratch()
		g.emit(opcode.OpCode{Cmd: opcode.Load, Dst: dst, Args: []opcode.Operand{r}})
		return dst

	case *linker.Cond:
		dst := opcode.Discard
		if n.T != g.x.reg.Void() {
			dst = g.scratch()
		}
		jf := g.jumpForward(opcode.JumpIfFalse, g.expr(n.Cond))
		g.move(dst, g.expr(n.Then))
		end := g.jumpForward(opcode.Jump)
		g.patchForward(jf)
		g.move(dst, g.expr(n.Else))
		g.patchForward(end)
		return dst

	case *linker.Logical:
		dst := g.scratch()
		g.move(dst, g.expr(n.Left))
		cmd := opcode.JumpIfTrue
		if n.And {
			cmd = opcode.JumpIfFalse
		}
		skip := g.jumpForward(cmd, dst)
		g.move(dst, g.expr(n.Right))
		g.patchForward(skip)
		return dst

	case *linker.Assign:
		return g.assign(n)
	}
	panic("codegen: unknown node " + linker.Dump(n))
}

// ref emits an addressable node and returns an operand holding a reference to it.
func (g *gen) ref(n linker.Node) opcode.Operand {
	switch n := n.(type) {
	case *linker.Deref:
		return g.expr(n.X)
	case *linker.Assign:
		if d, ok := n.Target.(*linker.Deref); ok {
			r := g.expr(d.X)
			v := g.expr(n.Value)
			g.emit(opcode.OpCode{Cmd: opcode.Store, Args: []opcode.Operand{r, v}})
			return r
		}
	}
	return g.addrOf(g.expr(n))
}

func (g *gen) move(dst, src opcode.Operand) {
	if dst.Space == opcode.None {
		return
	}
	g.emit(opcode.OpCode{Cmd: opcode.Move, Dst: dst, Args: []opcode.Operand{src}})
}

func (g *gen) addrOf(slot opcode.Operand) opcode.Operand {
	dst := g.scratch()
	g.emit(opcode.OpCode{Cmd: opcode.AddrOf, Dst: dst, Args: []opcode.Operand{slot}})
	return dst
}

func (g *gen) call(fnID int, returns bool, args []opcode.Operand, bind func(pc int)) opcode.Operand {
	dst := opcode.Discard
	if returns {
		dst = g.scratch()
	}
	pc := g.emit(opcode.OpCode{Cmd: opcode.Call, Dst: dst, Args: args, Func: fnID})
	bind(pc)
	return dst
}

func (g *gen) assign(n *linker.Assign) opcode.Operand {
	if d, ok := n.Target.(*linker.Deref); ok {
		r := g.expr(d.X)
		v := g.expr(n.Value)
		g.emit(opcode.OpCode{Cmd: opcode.Store, Args: []opcode.Operand{r, v}})
		return v
	}

	target := n.Target.(*linker.VarRef)
	slot := varOperand(target.Var)

	var value opcode.Operand
	if n.Value != nil {
		value = g.expr(n.Value)
	}
	if n.Decl {
		g.redeclare(target.Var)
	}
	switch {
	case !n.Decl:
		g.emit(opcode.OpCode{Cmd: opcode.Assign, Dst: slot, Args: []opcode.Operand{value}})
	case n.Ctor != nil:
		g.emit(opcode.OpCode{Cmd: opcode.Declare, Dst: slot, Args: []opcode.Operand{g.konst(n.Zero)}})
		args := []opcode.Operand{g.addrOf(slot)}
		if n.Value != nil {
			args = append(args, value)
		}
		g.call(n.Ctor.ID, false, args, func(pc int) { g.x.bindCall(g.seg, pc, n.Ctor) })
	default:
		g.emit(opcode.OpCode{Cmd: opcode.Declare, Dst: slot, Args: []opcode.Operand{value}})
	}
	return slot
}

func (x *Extractor) zero(v *linker.Variable) vm.Value {
	if v.Type.IsRef() {
		return vm.Ref{}
	}
	if t := x.reg.Type(v.Type.ID); t != nil {
		return t.Zero
	}
	return nil
}
