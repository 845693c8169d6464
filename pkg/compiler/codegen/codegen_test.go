package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zurustar/clamb/pkg/compiler/lexer"
	"github.com/zurustar/clamb/pkg/compiler/linker"
	"github.com/zurustar/clamb/pkg/compiler/parser"
	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/opcode"
	"github.com/zurustar/clamb/pkg/stdlib"
	"github.com/zurustar/clamb/pkg/vm"
)

func newRegistry(t *testing.T) *types.Registry {
	t.Helper()
	reg := types.New()
	if err := stdlib.Register(reg); err != nil {
		t.Fatalf("stdlib.Register: %v", err)
	}
	return reg
}

func newParser(t *testing.T, reg *types.Registry, src string) *parser.Parser {
	t.Helper()
	tokens, err := lexer.New(src).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	return parser.New(tokens, parser.WithTypeNames(reg.IsTypeName))
}

func linkUnit(t *testing.T, reg *types.Registry, src string) *linker.Unit {
	t.Helper()
	p := newParser(t, reg, src)
	tree := p.ParseProgram()
	if p.Err() != nil {
		t.Fatalf("ParseProgram: %v", p.Err())
	}
	unit, err := linker.New(reg).LinkProgram(tree)
	if err != nil {
		t.Fatalf("LinkProgram: %v", err)
	}
	return unit
}

func linkExpression(t *testing.T, reg *types.Registry, global *linker.Scope, src string) *linker.Expression {
	t.Helper()
	p := newParser(t, reg, src)
	exprs := p.ParseExpressionList()
	if p.Err() != nil {
		t.Fatalf("ParseExpressionList: %v", p.Err())
	}
	e, err := linker.New(reg).LinkExpression(global, exprs, types.Unknown)
	if err != nil {
		t.Fatalf("LinkExpression: %v", err)
	}
	return e
}

func code(seg *vm.Segment) []string {
	out := make([]string, len(seg.Code))
	for i, op := range seg.Code {
		out[i] = op.String()
	}
	return out
}

// callTargets returns the names bound to seg's Call commands in order.
func callTargets(t *testing.T, seg *vm.Segment) []string {
	t.Helper()
	var names []string
	for pc, op := range seg.Code {
		if op.Cmd != opcode.Call {
			continue
		}
		target := seg.Target(pc)
		if target == nil {
			t.Fatalf("%s: call at %d is unbound", seg.Name, pc)
		}
		if s, ok := target.(*vm.Segment); ok {
			names = append(names, "script:"+s.Name)
		} else {
			names = append(names, "native:"+target.(*vm.NativeFunction).Name)
		}
	}
	return names
}

func TestGlobalCodeAndTeardown(t *testing.T) {
	reg := newRegistry(t)
	unit := linkUnit(t, reg, "int a = 1;\nlong b;")

	global, teardown, functions, err := New(reg).Program(unit)
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	if len(functions) != 0 {
		t.Errorf("expected no function segments, got %d", len(functions))
	}

	want := []string{"Declare G0 <- K0", "Declare G1 <- K1", "Return"}
	if diff := cmp.Diff(want, code(global)); diff != "" {
		t.Errorf("global code mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]vm.Value{int32(1), int64(0)}, global.Consts); diff != "" {
		t.Errorf("constants mismatch (-want +got):\n%s", diff)
	}

	// globals die in reverse declaration order once the program is cleaned up
	want = []string{"Destroy G1", "Destroy G0", "Return"}
	if diff := cmp.Diff(want, code(teardown)); diff != "" {
		t.Errorf("teardown code mismatch (-want +got):\n%s", diff)
	}
}

func TestFunctionSegment(t *testing.T) {
	reg := newRegistry(t)
	unit := linkUnit(t, reg, "int sq(int n) { return n * n; }")

	_, _, functions, err := New(reg).Program(unit)
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	seg := functions[0]
	if seg.Name != "sq" || seg.Signature != "int" || seg.Params != 1 || !seg.ReturnsValue {
		t.Errorf("segment header = %s(%s) params=%d returns=%v", seg.Name, seg.Signature, seg.Params, seg.ReturnsValue)
	}

	mul := reg.FindFunction("*", "int,int")
	want := []string{
		fmt.Sprintf("Call L1 <- L0, L0 fn#%d", mul),
		"Move L2 <- L1",
		"Destroy L0",
		"Return <- L2",
		"Destroy L0",
	}
	if diff := cmp.Diff(want, code(seg)); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if seg.FrameSize != 3 {
		t.Errorf("FrameSize = %d, want 3", seg.FrameSize)
	}
}

func TestConditionalJumps(t *testing.T) {
	reg := newRegistry(t)
	e := linkExpression(t, reg, linker.NewGlobalScope(), "1 == 1 ? 2 : 3")

	seg, err := New(reg).Expression(e)
	if err != nil {
		t.Fatalf("Expression: %v", err)
	}

	eq := reg.FindFunction("==", "int,int")
	want := []string{
		fmt.Sprintf("Call L1 <- K0, K0 fn#%d", eq),
		"JumpIfFalse <- L1 @4",
		"Move L0 <- K1",
		"Jump @5",
		"Move L0 <- K2",
		"Return <- L0",
	}
	if diff := cmp.Diff(want, code(seg)); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if !seg.ReturnsValue {
		t.Error("expression segment must return its value")
	}
}

func TestForwardAndMutualCallsAreBound(t *testing.T) {
	reg := newRegistry(t)
	unit := linkUnit(t, reg, `
bool isEven(int n);
bool isOdd(int n) { return n == 0 ? false : isEven(n - 1); }
bool isEven(int n) { return n == 0 ? true : isOdd(n - 1); }
bool r = isOdd(3);
`)

	global, _, functions, err := New(reg).Program(unit)
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	for _, seg := range append(functions, global) {
		if pcs := seg.Unbound(); len(pcs) != 0 {
			t.Errorf("%s has unbound calls at %v\n%s", seg.Name, pcs, seg.Listing())
		}
	}

	byName := map[string]*vm.Segment{}
	for _, seg := range functions {
		byName[seg.Name] = seg
	}
	want := []string{"native:==", "native:-", "script:isEven"}
	if diff := cmp.Diff(want, callTargets(t, byName["isOdd"])); diff != "" {
		t.Errorf("isOdd calls mismatch (-want +got):\n%s", diff)
	}
	want = []string{"native:==", "native:-", "script:isOdd"}
	if diff := cmp.Diff(want, callTargets(t, byName["isEven"])); diff != "" {
		t.Errorf("isEven calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"script:isOdd"}, callTargets(t, global)); diff != "" {
		t.Errorf("global calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDeferredCallsWaitForResolve(t *testing.T) {
	reg := newRegistry(t)
	id, err := reg.DeclareScriptFunction("later", nil, reg.MustType("int"))
	if err != nil {
		t.Fatalf("DeclareScriptFunction: %v", err)
	}
	fn := reg.Function(id)

	target := vm.NewSegment("later", id)
	x := New(reg, WithProgram(func(want int) (*vm.Segment, bool) {
		return target, want == id
	}))

	seg := vm.NewSegment("<caller>", opcode.NoFunc)
	pc := seg.Emit(opcode.OpCode{Cmd: opcode.Call, Dst: opcode.L(0), Func: id})
	x.bindCall(seg, pc, fn)

	if x.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", x.Pending())
	}
	if seg.Target(pc) != nil {
		t.Fatal("script call bound before Resolve")
	}

	if err := x.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if x.Pending() != 0 {
		t.Errorf("Pending after Resolve = %d, want 0", x.Pending())
	}
	if seg.Target(pc) != vm.Callable(target) {
		t.Errorf("call bound to %v, want the later segment", seg.Target(pc))
	}
}

func TestNativeCallsBindImmediately(t *testing.T) {
	reg := newRegistry(t)
	plus := reg.Function(reg.FindFunction("+", "int,int"))

	x := New(reg)
	seg := vm.NewSegment("<caller>", opcode.NoFunc)
	pc := seg.Emit(opcode.OpCode{Cmd: opcode.Call, Dst: opcode.L(0), Func: plus.ID})
	x.bindCall(seg, pc, plus)

	if x.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", x.Pending())
	}
	if seg.Target(pc) == nil {
		t.Error("native call not bound")
	}
}

func TestExpressionCallsProgramFunctions(t *testing.T) {
	reg := newRegistry(t)
	unit := linkUnit(t, reg, "int twice(int n) { return n + n; }")

	_, _, functions, err := New(reg).Program(unit)
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	lookup := func(id int) (*vm.Segment, bool) {
		for _, seg := range functions {
			if seg.FuncID == id {
				return seg, true
			}
		}
		return nil, false
	}

	e := linkExpression(t, reg, unit.Global, "twice(4)")
	seg, err := New(reg, WithProgram(lookup)).Expression(e)
	if err != nil {
		t.Fatalf("Expression: %v", err)
	}
	if diff := cmp.Diff([]string{"script:twice"}, callTargets(t, seg)); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDeclaredButNeverDefined(t *testing.T) {
	reg := newRegistry(t)
	unit := linkUnit(t, reg, "int f(long n);\nint x = f(1L);")

	_, _, _, err := New(reg).Program(unit)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "function 'f(long)' is declared but never defined") {
		t.Errorf("error = %v", err)
	}
}

func TestLoopJumpsStayInsideSegment(t *testing.T) {
	reg := newRegistry(t)
	unit := linkUnit(t, reg, `
long sum(int n) {
	long s = 0L;
	for (int i = 0; i < n; i += 1) {
		if (i == 3) continue;
		if (i == 8) break;
		s += i;
	}
	while (true) { break; }
	return s;
}
`)

	_, _, functions, err := New(reg).Program(unit)
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	seg := functions[0]
	for pc, op := range seg.Code {
		switch op.Cmd {
		case opcode.Jump, opcode.JumpIfFalse, opcode.JumpIfTrue:
			if op.Jump < 0 || op.Jump > len(seg.Code) {
				t.Errorf("jump at %d targets %d\n%s", pc, op.Jump, seg.Listing())
			}
		}
	}
}
