package stdlib

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/clamb/pkg/compiler"
	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/opcode"
	"github.com/zurustar/clamb/pkg/vm"
)

func newRegistry(t *testing.T, opts ...Option) *types.Registry {
	t.Helper()
	reg := types.New()
	if err := Register(reg, opts...); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func call(t *testing.T, reg *types.Registry, name, sig string, args ...vm.Value) (vm.Value, error) {
	t.Helper()
	id := reg.FindFunction(name, sig)
	if id < 0 {
		t.Fatalf("%s(%s) is not registered", name, sig)
	}
	return reg.Function(id).Native(args)
}

func TestOperators(t *testing.T) {
	reg := newRegistry(t)

	tests := []struct {
		name string
		sig  string
		args []vm.Value
		want vm.Value
	}{
		{"+", "int,int", []vm.Value{int32(2), int32(3)}, int32(5)},
		{"-", "long,long", []vm.Value{int64(2), int64(3)}, int64(-1)},
		{"*", "double,double", []vm.Value{1.5, 2.0}, 3.0},
		{"/", "int,int", []vm.Value{int32(7), int32(2)}, int32(3)},
		{"/", "float,float", []vm.Value{float32(1), float32(4)}, float32(0.25)},
		{"%", "long,long", []vm.Value{int64(7), int64(4)}, int64(3)},
		{"<<", "int,int", []vm.Value{int32(1), int32(4)}, int32(16)},
		{"&", "int,int", []vm.Value{int32(6), int32(3)}, int32(2)},
		{"~", "int", []vm.Value{int32(0)}, int32(-1)},
		{"-", "double", []vm.Value{2.5}, -2.5},
		{"<", "int,int", []vm.Value{int32(1), int32(2)}, true},
		{">=", "double,double", []vm.Value{1.0, 2.0}, false},
		{"!", "bool", []vm.Value{false}, true},
		{"==", "String,String", []vm.Value{"a", "a"}, true},
		{"+", "String,String", []vm.Value{"ab", "cd"}, "abcd"},
		{"[]", "String,int", []vm.Value{"日本語", int32(1)}, "本"},
		{"length", "String", []vm.Value{"日本語"}, int32(3)},
		{"substr", "String,int,int", []vm.Value{"hello", int32(1), int32(10)}, "ello"},
		{"find", "String,String", []vm.Value{"日本語", "語"}, int32(2)},
		{"upper", "String", []vm.Value{"abc"}, "ABC"},
		{"String", "int", []vm.Value{int32(42)}, "42"},
		{"abs", "long", []vm.Value{int64(-4)}, int64(4)},
		{"max", "int,int", []vm.Value{int32(4), int32(9)}, int32(9)},
		{"sqrt", "double", []vm.Value{9.0}, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name+"("+tt.sig+")", func(t *testing.T) {
			got, err := call(t, reg, tt.name, tt.sig, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFaults(t *testing.T) {
	reg := newRegistry(t)

	tests := []struct {
		name     string
		sig      string
		args     []vm.Value
		wantType vm.ErrorType
	}{
		{"/", "int,int", []vm.Value{int32(1), int32(0)}, vm.ErrorDivisionByZero},
		{"%", "long,long", []vm.Value{int64(1), int64(0)}, vm.ErrorDivisionByZero},
		{"[]", "String,int", []vm.Value{"ab", int32(2)}, vm.ErrorIndexOutOfRange},
		{"<<", "int,int", []vm.Value{int32(1), int32(-1)}, vm.ErrorInvalidOperation},
		{"+", "int,int", []vm.Value{int64(1), int32(1)}, vm.ErrorInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name+"("+tt.sig+")", func(t *testing.T) {
			_, err := call(t, reg, tt.name, tt.sig, tt.args...)
			var rtErr *vm.RuntimeError
			if !errors.As(err, &rtErr) {
				t.Fatalf("expected *vm.RuntimeError, got %v", err)
			}
			if rtErr.Type != tt.wantType {
				t.Errorf("error type = %s, want %s", rtErr.Type, tt.wantType)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	reg := newRegistry(t)

	for _, c := range conversions {
		t.Run(c.from+"->"+c.to, func(t *testing.T) {
			from, to := reg.MustType(c.from), reg.MustType(c.to)
			cost, ok := reg.ConversionCost(from.ID, to.ID)
			if !ok || cost != c.cost {
				t.Errorf("ConversionCost = %d, %v; want %d", cost, ok, c.cost)
			}
			if fn := reg.CastFunction(from, to.ID); fn == nil {
				t.Errorf("no casting function %s(%s)", c.to, c.from)
			}
		})
	}

	got, err := call(t, reg, "int", "double", 3.9)
	if err != nil || got != int32(3) {
		t.Errorf("int(3.9) = %v, %v; want 3", got, err)
	}
	got, err = call(t, reg, "bool", "long", int64(0))
	if err != nil || got != false {
		t.Errorf("bool(0L) = %v, %v; want false", got, err)
	}
}

func TestRegisterTwice(t *testing.T) {
	reg := newRegistry(t)
	err := Register(reg)
	if !errors.Is(err, types.ErrDuplicateFunction) {
		t.Errorf("second Register error = %v, want ErrDuplicateFunction", err)
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, WithOutput(&out))

	if _, err := call(t, reg, "print", "String", "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := call(t, reg, "print", "double", 0.5); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "hi\n0.5\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPropertyIntegerArithmeticWraps(t *testing.T) {
	reg := newRegistry(t)
	add := reg.Function(reg.FindFunction("+", "int,int")).Native
	mul := reg.Function(reg.FindFunction("*", "int,int")).Native

	properties := gopter.NewProperties(nil)

	properties.Property("int + and * wrap like int32", prop.ForAll(
		func(a, b int32) bool {
			sum, err1 := add([]vm.Value{a, b})
			prod, err2 := mul([]vm.Value{a, b})
			return err1 == nil && err2 == nil && sum == a+b && prod == a*b
		},
		gen.Int32(),
		gen.Int32(),
	))

	properties.TestingRun(t)
}

// nativeTargets returns the native names bound to seg's commands of kind cmd.
func nativeTargets(seg *vm.Segment, cmd opcode.Cmd) []string {
	var names []string
	for pc, op := range seg.Code {
		if op.Cmd != cmd {
			continue
		}
		if nf, ok := seg.Target(pc).(*vm.NativeFunction); ok {
			names = append(names, nf.Name)
		}
	}
	return names
}

func TestStringLifetime(t *testing.T) {
	reg := newRegistry(t)
	str, _ := reg.Lookup("String")

	if f := reg.DefaultConstructor(str); f == nil || f.Name != "String.new" {
		t.Errorf("DefaultConstructor = %v", f)
	}
	if n := len(reg.Constructors(str)); n != 2 {
		t.Errorf("Constructors = %d, want 2", n)
	}
	if f := reg.Destructor(str); f == nil || f.Name != "String.free" {
		t.Errorf("Destructor = %v", f)
	}

	c := compiler.New(reg)
	prog, err := c.CompileProgram(`
String greeting;
String shout(String s) {
	String loud = s + "!";
	return loud;
}
`)
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}

	if diff := cmp.Diff([]string{"String.new"}, nativeTargets(prog.GlobalSegment(), opcode.Call)); diff != "" {
		t.Errorf("global calls mismatch (-want +got):\n%s", diff)
	}
	shout, _ := prog.Function(prog.FindFunction("shout", "String"))
	if diff := cmp.Diff([]string{"+", "String.copy"}, nativeTargets(shout, opcode.Call)); diff != "" {
		t.Errorf("shout calls mismatch (-want +got):\n%s", diff)
	}
	destroys := nativeTargets(shout, opcode.Destroy)
	if len(destroys) == 0 {
		t.Fatal("shout destroys nothing")
	}
	for _, name := range destroys {
		if name != "String.free" {
			t.Errorf("Destroy bound to %s, want String.free", name)
		}
	}

	ctx := context.Background()
	if err := prog.RunGlobalCode(ctx); err != nil {
		t.Fatalf("RunGlobalCode: %v", err)
	}
	task := vm.NewTask(prog)
	if err := task.RunFunction(ctx, shout.FuncID, vm.NewParamBuffer("hi")); err != nil {
		t.Fatalf("RunFunction: %v", err)
	}
	if v, _ := task.Result(); v != "hi!" {
		t.Errorf("shout(hi) = %v, want hi!", v)
	}
	e, err := c.CompileExpression("greeting", "String")
	if err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	if v, err := e.Eval(ctx); err != nil || v != "" {
		t.Errorf("greeting = %q, %v; want empty", v, err)
	}
	if err := prog.CleanupGlobalMemory(ctx); err != nil {
		t.Errorf("CleanupGlobalMemory: %v", err)
	}
}
