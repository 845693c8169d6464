package linker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/clamb/pkg/compiler/types"
)

func offsets(vars []*Variable) []int {
	out := make([]int, len(vars))
	for i, v := range vars {
		out[i] = v.Offset
	}
	return out
}

func declareN(s *Scope, n int) {
	for i := 0; i < n; i++ {
		s.NewTemp(types.Unknown)
	}
}

func TestFunctionFrameLayout(t *testing.T) {
	global := NewGlobalScope()
	declareN(global, 2)

	fn := global.NewScope(FunctionScope)
	declareN(fn, 2) // parameters
	first := fn.NewScope(BlockScope)
	declareN(first, 3)
	second := fn.NewScope(BlockScope)
	declareN(second, 1)
	nested := second.NewScope(BlockScope)
	declareN(nested, 1)

	if got := global.CommitOffsets(); got != 2 {
		t.Errorf("global size = %d, want 2", got)
	}
	if got := fn.CommitOffsets(); got != 5 {
		t.Errorf("frame size = %d, want 5", got)
	}

	got := [][]int{offsets(fn.Variables()), offsets(first.Variables()), offsets(second.Variables()), offsets(nested.Variables())}
	want := [][]int{{0, 1}, {2, 3, 4}, {2}, {3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestGlobalBlocksUseTheGlobalSegmentFrame(t *testing.T) {
	global := NewGlobalScope()
	declareN(global, 3)
	loop := global.NewScope(BlockScope)
	declareN(loop, 2)
	body := loop.NewScope(BlockScope)
	declareN(body, 1)
	fn := global.NewScope(FunctionScope)
	declareN(fn, 5)

	if got := global.CommitOffsets(); got != 3 {
		t.Errorf("global size = %d, want 3", got)
	}
	if got := global.FrameSize(); got != 3 {
		t.Errorf("frame size = %d, want 3 (functions excluded)", got)
	}
	if diff := cmp.Diff([]int{0, 1}, offsets(loop.Variables())); diff != "" {
		t.Errorf("loop offsets mismatch (-want +got):\n%s", diff)
	}
	if !global.Variables()[0].Global || loop.Variables()[0].Global {
		t.Error("only variables of the global scope itself are global")
	}
}

// buildTree turns shape into a function scope with nested blocks: block i+1
// hangs under block shape[i] mod (i+1) and declares shape[i] mod 4 slots.
func buildTree(shape []int) (*Scope, []*Scope) {
	fn := NewGlobalScope().NewScope(FunctionScope)
	declareN(fn, 1)
	nodes := []*Scope{fn}
	for i, n := range shape {
		child := nodes[n%(i+1)].NewScope(BlockScope)
		declareN(child, n%4)
		nodes = append(nodes, child)
	}
	return fn, nodes
}

func TestPropertyOffsetsDisjointAlongScopeChains(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("live variables never share a slot", prop.ForAll(
		func(shape []int) bool {
			fn, nodes := buildTree(shape)
			size := fn.CommitOffsets()

			for _, s := range nodes {
				seen := make(map[int]bool)
				for sc := s; sc != nil && sc.Kind() != GlobalScope; sc = sc.Parent() {
					for _, v := range sc.Variables() {
						if v.Offset < 0 || v.Offset >= size || seen[v.Offset] {
							return false
						}
						seen[v.Offset] = true
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 64)),
	))

	properties.Property("frame size is the deepest chain", prop.ForAll(
		func(shape []int) bool {
			fn, nodes := buildTree(shape)
			size := fn.CommitOffsets()

			deepest := 0
			for _, s := range nodes {
				n := 0
				for sc := s; sc != nil && sc.Kind() != GlobalScope; sc = sc.Parent() {
					n += len(sc.Variables())
				}
				deepest = max(deepest, n)
			}
			return size == deepest
		},
		gen.SliceOf(gen.IntRange(0, 64)),
	))

	properties.TestingRun(t)
}

func TestLinkExpressionDetachesItsScope(t *testing.T) {
	reg := newRegistry(t)
	unit := linkProgram(t, reg, "int a = 1;")
	before := len(unit.Global.children)

	for k := 0; k < 5; k++ {
		e, err := New(reg).LinkExpression(unit.Global, parseExprs(t, reg, "a + 1"), types.Unknown)
		if err != nil {
			t.Fatalf("LinkExpression: %v", err)
		}
		if e.Scope.Parent() != unit.Global {
			t.Error("expression scope lost its parent")
		}
	}
	if _, err := New(reg).LinkExpression(unit.Global, parseExprs(t, reg, "nope"), types.Unknown); err == nil {
		t.Fatal("expected an undefined identifier")
	}

	if got := len(unit.Global.children); got != before {
		t.Errorf("global scope has %d children, want %d", got, before)
	}
}
