package linker

import (
	"fmt"
	"sort"

	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/vm"
)

// Match ranks, best first.
const (
	matchExact     = iota // identical types
	matchBind             // reference taken or dropped, no new object
	matchComposite        // object constructed or materialized in a temporary
	matchCast             // casting function from the cost table
)

type match struct {
	rank int
	cost int
}

func (m match) worse(o match) bool {
	if m.rank != o.rank {
		return m.rank > o.rank
	}
	return m.cost > o.cost
}

// convert adapts n to type to. Without build it only reports whether and how
// well the conversion applies and allocates nothing.
func (l *Linker) convert(n Node, to types.ScriptType, build bool) (Node, match, bool) {
	from := n.Type()
	if from == to {
		return n, match{rank: matchExact}, true
	}
	if from.ID == to.ID {
		return l.bind(n, to, build)
	}
	if m, node, ok := l.construct(n, to, build); ok {
		return node, m, true
	}
	return l.cast(n, to, build)
}

// bind changes only the reference level.
func (l *Linker) bind(n Node, to types.ScriptType, build bool) (Node, match, bool) {
	from := n.Type()
	switch {
	case to.Ref < from.Ref:
		if build {
			for n.Type().Ref > to.Ref {
				n = &Deref{X: n}
			}
		}
		return n, match{rank: matchBind}, true

	case to.Ref == from.Ref+1:
		if Addressable(n) {
			if build {
				n = &AddrOf{X: n}
			}
			return n, match{rank: matchBind}, true
		}
		// a value must live in a slot before a reference can point to it
		if build {
			n = &AddrOf{X: l.materialize(n)}
		}
		return n, match{rank: matchComposite}, true
	}
	return nil, match{}, false
}

// materialize stores a non-addressable value in a new temporary.
func (l *Linker) materialize(n Node) Node {
	tmp := l.scope.NewTemp(n.Type())
	return &Assign{Target: &VarRef{Var: tmp}, Value: n, Decl: true}
}

// construct tries a converting constructor of the target type.
func (l *Linker) construct(n Node, to types.ScriptType, build bool) (match, Node, bool) {
	if to.Ref > 1 {
		return match{}, nil, false
	}
	for _, ctor := range l.reg.Constructors(to.ID) {
		if len(ctor.Params) != 2 || ctor.Params[1].ID != n.Type().ID {
			continue
		}
		arg, _, ok := l.convert(n, ctor.Params[1], build)
		if !ok {
			continue
		}
		if !build {
			return match{rank: matchComposite}, nil, true
		}
		var node Node = &Construct{
			Ctor: ctor,
			Temp: l.scope.NewTemp(to.Origin()),
			Args: []Node{arg},
		}
		if to.Ref == 1 {
			node = &AddrOf{X: node}
		}
		return match{rank: matchComposite}, node, true
	}
	return match{}, nil, false
}

// cast applies the registered conversion with its cost.
func (l *Linker) cast(n Node, to types.ScriptType, build bool) (Node, match, bool) {
	from := n.Type()
	if to.Ref > 1 {
		return nil, match{}, false
	}
	cost, ok := l.reg.ConversionCost(from.ID, to.ID)
	if !ok {
		return nil, match{}, false
	}
	fn := l.reg.CastFunction(from, to.ID)
	if fn == nil {
		return nil, match{}, false
	}
	arg, _, ok := l.convert(n, fn.Params[0], build)
	if !ok {
		return nil, match{}, false
	}
	m := match{rank: matchCast, cost: cost}
	if !build {
		return nil, m, true
	}
	var node Node = &Cast{Fn: fn, Arg: arg, To: fn.Return}
	if to.Ref == 1 {
		node = &AddrOf{X: l.materialize(node)}
	}
	return node, m, true
}

type candidate struct {
	fn    *types.Function
	worst match
	total int
}

// resolveCall selects among fns for the given arguments. A candidate whose
// parameters all match exactly is returned at once. Otherwise candidates are
// ordered by their worst argument conversion, then by total cast cost, with
// registration order breaking ties; every candidate tied with the best is
// returned so that the caller can choose by result type.
func (l *Linker) resolveCall(name string, fns []*types.Function, args []Node) ([]Node, error) {
	var cands []candidate
	for _, fn := range fns {
		if len(fn.Params) != len(args) {
			continue
		}
		c := candidate{fn: fn}
		ok := true
		for i, a := range args {
			_, m, applies := l.convert(a, fn.Params[i], false)
			if !applies {
				ok = false
				break
			}
			if m.worse(c.worst) {
				c.worst = m
			}
			c.total += m.cost
		}
		if !ok {
			continue
		}
		if c.worst.rank == matchExact {
			return []Node{&Call{Fn: fn, Args: args}}, nil
		}
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("no matching candidate for '%s(%s)'", name, l.argTypes(args))
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.worst.rank != b.worst.rank {
			return a.worst.rank < b.worst.rank
		}
		return a.total < b.total
	})

	var out []Node
	for _, c := range cands {
		if c.worst.rank != cands[0].worst.rank || c.total != cands[0].total {
			break
		}
		call := &Call{Fn: c.fn, Args: make([]Node, len(args))}
		for i, a := range args {
			call.Args[i], _, _ = l.convert(a, c.fn.Params[i], true)
		}
		out = append(out, call)
	}
	return out, nil
}

func (l *Linker) argTypes(args []Node) string {
	ts := make([]types.ScriptType, len(args))
	for i, a := range args {
		ts[i] = a.Type()
	}
	return l.reg.Signature(ts)
}

// chooseCandidate picks the candidate to use where expected is required.
// A candidate already of the expected type wins without any cast search.
// Otherwise the cheapest conversion of any candidate is applied.
func (l *Linker) chooseCandidate(cands []Node, expected types.ScriptType) (Node, error) {
	if len(cands) == 0 {
		return nil, fmt.Errorf("no matching candidate")
	}
	if expected.IsUnknown() || expected == l.reg.Void() {
		return cands[0], nil
	}
	for _, c := range cands {
		if c.Type() == expected {
			return c, nil
		}
	}

	l.castSearches++
	best := -1
	var bestMatch match
	for i, c := range cands {
		_, m, ok := l.convert(c, expected, false)
		if ok && (best < 0 || bestMatch.worse(m)) {
			best, bestMatch = i, m
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("Cannot cast the return type to '%s'", l.reg.TypeName(expected))
	}
	node, _, _ := l.convert(cands[best], expected, true)
	return node, nil
}

// zero returns the default value of a variable of type t.
func (l *Linker) zero(t types.ScriptType) vm.Value {
	if t.IsRef() {
		return vm.Ref{}
	}
	if typ := l.reg.Type(t.ID); typ != nil {
		return typ.Zero
	}
	return nil
}
