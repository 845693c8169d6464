package linker

import (
	"fmt"

	"github.com/zurustar/clamb/pkg/compiler/types"
)

// ScopeKind tells how a scope's variables are laid out.
type ScopeKind int

const (
	// GlobalScope variables live in the program's global context.
	GlobalScope ScopeKind = iota
	// FunctionScope starts a new frame: parameters first, then locals.
	FunctionScope
	// BlockScope variables follow the enclosing scope's variables in the same frame.
	BlockScope
)

// Variable is a named (or temporary) slot with a fixed offset.
// Offsets are meaningful only after CommitOffsets.
type Variable struct {
	Name   string
	Type   types.ScriptType
	Offset int
	Global bool
	Temp   bool

	scope *Scope
}

// Scope owns its variables and child scopes. The parent link is only used
// for outward name lookup.
type Scope struct {
	kind     ScopeKind
	parent   *Scope
	children []*Scope
	names    map[string]*Variable
	vars     []*Variable // declaration order, temporaries included
	end      int
}

// NewGlobalScope creates a root scope.
func NewGlobalScope() *Scope {
	return &Scope{kind: GlobalScope, names: make(map[string]*Variable)}
}

// NewScope creates a nested scope of the given kind.
func (s *Scope) NewScope(kind ScopeKind) *Scope {
	child := &Scope{kind: kind, parent: s, names: make(map[string]*Variable)}
	s.children = append(s.children, child)
	return child
}

// Detach removes s from its parent's children. Names of the parent stay
// visible from s, but the parent no longer lays s out.
func (s *Scope) Detach() {
	if s.parent == nil {
		return
	}
	kids := s.parent.children
	for i, c := range kids {
		if c == s {
			s.parent.children = append(kids[:i:i], kids[i+1:]...)
			return
		}
	}
}

// Kind returns the layout kind.
func (s *Scope) Kind() ScopeKind { return s.kind }

// Parent returns the enclosing scope, nil for a root.
func (s *Scope) Parent() *Scope { return s.parent }

// Root walks up to the outermost scope.
func (s *Scope) Root() *Scope {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// Variables returns the scope's own variables in declaration order.
func (s *Scope) Variables() []*Variable { return s.vars }

// Lookup resolves name in s and then outward. Locals of an enclosing
// function are not visible from a nested function scope.
func (s *Scope) Lookup(name string) *Variable {
	crossed := false
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.names[name]; ok && (!crossed || v.Global) {
			return v
		}
		if sc.kind == FunctionScope {
			crossed = true
		}
	}
	return nil
}

// Declare adds a named variable. Redeclaring a name in the same scope fails.
func (s *Scope) Declare(name string, t types.ScriptType) (*Variable, error) {
	if _, ok := s.names[name]; ok {
		return nil, fmt.Errorf("redeclaration of '%s'", name)
	}
	v := s.add(name, t)
	s.names[name] = v
	return v, nil
}

// NewTemp adds an anonymous variable that lives until the end of the scope.
func (s *Scope) NewTemp(t types.ScriptType) *Variable {
	v := s.add("", t)
	v.Temp = true
	return v
}

func (s *Scope) add(name string, t types.ScriptType) *Variable {
	v := &Variable{Name: name, Type: t, Global: s.kind == GlobalScope, scope: s, Offset: -1}
	s.vars = append(s.vars, v)
	return v
}

// CommitOffsets assigns offsets once every declaration is known and returns
// the number of slots needed.
//
// For a global scope the result is the size of the global region; nested
// block scopes of global code are laid out from zero in the frame of the
// global segment and are measured by FrameSize. For a function scope the
// result is the frame size without temporaries of the code extractor.
// Sibling scopes share slots; a child starts where its parent's own
// variables end.
func (s *Scope) CommitOffsets() int {
	switch s.kind {
	case GlobalScope:
		for i, v := range s.vars {
			v.Offset = i
		}
		s.end = len(s.vars)
		return s.end
	default:
		return s.commit(0)
	}
}

// FrameSize returns the local frame need of the global code's nested blocks
// after CommitOffsets.
func (s *Scope) FrameSize() int {
	size := 0
	for _, c := range s.children {
		if c.kind == BlockScope {
			size = max(size, c.commit(0))
		}
	}
	return size
}

func (s *Scope) commit(base int) int {
	for i, v := range s.vars {
		v.Offset = base + i
	}
	s.end = base + len(s.vars)
	size := s.end
	for _, c := range s.children {
		if c.kind == FunctionScope {
			continue
		}
		size = max(size, c.commit(s.end))
	}
	return size
}
