package types

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/zurustar/clamb/pkg/logger"
	"github.com/zurustar/clamb/pkg/vm"
)

// Registration failure codes returned by RegisterFunction and RegisterOperator.
const (
	ErrCodeUnknownType = -1
	ErrCodeDuplicate   = -2
	ErrCodeInvalid     = -3
)

var (
	// ErrUnknownType is wrapped by every failure to resolve a type name.
	ErrUnknownType = errors.New("unknown data type")
	// ErrDuplicateFunction is returned when a name+signature is registered twice.
	ErrDuplicateFunction = errors.New("function already registered")
)

// Function is a registered callable: a host native, a host operator, or a
// script function declared by the program being compiled.
type Function struct {
	ID       int
	Name     string
	Params   []ScriptType
	Return   ScriptType
	Native   vm.Native // nil for script functions
	Operator bool
	Script   bool
	Defined  bool // a script function whose body has been compiled
}

// Registry holds types, conversions and functions.
// It is not safe for concurrent mutation; all registration must finish
// before compilation that depends on it starts.
type Registry struct {
	types  []*Type
	byName map[string]TypeID
	costs  map[[2]TypeID]int

	functions []*Function
	overloads map[string][]int
	keys      map[uint64]int

	ctors   map[TypeID][]int
	dtors   map[TypeID]int
	funcOps map[TypeID][]int

	operators map[string]int // host operator symbol -> precedence (0 = default)
	userLib   int

	void, boolean TypeID
	log           *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// New creates a registry that already knows the types the language itself
// needs: void and bool.
func New(opts ...Option) *Registry {
	r := &Registry{
		byName:    make(map[string]TypeID),
		costs:     make(map[[2]TypeID]int),
		overloads: make(map[string][]int),
		keys:      make(map[uint64]int),
		ctors:     make(map[TypeID][]int),
		dtors:     make(map[TypeID]int),
		funcOps:   make(map[TypeID][]int),
		operators: make(map[string]int),
		userLib:   -1,
		log:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.void = r.RegisterType("void", 0)
	r.boolean = r.RegisterType("bool", 1)
	r.SetZero(r.boolean, false)
	return r
}

func signatureKey(name, sig string) uint64 {
	return xxhash.Sum64String(name + "(" + sig + ")")
}

// RegisterFunction registers a native function under name with a parameter
// signature string such as "int, ref String" and a return type string.
// It returns the new function id, or a negative ErrCode on failure.
func (r *Registry) RegisterFunction(name, params, ret string, fn vm.Native) int {
	return r.registerNative(name, params, ret, fn, false)
}

// RegisterOperator registers a native operator implementation, e.g. "+" over "int,int".
func (r *Registry) RegisterOperator(name, params, ret string, fn vm.Native) int {
	return r.registerNative(name, params, ret, fn, true)
}

func (r *Registry) registerNative(name, params, ret string, fn vm.Native, operator bool) int {
	if name == "" || fn == nil {
		return ErrCodeInvalid
	}
	ps, err := r.ParseSignature(params)
	if err != nil {
		r.log.Debug("registration rejected", "name", name, "error", err)
		return ErrCodeUnknownType
	}
	rt, err := r.ParseType(ret)
	if err != nil {
		r.log.Debug("registration rejected", "name", name, "error", err)
		return ErrCodeUnknownType
	}
	f := &Function{Name: name, Params: ps, Return: rt, Native: fn, Operator: operator}
	id, err := r.add(f)
	if err != nil {
		r.log.Debug("registration rejected", "name", name, "error", err)
		return ErrCodeDuplicate
	}
	return id
}

// DeclareScriptFunction registers the signature of a script function.
// Declaring the same signature again (prototype then definition) returns the
// existing id; a clash with a native function is an error.
func (r *Registry) DeclareScriptFunction(name string, params []ScriptType, ret ScriptType) (int, error) {
	key := signatureKey(name, r.Signature(params))
	if id, ok := r.keys[key]; ok {
		prev := r.functions[id]
		if !prev.Script {
			return -1, fmt.Errorf("%w: %s(%s)", ErrDuplicateFunction, name, r.Signature(params))
		}
		if prev.Return != ret {
			return -1, fmt.Errorf("conflicting return types for %s(%s): %s and %s",
				name, r.Signature(params), r.TypeName(prev.Return), r.TypeName(ret))
		}
		return id, nil
	}
	return r.add(&Function{Name: name, Params: params, Return: ret, Script: true})
}

func (r *Registry) add(f *Function) (int, error) {
	key := signatureKey(f.Name, r.Signature(f.Params))
	if _, ok := r.keys[key]; ok {
		return -1, fmt.Errorf("%w: %s(%s)", ErrDuplicateFunction, f.Name, r.Signature(f.Params))
	}
	f.ID = len(r.functions)
	r.functions = append(r.functions, f)
	r.keys[key] = f.ID
	r.overloads[f.Name] = append(r.overloads[f.Name], f.ID)
	return f.ID, nil
}

// Function returns the function with the given id or nil.
func (r *Registry) Function(id int) *Function {
	if id < 0 || id >= len(r.functions) {
		return nil
	}
	return r.functions[id]
}

// FindFunction returns the id of name with the exact parameter signature, or -1.
func (r *Registry) FindFunction(name, params string) int {
	ps, err := r.ParseSignature(params)
	if err != nil {
		return -1
	}
	if id, ok := r.keys[signatureKey(name, r.Signature(ps))]; ok && r.functions[id] != nil {
		return id
	}
	return -1
}

// Overloads returns the functions registered under name in registration order.
func (r *Registry) Overloads(name string) []*Function {
	ids := r.overloads[name]
	fns := make([]*Function, 0, len(ids))
	for _, id := range ids {
		if f := r.functions[id]; f != nil {
			fns = append(fns, f)
		}
	}
	return fns
}

// HasFunction reports whether any function is registered under name.
func (r *Registry) HasFunction(name string) bool {
	return len(r.Overloads(name)) > 0
}

// MarkDefined records that the body of a script function has been compiled.
func (r *Registry) MarkDefined(id int) {
	if f := r.Function(id); f != nil {
		f.Defined = true
	}
}

// CastFunction returns the casting function converting from's value type to
// the value type to, following the naming rule "function named after the
// target type taking the source type".
func (r *Registry) CastFunction(from ScriptType, to TypeID) *Function {
	target := r.Type(to)
	if target == nil {
		return nil
	}
	for _, f := range r.Overloads(target.Name) {
		if len(f.Params) == 1 && f.Params[0].ID == from.ID && f.Params[0].Ref <= 1 && f.Return == (ScriptType{ID: to}) {
			return f
		}
	}
	return nil
}

// RegisterConstructor registers fnID as a constructor of t. A constructor
// takes "ref T" first, plus zero (default) or one (converting) argument.
func (r *Registry) RegisterConstructor(t TypeID, fnID int) error {
	f := r.Function(fnID)
	if f == nil {
		return fmt.Errorf("constructor: unknown function #%d", fnID)
	}
	if len(f.Params) < 1 || len(f.Params) > 2 || f.Params[0] != (ScriptType{ID: t, Ref: 1}) {
		return fmt.Errorf("constructor %s must take 'ref %s' first", f.Name, r.TypeName(ScriptType{ID: t}))
	}
	r.ctors[t] = append(r.ctors[t], fnID)
	return nil
}

// Constructors returns the constructors of t in registration order.
func (r *Registry) Constructors(t TypeID) []*Function {
	var fns []*Function
	for _, id := range r.ctors[t] {
		if f := r.Function(id); f != nil {
			fns = append(fns, f)
		}
	}
	return fns
}

// DefaultConstructor returns the constructor of t taking only the object reference.
func (r *Registry) DefaultConstructor(t TypeID) *Function {
	for _, f := range r.Constructors(t) {
		if len(f.Params) == 1 {
			return f
		}
	}
	return nil
}

// RegisterDestructor registers fnID, a function over "ref T", as the destructor of t.
func (r *Registry) RegisterDestructor(t TypeID, fnID int) error {
	f := r.Function(fnID)
	if f == nil {
		return fmt.Errorf("destructor: unknown function #%d", fnID)
	}
	if len(f.Params) != 1 || f.Params[0] != (ScriptType{ID: t, Ref: 1}) {
		return fmt.Errorf("destructor %s must take exactly 'ref %s'", f.Name, r.TypeName(ScriptType{ID: t}))
	}
	r.dtors[t] = fnID
	return nil
}

// Destructor returns the destructor of t or nil.
func (r *Registry) Destructor(t TypeID) *Function {
	id, ok := r.dtors[t]
	if !ok {
		return nil
	}
	return r.Function(id)
}

// RegisterFunctionOperator makes values of type t callable: v(args) invokes
// fnID with v as its first argument.
func (r *Registry) RegisterFunctionOperator(t TypeID, fnID int) error {
	f := r.Function(fnID)
	if f == nil {
		return fmt.Errorf("function operator: unknown function #%d", fnID)
	}
	if len(f.Params) == 0 || f.Params[0].ID != t {
		return fmt.Errorf("function operator %s must take '%s' first", f.Name, r.TypeName(ScriptType{ID: t}))
	}
	r.funcOps[t] = append(r.funcOps[t], fnID)
	return nil
}

// FunctionOperators returns the function operators registered for t.
func (r *Registry) FunctionOperators(t TypeID) []*Function {
	var fns []*Function
	for _, id := range r.funcOps[t] {
		if f := r.Function(id); f != nil {
			fns = append(fns, f)
		}
	}
	return fns
}

// RegisterOperatorSymbol makes the tokenizer recognize a new operator symbol.
// A precedence of 0 places it with additive operators.
func (r *Registry) RegisterOperatorSymbol(symbol string, precedence int) {
	r.operators[symbol] = precedence
}

// OperatorSymbols returns the host-registered operator symbols and precedences.
func (r *Registry) OperatorSymbols() map[string]int {
	out := make(map[string]int, len(r.operators))
	for k, v := range r.operators {
		out[k] = v
	}
	return out
}

// BeginUserLib marks every function registered from now on as part of the
// user library, which ResetUserLib discards.
func (r *Registry) BeginUserLib() {
	r.userLib = len(r.functions)
}

// ResetUserLib forgets user-library functions and every script function, so
// that a program can be compiled again from scratch.
func (r *Registry) ResetUserLib() {
	cut := len(r.functions)
	if r.userLib >= 0 && r.userLib < cut {
		cut = r.userLib
	}
	for _, f := range r.functions[cut:] {
		if f != nil {
			delete(r.keys, signatureKey(f.Name, r.Signature(f.Params)))
		}
	}
	r.functions = r.functions[:cut]
	for i, f := range r.functions {
		if f != nil && f.Script {
			delete(r.keys, signatureKey(f.Name, r.Signature(f.Params)))
			r.functions[i] = nil
		}
	}

	alive := func(ids []int) []int {
		kept := ids[:0]
		for _, id := range ids {
			if id < len(r.functions) && r.functions[id] != nil {
				kept = append(kept, id)
			}
		}
		return kept
	}
	for name, ids := range r.overloads {
		if kept := alive(ids); len(kept) > 0 {
			r.overloads[name] = kept
		} else {
			delete(r.overloads, name)
		}
	}
	for t, ids := range r.ctors {
		r.ctors[t] = alive(ids)
	}
	for t, ids := range r.funcOps {
		r.funcOps[t] = alive(ids)
	}
	for t, id := range r.dtors {
		if id >= len(r.functions) || r.functions[id] == nil {
			delete(r.dtors, t)
		}
	}
	if r.userLib > len(r.functions) {
		r.userLib = len(r.functions)
	}
}
