// Package types implements the type registry shared by every compiler stage:
// named types with reference levels, implicit conversion costs, and the
// registry of native and script functions with their overloads.
package types

import (
	"fmt"
	"strings"

	"github.com/zurustar/clamb/pkg/vm"
)

// TypeID identifies a registered type.
type TypeID int

// InvalidType is returned by lookups that fail.
const InvalidType TypeID = -1

// MaxRefLevel is the deepest supported reference level (reference to reference).
const MaxRefLevel = 2

// ScriptType is a registered type at a reference level.
// Two ScriptType values are equal iff ID and Ref match.
type ScriptType struct {
	ID  TypeID
	Ref int // 0 = value, 1 = reference, 2 = reference to reference
}

// Unknown is the zero-information type.
var Unknown = ScriptType{ID: InvalidType}

// IsUnknown reports whether t does not name a registered type.
func (t ScriptType) IsUnknown() bool { return t.ID == InvalidType }

// IsRef reports whether t is a reference type.
func (t ScriptType) IsRef() bool { return t.Ref > 0 }

// MakeRef returns a reference to t.
func (t ScriptType) MakeRef() ScriptType { return ScriptType{ID: t.ID, Ref: t.Ref + 1} }

// Deref removes one reference level.
func (t ScriptType) Deref() ScriptType {
	if t.Ref == 0 {
		return t
	}
	return ScriptType{ID: t.ID, Ref: t.Ref - 1}
}

// Origin returns the value type behind any number of references.
func (t ScriptType) Origin() ScriptType { return ScriptType{ID: t.ID} }

// Type describes a registered named type.
type Type struct {
	ID   TypeID
	Name string
	Size int      // size metadata in bytes as declared by the host
	Zero vm.Value // value of a default-initialized variable without constructor
}

// TypeName renders t as it is written in scripts, e.g. "ref String".
func (r *Registry) TypeName(t ScriptType) string {
	if t.ID < 0 || int(t.ID) >= len(r.types) {
		return "<unknown>"
	}
	return strings.Repeat("ref ", t.Ref) + r.types[t.ID].Name
}

// RegisterType registers a named type. Registering an existing name returns its id.
func (r *Registry) RegisterType(name string, size int) TypeID {
	if id, ok := r.byName[name]; ok {
		return id
	}
	id := TypeID(len(r.types))
	r.types = append(r.types, &Type{ID: id, Name: name, Size: size})
	r.byName[name] = id
	return id
}

// SetZero sets the default value of variables of type id.
func (r *Registry) SetZero(id TypeID, zero vm.Value) {
	if t := r.Type(id); t != nil {
		t.Zero = zero
	}
}

// Type returns the descriptor of id or nil.
func (r *Registry) Type(id TypeID) *Type {
	if id < 0 || int(id) >= len(r.types) {
		return nil
	}
	return r.types[id]
}

// Lookup returns the id of a named type.
func (r *Registry) Lookup(name string) (TypeID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// IsTypeName reports whether name is a registered type name.
func (r *Registry) IsTypeName(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Void returns the void type.
func (r *Registry) Void() ScriptType { return ScriptType{ID: r.void} }

// Bool returns the bool type.
func (r *Registry) Bool() ScriptType { return ScriptType{ID: r.boolean} }

// MustType returns the value type of a registered name or panics.
// It is meant for host setup code with fixed names.
func (r *Registry) MustType(name string) ScriptType {
	t, err := r.ParseType(name)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseType parses "T", "ref T", "ref ref T", "T&" or "T&&".
func (r *Registry) ParseType(s string) (ScriptType, error) {
	s = strings.TrimSpace(s)
	level := 0
	for strings.HasPrefix(s, "ref ") || strings.HasPrefix(s, "ref\t") {
		level++
		s = strings.TrimSpace(s[4:])
	}
	for strings.HasSuffix(s, "&") {
		level++
		s = strings.TrimSpace(s[:len(s)-1])
	}
	if level > MaxRefLevel {
		return Unknown, fmt.Errorf("%w: too many reference levels in '%s'", ErrUnknownType, s)
	}
	id, ok := r.byName[s]
	if !ok {
		return Unknown, fmt.Errorf("%w '%s'", ErrUnknownType, s)
	}
	return ScriptType{ID: id, Ref: level}, nil
}

// ParseSignature parses a comma separated parameter type list.
func (r *Registry) ParseSignature(sig string) ([]ScriptType, error) {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return nil, nil
	}
	parts := strings.Split(sig, ",")
	params := make([]ScriptType, 0, len(parts))
	for _, part := range parts {
		t, err := r.ParseType(part)
		if err != nil {
			return nil, err
		}
		params = append(params, t)
	}
	return params, nil
}

// Signature renders a parameter list in the canonical form used as lookup key.
func (r *Registry) Signature(params []ScriptType) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = r.TypeName(p)
	}
	return strings.Join(names, ",")
}

// RegisterConversion declares an implicit conversion from one value type to
// another with the given cost. The casting function is the function named
// after the target type that takes the source type.
func (r *Registry) RegisterConversion(from, to TypeID, cost int) error {
	if cost < 0 {
		return fmt.Errorf("conversion cost must be non-negative, got %d", cost)
	}
	if r.Type(from) == nil || r.Type(to) == nil {
		return fmt.Errorf("%w in conversion %d -> %d", ErrUnknownType, from, to)
	}
	r.costs[[2]TypeID{from, to}] = cost
	return nil
}

// ConversionCost returns the registered cost of converting from -> to.
func (r *Registry) ConversionCost(from, to TypeID) (int, bool) {
	cost, ok := r.costs[[2]TypeID{from, to}]
	return cost, ok
}
