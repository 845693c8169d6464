package vm

import (
	"fmt"
	"strconv"
)

// Value is the content of one typed slot.
//
// Built-in script types map to Go types as follows:
//
//	bool   -> bool
//	int    -> int32
//	long   -> int64
//	float  -> float32
//	double -> float64
//	String -> string
//	ref T  -> Ref
//
// Host-registered types may store any Go value.
type Value = any

// Ref is a generation-checked handle to a slot of a Context.
// A Ref taken before the slot's lifetime ended no longer resolves.
type Ref struct {
	ctx   *Context
	index int
	gen   uint32
}

// IsNull reports whether the reference points nowhere.
func (r Ref) IsNull() bool {
	return r.ctx == nil
}

// Load reads the referenced slot.
func (r Ref) Load() (Value, error) {
	if r.ctx == nil {
		return nil, NewNullReferenceError("dereferencing a null reference")
	}
	return r.ctx.load(r.index, r.gen)
}

// Store writes the referenced slot.
func (r Ref) Store(v Value) error {
	if r.ctx == nil {
		return NewNullReferenceError("dereferencing a null reference")
	}
	return r.ctx.store(r.index, r.gen, v)
}

func (r Ref) String() string {
	if r.ctx == nil {
		return "ref(null)"
	}
	return fmt.Sprintf("ref(#%d@%d)", r.index, r.gen)
}

// Format renders a value the way the host driver prints results.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "void"
	case bool:
		return strconv.FormatBool(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case Ref:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
