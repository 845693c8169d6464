package stdlib

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zurustar/clamb/pkg/vm"
)

// Strings are measured and indexed in characters, not bytes.
func (r *registrar) strings() {
	r.op("+", "String,String", "String", binary(func(a, b string) (vm.Value, error) { return a + b, nil }))
	r.op("==", "String,String", "bool", binary(func(a, b string) (vm.Value, error) { return a == b, nil }))
	r.op("!=", "String,String", "bool", binary(func(a, b string) (vm.Value, error) { return a != b, nil }))
	r.op("<", "String,String", "bool", binary(func(a, b string) (vm.Value, error) { return a < b, nil }))
	r.op(">", "String,String", "bool", binary(func(a, b string) (vm.Value, error) { return a > b, nil }))

	r.op("[]", "String,int", "String", func(args []vm.Value) (vm.Value, error) {
		s, err := arg[string](args, 0)
		if err != nil {
			return nil, err
		}
		i, err := arg[int32](args, 1)
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		if i < 0 || int(i) >= len(runes) {
			return nil, vm.NewIndexOutOfRangeError(int64(i), len(runes))
		}
		return string(runes[i]), nil
	})

	r.fn("length", "String", "int", unary(func(s string) (vm.Value, error) {
		return int32(len([]rune(s))), nil
	}))

	// substr(s, start, count) clamps to the end of s.
	r.fn("substr", "String,int,int", "String", func(args []vm.Value) (vm.Value, error) {
		s, err := arg[string](args, 0)
		if err != nil {
			return nil, err
		}
		start, err := arg[int32](args, 1)
		if err != nil {
			return nil, err
		}
		count, err := arg[int32](args, 2)
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		if start < 0 || int(start) > len(runes) {
			return nil, vm.NewIndexOutOfRangeError(int64(start), len(runes))
		}
		end := min(len(runes), int(start)+max(int(count), 0))
		return string(runes[start:end]), nil
	})

	r.fn("find", "String,String", "int", binary(func(s, sub string) (vm.Value, error) {
		i := strings.Index(s, sub)
		if i < 0 {
			return int32(-1), nil
		}
		return int32(len([]rune(s[:i]))), nil
	}))

	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	r.fn("upper", "String", "String", unary(func(s string) (vm.Value, error) { return upper.String(s), nil }))
	r.fn("lower", "String", "String", unary(func(s string) (vm.Value, error) { return lower.String(s), nil }))

	for _, from := range []string{"bool", "int", "long", "float", "double"} {
		r.fn("String", from, "String", func(args []vm.Value) (vm.Value, error) {
			return vm.Format(args[0]), nil
		})
	}
}

// stringLifetime registers the default and copy constructors and the
// destructor of String. Their names cannot be written in scripts, so they
// are only reached through declarations and scope ends.
func (r *registrar) stringLifetime() {
	str := r.typeID("String")
	store := func(args []vm.Value, v vm.Value) (vm.Value, error) {
		ref, ok := args[0].(vm.Ref)
		if !ok {
			return nil, vm.NewRuntimeErrorf(vm.ErrorInvalidOperation, "expected a String reference, got %T", args[0])
		}
		return nil, ref.Store(v)
	}

	def := r.reg.RegisterFunction("String.new", "ref String", "void", func(args []vm.Value) (vm.Value, error) {
		return store(args, "")
	})
	cp := r.reg.RegisterFunction("String.copy", "ref String,String", "void", func(args []vm.Value) (vm.Value, error) {
		s, err := arg[string](args, 1)
		if err != nil {
			return nil, err
		}
		return store(args, s)
	})
	free := r.reg.RegisterFunction("String.free", "ref String", "void", func(args []vm.Value) (vm.Value, error) {
		return store(args, "")
	})
	r.check("String.new", "ref String", def)
	r.check("String.copy", "ref String,String", cp)
	r.check("String.free", "ref String", free)
	if r.err != nil {
		return
	}

	for _, err := range []error{
		r.reg.RegisterConstructor(str, def),
		r.reg.RegisterConstructor(str, cp),
		r.reg.RegisterDestructor(str, free),
	} {
		if err != nil && r.err == nil {
			r.err = err
		}
	}
}

func (r *registrar) math() {
	r.fn("sqrt", "double", "double", unary(func(a float64) (vm.Value, error) {
		if a < 0 {
			return nil, vm.NewRuntimeErrorf(vm.ErrorInvalidOperation, "sqrt of negative number %g", a)
		}
		return math.Sqrt(a), nil
	}))
	r.fn("pow", "double,double", "double", binary(func(a, b float64) (vm.Value, error) { return math.Pow(a, b), nil }))
	r.fn("floor", "double", "double", unary(func(a float64) (vm.Value, error) { return math.Floor(a), nil }))
}

func (r *registrar) io() {
	for _, t := range []string{"String", "long", "double", "bool"} {
		r.fn("print", t, "void", func(args []vm.Value) (vm.Value, error) {
			_, err := fmt.Fprintln(r.out, vm.Format(args[0]))
			return nil, err
		})
	}
}
