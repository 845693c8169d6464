package stdlib

import (
	"fmt"

	"github.com/zurustar/clamb/pkg/vm"
)

type integer interface{ ~int32 | ~int64 }

type float interface{ ~float32 | ~float64 }

type number interface{ integer | float }

func arg[T any](args []vm.Value, i int) (T, error) {
	v, ok := args[i].(T)
	if !ok {
		var zero T
		return zero, vm.NewRuntimeErrorf(vm.ErrorInvalidOperation, "argument %d is %T, want %T", i+1, args[i], zero)
	}
	return v, nil
}

func unary[T any](f func(a T) (vm.Value, error)) vm.Native {
	return func(args []vm.Value) (vm.Value, error) {
		a, err := arg[T](args, 0)
		if err != nil {
			return nil, err
		}
		return f(a)
	}
}

func binary[T any](f func(a, b T) (vm.Value, error)) vm.Native {
	return func(args []vm.Value) (vm.Value, error) {
		a, err := arg[T](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[T](args, 1)
		if err != nil {
			return nil, err
		}
		return f(a, b)
	}
}

// registerNumber installs the operators shared by every numeric type.
func registerNumber[T number](r *registrar, name string) {
	pair := name + "," + name
	r.op("+", pair, name, binary(func(a, b T) (vm.Value, error) { return a + b, nil }))
	r.op("-", pair, name, binary(func(a, b T) (vm.Value, error) { return a - b, nil }))
	r.op("*", pair, name, binary(func(a, b T) (vm.Value, error) { return a * b, nil }))

	r.op("==", pair, "bool", binary(func(a, b T) (vm.Value, error) { return a == b, nil }))
	r.op("!=", pair, "bool", binary(func(a, b T) (vm.Value, error) { return a != b, nil }))
	r.op("<", pair, "bool", binary(func(a, b T) (vm.Value, error) { return a < b, nil }))
	r.op("<=", pair, "bool", binary(func(a, b T) (vm.Value, error) { return a <= b, nil }))
	r.op(">", pair, "bool", binary(func(a, b T) (vm.Value, error) { return a > b, nil }))
	r.op(">=", pair, "bool", binary(func(a, b T) (vm.Value, error) { return a >= b, nil }))

	r.op("-", name, name, unary(func(a T) (vm.Value, error) { return -a, nil }))

	r.fn("abs", name, name, unary(func(a T) (vm.Value, error) {
		if a < 0 {
			return -a, nil
		}
		return a, nil
	}))
	r.fn("min", pair, name, binary(func(a, b T) (vm.Value, error) { return min(a, b), nil }))
	r.fn("max", pair, name, binary(func(a, b T) (vm.Value, error) { return max(a, b), nil }))
}

func registerInteger[T integer](r *registrar, name string) {
	registerNumber[T](r, name)
	pair := name + "," + name

	r.op("/", pair, name, binary(func(a, b T) (vm.Value, error) {
		if b == 0 {
			return nil, vm.NewDivisionByZeroError()
		}
		return a / b, nil
	}))
	r.op("%", pair, name, binary(func(a, b T) (vm.Value, error) {
		if b == 0 {
			return nil, vm.NewDivisionByZeroError()
		}
		return a % b, nil
	}))

	r.op("&", pair, name, binary(func(a, b T) (vm.Value, error) { return a & b, nil }))
	r.op("|", pair, name, binary(func(a, b T) (vm.Value, error) { return a | b, nil }))
	r.op("^", pair, name, binary(func(a, b T) (vm.Value, error) { return a ^ b, nil }))
	r.op("<<", pair, name, binary(func(a, b T) (vm.Value, error) {
		if b < 0 {
			return nil, vm.NewRuntimeErrorf(vm.ErrorInvalidOperation, "negative shift count %d", b)
		}
		return a << b, nil
	}))
	r.op(">>", pair, name, binary(func(a, b T) (vm.Value, error) {
		if b < 0 {
			return nil, vm.NewRuntimeErrorf(vm.ErrorInvalidOperation, "negative shift count %d", b)
		}
		return a >> b, nil
	}))
	r.op("~", name, name, unary(func(a T) (vm.Value, error) { return ^a, nil }))
}

func registerFloat[T float](r *registrar, name string) {
	registerNumber[T](r, name)
	r.op("/", name+","+name, name, binary(func(a, b T) (vm.Value, error) { return a / b, nil }))
}

func (r *registrar) booleans() {
	r.op("!", "bool", "bool", unary(func(a bool) (vm.Value, error) { return !a, nil }))
	r.op("==", "bool,bool", "bool", binary(func(a, b bool) (vm.Value, error) { return a == b, nil }))
	r.op("!=", "bool,bool", "bool", binary(func(a, b bool) (vm.Value, error) { return a != b, nil }))
}

// conversion is one implicit conversion with its cost. Widening is cheaper
// than narrowing so that overload resolution prefers the wider operator.
type conversion struct {
	from, to string
	cost     int
}

var conversions = []conversion{
	{"int", "long", 1},
	{"int", "double", 2},
	{"int", "float", 3},
	{"long", "double", 3},
	{"long", "float", 4},
	{"long", "int", 5},
	{"float", "double", 1},
	{"float", "long", 6},
	{"float", "int", 7},
	{"double", "float", 5},
	{"double", "long", 6},
	{"double", "int", 7},

	{"int", "bool", 10},
	{"long", "bool", 10},
	{"float", "bool", 12},
	{"double", "bool", 12},
	{"bool", "int", 10},
}

func (r *registrar) conversions() {
	// casting functions are named after the target type
	castTo[int32](r, "int")
	castTo[int64](r, "long")
	castTo[float32](r, "float")
	castTo[float64](r, "double")
	for _, from := range []string{"int", "long", "float", "double"} {
		r.fn("bool", from, "bool", func(args []vm.Value) (vm.Value, error) {
			return isNonZero(args[0])
		})
	}
	r.fn("int", "bool", "int", unary(func(a bool) (vm.Value, error) {
		if a {
			return int32(1), nil
		}
		return int32(0), nil
	}))

	for _, c := range conversions {
		from, to := r.typeID(c.from), r.typeID(c.to)
		if r.err != nil {
			return
		}
		if err := r.reg.RegisterConversion(from, to, c.cost); err != nil {
			r.err = err
			return
		}
	}
}

// castTo registers the casts from every other numeric type to T.
func castTo[T number](r *registrar, name string) {
	sources := []struct {
		name string
		conv func(vm.Value) (T, bool)
	}{
		{"int", numericFrom[int32, T]},
		{"long", numericFrom[int64, T]},
		{"float", numericFrom[float32, T]},
		{"double", numericFrom[float64, T]},
	}
	for _, src := range sources {
		if src.name == name {
			continue
		}
		conv := src.conv
		r.fn(name, src.name, name, func(args []vm.Value) (vm.Value, error) {
			v, ok := conv(args[0])
			if !ok {
				return nil, vm.NewRuntimeErrorf(vm.ErrorInvalidOperation, "cannot convert %T to %s", args[0], name)
			}
			return v, nil
		})
	}
}

func numericFrom[F, T number](v vm.Value) (T, bool) {
	f, ok := v.(F)
	if !ok {
		return 0, false
	}
	return T(f), true
}

func isNonZero(v vm.Value) (vm.Value, error) {
	switch x := v.(type) {
	case int32:
		return x != 0, nil
	case int64:
		return x != 0, nil
	case float32:
		return x != 0, nil
	case float64:
		return x != 0, nil
	}
	return nil, fmt.Errorf("cannot convert %T to bool", v)
}
