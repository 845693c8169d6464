// Package stdlib registers the basic types of the language and their
// operators, conversions and library functions.
package stdlib

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/logger"
	"github.com/zurustar/clamb/pkg/vm"
)

// Option configures Register.
type Option func(*registrar)

// WithOutput sets where print writes. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *registrar) {
		r.out = w
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *registrar) {
		r.log = log
	}
}

// registrar keeps the first registration failure so that the tables below
// read as plain lists.
type registrar struct {
	reg *types.Registry
	out io.Writer
	log *slog.Logger
	err error
}

// Register installs int, long, float, double and String with their
// operators, the implicit conversions between them and the String and math
// library. It must run before anything is compiled against reg.
func Register(reg *types.Registry, opts ...Option) error {
	r := &registrar{reg: reg, out: os.Stdout, log: logger.GetLogger()}
	for _, opt := range opts {
		opt(r)
	}

	r.types()
	registerInteger[int32](r, "int")
	registerInteger[int64](r, "long")
	registerFloat[float32](r, "float")
	registerFloat[float64](r, "double")
	r.booleans()
	r.conversions()
	r.strings()
	r.stringLifetime()
	r.math()
	r.io()

	if r.err != nil {
		return fmt.Errorf("stdlib: %w", r.err)
	}
	r.log.Debug("stdlib registered")
	return nil
}

func (r *registrar) types() {
	for _, t := range []struct {
		name string
		size int
		zero vm.Value
	}{
		{"int", 4, int32(0)},
		{"long", 8, int64(0)},
		{"float", 4, float32(0)},
		{"double", 8, float64(0)},
		{"String", 16, ""},
	} {
		id := r.reg.RegisterType(t.name, t.size)
		r.reg.SetZero(id, t.zero)
	}
}

func (r *registrar) fn(name, params, ret string, f vm.Native) {
	r.check(name, params, r.reg.RegisterFunction(name, params, ret, f))
}

func (r *registrar) op(name, params, ret string, f vm.Native) {
	r.check(name, params, r.reg.RegisterOperator(name, params, ret, f))
}

func (r *registrar) check(name, params string, code int) {
	if code >= 0 || r.err != nil {
		return
	}
	switch code {
	case types.ErrCodeUnknownType:
		r.err = fmt.Errorf("%s(%s): %w", name, params, types.ErrUnknownType)
	case types.ErrCodeDuplicate:
		r.err = fmt.Errorf("%s(%s): %w", name, params, types.ErrDuplicateFunction)
	default:
		r.err = fmt.Errorf("%s(%s): registration failed with code %d", name, params, code)
	}
}

func (r *registrar) typeID(name string) types.TypeID {
	id, ok := r.reg.Lookup(name)
	if !ok && r.err == nil {
		r.err = fmt.Errorf("%w '%s'", types.ErrUnknownType, name)
	}
	return id
}
