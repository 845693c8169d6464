// Package app is the clamb host driver: it loads the configuration,
// preprocesses and compiles a script, runs its global code, runs entry
// functions on separate strands and finally destroys the globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/zurustar/clamb/pkg/cli"
	"github.com/zurustar/clamb/pkg/compiler"
	"github.com/zurustar/clamb/pkg/compiler/preprocessor"
	"github.com/zurustar/clamb/pkg/compiler/types"
	"github.com/zurustar/clamb/pkg/config"
	"github.com/zurustar/clamb/pkg/fileutil"
	"github.com/zurustar/clamb/pkg/logger"
	"github.com/zurustar/clamb/pkg/stdlib"
	"github.com/zurustar/clamb/pkg/vm"
)

// ErrCompile is returned after a compile error has been displayed.
var ErrCompile = errors.New("compilation failed")

// reportedError marks an error that Run already printed.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already shown to the user by Run.
func Reported(err error) bool {
	var r reportedError
	return errors.Is(err, ErrCompile) || errors.As(err, &r)
}

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	args *cli.Config
	cfg  *config.Config
	log  *slog.Logger
	ui   *display

	stdout, stderr io.Writer
}

// New creates an application printing script output and results to stdout
// and diagnostics to stderr.
func New(stdout, stderr io.Writer) *Application {
	return &Application{stdout: stdout, stderr: stderr}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	app.ui = newDisplay(app.stdout, app.stderr)

	parsed, err := cli.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	app.args = parsed
	if parsed.ShowHelp {
		cli.PrintHelp(app.stdout)
		return nil
	}

	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.InitLoggerTo(app.stderr, app.cfg.Log.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()
	app.log.Debug("configuration loaded", "path", app.cfg.Path, "entry", app.cfg.Run.Entry)

	source := &preprocessor.Result{}
	if parsed.ScriptPath != "" {
		source, err = app.preprocess(parsed.ScriptPath)
		if err != nil {
			return err
		}
	}

	c, err := app.newCompiler()
	if err != nil {
		return err
	}
	prog, err := c.CompileProgram(source.Source)
	if err != nil {
		app.reportCompileError(err, source)
		return ErrCompile
	}
	if parsed.Dump {
		app.dump(prog)
	}

	ctx := context.Background()
	if app.cfg.Run.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.cfg.Run.Timeout)
		defer cancel()
	}

	runErr := app.execute(ctx, c, prog)

	// globals are destroyed even when a strand faulted or timed out
	if err := prog.CleanupGlobalMemory(context.Background()); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("cleanup: %w", err))
	}
	if runErr != nil {
		app.ui.fail("Runtime Error", runErr)
		return reportedError{runErr}
	}
	app.log.Debug("program finished", "program", prog.ID)
	return nil
}

func (app *Application) loadConfig() error {
	path := app.args.ConfigPath
	if path == "" && app.args.ScriptPath != "" {
		path = config.Find(filepath.Dir(app.args.ScriptPath))
	}

	app.cfg = config.Default()
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		app.cfg = cfg
	}
	app.args.Apply(app.cfg)
	return app.cfg.Validate()
}

func (app *Application) preprocess(scriptPath string) (*preprocessor.Result, error) {
	fsys := fileutil.NewDirFS(filepath.Dir(scriptPath))
	start := time.Now()
	result, err := preprocessor.New(fsys, preprocessor.WithLogger(app.log)).Process(filepath.Base(scriptPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	app.log.Debug("script loaded", "file", scriptPath, "lines", len(result.Lines), "elapsed", time.Since(start))
	if title := result.Metadata.Title; title != "" {
		app.ui.success("Script", title)
	}
	return result, nil
}

func (app *Application) newCompiler() (*compiler.Compiler, error) {
	reg := types.New()
	if err := stdlib.Register(reg, stdlib.WithOutput(app.stdout), stdlib.WithLogger(app.log)); err != nil {
		return nil, err
	}
	reg.BeginUserLib()
	return compiler.New(reg,
		compiler.WithLogger(app.log),
		compiler.WithRuntimeOptions(app.cfg.RuntimeOptions()...)), nil
}

// reportCompileError prints the error with a 1-based position inside the
// file the offending line came from.
func (app *Application) reportCompileError(err error, source *preprocessor.Result) {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		app.ui.fail("Compile Error", err)
		return
	}

	where := "<input>"
	if origin, ok := source.Locate(ce.Line); ok {
		where = fmt.Sprintf("%s:%d:%d", origin.File, origin.Line, ce.Column)
	}
	app.ui.fail(fmt.Sprintf("%s error", ce.Phase), fmt.Errorf("%s: %s", where, ce.Message))
	if ce.Context != "" {
		app.ui.code(ce.Context)
	}
}

func (app *Application) dump(prog *vm.Program) {
	app.ui.listing(prog.GlobalSegment().Listing())
	for _, seg := range prog.Functions() {
		app.ui.listing(seg.Listing())
	}
}

// execute runs the global code, the --eval expressions and the entry
// functions.
func (app *Application) execute(ctx context.Context, c *compiler.Compiler, prog *vm.Program) error {
	if err := prog.RunGlobalCode(ctx); err != nil {
		return fmt.Errorf("global code: %w", err)
	}

	for _, src := range app.args.Eval {
		e, err := c.CompileExpression(src, "")
		if err != nil {
			return err
		}
		v, err := e.Eval(ctx)
		if err != nil {
			return fmt.Errorf("eval %s: %w", src, err)
		}
		app.ui.result(src, vm.Format(v))
	}

	entries, err := app.entries(prog)
	if err != nil {
		return err
	}
	return app.runStrands(ctx, prog, entries)
}

type entry struct {
	name string
	id   int
}

// entries resolves the configured entry functions. A missing main is only
// an error when it was asked for explicitly.
func (app *Application) entries(prog *vm.Program) ([]entry, error) {
	explicit := len(app.args.Entry) > 0 || app.cfg.Path != ""
	if len(app.args.Eval) > 0 && len(app.args.Entry) == 0 {
		return nil, nil
	}

	var out []entry
	for _, name := range app.cfg.Run.Entry {
		id := prog.FindFunction(name, "")
		if id < 0 {
			if !explicit {
				app.log.Debug("no entry function", "name", name)
				continue
			}
			return nil, fmt.Errorf("entry function '%s()' not found", name)
		}
		out = append(out, entry{name: name, id: id})
	}
	return out, nil
}

// runStrands runs each entry on its own task concurrently and prints the
// results in entry order.
func (app *Application) runStrands(ctx context.Context, prog *vm.Program, entries []entry) error {
	type outcome struct {
		value     vm.Value
		hasResult bool
		err       error
	}
	outcomes := make([]outcome, len(entries))

	var wg sync.WaitGroup
	for i, en := range entries {
		wg.Add(1)
		go func(i int, en entry) {
			defer wg.Done()
			task := vm.NewTask(prog)
			if err := task.RunFunction(ctx, en.id, nil); err != nil {
				outcomes[i].err = err
				return
			}
			outcomes[i].value, outcomes[i].hasResult = task.Result()
		}(i, en)
	}
	wg.Wait()

	var errs []error
	for i, en := range entries {
		o := outcomes[i]
		switch {
		case o.err != nil:
			errs = append(errs, o.err)
		case o.hasResult:
			app.ui.result(en.name+"()", vm.Format(o.value))
		}
	}
	return errors.Join(errs...)
}
