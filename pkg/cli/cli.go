// Package cli parses the clamb command line.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zurustar/clamb/pkg/config"
	"github.com/zurustar/clamb/pkg/logger"
)

// Environment variables consulted when the matching flag is absent.
const (
	EnvLogLevel = "CLAMB_LOG_LEVEL"
	EnvConfig   = "CLAMB_CONFIG"
	EnvTimeout  = "CLAMB_TIMEOUT"
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	ScriptPath string        // script file to compile
	ConfigPath string        // clamb.toml / clamb.yaml, "" to search next to the script
	LogLevel   string        // "" keeps the configuration file's level
	Timeout    time.Duration // 0 keeps the configuration file's timeout
	Entry      []string      // functions to run, each on its own strand
	Eval       []string      // expressions evaluated after the global code
	Dump       bool          // print the compiled segments
	ShowHelp   bool
}

// ParseArgs コマンドライン引数を解析してConfigを返す
// Flags win over environment variables, which win over the configuration file.
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("clamb", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	c := &Config{}
	var timeoutSec int
	var entry string
	fs.IntVar(&timeoutSec, "timeout", 0, "timeout in seconds")
	fs.IntVar(&timeoutSec, "t", 0, "timeout in seconds (short)")
	fs.StringVar(&c.LogLevel, "log-level", "", "log level")
	fs.StringVar(&c.LogLevel, "l", "", "log level (short)")
	fs.StringVar(&c.ConfigPath, "config", "", "configuration file")
	fs.StringVar(&c.ConfigPath, "c", "", "configuration file (short)")
	fs.StringVar(&entry, "entry", "", "comma separated functions to run")
	fs.StringVar(&entry, "e", "", "comma separated functions to run (short)")
	fs.Func("eval", "expression to evaluate (repeatable)", func(s string) error {
		c.Eval = append(c.Eval, s)
		return nil
	})
	fs.BoolVar(&c.Dump, "dump", false, "print compiled segments")
	fs.BoolVar(&c.ShowHelp, "help", false, "show help")
	fs.BoolVar(&c.ShowHelp, "h", false, "show help (short)")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return nil, err
	}

	if c.LogLevel == "" {
		c.LogLevel = strings.ToLower(os.Getenv(EnvLogLevel))
	}
	if c.ConfigPath == "" {
		c.ConfigPath = os.Getenv(EnvConfig)
	}
	if timeoutSec == 0 {
		if env := os.Getenv(EnvTimeout); env != "" {
			if t, err := strconv.Atoi(env); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	c.Timeout = time.Duration(timeoutSec) * time.Second

	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			return nil, fmt.Errorf("%w (must be debug, info, warn, or error)", err)
		}
	}

	for _, name := range strings.Split(entry, ",") {
		if name = strings.TrimSpace(name); name != "" {
			c.Entry = append(c.Entry, name)
		}
	}

	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected one script file, got %d", fs.NArg())
	}
	if fs.NArg() == 1 {
		c.ScriptPath = fs.Arg(0)
	}
	if c.ScriptPath == "" && len(c.Eval) == 0 && !c.ShowHelp {
		return nil, fmt.Errorf("no script file given")
	}
	return c, nil
}

// Apply overrides the file configuration with the command line.
func (c *Config) Apply(cfg *config.Config) {
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.Timeout > 0 {
		cfg.Run.Timeout = c.Timeout
	}
	if len(c.Entry) > 0 {
		cfg.Run.Entry = c.Entry
	}
}

// boolFlags take no value, so the argument after them is positional.
var boolFlags = map[string]bool{"-h": true, "--help": true, "-help": true, "--dump": true, "-dump": true}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)
			if !strings.Contains(arg, "=") && !boolFlags[arg] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		positional = append(positional, arg)
	}

	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `clamb - compile and run a clamb script

Usage:
  clamb [options] <script>

The global code runs first; then every entry function runs on its own
strand; global variables are destroyed last.

Options:
  -c, --config <file>         configuration file (default: clamb.toml next to the script)
  -e, --entry <f,g,...>       functions to run (default: main)
  --eval <expr>               evaluate an expression after the global code (repeatable)
  -t, --timeout <seconds>     stop running strands after the timeout
  -l, --log-level <level>     debug, info, warn, error
  --dump                      print the compiled segments
  -h, --help                  show this help

Environment Variables:
  %s=<level>
  %s=<file>
  %s=<seconds>

Examples:
  clamb hello.clb
  clamb -e first,second jobs.clb
  clamb --eval 'sq(12)' lib.clb
`, EnvLogLevel, EnvConfig, EnvTimeout)
}
