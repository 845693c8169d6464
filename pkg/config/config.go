// Package config handles clamb.toml run configuration. YAML files
// (clamb.yaml, clamb.yml) are accepted with the same keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zurustar/clamb/pkg/logger"
	"github.com/zurustar/clamb/pkg/vm"
)

// Config is the complete run configuration.
type Config struct {
	Log     Log     `toml:"log" yaml:"log"`
	Runtime Runtime `toml:"runtime" yaml:"runtime"`
	Run     Run     `toml:"run" yaml:"run"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Log configures the process logger.
type Log struct {
	Level string `toml:"level" yaml:"level"`
}

// Runtime configures the contexts programs and tasks run on.
type Runtime struct {
	StackCapacity int `toml:"stack_capacity" yaml:"stack_capacity"` // slots per context
	MaxCallDepth  int `toml:"max_call_depth" yaml:"max_call_depth"`
}

// Run tells the host driver what to execute after the global code.
type Run struct {
	// Entry names functions without parameters; each runs on its own strand.
	Entry   []string      `toml:"entry" yaml:"entry"`
	Timeout time.Duration `toml:"timeout" yaml:"timeout"` // 0 means no limit
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:     Log{Level: "info"},
		Runtime: Runtime{StackCapacity: vm.DefaultCapacity, MaxCallDepth: vm.MaxStackDepth},
		Run:     Run{Entry: []string{"main"}},
	}
}

// Load reads a TOML or YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find looks for clamb.toml, clamb.yaml or clamb.yml in dir and returns the
// first that exists, or "" when there is none.
func Find(dir string) string {
	for _, name := range []string{"clamb.toml", "clamb.yaml", "clamb.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Runtime.StackCapacity <= 0 {
		return fmt.Errorf("runtime.stack_capacity must be positive, got %d", c.Runtime.StackCapacity)
	}
	if c.Runtime.MaxCallDepth <= 0 {
		return fmt.Errorf("runtime.max_call_depth must be positive, got %d", c.Runtime.MaxCallDepth)
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("run.timeout must be non-negative, got %s", c.Run.Timeout)
	}
	for _, name := range c.Run.Entry {
		if name == "" {
			return fmt.Errorf("run.entry contains an empty function name")
		}
	}
	return nil
}

// RuntimeOptions converts the runtime section into vm options.
func (c *Config) RuntimeOptions() []vm.Option {
	return []vm.Option{
		vm.WithCapacity(c.Runtime.StackCapacity),
		vm.WithMaxCallDepth(c.Runtime.MaxCallDepth),
	}
}
