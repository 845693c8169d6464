package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	want := &Config{
		Log:     Log{Level: "debug"},
		Runtime: Runtime{StackCapacity: 4096, MaxCallDepth: 1000},
		Run:     Run{Entry: []string{"first", "second"}, Timeout: 5 * time.Second},
	}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "clamb.toml", `
[log]
level = "debug"

[runtime]
stack_capacity = 4096

[run]
entry = ["first", "second"]
timeout = "5s"
`},
		{"yaml", "clamb.yaml", `
log:
  level: debug
runtime:
  stack_capacity: 4096
run:
  entry: [first, second]
  timeout: 5s
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Path != path {
				t.Errorf("Path = %q, want %q", got.Path, path)
			}
			if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Config{}, "Path")); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad toml", "c.toml", "[runtime\n", "parse error"},
		{"bad yaml", "c.yml", "runtime: [", "parse error"},
		{"bad level", "c.toml", "[log]\nlevel = \"loud\"\n", "invalid log level: loud"},
		{"zero capacity", "c.toml", "[runtime]\nstack_capacity = 0\n", "runtime.stack_capacity must be positive"},
		{"negative depth", "c.toml", "[runtime]\nmax_call_depth = -1\n", "runtime.max_call_depth must be positive"},
		{"negative timeout", "c.toml", "[run]\ntimeout = \"-1s\"\n", "run.timeout must be non-negative"},
		{"empty entry", "c.toml", "[run]\nentry = [\"\"]\n", "empty function name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), tt.file, tt.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	if got := Find(dir); got != "" {
		t.Errorf("Find in empty dir = %q", got)
	}
	yml := writeFile(t, dir, "clamb.yml", "")
	if got := Find(dir); got != yml {
		t.Errorf("Find = %q, want %q", got, yml)
	}
	toml := writeFile(t, dir, "clamb.toml", "")
	if got := Find(dir); got != toml {
		t.Errorf("Find = %q, want the TOML file first", got)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
	if len(cfg.RuntimeOptions()) != 2 {
		t.Errorf("RuntimeOptions = %d options, want 2", len(cfg.RuntimeOptions()))
	}
}
