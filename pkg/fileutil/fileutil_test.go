package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestFindFileCaseInsensitive(t *testing.T) {
	fsys := fstest.MapFS{
		"main.clb":         {Data: []byte("int a;")},
		"lib/Math.CLB":     {Data: []byte("int sq(int n) { return n * n; }")},
		"lib/strings.clb":  {Data: []byte("")},
		"lib/nested/x.clb": {Data: []byte("")},
	}

	tests := []struct {
		name       string
		dir        string
		searchName string
		want       string
		shouldFind bool
	}{
		{"exact match", ".", "main.clb", "main.clb", true},
		{"upper case query", ".", "MAIN.CLB", "main.clb", true},
		{"mixed case file", "lib", "math.clb", "lib/Math.CLB", true},
		{"directories are skipped", "lib", "NESTED", "", false},
		{"missing file", "lib", "none.clb", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindFileCaseInsensitive(fsys, tt.dir, tt.searchName)
			if !tt.shouldFind {
				if !errors.Is(err, fs.ErrNotExist) {
					t.Errorf("expected fs.ErrNotExist, got %v (%q)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceFS(t *testing.T) {
	s := NewSourceFS(fstest.MapFS{
		"Lib/Util.clb": {Data: []byte("void f() {}")},
	})

	data, err := s.ReadFile("Lib/util.CLB")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "void f() {}" {
		t.Errorf("content = %q", data)
	}
	if !s.Exists(`\Lib\Util.clb`) {
		t.Error("backslash path not resolved")
	}
	if s.Exists("Lib") {
		t.Error("a directory is not a source file")
	}
	if s.Exists("../outside.clb") {
		t.Error("paths must stay inside the root")
	}
}

func TestNewDirFS(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Main.clb"), []byte("int a;"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	s := NewDirFS(dir)
	if _, err := s.ReadFile("main.clb"); err != nil {
		t.Errorf("ReadFile: %v", err)
	}
	if _, err := s.ReadFile("other.clb"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"":              ".",
		"/a/b.clb":      "a/b.clb",
		`lib\x.clb`:     "lib/x.clb",
		"lib/./x.clb":   "lib/x.clb",
		"lib/../x.clb":  "x.clb",
		"../escape.clb": "../escape.clb",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}
