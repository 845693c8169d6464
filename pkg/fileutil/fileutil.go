// Package fileutil gives the preprocessor read access to script sources,
// rooted at a directory or at any fs.FS (embed.FS, fstest.MapFS).
package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// FileSystem is what the preprocessor needs to load sources and includes.
// Names use forward slashes and are relative to the root.
type FileSystem interface {
	// ReadFile はファイルの内容を読み込む（大文字小文字を無視）
	ReadFile(name string) ([]byte, error)
	// Exists reports whether ReadFile would find name.
	Exists(name string) bool
}

// SourceFS resolves names case-insensitively when an exact match is
// missing, so scripts written on case-insensitive systems keep working.
type SourceFS struct {
	fsys fs.FS
}

// NewSourceFS wraps fsys.
func NewSourceFS(fsys fs.FS) *SourceFS {
	return &SourceFS{fsys: fsys}
}

// NewDirFS roots a SourceFS at a directory of the real file system.
func NewDirFS(dir string) *SourceFS {
	return NewSourceFS(os.DirFS(dir))
}

func (s *SourceFS) ReadFile(name string) ([]byte, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(s.fsys, p)
}

func (s *SourceFS) Exists(name string) bool {
	_, err := s.resolve(name)
	return err == nil
}

func (s *SourceFS) resolve(name string) (string, error) {
	p := Clean(name)
	if !fs.ValidPath(p) {
		return "", &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	// まず直接アクセスを試みる
	if info, err := fs.Stat(s.fsys, p); err == nil && !info.IsDir() {
		return p, nil
	}
	return FindFileCaseInsensitive(s.fsys, path.Dir(p), path.Base(p))
}

// Clean converts name into an fs.FS path: backslashes become slashes and a
// leading slash is dropped.
func Clean(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "."
	}
	return path.Clean(name)
}

// FindFileCaseInsensitive searches dir of fsys for a regular file whose name
// equals filename ignoring case and returns its path.
//
//	p, err := FindFileCaseInsensitive(fsys, "lib", "Math.CLB")
//	// finds "lib/math.clb", "lib/MATH.CLB", ...
func FindFileCaseInsensitive(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return path.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("file not found: %s (searched in %s): %w", filename, dir, fs.ErrNotExist)
}
