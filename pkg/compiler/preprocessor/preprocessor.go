// Package preprocessor turns a script file into compiler input: it decodes
// the file (UTF-8, or Shift-JIS for legacy scripts), expands #include
// directives and collects #info metadata. Every output line remembers the
// file and line it came from so diagnostics can point into includes.
package preprocessor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/zurustar/clamb/pkg/fileutil"
	"github.com/zurustar/clamb/pkg/logger"
)

// MaxLineLength bounds a single source line.
const MaxLineLength = 1 << 20

// Metadata holds #info directive values.
type Metadata struct {
	Title       string
	Author      string
	Version     string
	Description string
	Custom      map[string]string
}

// Origin is the place an output line came from. Line is 1-based.
type Origin struct {
	File string
	Line int
}

func (o Origin) String() string {
	return fmt.Sprintf("%s:%d", o.File, o.Line)
}

// Result is a preprocessed program.
type Result struct {
	Source   string
	Lines    []Origin // Lines[i] is the origin of output line i+1
	Metadata *Metadata
}

// Locate maps a 1-based output line back to its origin.
func (r *Result) Locate(line int) (Origin, bool) {
	if line < 1 || line > len(r.Lines) {
		return Origin{}, false
	}
	return r.Lines[line-1], true
}

// Preprocessor handles #info and #include directives with encoding conversion.
type Preprocessor struct {
	fsys fileutil.FileSystem
	log  *slog.Logger

	metadata *Metadata
	stack    []string // files being expanded, for circular include detection
	out      strings.Builder
	lines    []Origin
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Preprocessor) {
		p.log = log
	}
}

// New creates a preprocessor reading from fsys.
func New(fsys fileutil.FileSystem, opts ...Option) *Preprocessor {
	p := &Preprocessor{fsys: fsys, log: logger.GetLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process expands filename and everything it includes.
func (p *Preprocessor) Process(filename string) (*Result, error) {
	p.metadata = &Metadata{Custom: make(map[string]string)}
	p.stack = nil
	p.out.Reset()
	p.lines = nil

	if err := p.processFile(fileutil.Clean(filename)); err != nil {
		return nil, err
	}
	p.log.Debug("preprocessed", "file", filename, "lines", len(p.lines))
	return &Result{Source: p.out.String(), Lines: p.lines, Metadata: p.metadata}, nil
}

func (p *Preprocessor) processFile(name string) error {
	for _, active := range p.stack {
		if strings.EqualFold(active, name) {
			return fmt.Errorf("circular include detected: %s -> %s", strings.Join(p.stack, " -> "), name)
		}
	}
	p.stack = append(p.stack, name)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	data, err := p.fsys.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", name, err)
	}
	text, err := Decode(data)
	if err != nil {
		return fmt.Errorf("encoding error in %s: %w", name, err)
	}
	return p.processDirectives(text, name)
}

// Decode converts source bytes to UTF-8. Valid UTF-8 (with or without a
// byte order mark) is kept; anything else is decoded as Shift-JIS.
func Decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoder := japanese.ShiftJIS.NewDecoder()
	utf8Data, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return "", fmt.Errorf("failed to decode Shift-JIS: %w", err)
	}
	return string(utf8Data), nil
}

func (p *Preprocessor) emit(line string, origin Origin) {
	p.out.WriteString(line)
	p.out.WriteByte('\n')
	p.lines = append(p.lines, origin)
}

func (p *Preprocessor) processDirectives(text, current string) error {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLength)

	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		origin := Origin{File: current, Line: n}

		switch {
		case strings.HasPrefix(trimmed, "#info"):
			if err := p.parseInfoDirective(trimmed); err != nil {
				return fmt.Errorf("%s: %w", origin, err)
			}
			// keep line numbers of the including file stable
			p.emit("", origin)

		case strings.HasPrefix(trimmed, "#include"):
			include, err := parseIncludeDirective(trimmed)
			if err != nil {
				return fmt.Errorf("%s: %w", origin, err)
			}
			target := path.Join(path.Dir(current), fileutil.Clean(include))
			if !p.fsys.Exists(target) {
				return fmt.Errorf("%s: included file not found: %s", origin, target)
			}
			if err := p.processFile(target); err != nil {
				return err
			}

		default:
			p.emit(line, origin)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", current, err)
	}
	return nil
}

// parseInfoDirective parses `#info key value`.
func (p *Preprocessor) parseInfoDirective(line string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#info"))
	key, value, ok := strings.Cut(rest, " ")
	value = strings.Trim(strings.TrimSpace(value), "\"")
	if !ok || key == "" || value == "" {
		return fmt.Errorf("invalid #info directive: %s", line)
	}
	key = strings.ToLower(key)

	switch key {
	case "title":
		p.metadata.Title = value
	case "author":
		p.metadata.Author = value
	case "version":
		p.metadata.Version = value
	case "description":
		p.metadata.Description = value
	default:
		p.metadata.Custom[key] = value
	}
	return nil
}

// parseIncludeDirective returns the file named by `#include "file"`.
func parseIncludeDirective(line string) (string, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#include"))
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", fmt.Errorf("invalid #include directive: %s", line)
	}
	return rest[1 : len(rest)-1], nil
}
