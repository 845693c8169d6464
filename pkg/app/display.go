package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
)

var (
	successColorFG = pterm.FgLightGreen
	successStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	errorColorFG   = pterm.FgRed
	errorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	infoColorFG    = pterm.FgLightCyan
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// display prints tagged messages; colors are only used on terminals.
type display struct {
	out, err io.Writer
}

func newDisplay(out, err io.Writer) *display {
	if isTerminal(out) {
		pterm.EnableColor()
	} else {
		pterm.DisableColor()
	}
	return &display{out: out, err: err}
}

func (d *display) success(tag, msg string) {
	fmt.Fprintln(d.out, successStyleBG.Sprint(tag)+" "+successColorFG.Sprint(msg))
}

func (d *display) result(name, value string) {
	fmt.Fprintln(d.out, infoColorFG.Sprint(name)+" = "+value)
}

func (d *display) fail(tag string, err error) {
	fmt.Fprintln(d.err, errorStyleBG.Sprint(tag)+" "+errorColorFG.Sprint(err.Error()))
}

// code prints a source excerpt or listing unstyled, indented by two spaces.
func (d *display) code(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintln(d.err, "  "+line)
	}
}

func (d *display) listing(text string) {
	fmt.Fprint(d.out, text)
}
