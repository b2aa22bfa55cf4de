// Package console prints user-facing diagnostics on the error stream.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Console writes colored status lines. Color is used only when enabled and
// the writer is a terminal.
type Console struct {
	w io.Writer

	errColor  *color.Color
	warnColor *color.Color
	okColor   *color.Color
	dimColor  *color.Color
}

// New creates a Console writing to w.
func New(w io.Writer, noColor bool) *Console {
	c := &Console{
		w:         w,
		errColor:  color.New(color.FgRed, color.Bold),
		warnColor: color.New(color.FgYellow),
		okColor:   color.New(color.FgGreen),
		dimColor:  color.New(color.Faint),
	}

	useColor := !noColor && IsColorTerminal(w)
	for _, col := range []*color.Color{c.errColor, c.warnColor, c.okColor, c.dimColor} {
		if useColor {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Error prints "Error: <err>".
func (c *Console) Error(err error) {
	fmt.Fprintf(c.w, "%s %v\n", c.errColor.Sprint("Error:"), err)
}

// Warn prints "Warning: <msg>".
func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintf(c.w, "%s %s\n", c.warnColor.Sprint("Warning:"), fmt.Sprintf(format, args...))
}

// Success prints a highlighted status line.
func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.w, c.okColor.Sprintf(format, args...))
}

// Info prints a plain status line.
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Dim prints a de-emphasized status line.
func (c *Console) Dim(format string, args ...any) {
	fmt.Fprintln(c.w, c.dimColor.Sprintf(format, args...))
}

// IsColorTerminal reports whether w is a terminal that can render color.
func IsColorTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTerminal reports whether w is an interactive terminal. Binary output
// must not be written to one.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
