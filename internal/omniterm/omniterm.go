// Package omniterm renders status lines and diagnostics to stderr (spec
// §10.2's ambient logging plan): colored ✓/✗/!/→ indicators for step
// results, and a --verbose/OMNI_DEBUG-gated Debugf.
package omniterm

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Semantic color palette (brand/success/error/warning/muted/accent).
const (
	colorBrand   = "42"  // green, omni's own brand/success color
	colorSuccess = "42"  // green, step succeeded
	colorError   = "203" // red, step failed
	colorWarning = "214" // orange, not-applicable / skipped
	colorMuted   = "240" // dark gray, debug/hint text
	colorAccent  = "45"  // cyan, highlighted names (operation kinds, paths)
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorError))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent))
	brandStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorBrand)).Bold(true)
)

// Status is the glyph kind a status line renders.
type Status int

const (
	StatusOK Status = iota
	StatusFail
	StatusSkip // not-applicable
	StatusInfo // in-progress / informational arrow
)

// Terminal writes status lines and debug diagnostics to one stream (always
// stderr in production; a buffer in tests). Non-interactive contexts (the
// hook, shims) never construct one; they only ever write shell commands to
// stdout, per spec §4.5.
type Terminal struct {
	w       io.Writer
	verbose bool
}

// New builds a Terminal writing to w. verbose additionally enables Debugf
// output; production code passes os.Stderr and
// verbose || os.Getenv("OMNI_DEBUG") != "".
func New(w io.Writer, verbose bool) *Terminal {
	return &Terminal{w: w, verbose: verbose}
}

// Stderr builds the default production Terminal, honoring --verbose (the
// cliVerbose argument) or OMNI_DEBUG.
func Stderr(cliVerbose bool) *Terminal {
	return New(os.Stderr, cliVerbose || os.Getenv("OMNI_DEBUG") != "")
}

func glyph(s Status) (string, lipgloss.Style) {
	switch s {
	case StatusOK:
		return "✓", successStyle
	case StatusFail:
		return "✗", errorStyle
	case StatusSkip:
		return "!", warningStyle
	default:
		return "→", mutedStyle
	}
}

// Step renders one pipeline step's result: "<glyph> <kind> <detail>".
func (t *Terminal) Step(s Status, kind, detail string) {
	sym, style := glyph(s)
	name := accentStyle.Render(kind)
	if detail == "" {
		fmt.Fprintf(t.w, "%s %s\n", style.Render(sym), name)
		return
	}
	fmt.Fprintf(t.w, "%s %s %s\n", style.Render(sym), name, mutedStyle.Render(detail))
}

// Info prints a plain arrow-prefixed informational line.
func (t *Terminal) Info(format string, args ...any) {
	fmt.Fprintf(t.w, "%s %s\n", mutedStyle.Render("→"), fmt.Sprintf(format, args...))
}

// Brand prints omni's own brand-colored banner line (e.g. trust prompts,
// update notices).
func (t *Terminal) Brand(format string, args ...any) {
	fmt.Fprintln(t.w, brandStyle.Render(fmt.Sprintf(format, args...)))
}

// Debugf writes a debug diagnostic, silently dropped unless verbose/
// OMNI_DEBUG is set.
func (t *Terminal) Debugf(format string, args ...any) {
	if !t.verbose {
		return
	}
	fmt.Fprintf(t.w, "%s %s\n", mutedStyle.Render("debug:"), fmt.Sprintf(format, args...))
}
