// Package output formats CLI status lines. Terminals get icons and in-place
// progress; pipes and CI logs get plain tags and one line per update.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Icon kinds.
const (
	KindInfo    = "info"
	KindSuccess = "success"
	KindWarning = "warning"
	KindError   = "error"
	KindDumb    = "dumb"
	KindSmart   = "smart"
)

var richIcons = map[string]string{
	KindInfo:    "ℹ️ ",
	KindSuccess: "✅",
	KindWarning: "⚠️ ",
	KindError:   "❌",
	KindDumb:    "⏳",
	KindSmart:   "⚡",
}

var plainIcons = map[string]string{
	KindInfo:    "[info]",
	KindSuccess: "[ok]",
	KindWarning: "[warn]",
	KindError:   "[error]",
	KindDumb:    "[dumb]",
	KindSmart:   "[smart]",
}

// Writer provides formatted output for the CLI.
type Writer struct {
	out  io.Writer
	rich bool
}

// New creates a Writer, choosing rich output when out is an interactive
// terminal outside CI and NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return &Writer{out: out, rich: IsTTY(out) && !DetectCI() && !DetectNoColor()}
}

// NewPlain creates a Writer that never uses icons or carriage returns.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Rich reports whether icons and in-place progress are used.
func (w *Writer) Rich() bool { return w.rich }

func (w *Writer) icon(kind string) string {
	if w.rich {
		return richIcons[kind]
	}
	return plainIcons[kind]
}

// Status prints a message prefixed with the icon for kind.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(kind, msg string) {
	if icon := w.icon(kind); icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(kind, format string, args ...any) {
	w.Status(kind, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status(KindSuccess, msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) { w.Statusf(KindSuccess, format, args...) }

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status(KindWarning, msg) }

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) { w.Statusf(KindWarning, format, args...) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status(KindError, msg) }

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) { w.Statusf(KindError, format, args...) }

// Mode prints an index mode change.
func (w *Writer) Mode(dumb bool, counter int) {
	if dumb {
		w.Statusf(KindDumb, "dumb mode (%d pending)", counter)
		return
	}
	w.Status(KindSmart, "smart mode")
}

// Fields prints key/value pairs sorted by key, one per line.
func (w *Writer) Fields(fields map[string]string) {
	keys := make([]string, 0, len(fields))
	width := 0
	for k := range fields {
		keys = append(keys, k)
		width = max(width, len(k)+1)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w.out, "  %-*s  %s\n", width, k+":", fields[k])
	}
}

// Code prints a block indented by two spaces.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints a progress bar for a fraction in [0,1]. Rich writers
// redraw in place; plain writers print a line per call.
func (w *Writer) Progress(fraction float64, msg string) {
	fraction = min(max(fraction, 0), 1)
	bar := renderProgressBar(fraction, 30)
	if w.rich {
		_, _ = fmt.Fprintf(w.out, "\r[%s] %3.0f%% %s", bar, fraction*100, msg)
		if fraction >= 1 {
			_, _ = fmt.Fprintln(w.out)
		}
		return
	}
	_, _ = fmt.Fprintf(w.out, "[%s] %3.0f%% %s\n", bar, fraction*100, msg)
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(fraction float64, width int) string {
	filled := min(max(int(fraction*float64(width)), 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
