// Package output formats CLI output: status lines, source tables and
// search results, colored only when writing to a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/search"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool

	ok    lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	head  lipgloss.Style
	faint lipgloss.Style
}

// New creates a Writer. Color is used when out is a terminal and NO_COLOR
// is unset.
func New(out io.Writer) *Writer {
	return NewWithColor(out, isTerminal(out) && os.Getenv("NO_COLOR") == "")
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	w := &Writer{out: out, useColor: useColor}
	if useColor {
		w.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		w.warn = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
		w.bad = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		w.head = lipgloss.NewStyle().Bold(true)
		w.faint = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	}
	return w
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Status prints a message with an icon. Write errors are ignored.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
	}
}

func (w *Writer) Success(msg string) { w.Status(w.ok.Render("✓"), msg) }
func (w *Writer) Warning(msg string) { w.Status(w.warn.Render("!"), msg) }
func (w *Writer) Error(msg string)   { w.Status(w.bad.Render("✗"), msg) }

func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }
func (w *Writer) Errorf(format string, args ...any)   { w.Error(fmt.Sprintf(format, args...)) }

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Sources prints one row per source: id, total length, filename.
func (w *Writer) Sources(sources []registry.SourceInfo) {
	if len(sources) == 0 {
		w.Status("", "No sources.")
		return
	}

	idWidth := len("SOURCE ID")
	for _, s := range sources {
		idWidth = max(idWidth, len(s.SourceID))
	}

	header := fmt.Sprintf("%-*s  %10s  %s", idWidth, "SOURCE ID", "CHARS", "FILENAME")
	_, _ = fmt.Fprintln(w.out, w.head.Render(header))
	total := 0
	for _, s := range sources {
		_, _ = fmt.Fprintf(w.out, "%-*s  %10d  %s\n", idWidth, s.SourceID, s.TotalLength, s.Filename)
		total += s.TotalLength
	}
	_, _ = fmt.Fprintln(w.out, w.faint.Render(fmt.Sprintf("%d sources, %d characters", len(sources), total)))
}

// SearchResult prints ranked passages, then every matched filename.
func (w *Writer) SearchResult(res *search.Result) {
	if res == nil || len(res.Passages) == 0 {
		w.Status("", "No results.")
		return
	}

	for i, p := range res.Passages {
		title := fmt.Sprintf("[%d]", i+1)
		if i < len(res.Scores) {
			title += fmt.Sprintf(" score %.3f", res.Scores[i])
		}
		_, _ = fmt.Fprintln(w.out, w.head.Render(title))
		for _, line := range strings.Split(strings.TrimSpace(p), "\n") {
			_, _ = fmt.Fprintf(w.out, "  %s\n", line)
		}
		_, _ = fmt.Fprintln(w.out)
	}
	_, _ = fmt.Fprintln(w.out, w.faint.Render("files: "+strings.Join(res.Filenames, ", ")))
}
