package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a diagnostic.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
	Help    Level = "help"
)

// Position is a 1-based line and column in a source file.
type Position struct {
	Line   int
	Column int
}

// Diagnostic is a located message with optional suggestions and notes.
type Diagnostic struct {
	Level       Level
	Code        string
	Message     string
	Position    Position
	Length      int // columns underlined at Position
	Suggestions []Suggestion
	Notes       []string
	HelpText    string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%d:%d: %s", d.Position.Line, d.Position.Column, d.Message)
}

type Suggestion struct {
	Message     string
	Replacement string
}

// Reporter renders diagnostics against the source they refer to.
type Reporter struct {
	filename string
	lines    []string
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// Format renders d as a header, a location line, the offending source line
// framed by its neighbours, a caret marker, and any suggestions and notes.
func (r *Reporter) Format(d Diagnostic) string {
	var b strings.Builder

	level := levelColor(d.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if d.Code != "" {
		fmt.Fprintf(&b, "%s[%s]: %s\n", level(string(d.Level)), d.Code, d.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", level(string(d.Level)), d.Message)
	}

	line := d.Position.Line
	width := gutterWidth(line)
	indent := strings.Repeat(" ", width)
	bar := dim("│")

	fmt.Fprintf(&b, "%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, line, d.Position.Column)
	fmt.Fprintf(&b, "%s %s\n", indent, bar)

	if line > 1 && line-1 <= len(r.lines) {
		fmt.Fprintf(&b, "%s %s %s\n", dim(fmt.Sprintf("%*d", width, line-1)), bar, r.lines[line-2])
	}
	if line > 0 && line <= len(r.lines) {
		fmt.Fprintf(&b, "%s %s %s\n", bold(fmt.Sprintf("%*d", width, line)), bar, r.lines[line-1])
		fmt.Fprintf(&b, "%s %s %s\n", indent, bar, marker(d.Position.Column, d.Length, d.Level))
	}
	if line > 0 && line < len(r.lines) && r.lines[line] != "" {
		fmt.Fprintf(&b, "%s %s %s\n", dim(fmt.Sprintf("%*d", width, line+1)), bar, r.lines[line])
	}

	if len(d.Suggestions) > 0 {
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Fprintf(&b, "%s %s\n", indent, bar)
		for i, s := range d.Suggestions {
			if i == 0 {
				fmt.Fprintf(&b, "%s %s: %s\n", indent, cyan("help"), s.Message)
			} else {
				fmt.Fprintf(&b, "%s       %s\n", indent, s.Message)
			}
			if s.Replacement != "" {
				fmt.Fprintf(&b, "%s %s %s\n", indent, cyan("│"), cyan(s.Replacement))
			}
		}
	}

	blue := color.New(color.FgBlue).SprintFunc()
	for _, note := range d.Notes {
		fmt.Fprintf(&b, "%s %s %s %s\n", indent, bar, blue("note:"), note)
	}
	if d.HelpText != "" {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(&b, "%s %s %s %s\n", indent, bar, green("help:"), d.HelpText)
	}

	b.WriteString("\n")
	return b.String()
}

// FormatAll renders every diagnostic in order.
func (r *Reporter) FormatAll(ds []Diagnostic) string {
	var b strings.Builder
	for _, d := range ds {
		b.WriteString(r.Format(d))
	}
	return b.String()
}

func levelColor(level Level) func(...any) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func marker(column, length int, level Level) string {
	if length <= 0 {
		length = 1
	}
	return strings.Repeat(" ", max(0, column-1)) + levelColor(level)(strings.Repeat("^", length))
}

// gutterWidth is the width of the line-number column, at least 3.
func gutterWidth(line int) int {
	return max(3, len(fmt.Sprint(line)))
}
