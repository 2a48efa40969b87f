// Package ui formats command output: tables, status lines and errors with
// suggestions
package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Table renders rows under a bold header and a rule
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{writer: w, headers: headers}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cells := make([]string, len(t.headers))
	for i, header := range t.headers {
		cells[i] = bold.Sprint(padRight(header, widths[i]))
	}
	fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))

	for i, width := range widths {
		cells[i] = gray.Sprint(strings.Repeat("─", width))
	}
	fmt.Fprintln(t.writer, strings.Join(cells, "  "))

	for _, row := range t.rows {
		out := make([]string, 0, len(widths))
		for i := 0; i < len(row) && i < len(widths); i++ {
			out = append(out, padRight(row[i], widths[i]))
		}
		fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(out, "  "), " "))
	}
}

// KeyValue writes aligned "key: value" lines
func KeyValue(w io.Writer, pairs ...[2]string) {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	cyan := color.New(color.FgCyan)
	for _, p := range pairs {
		fmt.Fprintf(w, "%s %s\n", cyan.Sprint(padRight(p[0]+":", width+1)), p[1])
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Success writes a green check line
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.New(color.FgGreen, color.Bold).Sprintf("✓ "+format, args...))
}

// Skipped writes a gray line for work that did not apply
func Skipped(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.New(color.FgHiBlack).Sprintf("- "+format, args...))
}

// NotFoundError formats a lookup failure with the closest known names
func NotFoundError(kind, name string, known []string) error {
	msg := fmt.Sprintf("%s %q not found", kind, name)
	if similar := FindSimilar(name, known, DefaultMaxDistance, DefaultMaxSuggestions); len(similar) > 0 {
		msg += fmt.Sprintf("; did you mean %s?", strings.Join(similar, ", "))
	}
	return fmt.Errorf("%s", msg)
}

const (
	// DefaultMaxDistance is the largest edit distance offered as a suggestion
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions caps the number of suggestions
	DefaultMaxSuggestions = 3
)

// FindSimilar returns up to max candidates within maxDistance edits of
// target, closest first, ignoring case
func FindSimilar(target string, candidates []string, maxDistance, max int) []string {
	type scored struct {
		value    string
		distance int
	}
	var matches []scored
	for _, c := range candidates {
		if d := LevenshteinDistance(strings.ToLower(target), strings.ToLower(c)); d <= maxDistance {
			matches = append(matches, scored{value: c, distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, max)
	for i := 0; i < len(matches) && i < max; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// LevenshteinDistance is the number of single byte edits turning s1 into s2
func LevenshteinDistance(s1, s2 string) int {
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = minOf(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}

func minOf(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
