// Package output renders small, aligned tables for CLI subcommands
// like validate that print a summary of loaded configuration.
package output

import (
	"io"
	"strings"
)

// Table accumulates rows against a fixed header and renders them as a
// box-drawn table sized to its widest cell per column.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable returns an empty table with the given column headers.
func NewTable(headers []string) *Table {
	return &Table{headers: append([]string(nil), headers...)}
}

// AddRow appends row, padding with empty cells or dropping extras so
// every row lines up with the header count.
func (t *Table) AddRow(row []string) {
	fitted := make([]string, len(t.headers))
	copy(fitted, row)
	t.rows = append(t.rows, fitted)
}

// columnWidths returns the render width of each column: the header's
// length, widened by any row's cell that runs longer.
func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

// Render writes the table to w: a bordered header row, a separator,
// then one bordered line per added row.
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 {
		return nil
	}

	widths := t.columnWidths()
	var horizontal int
	for _, width := range widths {
		horizontal += width + 3
	}
	horizontal -= 1

	var b strings.Builder
	writeBorder(&b, "┌", "┐", horizontal)
	writeLine(&b, t.headers, widths)
	writeBorder(&b, "├", "┤", horizontal)
	for _, row := range t.rows {
		writeLine(&b, row, widths)
	}
	writeBorder(&b, "└", "┘", horizontal)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeBorder(b *strings.Builder, left, right string, width int) {
	b.WriteString(left)
	b.WriteString(strings.Repeat("─", width))
	b.WriteString(right)
	b.WriteByte('\n')
}

func writeLine(b *strings.Builder, cells []string, widths []int) {
	b.WriteString("│")
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteByte(' ')
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", width-len(cell)))
		b.WriteByte(' ')
		b.WriteString("│")
	}
	b.WriteByte('\n')
}
