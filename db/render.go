package db

import (
	"fmt"
	"io"
	"strings"

	"github.com/nickyhof/GrainDB/core"
)

type alignment int

const (
	alignLeft alignment = iota
	alignRight
)

// resultTable renders query output as an ASCII grid. Numeric columns are
// right-aligned, everything else left-aligned.
type resultTable struct {
	writer  io.Writer
	headers []string
	aligns  []alignment
	rows    [][]string
}

func newResultTable(w io.Writer, columns []string, rows [][]core.Value) *resultTable {
	table := &resultTable{
		writer:  w,
		headers: columns,
		aligns:  make([]alignment, len(columns)),
		rows:    make([][]string, len(rows)),
	}

	for i, row := range rows {
		cells := make([]string, len(row))
		for j, value := range row {
			cells[j] = value.String()
			if j < len(table.aligns) && (value.Kind == core.IntKind || value.Kind == core.FloatKind) {
				table.aligns[j] = alignRight
			}
		}
		table.rows[i] = cells
	}
	return table
}

func (t *resultTable) render() {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return
	}

	widths := t.columnWidths()
	separator := t.separator(widths)

	fmt.Fprintln(t.writer, separator)
	fmt.Fprintln(t.writer, t.formatRow(t.headers, widths))
	fmt.Fprintln(t.writer, separator)
	for _, row := range t.rows {
		fmt.Fprintln(t.writer, t.formatRow(row, widths))
	}
	fmt.Fprintln(t.writer, separator)
}

func (t *resultTable) columnWidths() []int {
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
	for i := range widths {
		if widths[i] < 1 {
			widths[i] = 1
		}
	}
	return widths
}

func (t *resultTable) separator(widths []int) string {
	parts := make([]string, len(widths))
	for i, width := range widths {
		parts[i] = strings.Repeat("-", width+2)
	}
	return "+" + strings.Join(parts, "+") + "+"
}

func (t *resultTable) formatRow(row []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		pad := strings.Repeat(" ", width-len(cell))
		if t.aligns[i] == alignRight {
			parts[i] = " " + pad + cell + " "
		} else {
			parts[i] = " " + cell + pad + " "
		}
	}
	return "|" + strings.Join(parts, "|") + "|"
}
