/*
tablewriter.go

MIT License

Copyright (c) Foxglove Technologies Inc

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

/*
 Taken from https://github.com/foxglove/foxglove-cli/blob/main/foxglove/util/tablewriter/tablewriter.go
*/

package util

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fedquery/fq/batch"
)

// table holds result cells already rendered to text.
type table struct {
	headers []string
	cells   [][]string
}

// FormatCell renders one result value. Nulls print as "null" and timestamps
// as RFC 3339 with nanoseconds.
func FormatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func newTable(headers []string, rows []batch.Row) table {
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = FormatCell(v)
		}
	}
	return table{headers: headers, cells: cells}
}

// columnWidths returns the width of each grid column and of the whole grid.
// Headers get two spaces of padding per side, cells one, and each column is
// widened to an even split around its header.
func (t table) columnWidths() ([]int, int) {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header) + 4
	}
	for _, row := range t.cells {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell)+2)
		}
	}
	total := len(t.headers) + 1
	for i, header := range t.headers {
		if (widths[i]-len(header))%2 == 1 {
			widths[i]++
		}
		total += widths[i]
	}
	return widths, total
}

/*
grid writes the table with centered headers:

	|  id  |  name  |
	|------|--------|
	| 1    | bolt   |
*/
func (t table) grid(w io.Writer) {
	widths, _ := t.columnWidths()
	var sb strings.Builder
	sb.WriteByte('|')
	for i, header := range t.headers {
		pad := strings.Repeat(" ", (widths[i]-len(header))/2)
		sb.WriteString(pad + header + pad + "|")
	}
	sb.WriteString("\n|")
	for _, width := range widths {
		sb.WriteString(strings.Repeat("-", width) + "|")
	}
	sb.WriteByte('\n')
	for _, row := range t.cells {
		sb.WriteByte('|')
		for i, cell := range row {
			sb.WriteString(" " + cell + strings.Repeat(" ", widths[i]-len(cell)-1) + "|")
		}
		sb.WriteByte('\n')
	}
	_, _ = io.WriteString(w, sb.String())
}

/*
records writes one block per row, for results too wide for the terminal:

	-[ RECORD 1 ]+---------------
	id           | 1
	name         | bolt
*/
func (t table) records(w io.Writer, termwidth int) {
	labelWidth := len(fmt.Sprintf("-[ RECORD %d ]", len(t.cells)+1))
	for _, header := range t.headers {
		labelWidth = max(labelWidth, len(header))
	}
	var valueWidth int
	for _, row := range t.cells {
		for _, cell := range row {
			valueWidth = max(valueWidth, len(cell))
		}
	}
	// dashes run 15 past the widest value unless that would wrap.
	extent := min(valueWidth+15, termwidth-labelWidth-1)
	rule := strings.Repeat("-", max(extent, 0))
	for i, row := range t.cells {
		label := fmt.Sprintf("-[ RECORD %d ]", i+1)
		fmt.Fprintf(w, "%s%s+%s\n", label, strings.Repeat("-", labelWidth-len(label)), rule)
		for j, cell := range row {
			fmt.Fprintf(w, "%-*s| %-*s\n", labelWidth, t.headers[j], extent-1, cell)
		}
	}
}

func termWidth() int {
	if width := readline.GetScreenWidth(); width > 0 {
		return width
	}
	return 80
}

// PrintTable writes rows under headers as a grid, or as one block per record
// when the grid would be wider than the terminal. Output that is not a
// terminal always gets the grid.
func PrintTable(w io.Writer, headers []string, rows []batch.Row) {
	t := newTable(headers, rows)
	if _, total := t.columnWidths(); !StdoutRedirected() && termWidth() < total {
		t.records(w, termWidth())
		return
	}
	t.grid(w)
}
