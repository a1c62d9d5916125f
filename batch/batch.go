package batch

import (
	"fmt"
	"strings"
)

/*
The batch package defines the unit of data flow between operators: an
immutable, numbered chunk of rows. Row numbers are 1-based and dense. A batch
covers rows [BeginRow, EndRow]; an empty batch has EndRow == BeginRow - 1.
Batches from one producer arrive in increasing, contiguous order starting at
row 1, and the last one carries the terminal flag.
*/

////////////////////////////////////////////////////////////////////////////////

// Row is an ordered, fixed-arity sequence of values.
type Row []any

// Project returns a new row made of the values at the given positions.
func (r Row) Project(indexes []int) Row {
	out := make(Row, len(indexes))
	for i, idx := range indexes {
		out[i] = r[idx]
	}
	return out
}

// String returns a string representation of the row.
func (r Row) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		if v == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Batch is an immutable chunk of contiguous rows.
type Batch struct {
	beginRow int
	rows     []Row
	terminal bool
}

// New constructs a batch covering rows beginning at beginRow. The batch takes
// ownership of rows; callers must not modify the slice afterward.
func New(beginRow int, rows []Row, terminal bool) *Batch {
	if beginRow < 1 {
		panic(fmt.Sprintf("batch: begin row %d is less than 1", beginRow))
	}
	return &Batch{beginRow: beginRow, rows: rows, terminal: terminal}
}

// Empty returns an empty batch positioned at beginRow.
func Empty(beginRow int, terminal bool) *Batch {
	return New(beginRow, nil, terminal)
}

// BeginRow returns the number of the first row covered by the batch.
func (b *Batch) BeginRow() int {
	return b.beginRow
}

// EndRow returns the number of the last row covered by the batch.
func (b *Batch) EndRow() int {
	return b.beginRow + len(b.rows) - 1
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.rows)
}

// Terminal reports whether no further batches follow this one.
func (b *Batch) Terminal() bool {
	return b.terminal
}

// Rows returns the rows of the batch. The result must not be modified.
func (b *Batch) Rows() []Row {
	return b.rows
}

// Contains reports whether row number n is covered by the batch.
func (b *Batch) Contains(n int) bool {
	return n >= b.beginRow && n <= b.EndRow()
}

// Row returns row number n. It panics if n is not covered; a request for a row
// outside the batch is a sequencing bug in the caller.
func (b *Batch) Row(n int) Row {
	if !b.Contains(n) {
		panic(fmt.Sprintf("batch: row %d out of range [%d, %d]", n, b.beginRow, b.EndRow()))
	}
	return b.rows[n-b.beginRow]
}

// Follows reports whether b begins immediately after prev. A nil prev means b
// must begin at row 1.
func (b *Batch) Follows(prev *Batch) bool {
	if prev == nil {
		return b.beginRow == 1
	}
	return b.beginRow == prev.EndRow()+1
}

// String returns a string representation of the batch.
func (b *Batch) String() string {
	terminal := ""
	if b.terminal {
		terminal = " terminal"
	}
	return fmt.Sprintf("[batch %d-%d%s]", b.beginRow, b.EndRow(), terminal)
}
