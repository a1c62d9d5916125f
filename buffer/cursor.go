package buffer

import (
	"context"
	"io"

	"github.com/fedquery/fq/batch"
)

// Cursor is an independent read position over a tuple buffer. It holds only
// an index, a mark and a reference to the buffer, and may be positioned
// anywhere, including backward.
type Cursor struct {
	buf   *TupleBuffer
	index int
	mark  int
}

// Next returns the row at the cursor's index and advances it. It returns
// io.EOF when the index is past the buffer's row count.
func (c *Cursor) Next(ctx context.Context) (batch.Row, error) {
	if c.buf.removed {
		return nil, UseAfterRemoveError{BufferID: c.buf.id}
	}
	if c.index > c.buf.rowCount {
		return nil, io.EOF
	}
	if c.index <= c.buf.origin {
		return nil, RowNotBufferedError{Row: c.index, Origin: c.buf.origin}
	}
	row, err := c.buf.row(ctx, c.index)
	if err != nil {
		return nil, err
	}
	c.index++
	return row, nil
}

// SetPosition moves the cursor so that the next row returned is row n.
func (c *Cursor) SetPosition(n int) {
	c.index = n
}

// Mark remembers the current index.
func (c *Cursor) Mark() {
	c.mark = c.index
}

// Reset returns the cursor to the last mark, or row 1 if never marked.
func (c *Cursor) Reset() {
	c.index = c.mark
}

// CurrentIndex returns the number of the next row the cursor will return.
func (c *Cursor) CurrentIndex() int {
	return c.index
}

// Available returns the number of rows readable from the current index
// without further appends. It is zero when the row at the index is at or
// below the buffer's origin.
func (c *Cursor) Available() int {
	if c.buf.removed || c.index <= c.buf.origin {
		return 0
	}
	return max(c.buf.rowCount-c.index+1, 0)
}

// Buffer returns the buffer the cursor reads.
func (c *Cursor) Buffer() *TupleBuffer {
	return c.buf
}
