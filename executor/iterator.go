package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/buffer"
)

/*
BatchIterator adapts a Producer into a row-at-a-time cursor that can mark,
reset and seek. Without a buffer it only moves forward. With a buffer bound it
can replay rows it has already returned, in one of two modes:

  - eager: every batch pulled from the producer is appended to the buffer
    immediately, so any row produced so far can be revisited.

  - save-on-mark: nothing is buffered until Mark is called. From then on each
    row returned by NextTuple is appended to the buffer if it is not already
    there. Only the most recent mark is honored: marking at a position past
    the buffered rows purges the buffer and starts over.

The iterator's position is the number of the next row NextTuple returns. Rows
at or below the buffered index are read back from the buffer rather than
pulled from the producer again, so replayed rows are the rows first produced.
*/

////////////////////////////////////////////////////////////////////////////////

// BatchIterator is a resumable, optionally buffered cursor over a producer.
type BatchIterator struct {
	source Producer

	pos        int
	pending    batch.Row
	hasPending bool
	current    *batch.Batch
	produced   int
	terminal   bool

	buf           *buffer.TupleBuffer
	cursor        *buffer.Cursor
	saveOnMark    bool
	bufferedIndex int
	mark          bool
	markedAt      int
	stale         bool
}

// NewBatchIterator returns an iterator positioned at row 1 of source.
func NewBatchIterator(source Producer) *BatchIterator {
	return &BatchIterator{source: source, pos: 1}
}

// SetBuffer binds a buffer. The iterator takes ownership of the buffer and
// removes it on CloseSource. A buffer must be bound before any rows are
// pulled from the producer.
func (it *BatchIterator) SetBuffer(buf *buffer.TupleBuffer, saveOnMark bool) error {
	if it.produced > 0 {
		return UnsupportedOperationError{Op: "SetBuffer", Reason: "rows have already been produced"}
	}
	it.buf = buf
	it.cursor = buf.CreateCursor()
	it.saveOnMark = saveOnMark
	return nil
}

// Buffer returns the bound buffer, or nil.
func (it *BatchIterator) Buffer() *buffer.TupleBuffer {
	return it.buf
}

// HasNext reports whether a row is available at the current position.
// StatusReady means NextTuple will return it; StatusBlocked means the producer
// is not ready and the call should be retried; StatusExhausted means there
// are no more rows.
func (it *BatchIterator) HasNext(ctx context.Context) (batch.Status, error) {
	if it.hasPending {
		return batch.StatusReady, nil
	}
	for {
		if it.cursor != nil && it.pos <= it.bufferedIndex {
			it.cursor.SetPosition(it.pos)
			row, err := it.cursor.Next(ctx)
			if err == nil {
				it.pending, it.hasPending = row, true
				return batch.StatusReady, nil
			}
			if !errors.Is(err, buffer.RowNotBufferedError{}) {
				return batch.StatusExhausted, fmt.Errorf("failed to read buffered row %d: %w", it.pos, err)
			}
		}
		if it.current != nil && it.current.Contains(it.pos) {
			it.pending, it.hasPending = it.current.Row(it.pos), true
			return batch.StatusReady, nil
		}
		if it.pos <= it.produced {
			return batch.StatusExhausted, UnsupportedOperationError{
				Op:     "HasNext",
				Reason: fmt.Sprintf("row %d is no longer available", it.pos),
			}
		}
		if it.terminal {
			it.current = nil
			return batch.StatusExhausted, nil
		}
		res, err := it.source.NextBatch(ctx)
		if err != nil {
			return batch.StatusExhausted, err
		}
		if res.Blocked() {
			return batch.StatusBlocked, nil
		}
		b := res.Batch()
		if err := checkContiguous(it.source, it.produced, b); err != nil {
			return batch.StatusExhausted, err
		}
		it.produced = b.EndRow()
		it.terminal = b.Terminal()
		it.current = b
		if it.buf != nil && !it.saveOnMark {
			if err := it.buf.AddTupleBatch(ctx, b, true); err != nil {
				return batch.StatusExhausted, fmt.Errorf("failed to buffer batch: %w", err)
			}
			it.bufferedIndex = b.EndRow()
		}
	}
}

// NextTuple returns the row at the current position and advances. The status
// is as for HasNext; a row is returned only with StatusReady.
func (it *BatchIterator) NextTuple(ctx context.Context) (batch.Row, batch.Status, error) {
	status, err := it.HasNext(ctx)
	if err != nil || status != batch.StatusReady {
		return nil, status, err
	}
	row := it.pending
	it.pending, it.hasPending = nil, false
	n := it.pos
	it.pos++
	if it.mark && it.saveOnMark {
		if err := it.save(ctx, n, row); err != nil {
			return nil, batch.StatusExhausted, err
		}
	}
	return row, batch.StatusReady, nil
}

// save appends row n to the buffer if the buffer does not already hold it.
func (it *BatchIterator) save(ctx context.Context, n int, row batch.Row) error {
	if it.stale {
		if err := it.buf.Purge(ctx); err != nil {
			return fmt.Errorf("failed to purge buffer: %w", err)
		}
		it.stale = false
	}
	if n > it.buf.RowCount() {
		if n-1 != it.buf.RowCount() {
			if err := it.buf.SetRowCount(ctx, n-1); err != nil {
				return fmt.Errorf("failed to buffer row %d: %w", n, err)
			}
		}
		if err := it.buf.AddTuple(ctx, row); err != nil {
			return fmt.Errorf("failed to buffer row %d: %w", n, err)
		}
		it.bufferedIndex = n
	}
	return nil
}

// Mark remembers the current position as the target of Reset. In
// save-on-mark mode, marking at a row the buffer does not hold (past the
// buffered rows, or at or below the buffer's origin) discards the buffered
// rows; the buffer is purged before the next row is saved.
func (it *BatchIterator) Mark() {
	if it.cursor != nil {
		it.cursor.SetPosition(it.pos)
		it.cursor.Mark()
		if it.saveOnMark && !it.buffered(it.pos) {
			it.stale = true
			it.bufferedIndex = 0
		}
	}
	it.mark = true
	it.markedAt = it.pos
}

// Reset returns to the position of the last mark, or row 1 if never marked,
// and ends save-on-mark buffering. It fails if no buffer is bound.
func (it *BatchIterator) Reset() error {
	if it.cursor == nil {
		return UnsupportedOperationError{Op: "Reset", Reason: "no buffer is bound"}
	}
	it.mark = false
	it.cursor.Reset()
	if idx := it.cursor.CurrentIndex(); idx != it.pos {
		it.pos = idx
		it.pending, it.hasPending = nil, false
	}
	return nil
}

// SetPosition seeks so that the next row returned is row n. Seeking forward
// past the rows produced so far pulls from the producer on the next read.
// Seeking backward requires a buffer.
//
// In save-on-mark mode with a mark active, a forward seek past the end of the
// buffered rows would leave a gap in the buffer; the mark moves to n instead.
func (it *BatchIterator) SetPosition(n int) error {
	if n < 1 {
		return UnsupportedOperationError{Op: "SetPosition", Reason: fmt.Sprintf("invalid row %d", n)}
	}
	if it.cursor == nil && n < it.pos {
		return UnsupportedOperationError{Op: "SetPosition", Reason: "backwards positioning is not allowed"}
	}
	if n != it.pos {
		it.pos = n
		it.pending, it.hasPending = nil, false
	}
	if it.cursor != nil {
		it.cursor.SetPosition(n)
		if it.saveOnMark && it.mark && n > it.savedThrough()+1 {
			it.cursor.Mark()
			it.markedAt = n
			it.bufferedIndex = 0
			it.stale = true
		}
	}
	return nil
}

// savedThrough returns the last row covered by save-on-mark buffering:
// the buffered index, or the row before the mark if nothing is buffered yet.
func (it *BatchIterator) savedThrough() int {
	if it.bufferedIndex > 0 {
		return it.bufferedIndex
	}
	return it.markedAt - 1
}

// buffered reports whether row n is held by the bound buffer.
func (it *BatchIterator) buffered(n int) bool {
	return n <= it.bufferedIndex && n > it.buf.Origin()
}

// CurrentIndex returns the number of the next row NextTuple returns.
func (it *BatchIterator) CurrentIndex() int {
	return it.pos
}

// Available returns the number of rows that can be returned without pulling
// from the producer: from the buffer if the current row is buffered, else
// from the batch in hand, else zero.
func (it *BatchIterator) Available() int {
	if it.cursor != nil && it.buffered(it.pos) {
		it.cursor.SetPosition(it.pos)
		return it.cursor.Available()
	}
	if it.current != nil && it.current.Contains(it.pos) {
		return it.current.EndRow() - it.pos + 1
	}
	return 0
}

// Schema returns the producer's output elements.
func (it *BatchIterator) Schema() batch.Schema {
	return it.source.OutputElements()
}

// CloseSource removes the bound buffer, if any, and detaches it.
func (it *BatchIterator) CloseSource(ctx context.Context) error {
	if it.buf == nil {
		return nil
	}
	err := it.buf.Remove(ctx)
	it.buf = nil
	it.cursor = nil
	it.bufferedIndex = 0
	it.mark = false
	it.stale = false
	if err != nil {
		return fmt.Errorf("failed to remove buffer: %w", err)
	}
	return nil
}

// Close removes the bound buffer and closes the producer.
func (it *BatchIterator) Close(ctx context.Context) error {
	return errors.Join(it.CloseSource(ctx), it.source.Close(ctx))
}

// String returns a string representation of the iterator.
func (it *BatchIterator) String() string {
	return fmt.Sprintf("[iterator %d %s]", it.pos, it.source.String())
}
