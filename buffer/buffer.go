package buffer

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedquery/fq/batch"
	"github.com/tidwall/btree"
)

/*
A TupleBuffer is an append-only store of rows addressed by 1-based row number.
Rows are held in pages indexed by their first row number. The last page is the
open page receiving appends; every other page is sealed and may be spilled.

The buffer tracks three positions:

  - origin: rows at or below origin are not held (they were purged or the
    buffer was created to start mid-stream).
  - frontier: the highest row stored.
  - rowCount: the highest row published to cursors. Rows between rowCount and
    frontier were appended untracked and become visible once the row count is
    advanced over them.

A buffer has one writer. Cursors read without mutating it and may be used
concurrently with each other, but not concurrently with the writer.
*/

////////////////////////////////////////////////////////////////////////////////

type page struct {
	first int
	count int
	rows  []batch.Row // nil when spilled
	key   string
}

func (p *page) last() int {
	return p.first + p.count - 1
}

func (p *page) spilled() bool {
	return p.rows == nil
}

// TupleBuffer is a spillable, row-addressable store.
type TupleBuffer struct {
	id     string
	schema batch.Schema
	mgr    *Manager

	pages *btree.Map[int, *page]
	tail  *page

	origin   int
	frontier int
	rowCount int
	spills   int
	removed  bool
}

func newTupleBuffer(mgr *Manager, id string, schema batch.Schema) *TupleBuffer {
	return &TupleBuffer{
		id:     id,
		schema: schema,
		mgr:    mgr,
		pages:  btree.NewMap[int, *page](0),
	}
}

// ID returns the buffer's identifier.
func (b *TupleBuffer) ID() string {
	return b.id
}

// Schema returns the buffer's schema.
func (b *TupleBuffer) Schema() batch.Schema {
	return b.schema
}

// RowCount returns the highest row number published to cursors.
func (b *TupleBuffer) RowCount() int {
	return b.rowCount
}

// Origin returns the highest row number below which no rows are held. Rows
// at or below the origin are not buffered.
func (b *TupleBuffer) Origin() int {
	return b.origin
}

// Removed reports whether the buffer has been removed.
func (b *TupleBuffer) Removed() bool {
	return b.removed
}

// SpilledPages returns the number of pages currently held in spill storage.
func (b *TupleBuffer) SpilledPages() int {
	n := 0
	b.pages.Scan(func(_ int, p *page) bool {
		if p.spilled() {
			n++
		}
		return true
	})
	return n
}

// AddTupleBatch appends the rows of bt, which must begin immediately after the
// rows already stored. If trackRowCount is set the row count is advanced to
// the batch's end row; otherwise the rows are stored but not yet visible. If
// spilling fails the appended rows are discarded.
func (b *TupleBuffer) AddTupleBatch(ctx context.Context, bt *batch.Batch, trackRowCount bool) error {
	if b.removed {
		return UseAfterRemoveError{BufferID: b.id}
	}
	if bt.BeginRow() != b.frontier+1 {
		return OutOfSequenceError{Expected: b.frontier + 1, Got: bt.BeginRow()}
	}
	for i, row := range bt.Rows() {
		if err := b.checkArity(bt.BeginRow()+i, row); err != nil {
			return err
		}
	}
	frontier, rowCount := b.frontier, b.rowCount
	for _, row := range bt.Rows() {
		b.append(row)
	}
	if trackRowCount {
		b.rowCount = b.frontier
	}
	if err := b.enforceLimit(ctx); err != nil {
		return errors.Join(err, b.rollback(ctx, frontier, rowCount))
	}
	return nil
}

// AddTuple appends a single row at RowCount()+1 and publishes it. It fails if
// untracked rows are pending. A failed append leaves the buffer as it was.
func (b *TupleBuffer) AddTuple(ctx context.Context, row batch.Row) error {
	if b.removed {
		return UseAfterRemoveError{BufferID: b.id}
	}
	if b.frontier != b.rowCount {
		return OutOfSequenceError{Expected: b.frontier + 1, Got: b.rowCount + 1}
	}
	if err := b.checkArity(b.frontier+1, row); err != nil {
		return err
	}
	frontier := b.frontier
	b.append(row)
	b.rowCount = b.frontier
	if err := b.enforceLimit(ctx); err != nil {
		return errors.Join(err, b.rollback(ctx, frontier, frontier))
	}
	return nil
}

// SetRowCount sets the row count to n. If n is at or below the highest stored
// row the buffer is truncated to n. On a buffer holding no rows, n may be
// larger than the current count, in which case the buffer begins after row n
// and rows 1 through n are reported as not buffered.
func (b *TupleBuffer) SetRowCount(ctx context.Context, n int) error {
	if b.removed {
		return UseAfterRemoveError{BufferID: b.id}
	}
	if n < 0 {
		return OutOfSequenceError{Expected: b.frontier, Got: n}
	}
	if b.frontier == b.origin || n <= b.origin {
		if err := b.dropAll(ctx); err != nil {
			return err
		}
		b.origin, b.frontier, b.rowCount = n, n, n
		return nil
	}
	if n > b.frontier {
		return OutOfSequenceError{Expected: b.frontier, Got: n}
	}
	if err := b.truncate(ctx, n); err != nil {
		return err
	}
	b.frontier, b.rowCount = n, n
	return nil
}

// Purge discards every row and resets the buffer to empty.
func (b *TupleBuffer) Purge(ctx context.Context) error {
	if b.removed {
		return UseAfterRemoveError{BufferID: b.id}
	}
	if err := b.dropAll(ctx); err != nil {
		return err
	}
	b.origin, b.frontier, b.rowCount = 0, 0, 0
	return nil
}

// Remove releases all storage held by the buffer. Any later use of the buffer
// or its cursors fails with UseAfterRemoveError. Removing twice is an error.
func (b *TupleBuffer) Remove(ctx context.Context) error {
	if b.removed {
		return UseAfterRemoveError{BufferID: b.id}
	}
	err := b.dropAll(ctx)
	b.removed = true
	b.mgr.release(b)
	return err
}

// CreateCursor returns a new cursor positioned at row 1.
func (b *TupleBuffer) CreateCursor() *Cursor {
	return &Cursor{buf: b, index: 1, mark: 1}
}

// String returns a string representation of the buffer.
func (b *TupleBuffer) String() string {
	return fmt.Sprintf("buffer %s (rows %d-%d, %d pages)", b.id, b.origin+1, b.rowCount, b.pages.Len())
}

func (b *TupleBuffer) checkArity(n int, row batch.Row) error {
	if len(b.schema) > 0 && len(row) != len(b.schema) {
		return ArityError{Row: n, Expected: len(b.schema), Got: len(row)}
	}
	return nil
}

func (b *TupleBuffer) append(row batch.Row) {
	if b.tail == nil || b.tail.count >= b.mgr.pageRows {
		b.tail = &page{first: b.frontier + 1, rows: make([]batch.Row, 0, b.mgr.pageRows)}
		b.pages.Set(b.tail.first, b.tail)
	}
	b.tail.rows = append(b.tail.rows, row)
	b.tail.count++
	b.frontier++
	b.mgr.resident.Add(1)
}

// enforceLimit spills sealed resident pages, oldest first, while the manager
// is over its memory limit.
func (b *TupleBuffer) enforceLimit(ctx context.Context) error {
	if !b.mgr.overLimit() {
		return nil
	}
	var candidates []*page
	b.pages.Scan(func(_ int, p *page) bool {
		if p != b.tail && !p.spilled() {
			candidates = append(candidates, p)
		}
		return true
	})
	for _, p := range candidates {
		if !b.mgr.overLimit() {
			return nil
		}
		key := fmt.Sprintf("%s-%d", b.id, b.spills)
		if err := b.mgr.spill(ctx, key, p.rows); err != nil {
			return err
		}
		b.spills++
		p.key = key
		p.rows = nil
		b.mgr.resident.Add(-int64(p.count))
	}
	return nil
}

// rollback discards the rows stored above frontier by a failed append and
// restores the row count.
func (b *TupleBuffer) rollback(ctx context.Context, frontier, rowCount int) error {
	if frontier == b.frontier {
		return nil
	}
	if frontier <= b.origin {
		if err := b.dropAll(ctx); err != nil {
			return err
		}
	} else if err := b.truncate(ctx, frontier); err != nil {
		return err
	}
	b.frontier, b.rowCount = frontier, rowCount
	return nil
}

// truncate drops every row above n, where origin < n <= frontier.
func (b *TupleBuffer) truncate(ctx context.Context, n int) error {
	var drop []*page
	b.pages.Ascend(n+1, func(_ int, p *page) bool {
		drop = append(drop, p)
		return true
	})
	for _, p := range drop {
		if err := b.dropPage(ctx, p); err != nil {
			return err
		}
	}
	p := b.pageFor(n)
	if p == nil {
		b.tail = nil
		return nil
	}
	if p.last() > n {
		keep := n - p.first + 1
		if p.spilled() {
			rows, err := b.mgr.load(ctx, p.key)
			if err != nil {
				return err
			}
			kept := make([]batch.Row, keep, b.mgr.pageRows)
			copy(kept, rows[:keep])
			if err := b.mgr.discard(ctx, p.key); err != nil {
				return err
			}
			p.rows, p.key = kept, ""
			b.mgr.resident.Add(int64(keep))
		} else {
			b.mgr.resident.Add(-int64(p.count - keep))
			p.rows = p.rows[:keep]
		}
		p.count = keep
	}
	b.tail = nil
	if !p.spilled() {
		b.tail = p
	}
	return nil
}

func (b *TupleBuffer) dropPage(ctx context.Context, p *page) error {
	b.pages.Delete(p.first)
	if p.spilled() {
		return b.mgr.discard(ctx, p.key)
	}
	b.mgr.resident.Add(-int64(p.count))
	return nil
}

func (b *TupleBuffer) dropAll(ctx context.Context) error {
	var pages []*page
	b.pages.Scan(func(_ int, p *page) bool {
		pages = append(pages, p)
		return true
	})
	var errs []error
	for _, p := range pages {
		if err := b.dropPage(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	b.tail = nil
	return errors.Join(errs...)
}

// pageFor returns the page holding row n, or nil.
func (b *TupleBuffer) pageFor(n int) *page {
	var found *page
	b.pages.Descend(n, func(_ int, p *page) bool {
		found = p
		return false
	})
	if found == nil || found.last() < n {
		return nil
	}
	return found
}

// row returns row n, which must be published and above the origin.
func (b *TupleBuffer) row(ctx context.Context, n int) (batch.Row, error) {
	p := b.pageFor(n)
	if p == nil {
		return nil, RowNotBufferedError{Row: n, Origin: b.origin}
	}
	if !p.spilled() {
		return p.rows[n-p.first], nil
	}
	rows, err := b.mgr.load(ctx, p.key)
	if err != nil {
		return nil, err
	}
	return rows[n-p.first], nil
}
