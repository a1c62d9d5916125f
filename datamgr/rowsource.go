package datamgr

import (
	"context"
	"errors"

	"github.com/fedquery/fq/batch"
)

// ErrSourceClosed is returned by a closed row source.
var ErrSourceClosed = errors.New("source closed")

// DefaultBatchSize is the number of rows per batch a row source returns when
// no batch size is given.
const DefaultBatchSize = 100

// RowSource is a TupleSource over a fixed set of rows.
type RowSource struct {
	rows      []batch.Row
	batchSize int
	next      int
	blocks    map[int]int
	closed    bool
}

// RowSourceOption configures a row source.
type RowSourceOption func(*RowSource)

// WithBatchSize sets the number of rows per batch.
func WithBatchSize(n int) RowSourceOption {
	return func(s *RowSource) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBlockBefore makes the source report Blocked the given number of times
// before returning the batch that begins at row.
func WithBlockBefore(row int, times int) RowSourceOption {
	return func(s *RowSource) {
		s.blocks[row] += times
	}
}

// NewRowSource returns a source producing rows in batches.
func NewRowSource(rows []batch.Row, opts ...RowSourceOption) *RowSource {
	s := &RowSource{
		rows:      rows,
		batchSize: DefaultBatchSize,
		next:      1,
		blocks:    make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextBatch returns the next batch of rows. The final batch is terminal; a
// source with no rows returns a single empty terminal batch.
func (s *RowSource) NextBatch(context.Context) (batch.Result, error) {
	if s.closed {
		return batch.Blocked, ErrSourceClosed
	}
	if s.blocks[s.next] > 0 {
		s.blocks[s.next]--
		return batch.Blocked, nil
	}
	begin := s.next
	end := min(begin+s.batchSize-1, len(s.rows))
	rows := s.rows[min(begin-1, len(s.rows)):end]
	s.next = begin + len(rows)
	return batch.Ready(batch.New(begin, rows, s.next > len(s.rows))), nil
}

// Close closes the source.
func (s *RowSource) Close(context.Context) error {
	s.closed = true
	return nil
}

// Closed reports whether the source has been closed.
func (s *RowSource) Closed() bool {
	return s.closed
}
