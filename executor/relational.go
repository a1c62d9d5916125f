package executor

import (
	"context"

	"github.com/fedquery/fq/batch"
)

/*
relational holds the output bookkeeping shared by every node: the rows
accumulated for the next output batch, the number of the next output row, and
whether the node has finished producing rows. Concrete nodes embed it and
supply a step function that does one unit of work (typically, consume one input
batch), appending output rows with addBatchRow and calling terminateBatches
when no more rows will follow.
*/

////////////////////////////////////////////////////////////////////////////////

type relational struct {
	id        int
	elements  batch.Schema
	batchSize int

	pending    []batch.Row
	nextRow    int
	terminated bool
	closed     bool
}

func newRelational(id int, elements batch.Schema, batchSize int) relational {
	return relational{
		id:        id,
		elements:  elements,
		batchSize: batchSize,
		nextRow:   1,
	}
}

// ID returns the node's identifier.
func (r *relational) ID() int {
	return r.id
}

// OutputElements returns the node's output schema.
func (r *relational) OutputElements() batch.Schema {
	return r.elements
}

func (r *relational) addBatchRow(row batch.Row) {
	r.pending = append(r.pending, row)
}

func (r *relational) terminateBatches() {
	r.terminated = true
}

// pullBatch removes up to batchSize pending rows as the next output batch.
func (r *relational) pullBatch() *batch.Batch {
	n := min(r.batchSize, len(r.pending))
	rows := make([]batch.Row, n)
	copy(rows, r.pending[:n])
	r.pending = r.pending[n:]
	terminal := r.terminated && len(r.pending) == 0
	b := batch.New(r.nextRow, rows, terminal)
	r.nextRow += n
	return b
}

// nextBatch returns a pending batch if a full one is available or the node
// has terminated. Otherwise it calls step until step blocks or leaves output
// to return. A blocked step leaves the pending rows in place for the next
// call.
func (r *relational) nextBatch(
	ctx context.Context,
	step func(ctx context.Context) (blocked bool, err error),
) (batch.Result, error) {
	for {
		if len(r.pending) >= r.batchSize || r.terminated {
			return batch.Ready(r.pullBatch()), nil
		}
		blocked, err := step(ctx)
		if err != nil {
			return batch.Blocked, err
		}
		if blocked {
			return batch.Blocked, nil
		}
		if len(r.pending) > 0 || r.terminated {
			return batch.Ready(r.pullBatch()), nil
		}
	}
}

func (r *relational) resetRelational() {
	r.pending = nil
	r.nextRow = 1
	r.terminated = false
}

// checkContiguous verifies that b begins immediately after row end.
func checkContiguous(p interface{ String() string }, end int, b *batch.Batch) error {
	if b.BeginRow() != end+1 {
		return OutOfSequenceError{Producer: p.String(), Expected: end + 1, Got: b.BeginRow()}
	}
	return nil
}
