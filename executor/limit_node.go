package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedquery/fq/batch"
)

/*
LimitNode implements the usual limit and offset operators: it skips the first
offset rows of its child and then passes at most limit rows. A negative limit
means no limit.
*/

////////////////////////////////////////////////////////////////////////////////

// LimitNode limits and offsets its child's rows.
type LimitNode struct {
	relational

	limit  int
	offset int
	child  Producer

	childEnd int
	seen     int
	emitted  int
}

// NewLimitNode constructs a new limit node.
func NewLimitNode(id int, limit, offset int, child Producer, opts ...NodeOption) *LimitNode {
	cfg := newNodeConfig(opts)
	return &LimitNode{
		relational: newRelational(id, child.OutputElements(), cfg.batchSize),
		limit:      limit,
		offset:     offset,
		child:      child,
	}
}

// NextBatch returns the next batch of rows.
func (n *LimitNode) NextBatch(ctx context.Context) (batch.Result, error) {
	res, err := n.nextBatch(ctx, n.step)
	if err != nil {
		if closeErr := n.Close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return res, err
	}
	return res, nil
}

func (n *LimitNode) full() bool {
	return n.limit >= 0 && n.emitted >= n.limit
}

func (n *LimitNode) step(ctx context.Context) (bool, error) {
	if n.full() {
		n.terminateBatches()
		return false, nil
	}
	res, err := n.child.NextBatch(ctx)
	if err != nil {
		return false, err
	}
	if res.Blocked() {
		return true, nil
	}
	b := res.Batch()
	if err := checkContiguous(n.child, n.childEnd, b); err != nil {
		return false, err
	}
	n.childEnd = b.EndRow()
	for _, row := range b.Rows() {
		n.seen++
		if n.seen <= n.offset {
			continue
		}
		n.addBatchRow(row)
		n.emitted++
		if n.full() {
			break
		}
	}
	if b.Terminal() || n.full() {
		n.terminateBatches()
	}
	return false, nil
}

// Reset returns the node and its child to their pre-execution state.
func (n *LimitNode) Reset() {
	n.resetRelational()
	n.childEnd = 0
	n.seen = 0
	n.emitted = 0
	n.child.Reset()
}

// Close the node.
func (n *LimitNode) Close(ctx context.Context) error {
	if n.closed {
		return nil
	}
	n.closed = true
	if err := n.child.Close(ctx); err != nil {
		return fmt.Errorf("failed to close limit node: %w", err)
	}
	return nil
}

// String returns a string representation of the node.
func (n *LimitNode) String() string {
	if n.offset > 0 {
		return fmt.Sprintf("[limit %d offset %d %s]", n.limit, n.offset, n.child.String())
	}
	return fmt.Sprintf("[limit %d %s]", n.limit, n.child.String())
}
