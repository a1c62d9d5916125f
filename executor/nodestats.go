package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/util"
)

/*
NodeStats wraps a producer and records what flowed through it. On Close the
counters are written to a child of the execution context named by the label,
and the wrapped node is closed within that child, so nested wrappers build a
tree mirroring the plan.
*/

////////////////////////////////////////////////////////////////////////////////

// NodeStats records output statistics for a producer.
type NodeStats struct {
	child Producer
	label string

	batchesOut int
	rowsOut    int
	blocks     int

	startTime           time.Time
	elapsedToFirstBatch time.Duration
	elapsedToLastBatch  time.Duration

	initialized       bool
	firstRecorded     bool
	lastBatchRecorded bool
	closed            bool
}

// NewNodeStats wraps child.
func NewNodeStats(child Producer, label string) *NodeStats {
	return &NodeStats{
		child: child,
		label: label,
	}
}

// NextBatch returns the next batch from the wrapped node.
func (n *NodeStats) NextBatch(ctx context.Context) (batch.Result, error) {
	if !n.initialized {
		n.startTimer()
		n.initialized = true
	}
	res, err := n.child.NextBatch(ctx)
	if err != nil {
		n.recordLastBatch()
		return res, err
	}
	if res.Blocked() {
		n.blocks++
		return res, nil
	}
	b := res.Batch()
	if !n.firstRecorded {
		n.recordFirstBatch()
	}
	n.batchesOut++
	n.rowsOut += b.Len()
	if b.Terminal() {
		n.recordLastBatch()
	}
	return res, nil
}

// Reset resets the wrapped node. Counters accumulate across resets.
func (n *NodeStats) Reset() {
	n.child.Reset()
}

// OutputElements returns the wrapped node's output schema.
func (n *NodeStats) OutputElements() batch.Schema {
	return n.child.OutputElements()
}

// String returns a string representation of the node.
func (n *NodeStats) String() string {
	return n.child.String()
}

// Close records the statistics and closes the wrapped node.
func (n *NodeStats) Close(ctx context.Context) error {
	if n.closed {
		return nil
	}
	n.closed = true
	if !n.lastBatchRecorded {
		n.recordLastBatch()
	}
	ctx, _ = util.WithChildContext(ctx, n.label)
	util.SetContextValue(ctx, "batches_out", float64(n.batchesOut))
	util.SetContextValue(ctx, "rows_out", float64(n.rowsOut))
	util.SetContextValue(ctx, "blocked", float64(n.blocks))
	util.SetContextValue(
		ctx, "elapsed_to_first_batch", float64(n.elapsedToFirstBatch.Milliseconds()))
	util.SetContextValue(
		ctx, "elapsed_to_last_batch", float64(n.elapsedToLastBatch.Milliseconds()))
	if err := n.child.Close(ctx); err != nil {
		return fmt.Errorf("failed to close child: %w", err)
	}
	return nil
}

// RowsOut returns the number of rows returned so far.
func (n *NodeStats) RowsOut() int {
	return n.rowsOut
}

// Blocks returns the number of blocked results returned so far.
func (n *NodeStats) Blocks() int {
	return n.blocks
}

func (n *NodeStats) startTimer() {
	n.startTime = time.Now()
}

func (n *NodeStats) recordFirstBatch() {
	n.elapsedToFirstBatch = time.Since(n.startTime)
	n.firstRecorded = true
}

func (n *NodeStats) recordLastBatch() {
	if n.initialized {
		n.elapsedToLastBatch = time.Since(n.startTime)
	}
	n.lastBatchRecorded = true
}
