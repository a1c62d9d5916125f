package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/datamgr"
	"github.com/fedquery/fq/util/log"
	"github.com/google/uuid"
)

/*
AccessNode is a leaf that reads from an external source through the data
manager. The request is registered on first execution, not at construction,
so plans can be built and cloned without touching any source. Rows from the
source are regrouped into batches of the node's batch size.
*/

////////////////////////////////////////////////////////////////////////////////

// AccessNode reads a command's results from a source.
type AccessNode struct {
	relational

	dm         datamgr.DataManager
	command    datamgr.Command
	sourceName string

	requestID string
	source    datamgr.TupleSource
	sourceEnd int
	retired   []datamgr.TupleSource
}

// NewAccessNode constructs a new access node. Its output elements are the
// command's projected columns.
func NewAccessNode(
	id int,
	dm datamgr.DataManager,
	command datamgr.Command,
	sourceName string,
	opts ...NodeOption,
) *AccessNode {
	cfg := newNodeConfig(opts)
	return &AccessNode{
		relational: newRelational(id, command.Projected, cfg.batchSize),
		dm:         dm,
		command:    command,
		sourceName: sourceName,
	}
}

// NextBatch returns the next batch of source rows.
func (n *AccessNode) NextBatch(ctx context.Context) (batch.Result, error) {
	res, err := n.nextBatch(ctx, n.step)
	if err != nil {
		if closeErr := n.Close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return res, err
	}
	return res, nil
}

func (n *AccessNode) step(ctx context.Context) (bool, error) {
	if err := n.closeRetired(ctx); err != nil {
		return false, err
	}
	if n.source == nil {
		n.requestID = uuid.NewString()
		source, err := n.dm.RegisterRequest(ctx, n.requestID, n.command, n.sourceName, n.id)
		if err != nil {
			return false, ProcessingError{NodeID: n.id, Err: fmt.Errorf("failed to register request: %w", err)}
		}
		log.Debugw(ctx, "registered request", "node", n.id, "request", n.requestID, "source", n.sourceName)
		n.source = source
	}
	res, err := n.source.NextBatch(ctx)
	if err != nil {
		return false, ProcessingError{NodeID: n.id, Row: n.sourceEnd + 1, Err: err}
	}
	if res.Blocked() {
		return true, nil
	}
	b := res.Batch()
	if err := checkContiguous(n, n.sourceEnd, b); err != nil {
		return false, err
	}
	n.sourceEnd = b.EndRow()
	for _, row := range b.Rows() {
		n.addBatchRow(row)
	}
	if b.Terminal() {
		n.terminateBatches()
		return false, n.closeSource(ctx)
	}
	return false, nil
}

func (n *AccessNode) closeSource(ctx context.Context) error {
	if n.source == nil {
		return nil
	}
	source := n.source
	n.source = nil
	if err := source.Close(ctx); err != nil {
		return fmt.Errorf("failed to close source: %w", err)
	}
	return nil
}

func (n *AccessNode) closeRetired(ctx context.Context) error {
	var errs []error
	for _, source := range n.retired {
		if err := source.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close source: %w", err))
		}
	}
	n.retired = nil
	return errors.Join(errs...)
}

// Reset returns the node to its pre-execution state. An open source is
// closed on the next call to NextBatch or Close and the request is registered
// again.
func (n *AccessNode) Reset() {
	n.resetRelational()
	if n.source != nil {
		n.retired = append(n.retired, n.source)
		n.source = nil
	}
	n.sourceEnd = 0
}

// RequestID returns the identifier of the most recent request.
func (n *AccessNode) RequestID() string {
	return n.requestID
}

// Close closes the node's source.
func (n *AccessNode) Close(ctx context.Context) error {
	if n.closed {
		return nil
	}
	n.closed = true
	return errors.Join(n.closeRetired(ctx), n.closeSource(ctx))
}

// String returns a string representation of the node.
func (n *AccessNode) String() string {
	return fmt.Sprintf("[access %s %q]", n.sourceName, n.command.String())
}
