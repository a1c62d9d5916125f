package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/expr"
	"github.com/fedquery/fq/util/log"
)

/*
SelectNode filters the rows of its child by a criteria and projects the
survivors onto its output elements.

On first execution the node binds its criteria against the child's schema and
computes, for each output element, the index of the child column it copies.
Both are immutable afterward and are shared with clones.

If the predicate defers on a row, the node records the batch and row it was on
and returns batch.Blocked before touching any further state. The next call
resumes evaluation at exactly that row of exactly that batch instead of pulling
from the child again.
*/

////////////////////////////////////////////////////////////////////////////////

// SelectNode is a filter and projection over one child.
type SelectNode struct {
	relational

	criteria   expr.Criteria
	child      Producer
	subqueries map[string]*BatchIterator
	owner      bool

	// bound on first execution; shared with clones.
	predicate  expr.Predicate
	elementMap map[string]int
	projection []int

	childEnd     int
	blockedBatch *batch.Batch
	blockedRow   int
}

// NewSelectNode constructs a new select node. If elements is empty the node
// outputs every column of its child.
func NewSelectNode(
	id int,
	criteria expr.Criteria,
	elements batch.Schema,
	child Producer,
	opts ...NodeOption,
) *SelectNode {
	cfg := newNodeConfig(opts)
	if len(elements) == 0 {
		elements = child.OutputElements()
	}
	return &SelectNode{
		relational: newRelational(id, elements, cfg.batchSize),
		criteria:   criteria,
		child:      child,
		subqueries: cfg.subqueries,
		owner:      true,
	}
}

func (n *SelectNode) initialize() error {
	if n.predicate != nil {
		return nil
	}
	inputs := n.child.OutputElements()
	elementMap := inputs.Lookup()
	projection := make([]int, len(n.elements))
	for i, e := range n.elements {
		idx := inputs.Index(e.Name)
		if idx < 0 {
			return expr.UnknownColumnError{Name: e.Name, Available: elementMap}
		}
		projection[i] = idx
	}
	scope := expr.Scope{Columns: elementMap}
	if len(n.subqueries) > 0 {
		subqueries := make(map[string]expr.Subquery, len(n.subqueries))
		for name, it := range n.subqueries {
			subqueries[name] = it
		}
		scope = scope.WithSubqueries(subqueries)
	}
	predicate, err := n.criteria.Bind(scope)
	if err != nil {
		return fmt.Errorf("failed to bind criteria: %w", err)
	}
	n.elementMap = elementMap
	n.projection = projection
	n.predicate = predicate
	return nil
}

// NextBatch returns the next batch of matching rows.
func (n *SelectNode) NextBatch(ctx context.Context) (batch.Result, error) {
	res, err := n.nextBatch(ctx, n.step)
	if err != nil {
		if closeErr := n.Close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return res, err
	}
	return res, nil
}

func (n *SelectNode) step(ctx context.Context) (bool, error) {
	if err := n.initialize(); err != nil {
		return false, ProcessingError{NodeID: n.id, Err: err}
	}
	b := n.blockedBatch
	row := n.blockedRow
	if b == nil {
		res, err := n.child.NextBatch(ctx)
		if err != nil {
			return false, err
		}
		if res.Blocked() {
			return true, nil
		}
		b = res.Batch()
		if err := checkContiguous(n.child, n.childEnd, b); err != nil {
			return false, err
		}
		n.childEnd = b.EndRow()
		row = b.BeginRow()
	} else {
		log.Debugw(ctx, "resuming criteria evaluation", "node", n.id, "row", row)
		n.blockedBatch = nil
		n.blockedRow = 0
	}
	for ; row <= b.EndRow(); row++ {
		tuple := b.Row(row)
		verdict, err := n.predicate.Evaluate(ctx, tuple)
		if err != nil {
			return false, ProcessingError{NodeID: n.id, Row: row, Err: err}
		}
		if verdict == expr.Defer {
			n.blockedBatch = b
			n.blockedRow = row
			log.Debugw(ctx, "criteria evaluation blocked", "node", n.id, "row", row)
			return true, nil
		}
		if expr.Selected(verdict) {
			n.addBatchRow(tuple.Project(n.projection))
		}
	}
	if b.Terminal() {
		n.terminateBatches()
	}
	return false, nil
}

// Reset returns the node and its child to their pre-execution state. The
// bound criteria and projection are kept.
func (n *SelectNode) Reset() {
	n.resetRelational()
	n.childEnd = 0
	n.blockedBatch = nil
	n.blockedRow = 0
	n.child.Reset()
}

// Clone returns a new node over child sharing this node's criteria, bound
// predicate, lookup map and projection, with no execution state. Subqueries
// remain owned by the original node.
func (n *SelectNode) Clone(child Producer) *SelectNode {
	return &SelectNode{
		relational: newRelational(n.id, n.elements, n.batchSize),
		criteria:   n.criteria,
		child:      child,
		subqueries: n.subqueries,
		predicate:  n.predicate,
		elementMap: n.elementMap,
		projection: n.projection,
	}
}

// Blocked reports whether the node is holding a partially evaluated batch.
func (n *SelectNode) Blocked() (row int, ok bool) {
	return n.blockedRow, n.blockedBatch != nil
}

// Close closes the node, its subqueries and its child.
func (n *SelectNode) Close(ctx context.Context) error {
	if n.closed {
		return nil
	}
	n.closed = true
	n.blockedBatch = nil
	var errs []error
	for name, it := range n.subqueries {
		if !n.owner {
			break
		}
		if err := it.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close subquery %s: %w", name, err))
		}
	}
	if err := n.child.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close select node: %w", err))
	}
	return errors.Join(errs...)
}

// String returns a string representation of the node.
func (n *SelectNode) String() string {
	return fmt.Sprintf("[select %s %s]", n.criteria, n.child.String())
}
