package executor

import (
	"context"

	"github.com/fedquery/fq/batch"
)

/*
MockNode is a mock implementation of a producer, used to simulate leaves in
tests without a data manager. It returns canned batches in order, optionally
reporting Blocked or failing before particular batches.
*/

////////////////////////////////////////////////////////////////////////////////

// MockNode returns canned batches.
type MockNode struct {
	elements batch.Schema
	batches  []*batch.Batch
	next     int
	blocks   map[int]int
	failures map[int]error

	calls  int
	resets int
	closed bool
}

// NewMockNode constructs a new mock node returning batches in order.
func NewMockNode(elements batch.Schema, batches ...*batch.Batch) *MockNode {
	return &MockNode{
		elements: elements,
		batches:  batches,
		blocks:   make(map[int]int),
		failures: make(map[int]error),
	}
}

// BlockBefore makes the node report Blocked times times before returning
// batch i, counting from zero.
func (n *MockNode) BlockBefore(i int, times int) *MockNode {
	n.blocks[i] += times
	return n
}

// FailBefore makes the node return err instead of batch i.
func (n *MockNode) FailBefore(i int, err error) *MockNode {
	n.failures[i] = err
	return n
}

// NextBatch returns the next canned batch.
func (n *MockNode) NextBatch(context.Context) (batch.Result, error) {
	n.calls++
	if err, ok := n.failures[n.next]; ok {
		return batch.Blocked, err
	}
	if n.blocks[n.next] > 0 {
		n.blocks[n.next]--
		return batch.Blocked, nil
	}
	if n.next >= len(n.batches) {
		end := 0
		if len(n.batches) > 0 {
			end = n.batches[len(n.batches)-1].EndRow()
		}
		return batch.Ready(batch.Empty(end+1, true)), nil
	}
	b := n.batches[n.next]
	n.next++
	return batch.Ready(b), nil
}

// Reset rewinds the node to its first batch.
func (n *MockNode) Reset() {
	n.next = 0
	n.resets++
}

// OutputElements returns the node's output schema.
func (n *MockNode) OutputElements() batch.Schema {
	return n.elements
}

// Close the node.
func (n *MockNode) Close(context.Context) error {
	n.closed = true
	return nil
}

// Calls returns the number of NextBatch calls made.
func (n *MockNode) Calls() int {
	return n.calls
}

// Resets returns the number of Reset calls made.
func (n *MockNode) Resets() int {
	return n.resets
}

// Closed reports whether the node has been closed.
func (n *MockNode) Closed() bool {
	return n.closed
}

// String returns a string representation of the node.
func (n *MockNode) String() string {
	return "[mock]"
}
