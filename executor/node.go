package executor

import (
	"context"

	"github.com/fedquery/fq/batch"
)

/*
Every operator implements Producer. NextBatch never blocks waiting on an
upstream dependency: it returns either a Ready result carrying the next batch
or batch.Blocked, meaning the node made no forward progress and the caller must
retry the identical call later. A node that blocks part way through its work
keeps whatever it needs to resume in ordinary fields, so a retried call neither
repeats nor skips output.

Batches from one producer are contiguous and begin at row 1; the last one is
terminal. After the terminal batch, or after Close, NextBatch must not be
called again.
*/

////////////////////////////////////////////////////////////////////////////////

// Producer is the execution contract implemented by every node.
type Producer interface {
	// NextBatch returns the next batch, or batch.Blocked.
	NextBatch(ctx context.Context) (batch.Result, error)

	// Reset returns the node and its children to their pre-execution state.
	Reset()

	// OutputElements returns the node's output schema.
	OutputElements() batch.Schema

	// Close releases the node's resources and closes its children. It is
	// safe to call at any point, including while blocked, and more than once.
	Close(ctx context.Context) error

	// String returns a string representation of the node.
	String() string
}

// DefaultBatchSize is the default maximum number of rows in a node's output
// batch.
const DefaultBatchSize = 100

// NodeOption configures a node.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	batchSize  int
	subqueries map[string]*BatchIterator
}

// WithBatchSize sets the maximum number of rows in a node's output batches.
func WithBatchSize(n int) NodeOption {
	return func(c *nodeConfig) {
		c.batchSize = n
	}
}

// WithSubquery makes a replayable iterator available to a select node's
// criteria as $name. The node takes ownership of the iterator and closes it
// when the node is closed.
func WithSubquery(name string, it *BatchIterator) NodeOption {
	return func(c *nodeConfig) {
		if c.subqueries == nil {
			c.subqueries = make(map[string]*BatchIterator)
		}
		c.subqueries[name] = it
	}
}

func newNodeConfig(opts []NodeOption) nodeConfig {
	cfg := nodeConfig{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.batchSize < 1 {
		cfg.batchSize = DefaultBatchSize
	}
	return cfg
}
