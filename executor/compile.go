package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedquery/fq/buffer"
	"github.com/fedquery/fq/datamgr"
	"github.com/fedquery/fq/plan"
	"github.com/fedquery/fq/ql"
	"github.com/fedquery/fq/util"
)

// Env supplies what compiled nodes need at execution time.
type Env struct {
	// DataManager resolves access nodes' requests.
	DataManager datamgr.DataManager
	// Buffers creates the tuple buffers backing subquery iterators.
	Buffers *buffer.Manager
	// BatchSize is the output batch size of every node. Zero means
	// DefaultBatchSize.
	BatchSize int
	// Stats wraps every node in a NodeStats recorder.
	Stats bool
}

// CompilePlan compiles a "plan tree" -- a tree of plan nodes -- to a tree of
// executor nodes.
func CompilePlan(ctx context.Context, node *plan.Node, env Env) (Producer, error) {
	var producer Producer
	var err error
	switch node.Type {
	case plan.Access:
		producer, err = compileAccess(node, env)
	case plan.Select:
		producer, err = compileSelect(ctx, node, env)
	case plan.Limit:
		producer, err = compileLimit(ctx, node, env)
	default:
		return nil, fmt.Errorf("unrecognized node type %s", node.Type)
	}
	if err != nil {
		return nil, err
	}
	if env.Stats {
		producer = NewNodeStats(producer, fmt.Sprintf("%s %d", node.Type, node.ID))
	}
	return producer, nil
}

func (env Env) options() []NodeOption {
	if env.BatchSize > 0 {
		return []NodeOption{WithBatchSize(env.BatchSize)}
	}
	return nil
}

func compileAccess(node *plan.Node, env Env) (Producer, error) {
	if env.DataManager == nil {
		return nil, errors.New("access node requires a data manager")
	}
	command := datamgr.NewCommand(node.Command, node.Projected)
	return NewAccessNode(node.ID, env.DataManager, command, node.Source, env.options()...), nil
}

func compileSelect(ctx context.Context, node *plan.Node, env Env) (Producer, error) {
	if len(node.Children) != 1 {
		return nil, fmt.Errorf("select node requires one child, got %d", len(node.Children))
	}
	criteria, err := ql.Parse(node.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to parse criteria: %w", err)
	}
	child, err := CompilePlan(ctx, node.Children[0], env)
	if err != nil {
		return nil, err
	}
	elements, err := child.OutputElements().Select(node.Elements...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve select elements: %w", err)
	}
	opts := env.options()
	for _, name := range util.Okeys(node.Subqueries) {
		if env.Buffers == nil {
			return nil, errors.New("subqueries require a buffer manager")
		}
		sub, err := CompilePlan(ctx, node.Subqueries[name], env)
		if err != nil {
			return nil, fmt.Errorf("failed to compile subquery %s: %w", name, err)
		}
		it := NewBatchIterator(sub)
		if err := it.SetBuffer(env.Buffers.Create(sub.OutputElements()), false); err != nil {
			return nil, err
		}
		opts = append(opts, WithSubquery(name, it))
	}
	return NewSelectNode(node.ID, criteria, elements, child, opts...), nil
}

func compileLimit(ctx context.Context, node *plan.Node, env Env) (Producer, error) {
	if len(node.Children) != 1 {
		return nil, fmt.Errorf("limit node requires one child, got %d", len(node.Children))
	}
	child, err := CompilePlan(ctx, node.Children[0], env)
	if err != nil {
		return nil, err
	}
	limit := -1
	if node.Limit != nil {
		limit = *node.Limit
	}
	offset := 0
	if node.Offset != nil {
		offset = *node.Offset
	}
	return NewLimitNode(node.ID, limit, offset, child, env.options()...), nil
}
