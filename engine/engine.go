package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fedquery/fq/buffer"
	"github.com/fedquery/fq/datamgr"
	"github.com/fedquery/fq/executor"
	"github.com/fedquery/fq/plan"
	"github.com/fedquery/fq/scheduler"
	"github.com/fedquery/fq/util"
	"github.com/fedquery/fq/util/log"
	"github.com/google/uuid"
)

/*
The engine module ties the execution core together. It owns the buffer
manager shared by every query it runs, compiles plans against a data manager,
and drives them either one at a time or interleaved on the scheduler's worker
pool.
*/

////////////////////////////////////////////////////////////////////////////////

// Engine executes query plans.
type Engine struct {
	opts    Options
	dm      datamgr.DataManager
	buffers *buffer.Manager
	sched   *scheduler.Scheduler
}

// Query is a plan and the sink receiving its results.
type Query struct {
	Name string
	Plan *plan.Node
	Sink executor.Sink
}

// New constructs a new engine reading through dm.
func New(dm datamgr.DataManager, opts ...Option) *Engine {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.LogOutput != nil {
		log.Configure(options.LogOutput, options.LogLevel, options.LogJSON)
	}
	bufferOpts := []buffer.ManagerOption{
		buffer.WithPageRows(options.PageRows),
		buffer.WithPageCacheSize(options.PageCacheSize),
		buffer.WithMemoryLimitRows(options.MemoryLimitRows),
	}
	if options.SpillStore != nil {
		bufferOpts = append(bufferOpts, buffer.WithSpillStore(options.SpillStore))
	}
	return &Engine{
		opts:    options,
		dm:      dm,
		buffers: buffer.NewManager(bufferOpts...),
		sched: scheduler.New(
			scheduler.WithWorkers(options.Workers),
			scheduler.WithRetryPolicy(options.RetryPolicy),
		),
	}
}

// Options returns the engine's options.
func (e *Engine) Options() Options {
	return e.opts
}

// Buffers returns the engine's buffer manager.
func (e *Engine) Buffers() *buffer.Manager {
	return e.buffers
}

func (e *Engine) compile(ctx context.Context, node *plan.Node) (executor.Producer, error) {
	root, err := executor.CompilePlan(ctx, node, executor.Env{
		DataManager: e.dm,
		Buffers:     e.buffers,
		BatchSize:   e.opts.BatchSize,
		Stats:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile plan: %w", err)
	}
	return root, nil
}

// Execute runs one plan to completion and returns its execution statistics.
func (e *Engine) Execute(ctx context.Context, node *plan.Node, sink executor.Sink) (*util.Context, error) {
	ctx = util.WithContext(ctx, "query")
	ctx = log.AddTags(ctx, "query", uuid.NewString())
	root, err := e.compile(ctx, node)
	if err != nil {
		return nil, err
	}
	log.Debugw(ctx, "executing plan", "plan", node.String())
	if err := executor.Run(ctx, root, sink, e.opts.RetryPolicy); err != nil {
		return util.FromContext(ctx), fmt.Errorf("failed to execute plan: %w", err)
	}
	return util.FromContext(ctx), nil
}

// ExecuteAll runs several plans concurrently on the worker pool. A failing
// query does not stop the others; all failures are returned joined.
func (e *Engine) ExecuteAll(ctx context.Context, queries ...Query) error {
	jobs := make([]*scheduler.Job, 0, len(queries))
	for _, q := range queries {
		root, err := e.compile(ctx, q.Plan)
		if err != nil {
			errs := []error{fmt.Errorf("query %s: %w", q.Name, err)}
			for _, job := range jobs {
				if err := job.Close(ctx); err != nil {
					errs = append(errs, fmt.Errorf("failed to close query %s: %w", job.Name, err))
				}
			}
			return errors.Join(errs...)
		}
		jobs = append(jobs, scheduler.NewJob(q.Name, root, q.Sink))
	}
	return e.sched.Run(ctx, jobs...)
}

// Close releases every buffer and closes the spill store if it can be closed.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if err := e.buffers.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close buffers: %w", err))
	}
	if closer, ok := e.buffers.Store().(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close spill store: %w", err))
		}
	}
	return errors.Join(errs...)
}
