package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/util/log"
)

/*
The executor module implements a pull-based, non-blocking query executor with
a small set of operators:
  * access: reads a command's results from a source via the data manager
  * select: filters rows by a criteria and projects them
  * limit: limits and offsets the rows of its child

Queries arrive as a tree of plan nodes, which are compiled to a tree of
producers. The execution tree is driven by repeatedly calling NextBatch on the
root node until a terminal batch arrives. A Blocked result means some upstream
source is not ready; the driver decides how long to wait and how often to
retry, so timeouts are a property of the driver and not of the nodes.
*/

////////////////////////////////////////////////////////////////////////////////

// Sink receives the batches produced by the root of an execution tree.
type Sink func(b *batch.Batch) error

// Execution drives one execution tree a step at a time. It verifies that the
// root's batches are contiguous before handing them to the sink.
type Execution struct {
	root    Producer
	sink    Sink
	lastEnd int
	done    bool
}

// NewExecution returns an execution of root delivering batches to sink.
func NewExecution(root Producer, sink Sink) *Execution {
	return &Execution{root: root, sink: sink}
}

// Step pulls one batch from the root. It returns StatusReady if a batch was
// delivered, StatusBlocked if the root made no progress, and StatusExhausted
// once the terminal batch has been delivered.
func (e *Execution) Step(ctx context.Context) (batch.Status, error) {
	if e.done {
		return batch.StatusExhausted, nil
	}
	res, err := e.root.NextBatch(ctx)
	if err != nil {
		e.done = true
		return batch.StatusExhausted, err
	}
	if res.Blocked() {
		return batch.StatusBlocked, nil
	}
	b := res.Batch()
	if err := checkContiguous(e.root, e.lastEnd, b); err != nil {
		e.done = true
		return batch.StatusExhausted, err
	}
	e.lastEnd = b.EndRow()
	if err := e.sink(b); err != nil {
		e.done = true
		return batch.StatusExhausted, fmt.Errorf("failed to deliver batch: %w", err)
	}
	if b.Terminal() {
		e.done = true
		return batch.StatusExhausted, nil
	}
	return batch.StatusReady, nil
}

// Rows returns the number of rows delivered so far.
func (e *Execution) Rows() int {
	return e.lastEnd
}

// Done reports whether the execution has finished or failed.
func (e *Execution) Done() bool {
	return e.done
}

// Close closes the execution tree.
func (e *Execution) Close(ctx context.Context) error {
	e.done = true
	if err := e.root.Close(ctx); err != nil {
		return fmt.Errorf("failed to close execution tree: %w", err)
	}
	return nil
}

// RetryPolicy governs how a driver waits on a blocked plan. Backoff doubles
// after each unproductive retry up to MaxBackoff, and resets when a batch is
// produced. With no MaxBackoff the delay stays at Backoff, and with no Backoff
// retries are immediate. MaxIdleRetries bounds consecutive unproductive
// retries and Budget bounds the time since the last productive step. Zero
// means no bound.
type RetryPolicy struct {
	Backoff        time.Duration `json:"backoff"`
	MaxBackoff     time.Duration `json:"maxBackoff"`
	MaxIdleRetries int           `json:"maxIdleRetries"`
	Budget         time.Duration `json:"budget"`
}

// DefaultRetryPolicy retries indefinitely with a short capped backoff.
var DefaultRetryPolicy = RetryPolicy{ // nolint:gochecknoglobals
	Backoff:    time.Millisecond,
	MaxBackoff: 50 * time.Millisecond,
}

// Delay returns the wait before retry number retries, counting from one.
func (p RetryPolicy) Delay(retries int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	delay := p.Backoff
	for i := 1; i < retries && delay < p.MaxBackoff; i++ {
		delay *= 2
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// Exceeded returns a RetryBudgetError if retries unproductive retries over
// elapsed time exceed the policy.
func (p RetryPolicy) Exceeded(retries int, elapsed time.Duration) error {
	if p.MaxIdleRetries > 0 && retries > p.MaxIdleRetries {
		return RetryBudgetError{Retries: retries, Elapsed: elapsed}
	}
	if p.Budget > 0 && elapsed > p.Budget {
		return RetryBudgetError{Retries: retries, Elapsed: elapsed}
	}
	return nil
}

// Run executes root to completion, delivering each batch to sink. The tree is
// closed before Run returns.
func Run(ctx context.Context, root Producer, sink Sink, policy RetryPolicy) (err error) {
	exec := NewExecution(root, sink)
	defer func() {
		if closeErr := exec.Close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	retries := 0
	lastProgress := time.Now()
	for {
		status, err := exec.Step(ctx)
		if err != nil {
			return err
		}
		switch status {
		case batch.StatusExhausted:
			log.Debugw(ctx, "execution complete", "rows", exec.Rows())
			return nil
		case batch.StatusReady:
			retries = 0
			lastProgress = time.Now()
			continue
		}
		retries++
		if err := policy.Exceeded(retries, time.Since(lastProgress)); err != nil {
			return err
		}
		if err := sleep(ctx, policy.Delay(retries)); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
