package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/executor"
	"github.com/fedquery/fq/util/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

/*
The scheduler runs many execution trees on a bounded pool of workers. A worker
steps one job until it blocks, finishes, or uses up its quantum of steps. A
blocked job is handed back to the queue after its retry policy's delay and
occupies no worker while it waits, so a few slow sources cannot starve the
rest of the pool.

A job is never stepped by two workers at once, so sinks need no locking of
their own unless they are shared between jobs.
*/

////////////////////////////////////////////////////////////////////////////////

const (
	// DefaultWorkers is the default size of the worker pool.
	DefaultWorkers = 4

	// DefaultQuantum is the default number of productive steps a worker
	// takes on one job before yielding it.
	DefaultQuantum = 16
)

// Job is one execution tree submitted to the scheduler.
type Job struct {
	ID   string
	Name string

	exec         *executor.Execution
	retries      int
	lastProgress time.Time
	err          error
	started      bool
	finished     bool
}

// NewJob returns a job executing root and delivering its batches to sink.
func NewJob(name string, root executor.Producer, sink executor.Sink) *Job {
	return &Job{
		ID:   uuid.NewString(),
		Name: name,
		exec: executor.NewExecution(root, sink),
	}
}

// Err returns the error the job failed with, if any.
func (j *Job) Err() error {
	return j.err
}

// Rows returns the number of rows the job has delivered.
func (j *Job) Rows() int {
	return j.exec.Rows()
}

// Finished reports whether the job has completed or failed.
func (j *Job) Finished() bool {
	return j.finished
}

// Close closes a job's execution tree without running it.
func (j *Job) Close(ctx context.Context) error {
	j.finished = true
	return j.exec.Close(ctx)
}

// String returns a string representation of the job.
func (j *Job) String() string {
	return fmt.Sprintf("%s (%s)", j.Name, j.ID)
}

// Option configures a scheduler.
type Option func(*Scheduler)

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		s.workers = n
	}
}

// WithRetryPolicy sets the policy applied to blocked jobs.
func WithRetryPolicy(policy executor.RetryPolicy) Option {
	return func(s *Scheduler) {
		s.policy = policy
	}
}

// WithQuantum sets the number of productive steps a worker takes on a job
// before yielding it.
func WithQuantum(n int) Option {
	return func(s *Scheduler) {
		s.quantum = n
	}
}

// Scheduler interleaves jobs on a bounded worker pool.
type Scheduler struct {
	workers int
	quantum int
	policy  executor.RetryPolicy
}

// New constructs a new scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		workers: DefaultWorkers,
		quantum: DefaultQuantum,
		policy:  executor.DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.quantum < 1 {
		s.quantum = 1
	}
	return s
}

// Run executes jobs to completion. A failed job does not stop the others; the
// failures are returned joined. If ctx is canceled Run stops dispatching,
// closes every unfinished job and returns the context's error.
func (s *Scheduler) Run(ctx context.Context, jobs ...*Job) error {
	queue := make(chan *Job, len(jobs))
	done := make(chan *Job, len(jobs))
	now := time.Now()
	for _, job := range jobs {
		job.lastProgress = now
		queue <- job
	}
	g := &errgroup.Group{}
	g.SetLimit(s.workers)
	remaining := len(jobs)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			s.abandon(ctx, jobs)
			return ctx.Err()
		case job := <-queue:
			g.Go(func() error {
				s.work(ctx, job, queue, done)
				return nil
			})
		case <-done:
			remaining--
		}
	}
	_ = g.Wait()
	var errs []error
	for _, job := range jobs {
		if job.err != nil {
			errs = append(errs, fmt.Errorf("job %s failed: %w", job.Name, job.err))
		}
	}
	return errors.Join(errs...)
}

// work steps job until it blocks, finishes, or exhausts its quantum.
func (s *Scheduler) work(ctx context.Context, job *Job, queue chan<- *Job, done chan<- *Job) {
	ctx = log.AddTags(ctx, "job", job.ID)
	if !job.started {
		job.started = true
		log.Infow(ctx, "job started", "name", job.Name)
	}
	for i := 0; i < s.quantum; i++ {
		status, err := job.exec.Step(ctx)
		if err != nil {
			s.finish(ctx, job, err, done)
			return
		}
		switch status {
		case batch.StatusExhausted:
			s.finish(ctx, job, nil, done)
			return
		case batch.StatusReady:
			job.retries = 0
			job.lastProgress = time.Now()
			continue
		}
		job.retries++
		if err := s.policy.Exceeded(job.retries, time.Since(job.lastProgress)); err != nil {
			s.finish(ctx, job, err, done)
			return
		}
		time.AfterFunc(s.policy.Delay(job.retries), func() {
			queue <- job
		})
		return
	}
	queue <- job
}

func (s *Scheduler) finish(ctx context.Context, job *Job, err error, done chan<- *Job) {
	if closeErr := job.exec.Close(ctx); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	job.err = err
	job.finished = true
	if err != nil {
		log.Errorw(ctx, "job failed", "name", job.Name, "error", err)
	} else {
		log.Infow(ctx, "job finished", "name", job.Name, "rows", job.exec.Rows())
	}
	done <- job
}

// abandon closes every unfinished job. It must not be called while workers
// are running.
func (s *Scheduler) abandon(ctx context.Context, jobs []*Job) {
	cause := ctx.Err()
	ctx = context.WithoutCancel(ctx)
	for _, job := range jobs {
		if job.finished {
			continue
		}
		if err := job.exec.Close(ctx); err != nil {
			log.Warnw(ctx, "failed to close abandoned job", "job", job.ID, "error", err)
		}
		job.err = cause
		job.finished = true
	}
}
