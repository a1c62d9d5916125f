package engine

import (
	"io"
	"log/slog"

	"github.com/fedquery/fq/buffer"
	"github.com/fedquery/fq/executor"
	"github.com/fedquery/fq/scheduler"
	"github.com/fedquery/fq/storage"
)

// Option is a functional option for the engine.
type Option func(*Options)

// Options contains options for the engine.
type Options struct {
	BatchSize       int
	MemoryLimitRows int
	PageRows        int
	PageCacheSize   int
	SpillStore      storage.Provider
	RetryPolicy     executor.RetryPolicy
	Workers         int
	LogLevel        slog.Level
	LogOutput       io.Writer
	LogJSON         bool
}

func defaultOptions() Options {
	return Options{
		BatchSize:     executor.DefaultBatchSize,
		PageRows:      buffer.DefaultPageRows,
		PageCacheSize: buffer.DefaultPageCacheSize,
		RetryPolicy:   executor.DefaultRetryPolicy,
		Workers:       scheduler.DefaultWorkers,
		LogLevel:      slog.LevelInfo,
	}
}

// WithBatchSize sets the output batch size of every node.
func WithBatchSize(n int) Option {
	return func(opts *Options) {
		opts.BatchSize = n
	}
}

// WithMemoryLimitRows sets the number of buffered rows held in memory across
// all tuple buffers before pages are spilled. Zero disables spilling.
func WithMemoryLimitRows(n int) Option {
	return func(opts *Options) {
		opts.MemoryLimitRows = n
	}
}

// WithPageRows sets the number of rows per buffer page.
func WithPageRows(n int) Option {
	return func(opts *Options) {
		opts.PageRows = n
	}
}

// WithPageCacheSize sets the number of spilled pages cached in memory.
func WithPageCacheSize(n int) Option {
	return func(opts *Options) {
		opts.PageCacheSize = n
	}
}

// WithSpillStore sets the storage spilled pages are written to.
func WithSpillStore(store storage.Provider) Option {
	return func(opts *Options) {
		opts.SpillStore = store
	}
}

// WithRetryPolicy sets the policy applied to blocked queries.
func WithRetryPolicy(policy executor.RetryPolicy) Option {
	return func(opts *Options) {
		opts.RetryPolicy = policy
	}
}

// WithWorkers sets the number of concurrent query workers.
func WithWorkers(n int) Option {
	return func(opts *Options) {
		opts.Workers = n
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level slog.Level) Option {
	return func(opts *Options) {
		opts.LogLevel = level
	}
}

// WithLogOutput makes the engine install a default logger writing to w, as
// JSON if json is set.
func WithLogOutput(w io.Writer, json bool) Option {
	return func(opts *Options) {
		opts.LogOutput = w
		opts.LogJSON = json
	}
}
