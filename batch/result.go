package batch

/*
Producers never block the calling goroutine waiting on an upstream dependency.
Instead a pull returns a Result, which either carries the next batch or reports
that the producer is not ready and the identical call should be retried later.
Failures travel separately as ordinary Go errors.
*/

////////////////////////////////////////////////////////////////////////////////

// Status describes the outcome of a pull.
type Status uint8

const (
	// StatusReady means data was produced.
	StatusReady Status = iota
	// StatusBlocked means no progress was made and the call must be retried.
	StatusBlocked
	// StatusExhausted means the stream has ended.
	StatusExhausted
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusBlocked:
		return "blocked"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is the outcome of a batch pull: Ready(batch) or Blocked.
type Result struct {
	batch *Batch
}

// Ready wraps a produced batch.
func Ready(b *Batch) Result {
	if b == nil {
		panic("batch: ready result requires a batch")
	}
	return Result{batch: b}
}

// Blocked is the result of a pull that made no progress.
var Blocked = Result{} // nolint:gochecknoglobals

// Blocked reports whether the pull must be retried.
func (r Result) Blocked() bool {
	return r.batch == nil
}

// Batch returns the produced batch, or nil if blocked.
func (r Result) Batch() *Batch {
	return r.batch
}

// Status returns the status of the result.
func (r Result) Status() Status {
	if r.batch == nil {
		return StatusBlocked
	}
	return StatusReady
}
